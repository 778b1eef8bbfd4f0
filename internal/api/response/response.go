// Package response writes JSON bodies and RFC 7807 problems.
package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/skybrief/skybrief/internal/api/middleware"
	"github.com/skybrief/skybrief/internal/api/models"
	"github.com/skybrief/skybrief/internal/wx"
)

// JSON writes a JSON response with the given status code and echoes the
// request ID.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
		w.Header().Set(middleware.HeaderRequestID, requestID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Error writes a Problem+JSON error response.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// BadRequest writes a 400 Bad Request error response.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	Error(w, r, models.NewBadRequest(middleware.GetRequestID(r.Context()), detail, errors))
}

// Unprocessable writes a 422 response for text that does not decode.
func Unprocessable(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewUnprocessable(middleware.GetRequestID(r.Context()), detail))
}

// NotFound writes a 404 Not Found error response.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewNotFound(middleware.GetRequestID(r.Context()), detail))
}

// InternalError writes a 500 Internal Server Error response.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewInternalError(middleware.GetRequestID(r.Context()), detail))
}

// ServiceUnavailable writes a 503 Service Unavailable error response.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewServiceUnavailable(middleware.GetRequestID(r.Context()), detail))
}

// FromError maps an engine error to its problem:
//
//	ErrUnsupportedProduct, ErrValidation  400
//	ErrGrammarMismatch                    422
//	ErrStationNotFound                    404 "no data for this station"
//	ErrSourceUnavailable, anything else   500 "system error"
//
// A cancelled request gets 503 since nobody reads the answer anyway.
func FromError(w http.ResponseWriter, r *http.Request, err error) {
	traceID := middleware.GetRequestID(r.Context())
	var problem *models.Problem

	switch {
	case errors.Is(err, wx.ErrUnsupportedProduct):
		problem = models.NewBadRequest(traceID, err.Error(), []models.FieldError{
			{Field: "product", Message: err.Error(), Code: models.CodeUnsupported},
		})
	case errors.Is(err, wx.ErrValidation):
		problem = models.NewBadRequest(traceID, err.Error(), nil)
	case errors.Is(err, wx.ErrGrammarMismatch):
		problem = models.NewUnprocessable(traceID, err.Error())
	case errors.Is(err, wx.ErrStationNotFound):
		problem = models.NewNotFound(traceID, models.DetailNoData)
	case r.Context().Err() != nil:
		problem = models.NewServiceUnavailable(traceID, "request cancelled")
	default:
		problem = models.NewInternalError(traceID, models.DetailSystemError)
	}
	Error(w, r, problem)
}

// DecodeJSON reads a JSON body into dst, writing a 400 problem and
// returning false when it cannot.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			BadRequest(w, r, "request body is empty", nil)
		case errors.As(err, &maxErr):
			BadRequest(w, r, fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit), nil)
		default:
			BadRequest(w, r, "invalid JSON body: "+err.Error(), nil)
		}
		return false
	}
	if dec.More() {
		BadRequest(w, r, "request body must contain a single JSON object", nil)
		return false
	}
	return true
}
