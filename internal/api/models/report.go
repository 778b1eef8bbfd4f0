package models

import (
	"fmt"
	"strings"

	"github.com/skybrief/skybrief/internal/classify"
	"github.com/skybrief/skybrief/internal/engine"
	"github.com/skybrief/skybrief/internal/source"
	"github.com/skybrief/skybrief/internal/wx"
)

// DecodeRequest is the body of POST /v1/reports:decode.
type DecodeRequest struct {
	// Product is a product kind or alias such as METAR, TAF, PIREP or SIGMET.
	Product string `json:"product"`
	Raw     string `json:"raw"`
}

// Validate checks required fields. The product name itself is checked by
// the decoder so that unknown kinds map to their own problem.
func (r *DecodeRequest) Validate() []FieldError {
	var errs []FieldError
	if strings.TrimSpace(r.Product) == "" {
		errs = append(errs, FieldError{Field: "product", Message: "product is required", Code: CodeRequired})
	}
	if strings.TrimSpace(r.Raw) == "" {
		errs = append(errs, FieldError{Field: "raw", Message: "raw report text is required", Code: CodeRequired})
	}
	return errs
}

// DecodeResponse is a decoded and classified report.
type DecodeResponse struct {
	Kind       wx.ProductKind      `json:"kind"`
	Record     wx.Record           `json:"record"`
	Assessment classify.Assessment `json:"assessment"`

	// Partial is set when some groups could not be decoded; Issues lists them.
	Partial bool     `json:"partial"`
	Issues  []string `json:"issues,omitempty"`
}

// NewDecodeResponse builds a response from a decoded record.
func NewDecodeResponse(record wx.Record, a classify.Assessment) DecodeResponse {
	resp := DecodeResponse{Kind: record.Product(), Record: record, Assessment: a}
	for _, issue := range record.GroupIssues() {
		resp.Issues = append(resp.Issues, issue.Error())
	}
	resp.Partial = len(resp.Issues) > 0
	return resp
}

// NotamExtractRequest is the body of POST /v1/notams:extract.
type NotamExtractRequest struct {
	Raw string `json:"raw"`
}

// Validate checks required fields.
func (r *NotamExtractRequest) Validate() []FieldError {
	if strings.TrimSpace(r.Raw) == "" {
		return []FieldError{{Field: "raw", Message: "notice text is required", Code: CodeRequired}}
	}
	return nil
}

// WeatherResponse is a station's current product.
type WeatherResponse struct {
	StationID  string              `json:"stationId"`
	Kind       wx.ProductKind      `json:"kind"`
	Raw        string              `json:"raw"`
	Record     wx.Record           `json:"record"`
	Assessment classify.Assessment `json:"assessment"`
	Provenance source.Provenance   `json:"provenance"`
	Source     string              `json:"source"`
	FetchedAt  Timestamp           `json:"fetchedAt"`
	ExpiresAt  Timestamp           `json:"expiresAt"`
	Stale      bool                `json:"stale,omitempty"`
}

// NewWeatherResponse builds a response from a cache entry.
func NewWeatherResponse(e *source.Entry) WeatherResponse {
	return WeatherResponse{
		StationID:  e.Key.Station,
		Kind:       e.Key.Kind,
		Raw:        e.Raw.RawText,
		Record:     e.Record,
		Assessment: e.Assessment,
		Provenance: e.Provenance,
		Source:     e.Source,
		FetchedAt:  Timestamp(e.FetchedAt),
		ExpiresAt:  Timestamp(e.ExpiresAt),
		Stale:      e.Stale,
	}
}

// BatchClassifyRequest is the body of POST /v1/reports:classify.
type BatchClassifyRequest struct {
	// Product applies to every report. Default: METAR.
	Product string        `json:"product,omitempty"`
	Reports []BatchReport `json:"reports"`
}

// BatchReport is one labelled report of a batch.
type BatchReport struct {
	ID  string `json:"id"`
	Raw string `json:"raw"`
}

// Validate checks the batch size. Individual reports are checked by the
// decoder and fail on their own.
func (r *BatchClassifyRequest) Validate(limit int) []FieldError {
	switch {
	case len(r.Reports) == 0:
		return []FieldError{{Field: "reports", Message: "at least one report is required", Code: CodeRequired}}
	case len(r.Reports) > limit:
		return []FieldError{{Field: "reports", Message: fmt.Sprintf("at most %d reports per batch", limit), Code: CodeInvalid}}
	}
	return nil
}

// BatchClassifyResult is the outcome for one report.
type BatchClassifyResult struct {
	ID          string          `json:"id"`
	Severity    string          `json:"severity,omitempty"`
	FlightRules wx.FlightRules  `json:"flightRules,omitempty"`
	Reason      classify.Reason `json:"reason,omitempty"`
	Detail      string          `json:"detail,omitempty"`
	Partial     bool            `json:"partial,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// BatchClassifyResponse lists per-report outcomes with a tally by severity.
type BatchClassifyResponse struct {
	Results []BatchClassifyResult `json:"results"`
	Counts  map[string]int        `json:"counts"`
	Failed  int                   `json:"failed"`
}

// NewBatchClassifyResponse builds a response from engine results.
func NewBatchClassifyResponse(results []engine.BatchResult) BatchClassifyResponse {
	resp := BatchClassifyResponse{
		Results: make([]BatchClassifyResult, 0, len(results)),
		Counts: map[string]int{
			wx.SeverityClear.String():       0,
			wx.SeveritySignificant.String(): 0,
			wx.SeveritySevere.String():      0,
		},
	}
	for _, r := range results {
		out := BatchClassifyResult{ID: r.ID}
		if r.Err != nil {
			out.Error = r.Err.Error()
			resp.Failed++
			resp.Results = append(resp.Results, out)
			continue
		}
		a := r.Decoded.Assessment
		out.Severity = a.Severity.String()
		out.FlightRules = a.FlightRules
		out.Reason = a.Reason
		out.Detail = a.Detail
		out.Partial = len(r.Decoded.Record.GroupIssues()) > 0
		resp.Counts[out.Severity]++
		resp.Results = append(resp.Results, out)
	}
	return resp
}
