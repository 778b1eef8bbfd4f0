// Package handler implements the HTTP endpoints of the briefing API.
package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/skybrief/skybrief/internal/api/models"
	"github.com/skybrief/skybrief/internal/api/response"
	"github.com/skybrief/skybrief/internal/engine"
	"github.com/skybrief/skybrief/internal/wx"
)

// ReportHandler decodes reports and extracts notices.
type ReportHandler struct {
	engine *engine.Engine
	logger zerolog.Logger
}

// NewReportHandler creates a ReportHandler.
func NewReportHandler(e *engine.Engine, logger zerolog.Logger) *ReportHandler {
	return &ReportHandler{engine: e, logger: logger}
}

// Decode handles POST /v1/reports:decode. Reports that decode with
// ungrammatical groups are still 200 with partial set.
func (h *ReportHandler) Decode(w http.ResponseWriter, r *http.Request) {
	var req models.DecodeRequest
	if !response.DecodeJSON(w, r, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid decode request", errs)
		return
	}

	kind, err := wx.ParseProductKind(req.Product)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	decoded, err := h.engine.DecodeAndClassify(kind, req.Raw)
	if err != nil {
		h.logger.Debug().Err(err).Str("product", string(kind)).Msg("decode rejected")
		response.FromError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.NewDecodeResponse(decoded.Record, decoded.Assessment))
}

// ClassifyBatch handles POST /v1/reports:classify. Reports that fail to
// decode are reported in their result; the batch still succeeds.
func (h *ReportHandler) ClassifyBatch(w http.ResponseWriter, r *http.Request) {
	var req models.BatchClassifyRequest
	if !response.DecodeJSON(w, r, &req) {
		return
	}
	if errs := req.Validate(engine.MaxBatch); len(errs) > 0 {
		response.BadRequest(w, r, "invalid batch", errs)
		return
	}

	product := req.Product
	if product == "" {
		product = string(wx.KindObservation)
	}
	kind, err := wx.ParseProductKind(product)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	items := make([]engine.BatchItem, len(req.Reports))
	for i, rep := range req.Reports {
		items[i] = engine.BatchItem{ID: rep.ID, Raw: rep.Raw}
	}
	results, err := h.engine.ClassifyBatch(kind, items)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	resp := models.NewBatchClassifyResponse(results)
	h.logger.Debug().
		Str("product", string(kind)).
		Int("reports", len(results)).
		Int("failed", resp.Failed).
		Msg("batch classified")
	response.JSON(w, r, http.StatusOK, resp)
}

// ExtractNotam handles POST /v1/notams:extract.
func (h *ReportHandler) ExtractNotam(w http.ResponseWriter, r *http.Request) {
	var req models.NotamExtractRequest
	if !response.DecodeJSON(w, r, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid extract request", errs)
		return
	}

	notam, err := h.engine.ExtractNotam(req.Raw)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, notam)
}
