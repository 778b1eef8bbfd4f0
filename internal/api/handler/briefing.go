package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/skybrief/skybrief/internal/api/models"
	"github.com/skybrief/skybrief/internal/api/response"
	"github.com/skybrief/skybrief/internal/engine"
)

// BriefingHandler builds route briefings.
type BriefingHandler struct {
	engine *engine.Engine
	logger zerolog.Logger
}

// NewBriefingHandler creates a BriefingHandler.
func NewBriefingHandler(e *engine.Engine, logger zerolog.Logger) *BriefingHandler {
	return &BriefingHandler{engine: e, logger: logger}
}

// Create handles POST /v1/briefings. Waypoints without data are reported
// inside the briefing; only invalid requests and system failures are errors.
func (h *BriefingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body models.BriefingRequest
	if !response.DecodeJSON(w, r, &body) {
		return
	}
	req, errs := body.ToRequest()
	if len(errs) > 0 {
		response.BadRequest(w, r, "invalid briefing request", errs)
		return
	}

	b, err := h.engine.Brief(r.Context(), req)
	if err != nil {
		h.logger.Warn().Err(err).Msg("briefing failed")
		response.FromError(w, r, err)
		return
	}

	w.Header().Set("Location", "/v1/briefings/"+b.ID)
	response.JSON(w, r, http.StatusOK, b)
}
