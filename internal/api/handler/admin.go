package handler

import (
	"net/http"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/skybrief/skybrief/internal/api/middleware"
	"github.com/skybrief/skybrief/internal/api/models"
	"github.com/skybrief/skybrief/internal/api/response"
	"github.com/skybrief/skybrief/internal/engine"
)

// AdminHandler serves operator endpoints.
type AdminHandler struct {
	engine *engine.Engine
	clock  clockwork.Clock
	logger zerolog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(e *engine.Engine, clock clockwork.Clock, logger zerolog.Logger) *AdminHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AdminHandler{engine: e, clock: clock, logger: logger}
}

// InvalidateCache handles POST /v1/admin/cache:invalidate. An empty body
// flushes every entry.
func (h *AdminHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	var req models.InvalidateRequest
	if r.ContentLength != 0 {
		if !response.DecodeJSON(w, r, &req) {
			return
		}
	}
	stationID := strings.ToUpper(strings.TrimSpace(req.StationID))
	operator := middleware.GetOperator(r.Context())

	n := h.engine.Invalidate(stationID)

	h.logger.Info().
		Str("operator", operator).
		Str("station", stationID).
		Int("invalidated", n).
		Msg("cache invalidated")

	response.JSON(w, r, http.StatusOK, models.NewInvalidateResponse(stationID, n, operator, h.clock.Now()))
}
