package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/skybrief/skybrief/internal/api/models"
	"github.com/skybrief/skybrief/internal/api/response"
	"github.com/skybrief/skybrief/internal/engine"
	"github.com/skybrief/skybrief/internal/wx"
)

// StationHandler serves the station directory and per-station weather.
type StationHandler struct {
	engine *engine.Engine
	logger zerolog.Logger
}

// NewStationHandler creates a StationHandler.
func NewStationHandler(e *engine.Engine, logger zerolog.Logger) *StationHandler {
	return &StationHandler{engine: e, logger: logger}
}

// List handles GET /v1/stations.
func (h *StationHandler) List(w http.ResponseWriter, r *http.Request) {
	stations, err := h.engine.Stations().List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("listing stations")
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{
		"stations": stations,
		"count":    len(stations),
	})
}

// Get handles GET /v1/stations/{stationId}.
func (h *StationHandler) Get(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.Stations().Get(r.Context(), stationParam(r))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, st)
}

// Weather handles GET /v1/stations/{stationId}/weather?product=. The product
// defaults to the current observation.
func (h *StationHandler) Weather(w http.ResponseWriter, r *http.Request) {
	kind := wx.KindObservation
	if p := r.URL.Query().Get("product"); p != "" {
		var err error
		if kind, err = wx.ParseProductKind(p); err != nil {
			response.FromError(w, r, err)
			return
		}
	}

	stationID := stationParam(r)
	entry, err := h.engine.FetchClassified(r.Context(), stationID, kind)
	if err != nil {
		h.logger.Warn().Err(err).
			Str("station", stationID).
			Str("product", string(kind)).
			Msg("station weather unavailable")
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewWeatherResponse(entry))
}

func stationParam(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "stationId")))
}
