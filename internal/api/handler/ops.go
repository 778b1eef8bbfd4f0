package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/skybrief/skybrief/internal/api/models"
	"github.com/skybrief/skybrief/internal/api/response"
	"github.com/skybrief/skybrief/internal/engine"
)

// ReadyCheck reports whether a dependency can serve traffic.
type ReadyCheck func(ctx context.Context) error

// OpsHandler serves the operational endpoints.
type OpsHandler struct {
	engine    *engine.Engine
	version   string
	buildTime string
	checks    map[string]ReadyCheck
	clock     clockwork.Clock
	logger    zerolog.Logger
}

// OpsConfig holds configuration for the ops handler.
type OpsConfig struct {
	Engine    *engine.Engine
	Version   string
	BuildTime string

	// Checks run on every readiness probe, keyed by dependency name.
	Checks map[string]ReadyCheck

	Clock  clockwork.Clock
	Logger zerolog.Logger
}

// NewOpsHandler creates an OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &OpsHandler{
		engine:    cfg.Engine,
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		checks:    cfg.Checks,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
}

// HealthCheck handles GET /v1/ops/health, the liveness probe.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.clock.Now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. Upstream sources do not gate
// readiness because the synthetic tier keeps the engine answering.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := models.HealthStatusOK
	details := make(map[string]any, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn().Err(err).Str("dependency", name).Msg("readiness check failed")
			details[name] = err.Error()
			status = models.HealthStatusFail
			continue
		}
		details[name] = models.HealthStatusOK
	}

	code := http.StatusOK
	if status != models.HealthStatusOK {
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, r, code, models.Health{
		Status:  status,
		Time:    models.Timestamp(h.clock.Now()),
		Details: details,
	})
}

// SystemStatus handles GET /v1/ops/status: per-source health and cache
// statistics.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	health := h.engine.SourceHealth()
	sources := make([]models.SourceStatus, 0, len(health))
	for _, sh := range health {
		sources = append(sources, models.NewSourceStatus(sh))
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })

	response.JSON(w, r, http.StatusOK, models.SystemStatus{
		Status:  models.Rollup(sources),
		Time:    models.Timestamp(h.clock.Now()),
		Version: h.version,
		Sources: sources,
		Cache:   h.engine.CacheStats(),
	})
}
