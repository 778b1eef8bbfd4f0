// Package api wires the HTTP surface of the briefing engine.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/skybrief/skybrief/internal/api/handler"
	"github.com/skybrief/skybrief/internal/api/middleware"
	"github.com/skybrief/skybrief/internal/auth"
	"github.com/skybrief/skybrief/internal/engine"
	"github.com/skybrief/skybrief/internal/telemetry"
)

// DefaultMaxBodyBytes caps request bodies. Briefings with long notice lists
// are the largest legitimate payloads.
const DefaultMaxBodyBytes = 1 << 20

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	ServiceName string
	Logger      zerolog.Logger

	Engine *engine.Engine

	// Tokens verifies operator tokens on admin endpoints.
	Tokens middleware.TokenValidator

	// HTTPMetrics records OpenTelemetry request metrics when set.
	HTTPMetrics *middleware.Metrics

	// Gatherer backs GET /metrics. Default: the Prometheus default registry.
	Gatherer prometheus.Gatherer

	Limits       middleware.Limits
	RequireTLS   bool
	MaxBodyBytes int64

	// ReadyChecks gate the readiness probe.
	ReadyChecks map[string]handler.ReadyCheck

	Clock clockwork.Clock
}

// NewRouter creates a chi router with every API route configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	if cfg.ServiceName == "" {
		cfg.ServiceName = telemetry.DefaultServiceName
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Limits.Standard.RequestLimit == 0 {
		cfg.Limits = middleware.LimitsPerMinute(120)
	}

	r := chi.NewRouter()

	// Order matters: the request ID must exist before tracing and logging.
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(cfg.ServiceName))
	if cfg.HTTPMetrics != nil {
		r.Use(cfg.HTTPMetrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Engine:    cfg.Engine,
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Checks:    cfg.ReadyChecks,
		Clock:     cfg.Clock,
		Logger:    cfg.Logger,
	})
	reportHandler := handler.NewReportHandler(cfg.Engine, cfg.Logger)
	stationHandler := handler.NewStationHandler(cfg.Engine, cfg.Logger)
	briefingHandler := handler.NewBriefingHandler(cfg.Engine, cfg.Logger)
	adminHandler := handler.NewAdminHandler(cfg.Engine, cfg.Clock, cfg.Logger)

	standardRateLimit := middleware.RateLimitByIP(cfg.Limits.Standard)
	expensiveRateLimit := middleware.RateLimitByIP(cfg.Limits.Expensive)
	requireJSON := middleware.RequireJSON(cfg.MaxBodyBytes)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Group(func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Use(requireJSON)
			r.Post("/reports:decode", reportHandler.Decode)
			r.Post("/reports:classify", reportHandler.ClassifyBatch)
			r.Post("/notams:extract", reportHandler.ExtractNotam)
		})

		r.Route("/stations", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/", stationHandler.List)
			r.Route("/{stationId}", func(r chi.Router) {
				r.Get("/", stationHandler.Get)
				r.Get("/weather", stationHandler.Weather)
			})
		})

		// Briefings fan out to many fetches.
		r.With(expensiveRateLimit, requireJSON).Post("/briefings", briefingHandler.Create)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.OperatorAuth(cfg.Tokens, auth.ScopeCacheAdmin))
			r.Use(middleware.RateLimitByOperator(cfg.Limits.Admin))
			r.Use(requireJSON)
			r.Post("/cache:invalidate", adminHandler.InvalidateCache)
		})
	})

	return r
}
