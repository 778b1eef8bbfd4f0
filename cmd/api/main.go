// Package main provides the entrypoint for the SkyBrief API server.
package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/skybrief/skybrief/internal/api"
	"github.com/skybrief/skybrief/internal/api/handler"
	"github.com/skybrief/skybrief/internal/api/middleware"
	"github.com/skybrief/skybrief/internal/auth"
	"github.com/skybrief/skybrief/internal/briefing"
	"github.com/skybrief/skybrief/internal/config"
	"github.com/skybrief/skybrief/internal/database"
	"github.com/skybrief/skybrief/internal/engine"
	"github.com/skybrief/skybrief/internal/notify"
	"github.com/skybrief/skybrief/internal/observability"
	"github.com/skybrief/skybrief/internal/station"
	"github.com/skybrief/skybrief/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const devSigningKey = "local-dev-signing-key-change-in-production"

func main() {
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", telemetry.DefaultServiceName).
		Str("version", Version).
		Logger()

	cfg, err := config.LoadDotEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Msg("starting SkyBrief API")

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    telemetry.DefaultServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
		SampleRatio:    cfg.OTelSampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()
	if cfg.OTelEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Float64("sample_ratio", cfg.OTelSampleRatio).
			Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize HTTP metrics")
	}

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				log.Error().Err(err).Msg("close failed")
			}
		}
	}()

	stations, readyChecks, err := openStations(ctx, cfg, log, &closers)
	if err != nil {
		log.Error().Err(err).Str("store", cfg.StationStore).Msg("failed to open station directory")
		return
	}

	var sink briefing.AlertSink
	if cfg.PubSubProjectID != "" {
		topic, err := notify.NewPubSubTopic(ctx, notify.PubSubConfig{
			ProjectID: cfg.PubSubProjectID,
			TopicName: cfg.PubSubAlertTopic,
			Logger:    log,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to create alert publisher")
			return
		}
		closers = append(closers, topic)
		sink = notify.NewAlertPublisher(notify.PublisherConfig{
			Topic:  topic,
			Logger: log,
		})
	} else {
		log.Info().Msg("PUBSUB_PROJECT_ID not set, briefing alerts are not published")
	}

	eng, err := engine.New(cfg.Engine, engine.Options{
		Stations: stations,
		Metrics:  observability.NewMetrics(),
		Sink:     sink,
		Logger:   log,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to build engine")
		return
	}
	log.Info().
		Strs("sources", cfg.Engine.Sources).
		Bool("synthetic", !cfg.Engine.DisableSynthetic).
		Msg("engine initialized")

	signingKey := cfg.JWTSigningKey
	if signingKey == "" {
		signingKey = devSigningKey
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		ServiceName: telemetry.DefaultServiceName,
		Logger:      log,
		Engine:      eng,
		Tokens:      auth.NewTokenService(auth.TokenConfig{SigningKey: signingKey}),
		HTTPMetrics: httpMetrics,
		Limits:      middleware.LimitsPerMinute(cfg.RateLimitPerMinute),
		RequireTLS:  cfg.Env == "production",
		ReadyChecks: readyChecks,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}

// openStations opens the configured station directory. Database-backed
// stores also gate readiness on their connection.
func openStations(ctx context.Context, cfg *config.Config, log zerolog.Logger, closers *[]io.Closer) (station.Repository, map[string]handler.ReadyCheck, error) {
	switch cfg.StationStore {
	case config.StoreSQLite:
		repo, err := station.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		*closers = append(*closers, repo)
		log.Info().Str("path", cfg.SQLitePath).Msg("sqlite station directory opened")
		return repo, map[string]handler.ReadyCheck{"stations": repo.Ping}, nil

	case config.StorePostgres:
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		*closers = append(*closers, closerFunc(func() error { pool.Close(); return nil }))
		repo := station.NewPostgresRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, nil, err
		}
		log.Info().
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Database).
			Msg("database connected")
		return repo, map[string]handler.ReadyCheck{"stations": repo.Ping}, nil

	default:
		return station.NewDefaultRepository(), nil, nil
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
