// Package config loads service settings from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/skybrief/skybrief/internal/database"
	"github.com/skybrief/skybrief/internal/engine"
	"github.com/skybrief/skybrief/internal/wx"
)

// Station store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	OTelEnabled  bool
	OTLPEndpoint string

	// OTelSampleRatio is the fraction of root traces kept.
	OTelSampleRatio float64

	// JWTSigningKey verifies operator tokens on admin endpoints.
	JWTSigningKey string

	// RateLimitPerMinute bounds requests per client IP.
	RateLimitPerMinute int

	// StationStore selects the station directory backend.
	StationStore string
	SQLitePath   string
	Database     database.Config

	// PubSubProjectID enables alert publishing when set.
	PubSubProjectID  string
	PubSubAlertTopic string

	Engine engine.Config
}

// LoadDotEnv loads variables from the given .env files (default ".env") into
// the environment, then calls Load. Variables already set take precedence and
// missing files are ignored.
func LoadDotEnv(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return Load()
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	l := &loader{}
	defaults := engine.DefaultConfig()

	cfg := &Config{
		Port:               l.str("APP_PORT", "8080"),
		Env:                l.str("APP_ENV", "development"),
		LogLevel:           strings.ToLower(l.str("LOG_LEVEL", "info")),
		OTelEnabled:        l.boolean("OTEL_ENABLED", false),
		OTLPEndpoint:       l.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelSampleRatio:    l.float("OTEL_SAMPLE_RATIO", 1),
		JWTSigningKey:      os.Getenv("JWT_SIGNING_KEY"),
		RateLimitPerMinute: l.integer("RATE_LIMIT_PER_MINUTE", 120),
		StationStore:       strings.ToLower(l.str("STATION_STORE", StoreMemory)),
		SQLitePath:         l.str("STATION_DB_PATH", "./data/stations.db"),
		PubSubProjectID:    os.Getenv("PUBSUB_PROJECT_ID"),
		PubSubAlertTopic:   l.str("PUBSUB_ALERT_TOPIC", "briefing-alerts"),
	}
	if cfg.StationStore == StorePostgres {
		cfg.Database = database.ConfigFromEnv()
	}

	e := defaults
	e.Sources = l.list("WX_SOURCES", defaults.Sources)
	e.PrimaryURL = os.Getenv("WX_PRIMARY_URL")
	e.BackupURL = os.Getenv("WX_BACKUP_URL")
	e.Retry.AttemptTimeout = l.duration("WX_ATTEMPT_TIMEOUT", defaults.Retry.AttemptTimeout)
	e.Retry.MaxRetries = uint64(l.integer("WX_MAX_RETRIES", int(defaults.Retry.MaxRetries))) //nolint:gosec // validated non-negative below
	e.Retry.InitialInterval = l.duration("WX_RETRY_INITIAL_INTERVAL", defaults.Retry.InitialInterval)
	e.Retry.MaxInterval = l.duration("WX_RETRY_MAX_INTERVAL", defaults.Retry.MaxInterval)
	e.Retry.BreakerTimeout = l.duration("WX_BREAKER_TIMEOUT", defaults.Retry.BreakerTimeout)
	e.TTL = map[wx.ProductKind]time.Duration{
		wx.KindObservation: l.duration("WX_TTL_OBSERVATION", defaults.TTL[wx.KindObservation]),
		wx.KindForecast:    l.duration("WX_TTL_FORECAST", defaults.TTL[wx.KindForecast]),
	}
	e.StaleIfError = l.duration("WX_STALE_IF_ERROR", 0)
	e.SyntheticBucket = l.duration("WX_SYNTHETIC_BUCKET", defaults.SyntheticBucket)
	e.SyntheticTTL = l.duration("WX_SYNTHETIC_TTL", defaults.SyntheticTTL)
	e.DisableSynthetic = !l.boolean("WX_SYNTHETIC_ENABLED", true)

	e.Thresholds.LIFRCeilingFt = l.integer("THRESHOLD_LIFR_CEILING_FT", defaults.Thresholds.LIFRCeilingFt)
	e.Thresholds.LIFRVisibilitySM = l.float("THRESHOLD_LIFR_VISIBILITY_SM", defaults.Thresholds.LIFRVisibilitySM)
	e.Thresholds.IFRCeilingFt = l.integer("THRESHOLD_IFR_CEILING_FT", defaults.Thresholds.IFRCeilingFt)
	e.Thresholds.IFRVisibilitySM = l.float("THRESHOLD_IFR_VISIBILITY_SM", defaults.Thresholds.IFRVisibilitySM)
	e.Thresholds.MVFRCeilingFt = l.integer("THRESHOLD_MVFR_CEILING_FT", defaults.Thresholds.MVFRCeilingFt)
	e.Thresholds.MVFRVisibilitySM = l.float("THRESHOLD_MVFR_VISIBILITY_SM", defaults.Thresholds.MVFRVisibilitySM)
	e.Thresholds.GustSpreadKt = l.integer("THRESHOLD_GUST_SPREAD_KT", defaults.Thresholds.GustSpreadKt)
	e.Thresholds.SustainedWindKt = l.integer("THRESHOLD_SUSTAINED_WIND_KT", defaults.Thresholds.SustainedWindKt)

	e.Briefing.SearchRadiusNM = l.float("BRIEFING_SEARCH_RADIUS_NM", defaults.Briefing.SearchRadiusNM)
	e.Briefing.Concurrency = l.integer("BRIEFING_CONCURRENCY", defaults.Briefing.Concurrency)
	e.Briefing.SampleIntervalNM = l.float("BRIEFING_SAMPLE_INTERVAL_NM", defaults.Briefing.SampleIntervalNM)
	e.Briefing.MaxWaypoints = l.integer("BRIEFING_MAX_WAYPOINTS", defaults.Briefing.MaxWaypoints)
	cfg.Engine = e

	if err := errors.Join(l.errs...); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid LOG_LEVEL: %s", c.LogLevel)
	}
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid APP_PORT: %s", c.Port)
	}
	switch c.StationStore {
	case StoreMemory, StoreSQLite, StorePostgres:
	default:
		return fmt.Errorf("invalid STATION_STORE: %s", c.StationStore)
	}
	if c.StationStore == StoreSQLite && c.SQLitePath == "" {
		return errors.New("STATION_DB_PATH is required for the sqlite station store")
	}
	if c.OTelSampleRatio > 1 {
		return fmt.Errorf("invalid OTEL_SAMPLE_RATIO: %g", c.OTelSampleRatio)
	}
	if c.RateLimitPerMinute <= 0 {
		return errors.New("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.Env == "production" && c.JWTSigningKey == "" {
		return errors.New("JWT_SIGNING_KEY is required in production")
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	return nil
}

// loader reads typed values and collects parse errors.
type loader struct {
	errs []error
}

func (l *loader) str(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func (l *loader) list(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (l *loader) integer(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 {
		l.errs = append(l.errs, fmt.Errorf("invalid %s: %q", key, v))
		return fallback
	}
	return i
}

func (l *loader) float(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		l.errs = append(l.errs, fmt.Errorf("invalid %s: %q", key, v))
		return fallback
	}
	return f
}

func (l *loader) boolean(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s: %q", key, v))
		return fallback
	}
	return b
}

func (l *loader) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		l.errs = append(l.errs, fmt.Errorf("invalid %s: %q", key, v))
		return fallback
	}
	return d
}
