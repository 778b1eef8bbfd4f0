package engine

import (
	"fmt"
	"time"

	"github.com/skybrief/skybrief/internal/briefing"
	"github.com/skybrief/skybrief/internal/classify"
	"github.com/skybrief/skybrief/internal/provider/resilience"
	"github.com/skybrief/skybrief/internal/source"
	"github.com/skybrief/skybrief/internal/source/aviationweather"
	"github.com/skybrief/skybrief/internal/wx"
)

// Config is the single configuration of an Engine.
type Config struct {
	// Thresholds is the classifier's threshold table.
	Thresholds classify.Thresholds

	// TTL overrides the cache lifetime per product kind.
	TTL map[wx.ProductKind]time.Duration

	// Retry is the per-source resilience policy.
	Retry RetryConfig

	// Sources names the upstream sources in priority order.
	Sources []string

	// PrimaryURL and BackupURL override the upstream base URLs.
	PrimaryURL string
	BackupURL  string

	// SyntheticBucket is the time bucket seeding the synthetic generator.
	SyntheticBucket time.Duration

	// SyntheticTTL caps the cache lifetime of synthetic entries.
	SyntheticTTL time.Duration

	// DisableSynthetic turns off the synthetic fallback tier.
	DisableSynthetic bool

	// StaleIfError serves expired entries for this long when every source fails.
	StaleIfError time.Duration

	// Briefing holds route briefing settings.
	Briefing BriefingConfig
}

// RetryConfig configures per-source retries and circuit breaking.
type RetryConfig struct {
	AttemptTimeout  time.Duration
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// BreakerTimeout is how long a tripped breaker stays open.
	BreakerTimeout time.Duration
}

// BriefingConfig configures route briefings.
type BriefingConfig struct {
	SearchRadiusNM   float64
	Concurrency      int
	SampleIntervalNM float64
	MaxWaypoints     int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	policy := resilience.DefaultPolicy("")
	return Config{
		Thresholds: classify.DefaultThresholds(),
		TTL:        source.DefaultTTLs(),
		Retry: RetryConfig{
			AttemptTimeout:  policy.AttemptTimeout,
			MaxRetries:      policy.MaxRetries,
			InitialInterval: policy.InitialInterval,
			MaxInterval:     policy.MaxInterval,
			BreakerTimeout:  policy.CircuitBreaker.Timeout,
		},
		Sources:         []string{aviationweather.SourceName, aviationweather.BackupSourceName},
		SyntheticBucket: source.DefaultSyntheticBucket,
		SyntheticTTL:    time.Minute,
		Briefing: BriefingConfig{
			SearchRadiusNM:   briefing.DefaultSearchRadiusNM,
			Concurrency:      briefing.DefaultConcurrency,
			SampleIntervalNM: briefing.DefaultSampleIntervalNM,
			MaxWaypoints:     briefing.DefaultMaxWaypoints,
		},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	for kind, ttl := range c.TTL {
		if ttl <= 0 {
			return fmt.Errorf("%w: ttl for %s must be positive", wx.ErrValidation, kind)
		}
	}
	seen := make(map[string]bool, len(c.Sources))
	for _, name := range c.Sources {
		if _, ok := sourceFactories[name]; !ok {
			return fmt.Errorf("%w: unknown source %q", wx.ErrValidation, name)
		}
		if seen[name] {
			return fmt.Errorf("%w: source %q listed twice", wx.ErrValidation, name)
		}
		seen[name] = true
	}
	if c.Retry.AttemptTimeout < 0 || c.Retry.InitialInterval < 0 || c.Retry.MaxInterval < 0 {
		return fmt.Errorf("%w: retry durations must not be negative", wx.ErrValidation)
	}
	if c.SyntheticBucket < 0 || c.SyntheticTTL < 0 || c.StaleIfError < 0 {
		return fmt.Errorf("%w: synthetic and stale durations must not be negative", wx.ErrValidation)
	}
	if c.Briefing.SearchRadiusNM < 0 || c.Briefing.Concurrency < 0 || c.Briefing.MaxWaypoints < 0 {
		return fmt.Errorf("%w: briefing settings must not be negative", wx.ErrValidation)
	}
	return nil
}

func (c Config) policy() *resilience.Policy {
	cb := resilience.DefaultCircuitBreakerConfig("")
	if c.Retry.BreakerTimeout > 0 {
		cb.Timeout = c.Retry.BreakerTimeout
	}
	return &resilience.Policy{
		AttemptTimeout:  c.Retry.AttemptTimeout,
		MaxRetries:      c.Retry.MaxRetries,
		InitialInterval: c.Retry.InitialInterval,
		MaxInterval:     c.Retry.MaxInterval,
		CircuitBreaker:  &cb,
	}
}
