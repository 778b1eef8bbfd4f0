package source

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skybrief/skybrief/internal/classify"
	"github.com/skybrief/skybrief/internal/decode"
	"github.com/skybrief/skybrief/internal/observability"
	"github.com/skybrief/skybrief/internal/provider/resilience"
	"github.com/skybrief/skybrief/internal/telemetry"
	"github.com/skybrief/skybrief/internal/wx"
)

var stationPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{3}$`)

// Config holds configuration for the aggregator.
type Config struct {
	// Sources are tried in priority order. The first is the primary; the
	// rest are backups.
	Sources []Source

	// Policy is the resilience template applied to every source. Each
	// source gets its own breaker named after it.
	// Default: resilience.DefaultPolicy
	Policy *resilience.Policy

	// Registry, when set, tracks the health of every source.
	Registry *resilience.Registry

	// TTL is the cache lifetime per product kind.
	// Default: DefaultTTLs
	TTL map[wx.ProductKind]time.Duration

	// StaleIfError serves an expired entry for up to this long past its
	// fetch time when every source fails. Zero disables it.
	StaleIfError time.Duration

	// Synthetic seeds the final fallback tier.
	Synthetic Synthetic

	// SyntheticTTL caps the lifetime of synthetic entries so upstream
	// sources are retried soon.
	// Default: 1 minute
	SyntheticTTL time.Duration

	// DisableSynthetic turns the synthetic tier off; exhausted fetches then
	// fail with wx.ErrSourceUnavailable.
	DisableSynthetic bool

	// Classifier assesses every decoded record.
	// Default: classify.New(classify.DefaultThresholds())
	Classifier *classify.Classifier

	// Clock drives TTLs and synthetic time buckets.
	// Default: real clock
	Clock clockwork.Clock

	// Logger for aggregator operations.
	Logger zerolog.Logger

	// Metrics, when set, receives cache and source counters.
	Metrics *observability.Metrics
}

// Aggregator serves station products from cache, upstream sources, or the
// synthetic generator, in that order.
type Aggregator struct {
	sources    []Source
	executors  []*resilience.Executor[fetched]
	ttl        map[wx.ProductKind]time.Duration
	stale      time.Duration
	synthetic  Synthetic
	synthTTL   time.Duration
	noSynth    bool
	classifier *classify.Classifier
	clock      clockwork.Clock
	logger     zerolog.Logger
	metrics    *observability.Metrics
	tracer     trace.Tracer

	cache   sync.Map // Key -> *Entry
	flights *flightGroup
}

type fetched struct {
	raw    wx.RawReport
	record wx.Record
}

// New creates an aggregator.
func New(cfg Config) *Aggregator {
	ttl := DefaultTTLs()
	for kind, d := range cfg.TTL {
		ttl[kind] = d
	}

	classifier := cfg.Classifier
	if classifier == nil {
		classifier = classify.New(classify.DefaultThresholds())
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	synthTTL := cfg.SyntheticTTL
	if synthTTL == 0 {
		synthTTL = time.Minute
	}

	a := &Aggregator{
		sources:    cfg.Sources,
		ttl:        ttl,
		stale:      cfg.StaleIfError,
		synthetic:  cfg.Synthetic,
		synthTTL:   synthTTL,
		noSynth:    cfg.DisableSynthetic,
		classifier: classifier,
		clock:      clock,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		tracer:     telemetry.Tracer("github.com/skybrief/skybrief/internal/source"),
		flights:    newFlightGroup(),
	}

	for _, src := range cfg.Sources {
		policy := resilience.DefaultPolicy(src.Name())
		if cfg.Policy != nil {
			policy = *cfg.Policy
		}
		policy.Name = src.Name()
		policy.Registry = cfg.Registry
		policy.OnAttempt = a.attemptObserver(src.Name())
		a.executors = append(a.executors, resilience.NewExecutor[fetched](policy))
	}
	return a
}

// Fetch returns the entry for station and kind: a live cache entry when one
// exists, otherwise the result of a single shared fetch through the fallback
// chain.
func (a *Aggregator) Fetch(ctx context.Context, station string, kind wx.ProductKind) (*Entry, error) {
	key, err := a.key(station, kind)
	if err != nil {
		return nil, err
	}

	if entry, ok := a.lookup(key); ok && entry.FreshAt(a.clock.Now()) {
		a.observeLookup(key, "hit")
		return entry, nil
	}
	a.observeLookup(key, "miss")

	entry, shared, err := a.flights.Do(ctx, key, func(ctx context.Context) (*Entry, error) {
		return a.refresh(ctx, key)
	})
	if shared && a.metrics != nil {
		a.metrics.SharedFetches.Inc()
	}
	return entry, err
}

// FetchClassified is Fetch for callers that need the assessment; every
// entry carries one.
func (a *Aggregator) FetchClassified(ctx context.Context, station string, kind wx.ProductKind) (*Entry, error) {
	return a.Fetch(ctx, station, kind)
}

// Invalidate drops cached entries for station, or every entry when station
// is empty. It returns the number of entries removed.
func (a *Aggregator) Invalidate(station string) int {
	station = strings.ToUpper(strings.TrimSpace(station))
	removed := 0
	a.cache.Range(func(k, _ any) bool {
		if station == "" || k.(Key).Station == station {
			a.cache.Delete(k)
			removed++
		}
		return true
	})
	return removed
}

// Stats returns cache statistics.
func (a *Aggregator) Stats() Stats {
	now := a.clock.Now()
	stats := Stats{ByProvenance: make(map[Provenance]int)}
	stats.InFlight, stats.Waiting = a.flights.inFlight()
	a.cache.Range(func(_, v any) bool {
		e := v.(*Entry)
		stats.Entries++
		if e.FreshAt(now) {
			stats.FreshEntries++
		}
		stats.ByProvenance[e.Provenance]++
		return true
	})
	for _, src := range a.sources {
		stats.Sources = append(stats.Sources, src.Name())
	}
	return stats
}

func (a *Aggregator) key(station string, kind wx.ProductKind) (Key, error) {
	station = strings.ToUpper(strings.TrimSpace(station))
	if !stationPattern.MatchString(station) {
		return Key{}, fmt.Errorf("%w: station identifier %q", wx.ErrValidation, station)
	}
	if !Fetchable(kind) {
		return Key{}, fmt.Errorf("%w: %s cannot be fetched by station", wx.ErrUnsupportedProduct, kind)
	}
	return Key{Station: station, Kind: kind}, nil
}

func (a *Aggregator) lookup(key Key) (*Entry, bool) {
	v, ok := a.cache.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*Entry), true
}

// refresh walks the fallback chain for key. It runs once per flight on a
// context shared by every waiter.
func (a *Aggregator) refresh(ctx context.Context, key Key) (*Entry, error) {
	ctx, span := a.tracer.Start(ctx, "source.refresh", trace.WithAttributes(
		attribute.String("station", key.Station),
		attribute.String("product", string(key.Kind)),
	))
	defer span.End()

	start := a.clock.Now()
	if entry, ok := a.lookup(key); ok && entry.FreshAt(start) {
		return entry, nil
	}

	log := a.logger.With().Str("station", key.Station).Str("product", string(key.Kind)).Logger()

	var (
		failures []string
		errs     []error
	)
	for i, src := range a.sources {
		res, err := a.executors[i].Execute(ctx, func(ctx context.Context) (fetched, error) {
			return a.fetchFrom(ctx, src, key)
		})
		if err == nil {
			provenance := ProvenanceBackup
			if i == 0 {
				provenance = ProvenancePrimary
			}
			entry := a.store(key, res, provenance, src.Name(), a.ttl[key.Kind], failures)
			a.observeFetch(key, entry, start)
			span.SetAttributes(attribute.String("provenance", string(provenance)))
			log.Debug().Str("source", src.Name()).Str("provenance", string(provenance)).Msg("fetched product")
			return entry, nil
		}
		if ctx.Err() != nil {
			span.SetStatus(codes.Error, "cancelled")
			return nil, ctx.Err()
		}

		log.Warn().Err(err).Str("source", src.Name()).Msg("source failed")
		failures = append(failures, src.Name())
		errs = append(errs, &wx.SourceError{Source: src.Name(), Station: key.Station, Kind: key.Kind, Err: err})
	}

	if prev, ok := a.lookup(key); ok && a.stale > 0 && start.Before(prev.FetchedAt.Add(a.stale)) {
		a.observeLookup(key, "stale")
		log.Warn().Time("fetched_at", prev.FetchedAt).Msg("serving stale product, all sources failed")
		stale := *prev
		stale.Stale = true
		return &stale, nil
	}

	// Unknown stations never get a synthetic product.
	if allNotFound(errs) {
		span.SetStatus(codes.Error, "station not found")
		log.Info().Msg("no source knows station")
		return nil, fmt.Errorf("%w: %s: %w", wx.ErrStationNotFound, key, errors.Join(errs...))
	}

	if a.noSynth {
		span.SetStatus(codes.Error, "sources exhausted")
		return nil, fmt.Errorf("%w: %s: %w", wx.ErrSourceUnavailable, key, errors.Join(errs...))
	}

	raw, err := a.synthetic.Generate(key.Station, key.Kind, start)
	if err != nil {
		return nil, err
	}
	record, err := decode.DecodeReport(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: synthetic %s did not decode: %w", wx.ErrSourceUnavailable, key, err)
	}
	ttl := min(a.ttl[key.Kind], a.synthTTL)
	entry := a.store(key, fetched{raw: raw, record: record}, ProvenanceSynthetic, SyntheticName, ttl, failures)
	a.observeFetch(key, entry, start)
	span.SetAttributes(attribute.String("provenance", string(ProvenanceSynthetic)))
	log.Warn().Strs("failed_sources", failures).Msg("all sources failed, serving synthetic product")
	return entry, nil
}

// fetchFrom performs one attempt against src. Responses that do not decode
// as the requested product are permanent failures of that source.
func (a *Aggregator) fetchFrom(ctx context.Context, src Source, key Key) (fetched, error) {
	raw, err := src.FetchRaw(ctx, key.Station, key.Kind)
	if err != nil {
		if errors.Is(err, wx.ErrStationNotFound) {
			return fetched{}, resilience.Permanent(err)
		}
		return fetched{}, err
	}
	raw.Kind = key.Kind
	if raw.StationID == "" {
		raw.StationID = key.Station
	}
	if raw.ReceivedAt.IsZero() {
		raw.ReceivedAt = a.clock.Now()
	}

	record, err := decode.DecodeReport(raw)
	if err != nil {
		return fetched{}, resilience.Permanent(fmt.Errorf("decoding %s response: %w", src.Name(), err))
	}
	if record.StationID() != key.Station {
		return fetched{}, resilience.Permanent(fmt.Errorf("%w: %s returned %s for %s", wx.ErrValidation, src.Name(), record.StationID(), key.Station))
	}
	return fetched{raw: raw, record: record}, nil
}

func (a *Aggregator) store(key Key, f fetched, provenance Provenance, source string, ttl time.Duration, failures []string) *Entry {
	now := a.clock.Now()
	assessment, err := a.classifier.Classify(f.record)
	if err != nil {
		a.logger.Warn().Err(err).Str("station", key.Station).Msg("classification failed")
	}
	entry := &Entry{
		Key:        key,
		Raw:        f.raw,
		Record:     f.record,
		Assessment: assessment,
		FetchedAt:  now,
		ExpiresAt:  now.Add(ttl),
		Provenance: provenance,
		Source:     source,
		Failures:   failures,
	}
	a.cache.Store(key, entry)
	return entry
}

func allNotFound(errs []error) bool {
	if len(errs) == 0 {
		return false
	}
	for _, err := range errs {
		if !errors.Is(err, wx.ErrStationNotFound) {
			return false
		}
	}
	return true
}

func (a *Aggregator) attemptObserver(source string) func(int, error) {
	return func(attempt int, err error) {
		outcome := "success"
		if err != nil {
			outcome = "error"
			a.logger.Debug().Err(err).Str("source", source).Int("attempt", attempt).Msg("source attempt failed")
		}
		if a.metrics != nil {
			a.metrics.SourceAttempts.WithLabelValues(source, outcome).Inc()
		}
	}
}

func (a *Aggregator) observeLookup(key Key, result string) {
	if a.metrics != nil {
		a.metrics.CacheLookups.WithLabelValues(string(key.Kind), result).Inc()
	}
}

func (a *Aggregator) observeFetch(key Key, entry *Entry, start time.Time) {
	if a.metrics == nil {
		return
	}
	a.metrics.Fetches.WithLabelValues(string(key.Kind), string(entry.Provenance)).Inc()
	a.metrics.FetchDuration.WithLabelValues(string(key.Kind)).Observe(a.clock.Since(start).Seconds())
}
