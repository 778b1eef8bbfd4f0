// Package engine is the single entry point to the weather engine. It wires
// the decoders, classifier, source aggregator, station directory, NOTAM
// extractor and route briefing service from one Config.
package engine

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/skybrief/skybrief/internal/briefing"
	"github.com/skybrief/skybrief/internal/classify"
	"github.com/skybrief/skybrief/internal/decode"
	"github.com/skybrief/skybrief/internal/notam"
	"github.com/skybrief/skybrief/internal/observability"
	"github.com/skybrief/skybrief/internal/provider/resilience"
	"github.com/skybrief/skybrief/internal/source"
	"github.com/skybrief/skybrief/internal/source/aviationweather"
	"github.com/skybrief/skybrief/internal/station"
	"github.com/skybrief/skybrief/internal/wx"
)

type sourceFactory func(cfg Config, logger zerolog.Logger) source.Source

var sourceFactories = map[string]sourceFactory{
	aviationweather.SourceName: func(cfg Config, logger zerolog.Logger) source.Source {
		return aviationweather.NewClient(aviationweather.ClientConfig{
			BaseURL: cfg.PrimaryURL,
			Logger:  logger,
		})
	},
	aviationweather.BackupSourceName: func(cfg Config, logger zerolog.Logger) source.Source {
		return aviationweather.NewStationFileClient(aviationweather.StationFileConfig{
			BaseURL: cfg.BackupURL,
			Logger:  logger,
		})
	},
}

// Options carries the collaborators of an Engine. All are optional.
type Options struct {
	// Stations is the station directory. Default: the built-in directory.
	Stations station.Repository

	// Sources replaces the sources named in Config.Sources.
	Sources []source.Source

	// Registry receives the health of every source.
	Registry *resilience.Registry

	// Metrics receives engine counters.
	Metrics *observability.Metrics

	// Sink receives briefings that raised alerts.
	Sink briefing.AlertSink

	// Clock drives cache TTLs, synthetic buckets and briefing times.
	Clock clockwork.Clock

	// Logger for engine operations.
	Logger zerolog.Logger
}

// Engine decodes, classifies, fetches and briefs aviation weather.
type Engine struct {
	classifier *classify.Classifier
	extractor  *notam.Extractor
	aggregator *source.Aggregator
	briefer    *briefing.Service
	stations   station.Repository
	registry   *resilience.Registry
}

// Decoded is a decoded and classified record.
type Decoded struct {
	Record     wx.Record           `json:"record"`
	Assessment classify.Assessment `json:"assessment"`
}

// New builds an Engine from cfg.
func New(cfg Config, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	stations := opts.Stations
	if stations == nil {
		stations = station.NewDefaultRepository()
	}
	registry := opts.Registry
	if registry == nil {
		registry = resilience.NewRegistry()
	}

	sources := opts.Sources
	if sources == nil {
		for _, name := range cfg.Sources {
			sources = append(sources, sourceFactories[name](cfg, opts.Logger.With().Str("source", name).Logger()))
		}
	}

	classifier := classify.New(cfg.Thresholds)
	extractor := notam.NewExtractor(station.NewRunwayCounter(stations))

	aggregator := source.New(source.Config{
		Sources:          sources,
		Policy:           cfg.policy(),
		Registry:         registry,
		TTL:              cfg.TTL,
		StaleIfError:     cfg.StaleIfError,
		Synthetic:        source.Synthetic{Bucket: cfg.SyntheticBucket},
		SyntheticTTL:     cfg.SyntheticTTL,
		DisableSynthetic: cfg.DisableSynthetic,
		Classifier:       classifier,
		Clock:            opts.Clock,
		Logger:           opts.Logger,
		Metrics:          opts.Metrics,
	})

	briefer := briefing.NewService(briefing.ServiceConfig{
		Fetcher:          aggregator,
		Stations:         stations,
		Classifier:       classifier,
		Extractor:        extractor,
		SearchRadiusNM:   cfg.Briefing.SearchRadiusNM,
		Concurrency:      cfg.Briefing.Concurrency,
		SampleIntervalNM: cfg.Briefing.SampleIntervalNM,
		MaxWaypoints:     cfg.Briefing.MaxWaypoints,
		Sink:             opts.Sink,
		Clock:            opts.Clock,
		Logger:           opts.Logger,
		Metrics:          opts.Metrics,
	})

	return &Engine{
		classifier: classifier,
		extractor:  extractor,
		aggregator: aggregator,
		briefer:    briefer,
		stations:   stations,
		registry:   registry,
	}, nil
}

// Decode decodes raw text of the given kind. Notices are extracted with the
// station directory's runway counts.
func (e *Engine) Decode(kind wx.ProductKind, raw string) (wx.Record, error) {
	if kind == wx.KindNotice {
		return e.extractor.Extract(raw)
	}
	return decode.Decode(kind, raw)
}

// Classify assesses a decoded record.
func (e *Engine) Classify(r wx.Record) (classify.Assessment, error) {
	return e.classifier.Classify(r)
}

// DecodeAndClassify decodes raw text and assesses the result. Group issues
// are kept on the record, not returned as an error.
func (e *Engine) DecodeAndClassify(kind wx.ProductKind, raw string) (*Decoded, error) {
	record, err := e.Decode(kind, raw)
	if err != nil {
		return nil, err
	}
	a, err := e.Classify(record)
	if err != nil {
		return nil, err
	}
	return &Decoded{Record: record, Assessment: a}, nil
}

// MaxBatch bounds the number of reports ClassifyBatch accepts.
const MaxBatch = 100

// BatchItem is one report of a batch. ID is the caller's label, usually the
// station.
type BatchItem struct {
	ID  string
	Raw string
}

// BatchResult is the outcome for one BatchItem. Exactly one of Decoded and
// Err is set.
type BatchResult struct {
	ID      string
	Decoded *Decoded
	Err     error
}

// ClassifyBatch decodes and classifies every item as kind. A failing item
// does not fail the batch.
func (e *Engine) ClassifyBatch(kind wx.ProductKind, items []BatchItem) ([]BatchResult, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: batch is empty", wx.ErrValidation)
	}
	if len(items) > MaxBatch {
		return nil, fmt.Errorf("%w: batch has %d reports, limit is %d", wx.ErrValidation, len(items), MaxBatch)
	}
	results := make([]BatchResult, len(items))
	for i, item := range items {
		decoded, err := e.DecodeAndClassify(kind, item.Raw)
		results[i] = BatchResult{ID: item.ID, Decoded: decoded, Err: err}
	}
	return results, nil
}

// FetchClassified returns the cached or freshly fetched product for a station.
func (e *Engine) FetchClassified(ctx context.Context, stationID string, kind wx.ProductKind) (*source.Entry, error) {
	return e.aggregator.FetchClassified(ctx, stationID, kind)
}

// Brief builds a route briefing.
func (e *Engine) Brief(ctx context.Context, req briefing.Request) (*briefing.RouteBriefing, error) {
	return e.briefer.Brief(ctx, req)
}

// ExtractNotam extracts a structured notice from NOTAM text.
func (e *Engine) ExtractNotam(raw string) (*wx.Notam, error) {
	return e.extractor.Extract(raw)
}

// Invalidate drops cached products for a station, or all when empty.
func (e *Engine) Invalidate(stationID string) int {
	return e.aggregator.Invalidate(stationID)
}

// CacheStats returns cache statistics.
func (e *Engine) CacheStats() source.Stats {
	return e.aggregator.Stats()
}

// SourceHealth returns the health of every upstream source.
func (e *Engine) SourceHealth() []*resilience.SourceHealth {
	return e.registry.GetAllHealth()
}

// Stations returns the station directory.
func (e *Engine) Stations() station.Repository {
	return e.stations
}

// Thresholds returns the classifier's threshold table.
func (e *Engine) Thresholds() classify.Thresholds {
	return e.classifier.Thresholds()
}
