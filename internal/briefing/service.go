package briefing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/skybrief/skybrief/internal/classify"
	"github.com/skybrief/skybrief/internal/decode"
	"github.com/skybrief/skybrief/internal/notam"
	"github.com/skybrief/skybrief/internal/observability"
	"github.com/skybrief/skybrief/internal/source"
	"github.com/skybrief/skybrief/internal/station"
	"github.com/skybrief/skybrief/internal/telemetry"
	"github.com/skybrief/skybrief/internal/wx"
	"github.com/skybrief/skybrief/pkg/polyline"
)

// Defaults for ServiceConfig.
const (
	DefaultSearchRadiusNM   = 50.0
	DefaultConcurrency      = 8
	DefaultSampleIntervalNM = 50.0
	DefaultMaxWaypoints     = 50
	segmentSampleNM         = 10.0
	suppliedSource          = "request"
)

// Fetcher supplies classified station products.
type Fetcher interface {
	FetchClassified(ctx context.Context, station string, kind wx.ProductKind) (*source.Entry, error)
}

// StationLocator resolves waypoints to reporting stations.
type StationLocator interface {
	Get(ctx context.Context, id string) (*station.Station, error)
	Nearest(ctx context.Context, at polyline.Coordinate, radiusNM float64) (*station.Match, error)
}

// AlertSink receives briefings that raised alerts.
type AlertSink interface {
	PublishAlerts(ctx context.Context, b *RouteBriefing) error
}

// ServiceConfig holds configuration for the briefing service.
type ServiceConfig struct {
	// Fetcher supplies station weather (required).
	Fetcher Fetcher

	// Stations resolves waypoints to stations (required).
	Stations StationLocator

	// Classifier grades advisories supplied with a request.
	// Default: classify.New(classify.DefaultThresholds())
	Classifier *classify.Classifier

	// Extractor parses notices supplied with a request.
	// Default: notam.NewExtractor(nil)
	Extractor *notam.Extractor

	// SearchRadiusNM bounds the nearest-station search.
	// Default: 50
	SearchRadiusNM float64

	// Concurrency bounds parallel waypoint fetches.
	// Default: 8
	Concurrency int

	// SampleIntervalNM spaces the waypoints sampled from a polyline.
	// Default: 50
	SampleIntervalNM float64

	// MaxWaypoints bounds the size of a route.
	// Default: 50
	MaxWaypoints int

	// Sink, when set, receives every briefing with alerts.
	Sink AlertSink

	// Clock supplies the briefing time when a request has none.
	Clock clockwork.Clock

	// Logger for service operations.
	Logger zerolog.Logger

	// Metrics, when set, receives briefing counters.
	Metrics *observability.Metrics
}

// Service builds route briefings.
type Service struct {
	fetcher      Fetcher
	stations     StationLocator
	classifier   *classify.Classifier
	extractor    *notam.Extractor
	radiusNM     float64
	concurrency  int
	intervalNM   float64
	maxWaypoints int
	sink         AlertSink
	clock        clockwork.Clock
	logger       zerolog.Logger
	metrics      *observability.Metrics
	tracer       trace.Tracer
}

// NewService creates a new briefing service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		fetcher:      cfg.Fetcher,
		stations:     cfg.Stations,
		classifier:   cfg.Classifier,
		extractor:    cfg.Extractor,
		radiusNM:     cfg.SearchRadiusNM,
		concurrency:  cfg.Concurrency,
		intervalNM:   cfg.SampleIntervalNM,
		maxWaypoints: cfg.MaxWaypoints,
		sink:         cfg.Sink,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		tracer:       telemetry.Tracer("github.com/skybrief/skybrief/internal/briefing"),
	}
	if s.classifier == nil {
		s.classifier = classify.New(classify.DefaultThresholds())
	}
	if s.extractor == nil {
		s.extractor = notam.NewExtractor(nil)
	}
	if s.radiusNM <= 0 {
		s.radiusNM = DefaultSearchRadiusNM
	}
	if s.concurrency <= 0 {
		s.concurrency = DefaultConcurrency
	}
	if s.intervalNM <= 0 {
		s.intervalNM = DefaultSampleIntervalNM
	}
	if s.maxWaypoints <= 0 {
		s.maxWaypoints = DefaultMaxWaypoints
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	return s
}

// Brief resolves, fetches and combines the weather along a route. Waypoints
// whose weather cannot be obtained are reported UNAVAILABLE rather than
// failing the briefing; only invalid input and cancellation return an error.
func (s *Service) Brief(ctx context.Context, req Request) (*RouteBriefing, error) {
	start := s.clock.Now()
	at := req.At
	if at.IsZero() {
		at = start
	}
	at = at.UTC()

	points, err := s.routeWaypoints(req)
	if err != nil {
		return nil, err
	}
	altitudeFt := -1
	if req.Altitude != "" {
		if altitudeFt, err = decode.ParseAltitude(req.Altitude); err != nil {
			return nil, err
		}
	}
	advisories, err := s.parseAdvisories(req.Advisories, at)
	if err != nil {
		return nil, err
	}
	notices, err := s.parseNotices(req.Notices, at)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "briefing.Brief", trace.WithAttributes(
		attribute.Int("waypoints", len(points)),
		attribute.Int("advisories", len(advisories)),
		attribute.Int("notices", len(notices)),
	))
	defer span.End()

	results := make([]WaypointWeather, len(points))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, p := range points {
		g.Go(func() error {
			ww, err := s.briefWaypoint(gctx, p, at)
			if err != nil {
				return err
			}
			results[i] = ww
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := &RouteBriefing{
		ID:          uuid.NewString(),
		Waypoints:   results,
		Notices:     notices,
		Advisories:  advisoryRecords(advisories),
		GeneratedAt: at,
	}
	if altitudeFt >= 0 {
		b.AltitudeFt = altitudeFt
	}
	attachNotices(b.Waypoints, notices)
	b.Segments = segments(b.Waypoints, advisories, altitudeFt)
	b.Severity = overallSeverity(b.Waypoints, b.Segments)
	b.FlightRules = routeFlightRules(b.Waypoints)
	b.Alerts = alerts(b.Waypoints, b.Segments, notices)
	b.Counts = count(b)
	b.Summary = summarize(b.Severity, b.Counts)

	span.SetAttributes(
		attribute.String("severity", b.Severity.String()),
		attribute.Int("alerts", len(b.Alerts)),
	)
	s.observe(b, start)
	s.logger.Info().
		Str("briefing_id", b.ID).
		Str("severity", b.Severity.String()).
		Str("flight_rules", string(b.FlightRules)).
		Int("waypoints", b.Counts.Waypoints).
		Int("unavailable", b.Counts.Unavailable).
		Int("alerts", b.Counts.Alerts).
		Msg("route briefed")

	if s.sink != nil && len(b.Alerts) > 0 {
		if err := s.sink.PublishAlerts(ctx, b); err != nil {
			s.logger.Warn().Err(err).Str("briefing_id", b.ID).Msg("failed to publish alerts")
		}
	}
	return b, nil
}

// routePoint is a validated waypoint with its decoded supplied observation,
// if any.
type routePoint struct {
	wp       Waypoint
	supplied *wx.Observation
}

// routeWaypoints returns the request's waypoints with identifiers and roles
// filled in, sampling the polyline when no waypoints were given. Waypoint
// identifiers must be unique.
func (s *Service) routeWaypoints(req Request) ([]routePoint, error) {
	waypoints := req.Waypoints
	if len(waypoints) == 0 && req.Polyline != "" {
		coords, err := polyline.Decode(req.Polyline)
		if err != nil {
			return nil, fmt.Errorf("%w: polyline: %w", wx.ErrValidation, err)
		}
		for _, c := range polyline.Sample(coords, s.intervalNM) {
			waypoints = append(waypoints, Waypoint{Coordinates: &c})
		}
	}

	if len(waypoints) == 0 {
		return nil, fmt.Errorf("%w: route has no waypoints", wx.ErrValidation)
	}
	if len(waypoints) > s.maxWaypoints {
		return nil, fmt.Errorf("%w: route has %d waypoints, limit is %d", wx.ErrValidation, len(waypoints), s.maxWaypoints)
	}

	out := make([]routePoint, len(waypoints))
	seen := make(map[string]int, len(waypoints))
	for i, wp := range waypoints {
		wp.StationID = station.NormalizeID(wp.StationID)
		var supplied *wx.Observation
		if strings.TrimSpace(wp.RawObservation) != "" {
			obs, err := suppliedObservation(wp)
			if err != nil {
				return nil, fmt.Errorf("%w: waypoint %d: %w", wx.ErrValidation, i+1, err)
			}
			supplied = obs
			wp.StationID = obs.Station
		}
		if wp.StationID == "" && wp.Coordinates == nil {
			return nil, fmt.Errorf("%w: waypoint %d has neither station nor coordinates", wx.ErrValidation, i+1)
		}
		if wp.Coordinates != nil && !wp.Coordinates.Valid() {
			return nil, fmt.Errorf("%w: waypoint %d coordinates out of range", wx.ErrValidation, i+1)
		}
		if wp.ID == "" {
			wp.ID = fmt.Sprintf("WP%d", i+1)
		}
		if first, dup := seen[wp.ID]; dup {
			return nil, fmt.Errorf("%w: waypoints %d and %d share id %q", wx.ErrValidation, first+1, i+1, wp.ID)
		}
		seen[wp.ID] = i
		if wp.Role == "" {
			switch {
			case i == 0:
				wp.Role = RoleOrigin
			case i == len(waypoints)-1:
				wp.Role = RoleDestination
			default:
				wp.Role = RoleEnroute
			}
		}
		out[i] = routePoint{wp: wp, supplied: supplied}
	}
	return out, nil
}

// suppliedObservation decodes a waypoint's own METAR. The report must name
// the waypoint's station when one is given.
func suppliedObservation(wp Waypoint) (*wx.Observation, error) {
	record, err := decode.Decode(wx.KindObservation, wp.RawObservation)
	if err != nil {
		return nil, err
	}
	obs := record.(*wx.Observation)
	if wp.StationID != "" && obs.Station != wp.StationID {
		return nil, fmt.Errorf("observation is for %s, not %s", obs.Station, wp.StationID)
	}
	return obs, nil
}

type advisory struct {
	id         string
	record     *wx.HazardAdvisory
	assessment classify.Assessment
	area       []polyline.Coordinate
	band       decode.LevelBand
	hasBand    bool
}

// atAltitude reports whether the advisory applies at altitudeFt. Advisories
// without readable levels apply everywhere, as does every advisory when no
// altitude was given.
func (a advisory) atAltitude(altitudeFt int) bool {
	if altitudeFt < 0 || !a.hasBand {
		return true
	}
	return a.band.Contains(altitudeFt)
}

// parseAdvisories decodes advisories and keeps those valid at the briefing
// time that describe an area.
func (s *Service) parseAdvisories(raw []string, at time.Time) ([]advisory, error) {
	var out []advisory
	for i, text := range raw {
		record, err := decode.Decode(wx.KindHazardAdvisory, text)
		if err != nil {
			return nil, fmt.Errorf("%w: advisory %d: %w", wx.ErrValidation, i+1, err)
		}
		h := record.(*wx.HazardAdvisory)
		if h.Cancelled || len(h.Area) < 3 || !advisoryValidAt(h, at) {
			continue
		}
		a, _ := s.classifier.Classify(h)
		area := make([]polyline.Coordinate, len(h.Area))
		for j, p := range h.Area {
			area[j] = polyline.Coordinate{Lat: p.Lat, Lon: p.Lon}
		}
		band, hasBand := decode.ParseLevelBand(h.Levels)
		out = append(out, advisory{
			id:         fmt.Sprintf("%s %s %s", h.FIR, h.Type, h.Sequence),
			record:     h,
			assessment: a,
			area:       area,
			band:       band,
			hasBand:    hasBand,
		})
	}
	return out, nil
}

func advisoryValidAt(h *wx.HazardAdvisory, at time.Time) bool {
	if from := h.ValidFrom.Resolve(at); !from.IsZero() && at.Before(from) {
		return false
	}
	if to := h.ValidTo.Resolve(at); !to.IsZero() && !at.Before(to) {
		return false
	}
	return true
}

func advisoryRecords(advisories []advisory) []*wx.HazardAdvisory {
	var out []*wx.HazardAdvisory
	for _, a := range advisories {
		out = append(out, a.record)
	}
	return out
}

// parseNotices extracts notices and keeps those in force at the briefing time.
func (s *Service) parseNotices(raw []string, at time.Time) ([]*wx.Notam, error) {
	var out []*wx.Notam
	for i, text := range raw {
		n, err := s.extractor.Extract(text)
		if err != nil {
			return nil, fmt.Errorf("%w: notice %d: %w", wx.ErrValidation, i+1, err)
		}
		if n.ActiveAt(at) {
			out = append(out, n)
		}
	}
	return out, nil
}

// briefWaypoint resolves and fetches one waypoint. A supplied observation
// replaces the fetched one. It only returns an error when ctx is done; every
// other failure marks the waypoint UNAVAILABLE.
func (s *Service) briefWaypoint(ctx context.Context, p routePoint, at time.Time) (WaypointWeather, error) {
	wp := p.wp
	ww := WaypointWeather{Waypoint: wp, Location: wp.Coordinates}

	if err := s.resolve(ctx, &ww); err != nil {
		if ctx.Err() != nil {
			return ww, ctx.Err()
		}
		return unavailable(ww, err), nil
	}

	if p.supplied != nil {
		a, _ := s.classifier.Classify(p.supplied)
		ww.Observation = &Product{
			Raw:        p.supplied.Raw,
			Record:     p.supplied,
			Assessment: a,
			Provenance: source.ProvenanceSupplied,
			Source:     suppliedSource,
			FetchedAt:  at,
		}
	} else {
		obs, err := s.fetcher.FetchClassified(ctx, ww.Station, wx.KindObservation)
		if err != nil {
			if ctx.Err() != nil {
				return ww, ctx.Err()
			}
			s.logger.Warn().Err(err).Str("waypoint", wp.ID).Str("station", ww.Station).Msg("observation unavailable")
			return unavailable(ww, err), nil
		}
		ww.Observation = productOf(obs)
	}
	ww.Status = StatusAvailable
	ww.Severity = ww.Observation.Assessment.Severity
	ww.FlightRules = ww.Observation.Assessment.FlightRules
	ww.Reason = ww.Observation.Assessment.Reason

	if wp.Role == RoleDestination {
		forecast, err := s.fetcher.FetchClassified(ctx, ww.Station, wx.KindForecast)
		switch {
		case err == nil:
			ww.Forecast = productOf(forecast)
			if forecast.Assessment.Severity > ww.Severity {
				ww.Severity = forecast.Assessment.Severity
				ww.Reason = forecast.Assessment.Reason
			}
		case ctx.Err() != nil:
			return ww, ctx.Err()
		default:
			s.logger.Warn().Err(err).Str("station", ww.Station).Msg("destination forecast unavailable")
		}
	}
	return ww, nil
}

// resolve fills in the station for a waypoint: the explicit station when
// given, else the nearest station within the search radius.
func (s *Service) resolve(ctx context.Context, ww *WaypointWeather) error {
	wp := ww.Waypoint
	if wp.StationID != "" {
		ww.Station = wp.StationID
		if ww.Location == nil {
			st, err := s.stations.Get(ctx, wp.StationID)
			switch {
			case err == nil:
				loc := st.Location
				ww.Location = &loc
			case !errors.Is(err, wx.ErrStationNotFound):
				return err
			}
		}
		return nil
	}

	m, err := s.stations.Nearest(ctx, *wp.Coordinates, s.radiusNM)
	if err != nil {
		return err
	}
	ww.Station = m.Station.ID
	ww.DistanceNM = m.DistanceNM
	return nil
}

func unavailable(ww WaypointWeather, err error) WaypointWeather {
	ww.Status = StatusUnavailable
	ww.Severity = wx.SeverityClear
	ww.Error = err.Error()
	ww.err = err
	return ww
}

// attachNotices hangs each notice on every waypoint served by its station.
func attachNotices(waypoints []WaypointWeather, notices []*wx.Notam) {
	for i := range waypoints {
		for _, n := range notices {
			if n.Station != "" && n.Station == waypoints[i].Station {
				waypoints[i].Notices = append(waypoints[i].Notices, n)
			}
		}
	}
}

func (s *Service) observe(b *RouteBriefing, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.BriefingDuration.Observe(s.clock.Since(start).Seconds())
	for _, a := range b.Alerts {
		s.metrics.BriefingAlerts.WithLabelValues(string(a.Reason)).Inc()
	}
}
