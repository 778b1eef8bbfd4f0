package briefing_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skybrief/skybrief/internal/briefing"
	"github.com/skybrief/skybrief/internal/classify"
	"github.com/skybrief/skybrief/internal/notam"
	"github.com/skybrief/skybrief/internal/observability"
	"github.com/skybrief/skybrief/internal/source"
	"github.com/skybrief/skybrief/internal/station"
	"github.com/skybrief/skybrief/internal/wx"
	"github.com/skybrief/skybrief/pkg/polyline"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var briefAt = time.Date(2024, 3, 12, 18, 0, 0, 0, time.UTC)

var reports = map[string]string{
	"KDEN/OBSERVATION": "METAR KDEN 121753Z 36010KT 10SM FEW080 12/M04 A3012",
	"KAPA/OBSERVATION": "METAR KAPA 121753Z 35008KT 10SM SCT070 11/M05 A3013",
	"KCOS/OBSERVATION": "METAR KCOS 121754Z 22015G35KT 3SM +TSRA BKN030CB 18/12 A2990",
	"KPUB/OBSERVATION": "METAR KPUB 121753Z 16006KT 10SM CLR 17/M02 A3008",
	"KPUB/FORECAST":    "TAF KPUB 121720Z 1218/1318 16008KT P6SM SCT080 FM130000 20012KT P6SM BKN100",
}

// mapSource serves reports from a fixed table and reports the rest as
// not found.
type mapSource struct {
	reports map[string]string
	block   bool
}

func (s *mapSource) Name() string { return "table" }

func (s *mapSource) FetchRaw(ctx context.Context, id string, kind wx.ProductKind) (wx.RawReport, error) {
	if s.block {
		<-ctx.Done()
		return wx.RawReport{}, ctx.Err()
	}
	text, ok := s.reports[id+"/"+string(kind)]
	if !ok {
		return wx.RawReport{}, wx.ErrStationNotFound
	}
	return wx.RawReport{Kind: kind, StationID: id, RawText: text}, nil
}

type recordingSink struct {
	mu        sync.Mutex
	briefings []*briefing.RouteBriefing
}

func (s *recordingSink) PublishAlerts(_ context.Context, b *briefing.RouteBriefing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.briefings = append(s.briefings, b)
	return nil
}

type fixture struct {
	service *briefing.Service
	sink    *recordingSink
	metrics *observability.Metrics
}

func newFixture(src *mapSource) fixture {
	return newFixtureWith(src, false)
}

func newFixtureWith(src *mapSource, synthetic bool) fixture {
	clock := clockwork.NewFakeClockAt(briefAt)
	stations := station.NewDefaultRepository()
	metrics := observability.NewMetricsForTesting()
	agg := source.New(source.Config{
		Sources:          []source.Source{src},
		DisableSynthetic: !synthetic,
		Clock:            clock,
		Logger:           zerolog.Nop(),
	})
	sink := &recordingSink{}
	svc := briefing.NewService(briefing.ServiceConfig{
		Fetcher:   agg,
		Stations:  stations,
		Extractor: notam.NewExtractor(station.NewRunwayCounter(stations)),
		Sink:      sink,
		Clock:     clock,
		Logger:    zerolog.Nop(),
		Metrics:   metrics,
	})
	return fixture{service: svc, sink: sink, metrics: metrics}
}

func stationRoute(ids ...string) []briefing.Waypoint {
	var wps []briefing.Waypoint
	for _, id := range ids {
		wps = append(wps, briefing.Waypoint{StationID: id})
	}
	return wps
}

func TestBrief_SevereMiddleWaypoint(t *testing.T) {
	f := newFixture(&mapSource{reports: reports})

	b, err := f.service.Brief(context.Background(), briefing.Request{Waypoints: stationRoute("KDEN", "KCOS", "KPUB")})
	require.NoError(t, err)

	assert.NotEmpty(t, b.ID)
	assert.Equal(t, briefAt, b.GeneratedAt)
	assert.Equal(t, wx.SeveritySevere, b.Severity)
	assert.Equal(t, wx.FlightRulesMVFR, b.FlightRules, "worst waypoint category")
	require.Len(t, b.Waypoints, 3)
	assert.Equal(t, briefing.RoleOrigin, b.Waypoints[0].Waypoint.Role)
	assert.Equal(t, briefing.RoleEnroute, b.Waypoints[1].Waypoint.Role)
	assert.Equal(t, briefing.RoleDestination, b.Waypoints[2].Waypoint.Role)
	assert.Equal(t, wx.SeverityClear, b.Waypoints[0].Severity)
	assert.Equal(t, wx.SeveritySevere, b.Waypoints[1].Severity)
	assert.Equal(t, wx.FlightRulesMVFR, b.Waypoints[1].FlightRules)
	assert.Equal(t, source.ProvenancePrimary, b.Waypoints[1].Observation.Provenance)
	require.NotNil(t, b.Waypoints[2].Forecast, "destination consults the forecast")
	assert.Nil(t, b.Waypoints[0].Forecast)

	require.Len(t, b.Segments, 2)
	assert.Equal(t, wx.SeveritySevere, b.Segments[0].Severity)
	assert.Equal(t, wx.SeveritySevere, b.Segments[1].Severity)
	assert.InDelta(t, 63, b.Segments[0].DistanceNM, 2)

	require.Len(t, b.Alerts, 1, "segments explained by a severe endpoint raise no alert")
	alert := b.Alerts[0]
	assert.Equal(t, "wx-WP2", alert.ID)
	assert.Equal(t, briefing.AlertWaypoint, alert.Kind)
	assert.Equal(t, "WP2", alert.Location)
	assert.Equal(t, classify.ReasonSeverePhenomenon, alert.Reason)

	assert.Equal(t, briefing.Counts{Waypoints: 3, Severe: 1, Segments: 2, SevereSegments: 2, Alerts: 1}, b.Counts)
	assert.Equal(t, "Route SEVERE: 3 waypoints, 1 severe, 0 significant; 2 severe segments; 1 alert.", b.Summary)

	require.Len(t, f.sink.briefings, 1)
	assert.Same(t, b, f.sink.briefings[0])
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.BriefingAlerts.WithLabelValues(string(classify.ReasonSeverePhenomenon))))
}

func TestBrief_ClearRouteHasNoAlerts(t *testing.T) {
	f := newFixture(&mapSource{reports: reports})

	b, err := f.service.Brief(context.Background(), briefing.Request{Waypoints: stationRoute("KDEN", "KPUB")})
	require.NoError(t, err)
	assert.Equal(t, wx.SeverityClear, b.Severity)
	assert.Empty(t, b.Alerts)
	assert.Equal(t, "Route CLEAR: 2 waypoints; no alerts.", b.Summary)
	assert.Empty(t, f.sink.briefings)
}

func TestBrief_ResolvesNearestStation(t *testing.T) {
	f := newFixture(&mapSource{reports: reports})
	castleRock := polyline.Coordinate{Lat: 39.3722, Lon: -104.8561}
	kansas := polyline.Coordinate{Lat: 38.5, Lon: -99.0}

	b, err := f.service.Brief(context.Background(), briefing.Request{
		At: briefAt,
		Waypoints: []briefing.Waypoint{
			{ID: "HOME", Coordinates: &castleRock},
			{ID: "NOWHERE", Coordinates: &kansas},
			{ID: "DEST", StationID: "kpub"},
		},
	})
	require.NoError(t, err)

	home := b.Waypoints[0]
	assert.Equal(t, briefing.StatusAvailable, home.Status)
	assert.Equal(t, "KAPA", home.Station)
	assert.InDelta(t, 11.9, home.DistanceNM, 0.5)

	nowhere := b.Waypoints[1]
	assert.Equal(t, briefing.StatusUnavailable, nowhere.Status)
	assert.ErrorIs(t, nowhere.Err(), wx.ErrStationNotFound)
	assert.NotEmpty(t, nowhere.Error)
	assert.Empty(t, nowhere.Station)

	assert.Equal(t, "KPUB", b.Waypoints[2].Station)
	assert.Equal(t, 1, b.Counts.Unavailable)
	assert.Equal(t, "Route CLEAR: 3 waypoints, 1 without data; no alerts.", b.Summary)
}

func TestBrief_StationWithoutData(t *testing.T) {
	f := newFixture(&mapSource{reports: reports})

	b, err := f.service.Brief(context.Background(), briefing.Request{Waypoints: stationRoute("KDEN", "KSLC")})
	require.NoError(t, err)
	assert.Equal(t, briefing.StatusUnavailable, b.Waypoints[1].Status)
	assert.ErrorIs(t, b.Waypoints[1].Err(), wx.ErrStationNotFound)
	assert.Equal(t, wx.SeverityClear, b.Severity)
	assert.Equal(t, wx.FlightRulesVFR, b.FlightRules, "unavailable waypoints do not count")
}

func TestBrief_UnknownStationIsUnavailableWithSynthetic(t *testing.T) {
	f := newFixtureWith(&mapSource{reports: reports}, true)

	b, err := f.service.Brief(context.Background(), briefing.Request{Waypoints: stationRoute("KDEN", "ZZZZ")})
	require.NoError(t, err)

	unknown := b.Waypoints[1]
	assert.Equal(t, briefing.StatusUnavailable, unknown.Status)
	assert.ErrorIs(t, unknown.Err(), wx.ErrStationNotFound)
	assert.Nil(t, unknown.Observation)
	assert.Equal(t, wx.SeverityClear, b.Severity)
	assert.Empty(t, b.Alerts)
	assert.Empty(t, f.sink.briefings, "nothing is published for an unknown station")
}

func TestBrief_SuppliedObservation(t *testing.T) {
	f := newFixture(&mapSource{reports: map[string]string{
		"KDEN/OBSERVATION": reports["KDEN/OBSERVATION"],
	}})

	b, err := f.service.Brief(context.Background(), briefing.Request{
		Waypoints: []briefing.Waypoint{
			{StationID: "KDEN"},
			{ID: "ARR", RawObservation: "METAR KCOS 121754Z 22015G35KT 3SM +TSRA BKN030CB 18/12 A2990"},
		},
	})
	require.NoError(t, err)

	arr := b.Waypoints[1]
	assert.Equal(t, briefing.StatusAvailable, arr.Status)
	assert.Equal(t, "KCOS", arr.Station)
	assert.NotNil(t, arr.Location, "located through the station directory")
	require.NotNil(t, arr.Observation)
	assert.Equal(t, source.ProvenanceSupplied, arr.Observation.Provenance)
	assert.Equal(t, briefAt, arr.Observation.FetchedAt)
	assert.Equal(t, wx.SeveritySevere, arr.Severity)
	assert.Equal(t, classify.ReasonSeverePhenomenon, arr.Reason)
	assert.Equal(t, wx.FlightRulesMVFR, b.FlightRules)
}

func TestBrief_CruiseAltitudeFiltersAdvisories(t *testing.T) {
	f := newFixture(&mapSource{reports: map[string]string{
		"KDEN/OBSERVATION": reports["KDEN/OBSERVATION"],
		"KCOS/OBSERVATION": "METAR KCOS 121754Z 18005KT 10SM CLR 15/M02 A3010",
	}})
	icing := "KZDV SIGMET UNIFORM 1 VALID 121600/122000 KKCI- KZDV DENVER FIR SEV ICE FCST " +
		"WI N3940 W10500 - N3940 W10430 - N3910 W10430 - N3910 W10500 FL180/300 STNR NC"

	tests := []struct {
		altitude     string
		wantSeverity wx.Severity
		wantAlerts   int
	}{
		{"", wx.SeveritySevere, 1},
		{"FL240", wx.SeveritySevere, 1},
		{"FL350", wx.SeverityClear, 0},
		{"9000FT", wx.SeverityClear, 0},
	}
	for _, tt := range tests {
		t.Run("altitude "+tt.altitude, func(t *testing.T) {
			b, err := f.service.Brief(context.Background(), briefing.Request{
				Waypoints:  stationRoute("KDEN", "KCOS"),
				Advisories: []string{icing},
				Altitude:   tt.altitude,
			})
			require.NoError(t, err)
			require.Len(t, b.Advisories, 1, "advisories are listed whatever the altitude")
			assert.Equal(t, tt.wantSeverity, b.Segments[0].Severity)
			assert.Len(t, b.Alerts, tt.wantAlerts)
			if tt.wantSeverity == wx.SeverityClear {
				assert.Equal(t, []string{"KZDV SIGMET UNIFORM 1"}, b.Segments[0].Bypassed)
			}
		})
	}
}

func TestBrief_AdvisoryRaisesSegment(t *testing.T) {
	f := newFixture(&mapSource{reports: map[string]string{
		"KDEN/OBSERVATION": reports["KDEN/OBSERVATION"],
		"KCOS/OBSERVATION": "METAR KCOS 121754Z 18005KT 10SM CLR 15/M02 A3010",
		"KPUB/OBSERVATION": reports["KPUB/OBSERVATION"],
	}})

	b, err := f.service.Brief(context.Background(), briefing.Request{
		Waypoints: stationRoute("KDEN", "KCOS", "KPUB"),
		Advisories: []string{
			"KZDV SIGMET UNIFORM 1 VALID 121600/122000 KKCI- KZDV DENVER FIR SEV ICE FCST " +
				"WI N3940 W10500 - N3940 W10430 - N3910 W10430 - N3910 W10500 FL180/300 STNR NC",
			"KZDV SIGMET UNIFORM 2 VALID 120200/120600 KKCI- KZDV DENVER FIR SEV TURB FCST " +
				"WI N3900 W10500 - N3900 W10400 - N3800 W10400 - N3800 W10500 STNR NC",
		},
	})
	require.NoError(t, err)

	require.Len(t, b.Advisories, 1, "expired advisories are dropped")
	assert.Equal(t, wx.SeveritySevere, b.Severity)
	assert.Equal(t, wx.SeveritySevere, b.Segments[0].Severity)
	assert.Equal(t, []string{"KZDV SIGMET UNIFORM 1"}, b.Segments[0].Advisories)
	assert.Equal(t, wx.SeverityClear, b.Segments[1].Severity)

	require.Len(t, b.Alerts, 1)
	assert.Equal(t, "seg-WP1-WP2", b.Alerts[0].ID)
	assert.Equal(t, briefing.AlertSegment, b.Alerts[0].Kind)
	assert.Equal(t, "WP1-WP2", b.Alerts[0].Location)
	assert.Equal(t, classify.ReasonHazardAdvisory, b.Alerts[0].Reason)
}

func TestBrief_Notices(t *testing.T) {
	f := newFixture(&mapSource{reports: reports})

	b, err := f.service.Brief(context.Background(), briefing.Request{
		Waypoints: stationRoute("KDEN", "KAPA"),
		Notices: []string{
			"!APA 03/010 APA AD AP CLSD",
			"!DEN 03/002 DEN RWY 16L/34R CLSD",
			"!DEN 02/001 DEN RWY 07/25 CLSD 2402010000-2402020000",
		},
	})
	require.NoError(t, err)

	require.Len(t, b.Notices, 2, "lapsed notices are dropped")
	require.Len(t, b.Waypoints[0].Notices, 1)
	assert.Equal(t, wx.SeveritySignificant, b.Waypoints[0].Notices[0].Severity)
	require.Len(t, b.Waypoints[1].Notices, 1)

	require.Len(t, b.Alerts, 1)
	assert.Equal(t, "notam-APA-03/010", b.Alerts[0].ID)
	assert.Equal(t, briefing.AlertNotice, b.Alerts[0].Kind)
	assert.Equal(t, "KAPA", b.Alerts[0].Location)
	assert.Equal(t, classify.ReasonNotice, b.Alerts[0].Reason)
	assert.Equal(t, wx.SeverityClear, b.Severity, "notices do not change the weather picture")
}

func TestBrief_Polyline(t *testing.T) {
	f := newFixture(&mapSource{reports: reports})
	route := polyline.Encode([]polyline.Coordinate{
		{Lat: 39.8617, Lon: -104.6731},
		{Lat: 38.8058, Lon: -104.7008},
	})

	b, err := f.service.Brief(context.Background(), briefing.Request{Polyline: route})
	require.NoError(t, err)
	require.Len(t, b.Waypoints, 3)
	assert.Equal(t, "KDEN", b.Waypoints[0].Station)
	assert.Equal(t, "KCOS", b.Waypoints[2].Station)
	assert.Equal(t, briefing.RoleDestination, b.Waypoints[2].Waypoint.Role)
	assert.Equal(t, "WP3", b.Waypoints[2].Waypoint.ID)
}

func TestBrief_InvalidRequests(t *testing.T) {
	f := newFixture(&mapSource{reports: reports})
	bad := polyline.Coordinate{Lat: 95, Lon: 0}

	tests := []struct {
		name string
		req  briefing.Request
	}{
		{"empty route", briefing.Request{}},
		{"bad polyline", briefing.Request{Polyline: "_p~iF~ps|"}},
		{"waypoint without location", briefing.Request{Waypoints: []briefing.Waypoint{{ID: "A"}}}},
		{"coordinates out of range", briefing.Request{Waypoints: []briefing.Waypoint{{Coordinates: &bad}}}},
		{"bad advisory", briefing.Request{Waypoints: stationRoute("KDEN"), Advisories: []string{"NOT AN ADVISORY"}}},
		{"bad notice", briefing.Request{Waypoints: stationRoute("KDEN"), Notices: []string{"   "}}},
		{"bad altitude", briefing.Request{Waypoints: stationRoute("KDEN"), Altitude: "cruise"}},
		{"duplicate ids", briefing.Request{Waypoints: []briefing.Waypoint{{ID: "A", StationID: "KDEN"}, {ID: "A", StationID: "KCOS"}}}},
		{"generated id collides", briefing.Request{Waypoints: []briefing.Waypoint{{ID: "WP2", StationID: "KDEN"}, {StationID: "KCOS"}}}},
		{"supplied observation for another station", briefing.Request{Waypoints: []briefing.Waypoint{
			{StationID: "KDEN", RawObservation: "METAR KCOS 121754Z 18005KT 10SM CLR 15/M02 A3010"},
		}}},
		{"undecodable supplied observation", briefing.Request{Waypoints: []briefing.Waypoint{{RawObservation: "36010KT 10SM"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Brief(context.Background(), tt.req)
			assert.ErrorIs(t, err, wx.ErrValidation)
		})
	}
}

func TestBrief_Cancellation(t *testing.T) {
	f := newFixture(&mapSource{block: true})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.service.Brief(ctx, briefing.Request{Waypoints: stationRoute("KDEN", "KCOS", "KPUB")})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, f.sink.briefings)
}
