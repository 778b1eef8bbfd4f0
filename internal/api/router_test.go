package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skybrief/skybrief/internal/api"
	"github.com/skybrief/skybrief/internal/api/handler"
	"github.com/skybrief/skybrief/internal/api/middleware"
	"github.com/skybrief/skybrief/internal/auth"
	"github.com/skybrief/skybrief/internal/engine"
	"github.com/skybrief/skybrief/internal/source"
	"github.com/skybrief/skybrief/internal/wx"
)

const signingKey = "router-test-signing-key-0123456789"

var now = time.Date(2024, 3, 12, 18, 0, 0, 0, time.UTC)

// tableSource serves canned reports keyed "STATION/KIND".
type tableSource struct {
	reports map[string]string
	err     error
}

func (tableSource) Name() string { return "table" }

func (s tableSource) FetchRaw(_ context.Context, station string, kind wx.ProductKind) (wx.RawReport, error) {
	if s.err != nil {
		return wx.RawReport{}, s.err
	}
	text, ok := s.reports[station+"/"+string(kind)]
	if !ok {
		return wx.RawReport{}, wx.ErrStationNotFound
	}
	return wx.RawReport{Kind: kind, StationID: station, RawText: text}, nil
}

var reports = map[string]string{
	"KDEN/OBSERVATION": "METAR KDEN 121753Z 36010KT 10SM FEW080 12/M04 A3012",
	"KCOS/OBSERVATION": "METAR KCOS 121754Z 22015G35KT 3SM +TSRA BKN030CB 18/12 A2990",
	"KPUB/OBSERVATION": "METAR KPUB 121753Z 18008KT 10SM SCT100 20/02 A3004",
	"KPUB/FORECAST":    "TAF KPUB 121720Z 1218/1318 16008KT P6SM SCT080 FM130000 20012KT P6SM BKN100",
}

type routerOptions struct {
	source      tableSource
	noSynthetic bool
	readyChecks map[string]handler.ReadyCheck
}

func newRouter(t *testing.T, opts routerOptions) http.Handler {
	t.Helper()
	clock := clockwork.NewFakeClockAt(now)

	cfg := engine.DefaultConfig()
	cfg.Retry.MaxRetries = 0
	cfg.Retry.InitialInterval = time.Millisecond
	cfg.DisableSynthetic = opts.noSynthetic
	if opts.source.reports == nil && opts.source.err == nil {
		opts.source.reports = reports
	}

	e, err := engine.New(cfg, engine.Options{
		Sources: []source.Source{opts.source},
		Clock:   clock,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)

	tokens := auth.NewTokenService(auth.TokenConfig{SigningKey: signingKey, Clock: clock})

	return api.NewRouter(api.RouterConfig{
		Version:     "test",
		BuildTime:   "now",
		Logger:      zerolog.Nop(),
		Engine:      e,
		Tokens:      tokens,
		Gatherer:    prometheus.NewRegistry(),
		Limits:      middleware.LimitsPerMinute(1000),
		ReadyChecks: opts.readyChecks,
		Clock:       clock,
	})
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestRouter_Health(t *testing.T) {
	r := newRouter(t, routerOptions{})

	rec := do(t, r, http.MethodGet, "/v1/ops/health", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.HeaderRequestID))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	body := decodeBody(t, rec)
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, "2024-03-12T18:00:00Z", body["time"])
}

func TestRouter_Ready(t *testing.T) {
	t.Run("all checks pass", func(t *testing.T) {
		r := newRouter(t, routerOptions{readyChecks: map[string]handler.ReadyCheck{
			"stations": func(context.Context) error { return nil },
		}})
		rec := do(t, r, http.MethodGet, "/v1/ops/ready", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("failing check", func(t *testing.T) {
		r := newRouter(t, routerOptions{readyChecks: map[string]handler.ReadyCheck{
			"stations": func(context.Context) error { return errors.New("pool closed") },
		}})
		rec := do(t, r, http.MethodGet, "/v1/ops/ready", "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestRouter_Status(t *testing.T) {
	r := newRouter(t, routerOptions{})
	do(t, r, http.MethodGet, "/v1/stations/KDEN/weather", "", nil)

	rec := do(t, r, http.MethodGet, "/v1/ops/status", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "test", body["version"])
	sources, ok := body["sources"].([]any)
	require.True(t, ok)
	require.Len(t, sources, 1)
	assert.Equal(t, "table", sources[0].(map[string]any)["name"])
	cache, ok := body["cache"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, cache["entries"])
}

func TestRouter_DecodeReport(t *testing.T) {
	r := newRouter(t, routerOptions{})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		check      func(t *testing.T, body map[string]any)
	}{
		{
			name:       "thunderstorm observation is severe",
			body:       `{"product":"METAR","raw":"METAR KJFK 121651Z 27015KT 10SM TS BKN030CB 22/18 A2992"}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "OBSERVATION", body["kind"])
				assert.Equal(t, false, body["partial"])
				assessment := body["assessment"].(map[string]any)
				assert.Equal(t, "SEVERE", assessment["severity"])
			},
		},
		{
			name:       "unknown product",
			body:       `{"product":"BULLETIN","raw":"anything"}`,
			wantStatus: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]any) {
				errs := body["errors"].([]any)
				assert.Equal(t, "product", errs[0].(map[string]any)["field"])
			},
		},
		{
			name:       "blank text",
			body:       `{"product":"METAR","raw":"   "}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "pilot report without elements",
			body:       `{"product":"PIREP","raw":"DEN UA nothing here"}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "unknown field",
			body:       `{"product":"METAR","raw":"KDEN","extra":true}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, r, http.MethodPost, "/v1/reports:decode", tt.body, nil)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.check != nil {
				tt.check(t, decodeBody(t, rec))
			}
		})
	}
}

func TestRouter_DecodeRejectsNonJSON(t *testing.T) {
	r := newRouter(t, routerOptions{})

	req := httptest.NewRequest(http.MethodPost, "/v1/reports:decode", strings.NewReader("product=METAR"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestRouter_ExtractNotam(t *testing.T) {
	r := newRouter(t, routerOptions{})

	rec := do(t, r, http.MethodPost, "/v1/notams:extract", `{"raw":"!ASE 07/001 ASE RWY 15/33 CLSD"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "KASE", body["station"])
	assert.Equal(t, "SEVERE", body["severity"])
}

func TestRouter_StationWeather(t *testing.T) {
	t.Run("live observation", func(t *testing.T) {
		r := newRouter(t, routerOptions{})
		rec := do(t, r, http.MethodGet, "/v1/stations/kden/weather", "", nil)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeBody(t, rec)
		assert.Equal(t, "KDEN", body["stationId"])
		assert.Equal(t, "OBSERVATION", body["kind"])
		assert.Equal(t, "table", body["source"])
	})

	t.Run("unknown product", func(t *testing.T) {
		r := newRouter(t, routerOptions{})
		rec := do(t, r, http.MethodGet, "/v1/stations/KDEN/weather?product=BULLETIN", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	for _, synthetic := range []bool{false, true} {
		t.Run(fmt.Sprintf("no data for station synthetic=%t", synthetic), func(t *testing.T) {
			r := newRouter(t, routerOptions{noSynthetic: !synthetic})
			rec := do(t, r, http.MethodGet, "/v1/stations/KXXX/weather", "", nil)

			require.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
			assert.Equal(t, "no data for this station", decodeBody(t, rec)["detail"])
		})
	}

	t.Run("sources down", func(t *testing.T) {
		r := newRouter(t, routerOptions{
			source:      tableSource{err: errors.New("connection refused")},
			noSynthetic: true,
		})
		rec := do(t, r, http.MethodGet, "/v1/stations/KDEN/weather", "", nil)

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "system error", decodeBody(t, rec)["detail"])
	})

	t.Run("synthetic when sources down", func(t *testing.T) {
		r := newRouter(t, routerOptions{source: tableSource{err: errors.New("connection refused")}})
		rec := do(t, r, http.MethodGet, "/v1/stations/KDEN/weather", "", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, string(source.ProvenanceSynthetic), decodeBody(t, rec)["provenance"])
	})
}

func TestRouter_Stations(t *testing.T) {
	r := newRouter(t, routerOptions{})

	rec := do(t, r, http.MethodGet, "/v1/stations", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Positive(t, decodeBody(t, rec)["count"])

	rec = do(t, r, http.MethodGet, "/v1/stations/KASE", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "KASE", decodeBody(t, rec)["id"])

	rec = do(t, r, http.MethodGet, "/v1/stations/KXXX", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_Briefing(t *testing.T) {
	r := newRouter(t, routerOptions{})

	rec := do(t, r, http.MethodPost, "/v1/briefings",
		`{"waypoints":[{"stationId":"KDEN"},{"stationId":"KCOS"},{"stationId":"KPUB"}]}`, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "/v1/briefings/"+body["id"].(string), rec.Header().Get("Location"))
	assert.Equal(t, "SEVERE", body["severity"])

	var waypointAlerts []map[string]any
	for _, a := range body["alerts"].([]any) {
		alert := a.(map[string]any)
		if alert["kind"] == "WAYPOINT" {
			waypointAlerts = append(waypointAlerts, alert)
		}
	}
	require.Len(t, waypointAlerts, 1)
	assert.Contains(t, waypointAlerts[0]["detail"], "KCOS")
}

func TestRouter_BriefingValidation(t *testing.T) {
	r := newRouter(t, routerOptions{})

	rec := do(t, r, http.MethodPost, "/v1/briefings", `{"waypoints":[{"lat":95,"lon":0}]}`, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	errs := decodeBody(t, rec)["errors"].([]any)
	require.NotEmpty(t, errs)
	assert.Equal(t, "waypoints[0]", errs[0].(map[string]any)["field"])
}

func TestRouter_AdminInvalidate(t *testing.T) {
	tokens := auth.NewTokenService(auth.TokenConfig{
		SigningKey: signingKey,
		Clock:      clockwork.NewFakeClockAt(now),
	})
	admin, _, err := tokens.Issue("ops@example.com", auth.ScopeCacheAdmin)
	require.NoError(t, err)
	reader, _, err := tokens.Issue("viewer@example.com")
	require.NoError(t, err)

	r := newRouter(t, routerOptions{})
	do(t, r, http.MethodGet, "/v1/stations/KDEN/weather", "", nil)

	t.Run("no token", func(t *testing.T) {
		rec := do(t, r, http.MethodPost, "/v1/admin/cache:invalidate", `{}`, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
	})

	t.Run("missing scope", func(t *testing.T) {
		rec := do(t, r, http.MethodPost, "/v1/admin/cache:invalidate", `{}`,
			map[string]string{"Authorization": "Bearer " + reader})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("operator", func(t *testing.T) {
		rec := do(t, r, http.MethodPost, "/v1/admin/cache:invalidate", `{"stationId":"kden"}`,
			map[string]string{"Authorization": "Bearer " + admin})

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeBody(t, rec)
		assert.Equal(t, "KDEN", body["stationId"])
		assert.EqualValues(t, 1, body["invalidated"])
		assert.Equal(t, "ops@example.com", body["operator"])
	})
}

func TestRouter_ClassifyBatch(t *testing.T) {
	r := newRouter(t, routerOptions{})

	t.Run("mixed batch", func(t *testing.T) {
		rec := do(t, r, http.MethodPost, "/v1/reports:classify", `{"reports":[
			{"id":"KSFO","raw":"METAR KSFO 121756Z 29012KT 10SM FEW015 14/09 A3002"},
			{"id":"KJFK","raw":"METAR KJFK 121251Z 18005KT 10SM VCTS FEW050 20/15 A3000"},
			{"id":"KORD","raw":" "}
		]}`, nil)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeBody(t, rec)
		results := body["results"].([]any)
		require.Len(t, results, 3)
		assert.Equal(t, "CLEAR", results[0].(map[string]any)["severity"])
		assert.Equal(t, "SEVERE", results[1].(map[string]any)["severity"])
		assert.NotEmpty(t, results[2].(map[string]any)["error"])
		assert.EqualValues(t, 1, body["failed"])
		counts := body["counts"].(map[string]any)
		assert.EqualValues(t, 1, counts["CLEAR"])
		assert.EqualValues(t, 0, counts["SIGNIFICANT"])
		assert.EqualValues(t, 1, counts["SEVERE"])
	})

	t.Run("empty batch", func(t *testing.T) {
		rec := do(t, r, http.MethodPost, "/v1/reports:classify", `{"reports":[]}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRouter_BriefingWithSuppliedObservationAndAltitude(t *testing.T) {
	r := newRouter(t, routerOptions{})

	rec := do(t, r, http.MethodPost, "/v1/briefings", `{
		"altitude": "FL350",
		"waypoints": [
			{"id": "DEP", "rawObservation": "METAR KDEN 121753Z 36005KT 1/2SM FG OVC002 05/05 A3012"},
			{"id": "ARR", "stationId": "KPUB"}
		]
	}`, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "LIFR", body["flightRules"])
	assert.EqualValues(t, 35000, body["altitudeFt"])
	dep := body["waypoints"].([]any)[0].(map[string]any)
	assert.Equal(t, "KDEN", dep["station"])
	assert.Equal(t, "SUPPLIED", dep["observation"].(map[string]any)["provenance"])
}

func TestRouter_Metrics(t *testing.T) {
	r := newRouter(t, routerOptions{})

	rec := do(t, r, http.MethodGet, "/metrics", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}
