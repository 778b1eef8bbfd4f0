package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skybrief/skybrief/internal/briefing"
	"github.com/skybrief/skybrief/internal/classify"
	"github.com/skybrief/skybrief/internal/engine"
	"github.com/skybrief/skybrief/internal/source"
	"github.com/skybrief/skybrief/internal/wx"
)

type downSource struct{}

func (downSource) Name() string { return "down" }

func (downSource) FetchRaw(context.Context, string, wx.ProductKind) (wx.RawReport, error) {
	return wx.RawReport{}, errors.New("connection refused")
}

func newEngine(t *testing.T, mutate func(*engine.Config)) *engine.Engine {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.Retry.MaxRetries = 0
	cfg.Retry.InitialInterval = time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := engine.New(cfg, engine.Options{
		Sources: []source.Source{downSource{}},
		Clock:   clockwork.NewFakeClockAt(time.Date(2024, 3, 12, 18, 0, 0, 0, time.UTC)),
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	return e
}

func TestNew_DefaultConfig(t *testing.T) {
	e, err := engine.New(engine.DefaultConfig(), engine.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	assert.Equal(t, []string{"aviationweather", "tgftp"}, e.CacheStats().Sources)
	assert.Equal(t, classify.DefaultThresholds(), e.Thresholds())
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*engine.Config)
	}{
		{"unordered thresholds", func(c *engine.Config) { c.Thresholds.IFRCeilingFt = 3000 }},
		{"unknown source", func(c *engine.Config) { c.Sources = []string{"carrier-pigeon"} }},
		{"duplicate source", func(c *engine.Config) { c.Sources = []string{"tgftp", "tgftp"} }},
		{"zero ttl", func(c *engine.Config) { c.TTL = map[wx.ProductKind]time.Duration{wx.KindObservation: 0} }},
		{"negative radius", func(c *engine.Config) { c.Briefing.SearchRadiusNM = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := engine.DefaultConfig()
			tt.mutate(&cfg)
			_, err := engine.New(cfg, engine.Options{})
			assert.ErrorIs(t, err, wx.ErrValidation)
		})
	}
}

func TestEngine_DecodeAndClassify(t *testing.T) {
	e := newEngine(t, nil)

	d, err := e.DecodeAndClassify(wx.KindObservation, "METAR KJFK 121651Z 27015KT 10SM TS BKN030CB 22/18 A2992")
	require.NoError(t, err)
	assert.Equal(t, "KJFK", d.Record.StationID())
	assert.Equal(t, wx.SeveritySevere, d.Assessment.Severity)

	d, err = e.DecodeAndClassify(wx.KindObservation, "KSFO 121656Z 00000KT 1/2SM FG OVC004 12/12 A3001")
	require.NoError(t, err)
	assert.Equal(t, wx.FlightRulesLIFR, d.Assessment.FlightRules)

	_, err = e.DecodeAndClassify(wx.ProductKind("BULLETIN"), "anything")
	assert.ErrorIs(t, err, wx.ErrUnsupportedProduct)
}

func TestEngine_NoticesUseStationDirectory(t *testing.T) {
	e := newEngine(t, nil)

	n, err := e.ExtractNotam("!ASE 07/001 ASE RWY 15/33 CLSD")
	require.NoError(t, err)
	assert.Equal(t, wx.SeveritySevere, n.Severity, "Aspen has a single runway")
	assert.Nil(t, n.ExpiresAt)

	record, err := e.Decode(wx.KindNotice, "!DEN 03/002 DEN RWY 16L/34R CLSD")
	require.NoError(t, err)
	assert.Equal(t, wx.SeveritySignificant, record.(*wx.Notam).Severity)
}

func TestEngine_FetchFallsBackToSynthetic(t *testing.T) {
	e := newEngine(t, nil)

	entry, err := e.FetchClassified(context.Background(), "KDEN", wx.KindObservation)
	require.NoError(t, err)
	assert.Equal(t, source.ProvenanceSynthetic, entry.Provenance)

	health := e.SourceHealth()
	require.Len(t, health, 1)
	assert.Equal(t, "down", health[0].Name)
	assert.Equal(t, "connection refused", health[0].LastError)

	assert.Equal(t, 1, e.CacheStats().Entries)
	assert.Equal(t, 1, e.Invalidate(""))
}

func TestEngine_FetchWithoutSynthetic(t *testing.T) {
	e := newEngine(t, func(c *engine.Config) { c.DisableSynthetic = true })

	_, err := e.FetchClassified(context.Background(), "KDEN", wx.KindObservation)
	assert.ErrorIs(t, err, wx.ErrSourceUnavailable)
}

func TestEngine_Brief(t *testing.T) {
	e := newEngine(t, nil)

	b, err := e.Brief(context.Background(), briefing.Request{
		Waypoints: []briefing.Waypoint{{StationID: "KDEN"}, {StationID: "KCOS"}},
	})
	require.NoError(t, err)
	require.Len(t, b.Waypoints, 2)
	for _, w := range b.Waypoints {
		assert.Equal(t, briefing.StatusAvailable, w.Status)
		assert.Equal(t, source.ProvenanceSynthetic, w.Observation.Provenance)
	}
	require.Len(t, b.Segments, 1)
}

func TestEngine_ClassifyBatch(t *testing.T) {
	e := newEngine(t, nil)

	results, err := e.ClassifyBatch(wx.KindObservation, []engine.BatchItem{
		{ID: "KSFO", Raw: "METAR KSFO 121756Z 29012KT 10SM FEW015 14/09 A3002"},
		{ID: "KJFK", Raw: "METAR KJFK 121251Z 18005KT 10SM VCTS FEW050 20/15 A3000"},
		{ID: "KORD", Raw: "   "},
		{ID: "KSEA", Raw: "METAR KSEA 121753Z 18006KT 1/2SM FG VV002 08/08 A2990"},
	})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, "KSFO", results[0].ID)
	require.NoError(t, results[0].Err)
	assert.Equal(t, wx.SeverityClear, results[0].Decoded.Assessment.Severity)

	require.NoError(t, results[1].Err)
	assert.Equal(t, wx.SeveritySevere, results[1].Decoded.Assessment.Severity)

	assert.Nil(t, results[2].Decoded)
	assert.ErrorIs(t, results[2].Err, wx.ErrGrammarMismatch)

	require.NoError(t, results[3].Err)
	assert.Equal(t, wx.FlightRulesLIFR, results[3].Decoded.Assessment.FlightRules)
}

func TestEngine_ClassifyBatchLimits(t *testing.T) {
	e := newEngine(t, nil)

	_, err := e.ClassifyBatch(wx.KindObservation, nil)
	assert.ErrorIs(t, err, wx.ErrValidation)

	_, err = e.ClassifyBatch(wx.KindObservation, make([]engine.BatchItem, engine.MaxBatch+1))
	assert.ErrorIs(t, err, wx.ErrValidation)
}
