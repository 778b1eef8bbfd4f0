package notam_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skybrief/skybrief/internal/notam"
	"github.com/skybrief/skybrief/internal/wx"
)

type runwayCounts map[string]int

func (r runwayCounts) RunwayCount(station string) (int, bool) {
	n, ok := r[station]
	return n, ok
}

func TestExtract_RunwayClosure(t *testing.T) {
	n, err := notam.NewExtractor(nil).Extract("!JFK 06/012 JFK RWY 04L/22R CLSD 2306051200-2306052000")
	require.NoError(t, err)
	assert.Empty(t, n.Issues)

	assert.Equal(t, "JFK 06/012", n.ID)
	assert.Equal(t, "KJFK", n.Station)
	assert.Equal(t, "RWY 04L/22R", n.Facility)
	assert.Equal(t, "CLSD", n.Condition)
	assert.Equal(t, wx.CategoryRunway, n.Category)
	assert.Equal(t, wx.SeveritySignificant, n.Severity)
	require.NotNil(t, n.EffectiveFrom)
	require.NotNil(t, n.ExpiresAt)
	assert.Equal(t, time.Date(2023, 6, 5, 12, 0, 0, 0, time.UTC), *n.EffectiveFrom)
	assert.Equal(t, time.Date(2023, 6, 5, 20, 0, 0, 0, time.UTC), *n.ExpiresAt)

	assert.True(t, n.ActiveAt(time.Date(2023, 6, 5, 15, 0, 0, 0, time.UTC)))
	assert.False(t, n.ActiveAt(time.Date(2023, 6, 5, 21, 0, 0, 0, time.UTC)))
}

func TestExtract_SoleRunwayClosureIsSevere(t *testing.T) {
	ex := notam.NewExtractor(runwayCounts{"KASE": 1, "KJFK": 4})

	n, err := ex.Extract("!ASE 07/001 ASE RWY 15/33 CLSD")
	require.NoError(t, err)
	assert.Equal(t, wx.SeveritySevere, n.Severity)

	n, err = ex.Extract("!JFK 06/012 JFK RWY 04L/22R CLSD")
	require.NoError(t, err)
	assert.Equal(t, wx.SeveritySignificant, n.Severity)

	n, err = ex.Extract("!APA 05/010 APA AD AP CLSD")
	require.NoError(t, err)
	assert.Equal(t, wx.CategoryOther, n.Category)
	assert.Equal(t, wx.SeveritySevere, n.Severity)
}

func TestExtract_NoValidityIsOpenEnded(t *testing.T) {
	n, err := notam.NewExtractor(nil).Extract("!BOS 01/045 BOS TWY B CLSD")
	require.NoError(t, err)

	assert.Nil(t, n.EffectiveFrom)
	assert.Nil(t, n.ExpiresAt)
	assert.Equal(t, wx.CategoryTaxiway, n.Category)
	assert.Equal(t, wx.SeverityClear, n.Severity)
	assert.True(t, n.ActiveAt(time.Now()))
	assert.True(t, n.ActiveAt(time.Now().AddDate(50, 0, 0)))
}

func TestExtract_Categories(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		category wx.NotamCategory
		severity wx.Severity
	}{
		{"navaid outage", "!ORD 03/112 ORD NAV ILS RWY 10L U/S 2301150800-2301201600EST", wx.CategoryNavaid, wx.SeveritySignificant},
		{"airspace", "!DEN 12/003 DEN AIRSPACE TFR WI 3NM RADIUS SFC-3000FT 2312011200-PERM", wx.CategoryAirspace, wx.SeveritySignificant},
		{"unrecognised facility", "!SEA 02/004 SEA CRANE 200FT AGL 1NM N OF RWY 16L", wx.CategoryOther, wx.SeverityClear},
		{"runway lighting", "!MIA 04/020 MIA RWY 09/27 EDGE LGT U/S", wx.CategoryRunway, wx.SeveritySignificant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := notam.NewExtractor(nil).Extract(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.category, n.Category)
			assert.Equal(t, tt.severity, n.Severity)
		})
	}
}

func TestExtract_ValidityForms(t *testing.T) {
	ex := notam.NewExtractor(nil)

	n, err := ex.Extract("!ORD 03/112 ORD NAV ILS RWY 10L U/S 2301150800-2301201600EST")
	require.NoError(t, err)
	assert.True(t, n.Estimated)
	assert.Equal(t, "NAV ILS RWY 10L", n.Facility)
	require.NotNil(t, n.ExpiresAt)

	n, err = ex.Extract("!DEN 12/003 DEN AIRSPACE TFR WI 3NM RADIUS SFC-3000FT 2312011200-PERM")
	require.NoError(t, err)
	assert.True(t, n.Permanent)
	assert.Nil(t, n.ExpiresAt)
	require.NotNil(t, n.EffectiveFrom)

	n, err = ex.Extract("!LAX 08/201 LAX TWY C CLSD WEF 2308010600")
	require.NoError(t, err)
	require.NotNil(t, n.EffectiveFrom)
	assert.Nil(t, n.ExpiresAt)
}

func TestExtract_ICAOItemFormat(t *testing.T) {
	raw := "A1234/23 NOTAMN Q) EGTT/QMRLC/IV/NBO/A/000/999/5129N00028W005 A) EGLL B) 2306051200 C) 2306052000 EST E) RWY 09L/27R CLSD"
	n, err := notam.NewExtractor(nil).Extract(raw)
	require.NoError(t, err)

	assert.Equal(t, "A1234/23", n.ID)
	assert.Equal(t, "EGLL", n.Station)
	assert.Equal(t, wx.CategoryRunway, n.Category)
	assert.Equal(t, "RWY 09L/27R", n.Facility)
	assert.Equal(t, "CLSD", n.Condition)
	assert.True(t, n.Estimated)
	require.NotNil(t, n.ExpiresAt)
	assert.Equal(t, time.Date(2023, 6, 5, 20, 0, 0, 0, time.UTC), *n.ExpiresAt)
}

func TestExtract_Errors(t *testing.T) {
	ex := notam.NewExtractor(nil)

	_, err := ex.Extract("  ")
	assert.ErrorIs(t, err, wx.ErrGrammarMismatch)

	_, err = ex.Extract("RWY 04L CLSD")
	assert.ErrorIs(t, err, wx.ErrGrammarMismatch)

	n, err := ex.Extract("!JFK 06/012 JFK RWY 04L/22R CLSD 2306052000-2306051200")
	require.NoError(t, err)
	require.Len(t, n.Issues, 1)
	assert.ErrorIs(t, n.Issues[0], wx.ErrValidation)
}
