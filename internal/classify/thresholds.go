package classify

import (
	"fmt"

	"github.com/skybrief/skybrief/internal/wx"
)

// Canonical threshold table. Ceilings are in feet above ground, visibility
// in statute miles, wind in knots. Every comparison is strictly "below" for
// ceiling and visibility and "at or above" for wind.
const (
	DefaultLIFRCeilingFt    = 500
	DefaultLIFRVisibilitySM = 1.0
	DefaultIFRCeilingFt     = 1000
	DefaultIFRVisibilitySM  = 3.0
	DefaultMVFRCeilingFt    = 2000
	DefaultMVFRVisibilitySM = 6.0

	DefaultGustSpreadKt    = 15
	DefaultSustainedWindKt = 30

	DefaultSignificantCeilingFt    = 1000
	DefaultSignificantVisibilitySM = 3.0
)

// Thresholds holds every cut point used by the classifier.
type Thresholds struct {
	LIFRCeilingFt    int     `json:"lifrCeilingFt"`
	LIFRVisibilitySM float64 `json:"lifrVisibilitySm"`
	IFRCeilingFt     int     `json:"ifrCeilingFt"`
	IFRVisibilitySM  float64 `json:"ifrVisibilitySm"`
	MVFRCeilingFt    int     `json:"mvfrCeilingFt"`
	MVFRVisibilitySM float64 `json:"mvfrVisibilitySm"`

	GustSpreadKt    int `json:"gustSpreadKt"`
	SustainedWindKt int `json:"sustainedWindKt"`

	SignificantCeilingFt    int     `json:"significantCeilingFt"`
	SignificantVisibilitySM float64 `json:"significantVisibilitySm"`
}

// DefaultThresholds returns the canonical threshold table.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LIFRCeilingFt:           DefaultLIFRCeilingFt,
		LIFRVisibilitySM:        DefaultLIFRVisibilitySM,
		IFRCeilingFt:            DefaultIFRCeilingFt,
		IFRVisibilitySM:         DefaultIFRVisibilitySM,
		MVFRCeilingFt:           DefaultMVFRCeilingFt,
		MVFRVisibilitySM:        DefaultMVFRVisibilitySM,
		GustSpreadKt:            DefaultGustSpreadKt,
		SustainedWindKt:         DefaultSustainedWindKt,
		SignificantCeilingFt:    DefaultSignificantCeilingFt,
		SignificantVisibilitySM: DefaultSignificantVisibilitySM,
	}
}

// Validate checks that the flight-rules cut points are ordered and positive.
func (t Thresholds) Validate() error {
	if t.LIFRCeilingFt <= 0 || t.LIFRCeilingFt >= t.IFRCeilingFt || t.IFRCeilingFt >= t.MVFRCeilingFt {
		return fmt.Errorf("%w: ceiling thresholds must satisfy 0 < LIFR < IFR < MVFR", wx.ErrValidation)
	}
	if t.LIFRVisibilitySM <= 0 || t.LIFRVisibilitySM >= t.IFRVisibilitySM || t.IFRVisibilitySM >= t.MVFRVisibilitySM {
		return fmt.Errorf("%w: visibility thresholds must satisfy 0 < LIFR < IFR < MVFR", wx.ErrValidation)
	}
	if t.GustSpreadKt <= 0 || t.SustainedWindKt <= 0 {
		return fmt.Errorf("%w: wind thresholds must be positive", wx.ErrValidation)
	}
	if t.SignificantCeilingFt <= 0 || t.SignificantVisibilitySM <= 0 {
		return fmt.Errorf("%w: significant ceiling and visibility must be positive", wx.ErrValidation)
	}
	return nil
}
