// Package classify assigns a severity level and flight-rules category to
// decoded records. Classification is a pure function of the record and the
// threshold table.
package classify

import (
	"fmt"

	"github.com/skybrief/skybrief/internal/wx"
)

// Reason names the rule that fixed an assessment's severity.
type Reason string

const (
	ReasonNone                  Reason = "NONE"
	ReasonSeverePhenomenon      Reason = "SEVERE_PHENOMENON"
	ReasonGustSpread            Reason = "GUST_SPREAD"
	ReasonSustainedWind         Reason = "SUSTAINED_WIND"
	ReasonSignificantPhenomenon Reason = "SIGNIFICANT_PHENOMENON"
	ReasonLowCeiling            Reason = "LOW_CEILING"
	ReasonLowVisibility         Reason = "LOW_VISIBILITY"
	ReasonUrgentPilotReport     Reason = "URGENT_PILOT_REPORT"
	ReasonTurbulence            Reason = "TURBULENCE"
	ReasonIcing                 Reason = "ICING"
	ReasonHazardAdvisory        Reason = "HAZARD_ADVISORY"
	ReasonNotice                Reason = "NOTICE"
)

// Assessment is the outcome of classifying one record.
type Assessment struct {
	Severity    wx.Severity    `json:"severity"`
	FlightRules wx.FlightRules `json:"flightRules,omitempty"`
	Reason      Reason         `json:"reason"`
	Detail      string         `json:"detail,omitempty"`
}

// severeCodes always raise a record to SEVERE.
var severeCodes = []string{"TS", "FC", "SQ", "GR", "VA", "DS", "SS"}

// precipitationCodes are significant unless reported as light.
var precipitationCodes = []string{"RA", "DZ", "SN", "SG", "PL", "GS", "IC", "UP"}

// obscurationCodes are significant only when visibility is reduced.
var obscurationCodes = []string{"BR", "HZ", "FU", "DU", "SA", "PY"}

// Classifier applies a threshold table to records.
type Classifier struct {
	th Thresholds
}

// New returns a classifier using th.
func New(th Thresholds) *Classifier {
	return &Classifier{th: th}
}

// Thresholds returns the table in use.
func (c *Classifier) Thresholds() Thresholds { return c.th }

// Classify assesses any decoded record.
func (c *Classifier) Classify(r wx.Record) (Assessment, error) {
	switch rec := r.(type) {
	case *wx.Observation:
		return c.Conditions(rec.Conditions), nil
	case *wx.Forecast:
		return c.Forecast(rec), nil
	case *wx.PilotReport:
		return c.PilotReport(rec), nil
	case *wx.HazardAdvisory:
		return c.HazardAdvisory(rec), nil
	case *wx.Notam:
		return Assessment{Severity: rec.Severity, Reason: ReasonNotice, Detail: rec.Description}, nil
	case nil:
		return Assessment{}, fmt.Errorf("%w: nil record", wx.ErrValidation)
	}
	return Assessment{}, fmt.Errorf("%w: %s", wx.ErrUnsupportedProduct, r.Product())
}

// Conditions assesses an observation or forecast period. The first matching
// rule in priority order decides severity: severe phenomenon, wind, significant
// phenomenon, low ceiling or visibility. Flight rules are computed separately.
func (c *Classifier) Conditions(cond wx.Conditions) Assessment {
	ceiling, hasCeiling := cond.Ceiling()
	vis, hasVis := visibilitySM(cond)
	a := Assessment{
		Severity:    wx.SeverityClear,
		FlightRules: c.FlightRules(ceiling, hasCeiling, vis, hasVis),
		Reason:      ReasonNone,
	}

	reducedVis := hasVis && vis < c.th.MVFRVisibilitySM
	for _, p := range cond.Weather {
		if phenomenonSeverity(p, reducedVis) == wx.SeveritySevere {
			return a.with(wx.SeveritySevere, ReasonSeverePhenomenon, p.Raw)
		}
	}

	if w, ok := cond.Wind.Get(); ok {
		if w.GustSpread() >= c.th.GustSpreadKt {
			return a.with(wx.SeveritySevere, ReasonGustSpread, fmt.Sprintf("gusts %d kt over sustained %d kt", w.GustKt, w.SpeedKt))
		}
		if w.SpeedKt >= c.th.SustainedWindKt {
			return a.with(wx.SeveritySevere, ReasonSustainedWind, fmt.Sprintf("sustained wind %d kt", w.SpeedKt))
		}
	}

	for _, p := range cond.Weather {
		if phenomenonSeverity(p, reducedVis) == wx.SeveritySignificant {
			return a.with(wx.SeveritySignificant, ReasonSignificantPhenomenon, p.Raw)
		}
	}

	if hasCeiling && ceiling < c.th.SignificantCeilingFt {
		return a.with(wx.SeveritySignificant, ReasonLowCeiling, fmt.Sprintf("ceiling %d ft", ceiling))
	}
	if hasVis && vis < c.th.SignificantVisibilitySM {
		return a.with(wx.SeveritySignificant, ReasonLowVisibility, fmt.Sprintf("visibility %.2f SM", vis))
	}
	return a
}

func (a Assessment) with(sev wx.Severity, reason Reason, detail string) Assessment {
	a.Severity, a.Reason, a.Detail = sev, reason, detail
	return a
}

// FlightRules derives the category from ceiling and visibility. A missing
// value does not restrict the category; with both missing the category is
// unknown and the empty value is returned.
func (c *Classifier) FlightRules(ceilingFt int, hasCeiling bool, visSM float64, hasVis bool) wx.FlightRules {
	if !hasCeiling && !hasVis {
		return ""
	}
	below := func(ceilingCut int, visCut float64) bool {
		return (hasCeiling && ceilingFt < ceilingCut) || (hasVis && visSM < visCut)
	}
	switch {
	case below(c.th.LIFRCeilingFt, c.th.LIFRVisibilitySM):
		return wx.FlightRulesLIFR
	case below(c.th.IFRCeilingFt, c.th.IFRVisibilitySM):
		return wx.FlightRulesIFR
	case below(c.th.MVFRCeilingFt, c.th.MVFRVisibilitySM):
		return wx.FlightRulesMVFR
	}
	return wx.FlightRulesVFR
}

// Forecast returns the worst assessment over every period and qualifier.
func (c *Classifier) Forecast(f *wx.Forecast) Assessment {
	worst := Assessment{Severity: wx.SeverityClear, Reason: ReasonNone}
	first := true
	var visit func(p wx.ForecastPeriod)
	visit = func(p wx.ForecastPeriod) {
		a := c.Conditions(p.Conditions)
		if a.Reason != ReasonNone {
			a.Detail = fmt.Sprintf("%s %s: %s", p.Change, p.From, a.Detail)
		}
		rules := wx.WorstFlightRules(worst.FlightRules, a.FlightRules)
		if first || a.Severity > worst.Severity {
			worst = a
		}
		worst.FlightRules = rules
		first = false
		for _, q := range p.Qualifiers {
			visit(q)
		}
	}
	for _, p := range f.Periods {
		visit(p)
	}
	return worst
}

// PilotReport grades urgent reports and severe turbulence or icing as SEVERE,
// moderate encounters as SIGNIFICANT, and otherwise falls back to the
// reported weather. Flight rules do not apply.
func (c *Classifier) PilotReport(p *wx.PilotReport) Assessment {
	a := Assessment{Severity: wx.SeverityClear, Reason: ReasonNone}
	if p.Urgent {
		return a.with(wx.SeveritySevere, ReasonUrgentPilotReport, "urgent pilot report")
	}
	for _, h := range []struct {
		field  wx.Field[wx.Hazard]
		reason Reason
	}{{p.Turbulence, ReasonTurbulence}, {p.Icing, ReasonIcing}} {
		hz, ok := h.field.Get()
		if !ok {
			continue
		}
		switch hz.Intensity {
		case wx.HazardSevere, wx.HazardExtreme:
			return a.with(wx.SeveritySevere, h.reason, h.field.Raw)
		case wx.HazardModerate:
			if a.Severity < wx.SeveritySignificant {
				a = a.with(wx.SeveritySignificant, h.reason, h.field.Raw)
			}
		}
	}

	// Winds aloft are not graded against surface wind limits.
	cond := c.Conditions(wx.Conditions{Visibility: p.Visibility, Weather: p.Weather, Sky: p.Sky})
	if cond.Severity > a.Severity {
		a = cond
	}
	a.FlightRules = ""
	return a
}

// HazardAdvisory grades SIGMETs as SEVERE and AIRMETs as SIGNIFICANT.
// Cancellations are CLEAR.
func (c *Classifier) HazardAdvisory(h *wx.HazardAdvisory) Assessment {
	a := Assessment{Severity: wx.SeverityClear, Reason: ReasonNone}
	if h.Cancelled {
		return a
	}
	if h.Type == wx.AdvisoryAIRMET {
		return a.with(wx.SeveritySignificant, ReasonHazardAdvisory, h.Hazard)
	}
	return a.with(wx.SeveritySevere, ReasonHazardAdvisory, h.Hazard)
}

func visibilitySM(cond wx.Conditions) (float64, bool) {
	v, ok := cond.Visibility.Get()
	if !ok {
		return 0, false
	}
	return v.StatuteMiles(), true
}

// phenomenonSeverity grades a single weather group. Severe codes are SEVERE
// wherever they are reported; other vicinity phenomena are one level below
// the same phenomenon at the station.
func phenomenonSeverity(p wx.Phenomenon, reducedVis bool) wx.Severity {
	sev := wx.SeverityClear
	switch {
	case hasAny(p, severeCodes), p.Descriptor == "FZ" && (p.Has("RA") || p.Has("DZ")):
		sev = wx.SeveritySevere
	case hasAny(p, precipitationCodes) && p.Intensity != wx.IntensityLight,
		p.Descriptor == "SH" && p.Intensity != wx.IntensityLight,
		p.Has("FG"),
		p.Descriptor == "BL",
		hasAny(p, obscurationCodes) && reducedVis:
		sev = wx.SeveritySignificant
	}
	if p.Vicinity && sev == wx.SeveritySignificant {
		sev--
	}
	return sev
}

func hasAny(p wx.Phenomenon, codes []string) bool {
	for _, code := range codes {
		if p.Has(code) {
			return true
		}
	}
	return false
}
