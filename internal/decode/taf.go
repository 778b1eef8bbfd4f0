package decode

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/skybrief/skybrief/internal/grammar"
	"github.com/skybrief/skybrief/internal/wx"
)

var (
	validityPattern    = regexp.MustCompile(`^\d{4}/\d{4}$`)
	fromPattern        = regexp.MustCompile(`^FM(\d{6})$`)
	probPattern        = regexp.MustCompile(`^PROB(\d{2})$`)
	tempExtremePattern = regexp.MustCompile(`^T[XN]M?\d{2}/\d{4}Z$`)
	windShearPattern   = regexp.MustCompile(`^WS\d{3}/\d{5}KT$`)
)

// forecastBuilder accumulates periods in text order while groups are applied.
type forecastBuilder struct {
	forecast *wx.Forecast
	periods  []*wx.ForecastPeriod
}

func (b *forecastBuilder) current() *wx.Conditions {
	if len(b.periods) == 0 {
		b.periods = append(b.periods, &wx.ForecastPeriod{
			Change: wx.ChangeInitial,
			From:   b.forecast.ValidFrom,
			To:     b.forecast.ValidTo,
		})
	}
	return &b.periods[len(b.periods)-1].Conditions
}

var forecastHeaderGroups = []grammar.Group[*forecastBuilder]{
	{Name: "type", Match: grammar.Literal("TAF"), Apply: func(b *forecastBuilder, c *grammar.Cursor) error {
		c.Next()
		return nil
	}},
	{Name: "modifier", Match: grammar.Literal("AMD", "COR"), Apply: func(b *forecastBuilder, c *grammar.Cursor) error {
		if c.Next() == "AMD" {
			b.forecast.Amended = true
		} else {
			b.forecast.Corrected = true
		}
		return nil
	}},
	{Name: "station", Match: grammar.Token(stationPattern), Apply: func(b *forecastBuilder, c *grammar.Cursor) error {
		b.forecast.Station = c.Next()
		return nil
	}},
	{Name: "issue time", Match: grammar.Token(issueTimePattern), Apply: func(b *forecastBuilder, c *grammar.Cursor) error {
		dt, err := grammar.ParseDayTime(c.Next())
		if err != nil {
			return err
		}
		b.forecast.Issued = dt
		return nil
	}},
	{Name: "validity", Match: grammar.Token(validityPattern), Apply: func(b *forecastBuilder, c *grammar.Cursor) error {
		from, to, err := grammar.ParseDayHourRange(c.Next())
		if err != nil {
			return err
		}
		b.forecast.ValidFrom, b.forecast.ValidTo = from, to
		return nil
	}},
}

var periodGroups = append(
	lift(conditionGroups(), (*forecastBuilder).current),
	grammar.Group[*forecastBuilder]{Name: "no significant weather", Match: grammar.Literal("NSW"), Apply: func(b *forecastBuilder, c *grammar.Cursor) error {
		c.Next()
		b.current().NoSigWx = true
		return nil
	}},
	grammar.Group[*forecastBuilder]{Name: "wind shear", Match: grammar.Token(windShearPattern), Apply: skipToken},
	grammar.Group[*forecastBuilder]{Name: "temperature extreme", Match: grammar.Token(tempExtremePattern), Apply: skipToken, Repeat: true},
)

func skipToken(_ *forecastBuilder, c *grammar.Cursor) error {
	c.Next()
	return nil
}

func isChangeMarker(tok string) bool {
	return tok == "BECMG" || tok == "TEMPO" || fromPattern.MatchString(tok) || probPattern.MatchString(tok)
}

// DecodeForecast decodes a terminal aerodrome forecast. Timeline periods
// (initial, FM, BECMG) are ordered by effective start; TEMPO and PROB groups
// are attached as qualifiers of the timeline period in force when they begin.
func DecodeForecast(raw string) (*wx.Forecast, error) {
	tokens := grammar.Tokenize(raw)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty forecast", wx.ErrGrammarMismatch)
	}

	b := &forecastBuilder{forecast: &wx.Forecast{Raw: strings.TrimSpace(raw)}}
	c := grammar.NewCursor(tokens)
	header := append(append([]grammar.Group[*forecastBuilder]{}, forecastHeaderGroups...), periodGroups...)
	issues := grammar.Run(b, c, header, isChangeMarker)

	for !c.Done() {
		markerTok := c.Peek()
		if err := b.openPeriod(c); err != nil {
			issues = append(issues, wx.GroupIssue{Group: "change", Token: markerTok, Err: err})
		}
		issues = append(issues, grammar.Run(b, c, periodGroups, isChangeMarker)...)
	}

	if b.forecast.Station == "" {
		return nil, fmt.Errorf("%w: forecast has no station identifier", wx.ErrGrammarMismatch)
	}
	b.forecast.Issues = issues
	b.forecast.Periods = b.assemble()
	return b.forecast, nil
}

// openPeriod consumes a change marker and starts a new period.
func (b *forecastBuilder) openPeriod(c *grammar.Cursor) error {
	b.current()
	tok := c.Next()
	period := &wx.ForecastPeriod{}
	b.periods = append(b.periods, period)

	if m := fromPattern.FindStringSubmatch(tok); m != nil {
		period.Change = wx.ChangeFrom
		dt, err := grammar.ParseDayTime(m[1])
		period.From = dt
		return err
	}

	switch {
	case tok == "BECMG":
		period.Change = wx.ChangeBecoming
	case tok == "TEMPO":
		period.Change = wx.ChangeTemporary
	default:
		period.Change = wx.ChangeProbability
		period.Probability, _ = strconv.Atoi(probPattern.FindStringSubmatch(tok)[1])
		if c.Peek() == "TEMPO" {
			c.Next()
		}
	}

	if !validityPattern.MatchString(c.Peek()) {
		return fmt.Errorf("%w: %s without validity range", wx.ErrGrammarMismatch, tok)
	}
	from, to, err := grammar.ParseDayHourRange(c.Next())
	period.From, period.To = from, to
	return err
}

func (b *forecastBuilder) assemble() []wx.ForecastPeriod {
	base := b.forecast.ValidFrom
	var timeline, qualifiers []*wx.ForecastPeriod
	for _, p := range b.periods {
		switch p.Change {
		case wx.ChangeTemporary, wx.ChangeProbability:
			qualifiers = append(qualifiers, p)
		default:
			timeline = append(timeline, p)
		}
	}

	sort.SliceStable(timeline, func(i, j int) bool {
		return ordinal(timeline[i].From, base) < ordinal(timeline[j].From, base)
	})
	for i, p := range timeline {
		if p.Change != wx.ChangeFrom {
			continue
		}
		p.To = b.forecast.ValidTo
		for _, next := range timeline[i+1:] {
			if next.Change == wx.ChangeFrom {
				p.To = next.From
				break
			}
		}
	}

	for _, q := range qualifiers {
		if len(timeline) == 0 {
			timeline = append(timeline, q)
			continue
		}
		owner := timeline[0]
		for _, p := range timeline {
			if ordinal(p.From, base) <= ordinal(q.From, base) {
				owner = p
			}
		}
		owner.Qualifiers = append(owner.Qualifiers, *q)
	}

	periods := make([]wx.ForecastPeriod, len(timeline))
	for i, p := range timeline {
		periods[i] = *p
	}
	return periods
}

// ordinal orders day/times within a validity window that may wrap the end of
// a month.
func ordinal(dt, base wx.DayTime) int {
	day := dt.Day
	if day < base.Day {
		day += 31
	}
	return (day*24+dt.Hour)*60 + dt.Minute
}
