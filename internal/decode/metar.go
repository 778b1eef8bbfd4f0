package decode

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/skybrief/skybrief/internal/grammar"
	"github.com/skybrief/skybrief/internal/wx"
)

var (
	stationPattern     = regexp.MustCompile(`^[A-Z][A-Z0-9]{3}$`)
	issueTimePattern   = regexp.MustCompile(`^\d{6}Z$`)
	temperaturePattern = regexp.MustCompile(`^(M?\d{2})/(M?\d{2})?$`)
	altimeterPattern   = regexp.MustCompile(`^([AQ])(\d{4})$`)
)

const (
	minTemperatureC = -90
	maxTemperatureC = 60
	minInHg         = 25.0
	maxInHg         = 35.0
	minHPa          = 850
	maxHPa          = 1100
)

var observationGroups = buildObservationGroups()

func buildObservationGroups() []grammar.Group[*wx.Observation] {
	groups := []grammar.Group[*wx.Observation]{
		{Name: "type", Match: grammar.Literal("METAR", "SPECI"), Apply: func(o *wx.Observation, c *grammar.Cursor) error {
			o.Type = c.Next()
			return nil
		}},
		{Name: "station", Match: grammar.Token(stationPattern), Apply: func(o *wx.Observation, c *grammar.Cursor) error {
			o.Station = c.Next()
			return nil
		}},
		{Name: "time", Match: grammar.Token(issueTimePattern), Apply: func(o *wx.Observation, c *grammar.Cursor) error {
			dt, err := grammar.ParseDayTime(c.Next())
			if err != nil {
				return err
			}
			o.Issued = dt
			return nil
		}},
		{Name: "modifier", Match: grammar.Literal("AUTO", "COR"), Apply: func(o *wx.Observation, c *grammar.Cursor) error {
			switch c.Next() {
			case "AUTO":
				o.Auto = true
			case "COR":
				o.Corrected = true
			}
			return nil
		}, Repeat: true},
		{Name: "nil report", Match: grammar.Literal("NIL"), Apply: func(o *wx.Observation, c *grammar.Cursor) error {
			c.Next()
			return nil
		}},
	}

	conditions := lift(conditionGroups(), func(o *wx.Observation) *wx.Conditions { return &o.Conditions })
	// Runway visual range sits between visibility and present weather.
	rvr := grammar.Group[*wx.Observation]{
		Name:   "runway visual range",
		Match:  grammar.Token(rvrPattern),
		Repeat: true,
		Apply: func(o *wx.Observation, c *grammar.Cursor) error {
			o.RunwayVisualRange = append(o.RunwayVisualRange, c.Next())
			return nil
		},
	}
	groups = append(groups, conditions[:3]...)
	groups = append(groups, rvr)
	groups = append(groups, conditions[3:]...)

	return append(groups,
		grammar.Group[*wx.Observation]{Name: "temperature", Match: grammar.Token(temperaturePattern), Apply: applyTemperature},
		grammar.Group[*wx.Observation]{Name: "altimeter", Match: grammar.Token(altimeterPattern), Apply: applyAltimeter},
	)
}

// DecodeObservation decodes a METAR or SPECI report.
func DecodeObservation(raw string) (*wx.Observation, error) {
	obs := &wx.Observation{Raw: strings.TrimSpace(raw)}
	tokens := grammar.Tokenize(raw)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty observation", wx.ErrGrammarMismatch)
	}

	c := grammar.NewCursor(tokens)
	obs.Issues = grammar.Run(obs, c, observationGroups, func(tok string) bool { return tok == "RMK" })
	if c.Peek() == "RMK" {
		c.Next()
		obs.Remarks = strings.Join(c.Rest(), " ")
	}

	if obs.Station == "" {
		return nil, fmt.Errorf("%w: observation has no station identifier", wx.ErrGrammarMismatch)
	}
	if obs.Type == "" {
		obs.Type = "METAR"
	}
	return obs, nil
}

func applyTemperature(o *wx.Observation, c *grammar.Cursor) error {
	raw := c.Next()
	m := temperaturePattern.FindStringSubmatch(raw)
	temp, _ := grammar.SignedTemp(m[1])
	if temp < minTemperatureC || temp > maxTemperatureC {
		o.Temperature = wx.Malformed[int](raw)
		o.DewPoint = wx.Malformed[int](raw)
		return grammar.Invalid("temperature %d out of range", temp)
	}
	o.Temperature = wx.Present(temp, raw)
	if m[2] == "" {
		return nil
	}
	dew, _ := grammar.SignedTemp(m[2])
	if dew > temp {
		o.DewPoint = wx.Malformed[int](raw)
		return grammar.Invalid("dew point %d above temperature %d", dew, temp)
	}
	o.DewPoint = wx.Present(dew, raw)
	return nil
}

func applyAltimeter(o *wx.Observation, c *grammar.Cursor) error {
	raw := c.Next()
	m := altimeterPattern.FindStringSubmatch(raw)
	n, _ := strconv.Atoi(m[2])
	if m[1] == "A" {
		inHg := float64(n) / 100
		if inHg < minInHg || inHg > maxInHg {
			o.Altimeter = wx.Malformed[wx.Altimeter](raw)
			return grammar.Invalid("altimeter %.2f inHg out of range", inHg)
		}
		o.Altimeter = wx.Present(wx.Altimeter{Value: inHg, Unit: "inHg"}, raw)
		return nil
	}
	if n < minHPa || n > maxHPa {
		o.Altimeter = wx.Malformed[wx.Altimeter](raw)
		return grammar.Invalid("altimeter %d hPa out of range", n)
	}
	o.Altimeter = wx.Present(wx.Altimeter{Value: float64(n), Unit: "hPa"}, raw)
	return nil
}
