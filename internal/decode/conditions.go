package decode

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/skybrief/skybrief/internal/grammar"
	"github.com/skybrief/skybrief/internal/wx"
)

var (
	windPattern        = regexp.MustCompile(`^(VRB|\d{3}|///)(\d{2,3}|//)(?:G(\d{2,3}))?(KT|MPS|KMH)$`)
	windVarPattern     = regexp.MustCompile(`^(\d{3})V(\d{3})$`)
	visSMPattern       = regexp.MustCompile(`^([MP])?(\d{1,2}|\d{1,2}/\d{1,2})SM$`)
	visFractionPattern = regexp.MustCompile(`^\d/\d{1,2}SM$`)
	visWholePattern    = regexp.MustCompile(`^\d$`)
	visMetricPattern   = regexp.MustCompile(`^(\d{4})(NDV)?$`)
	rvrPattern         = regexp.MustCompile(`^R\d{2}[LRC]?/[MP]?\d{4}`)
	weatherPattern     = regexp.MustCompile(`^(-|\+|VC)?(MI|PR|BC|DR|BL|SH|TS|FZ)?((?:DZ|RA|SN|SG|IC|PL|GR|GS|UP|BR|FG|FU|VA|DU|SA|HZ|PY|PO|SQ|FC|SS|DS)*)$`)
	skyPattern         = regexp.MustCompile(`^(FEW|SCT|BKN|OVC|VV)(\d{3}|///)(CB|TCU|///)?$`)
	skyClearPattern    = regexp.MustCompile(`^(SKC|CLR|NSC|NCD)$`)
)

const (
	knotsPerMPS = 1.943844
	knotsPerKMH = 0.539957
)

// conditionGroups is the grammar shared by observations and forecast periods:
// wind, variable wind, visibility, runway visual range, weather and sky.
func conditionGroups() []grammar.Group[*wx.Conditions] {
	return []grammar.Group[*wx.Conditions]{
		{Name: "wind", Match: grammar.Token(windPattern), Apply: applyWind},
		{Name: "variable wind", Match: grammar.Token(windVarPattern), Apply: applyWindVariation},
		{Name: "visibility", Match: matchVisibility, Apply: applyVisibility},
		{Name: "weather", Match: matchWeather, Apply: applyWeather, Repeat: true},
		{Name: "sky", Match: matchSky, Apply: applySky, Repeat: true},
	}
}

// lift adapts condition groups to a record that embeds or owns Conditions.
func lift[R any](groups []grammar.Group[*wx.Conditions], get func(R) *wx.Conditions) []grammar.Group[R] {
	lifted := make([]grammar.Group[R], len(groups))
	for i, g := range groups {
		apply := g.Apply
		lifted[i] = grammar.Group[R]{
			Name:   g.Name,
			Match:  g.Match,
			Repeat: g.Repeat,
			Apply:  func(rec R, c *grammar.Cursor) error { return apply(get(rec), c) },
		}
	}
	return lifted
}

func applyWind(cond *wx.Conditions, c *grammar.Cursor) error {
	raw := c.Next()
	w, err := parseWind(raw)
	if err != nil {
		cond.Wind = wx.Malformed[wx.Wind](raw)
		return err
	}
	cond.Wind = wx.Present(w, raw)
	return nil
}

func parseWind(raw string) (wx.Wind, error) {
	m := windPattern.FindStringSubmatch(raw)
	if m == nil {
		return wx.Wind{}, wx.ErrGrammarMismatch
	}
	if m[1] == "///" || m[2] == "//" {
		return wx.Wind{}, grammar.Invalid("wind not reported")
	}
	w := wx.Wind{Unit: m[4]}
	speed, _ := strconv.Atoi(m[2])
	if m[1] == "VRB" {
		w.Variable = true
	} else {
		w.Direction, _ = strconv.Atoi(m[1])
		if w.Direction > 360 {
			return wx.Wind{}, grammar.Invalid("wind direction %d out of range", w.Direction)
		}
	}
	w.SpeedKt = toKnots(speed, w.Unit)
	if m[3] != "" {
		gust, _ := strconv.Atoi(m[3])
		w.GustKt = toKnots(gust, w.Unit)
		if w.GustKt <= w.SpeedKt {
			return wx.Wind{}, grammar.Invalid("gust %d not above sustained speed %d", gust, speed)
		}
	}
	if w.SpeedKt == 0 && w.GustKt == 0 && !w.Variable && w.Direction == 0 {
		w.Calm = true
	}
	return w, nil
}

func toKnots(v int, unit string) int {
	switch unit {
	case "MPS":
		return int(math.Round(float64(v) * knotsPerMPS))
	case "KMH":
		return int(math.Round(float64(v) * knotsPerKMH))
	}
	return v
}

func applyWindVariation(cond *wx.Conditions, c *grammar.Cursor) error {
	raw := c.Next()
	m := windVarPattern.FindStringSubmatch(raw)
	from, _ := strconv.Atoi(m[1])
	to, _ := strconv.Atoi(m[2])
	if from > 360 || to > 360 {
		return grammar.Invalid("variable wind sector %s out of range", raw)
	}
	if w, ok := cond.Wind.Get(); ok {
		w.VariableFrom, w.VariableTo = from, to
		cond.Wind = wx.Present(w, cond.Wind.Raw+" "+raw)
	}
	return nil
}

func matchVisibility(c *grammar.Cursor) bool {
	tok := c.Peek()
	if tok == "CAVOK" || visSMPattern.MatchString(tok) || visMetricPattern.MatchString(tok) {
		return true
	}
	return visWholePattern.MatchString(tok) && visFractionPattern.MatchString(c.PeekN(1))
}

func applyVisibility(cond *wx.Conditions, c *grammar.Cursor) error {
	tok := c.Next()
	switch {
	case tok == "CAVOK":
		cond.CAVOK = true
		cond.Visibility = wx.Present(wx.Visibility{Value: 9999, Unit: wx.UnitMeters, GreaterThan: true}, tok)
		cond.Sky = wx.Present([]wx.SkyLayer{}, tok)
		return nil

	case visWholePattern.MatchString(tok):
		whole, _ := grammar.Digits(tok)
		frac := c.Next()
		part, ok := grammar.ParseFraction(strings.TrimSuffix(frac, "SM"))
		raw := tok + " " + frac
		if !ok || part >= 1 {
			cond.Visibility = wx.Malformed[wx.Visibility](raw)
			return grammar.Invalid("visibility fraction %s", frac)
		}
		cond.Visibility = wx.Present(wx.Visibility{Value: float64(whole) + part, Unit: wx.UnitStatuteMiles}, raw)
		return nil

	case visSMPattern.MatchString(tok):
		m := visSMPattern.FindStringSubmatch(tok)
		v, ok := grammar.ParseFraction(m[2])
		if !ok {
			cond.Visibility = wx.Malformed[wx.Visibility](tok)
			return grammar.Invalid("visibility %s", tok)
		}
		cond.Visibility = wx.Present(wx.Visibility{
			Value:       v,
			Unit:        wx.UnitStatuteMiles,
			LessThan:    m[1] == "M",
			GreaterThan: m[1] == "P",
		}, tok)
		return nil
	}

	m := visMetricPattern.FindStringSubmatch(tok)
	v, _ := grammar.Digits(m[1])
	cond.Visibility = wx.Present(wx.Visibility{Value: float64(v), Unit: wx.UnitMeters, GreaterThan: v == 9999}, tok)
	return nil
}

func matchWeather(c *grammar.Cursor) bool {
	tok := c.Peek()
	m := weatherPattern.FindStringSubmatch(tok)
	if m == nil {
		return false
	}
	// A bare intensity or vicinity prefix is not a phenomenon.
	return m[2] != "" || m[3] != ""
}

func applyWeather(cond *wx.Conditions, c *grammar.Cursor) error {
	cond.Weather = append(cond.Weather, parsePhenomenon(c.Next()))
	return nil
}

func parsePhenomenon(raw string) wx.Phenomenon {
	m := weatherPattern.FindStringSubmatch(raw)
	p := wx.Phenomenon{Intensity: wx.IntensityModerate, Descriptor: m[2], Raw: raw, Codes: []string{}}
	switch m[1] {
	case "-":
		p.Intensity = wx.IntensityLight
	case "+":
		p.Intensity = wx.IntensityHeavy
	case "VC":
		p.Vicinity = true
	}
	for i := 0; i+2 <= len(m[3]); i += 2 {
		p.Codes = append(p.Codes, m[3][i:i+2])
	}
	return p
}

func matchSky(c *grammar.Cursor) bool {
	tok := c.Peek()
	return skyPattern.MatchString(tok) || skyClearPattern.MatchString(tok)
}

func applySky(cond *wx.Conditions, c *grammar.Cursor) error {
	tok := c.Next()
	layers, _ := cond.Sky.Get()
	raw := strings.TrimSpace(cond.Sky.Raw + " " + tok)

	if skyClearPattern.MatchString(tok) {
		cond.Sky = wx.Present(append([]wx.SkyLayer{}, layers...), raw)
		return nil
	}

	layer, err := parseSkyLayer(tok)
	if err != nil {
		// Keep already decoded layers; the malformed group is reported as an issue.
		if cond.Sky.Status != wx.FieldPresent {
			cond.Sky = wx.Malformed[[]wx.SkyLayer](raw)
		}
		return err
	}
	cond.Sky = wx.Present(append(layers, layer), raw)
	return nil
}

func parseSkyLayer(tok string) (wx.SkyLayer, error) {
	m := skyPattern.FindStringSubmatch(tok)
	if m == nil {
		return wx.SkyLayer{}, wx.ErrGrammarMismatch
	}
	if m[2] == "///" {
		return wx.SkyLayer{}, grammar.Invalid("layer height not reported")
	}
	base, _ := grammar.Digits(m[2])
	layer := wx.SkyLayer{Cover: m[1], BaseFt: base * 100}
	if m[3] != "///" {
		layer.CloudType = m[3]
	}
	return layer, nil
}
