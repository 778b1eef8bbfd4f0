package decode

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/skybrief/skybrief/internal/grammar"
	"github.com/skybrief/skybrief/internal/wx"
)

var (
	pirepElementPattern = regexp.MustCompile(`/(OV|TM|FL|TP|SK|WX|TA|WV|TB|IC|RM)`)
	pirepWindPattern    = regexp.MustCompile(`^(\d{3})(\d{2,3})(KT)?$`)
	pirepSkyPattern     = regexp.MustCompile(`^(FEW|SCT|BKN|OVC|VV)(\d{3})`)
	flightVisPattern    = regexp.MustCompile(`^FV(\d{1,2})SM$`)
)

var hazardRank = map[wx.HazardIntensity]int{
	wx.HazardNone:     0,
	wx.HazardLight:    1,
	wx.HazardModerate: 2,
	wx.HazardSevere:   3,
	wx.HazardExtreme:  4,
}

func element(code string) func(c *grammar.Cursor) bool {
	return func(c *grammar.Cursor) bool { return strings.HasPrefix(c.Peek(), code) }
}

func elementValue(c *grammar.Cursor) string {
	tok := c.Next()
	return strings.TrimSpace(tok[2:])
}

var pilotReportGroups = []grammar.Group[*wx.PilotReport]{
	{Name: "location", Match: element("OV"), Apply: func(p *wx.PilotReport, c *grammar.Cursor) error {
		p.Location = elementValue(c)
		return nil
	}},
	{Name: "time", Match: element("TM"), Apply: func(p *wx.PilotReport, c *grammar.Cursor) error {
		v := elementValue(c)
		n, ok := grammar.Digits(v)
		if !ok || len(v) != 4 || n/100 > 23 || n%100 > 59 {
			p.Time = wx.Malformed[wx.DayTime](v)
			return grammar.Invalid("report time %q", v)
		}
		p.Time = wx.Present(wx.DayTime{Hour: n / 100, Minute: n % 100}, v)
		return nil
	}},
	{Name: "flight level", Match: element("FL"), Apply: func(p *wx.PilotReport, c *grammar.Cursor) error {
		v := elementValue(c)
		if strings.HasPrefix(v, "DUR") {
			return nil
		}
		n, ok := grammar.Digits(v)
		if !ok || len(v) != 3 {
			p.AltitudeFt = wx.Malformed[int](v)
			return grammar.Invalid("flight level %q", v)
		}
		p.AltitudeFt = wx.Present(n*100, v)
		return nil
	}},
	{Name: "aircraft type", Match: element("TP"), Apply: func(p *wx.PilotReport, c *grammar.Cursor) error {
		p.AircraftType = elementValue(c)
		return nil
	}},
	{Name: "sky", Match: element("SK"), Apply: applyPilotSky},
	{Name: "weather", Match: element("WX"), Apply: applyPilotWeather},
	{Name: "temperature", Match: element("TA"), Apply: func(p *wx.PilotReport, c *grammar.Cursor) error {
		v := elementValue(c)
		t, ok := grammar.SignedTemp(v)
		if !ok || t < minTemperatureC || t > maxTemperatureC {
			p.TemperatureC = wx.Malformed[int](v)
			return grammar.Invalid("temperature %q", v)
		}
		p.TemperatureC = wx.Present(t, v)
		return nil
	}},
	{Name: "wind", Match: element("WV"), Apply: func(p *wx.PilotReport, c *grammar.Cursor) error {
		v := elementValue(c)
		m := pirepWindPattern.FindStringSubmatch(v)
		if m == nil {
			p.Wind = wx.Malformed[wx.Wind](v)
			return grammar.Invalid("wind %q", v)
		}
		dir, _ := grammar.Digits(m[1])
		speed, _ := grammar.Digits(m[2])
		if dir > 360 {
			p.Wind = wx.Malformed[wx.Wind](v)
			return grammar.Invalid("wind direction %d out of range", dir)
		}
		p.Wind = wx.Present(wx.Wind{Direction: dir, SpeedKt: speed, Unit: "KT", Calm: dir == 0 && speed == 0}, v)
		return nil
	}},
	{Name: "turbulence", Match: element("TB"), Apply: func(p *wx.PilotReport, c *grammar.Cursor) error {
		v := elementValue(c)
		h, ok := parseHazard(v)
		if !ok {
			p.Turbulence = wx.Malformed[wx.Hazard](v)
			return grammar.Invalid("turbulence %q", v)
		}
		p.Turbulence = wx.Present(h, v)
		return nil
	}},
	{Name: "icing", Match: element("IC"), Apply: func(p *wx.PilotReport, c *grammar.Cursor) error {
		v := elementValue(c)
		h, ok := parseHazard(v)
		if !ok {
			p.Icing = wx.Malformed[wx.Hazard](v)
			return grammar.Invalid("icing %q", v)
		}
		p.Icing = wx.Present(h, v)
		return nil
	}},
	{Name: "remarks", Match: element("RM"), Apply: func(p *wx.PilotReport, c *grammar.Cursor) error {
		p.Remarks = elementValue(c)
		return nil
	}},
}

// DecodePilotReport decodes a routine (UA) or urgent (UUA) pilot report made
// of slash-separated elements.
func DecodePilotReport(raw string) (*wx.PilotReport, error) {
	text := strings.Join(grammar.Tokenize(raw), " ")
	if text == "" {
		return nil, fmt.Errorf("%w: empty pilot report", wx.ErrGrammarMismatch)
	}
	p := &wx.PilotReport{Raw: strings.TrimSpace(raw)}

	bounds := pirepElementPattern.FindAllStringIndex(text, -1)
	if len(bounds) == 0 {
		return nil, fmt.Errorf("%w: pilot report has no elements", wx.ErrGrammarMismatch)
	}

	header := strings.Fields(text[:bounds[0][0]])
	for _, tok := range header {
		switch {
		case tok == "UA":
		case tok == "UUA":
			p.Urgent = true
		case p.Station == "" && (len(tok) == 3 || len(tok) == 4):
			p.Station = tok
		default:
			p.Issues = append(p.Issues, grammar.Mismatch("header", tok))
		}
	}

	elements := make([]string, len(bounds))
	for i, b := range bounds {
		end := len(text)
		if i+1 < len(bounds) {
			end = bounds[i+1][0]
		}
		elements[i] = strings.TrimSpace(text[b[0]+1 : end])
	}
	p.Issues = append(p.Issues, grammar.Run(p, grammar.NewCursor(elements), pilotReportGroups, nil)...)

	if p.Station == "" && p.Location != "" {
		p.Station = strings.Fields(p.Location)[0]
		if len(p.Station) > 4 {
			p.Station = p.Station[:3]
		}
	}
	return p, nil
}

func applyPilotSky(p *wx.PilotReport, c *grammar.Cursor) error {
	v := elementValue(c)
	layers := []wx.SkyLayer{}
	for _, part := range strings.Fields(v) {
		if skyClearPattern.MatchString(part) {
			continue
		}
		m := pirepSkyPattern.FindStringSubmatch(part)
		if m == nil {
			if len(layers) == 0 {
				p.Sky = wx.Malformed[[]wx.SkyLayer](v)
			}
			return grammar.Invalid("sky layer %q", part)
		}
		base, _ := grammar.Digits(m[2])
		layers = append(layers, wx.SkyLayer{Cover: m[1], BaseFt: base * 100})
	}
	p.Sky = wx.Present(layers, v)
	return nil
}

func applyPilotWeather(p *wx.PilotReport, c *grammar.Cursor) error {
	v := elementValue(c)
	for _, part := range strings.Fields(v) {
		if m := flightVisPattern.FindStringSubmatch(part); m != nil {
			miles, _ := grammar.Digits(m[1])
			p.Visibility = wx.Present(wx.Visibility{Value: float64(miles), Unit: wx.UnitStatuteMiles}, part)
			continue
		}
		if !weatherPattern.MatchString(part) {
			return grammar.Invalid("weather %q", part)
		}
		ph := parsePhenomenon(part)
		if ph.Descriptor == "" && len(ph.Codes) == 0 {
			return grammar.Invalid("weather %q", part)
		}
		p.Weather = append(p.Weather, ph)
	}
	return nil
}

// parseHazard reads a turbulence or icing element such as "MOD-SEV CAT 350-390"
// or "LGT RIME". The highest intensity named wins.
func parseHazard(v string) (wx.Hazard, bool) {
	var h wx.Hazard
	found := false
	for _, part := range strings.Fields(v) {
		for _, word := range strings.Split(part, "-") {
			intensity, ok := hazardIntensity(word)
			if !ok {
				continue
			}
			if !found || hazardRank[intensity] > hazardRank[h.Intensity] {
				h.Intensity = intensity
			}
			found = true
		}
		switch {
		case part == "CAT" || part == "CHOP" || part == "LLWS" || part == "RIME" || part == "CLR" || part == "MX" || part == "MXD":
			h.Type = part
		case strings.ContainsAny(part, "0123456789"):
			h.Levels = part
		}
	}
	return h, found
}

func hazardIntensity(word string) (wx.HazardIntensity, bool) {
	switch word {
	case "NEG", "SMTH", "SMOOTH":
		return wx.HazardNone, true
	case "TRACE", "TRC", "LGT", "LIGHT":
		return wx.HazardLight, true
	case "MOD", "MODERATE":
		return wx.HazardModerate, true
	case "SEV", "SEVERE", "HVY":
		return wx.HazardSevere, true
	case "EXTRM", "EXTREME":
		return wx.HazardExtreme, true
	}
	return "", false
}
