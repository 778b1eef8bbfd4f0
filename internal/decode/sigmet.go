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
	firPattern        = regexp.MustCompile(`^[A-Z]{4}$`)
	advisoryValidity  = regexp.MustCompile(`^\d{6}/\d{6}$`)
	officePattern     = regexp.MustCompile(`^[A-Z]{4}-$`)
	latitudePattern   = regexp.MustCompile(`^([NS])(\d{2})(\d{2})?$`)
	longitudePattern  = regexp.MustCompile(`^([EW])(\d{3})(\d{2})?$`)
	flightLevelRange  = regexp.MustCompile(`^(FL\d{3}(/\d{3})?|SFC/FL\d{3}|\d{4,5}FT(/FL\d{3})?)$`)
	movementSpeed     = regexp.MustCompile(`^\d{1,3}(KT|KMH)$`)
	advisoryTypeWords = map[string]wx.AdvisoryType{
		"SIGMET":     wx.AdvisorySIGMET,
		"AIRMET":     wx.AdvisoryAIRMET,
		"CONVECTIVE": wx.AdvisoryConvective,
	}
)

// hazardPhrases lists the hazard descriptions recognised in advisories,
// longest first so that "SEV ICE (FZRA)" wins over "SEV ICE".
var hazardPhrases = [][]string{
	{"SEV", "ICE", "(FZRA)"},
	{"RDOACT", "CLD"},
	{"SEV", "TURB"}, {"SEV", "ICE"}, {"SEV", "MTW"},
	{"EMBD", "TS"}, {"OBSC", "TS"}, {"FRQ", "TS"}, {"SQL", "TS"},
	{"EMBD", "TSGR"}, {"OBSC", "TSGR"}, {"FRQ", "TSGR"}, {"SQL", "TSGR"},
	{"HVY", "DS"}, {"HVY", "SS"},
	{"VA", "CLD"}, {"VA", "ERUPTION"},
	{"MOD", "TURB"}, {"MOD", "ICE"}, {"MOD", "MTW"},
	{"ISOL", "TS"}, {"OCNL", "TS"}, {"ISOL", "CB"}, {"OCNL", "CB"}, {"FRQ", "CB"},
	{"SFC", "WSPD"}, {"SFC", "VIS"}, {"MT", "OBSC"},
	{"BKN", "CLD"}, {"OVC", "CLD"},
	{"TC"}, {"VA"}, {"TS"},
}

func hazardAt(c *grammar.Cursor) []string {
	for _, phrase := range hazardPhrases {
		match := true
		for i, w := range phrase {
			if c.PeekN(i) != w {
				match = false
				break
			}
		}
		if match {
			return phrase
		}
	}
	return nil
}

func isAdvisoryKeyword(tok string) bool {
	switch tok {
	case "OBS", "FCST", "WI", "MOV", "STNR", "INTSF", "WKN", "NC", "CNL", "ENTIRE":
		return true
	}
	return false
}

var advisoryGroups = []grammar.Group[*wx.HazardAdvisory]{
	{Name: "fir", Match: grammar.Token(firPattern), Apply: func(h *wx.HazardAdvisory, c *grammar.Cursor) error {
		h.FIR = c.Next()
		return nil
	}},
	{Name: "type", Match: func(c *grammar.Cursor) bool { _, ok := advisoryTypeWords[c.Peek()]; return ok }, Apply: func(h *wx.HazardAdvisory, c *grammar.Cursor) error {
		h.Type = advisoryTypeWords[c.Next()]
		if h.Type == wx.AdvisoryConvective && c.Peek() == "SIGMET" {
			c.Next()
		}
		return nil
	}},
	{Name: "sequence", Match: func(c *grammar.Cursor) bool { return c.Peek() != "VALID" }, Apply: func(h *wx.HazardAdvisory, c *grammar.Cursor) error {
		var parts []string
		for !c.Done() && c.Peek() != "VALID" && len(parts) < 2 {
			parts = append(parts, c.Next())
		}
		h.Sequence = strings.Join(parts, " ")
		return nil
	}},
	{Name: "validity", Match: grammar.Literal("VALID"), Apply: func(h *wx.HazardAdvisory, c *grammar.Cursor) error {
		c.Next()
		tok := c.Peek()
		if !advisoryValidity.MatchString(tok) {
			return fmt.Errorf("%w: VALID without period", wx.ErrGrammarMismatch)
		}
		c.Next()
		start, end, _ := strings.Cut(tok, "/")
		from, err := grammar.ParseDayTime(start)
		if err != nil {
			return err
		}
		to, err := grammar.ParseDayTime(end)
		if err != nil {
			return err
		}
		h.ValidFrom, h.ValidTo = from, to
		return nil
	}},
	{Name: "office", Match: grammar.Token(officePattern), Apply: func(h *wx.HazardAdvisory, c *grammar.Cursor) error {
		h.Office = strings.TrimSuffix(c.Next(), "-")
		return nil
	}},
	{Name: "fir name", Repeat: true, Match: func(c *grammar.Cursor) bool {
		return hazardAt(c) == nil && !isAdvisoryKeyword(c.Peek())
	}, Apply: func(h *wx.HazardAdvisory, c *grammar.Cursor) error {
		c.Next()
		return nil
	}},
	{Name: "cancellation", Match: grammar.Literal("CNL"), Apply: func(h *wx.HazardAdvisory, c *grammar.Cursor) error {
		h.Cancelled = true
		c.Rest()
		return nil
	}},
	{Name: "hazard", Match: func(c *grammar.Cursor) bool { return hazardAt(c) != nil }, Apply: func(h *wx.HazardAdvisory, c *grammar.Cursor) error {
		phrase := hazardAt(c)
		c.Skip(len(phrase))
		h.Hazard = strings.Join(phrase, " ")
		return nil
	}},
	{Name: "observed", Match: grammar.Literal("OBS", "FCST"), Apply: func(h *wx.HazardAdvisory, c *grammar.Cursor) error {
		h.Observed = c.Next() == "OBS"
		if c.Peek() == "AT" {
			c.Skip(2)
		}
		return nil
	}},
	{Name: "area", Match: grammar.Literal("WI", "ENTIRE"), Apply: applyArea},
	{Name: "levels", Match: func(c *grammar.Cursor) bool {
		tok := c.Peek()
		return flightLevelRange.MatchString(tok) || tok == "TOP" || tok == "ABV" || tok == "BLW"
	}, Apply: func(h *wx.HazardAdvisory, c *grammar.Cursor) error {
		tok := c.Next()
		if tok == "TOP" || tok == "ABV" || tok == "BLW" {
			tok += " " + c.Next()
		}
		h.Levels = tok
		return nil
	}},
	{Name: "movement", Match: grammar.Literal("MOV", "STNR"), Apply: func(h *wx.HazardAdvisory, c *grammar.Cursor) error {
		if c.Next() == "STNR" {
			h.Movement = "STNR"
			return nil
		}
		dir := c.Next()
		h.Movement = dir
		if movementSpeed.MatchString(c.Peek()) {
			h.Movement += " " + c.Next()
		}
		return nil
	}},
	{Name: "change", Match: grammar.Literal("INTSF", "WKN", "NC"), Apply: func(h *wx.HazardAdvisory, c *grammar.Cursor) error {
		h.Change = c.Next()
		return nil
	}},
}

// DecodeHazardAdvisory decodes a SIGMET, convective SIGMET or AIRMET.
func DecodeHazardAdvisory(raw string) (*wx.HazardAdvisory, error) {
	tokens := grammar.Tokenize(raw)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty advisory", wx.ErrGrammarMismatch)
	}
	h := &wx.HazardAdvisory{Raw: strings.TrimSpace(raw)}
	h.Issues = grammar.Run(h, grammar.NewCursor(tokens), advisoryGroups, nil)
	if h.Type == "" {
		return nil, fmt.Errorf("%w: no SIGMET or AIRMET designator", wx.ErrGrammarMismatch)
	}
	return h, nil
}

func applyArea(h *wx.HazardAdvisory, c *grammar.Cursor) error {
	if c.Next() == "ENTIRE" {
		if c.Peek() == "FIR" {
			c.Next()
		}
		return nil
	}
	var points []wx.Point
	for !c.Done() {
		tok := c.Peek()
		if tok == "-" {
			c.Next()
			continue
		}
		lat, ok := parseCoordinate(tok, latitudePattern)
		if !ok {
			break
		}
		lon, ok := parseCoordinate(c.PeekN(1), longitudePattern)
		if !ok {
			return grammar.Invalid("latitude %s without longitude", tok)
		}
		c.Skip(2)
		points = append(points, wx.Point{Lat: lat, Lon: lon})
	}
	if len(points) < 3 {
		return grammar.Invalid("area has %d points, need at least 3", len(points))
	}
	h.Area = points
	return nil
}

func parseCoordinate(tok string, re *regexp.Regexp) (float64, bool) {
	m := re.FindStringSubmatch(tok)
	if m == nil {
		return 0, false
	}
	deg, _ := strconv.Atoi(m[2])
	v := float64(deg)
	if m[3] != "" {
		minutes, _ := strconv.Atoi(m[3])
		v += float64(minutes) / 60
	}
	if m[1] == "S" || m[1] == "W" {
		v = -v
	}
	return v, true
}
