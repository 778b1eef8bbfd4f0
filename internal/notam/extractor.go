// Package notam extracts structured notices from NOTAM text.
package notam

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/skybrief/skybrief/internal/grammar"
	"github.com/skybrief/skybrief/internal/wx"
)

var (
	accountabilityPattern = regexp.MustCompile(`^!([A-Z0-9]{3,4})$`)
	domesticNumberPattern = regexp.MustCompile(`^\d{2}/\d{3,4}$`)
	icaoNumberPattern     = regexp.MustCompile(`^[A-Z]\d{4}/\d{2}$`)
	locationPattern       = regexp.MustCompile(`^[A-Z][A-Z0-9]{2,3}$`)
	rangePattern          = regexp.MustCompile(`^(\d{10})-(\d{10}|PERM)(EST)?$`)
	stampPattern          = regexp.MustCompile(`^\d{10}(EST)?$`)
	designatorPattern     = regexp.MustCompile(`^(\d{2}[LRC]?(/\d{2}[LRC]?)?|[A-Z]{1,2}\d{0,2}|ILS|LOC|VOR|VORTAC|DME|NDB|TACAN|RWY|TWY|PAPI|VASI|ALS|REIL|ALL)$`)
	icaoItemPattern       = regexp.MustCompile(`\b([A-GQ])\)\s*`)
)

// facilityCategories maps the leading facility keyword to its category.
var facilityCategories = map[string]wx.NotamCategory{
	"RWY":      wx.CategoryRunway,
	"RUNWAY":   wx.CategoryRunway,
	"TWY":      wx.CategoryTaxiway,
	"TAXIWAY":  wx.CategoryTaxiway,
	"NAV":      wx.CategoryNavaid,
	"NAVAID":   wx.CategoryNavaid,
	"ILS":      wx.CategoryNavaid,
	"LOC":      wx.CategoryNavaid,
	"VOR":      wx.CategoryNavaid,
	"VORTAC":   wx.CategoryNavaid,
	"DME":      wx.CategoryNavaid,
	"NDB":      wx.CategoryNavaid,
	"TACAN":    wx.CategoryNavaid,
	"GPS":      wx.CategoryNavaid,
	"GNSS":     wx.CategoryNavaid,
	"RNAV":     wx.CategoryNavaid,
	"AIRSPACE": wx.CategoryAirspace,
	"TFR":      wx.CategoryAirspace,
	"SUA":      wx.CategoryAirspace,
	"AD":       wx.CategoryOther,
	"APRON":    wx.CategoryOther,
	"RAMP":     wx.CategoryOther,
	"OBST":     wx.CategoryOther,
	"SVC":      wx.CategoryOther,
	"COM":      wx.CategoryOther,
}

// closureWords mark a facility as closed or unusable.
var closureWords = []string{"CLSD", "CLOSED", "UNUSABLE"}

// outageWords mark equipment as out of service.
var outageWords = []string{"U/S", "UNSERVICEABLE", "OTS", "UNAVBL", "UNAVAILABLE", "INOP", "INOPERATIVE", "FAILURE", "OUT OF SERVICE"}

// RunwayCounter reports how many runways a station has.
type RunwayCounter interface {
	RunwayCount(station string) (int, bool)
}

// Extractor turns NOTAM text into wx.Notam records.
type Extractor struct {
	runways RunwayCounter
}

// NewExtractor returns an extractor. runways may be nil, in which case no
// runway closure is treated as closing the primary operational surface.
func NewExtractor(runways RunwayCounter) *Extractor {
	return &Extractor{runways: runways}
}

// notamBuilder collects group values before the record is finalised.
type notamBuilder struct {
	n         *wx.Notam
	facility  []string
	condition []string
}

var notamGroups = []grammar.Group[*notamBuilder]{
	{Name: "identifier", Match: matchIdentifier, Apply: applyIdentifier},
	{Name: "station", Match: func(c *grammar.Cursor) bool {
		tok := c.Peek()
		_, keyword := facilityCategories[tok]
		return locationPattern.MatchString(tok) && !keyword
	}, Apply: func(b *notamBuilder, c *grammar.Cursor) error {
		b.n.Station = normalizeStation(c.Next())
		return nil
	}},
	{Name: "facility", Match: func(c *grammar.Cursor) bool {
		_, ok := facilityCategories[c.Peek()]
		return ok
	}, Apply: func(b *notamBuilder, c *grammar.Cursor) error {
		b.facility = append(b.facility, c.Next())
		for !c.Done() && designatorPattern.MatchString(c.Peek()) && !isConditionWord(c.Peek()) {
			b.facility = append(b.facility, c.Next())
		}
		return nil
	}},
	{Name: "condition", Repeat: true, Match: func(c *grammar.Cursor) bool {
		return !isValidity(c)
	}, Apply: func(b *notamBuilder, c *grammar.Cursor) error {
		b.condition = append(b.condition, c.Next())
		return nil
	}},
	{Name: "validity", Match: isValidity, Apply: applyValidity},
}

// Extract parses domestic ("!JFK 06/012 JFK RWY 04L/22R CLSD
// 2306051200-2306052000") and ICAO item-format ("A) ... B) ... C) ... E) ...")
// notices. A notice without a validity interval is effective immediately and
// has no expiry.
func (e *Extractor) Extract(raw string) (*wx.Notam, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, fmt.Errorf("%w: empty notice", wx.ErrGrammarMismatch)
	}

	b := &notamBuilder{n: &wx.Notam{Raw: text}}
	if icaoItemPattern.MatchString(text) && strings.Contains(text, "E)") {
		if err := b.extractItems(text); err != nil {
			return nil, err
		}
	} else {
		b.n.Issues = grammar.Run(b, grammar.NewCursor(grammar.Tokenize(text)), notamGroups, nil)
	}

	if b.n.Station == "" {
		return nil, fmt.Errorf("%w: notice has no location", wx.ErrGrammarMismatch)
	}
	if len(b.condition) == 0 && len(b.facility) == 0 {
		return nil, fmt.Errorf("%w: notice has no facility or condition", wx.ErrGrammarMismatch)
	}
	if b.n.EffectiveFrom != nil && b.n.ExpiresAt != nil && !b.n.ExpiresAt.After(*b.n.EffectiveFrom) {
		b.n.Issues = append(b.n.Issues, wx.GroupIssue{
			Group: "validity",
			Token: b.n.ExpiresAt.Format(time.RFC3339),
			Err:   grammar.Invalid("expiry not after effective time"),
		})
	}

	b.n.Facility = strings.Join(b.facility, " ")
	b.n.Condition = strings.Join(b.condition, " ")
	b.n.Description = strings.TrimSpace(b.n.Facility + " " + b.n.Condition)
	b.n.Category = CategoryOf(b.facility)
	b.n.Severity = e.severity(b.n.Station, b.n.Category, b.facility, b.n.Condition)
	return b.n, nil
}

// CategoryOf classifies a facility clause by its leading keyword. An empty or
// unrecognised clause is OTHER.
func CategoryOf(facility []string) wx.NotamCategory {
	if len(facility) == 0 {
		return wx.CategoryOther
	}
	if cat, ok := facilityCategories[facility[0]]; ok {
		return cat
	}
	return wx.CategoryOther
}

func (e *Extractor) severity(station string, cat wx.NotamCategory, facility []string, condition string) wx.Severity {
	closed := containsAny(condition, closureWords)
	outage := containsAny(condition, outageWords)

	switch cat {
	case wx.CategoryRunway:
		if closed && e.primarySurface(station, facility) {
			return wx.SeveritySevere
		}
		return wx.SeveritySignificant
	case wx.CategoryNavaid:
		if closed || outage {
			return wx.SeveritySignificant
		}
	case wx.CategoryAirspace:
		return wx.SeveritySignificant
	case wx.CategoryOther:
		if closed && len(facility) > 0 && facility[0] == "AD" {
			return wx.SeveritySevere
		}
	}
	return wx.SeverityClear
}

// primarySurface reports whether closing the runway leaves the station with
// no usable runway.
func (e *Extractor) primarySurface(station string, facility []string) bool {
	for _, f := range facility {
		if f == "ALL" {
			return true
		}
	}
	if e.runways == nil {
		return false
	}
	n, ok := e.runways.RunwayCount(station)
	return ok && n == 1
}

func matchIdentifier(c *grammar.Cursor) bool {
	tok := c.Peek()
	return accountabilityPattern.MatchString(tok) || domesticNumberPattern.MatchString(tok) || icaoNumberPattern.MatchString(tok)
}

func applyIdentifier(b *notamBuilder, c *grammar.Cursor) error {
	tok := c.Next()
	if m := accountabilityPattern.FindStringSubmatch(tok); m != nil {
		if !domesticNumberPattern.MatchString(c.Peek()) {
			b.n.ID = m[1]
			return fmt.Errorf("%w: accountability %s without notice number", wx.ErrGrammarMismatch, tok)
		}
		b.n.ID = m[1] + " " + c.Next()
		return nil
	}
	b.n.ID = tok
	if strings.HasPrefix(c.Peek(), "NOTAM") {
		c.Next()
	}
	return nil
}

func isValidity(c *grammar.Cursor) bool {
	tok := c.Peek()
	switch tok {
	case "WEF", "TIL", "UNTIL":
		return stampPattern.MatchString(c.PeekN(1)) || c.PeekN(1) == "PERM"
	}
	return rangePattern.MatchString(tok)
}

func applyValidity(b *notamBuilder, c *grammar.Cursor) error {
	tok := c.Next()
	switch tok {
	case "WEF":
		return b.setFrom(c.Next())
	case "TIL", "UNTIL":
		return b.setUntil(c.Next())
	}
	m := rangePattern.FindStringSubmatch(tok)
	if err := b.setFrom(m[1]); err != nil {
		return err
	}
	return b.setUntil(m[2] + m[3])
}

func (b *notamBuilder) setFrom(stamp string) error {
	t, err := grammar.ParseStamp(strings.TrimSuffix(stamp, "EST"))
	if err != nil {
		return err
	}
	b.n.EffectiveFrom = &t
	return nil
}

func (b *notamBuilder) setUntil(stamp string) error {
	if stamp == "PERM" {
		b.n.Permanent = true
		return nil
	}
	if strings.HasSuffix(stamp, "EST") {
		b.n.Estimated = true
		stamp = strings.TrimSuffix(stamp, "EST")
	}
	t, err := grammar.ParseStamp(stamp)
	if err != nil {
		return err
	}
	b.n.ExpiresAt = &t
	return nil
}

// extractItems handles the ICAO item format where A) is the location, B) and
// C) the validity and E) the plain-language body.
func (b *notamBuilder) extractItems(text string) error {
	bounds := icaoItemPattern.FindAllStringSubmatchIndex(text, -1)
	items := make(map[string]string, len(bounds))
	for i, bound := range bounds {
		end := len(text)
		if i+1 < len(bounds) {
			end = bounds[i+1][0]
		}
		items[text[bound[2]:bound[3]]] = strings.TrimSpace(text[bound[1]:end])
	}

	header := grammar.Tokenize(text[:bounds[0][0]])
	if len(header) > 0 && icaoNumberPattern.MatchString(header[0]) {
		b.n.ID = header[0]
	}
	if loc := strings.Fields(items["A"]); len(loc) > 0 {
		b.n.Station = normalizeStation(loc[0])
	}
	if from := strings.TrimSpace(items["B"]); from != "" {
		if err := b.setFrom(from); err != nil {
			b.n.Issues = append(b.n.Issues, wx.GroupIssue{Group: "validity", Token: from, Err: err})
		}
	}
	if until := strings.ReplaceAll(items["C"], " ", ""); until != "" {
		if err := b.setUntil(until); err != nil {
			b.n.Issues = append(b.n.Issues, wx.GroupIssue{Group: "validity", Token: until, Err: err})
		}
	}

	body := grammar.Tokenize(items["E"])
	if len(body) == 0 {
		return fmt.Errorf("%w: notice has no E) item", wx.ErrGrammarMismatch)
	}
	// The body carries only facility and condition clauses.
	bodyGroups := notamGroups[2:4]
	b.n.Issues = append(b.n.Issues, grammar.Run(b, grammar.NewCursor(body), bodyGroups, nil)...)
	return nil
}

// normalizeStation expands a three-letter domestic location to its ICAO form.
func normalizeStation(loc string) string {
	if len(loc) == 3 && strings.Trim(loc, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") == "" {
		return "K" + loc
	}
	return loc
}

func isConditionWord(tok string) bool {
	return slices.Contains(closureWords, tok) || slices.Contains(outageWords, tok)
}

func containsAny(text string, words []string) bool {
	padded := " " + text + " "
	for _, w := range words {
		if strings.Contains(padded, " "+w+" ") {
			return true
		}
	}
	return false
}
