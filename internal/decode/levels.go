package decode

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/skybrief/skybrief/internal/wx"
)

var (
	flightLevelPattern = regexp.MustCompile(`^FL(\d{2,3})$`)
	feetPattern        = regexp.MustCompile(`^(\d{1,5})(FT)?$`)
)

// LevelBand is a vertical extent in feet. High is math.MaxInt when the band
// has no top.
type LevelBand struct {
	LowFt  int
	HighFt int
}

// Contains reports whether altitudeFt lies within the band, bounds included.
func (b LevelBand) Contains(altitudeFt int) bool {
	return altitudeFt >= b.LowFt && altitudeFt <= b.HighFt
}

// ParseAltitude reads a cruise altitude written as a flight level (FL350),
// feet (8000FT) or bare feet (8000).
func ParseAltitude(s string) (int, error) {
	s = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	if m := flightLevelPattern.FindStringSubmatch(s); m != nil {
		fl, _ := strconv.Atoi(m[1])
		return fl * 100, nil
	}
	if m := feetPattern.FindStringSubmatch(s); m != nil {
		ft, _ := strconv.Atoi(m[1])
		return ft, nil
	}
	return 0, fmt.Errorf("%w: altitude %q", wx.ErrValidation, s)
}

// ParseLevelBand reads an advisory's levels group: FL180/300, SFC/FL120,
// 8000FT/FL120, TOP FL390, ABV FL200 or BLW FL100. A single level is read
// as tops. ok is false for text it does not recognise.
func ParseLevelBand(levels string) (band LevelBand, ok bool) {
	fields := strings.Fields(strings.ToUpper(levels))
	switch {
	case len(fields) == 2 && fields[0] == "ABV":
		low, ok := levelFt(fields[1])
		return LevelBand{LowFt: low, HighFt: math.MaxInt}, ok
	case len(fields) == 2 && (fields[0] == "TOP" || fields[0] == "BLW"):
		high, ok := levelFt(fields[1])
		return LevelBand{HighFt: high}, ok
	case len(fields) != 1:
		return LevelBand{}, false
	}

	lowText, highText, ranged := strings.Cut(fields[0], "/")
	if !ranged {
		high, ok := levelFt(lowText)
		return LevelBand{HighFt: high}, ok
	}
	low, okLow := levelFt(lowText)
	if !strings.HasPrefix(highText, "FL") && !strings.HasSuffix(highText, "FT") {
		highText = "FL" + highText
	}
	high, okHigh := levelFt(highText)
	if !okLow || !okHigh || low > high {
		return LevelBand{}, false
	}
	return LevelBand{LowFt: low, HighFt: high}, true
}

func levelFt(s string) (int, bool) {
	if s == "SFC" {
		return 0, true
	}
	if m := flightLevelPattern.FindStringSubmatch(s); m != nil {
		fl, _ := strconv.Atoi(m[1])
		return fl * 100, true
	}
	if ft, ok := strings.CutSuffix(s, "FT"); ok {
		n, err := strconv.Atoi(ft)
		return n, err == nil
	}
	return 0, false
}
