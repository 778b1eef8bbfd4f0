package grammar

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/skybrief/skybrief/internal/wx"
)

var (
	dayTimePattern  = regexp.MustCompile(`^(\d{2})(\d{2})(\d{2})Z?$`)
	dayHourPattern  = regexp.MustCompile(`^(\d{2})(\d{2})$`)
	fractionPattern = regexp.MustCompile(`^(\d+)/(\d+)$`)
)

// Digits parses a string made only of ASCII digits.
func Digits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

// SignedTemp parses a temperature where a leading M marks a negative value.
func SignedTemp(s string) (int, bool) {
	neg := strings.HasPrefix(s, "M") || strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	n, ok := Digits(s)
	if !ok {
		return 0, false
	}
	if neg {
		n = -n
	}
	return n, true
}

// ParseDayTime decodes a DDHHMM[Z] group.
func ParseDayTime(s string) (wx.DayTime, error) {
	m := dayTimePattern.FindStringSubmatch(s)
	if m == nil {
		return wx.DayTime{}, wx.ErrGrammarMismatch
	}
	day, _ := strconv.Atoi(m[1])
	hour, _ := strconv.Atoi(m[2])
	minute, _ := strconv.Atoi(m[3])
	dt := wx.DayTime{Day: day, Hour: hour, Minute: minute}
	return dt, validateDayTime(dt, 23)
}

// ParseDayHour decodes a DDHH group. Hour 24 is accepted as end of day.
func ParseDayHour(s string) (wx.DayTime, error) {
	m := dayHourPattern.FindStringSubmatch(s)
	if m == nil {
		return wx.DayTime{}, wx.ErrGrammarMismatch
	}
	day, _ := strconv.Atoi(m[1])
	hour, _ := strconv.Atoi(m[2])
	dt := wx.DayTime{Day: day, Hour: hour}
	return dt, validateDayTime(dt, 24)
}

// ParseDayHourRange decodes a DDHH/DDHH validity range.
func ParseDayHourRange(s string) (from, to wx.DayTime, err error) {
	start, end, ok := strings.Cut(s, "/")
	if !ok {
		return from, to, wx.ErrGrammarMismatch
	}
	if from, err = ParseDayHour(start); err != nil {
		return from, to, err
	}
	to, err = ParseDayHour(end)
	return from, to, err
}

func validateDayTime(dt wx.DayTime, maxHour int) error {
	switch {
	case dt.Day < 1 || dt.Day > 31:
		return Invalid("day %d out of range", dt.Day)
	case dt.Hour > maxHour:
		return Invalid("hour %d out of range", dt.Hour)
	case dt.Minute > 59:
		return Invalid("minute %d out of range", dt.Minute)
	}
	return nil
}

// ParseFraction decodes "3", "1/4" or "3/4" into a decimal value.
func ParseFraction(s string) (float64, bool) {
	if n, ok := Digits(s); ok {
		return float64(n), true
	}
	m := fractionPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	num, _ := strconv.Atoi(m[1])
	den, _ := strconv.Atoi(m[2])
	if den == 0 {
		return 0, false
	}
	return float64(num) / float64(den), true
}

// ParseStamp decodes a YYMMDDHHMM notice timestamp in UTC.
func ParseStamp(s string) (time.Time, error) {
	if _, ok := Digits(s); !ok || len(s) != 10 {
		return time.Time{}, wx.ErrGrammarMismatch
	}
	t, err := time.Parse("0601021504", s)
	if err != nil {
		return time.Time{}, Invalid("timestamp %s: %v", s, err)
	}
	return t.UTC(), nil
}
