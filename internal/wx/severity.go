package wx

import (
	"encoding/json"
	"fmt"
)

// Severity is an ordinal hazard level. The zero value is SeverityClear.
type Severity int

const (
	SeverityClear Severity = iota
	SeveritySignificant
	SeveritySevere
)

var severityNames = [...]string{"CLEAR", "SIGNIFICANT", "SEVERE"}

func (s Severity) String() string {
	if s < SeverityClear || s > SeveritySevere {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return severityNames[s]
}

// MarshalJSON encodes the severity by name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a severity name.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for i, n := range severityNames {
		if n == name {
			*s = Severity(i)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown severity %q", ErrValidation, name)
}

// MaxSeverity returns the highest of the given levels, SeverityClear when empty.
func MaxSeverity(levels ...Severity) Severity {
	max := SeverityClear
	for _, l := range levels {
		if l > max {
			max = l
		}
	}
	return max
}

// FlightRules is the flight-rules category derived from ceiling and visibility.
// The empty value means the category does not apply to the product.
type FlightRules string

const (
	FlightRulesVFR  FlightRules = "VFR"
	FlightRulesMVFR FlightRules = "MVFR"
	FlightRulesIFR  FlightRules = "IFR"
	FlightRulesLIFR FlightRules = "LIFR"
)

// Rank orders categories from least (VFR) to most restrictive (LIFR).
func (f FlightRules) Rank() int {
	switch f {
	case FlightRulesVFR:
		return 1
	case FlightRulesMVFR:
		return 2
	case FlightRulesIFR:
		return 3
	case FlightRulesLIFR:
		return 4
	}
	return 0
}

// WorstFlightRules returns the most restrictive of the given categories.
func WorstFlightRules(rules ...FlightRules) FlightRules {
	var worst FlightRules
	for _, r := range rules {
		if r.Rank() > worst.Rank() {
			worst = r
		}
	}
	return worst
}
