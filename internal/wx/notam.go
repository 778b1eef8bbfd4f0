package wx

import "time"

// NotamCategory groups notices by the kind of facility they affect.
type NotamCategory string

const (
	CategoryRunway   NotamCategory = "RUNWAY"
	CategoryTaxiway  NotamCategory = "TAXIWAY"
	CategoryNavaid   NotamCategory = "NAVAID"
	CategoryAirspace NotamCategory = "AIRSPACE"
	CategoryOther    NotamCategory = "OTHER"
)

// Notam is a structured notice extracted from free-form notice text.
//
// EffectiveFrom and ExpiresAt are nil when the notice carried no validity
// interval: it is then effective immediately and never expires. Validity is a
// property of the moment of use, so consumers call ActiveAt rather than
// caching an "active" flag.
type Notam struct {
	ID            string        `json:"id"`
	Station       string        `json:"station"`
	Facility      string        `json:"facility,omitempty"`
	Condition     string        `json:"condition"`
	EffectiveFrom *time.Time    `json:"effectiveFrom,omitempty"`
	ExpiresAt     *time.Time    `json:"expiresAt,omitempty"`
	Estimated     bool          `json:"estimated,omitempty"`
	Permanent     bool          `json:"permanent,omitempty"`
	Category      NotamCategory `json:"category"`
	Severity      Severity      `json:"severity"`
	Description   string        `json:"description"`
	Issues        []GroupIssue  `json:"issues,omitempty"`
	Raw           string        `json:"raw"`
}

func (n *Notam) Product() ProductKind      { return KindNotice }
func (n *Notam) StationID() string         { return n.Station }
func (n *Notam) RawText() string           { return n.Raw }
func (n *Notam) GroupIssues() []GroupIssue { return n.Issues }

// ActiveAt reports whether the notice is in force at t.
func (n *Notam) ActiveAt(t time.Time) bool {
	if n.EffectiveFrom != nil && t.Before(*n.EffectiveFrom) {
		return false
	}
	return !n.ExpiredAt(t)
}

// ExpiredAt reports whether the notice has lapsed at t.
func (n *Notam) ExpiredAt(t time.Time) bool {
	return n.ExpiresAt != nil && !t.Before(*n.ExpiresAt)
}
