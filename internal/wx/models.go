// Package wx holds the domain model shared by the decoders, classifier, source
// aggregator and route briefing: product kinds, decoded records, severity and
// flight-rules categories, and the error taxonomy.
package wx

import (
	"fmt"
	"time"
)

// ProductKind identifies the family of a coded product.
type ProductKind string

const (
	KindObservation    ProductKind = "OBSERVATION"
	KindForecast       ProductKind = "FORECAST"
	KindNotice         ProductKind = "NOTICE"
	KindPilotReport    ProductKind = "PILOT_REPORT"
	KindHazardAdvisory ProductKind = "HAZARD_ADVISORY"
)

// ParseProductKind maps a product name or common alias (METAR, TAF, NOTAM,
// PIREP, SIGMET, AIRMET) to a ProductKind.
func ParseProductKind(s string) (ProductKind, error) {
	switch s {
	case "OBSERVATION", "observation", "METAR", "metar", "SPECI", "speci":
		return KindObservation, nil
	case "FORECAST", "forecast", "TAF", "taf":
		return KindForecast, nil
	case "NOTICE", "notice", "NOTAM", "notam":
		return KindNotice, nil
	case "PILOT_REPORT", "pilot_report", "PIREP", "pirep":
		return KindPilotReport, nil
	case "HAZARD_ADVISORY", "hazard_advisory", "SIGMET", "sigmet", "AIRMET", "airmet":
		return KindHazardAdvisory, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedProduct, s)
}

// RawReport is an undecoded product as received from a source.
type RawReport struct {
	Kind       ProductKind `json:"kind"`
	StationID  string      `json:"stationId"`
	RawText    string      `json:"rawText"`
	ReceivedAt time.Time   `json:"receivedAt"`
}

// Record is implemented by every decoded product.
type Record interface {
	Product() ProductKind
	StationID() string
	RawText() string
	GroupIssues() []GroupIssue
}

// FieldStatus tags whether a decoded field was seen and understood.
type FieldStatus uint8

const (
	FieldAbsent FieldStatus = iota
	FieldPresent
	FieldMalformed
)

func (s FieldStatus) String() string {
	switch s {
	case FieldPresent:
		return "present"
	case FieldMalformed:
		return "malformed"
	default:
		return "absent"
	}
}

// MarshalText renders the status as its lowercase name.
func (s FieldStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Field is a decoded value together with its decode status. Value is only
// meaningful when Status is FieldPresent.
type Field[T any] struct {
	Status FieldStatus `json:"status"`
	Value  T           `json:"value"`
	Raw    string      `json:"raw,omitempty"`
}

// Present returns a field holding v decoded from raw.
func Present[T any](v T, raw string) Field[T] {
	return Field[T]{Status: FieldPresent, Value: v, Raw: raw}
}

// Malformed returns a field whose group was recognised but failed validation.
func Malformed[T any](raw string) Field[T] {
	return Field[T]{Status: FieldMalformed, Raw: raw}
}

// Get returns the value and whether it is present.
func (f Field[T]) Get() (T, bool) {
	return f.Value, f.Status == FieldPresent
}

// IsPresent reports whether the field decoded successfully.
func (f Field[T]) IsPresent() bool { return f.Status == FieldPresent }

// DayTime is the day-of-month/time triple carried by coded products. Month and
// year are implied by the time the product was received.
type DayTime struct {
	Day    int `json:"day"`
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// IsZero reports whether no day/time was decoded.
func (d DayTime) IsZero() bool { return d == DayTime{} }

// Resolve places the day/time in the month of ref, stepping back one month
// when the result would lie more than a day in the future of ref.
func (d DayTime) Resolve(ref time.Time) time.Time {
	if d.IsZero() || ref.IsZero() {
		return time.Time{}
	}
	ref = ref.UTC()
	t := time.Date(ref.Year(), ref.Month(), d.Day, d.Hour, d.Minute, 0, 0, time.UTC)
	if t.Sub(ref) > 24*time.Hour {
		t = time.Date(ref.Year(), ref.Month()-1, d.Day, d.Hour, d.Minute, 0, 0, time.UTC)
	} else if ref.Sub(t) > 27*24*time.Hour {
		t = time.Date(ref.Year(), ref.Month()+1, d.Day, d.Hour, d.Minute, 0, 0, time.UTC)
	}
	return t
}

func (d DayTime) String() string {
	return fmt.Sprintf("%02d%02d%02dZ", d.Day, d.Hour, d.Minute)
}

// Wind is a decoded wind group. Speeds are normalised to knots.
type Wind struct {
	Direction    int    `json:"direction"`
	Variable     bool   `json:"variable"`
	Calm         bool   `json:"calm"`
	SpeedKt      int    `json:"speedKt"`
	GustKt       int    `json:"gustKt,omitempty"`
	Unit         string `json:"unit"`
	VariableFrom int    `json:"variableFrom,omitempty"`
	VariableTo   int    `json:"variableTo,omitempty"`
}

// GustSpread is the difference between gust and sustained speed, zero without gusts.
func (w Wind) GustSpread() int {
	if w.GustKt == 0 {
		return 0
	}
	return w.GustKt - w.SpeedKt
}

// Visibility units.
const (
	UnitStatuteMiles = "SM"
	UnitMeters       = "M"
)

const metersPerStatuteMile = 1609.344

// Visibility is a prevailing visibility value.
type Visibility struct {
	Value       float64 `json:"value"`
	Unit        string  `json:"unit"`
	LessThan    bool    `json:"lessThan,omitempty"`
	GreaterThan bool    `json:"greaterThan,omitempty"`
}

// StatuteMiles returns the visibility in statute miles.
func (v Visibility) StatuteMiles() float64 {
	if v.Unit == UnitMeters {
		return v.Value / metersPerStatuteMile
	}
	return v.Value
}

// Cloud cover codes.
const (
	CoverFew       = "FEW"
	CoverScattered = "SCT"
	CoverBroken    = "BKN"
	CoverOvercast  = "OVC"
	CoverVertical  = "VV"
)

// SkyLayer is a single cloud layer or vertical visibility group.
type SkyLayer struct {
	Cover     string `json:"cover"`
	BaseFt    int    `json:"baseFt"`
	CloudType string `json:"cloudType,omitempty"`
}

// IsCeiling reports whether the layer constitutes a ceiling.
func (l SkyLayer) IsCeiling() bool {
	return l.Cover == CoverBroken || l.Cover == CoverOvercast || l.Cover == CoverVertical
}

// Intensity of a weather phenomenon.
type Intensity string

const (
	IntensityLight    Intensity = "light"
	IntensityModerate Intensity = "moderate"
	IntensityHeavy    Intensity = "heavy"
)

// Phenomenon is a present-weather group such as -SHRA or +TSRAGR.
type Phenomenon struct {
	Intensity  Intensity `json:"intensity"`
	Vicinity   bool      `json:"vicinity,omitempty"`
	Descriptor string    `json:"descriptor,omitempty"`
	Codes      []string  `json:"codes"`
	Raw        string    `json:"raw"`
}

// Has reports whether the phenomenon carries the given two-letter code,
// either as descriptor or as a precipitation/obscuration code.
func (p Phenomenon) Has(code string) bool {
	if p.Descriptor == code {
		return true
	}
	for _, c := range p.Codes {
		if c == code {
			return true
		}
	}
	return false
}

// Altimeter is a pressure setting in inches of mercury or hectopascals.
type Altimeter struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Conditions is the set of fields shared by observations and forecast periods.
type Conditions struct {
	Wind       Field[Wind]       `json:"wind"`
	Visibility Field[Visibility] `json:"visibility"`
	Weather    []Phenomenon      `json:"weather,omitempty"`
	Sky        Field[[]SkyLayer] `json:"sky"`
	CAVOK      bool              `json:"cavok,omitempty"`
	NoSigWx    bool              `json:"noSignificantWeather,omitempty"`
}

// Ceiling returns the base of the lowest broken, overcast or vertical
// visibility layer.
func (c Conditions) Ceiling() (int, bool) {
	layers, ok := c.Sky.Get()
	if !ok {
		return 0, false
	}
	ceiling, found := 0, false
	for _, l := range layers {
		if l.IsCeiling() && (!found || l.BaseFt < ceiling) {
			ceiling, found = l.BaseFt, true
		}
	}
	return ceiling, found
}

// Observation is a decoded routine or special observation.
type Observation struct {
	Conditions
	Station           string           `json:"station"`
	Type              string           `json:"type"`
	Issued            DayTime          `json:"issued"`
	ObservedAt        time.Time        `json:"observedAt,omitzero"`
	Auto              bool             `json:"auto,omitempty"`
	Corrected         bool             `json:"corrected,omitempty"`
	RunwayVisualRange []string         `json:"runwayVisualRange,omitempty"`
	Temperature       Field[int]       `json:"temperature"`
	DewPoint          Field[int]       `json:"dewPoint"`
	Altimeter         Field[Altimeter] `json:"altimeter"`
	Remarks           string           `json:"remarks,omitempty"`
	Issues            []GroupIssue     `json:"issues,omitempty"`
	Raw               string           `json:"raw"`
}

func (o *Observation) Product() ProductKind      { return KindObservation }
func (o *Observation) StationID() string         { return o.Station }
func (o *Observation) RawText() string           { return o.Raw }
func (o *Observation) GroupIssues() []GroupIssue { return o.Issues }

// ChangeIndicator classifies a forecast period.
type ChangeIndicator string

const (
	ChangeInitial     ChangeIndicator = "INITIAL"
	ChangeFrom        ChangeIndicator = "FROM"
	ChangeBecoming    ChangeIndicator = "BECOMING"
	ChangeTemporary   ChangeIndicator = "TEMPORARY"
	ChangeProbability ChangeIndicator = "PROBABILITY"
)

// ForecastPeriod is one time-bounded set of forecast conditions. Temporary and
// probabilistic periods are attached as qualifiers of the period they modify.
type ForecastPeriod struct {
	Conditions
	Change      ChangeIndicator  `json:"change"`
	Probability int              `json:"probability,omitempty"`
	From        DayTime          `json:"from"`
	To          DayTime          `json:"to,omitzero"`
	Qualifiers  []ForecastPeriod `json:"qualifiers,omitempty"`
}

// Forecast is a decoded terminal aerodrome forecast.
type Forecast struct {
	Station   string           `json:"station"`
	Issued    DayTime          `json:"issued"`
	IssuedAt  time.Time        `json:"issuedAt,omitzero"`
	ValidFrom DayTime          `json:"validFrom"`
	ValidTo   DayTime          `json:"validTo"`
	Amended   bool             `json:"amended,omitempty"`
	Corrected bool             `json:"corrected,omitempty"`
	Periods   []ForecastPeriod `json:"periods"`
	Issues    []GroupIssue     `json:"issues,omitempty"`
	Raw       string           `json:"raw"`
}

func (f *Forecast) Product() ProductKind      { return KindForecast }
func (f *Forecast) StationID() string         { return f.Station }
func (f *Forecast) RawText() string           { return f.Raw }
func (f *Forecast) GroupIssues() []GroupIssue { return f.Issues }

// PilotReport is a decoded pilot weather report.
type PilotReport struct {
	Station      string            `json:"station"`
	Urgent       bool              `json:"urgent"`
	Location     string            `json:"location,omitempty"`
	Time         Field[DayTime]    `json:"time"`
	AltitudeFt   Field[int]        `json:"altitudeFt"`
	AircraftType string            `json:"aircraftType,omitempty"`
	Sky          Field[[]SkyLayer] `json:"sky"`
	Weather      []Phenomenon      `json:"weather,omitempty"`
	Visibility   Field[Visibility] `json:"visibility"`
	TemperatureC Field[int]        `json:"temperatureC"`
	Wind         Field[Wind]       `json:"wind"`
	Turbulence   Field[Hazard]     `json:"turbulence"`
	Icing        Field[Hazard]     `json:"icing"`
	Remarks      string            `json:"remarks,omitempty"`
	Issues       []GroupIssue      `json:"issues,omitempty"`
	Raw          string            `json:"raw"`
}

func (p *PilotReport) Product() ProductKind      { return KindPilotReport }
func (p *PilotReport) StationID() string         { return p.Station }
func (p *PilotReport) RawText() string           { return p.Raw }
func (p *PilotReport) GroupIssues() []GroupIssue { return p.Issues }

// HazardIntensity grades turbulence and icing reports.
type HazardIntensity string

const (
	HazardNone     HazardIntensity = "NEG"
	HazardLight    HazardIntensity = "LGT"
	HazardModerate HazardIntensity = "MOD"
	HazardSevere   HazardIntensity = "SEV"
	HazardExtreme  HazardIntensity = "EXTRM"
)

// Hazard is a graded turbulence or icing encounter.
type Hazard struct {
	Intensity HazardIntensity `json:"intensity"`
	Type      string          `json:"type,omitempty"`
	Levels    string          `json:"levels,omitempty"`
}

// AdvisoryType distinguishes the hazard advisory families.
type AdvisoryType string

const (
	AdvisorySIGMET     AdvisoryType = "SIGMET"
	AdvisoryAIRMET     AdvisoryType = "AIRMET"
	AdvisoryConvective AdvisoryType = "CONVECTIVE"
)

// Point is a geographic coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// HazardAdvisory is a decoded SIGMET or AIRMET.
type HazardAdvisory struct {
	Type      AdvisoryType `json:"type"`
	FIR       string       `json:"fir"`
	Sequence  string       `json:"sequence"`
	ValidFrom DayTime      `json:"validFrom"`
	ValidTo   DayTime      `json:"validTo"`
	Office    string       `json:"office,omitempty"`
	Hazard    string       `json:"hazard"`
	Observed  bool         `json:"observed"`
	Area      []Point      `json:"area,omitempty"`
	Levels    string       `json:"levels,omitempty"`
	Movement  string       `json:"movement,omitempty"`
	Change    string       `json:"change,omitempty"`
	Cancelled bool         `json:"cancelled,omitempty"`
	Issues    []GroupIssue `json:"issues,omitempty"`
	Raw       string       `json:"raw"`
}

func (h *HazardAdvisory) Product() ProductKind      { return KindHazardAdvisory }
func (h *HazardAdvisory) StationID() string         { return h.FIR }
func (h *HazardAdvisory) RawText() string           { return h.Raw }
func (h *HazardAdvisory) GroupIssues() []GroupIssue { return h.Issues }
