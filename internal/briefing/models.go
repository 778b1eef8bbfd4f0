// Package briefing builds route briefings: it resolves each waypoint to a
// reporting station, fetches and classifies the station's weather in
// parallel, and combines the results with hazard advisories and notices into
// segment severities, alerts and a summary.
package briefing

import (
	"time"

	"github.com/skybrief/skybrief/internal/classify"
	"github.com/skybrief/skybrief/internal/source"
	"github.com/skybrief/skybrief/internal/wx"
	"github.com/skybrief/skybrief/pkg/polyline"
)

// Role is a waypoint's place in the route.
type Role string

const (
	RoleOrigin      Role = "ORIGIN"
	RoleEnroute     Role = "ENROUTE"
	RoleDestination Role = "DESTINATION"
)

// Waypoint is a point on the route. At least one of StationID, Coordinates
// and RawObservation must be set; an explicit station wins.
type Waypoint struct {
	ID          string               `json:"id"`
	StationID   string               `json:"stationId,omitempty"`
	Coordinates *polyline.Coordinate `json:"coordinates,omitempty"`
	Role        Role                 `json:"role,omitempty"`

	// RawObservation is a METAR or SPECI to use instead of fetching one.
	// Its station identifies the waypoint when StationID is empty.
	RawObservation string `json:"rawObservation,omitempty"`
}

// Request describes a route to brief.
type Request struct {
	// Waypoints in route order. When empty, Polyline is sampled instead.
	Waypoints []Waypoint `json:"waypoints,omitempty"`

	// Polyline is a Google encoded polyline of the route.
	Polyline string `json:"polyline,omitempty"`

	// Notices are raw NOTAM texts to check against the route.
	Notices []string `json:"notices,omitempty"`

	// Advisories are raw SIGMET/AIRMET texts to check against the route.
	Advisories []string `json:"advisories,omitempty"`

	// Altitude is the cruise altitude, as FL350, 8000FT or feet. When set,
	// only advisories whose levels include it raise a segment.
	Altitude string `json:"altitude,omitempty"`

	// At is the briefing time. Zero means now.
	At time.Time `json:"at,omitzero"`
}

// Status tells whether weather was obtained for a waypoint.
type Status string

const (
	StatusAvailable   Status = "AVAILABLE"
	StatusUnavailable Status = "UNAVAILABLE"
)

// Product is one fetched and classified station product.
type Product struct {
	Raw        string              `json:"raw"`
	Record     wx.Record           `json:"record"`
	Assessment classify.Assessment `json:"assessment"`
	Provenance source.Provenance   `json:"provenance"`
	Source     string              `json:"source"`
	FetchedAt  time.Time           `json:"fetchedAt"`
	Stale      bool                `json:"stale,omitempty"`
}

func productOf(e *source.Entry) *Product {
	return &Product{
		Raw:        e.Raw.RawText,
		Record:     e.Record,
		Assessment: e.Assessment,
		Provenance: e.Provenance,
		Source:     e.Source,
		FetchedAt:  e.FetchedAt,
		Stale:      e.Stale,
	}
}

// WaypointWeather is the weather at one waypoint.
type WaypointWeather struct {
	Waypoint    Waypoint             `json:"waypoint"`
	Status      Status               `json:"status"`
	Station     string               `json:"station,omitempty"`
	DistanceNM  float64              `json:"distanceNm,omitempty"`
	Location    *polyline.Coordinate `json:"location,omitempty"`
	Observation *Product             `json:"observation,omitempty"`
	Forecast    *Product             `json:"forecast,omitempty"`
	Severity    wx.Severity          `json:"severity"`
	FlightRules wx.FlightRules       `json:"flightRules,omitempty"`
	Reason      classify.Reason      `json:"reason,omitempty"`
	Notices     []*wx.Notam          `json:"notices,omitempty"`
	Error       string               `json:"error,omitempty"`

	err error
}

// Err returns the error that made the waypoint unavailable.
func (w *WaypointWeather) Err() error {
	return w.err
}

// SegmentWeather is the weather between two consecutive waypoints. Weather
// between the endpoints is only modelled through hazard advisories.
type SegmentWeather struct {
	From       string      `json:"from"`
	To         string      `json:"to"`
	DistanceNM float64     `json:"distanceNm,omitempty"`
	Severity   wx.Severity `json:"severity"`
	Advisories []string    `json:"advisories,omitempty"`

	// Bypassed lists advisories crossing the leg outside the cruise altitude.
	Bypassed []string `json:"bypassed,omitempty"`
}

// AlertKind tells what raised an alert.
type AlertKind string

const (
	AlertWaypoint AlertKind = "WAYPOINT"
	AlertSegment  AlertKind = "SEGMENT"
	AlertNotice   AlertKind = "NOTICE"
)

// Alert is a severe condition on the route.
type Alert struct {
	ID       string          `json:"id"`
	Kind     AlertKind       `json:"kind"`
	Location string          `json:"location"`
	Severity wx.Severity     `json:"severity"`
	Reason   classify.Reason `json:"reason"`
	Detail   string          `json:"detail,omitempty"`
}

// Counts tallies a briefing.
type Counts struct {
	Waypoints      int `json:"waypoints"`
	Unavailable    int `json:"unavailable"`
	Significant    int `json:"significant"`
	Severe         int `json:"severe"`
	Segments       int `json:"segments"`
	SevereSegments int `json:"severeSegments"`
	Advisories     int `json:"advisories"`
	Notices        int `json:"notices"`
	Alerts         int `json:"alerts"`
}

// RouteBriefing is the combined weather picture for a route.
type RouteBriefing struct {
	ID          string               `json:"id"`
	Waypoints   []WaypointWeather    `json:"waypoints"`
	Segments    []SegmentWeather     `json:"segments"`
	Severity    wx.Severity          `json:"severity"`
	FlightRules wx.FlightRules       `json:"flightRules,omitempty"`
	AltitudeFt  int                  `json:"altitudeFt,omitempty"`
	Alerts      []Alert              `json:"alerts"`
	Notices     []*wx.Notam          `json:"notices,omitempty"`
	Advisories  []*wx.HazardAdvisory `json:"advisories,omitempty"`
	Summary     string               `json:"summary"`
	Counts      Counts               `json:"counts"`
	GeneratedAt time.Time            `json:"generatedAt"`
}
