package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/skybrief/skybrief/internal/briefing"
	"github.com/skybrief/skybrief/internal/decode"
	"github.com/skybrief/skybrief/pkg/polyline"
)

// BriefingRequest is the body of POST /v1/briefings. Exactly one of
// Waypoints or Polyline is set.
type BriefingRequest struct {
	Waypoints []WaypointInput `json:"waypoints,omitempty"`

	// Polyline is an encoded polyline sampled into waypoints.
	Polyline string `json:"polyline,omitempty"`

	// Notices are raw NOTAM texts to consider along the route.
	Notices []string `json:"notices,omitempty"`

	// Advisories are raw SIGMET or AIRMET texts to test segments against.
	Advisories []string `json:"advisories,omitempty"`

	// Altitude is the cruise altitude (FL350, 8000FT). Optional.
	Altitude string `json:"altitude,omitempty"`

	// At is the briefing time. Default: now.
	At *Timestamp `json:"at,omitempty"`
}

// WaypointInput is one point of a route: a station, a position, or both.
type WaypointInput struct {
	ID        string   `json:"id,omitempty"`
	StationID string   `json:"stationId,omitempty"`
	Lat       *float64 `json:"lat,omitempty"`
	Lon       *float64 `json:"lon,omitempty"`
	Role      string   `json:"role,omitempty"`

	// RawObservation is a METAR to brief with instead of the station's latest.
	RawObservation string `json:"rawObservation,omitempty"`
}

// ToRequest validates the body and converts it to a briefing request.
func (r *BriefingRequest) ToRequest() (briefing.Request, []FieldError) {
	var errs []FieldError
	switch {
	case len(r.Waypoints) == 0 && r.Polyline == "":
		errs = append(errs, FieldError{Field: "waypoints", Message: "waypoints or polyline is required", Code: CodeRequired})
	case len(r.Waypoints) > 0 && r.Polyline != "":
		errs = append(errs, FieldError{Field: "polyline", Message: "give either waypoints or polyline, not both", Code: CodeInvalid})
	}

	req := briefing.Request{
		Polyline:   r.Polyline,
		Notices:    r.Notices,
		Advisories: r.Advisories,
		Altitude:   r.Altitude,
	}
	if r.Altitude != "" {
		if _, err := decode.ParseAltitude(r.Altitude); err != nil {
			errs = append(errs, FieldError{Field: "altitude", Message: "altitude must look like FL350 or 8000FT", Code: CodeInvalid})
		}
	}
	if r.At != nil {
		req.At = r.At.Time()
	}

	for i, in := range r.Waypoints {
		field := fmt.Sprintf("waypoints[%d]", i)
		wp := briefing.Waypoint{ID: in.ID, StationID: in.StationID, RawObservation: in.RawObservation}

		switch {
		case in.Lat != nil && in.Lon != nil:
			c := polyline.Coordinate{Lat: *in.Lat, Lon: *in.Lon}
			if !c.Valid() {
				errs = append(errs, FieldError{Field: field, Message: "coordinates out of range", Code: CodeInvalid})
			}
			wp.Coordinates = &c
		case in.Lat != nil || in.Lon != nil:
			errs = append(errs, FieldError{Field: field, Message: "lat and lon must be given together", Code: CodeInvalid})
		case in.StationID == "" && strings.TrimSpace(in.RawObservation) == "":
			errs = append(errs, FieldError{Field: field, Message: "stationId, lat/lon or rawObservation is required", Code: CodeRequired})
		}

		switch role := briefing.Role(in.Role); role {
		case "":
		case briefing.RoleOrigin, briefing.RoleEnroute, briefing.RoleDestination:
			wp.Role = role
		default:
			errs = append(errs, FieldError{Field: field + ".role", Message: "unknown role " + in.Role, Code: CodeUnsupported})
		}

		req.Waypoints = append(req.Waypoints, wp)
	}
	return req, errs
}

// InvalidateRequest is the body of POST /v1/admin/cache:invalidate. An empty
// station flushes the whole cache.
type InvalidateRequest struct {
	StationID string `json:"stationId,omitempty"`
}

// InvalidateResponse reports how many entries were dropped.
type InvalidateResponse struct {
	StationID   string    `json:"stationId,omitempty"`
	Invalidated int       `json:"invalidated"`
	Operator    string    `json:"operator"`
	At          Timestamp `json:"at"`
}

// NewInvalidateResponse builds an invalidation receipt.
func NewInvalidateResponse(stationID string, n int, operator string, at time.Time) InvalidateResponse {
	return InvalidateResponse{StationID: stationID, Invalidated: n, Operator: operator, At: Timestamp(at)}
}
