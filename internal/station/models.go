// Package station provides the directory of reporting stations used to resolve
// route waypoints to the nearest station and to look up runway counts.
package station

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/skybrief/skybrief/internal/wx"
	"github.com/skybrief/skybrief/pkg/polyline"
)

// ErrInvalidStation is returned when a station fails validation on write.
var ErrInvalidStation = errors.New("invalid station")

var idPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{3}$`)

// Station is a reporting station.
type Station struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Location    polyline.Coordinate `json:"location"`
	ElevationFt int                 `json:"elevationFt"`
	Runways     int                 `json:"runways"`
}

// Match is a station found by a proximity search.
type Match struct {
	Station    Station `json:"station"`
	DistanceNM float64 `json:"distanceNm"`
}

// Validate checks the station identifier and coordinates.
func (s Station) Validate() error {
	if !idPattern.MatchString(s.ID) {
		return fmt.Errorf("%w: identifier %q", ErrInvalidStation, s.ID)
	}
	if !s.Location.Valid() {
		return fmt.Errorf("%w: %s coordinates out of range", ErrInvalidStation, s.ID)
	}
	if s.Runways < 0 {
		return fmt.Errorf("%w: %s runway count %d", ErrInvalidStation, s.ID, s.Runways)
	}
	return nil
}

// NormalizeID upper-cases and trims a station identifier.
func NormalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", wx.ErrStationNotFound, id)
}

func noneWithin(at polyline.Coordinate, radiusNM float64) error {
	return fmt.Errorf("%w: none within %.0f NM of %.4f,%.4f", wx.ErrStationNotFound, radiusNM, at.Lat, at.Lon)
}
