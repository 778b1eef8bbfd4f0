package station

import (
	"context"
	"math"
	"sort"

	"github.com/skybrief/skybrief/pkg/polyline"
)

// Repository defines the interface for station persistence.
type Repository interface {
	// Get retrieves a station by identifier.
	Get(ctx context.Context, id string) (*Station, error)

	// Nearest returns the closest station within radiusNM of the point.
	Nearest(ctx context.Context, at polyline.Coordinate, radiusNM float64) (*Match, error)

	// List retrieves all stations ordered by identifier.
	List(ctx context.Context) ([]Station, error)

	// Upsert creates or replaces a station.
	Upsert(ctx context.Context, s Station) error
}

// boundingBox returns the latitude/longitude deltas of a box enclosing a
// circle of radiusNM, padded so stations near the edge are not missed.
func boundingBox(at polyline.Coordinate, radiusNM float64) (latDelta, lonDelta float64) {
	latDelta = (radiusNM / 60.0) * 1.5
	cos := math.Cos(at.Lat * math.Pi / 180)
	if cos < 0.01 {
		return latDelta, 180
	}
	lonDelta = (radiusNM / (60.0 * cos)) * 1.5
	return latDelta, lonDelta
}

// closest filters candidates to radiusNM and returns the nearest. Ties break
// on identifier so results are stable.
func closest(candidates []Station, at polyline.Coordinate, radiusNM float64) (*Match, error) {
	var matches []Match
	for _, s := range candidates {
		d := polyline.DistanceNM(at, s.Location)
		if d <= radiusNM {
			matches = append(matches, Match{Station: s, DistanceNM: d})
		}
	}
	if len(matches) == 0 {
		return nil, noneWithin(at, radiusNM)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].DistanceNM != matches[j].DistanceNM {
			return matches[i].DistanceNM < matches[j].DistanceNM
		}
		return matches[i].Station.ID < matches[j].Station.ID
	})
	return &matches[0], nil
}

// RunwayCounter adapts a Repository to the lookup the NOTAM extractor uses to
// decide whether a closed runway is the station's only one.
type RunwayCounter struct {
	repo Repository
}

// NewRunwayCounter creates a RunwayCounter backed by repo.
func NewRunwayCounter(repo Repository) *RunwayCounter {
	return &RunwayCounter{repo: repo}
}

// RunwayCount returns the number of runways at station, if known.
func (c *RunwayCounter) RunwayCount(station string) (int, bool) {
	s, err := c.repo.Get(context.Background(), station)
	if err != nil || s.Runways == 0 {
		return 0, false
	}
	return s.Runways, true
}
