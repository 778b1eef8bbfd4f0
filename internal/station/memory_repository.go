package station

import (
	"context"
	"sort"
	"sync"

	"github.com/skybrief/skybrief/pkg/polyline"
)

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu       sync.RWMutex
	stations map[string]Station
}

// NewInMemoryRepository creates a repository holding the given stations.
func NewInMemoryRepository(stations ...Station) *InMemoryRepository {
	r := &InMemoryRepository{stations: make(map[string]Station, len(stations))}
	for _, s := range stations {
		s.ID = NormalizeID(s.ID)
		r.stations[s.ID] = s
	}
	return r
}

// NewDefaultRepository creates an in-memory repository seeded with the
// built-in station set.
func NewDefaultRepository() *InMemoryRepository {
	return NewInMemoryRepository(DefaultStations()...)
}

// Get retrieves a station by identifier.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Station, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.stations[NormalizeID(id)]
	if !ok {
		return nil, notFound(id)
	}
	return &s, nil
}

// Nearest returns the closest station within radiusNM of the point.
func (r *InMemoryRepository) Nearest(_ context.Context, at polyline.Coordinate, radiusNM float64) (*Match, error) {
	r.mu.RLock()
	candidates := make([]Station, 0, len(r.stations))
	for _, s := range r.stations {
		candidates = append(candidates, s)
	}
	r.mu.RUnlock()

	return closest(candidates, at, radiusNM)
}

// List retrieves all stations ordered by identifier.
func (r *InMemoryRepository) List(_ context.Context) ([]Station, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Station, 0, len(r.stations))
	for _, s := range r.stations {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Upsert creates or replaces a station.
func (r *InMemoryRepository) Upsert(_ context.Context, s Station) error {
	s.ID = NormalizeID(s.ID)
	if err := s.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.stations[s.ID] = s
	return nil
}

// DefaultStations returns the built-in station set.
func DefaultStations() []Station {
	return []Station{
		{ID: "KDEN", Name: "Denver Intl", Location: polyline.Coordinate{Lat: 39.8617, Lon: -104.6731}, ElevationFt: 5434, Runways: 6},
		{ID: "KAPA", Name: "Centennial", Location: polyline.Coordinate{Lat: 39.5701, Lon: -104.8493}, ElevationFt: 5885, Runways: 3},
		{ID: "KCOS", Name: "Colorado Springs", Location: polyline.Coordinate{Lat: 38.8058, Lon: -104.7008}, ElevationFt: 6187, Runways: 3},
		{ID: "KPUB", Name: "Pueblo Memorial", Location: polyline.Coordinate{Lat: 38.2891, Lon: -104.4966}, ElevationFt: 4729, Runways: 3},
		{ID: "KASE", Name: "Aspen-Pitkin County", Location: polyline.Coordinate{Lat: 39.2232, Lon: -106.8688}, ElevationFt: 7820, Runways: 1},
		{ID: "KEGE", Name: "Eagle County Regional", Location: polyline.Coordinate{Lat: 39.6426, Lon: -106.9177}, ElevationFt: 6548, Runways: 1},
		{ID: "KGJT", Name: "Grand Junction Regional", Location: polyline.Coordinate{Lat: 39.1224, Lon: -108.5267}, ElevationFt: 4858, Runways: 2},
		{ID: "KSLC", Name: "Salt Lake City Intl", Location: polyline.Coordinate{Lat: 40.7884, Lon: -111.9778}, ElevationFt: 4227, Runways: 4},
		{ID: "KPHX", Name: "Phoenix Sky Harbor Intl", Location: polyline.Coordinate{Lat: 33.4343, Lon: -112.0116}, ElevationFt: 1135, Runways: 3},
		{ID: "KABQ", Name: "Albuquerque Intl Sunport", Location: polyline.Coordinate{Lat: 35.0402, Lon: -106.6092}, ElevationFt: 5355, Runways: 3},
		{ID: "KORD", Name: "Chicago O'Hare Intl", Location: polyline.Coordinate{Lat: 41.9786, Lon: -87.9048}, ElevationFt: 680, Runways: 8},
		{ID: "KMDW", Name: "Chicago Midway Intl", Location: polyline.Coordinate{Lat: 41.7860, Lon: -87.7524}, ElevationFt: 620, Runways: 5},
		{ID: "KJFK", Name: "New York JFK Intl", Location: polyline.Coordinate{Lat: 40.6398, Lon: -73.7789}, ElevationFt: 13, Runways: 4},
		{ID: "KLGA", Name: "New York LaGuardia", Location: polyline.Coordinate{Lat: 40.7772, Lon: -73.8726}, ElevationFt: 21, Runways: 2},
		{ID: "KBOS", Name: "Boston Logan Intl", Location: polyline.Coordinate{Lat: 42.3656, Lon: -71.0096}, ElevationFt: 20, Runways: 6},
		{ID: "KATL", Name: "Atlanta Hartsfield-Jackson", Location: polyline.Coordinate{Lat: 33.6367, Lon: -84.4281}, ElevationFt: 1026, Runways: 5},
		{ID: "KDFW", Name: "Dallas-Fort Worth Intl", Location: polyline.Coordinate{Lat: 32.8968, Lon: -97.0380}, ElevationFt: 607, Runways: 7},
		{ID: "KLAX", Name: "Los Angeles Intl", Location: polyline.Coordinate{Lat: 33.9425, Lon: -118.4081}, ElevationFt: 128, Runways: 4},
		{ID: "KSFO", Name: "San Francisco Intl", Location: polyline.Coordinate{Lat: 37.6190, Lon: -122.3749}, ElevationFt: 13, Runways: 4},
		{ID: "KSEA", Name: "Seattle-Tacoma Intl", Location: polyline.Coordinate{Lat: 47.4490, Lon: -122.3093}, ElevationFt: 433, Runways: 3},
		{ID: "KMIA", Name: "Miami Intl", Location: polyline.Coordinate{Lat: 25.7932, Lon: -80.2906}, ElevationFt: 8, Runways: 4},
		{ID: "PANC", Name: "Anchorage Ted Stevens Intl", Location: polyline.Coordinate{Lat: 61.1744, Lon: -149.9964}, ElevationFt: 152, Runways: 3},
		{ID: "PHNL", Name: "Honolulu Daniel K Inouye Intl", Location: polyline.Coordinate{Lat: 21.3187, Lon: -157.9225}, ElevationFt: 13, Runways: 4},
		{ID: "EGLL", Name: "London Heathrow", Location: polyline.Coordinate{Lat: 51.4706, Lon: -0.4619}, ElevationFt: 83, Runways: 2},
		{ID: "EHAM", Name: "Amsterdam Schiphol", Location: polyline.Coordinate{Lat: 52.3086, Lon: 4.7639}, ElevationFt: -11, Runways: 6},
	}
}
