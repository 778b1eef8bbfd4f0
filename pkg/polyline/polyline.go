// Package polyline handles route geometry: Google encoded polylines for route
// input, great-circle distances in nautical miles, sampling along a route, and
// point-in-area tests for advisory polygons.
// The encoding is documented at https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"errors"
	"math"
)

// ErrTruncated is returned when an encoded polyline ends mid-value.
var ErrTruncated = errors.New("polyline truncated")

// Coordinate is a geographic point in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinate lies within latitude/longitude bounds.
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Decode decodes a polyline with 5 decimal places of precision.
func Decode(encoded string) ([]Coordinate, error) {
	var coords []Coordinate
	index, lat, lon := 0, 0, 0

	for index < len(encoded) {
		dLat, next, ok := decodeValue(encoded, index)
		if !ok {
			return nil, ErrTruncated
		}
		dLon, next, ok := decodeValue(encoded, next)
		if !ok {
			return nil, ErrTruncated
		}
		index = next
		lat += dLat
		lon += dLon
		coords = append(coords, Coordinate{Lat: float64(lat) / 1e5, Lon: float64(lon) / 1e5})
	}
	return coords, nil
}

func decodeValue(encoded string, index int) (value, next int, ok bool) {
	shift, result := 0, 0
	for index < len(encoded) {
		b := int(encoded[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			if result&1 != 0 {
				return ^(result >> 1), index, true
			}
			return result >> 1, index, true
		}
	}
	return 0, index, false
}

// Encode encodes coordinates with 5 decimal places of precision.
func Encode(coords []Coordinate) string {
	encoded := make([]byte, 0, len(coords)*4)
	prevLat, prevLon := 0, 0
	for _, c := range coords {
		lat := int(math.Round(c.Lat * 1e5))
		lon := int(math.Round(c.Lon * 1e5))
		encoded = encodeValue(encoded, lat-prevLat)
		encoded = encodeValue(encoded, lon-prevLon)
		prevLat, prevLon = lat, lon
	}
	return string(encoded)
}

func encodeValue(buf []byte, value int) []byte {
	if value < 0 {
		value = ^(value << 1)
	} else {
		value <<= 1
	}
	for value >= 0x20 {
		buf = append(buf, byte((value&0x1f)|0x20)+63)
		value >>= 5
	}
	return append(buf, byte(value)+63)
}

const (
	earthRadiusMeters = 6371000
	metersPerNM       = 1852
)

// DistanceNM returns the great-circle distance between two points in
// nautical miles.
func DistanceNM(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)
	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h)) / metersPerNM
}

// LengthNM returns the length of a route in nautical miles.
func LengthNM(coords []Coordinate) float64 {
	var total float64
	for i := 1; i < len(coords); i++ {
		total += DistanceNM(coords[i-1], coords[i])
	}
	return total
}

// Sample returns points spaced roughly intervalNM apart along the route,
// always including both ends.
func Sample(coords []Coordinate, intervalNM float64) []Coordinate {
	if len(coords) == 0 {
		return nil
	}
	if intervalNM <= 0 {
		return coords
	}

	sampled := []Coordinate{coords[0]}
	accumulated := 0.0
	for i := 1; i < len(coords); i++ {
		from, to := coords[i-1], coords[i]
		leg := DistanceNM(from, to)
		covered := 0.0
		for accumulated+(leg-covered) >= intervalNM {
			covered += intervalNM - accumulated
			f := covered / leg
			sampled = append(sampled, Coordinate{
				Lat: from.Lat + f*(to.Lat-from.Lat),
				Lon: from.Lon + f*(to.Lon-from.Lon),
			})
			accumulated = 0
		}
		accumulated += leg - covered
	}

	if last := coords[len(coords)-1]; sampled[len(sampled)-1] != last {
		sampled = append(sampled, last)
	}
	return sampled
}

// Contains reports whether p lies inside the polygon using ray casting. The
// polygon may or may not repeat its first vertex.
func Contains(polygon []Coordinate, p Coordinate) bool {
	if len(polygon) < 3 {
		return false
	}
	inside := false
	j := len(polygon) - 1
	for i := range polygon {
		a, b := polygon[i], polygon[j]
		if (a.Lat > p.Lat) != (b.Lat > p.Lat) &&
			p.Lon < (b.Lon-a.Lon)*(p.Lat-a.Lat)/(b.Lat-a.Lat)+a.Lon {
			inside = !inside
		}
		j = i
	}
	return inside
}
