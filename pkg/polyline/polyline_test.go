package polyline

import (
	"errors"
	"math"
	"testing"
)

func TestDecode_KnownPolyline(t *testing.T) {
	// Example from the polyline algorithm documentation.
	coords, err := Decode("_p~iF~ps|U_ulLnnqC_mqNvxq`@")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	want := []Coordinate{
		{Lat: 38.5, Lon: -120.2},
		{Lat: 40.7, Lon: -120.95},
		{Lat: 43.252, Lon: -126.453},
	}
	if len(coords) != len(want) {
		t.Fatalf("Decode() returned %d coordinates, want %d", len(coords), len(want))
	}
	for i := range want {
		if !coordsEqual(coords[i], want[i], 1e-5) {
			t.Errorf("coords[%d] = %v, want %v", i, coords[i], want[i])
		}
	}
}

func TestDecode_Truncated(t *testing.T) {
	if _, err := Decode("_p~iF~ps|U_"); !errors.Is(err, ErrTruncated) {
		t.Errorf("Decode() error = %v, want ErrTruncated", err)
	}
	coords, err := Decode("")
	if err != nil || coords != nil {
		t.Errorf("Decode(\"\") = %v, %v, want nil, nil", coords, err)
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	route := []Coordinate{
		{Lat: 39.86167, Lon: -104.67318}, // KDEN
		{Lat: 38.80581, Lon: -104.70025}, // KCOS
		{Lat: 38.28909, Lon: -104.49657}, // KPUB
	}
	decoded, err := Decode(Encode(route))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	for i := range route {
		if !coordsEqual(route[i], decoded[i], 1e-5) {
			t.Errorf("point %d = %v, want %v", i, decoded[i], route[i])
		}
	}
}

func TestDistanceNM(t *testing.T) {
	jfk := Coordinate{Lat: 40.6398, Lon: -73.7789}
	lax := Coordinate{Lat: 33.9425, Lon: -118.4081}

	got := DistanceNM(jfk, lax)
	if math.Abs(got-2145) > 10 {
		t.Errorf("DistanceNM(JFK, LAX) = %.1f, want about 2145", got)
	}
	if DistanceNM(jfk, jfk) != 0 {
		t.Error("distance to self should be zero")
	}
}

func TestSample(t *testing.T) {
	route := []Coordinate{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 2}}
	length := LengthNM(route)
	samples := Sample(route, 30)

	wantCount := int(length/30) + 2
	if len(samples) != wantCount {
		t.Fatalf("Sample() returned %d points, want %d", len(samples), wantCount)
	}
	if samples[0] != route[0] || samples[len(samples)-1] != route[1] {
		t.Error("Sample() must keep both endpoints")
	}
	if d := DistanceNM(samples[0], samples[1]); math.Abs(d-30) > 0.5 {
		t.Errorf("first sample at %.2f NM, want 30", d)
	}
}

func TestContains(t *testing.T) {
	square := []Coordinate{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 10}, {Lat: 10, Lon: 10}, {Lat: 10, Lon: 0}}

	if !Contains(square, Coordinate{Lat: 5, Lon: 5}) {
		t.Error("center should be inside")
	}
	if Contains(square, Coordinate{Lat: 15, Lon: 5}) {
		t.Error("point north of square should be outside")
	}
	if Contains(square[:2], Coordinate{Lat: 0, Lon: 5}) {
		t.Error("degenerate polygon contains nothing")
	}
}

func coordsEqual(a, b Coordinate, tolerance float64) bool {
	return math.Abs(a.Lat-b.Lat) < tolerance && math.Abs(a.Lon-b.Lon) < tolerance
}

func BenchmarkDecode(b *testing.B) {
	encoded := Encode([]Coordinate{{Lat: 39.86, Lon: -104.67}, {Lat: 38.81, Lon: -104.70}, {Lat: 38.29, Lon: -104.50}})
	for i := 0; i < b.N; i++ {
		_, _ = Decode(encoded)
	}
}
