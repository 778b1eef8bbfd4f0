package source

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/skybrief/skybrief/internal/wx"
)

// SyntheticName is the source name recorded on generated entries.
const SyntheticName = "synthetic"

// DefaultSyntheticBucket is the width of the time bucket that seeds the
// generator.
const DefaultSyntheticBucket = time.Hour

// Synthetic generates plausible, well-formed products when every upstream
// source has failed. Output is a pure function of station, product kind and
// the time bucket containing the request time.
type Synthetic struct {
	Bucket time.Duration
}

var syntheticVisibility = []string{"10SM", "10SM", "10SM", "P6SM", "6SM", "5SM", "3SM", "2SM", "1 1/2SM", "1SM", "1/2SM"}

var syntheticWeather = []string{"", "", "", "", "", "-RA", "BR", "RA", "-SN", "HZ", "TSRA"}

var syntheticCover = []string{"FEW", "SCT", "BKN", "OVC"}

// Generate returns a raw product for station at the bucket containing at.
func (s Synthetic) Generate(station string, kind wx.ProductKind, at time.Time) (wx.RawReport, error) {
	bucket := s.Bucket
	if bucket <= 0 {
		bucket = DefaultSyntheticBucket
	}
	start := at.UTC().Truncate(bucket)
	rng := rand.New(rand.NewPCG(seed(station, kind, start), uint64(bucket)))

	var text string
	switch kind {
	case wx.KindObservation:
		text = syntheticObservation(rng, station, start)
	case wx.KindForecast:
		text = syntheticForecast(rng, station, start)
	default:
		return wx.RawReport{}, fmt.Errorf("%w: no synthetic %s", wx.ErrUnsupportedProduct, kind)
	}

	return wx.RawReport{
		Kind:       kind,
		StationID:  station,
		RawText:    text,
		ReceivedAt: start,
	}, nil
}

func seed(station string, kind wx.ProductKind, start time.Time) uint64 {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%s|%s|%d", station, kind, start.Unix())
	return h.Sum64()
}

func syntheticObservation(rng *rand.Rand, station string, at time.Time) string {
	parts := []string{"METAR", station, at.Format("021504") + "Z", "AUTO"}
	parts = append(parts, syntheticConditions(rng)...)

	temp := rng.IntN(46) - 10
	dew := temp - rng.IntN(16)
	parts = append(parts,
		fmt.Sprintf("%s/%s", syntheticTemp(temp), syntheticTemp(dew)),
		fmt.Sprintf("A%04d", 2950+rng.IntN(101)),
		"RMK", "SYNTHETIC",
	)
	return strings.Join(parts, " ")
}

func syntheticForecast(rng *rand.Rand, station string, at time.Time) string {
	from := at.Truncate(time.Hour)
	to := from.Add(24 * time.Hour)
	change := from.Add(time.Duration(6+rng.IntN(12)) * time.Hour)

	parts := []string{
		"TAF", station, at.Format("021504") + "Z",
		fmt.Sprintf("%s/%s", dayHour(from), dayHour(to)),
	}
	parts = append(parts, syntheticConditions(rng)...)
	parts = append(parts, "FM"+change.Format("021504"))
	parts = append(parts, syntheticConditions(rng)...)
	return strings.Join(parts, " ")
}

func syntheticConditions(rng *rand.Rand) []string {
	var parts []string

	speed := rng.IntN(26)
	wind := fmt.Sprintf("%03d%02d", (1+rng.IntN(36))*10, speed)
	if speed == 0 {
		wind = "00000"
	} else if speed >= 12 && rng.IntN(3) == 0 {
		wind += fmt.Sprintf("G%02d", speed+5+rng.IntN(15))
	}
	parts = append(parts, wind+"KT")

	parts = append(parts, syntheticVisibility[rng.IntN(len(syntheticVisibility))])
	if phen := syntheticWeather[rng.IntN(len(syntheticWeather))]; phen != "" {
		parts = append(parts, phen)
	}

	layers := rng.IntN(4)
	if layers == 0 {
		return append(parts, "CLR")
	}
	base := 3 + rng.IntN(40)
	for i := 0; i < layers; i++ {
		cover := syntheticCover[min(i+rng.IntN(2), len(syntheticCover)-1)]
		parts = append(parts, fmt.Sprintf("%s%03d", cover, base))
		base += 10 + rng.IntN(40)
	}
	return parts
}

func syntheticTemp(t int) string {
	if t < 0 {
		return fmt.Sprintf("M%02d", -t)
	}
	return fmt.Sprintf("%02d", t)
}

func dayHour(t time.Time) string {
	if t.Hour() == 0 {
		prev := t.Add(-time.Hour)
		return fmt.Sprintf("%02d24", prev.Day())
	}
	return t.Format("0215")
}
