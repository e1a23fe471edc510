package weather

import (
	"math"
	"sort"
	"time"

	"github.com/i474232898/weather-ingest/internal/common"
)

// Bucket is one fixed-width aggregate of readings.
type Bucket struct {
	Time time.Time `json:"time"`
	Measurement
}

// SortReadings orders readings by ascending time, in place.
func SortReadings(readings []Reading) {
	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].Time.Before(readings[j].Time)
	})
}

// Aggregate combines ascending-time readings into width-sized buckets.
//
// A bucket closes when the elapsed time since its first sample reaches width,
// or when the sample's minute within the bucket has wrapped backwards (which
// catches missed or irregular samples). The trailing, still open bucket is
// never emitted. Only samples with a wind average are counted; wind bearing is
// averaged on the unit circle.
//
// The result depends only on the input, so repeated runs agree exactly.
func Aggregate(readings []Reading, width time.Duration) []Bucket {
	if len(readings) == 0 || width <= 0 {
		return nil
	}

	var (
		out   []Bucket
		acc   accumulator
		start = readings[0].Time
	)

	for _, r := range readings {
		if r.Time.Sub(start) >= width || wrapped(r.Time, start, width) {
			out = append(out, acc.bucket(bucketLabel(start, width)))
			acc = accumulator{}
			start = r.Time
		}
		acc.add(r.Measurement)
	}

	return out
}

// minuteWithin returns the minute of t inside a width-minute bucket. Buckets
// are aligned to the Unix epoch, so any width lines up on the same grid.
func minuteWithin(t time.Time, width time.Duration) int {
	m := int64(width / time.Minute)
	if m <= 0 {
		return 0
	}
	return int((t.Unix() / 60) % m)
}

func wrapped(t, start time.Time, width time.Duration) bool {
	cur := minuteWithin(t, width)
	return cur > 0 && cur < minuteWithin(start, width)
}

// bucketLabel is the bucket's closing boundary.
func bucketLabel(start time.Time, width time.Duration) time.Time {
	m := int(width / time.Minute)
	if m <= 0 {
		return start.Add(width)
	}
	return start.Add(time.Duration(m-minuteWithin(start, width)) * time.Minute)
}

type accumulator struct {
	count    int
	sumAvg   float64
	sumSin   float64
	sumCos   float64
	bearings int
	sumTemp  float64
	temps    int
	maxGust  *float64
}

func (a *accumulator) add(m Measurement) {
	if m.WindAverage == nil {
		return
	}
	a.count++
	a.sumAvg += *m.WindAverage
	if m.WindBearing != nil {
		rad := *m.WindBearing * math.Pi / 180
		a.sumSin += math.Sin(rad)
		a.sumCos += math.Cos(rad)
		a.bearings++
	}
	if m.Temperature != nil {
		a.sumTemp += *m.Temperature
		a.temps++
	}
	if m.WindGust != nil && (a.maxGust == nil || *m.WindGust > *a.maxGust) {
		a.maxGust = Float(*m.WindGust)
	}
}

func (a *accumulator) bucket(t time.Time) Bucket {
	b := Bucket{Time: t}
	if a.count == 0 {
		return b
	}
	b.WindAverage = Float(common.RoundHalfUp(a.sumAvg / float64(a.count)))
	if a.bearings > 0 {
		b.WindBearing = Float(roundBearing(a.sumSin, a.sumCos))
	}
	if a.temps > 0 {
		b.Temperature = Float(common.RoundHalfUp(a.sumTemp / float64(a.count)))
	}
	b.WindGust = a.maxGust
	return b
}

// roundBearing converts a summed unit vector to a whole-degree bearing in [0,360).
func roundBearing(sumSin, sumCos float64) float64 {
	deg := common.RoundHalfUp(math.Atan2(sumSin, sumCos) * 180 / math.Pi)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg -= 360
	}
	return deg
}

// CircularMean returns the mean of bearings in degrees, in [0,360), or nil
// for an empty input.
func CircularMean(bearings []float64) *float64 {
	if len(bearings) == 0 {
		return nil
	}
	var sumSin, sumCos float64
	for _, b := range bearings {
		rad := b * math.Pi / 180
		sumSin += math.Sin(rad)
		sumCos += math.Cos(rad)
	}
	deg := math.Atan2(sumSin, sumCos) * 180 / math.Pi
	deg = math.Mod(deg+360, 360)
	return Float(deg)
}

// SnapshotAverage averages wind speed and bearing over every reading that
// has both; gust and temperature are left nil.
func SnapshotAverage(readings []Reading) Measurement {
	var (
		count          int
		sumAvg         float64
		sumSin, sumCos float64
	)
	for _, r := range readings {
		if r.WindAverage == nil || r.WindBearing == nil {
			continue
		}
		count++
		sumAvg += *r.WindAverage
		rad := *r.WindBearing * math.Pi / 180
		sumSin += math.Sin(rad)
		sumCos += math.Cos(rad)
	}
	if count == 0 {
		return Measurement{}
	}
	return Measurement{
		WindAverage: Float(common.RoundHalfUp(sumAvg / float64(count))),
		WindBearing: Float(roundBearing(sumSin, sumCos)),
	}
}
