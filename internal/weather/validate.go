package weather

import "math"

// Limits are the plausible value ranges for a reading. Values outside them
// are discarded to nil before persistence.
type Limits struct {
	WindMin float64
	WindMax float64
	TempMin float64
	TempMax float64
}

// DefaultLimits are tuned for New Zealand conditions.
func DefaultLimits() Limits {
	return Limits{
		WindMin: 0,
		WindMax: 500,
		TempMin: -40,
		TempMax: 60,
	}
}

// Validate returns m with every out-of-range or NaN value set to nil.
// A bearing of exactly 360 is folded to 0.
func (l Limits) Validate(m Measurement) Measurement {
	return Measurement{
		WindAverage: within(m.WindAverage, l.WindMin, l.WindMax),
		WindGust:    within(m.WindGust, l.WindMin, l.WindMax),
		WindBearing: bearing(m.WindBearing),
		Temperature: within(m.Temperature, l.TempMin, l.TempMax),
	}
}

func within(v *float64, lo, hi float64) *float64 {
	if v == nil || math.IsNaN(*v) || *v < lo || *v > hi {
		return nil
	}
	return Float(*v)
}

func bearing(v *float64) *float64 {
	b := within(v, 0, 360)
	if b != nil && *b == 360 {
		*b = 0
	}
	return b
}
