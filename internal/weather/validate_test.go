package weather

import (
	"math"
	"testing"
)

func TestValidate(t *testing.T) {
	limits := DefaultLimits()

	tests := []struct {
		name string
		in   Measurement
		want Measurement
	}{
		{
			name: "in range",
			in:   Measurement{WindAverage: Float(12), WindGust: Float(30), WindBearing: Float(270), Temperature: Float(14.5)},
			want: Measurement{WindAverage: Float(12), WindGust: Float(30), WindBearing: Float(270), Temperature: Float(14.5)},
		},
		{
			name: "negative wind",
			in:   Measurement{WindAverage: Float(-1), WindGust: Float(501)},
			want: Measurement{},
		},
		{
			name: "nan",
			in:   Measurement{WindAverage: Float(math.NaN()), Temperature: Float(math.NaN())},
			want: Measurement{},
		},
		{
			name: "temperature bounds",
			in:   Measurement{Temperature: Float(-41)},
			want: Measurement{},
		},
		{
			name: "edges kept",
			in:   Measurement{WindAverage: Float(0), WindGust: Float(500), Temperature: Float(60)},
			want: Measurement{WindAverage: Float(0), WindGust: Float(500), Temperature: Float(60)},
		},
		{
			name: "bearing 360 folds to 0",
			in:   Measurement{WindBearing: Float(360)},
			want: Measurement{WindBearing: Float(0)},
		},
		{
			name: "bearing out of range",
			in:   Measurement{WindBearing: Float(361)},
			want: Measurement{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := limits.Validate(tt.in)
			assertFloat(t, "windAverage", got.WindAverage, tt.want.WindAverage)
			assertFloat(t, "windGust", got.WindGust, tt.want.WindGust)
			assertFloat(t, "windBearing", got.WindBearing, tt.want.WindBearing)
			assertFloat(t, "temperature", got.Temperature, tt.want.Temperature)
		})
	}
}

func TestValidateDoesNotAliasInput(t *testing.T) {
	v := 360.0
	in := Measurement{WindBearing: &v}
	DefaultLimits().Validate(in)
	if v != 360 {
		t.Fatalf("expected input untouched, got %v", v)
	}
}

func assertFloat(t *testing.T, field string, got, want *float64) {
	t.Helper()
	switch {
	case got == nil && want == nil:
	case got == nil || want == nil:
		t.Fatalf("%s: got %v, want %v", field, got, want)
	case *got != *want:
		t.Fatalf("%s: got %v, want %v", field, *got, *want)
	}
}
