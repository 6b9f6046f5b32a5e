package units

import (
	"math"
	"testing"
)

func TestConvertSpeed(t *testing.T) {
	tests := []struct {
		unit string
		mps  float64
		want float64
	}{
		{MPS, 12, 12},
		{KMPH, 12, 43.2},
		{MPH, 10, 22.369362920544},
		{"furlongs", 5, 5},
	}
	for _, tt := range tests {
		if got := ConvertSpeed(tt.mps, tt.unit); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ConvertSpeed(%v, %q) = %v, want %v", tt.mps, tt.unit, got, tt.want)
		}
	}
}

func TestFormatSpeed(t *testing.T) {
	if got := FormatSpeed(12, KMPH); got != "43.2 km/h" {
		t.Errorf("FormatSpeed = %q", got)
	}
	if got := FormatSpeed(11, MPS); got != "11.0 m/s" {
		t.Errorf("FormatSpeed = %q", got)
	}
}

func TestParseUnit(t *testing.T) {
	for in, want := range map[string]string{"kph": KMPH, " KMPH ": KMPH, "m/s": MPS, "mph": MPH} {
		got, err := ParseUnit(in)
		if err != nil || got != want {
			t.Errorf("ParseUnit(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseUnit("knots"); err == nil {
		t.Error("expected error for unknown unit")
	}
}
