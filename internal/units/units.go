// Package units converts simulation speeds for display.
package units

import (
	"fmt"
	"strings"
)

// Speed units accepted on the command line.
const (
	MPS  = "mps"
	KMPH = "kmph"
	MPH  = "mph"
)

// ValidUnits lists the accepted speed units.
var ValidUnits = []string{MPS, KMPH, MPH}

const (
	mpsToKmph = 3.6
	mpsToMph  = 2.2369362920544
)

// IsValid reports whether unit is one of ValidUnits.
func IsValid(unit string) bool {
	for _, u := range ValidUnits {
		if u == unit {
			return true
		}
	}
	return false
}

// ConvertSpeed converts a speed in m/s to unit. Unknown units return the
// value unchanged.
func ConvertSpeed(mps float64, unit string) float64 {
	switch unit {
	case KMPH:
		return mps * mpsToKmph
	case MPH:
		return mps * mpsToMph
	default:
		return mps
	}
}

// Label returns the display suffix for unit.
func Label(unit string) string {
	switch unit {
	case KMPH:
		return "km/h"
	case MPH:
		return "mph"
	default:
		return "m/s"
	}
}

// FormatSpeed renders a m/s speed in unit with one decimal.
func FormatSpeed(mps float64, unit string) string {
	return fmt.Sprintf("%.1f %s", ConvertSpeed(mps, unit), Label(unit))
}

// ParseUnit normalises a user supplied unit name.
func ParseUnit(s string) (string, error) {
	u := strings.ToLower(strings.TrimSpace(s))
	switch u {
	case "kph", "km/h":
		u = KMPH
	case "m/s":
		u = MPS
	}
	if !IsValid(u) {
		return "", fmt.Errorf("invalid speed unit %q (valid: %s)", s, strings.Join(ValidUnits, ", "))
	}
	return u, nil
}
