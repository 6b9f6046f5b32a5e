// Package sweep runs a signal timing plan over a grid of timing values and
// seeds and aggregates the safety and efficiency metrics per combination.
package sweep

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// maxValues bounds the values one range may expand to.
const maxValues = 10000

// RangeSpec is an inclusive min:max:step range.
type RangeSpec struct {
	Min  float64
	Max  float64
	Step float64
}

// ParseRangeSpec parses "min:max:step".
func ParseRangeSpec(s string) (RangeSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return RangeSpec{}, fmt.Errorf("invalid range format %q: expected min:max:step", s)
	}
	var vals [3]float64
	for i, name := range []string{"min", "max", "step"} {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return RangeSpec{}, fmt.Errorf("invalid %s value %q: %w", name, parts[i], err)
		}
		vals[i] = v
	}
	if vals[2] <= 0 {
		return RangeSpec{}, fmt.Errorf("step must be positive, got %g", vals[2])
	}
	return RangeSpec{Min: vals[0], Max: vals[1], Step: vals[2]}, nil
}

// Values expands the range, rounding each value to 1e-3 so accumulated
// float error never drops the end point. Empty if Min > Max or the range
// would exceed maxValues.
func (r RangeSpec) Values() []float64 {
	if r.Step <= 0 || r.Min > r.Max {
		return nil
	}
	n := int((r.Max-r.Min)/r.Step) + 1
	if n > maxValues || n < 0 {
		return nil
	}
	out := make([]float64, 0, n)
	for i := 0; len(out) < maxValues; i++ {
		v := math.Round((r.Min+float64(i)*r.Step)*1000) / 1000
		if v > r.Max+r.Step/1000 {
			break
		}
		if v <= r.Max {
			out = append(out, v)
		}
	}
	return out
}

// ParseCSVFloat64s parses a comma-separated list of floats. Empty input
// yields nil.
func ParseCSVFloat64s(s string) ([]float64, error) {
	var out []float64
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseParamList parses either "min:max:step" or a comma list.
func ParseParamList(s string) ([]float64, error) {
	if strings.Contains(s, ":") {
		spec, err := ParseRangeSpec(s)
		if err != nil {
			return nil, err
		}
		vals := spec.Values()
		if len(vals) == 0 {
			return nil, fmt.Errorf("range %q is empty", s)
		}
		return vals, nil
	}
	return ParseCSVFloat64s(s)
}

// ParseSeeds parses seeds as "first:last" (inclusive, step 1),
// "first:last:step" or a comma list.
func ParseSeeds(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) == 2 {
			parts = append(parts, "1")
		}
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid seed range %q: expected first:last[:step]", s)
		}
		var vals [3]int64
		for i := range parts {
			v, err := strconv.ParseInt(strings.TrimSpace(parts[i]), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid seed range %q: %w", s, err)
			}
			vals[i] = v
		}
		first, last, step := vals[0], vals[1], vals[2]
		if step <= 0 || first > last || (last-first)/step >= maxValues {
			return nil, fmt.Errorf("invalid seed range %q", s)
		}
		var out []int64
		for v := first; v <= last; v += step {
			out = append(out, v)
		}
		return out, nil
	}

	var out []int64
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid seed '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
