package traffic

import (
	"math"

	"github.com/samber/lo"
)

// Default vehicle parameters (passenger car, urban cruising).
const (
	DefaultLength    = 4.5   // m
	DefaultVDes      = 14.0  // m/s, ~50 km/h
	DefaultAMax      = 2.0   // m/s^2 comfortable acceleration
	DefaultDMax      = 3.5   // m/s^2 comfortable braking (magnitude)
	DefaultTHeadway  = 1.2   // s
	DefaultCommRange = 200.0 // m

	// speedGain is the proportional gain of the cruise controller.
	speedGain = 0.6

	// stoppedEpsilon treats smaller speeds and distances as zero.
	stoppedEpsilon = 1e-6
)

// Vehicle is a point-mass vehicle moving along one approach.
//
// Direction is the sign convention for motion along the approach: a vehicle
// with Direction +1 moves towards +S and approaches the stop line from
// negative S.
type Vehicle struct {
	ID        int     `json:"id"`
	Lane      Lane    `json:"lane"`
	Direction int     `json:"direction"`
	S         float64 `json:"s"`
	V         float64 `json:"v"`
	A         float64 `json:"a"`
	Length    float64 `json:"length"`
	VDes      float64 `json:"v_des"`
	AMax      float64 `json:"a_max"`
	DMax      float64 `json:"d_max"`
	THeadway  float64 `json:"t_headway"`
	CommRange float64 `json:"comm_range"` // informational; controllers do not gate on it
}

// NewVehicle returns a vehicle with default parameters at position s with
// speed v. Negative speeds are clamped to zero.
func NewVehicle(id int, lane Lane, direction int, s, v float64) *Vehicle {
	return &Vehicle{
		ID:        id,
		Lane:      lane,
		Direction: direction,
		S:         s,
		V:         math.Max(0, v),
		Length:    DefaultLength,
		VDes:      DefaultVDes,
		AMax:      DefaultAMax,
		DMax:      DefaultDMax,
		THeadway:  DefaultTHeadway,
		CommRange: DefaultCommRange,
	}
}

// clampAccel bounds a to the comfortable envelope [-DMax, AMax].
func (v *Vehicle) clampAccel(a float64) float64 {
	return lo.Clamp(a, -v.DMax, v.AMax)
}

// SpeedControl is the vehicle's own cruise law: a proportional controller
// towards VDes.
func (v *Vehicle) SpeedControl() float64 {
	return v.clampAccel(speedGain * (v.VDes - v.V))
}

// ApplyControl saturates aCmd and stores it as the current acceleration.
func (v *Vehicle) ApplyControl(aCmd float64) {
	v.A = v.clampAccel(aCmd)
}

// Integrate advances the kinematic state by dt. Speed never goes negative,
// so sustained braking cannot move a vehicle backwards.
func (v *Vehicle) Integrate(dt float64) {
	v.V = math.Max(0, v.V+v.A*dt)
	v.S += float64(v.Direction) * v.V * dt
}

// DistanceToStopLine is positive while approaching, zero at the stop line
// and negative once inside the intersection.
func (v *Vehicle) DistanceToStopLine() float64 {
	return -float64(v.Direction) * v.S
}

// ComfortableBrakeToStop returns the deceleration that brings the vehicle
// to rest exactly at the stop line, never stronger than -DMax. With no
// distance left it returns -DMax.
func (v *Vehicle) ComfortableBrakeToStop() float64 {
	d := math.Max(0, v.DistanceToStopLine())
	if d < stoppedEpsilon {
		return -v.DMax
	}
	// v^2 = 2ad
	needed := -(v.V * v.V) / (2 * d)
	return math.Max(-v.DMax, needed)
}

// gapTo is the bumper-to-bumper gap to lead along the shared axis.
func (v *Vehicle) gapTo(lead *Vehicle) float64 {
	return float64(v.Direction)*(lead.S-v.S) - 0.5*(v.Length+lead.Length)
}

// TTCWithLead returns the time to collision with lead at current speeds:
// 0 when already overlapping, +Inf when not closing or lead is nil.
func (v *Vehicle) TTCWithLead(lead *Vehicle) float64 {
	if lead == nil {
		return math.Inf(1)
	}
	gap := v.gapTo(lead)
	if gap <= 0 {
		return 0
	}
	relV := v.V - lead.V
	if relV <= 0 {
		return math.Inf(1)
	}
	return gap / relV
}

// TimeToConflict is the time to reach s = 0 at current speed, +Inf when
// stationary or already past the stop line.
func (v *Vehicle) TimeToConflict() float64 {
	if v.Direction == 0 || v.V <= stoppedEpsilon {
		return math.Inf(1)
	}
	d := v.DistanceToStopLine()
	if d < 0 {
		return math.Inf(1)
	}
	return d / v.V
}
