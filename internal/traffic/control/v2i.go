package control

import (
	"math"

	"github.com/banshee-data/v2x.sim/internal/traffic"
)

// YellowReactionDistance is the distance to the stop line below which a
// vehicle reacts to a yellow.
const YellowReactionDistance = 30.0 // m

// SignalView is the read-only signal surface the V2I law needs.
type SignalView interface {
	IsRedFor(lane traffic.Lane) bool
	IsYellowFor(lane traffic.Lane) bool
}

// SignalAccel returns the acceleration contribution from the signal.
//
// Red plans a stop at the stop line. Yellow brakes only when close and
// only if stop planning itself calls for deceleration; a vehicle never
// accelerates to beat a yellow. Green contributes nothing.
func SignalAccel(v *traffic.Vehicle, sig SignalView, road traffic.Road) float64 {
	switch {
	case sig.IsRedFor(v.Lane):
		return v.ComfortableBrakeToStop()
	case sig.IsYellowFor(v.Lane):
		if v.DistanceToStopLine() < YellowReactionDistance {
			return math.Min(0, v.ComfortableBrakeToStop())
		}
		return 0
	}
	return 0
}
