package control

import (
	"math"

	"github.com/banshee-data/v2x.sim/internal/traffic"
)

const (
	// MinStandstillGap is the floor of the desired following gap.
	MinStandstillGap = 2.0 // m
	// GapGain converts a gap shortfall into braking.
	GapGain = 0.8
	// TTCHorizon triggers early braking on fast closure.
	TTCHorizon = 2.0 // s
	// TTCBrakeShare caps early braking as a share of DMax.
	TTCBrakeShare = 0.7
)

// RearEndAccel returns the car-following contribution for ego behind lead.
// A headway violation dominates; otherwise a short time-to-collision adds
// early braking even when the static gap is adequate.
func RearEndAccel(ego, lead *traffic.Vehicle) float64 {
	if lead == nil {
		return 0
	}
	halfLengths := 0.5 * (ego.Length + lead.Length)
	desiredGap := math.Max(MinStandstillGap, ego.V*ego.THeadway+halfLengths)
	gap := float64(ego.Direction)*(lead.S-ego.S) - halfLengths

	if gap < desiredGap {
		return -math.Min(ego.DMax, GapGain*(desiredGap-gap))
	}
	if ttc := ego.TTCWithLead(lead); ttc < TTCHorizon {
		return -math.Min(TTCBrakeShare*ego.DMax, TTCHorizon-ttc)
	}
	return 0
}
