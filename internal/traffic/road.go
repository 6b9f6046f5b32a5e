package traffic

import (
	"math"
	"slices"
)

// Default road geometry.
const (
	DefaultExitDistance      = 250.0 // m
	DefaultConflictHalfWidth = 6.0   // m
)

// Road is the immutable geometry of the two approaches. It owns no
// vehicles; every method is a query over a population supplied by the
// caller.
type Road struct {
	ExitDistance      float64 `json:"exit_distance"`
	ConflictHalfWidth float64 `json:"conflict_half_width"`
}

// DefaultRoad returns the standard intersection geometry.
func DefaultRoad() Road {
	return Road{
		ExitDistance:      DefaultExitDistance,
		ConflictHalfWidth: DefaultConflictHalfWidth,
	}
}

// Validate rejects non-positive geometry.
func (r Road) Validate() error {
	if err := positive("exit_distance", r.ExitDistance); err != nil {
		return err
	}
	return positive("conflict_half_width", r.ConflictHalfWidth)
}

// Approaching holds, per lane, the vehicles inside the sensing radius
// ordered closest-first.
type Approaching map[Lane][]*Vehicle

// Count returns the number of approaching vehicles on lane.
func (a Approaching) Count(lane Lane) int {
	return len(a[lane])
}

// ApproachingByLane buckets vehicles with 0 <= DistanceToStopLine <= radius
// by lane. Both lanes are always present in the result.
func (r Road) ApproachingByLane(vehicles []*Vehicle, radius float64) Approaching {
	res := Approaching{LaneEW: nil, LaneNS: nil}
	for _, v := range vehicles {
		d := v.DistanceToStopLine()
		if d >= 0 && d <= radius {
			res[v.Lane] = append(res[v.Lane], v)
		}
	}
	for lane, list := range res {
		slices.SortStableFunc(list, func(a, b *Vehicle) int {
			da, db := a.DistanceToStopLine(), b.DistanceToStopLine()
			switch {
			case da < db:
				return -1
			case da > db:
				return 1
			}
			return 0
		})
		res[lane] = list
	}
	return res
}

// LeadVehicle returns the nearest vehicle strictly ahead of ego on the
// same lane and direction, or nil. This is a full scan of vehicles; ties
// keep the first one encountered.
func (r Road) LeadVehicle(vehicles []*Vehicle, ego *Vehicle) *Vehicle {
	var best *Vehicle
	bestGap := math.Inf(1)
	for _, v := range vehicles {
		if v == ego {
			continue
		}
		if v.Lane != ego.Lane || v.Direction != ego.Direction {
			continue
		}
		gap := float64(ego.Direction) * (v.S - ego.S)
		if gap <= 0 {
			continue
		}
		if gap < bestGap {
			bestGap = gap
			best = v
		}
	}
	return best
}

// Exited reports whether v has left the modelled area.
func (r Road) Exited(v *Vehicle) bool {
	return math.Abs(v.S) > r.ExitDistance
}

// InConflictZone reports whether v is inside the box around s = 0.
func (r Road) InConflictZone(v *Vehicle) bool {
	return math.Abs(v.S) <= r.ConflictHalfWidth
}
