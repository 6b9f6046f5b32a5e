package engine

import "github.com/banshee-data/v2x.sim/internal/traffic"

// Snapshot is the externally consumed per-tick reporting surface.
type Snapshot struct {
	Tick          int                 `json:"tick"`
	T             float64             `json:"t"`
	SignalState   traffic.SignalState `json:"signal_state"`
	EWApproaching int                 `json:"ew_approaching"`
	NSApproaching int                 `json:"ns_approaching"`
	Counts        Counts              `json:"counts"`
	Metrics       Metrics             `json:"metrics"`
}

// Snapshot reports the current state. Approaching counts are computed over
// the current population with ApproachRadius.
func (s *Simulation) Snapshot() Snapshot {
	approaching := s.road.ApproachingByLane(s.vehicles, ApproachRadius)
	return Snapshot{
		Tick:          s.tick,
		T:             s.t,
		SignalState:   s.signal.State(),
		EWApproaching: approaching.Count(traffic.LaneEW),
		NSApproaching: approaching.Count(traffic.LaneNS),
		Counts:        s.Counts(),
		Metrics:       s.metrics,
	}
}
