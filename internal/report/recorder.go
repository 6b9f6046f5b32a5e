// Package report turns a finished simulation into the run artifacts: the
// metrics and config JSON, per-tick CSV timelines, a text run log and
// HTML/PNG charts.
package report

import (
	"math"

	"github.com/banshee-data/v2x.sim/internal/traffic/engine"
)

// Recorder collects the per-tick snapshots of a run. Its Observe method is
// passed to engine.Simulation.RunContext.
type Recorder struct {
	snaps []engine.Snapshot
}

// NewRecorder returns a recorder with room for steps snapshots.
func NewRecorder(steps int) *Recorder {
	if steps < 0 {
		steps = 0
	}
	return &Recorder{snaps: make([]engine.Snapshot, 0, steps)}
}

// Observe appends s.
func (r *Recorder) Observe(s engine.Snapshot) {
	r.snaps = append(r.snaps, s)
}

// Snapshots returns the recorded snapshots in tick order.
func (r *Recorder) Snapshots() []engine.Snapshot {
	return r.snaps
}

// Len returns the number of recorded ticks.
func (r *Recorder) Len() int { return len(r.snaps) }

// round2 rounds to two decimals for the CSV time column.
func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
