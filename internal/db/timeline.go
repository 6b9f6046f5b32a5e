package db

import (
	"fmt"

	"github.com/banshee-data/v2x.sim/internal/traffic"
	"github.com/banshee-data/v2x.sim/internal/traffic/engine"
)

// TimelineRow is one recorded tick of a run.
type TimelineRow struct {
	Tick           int                 `json:"tick"`
	T              float64             `json:"t"`
	SignalState    traffic.SignalState `json:"signal_state"`
	EWApproaching  int                 `json:"ew_approaching"`
	NSApproaching  int                 `json:"ns_approaching"`
	Active         int                 `json:"active"`
	VehiclesExited int                 `json:"vehicles_exited"`
	Collisions     int                 `json:"collisions"`
	NearMisses     int                 `json:"near_misses"`
	TotalDelay     float64             `json:"total_delay"`
}

// TimelineRowFromSnapshot flattens an engine snapshot.
func TimelineRowFromSnapshot(s engine.Snapshot) TimelineRow {
	return TimelineRow{
		Tick:           s.Tick,
		T:              s.T,
		SignalState:    s.SignalState,
		EWApproaching:  s.EWApproaching,
		NSApproaching:  s.NSApproaching,
		Active:         s.Counts.Active,
		VehiclesExited: s.Metrics.TotalVehiclesExited,
		Collisions:     s.Metrics.Collisions,
		NearMisses:     s.Metrics.NearMisses,
		TotalDelay:     s.Metrics.TotalDelay,
	}
}

// InsertTimeline stores the snapshots of a run in one transaction.
func (db *DB) InsertTimeline(runID string, snaps []engine.Snapshot) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin timeline transaction: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	stmt, err := tx.Prepare(`
		INSERT INTO sim_timeline (
			run_id, tick, t, signal_state, ew_approaching, ns_approaching,
			active, vehicles_exited, collisions, near_misses, total_delay
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare timeline insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range snaps {
		r := TimelineRowFromSnapshot(s)
		if _, err := stmt.Exec(runID, r.Tick, r.T, r.SignalState.String(), r.EWApproaching, r.NSApproaching,
			r.Active, r.VehiclesExited, r.Collisions, r.NearMisses, r.TotalDelay); err != nil {
			return fmt.Errorf("failed to insert tick %d of run %s: %w", r.Tick, runID, err)
		}
	}
	return tx.Commit()
}

// Timeline returns the recorded ticks of a run in order. every > 1 keeps
// only every n-th tick (plus the last) for plotting long runs.
func (db *DB) Timeline(runID string, every int) ([]TimelineRow, error) {
	if every < 1 {
		every = 1
	}
	rows, err := db.Query(`
		SELECT tick, t, signal_state, ew_approaching, ns_approaching,
		       active, vehicles_exited, collisions, near_misses, total_delay
		FROM sim_timeline
		WHERE run_id = ? AND (tick % ? = 0 OR tick = (SELECT MAX(tick) FROM sim_timeline WHERE run_id = ?))
		ORDER BY tick`, runID, every, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query timeline of run %s: %w", runID, err)
	}
	defer rows.Close()

	out := []TimelineRow{}
	for rows.Next() {
		var (
			r     TimelineRow
			state string
		)
		if err := rows.Scan(&r.Tick, &r.T, &state, &r.EWApproaching, &r.NSApproaching,
			&r.Active, &r.VehiclesExited, &r.Collisions, &r.NearMisses, &r.TotalDelay); err != nil {
			return nil, fmt.Errorf("failed to scan timeline row: %w", err)
		}
		if r.SignalState, err = traffic.ParseSignalState(state); err != nil {
			return nil, fmt.Errorf("run %s tick %d: %w", runID, r.Tick, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
