package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a run or sweep does not exist.
var ErrNotFound = errors.New("not found")

// SimRun is one completed simulation run and its final metrics.
type SimRun struct {
	RunID          string          `json:"run_id"`
	Tag            string          `json:"tag"`
	SweepID        string          `json:"sweep_id,omitempty"`
	Config         json.RawMessage `json:"config"`
	Duration       float64         `json:"duration"`
	SimTime        float64         `json:"sim_time"`
	Ticks          int             `json:"ticks"`
	Collisions     int             `json:"collisions"`
	NearMisses     int             `json:"near_misses"`
	VehiclesExited int             `json:"vehicles_exited"`
	TotalDelay     float64         `json:"total_delay"`
	CreatedAt      time.Time       `json:"created_at"`
}

// InsertRun stores r. An empty RunID is replaced with a new UUID and a
// zero CreatedAt with the current time; both are written back to r.
func (db *DB) InsertRun(r *SimRun) error {
	if r.RunID == "" {
		r.RunID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	cfg := r.Config
	if len(cfg) == 0 {
		cfg = json.RawMessage("{}")
	}

	_, err := db.Exec(`
		INSERT INTO sim_runs (
			run_id, tag, sweep_id, config_json, duration, sim_time, ticks,
			collisions, near_misses, vehicles_exited, total_delay, created_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Tag, nullString(r.SweepID), string(cfg), r.Duration, r.SimTime, r.Ticks,
		r.Collisions, r.NearMisses, r.VehiclesExited, r.TotalDelay, r.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", r.RunID, err)
	}
	return nil
}

const runColumns = `run_id, tag, sweep_id, config_json, duration, sim_time, ticks,
	collisions, near_misses, vehicles_exited, total_delay, created_unix_nanos`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s rowScanner) (*SimRun, error) {
	var (
		r       SimRun
		sweepID sql.NullString
		cfg     string
		created int64
	)
	if err := s.Scan(&r.RunID, &r.Tag, &sweepID, &cfg, &r.Duration, &r.SimTime, &r.Ticks,
		&r.Collisions, &r.NearMisses, &r.VehiclesExited, &r.TotalDelay, &created); err != nil {
		return nil, err
	}
	r.SweepID = sweepID.String
	r.Config = json.RawMessage(cfg)
	r.CreatedAt = time.Unix(0, created).UTC()
	return &r, nil
}

// GetRun returns the run with the given ID or ErrNotFound.
func (db *DB) GetRun(runID string) (*SimRun, error) {
	row := db.QueryRow(`SELECT `+runColumns+` FROM sim_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return r, nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 means 100.
func (db *DB) ListRuns(limit int) ([]SimRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT `+runColumns+` FROM sim_runs
		ORDER BY created_unix_nanos DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()
	return collectRuns(rows)
}

// RunsForSweep returns every run recorded by the given sweep, oldest first.
func (db *DB) RunsForSweep(sweepID string) ([]SimRun, error) {
	rows, err := db.Query(`SELECT `+runColumns+` FROM sim_runs
		WHERE sweep_id = ? ORDER BY created_unix_nanos, run_id`, sweepID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs for sweep %s: %w", sweepID, err)
	}
	defer rows.Close()
	return collectRuns(rows)
}

func collectRuns(rows *sql.Rows) ([]SimRun, error) {
	runs := []SimRun{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and, through the foreign key, its timeline.
func (db *DB) DeleteRun(runID string) error {
	res, err := db.Exec(`DELETE FROM sim_runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
