package db

import (
	"fmt"
	"time"
)

// SweepResult is the aggregate of all seeds run for one signal timing
// combination of a sweep.
type SweepResult struct {
	SweepID          string    `json:"sweep_id"`
	Combo            int       `json:"combo"`
	MinGreen         float64   `json:"min_green"`
	MaxGreen         float64   `json:"max_green"`
	Yellow           float64   `json:"yellow"`
	AllRed           float64   `json:"all_red"`
	Policy           string    `json:"policy"`
	Runs             int       `json:"runs"`
	CollisionsMean   float64   `json:"collisions_mean"`
	CollisionsStddev float64   `json:"collisions_stddev"`
	NearMissesMean   float64   `json:"near_misses_mean"`
	NearMissesStddev float64   `json:"near_misses_stddev"`
	ExitedMean       float64   `json:"exited_mean"`
	ExitedStddev     float64   `json:"exited_stddev"`
	DelayMean        float64   `json:"delay_mean"`
	DelayStddev      float64   `json:"delay_stddev"`
	Score            float64   `json:"score"`
	CreatedAt        time.Time `json:"created_at"`
}

// InsertSweepResults stores the results of one sweep in a transaction.
// Re-inserting a combo replaces it.
func (db *DB) InsertSweepResults(results []SweepResult) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin sweep transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO sweep_results (
			sweep_id, combo, min_green, max_green, yellow, all_red, policy, runs,
			collisions_mean, collisions_stddev, near_misses_mean, near_misses_stddev,
			exited_mean, exited_stddev, delay_mean, delay_stddev, score, created_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare sweep insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range results {
		r := &results[i]
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if _, err := stmt.Exec(r.SweepID, r.Combo, r.MinGreen, r.MaxGreen, r.Yellow, r.AllRed, r.Policy, r.Runs,
			r.CollisionsMean, r.CollisionsStddev, r.NearMissesMean, r.NearMissesStddev,
			r.ExitedMean, r.ExitedStddev, r.DelayMean, r.DelayStddev, r.Score, r.CreatedAt.UnixNano()); err != nil {
			return fmt.Errorf("failed to insert sweep %s combo %d: %w", r.SweepID, r.Combo, err)
		}
	}
	return tx.Commit()
}

// SweepResults returns the results of a sweep, best score first. It
// returns ErrNotFound if the sweep has no rows.
func (db *DB) SweepResults(sweepID string) ([]SweepResult, error) {
	rows, err := db.Query(`
		SELECT sweep_id, combo, min_green, max_green, yellow, all_red, policy, runs,
		       collisions_mean, collisions_stddev, near_misses_mean, near_misses_stddev,
		       exited_mean, exited_stddev, delay_mean, delay_stddev, score, created_unix_nanos
		FROM sweep_results WHERE sweep_id = ?
		ORDER BY score, combo`, sweepID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sweep %s: %w", sweepID, err)
	}
	defer rows.Close()

	var out []SweepResult
	for rows.Next() {
		var (
			r       SweepResult
			created int64
		)
		if err := rows.Scan(&r.SweepID, &r.Combo, &r.MinGreen, &r.MaxGreen, &r.Yellow, &r.AllRed, &r.Policy, &r.Runs,
			&r.CollisionsMean, &r.CollisionsStddev, &r.NearMissesMean, &r.NearMissesStddev,
			&r.ExitedMean, &r.ExitedStddev, &r.DelayMean, &r.DelayStddev, &r.Score, &created); err != nil {
			return nil, fmt.Errorf("failed to scan sweep row: %w", err)
		}
		r.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("sweep %s: %w", sweepID, ErrNotFound)
	}
	return out, nil
}
