package sweep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/v2x.sim/internal/config"
	"github.com/banshee-data/v2x.sim/internal/db"
	"github.com/banshee-data/v2x.sim/internal/monitoring"
	"github.com/banshee-data/v2x.sim/internal/timeutil"
	"github.com/banshee-data/v2x.sim/internal/traffic/engine"
)

// SweepStatus represents the current state of a sweep run
type SweepStatus string

const (
	SweepStatusIdle     SweepStatus = "idle"
	SweepStatusRunning  SweepStatus = "running"
	SweepStatusComplete SweepStatus = "complete"
	SweepStatusError    SweepStatus = "error"
)

// SeedResult is the outcome of one simulation in a sweep.
type SeedResult struct {
	Combo   int            `json:"combo"`
	Seed    int64          `json:"seed"`
	RunID   string         `json:"run_id,omitempty"`
	Metrics engine.Metrics `json:"metrics"`
}

// ComboResult aggregates every seed of one combo.
type ComboResult struct {
	Combo
	Runs             int     `json:"runs"`
	CollisionsMean   float64 `json:"collisions_mean"`
	CollisionsStddev float64 `json:"collisions_stddev"`
	NearMissesMean   float64 `json:"near_misses_mean"`
	NearMissesStddev float64 `json:"near_misses_stddev"`
	ExitedMean       float64 `json:"exited_mean"`
	ExitedStddev     float64 `json:"exited_stddev"`
	DelayMean        float64 `json:"delay_mean"`
	DelayStddev      float64 `json:"delay_stddev"`
	Score            float64 `json:"score"`
}

// SweepState holds the current state and results of a sweep
type SweepState struct {
	SweepID       string        `json:"sweep_id,omitempty"`
	Status        SweepStatus   `json:"status"`
	StartedAt     *time.Time    `json:"started_at,omitempty"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	TotalCombos   int           `json:"total_combos"`
	TotalRuns     int           `json:"total_runs"`
	CompletedRuns int           `json:"completed_runs"`
	Results       []ComboResult `json:"results"`
	Error         string        `json:"error,omitempty"`
	Warnings      []string      `json:"warnings,omitempty"`
}

// Store persists sweep runs and aggregates. *db.DB implements it.
type Store interface {
	InsertRun(r *db.SimRun) error
	InsertSweepResults(results []db.SweepResult) error
}

// Runner executes sweeps. One sweep runs at a time; GetSweepState may be
// polled concurrently.
type Runner struct {
	// Store, if set, receives every run and the final aggregates.
	Store Store
	// Clock stamps the state; nil means the wall clock.
	Clock timeutil.Clock
	// OnResult, if set, is called with each finished simulation. Calls are
	// serialised.
	OnResult func(SeedResult)

	mu     sync.RWMutex
	state  SweepState
	cancel context.CancelFunc
}

// NewRunner creates a new sweep runner
func NewRunner(store Store) *Runner {
	return &Runner{Store: store, state: SweepState{Status: SweepStatusIdle}}
}

func (r *Runner) now() time.Time {
	if r.Clock == nil {
		return time.Now()
	}
	return r.Clock.Now()
}

// GetSweepState returns a copy of the current sweep state.
func (r *Runner) GetSweepState() SweepState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state := r.state
	state.Results = append([]ComboResult(nil), r.state.Results...)
	state.Warnings = append([]string(nil), r.state.Warnings...)
	return state
}

// Start validates req and runs the sweep in the background. It returns
// the sweep ID.
func (r *Runner) Start(ctx context.Context, req Request) (string, error) {
	combos, seeds, err := r.begin(req)
	if err != nil {
		return "", err
	}
	sweepCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	id := r.state.SweepID
	r.mu.Unlock()

	go func() {
		defer cancel()
		r.execute(sweepCtx, req, combos, seeds)
	}()
	return id, nil
}

// Run executes the sweep and blocks until it finishes. Results are
// ordered by combo index.
func (r *Runner) Run(ctx context.Context, req Request) ([]ComboResult, error) {
	combos, seeds, err := r.begin(req)
	if err != nil {
		return nil, err
	}
	sweepCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	return r.execute(sweepCtx, req, combos, seeds)
}

// Stop cancels a running sweep
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

func (r *Runner) begin(req Request) ([]Combo, []int64, error) {
	base := req.Base
	if base == nil {
		base = config.EmptySimConfig()
	}
	if err := base.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid base config: %w", err)
	}
	combos, warnings := Grid(req)
	if len(combos) == 0 {
		return nil, nil, errors.New("no valid parameter combinations to sweep")
	}
	seeds := req.Seeds
	if len(seeds) == 0 {
		seeds = []int64{base.GetSeed()}
	}
	total := len(combos) * len(seeds)
	if total > maxRuns {
		return nil, nil, fmt.Errorf("sweep too large: %d runs (max %d)", total, maxRuns)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Status == SweepStatusRunning {
		return nil, nil, errors.New("sweep already in progress")
	}
	now := r.now()
	r.state = SweepState{
		SweepID:     uuid.NewString(),
		Status:      SweepStatusRunning,
		StartedAt:   &now,
		TotalCombos: len(combos),
		TotalRuns:   total,
		Results:     []ComboResult{},
		Warnings:    warnings,
	}
	for _, w := range warnings {
		monitoring.Logf("sweep: %s", w)
	}
	return combos, seeds, nil
}

func (r *Runner) finish(results []ComboResult, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.state.CompletedAt = &now
	r.cancel = nil
	if err != nil {
		r.state.Status = SweepStatusError
		r.state.Error = err.Error()
		return
	}
	r.state.Status = SweepStatusComplete
	r.state.Results = results
}

func (r *Runner) execute(ctx context.Context, req Request, combos []Combo, seeds []int64) ([]ComboResult, error) {
	base := req.Base
	if base == nil {
		base = config.EmptySimConfig()
	}
	weights := req.Weights
	if weights.isZero() {
		weights = DefaultWeights()
	}
	limit := req.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	sweepID := r.GetSweepState().SweepID

	outcomes := make([][]SeedResult, len(combos))
	for i := range outcomes {
		outcomes[i] = make([]SeedResult, len(seeds))
	}

	var resultMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for ci, c := range combos {
		for si, seed := range seeds {
			g.Go(func() error {
				cfg := configFor(base, c, seed)
				sim, m, err := Simulate(gctx, cfg, nil)
				if err != nil {
					return fmt.Errorf("combo %d seed %d: %w", c.Index, seed, err)
				}
				res := SeedResult{Combo: c.Index, Seed: seed, Metrics: m}

				// Store writes and callbacks are serialised.
				resultMu.Lock()
				defer resultMu.Unlock()
				if r.Store != nil {
					run, err := newSimRun(sweepID, cfg, sim.T(), sim.Tick(), m)
					if err != nil {
						return err
					}
					if err := r.Store.InsertRun(run); err != nil {
						return fmt.Errorf("combo %d seed %d: %w", c.Index, seed, err)
					}
					res.RunID = run.RunID
				}
				outcomes[ci][si] = res
				r.mu.Lock()
				r.state.CompletedRuns++
				r.mu.Unlock()
				if r.OnResult != nil {
					r.OnResult(res)
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		r.finish(nil, err)
		return nil, err
	}

	results := make([]ComboResult, len(combos))
	for i, c := range combos {
		results[i] = aggregate(c, outcomes[i], weights)
	}

	if r.Store != nil {
		if err := r.Store.InsertSweepResults(toRows(sweepID, results)); err != nil {
			r.finish(nil, err)
			return nil, err
		}
	}
	r.finish(results, nil)
	return results, nil
}

func aggregate(c Combo, runs []SeedResult, w Weights) ComboResult {
	n := len(runs)
	collisions := make([]float64, n)
	nearMisses := make([]float64, n)
	exited := make([]float64, n)
	delay := make([]float64, n)
	for i, r := range runs {
		collisions[i] = float64(r.Metrics.Collisions)
		nearMisses[i] = float64(r.Metrics.NearMisses)
		exited[i] = float64(r.Metrics.TotalVehiclesExited)
		delay[i] = r.Metrics.TotalDelay
	}
	res := ComboResult{Combo: c, Runs: n}
	res.CollisionsMean, res.CollisionsStddev = meanStddev(collisions)
	res.NearMissesMean, res.NearMissesStddev = meanStddev(nearMisses)
	res.ExitedMean, res.ExitedStddev = meanStddev(exited)
	res.DelayMean, res.DelayStddev = meanStddev(delay)
	res.Score = w.Score(res)
	return res
}

// Best returns the result with the lowest score, ties to the lower index.
func Best(results []ComboResult) (ComboResult, bool) {
	if len(results) == 0 {
		return ComboResult{}, false
	}
	best := results[0]
	for _, r := range results[1:] {
		if r.Score < best.Score {
			best = r
		}
	}
	return best, true
}

func newSimRun(sweepID string, cfg *config.SimConfig, t float64, ticks int, m engine.Metrics) (*db.SimRun, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run config: %w", err)
	}
	return &db.SimRun{
		SweepID:        sweepID,
		Tag:            "sweep",
		Config:         raw,
		Duration:       cfg.GetDuration(),
		SimTime:        t,
		Ticks:          ticks,
		Collisions:     m.Collisions,
		NearMisses:     m.NearMisses,
		VehiclesExited: m.TotalVehiclesExited,
		TotalDelay:     m.TotalDelay,
	}, nil
}

func toRows(sweepID string, results []ComboResult) []db.SweepResult {
	rows := make([]db.SweepResult, len(results))
	for i, r := range results {
		rows[i] = db.SweepResult{
			SweepID:          sweepID,
			Combo:            r.Index,
			MinGreen:         r.MinGreen,
			MaxGreen:         r.MaxGreen,
			Yellow:           r.Yellow,
			AllRed:           r.AllRed,
			Policy:           r.Policy,
			Runs:             r.Runs,
			CollisionsMean:   r.CollisionsMean,
			CollisionsStddev: r.CollisionsStddev,
			NearMissesMean:   r.NearMissesMean,
			NearMissesStddev: r.NearMissesStddev,
			ExitedMean:       r.ExitedMean,
			ExitedStddev:     r.ExitedStddev,
			DelayMean:        r.DelayMean,
			DelayStddev:      r.DelayStddev,
			Score:            r.Score,
		}
	}
	return rows
}
