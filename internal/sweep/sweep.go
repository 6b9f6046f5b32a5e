package sweep

import (
	"context"
	"fmt"

	"github.com/banshee-data/v2x.sim/internal/config"
	"github.com/banshee-data/v2x.sim/internal/traffic"
	"github.com/banshee-data/v2x.sim/internal/traffic/engine"
	"github.com/banshee-data/v2x.sim/internal/traffic/scenario"
)

// maxRuns bounds combos × seeds for one sweep.
const maxRuns = 20000

// Request describes one sweep. Empty dimensions take the single value of
// the base config.
type Request struct {
	// Base supplies every value not swept. nil means the built-in defaults.
	Base *config.SimConfig `json:"base,omitempty"`

	MinGreen []float64 `json:"min_green,omitempty"`
	MaxGreen []float64 `json:"max_green,omitempty"`
	Yellow   []float64 `json:"yellow,omitempty"`
	AllRed   []float64 `json:"all_red,omitempty"`
	Policies []string  `json:"policies,omitempty"`
	Seeds    []int64   `json:"seeds,omitempty"`

	// Concurrency caps simultaneous simulations; <= 0 means one per CPU.
	Concurrency int     `json:"concurrency,omitempty"`
	Weights     Weights `json:"weights"`
}

// Combo is one point of the signal timing grid.
type Combo struct {
	Index    int     `json:"combo"`
	MinGreen float64 `json:"min_green"`
	MaxGreen float64 `json:"max_green"`
	Yellow   float64 `json:"yellow"`
	AllRed   float64 `json:"all_red"`
	Policy   string  `json:"policy"`
}

// SignalConfig returns the timing plan of c.
func (c Combo) SignalConfig() traffic.SignalConfig {
	return traffic.SignalConfig{MinGreen: c.MinGreen, MaxGreen: c.MaxGreen, Yellow: c.Yellow, AllRed: c.AllRed, Policy: c.Policy}
}

func orDefault(vals []float64, def float64) []float64 {
	if len(vals) == 0 {
		return []float64{def}
	}
	return vals
}

// Grid expands the request into valid combos, indexed in iteration order
// (min_green outermost, policy innermost). Combos whose timing plan fails
// validation, such as min_green > max_green, are skipped and reported as
// warnings.
func Grid(req Request) ([]Combo, []string) {
	base := req.Base
	if base == nil {
		base = config.EmptySimConfig()
	}
	policies := req.Policies
	if len(policies) == 0 {
		policies = []string{base.GetPolicy()}
	}

	var (
		combos   []Combo
		warnings []string
	)
	for _, minG := range orDefault(req.MinGreen, base.GetMinGreen()) {
		for _, maxG := range orDefault(req.MaxGreen, base.GetMaxGreen()) {
			for _, y := range orDefault(req.Yellow, base.GetYellow()) {
				for _, ar := range orDefault(req.AllRed, base.GetAllRed()) {
					for _, p := range policies {
						c := Combo{Index: len(combos), MinGreen: minG, MaxGreen: maxG, Yellow: y, AllRed: ar, Policy: p}
						if err := c.SignalConfig().Validate(); err != nil {
							warnings = append(warnings, fmt.Sprintf(
								"skipping min_green=%g max_green=%g yellow=%g all_red=%g policy=%s: %v",
								minG, maxG, y, ar, p, err))
							continue
						}
						combos = append(combos, c)
					}
				}
			}
		}
	}
	return combos, warnings
}

// configFor returns the full run configuration of one combo and seed.
func configFor(base *config.SimConfig, c Combo, seed int64) *config.SimConfig {
	cfg := base.Resolved()
	cfg.MinGreen = config.PtrFloat64(c.MinGreen)
	cfg.MaxGreen = config.PtrFloat64(c.MaxGreen)
	cfg.Yellow = config.PtrFloat64(c.Yellow)
	cfg.AllRed = config.PtrFloat64(c.AllRed)
	cfg.Policy = config.PtrString(c.Policy)
	cfg.Seed = config.PtrInt64(seed)
	return cfg
}

// Simulate builds and runs the simulation described by cfg.
func Simulate(ctx context.Context, cfg *config.SimConfig, observe func(engine.Snapshot)) (*engine.Simulation, engine.Metrics, error) {
	if err := cfg.Validate(); err != nil {
		return nil, engine.Metrics{}, fmt.Errorf("invalid config: %w", err)
	}
	sim, err := engine.New(cfg.EngineConfig())
	if err != nil {
		return nil, engine.Metrics{}, err
	}
	if _, err := scenario.Populate(sim, cfg.ScenarioParams()); err != nil {
		return nil, engine.Metrics{}, err
	}
	m, err := sim.RunContext(ctx, cfg.GetDuration(), observe)
	return sim, m, err
}
