package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/v2x.sim/internal/traffic"
	"github.com/banshee-data/v2x.sim/internal/traffic/engine"
	"github.com/banshee-data/v2x.sim/internal/traffic/scenario"
)

// DefaultConfigPath is the path to the canonical simulation defaults file.
const DefaultConfigPath = "config/sim.defaults.json"

// Default run length when neither the file nor a flag sets one.
const DefaultDuration = 60.0 // s

// SimConfig is the on-disk description of one simulation run. Every field
// is optional; the Get* methods supply defaults for anything omitted, so
// partial files are safe. The JSON schema is also what config_used.json
// and the sim_runs table store.
type SimConfig struct {
	// Run
	Duration *float64 `json:"duration,omitempty"` // s
	DT       *float64 `json:"dt,omitempty"`       // s

	// Signal
	MinGreen *float64 `json:"min_green,omitempty"`
	MaxGreen *float64 `json:"max_green,omitempty"`
	Yellow   *float64 `json:"yellow,omitempty"`
	AllRed   *float64 `json:"all_red,omitempty"`
	Policy   *string  `json:"policy,omitempty"` // "adaptive" or "fixed"

	// Road
	ExitDistance      *float64 `json:"exit_distance,omitempty"`
	ConflictHalfWidth *float64 `json:"conflict_half_width,omitempty"`

	// Scenario
	EWCount    *int     `json:"ew_count,omitempty"`
	NSCount    *int     `json:"ns_count,omitempty"`
	SpawnGapEW *float64 `json:"spawn_gap_ew,omitempty"`
	SpawnGapNS *float64 `json:"spawn_gap_ns,omitempty"`
	EWStartS   *float64 `json:"ew_start_s,omitempty"`
	NSStartS   *float64 `json:"ns_start_s,omitempty"`
	SpacingEW  *float64 `json:"spacing_ew,omitempty"`
	SpacingNS  *float64 `json:"spacing_ns,omitempty"`
	VEW        *float64 `json:"v_ew,omitempty"`
	VNS        *float64 `json:"v_ns,omitempty"`
	VJitter    *float64 `json:"v_jitter,omitempty"`
	Seed       *int64   `json:"seed,omitempty"`
}

// Helper functions to create pointers
func PtrFloat64(v float64) *float64 { return &v }
func PtrInt(v int) *int             { return &v }
func PtrInt64(v int64) *int64       { return &v }
func PtrString(v string) *string    { return &v }

// EmptySimConfig returns a SimConfig with all fields set to nil.
func EmptySimConfig() *SimConfig {
	return &SimConfig{}
}

// DefaultSimConfig returns a fully populated config holding the built-in
// defaults.
func DefaultSimConfig() *SimConfig {
	return EmptySimConfig().Resolved()
}

// LoadSimConfig loads a SimConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadSimConfig(path string) (*SimConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySimConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", cleanPath, err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root. Panics if the file
// cannot be loaded; intended for test setup.
func MustLoadDefaultConfig() *SimConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/traffic/engine/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadSimConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks every set or defaulted value by building the engine and
// scenario configurations from it.
func (c *SimConfig) Validate() error {
	if d := c.GetDuration(); !(d > 0) {
		return &traffic.ConfigError{Field: "duration", Reason: fmt.Sprintf("must be positive, got %v", d)}
	}
	if dt := c.GetDT(); !(dt > 0) {
		return &traffic.ConfigError{Field: "dt", Reason: fmt.Sprintf("must be positive, got %v", dt)}
	}
	if err := c.SignalConfig().Validate(); err != nil {
		return err
	}
	if err := c.Road().Validate(); err != nil {
		return err
	}
	return c.ScenarioParams().Validate()
}

// Resolved returns a copy with every field set, defaults filled in.
func (c *SimConfig) Resolved() *SimConfig {
	return &SimConfig{
		Duration:          PtrFloat64(c.GetDuration()),
		DT:                PtrFloat64(c.GetDT()),
		MinGreen:          PtrFloat64(c.GetMinGreen()),
		MaxGreen:          PtrFloat64(c.GetMaxGreen()),
		Yellow:            PtrFloat64(c.GetYellow()),
		AllRed:            PtrFloat64(c.GetAllRed()),
		Policy:            PtrString(c.GetPolicy()),
		ExitDistance:      PtrFloat64(c.GetExitDistance()),
		ConflictHalfWidth: PtrFloat64(c.GetConflictHalfWidth()),
		EWCount:           PtrInt(c.GetEWCount()),
		NSCount:           PtrInt(c.GetNSCount()),
		SpawnGapEW:        PtrFloat64(c.GetSpawnGapEW()),
		SpawnGapNS:        PtrFloat64(c.GetSpawnGapNS()),
		EWStartS:          PtrFloat64(c.GetEWStartS()),
		NSStartS:          PtrFloat64(c.GetNSStartS()),
		SpacingEW:         PtrFloat64(c.GetSpacingEW()),
		SpacingNS:         PtrFloat64(c.GetSpacingNS()),
		VEW:               PtrFloat64(c.GetVEW()),
		VNS:               PtrFloat64(c.GetVNS()),
		VJitter:           PtrFloat64(c.GetVJitter()),
		Seed:              PtrInt64(c.GetSeed()),
	}
}

// SignalConfig builds the signal timing plan.
func (c *SimConfig) SignalConfig() traffic.SignalConfig {
	return traffic.SignalConfig{
		MinGreen: c.GetMinGreen(),
		MaxGreen: c.GetMaxGreen(),
		Yellow:   c.GetYellow(),
		AllRed:   c.GetAllRed(),
		Policy:   c.GetPolicy(),
	}
}

// Road builds the intersection geometry.
func (c *SimConfig) Road() traffic.Road {
	return traffic.Road{
		ExitDistance:      c.GetExitDistance(),
		ConflictHalfWidth: c.GetConflictHalfWidth(),
	}
}

// EngineConfig builds the simulation configuration.
func (c *SimConfig) EngineConfig() engine.Config {
	return engine.Config{
		DT:     c.GetDT(),
		Signal: c.SignalConfig(),
		Road:   c.Road(),
	}
}

// ScenarioParams builds the scenario description.
func (c *SimConfig) ScenarioParams() scenario.Params {
	return scenario.Params{
		EWCount:    c.GetEWCount(),
		NSCount:    c.GetNSCount(),
		SpawnGapEW: c.GetSpawnGapEW(),
		SpawnGapNS: c.GetSpawnGapNS(),
		EWStartS:   c.GetEWStartS(),
		NSStartS:   c.GetNSStartS(),
		SpacingEW:  c.GetSpacingEW(),
		SpacingNS:  c.GetSpacingNS(),
		VEW:        c.GetVEW(),
		VNS:        c.GetVNS(),
		VJitter:    c.GetVJitter(),
		Seed:       c.GetSeed(),
	}
}

func float64Or(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// GetDuration returns the run length in seconds or the default.
func (c *SimConfig) GetDuration() float64 { return float64Or(c.Duration, DefaultDuration) }

// GetDT returns the timestep or the default.
func (c *SimConfig) GetDT() float64 { return float64Or(c.DT, engine.DefaultDT) }

// GetMinGreen returns the min_green value or the default.
func (c *SimConfig) GetMinGreen() float64 {
	return float64Or(c.MinGreen, traffic.DefaultSignalConfig().MinGreen)
}

// GetMaxGreen returns the max_green value or the default.
func (c *SimConfig) GetMaxGreen() float64 {
	return float64Or(c.MaxGreen, traffic.DefaultSignalConfig().MaxGreen)
}

// GetYellow returns the yellow value or the default.
func (c *SimConfig) GetYellow() float64 {
	return float64Or(c.Yellow, traffic.DefaultSignalConfig().Yellow)
}

// GetAllRed returns the all_red value or the default.
func (c *SimConfig) GetAllRed() float64 {
	return float64Or(c.AllRed, traffic.DefaultSignalConfig().AllRed)
}

// GetPolicy returns the signal policy or the default.
func (c *SimConfig) GetPolicy() string {
	if c.Policy == nil || *c.Policy == "" {
		return traffic.PolicyAdaptive
	}
	return *c.Policy
}

// GetExitDistance returns the exit_distance value or the default.
func (c *SimConfig) GetExitDistance() float64 {
	return float64Or(c.ExitDistance, traffic.DefaultExitDistance)
}

// GetConflictHalfWidth returns the conflict_half_width value or the default.
func (c *SimConfig) GetConflictHalfWidth() float64 {
	return float64Or(c.ConflictHalfWidth, traffic.DefaultConflictHalfWidth)
}

func (c *SimConfig) GetEWCount() int { return intOr(c.EWCount, scenario.DefaultParams().EWCount) }
func (c *SimConfig) GetNSCount() int { return intOr(c.NSCount, scenario.DefaultParams().NSCount) }

func (c *SimConfig) GetSpawnGapEW() float64 {
	return float64Or(c.SpawnGapEW, scenario.DefaultParams().SpawnGapEW)
}

func (c *SimConfig) GetSpawnGapNS() float64 {
	return float64Or(c.SpawnGapNS, scenario.DefaultParams().SpawnGapNS)
}

func (c *SimConfig) GetEWStartS() float64 {
	return float64Or(c.EWStartS, scenario.DefaultParams().EWStartS)
}

func (c *SimConfig) GetNSStartS() float64 {
	return float64Or(c.NSStartS, scenario.DefaultParams().NSStartS)
}

func (c *SimConfig) GetSpacingEW() float64 {
	return float64Or(c.SpacingEW, scenario.DefaultParams().SpacingEW)
}

func (c *SimConfig) GetSpacingNS() float64 {
	return float64Or(c.SpacingNS, scenario.DefaultParams().SpacingNS)
}

func (c *SimConfig) GetVEW() float64     { return float64Or(c.VEW, scenario.DefaultParams().VEW) }
func (c *SimConfig) GetVNS() float64     { return float64Or(c.VNS, scenario.DefaultParams().VNS) }
func (c *SimConfig) GetVJitter() float64 { return float64Or(c.VJitter, scenario.DefaultParams().VJitter) }

// GetSeed returns the scenario seed or the default.
func (c *SimConfig) GetSeed() int64 {
	if c.Seed == nil {
		return scenario.DefaultParams().Seed
	}
	return *c.Seed
}
