// Package scenario places the initial vehicle population of a run.
//
// The builder is the only source of randomness in a simulation: every draw
// comes from a generator seeded from Params.Seed, so a given Params always
// yields the same schedule.
package scenario

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/banshee-data/v2x.sim/internal/traffic"
)

// NSFirstSpawn is the spawn time of the first NS vehicle. EW starts at 0.
const NSFirstSpawn = 1.0 // s

// pcgStream fixes the PCG increment so Seed alone selects the sequence.
const pcgStream = 0x9e3779b97f4a7c15

// Params describes a two-approach platoon scenario. Vehicle i on an
// approach spawns at first + i*SpawnGap at StartS - i*Spacing.
type Params struct {
	EWCount    int     `json:"ew_count"`
	NSCount    int     `json:"ns_count"`
	SpawnGapEW float64 `json:"spawn_gap_ew"`
	SpawnGapNS float64 `json:"spawn_gap_ns"`
	EWStartS   float64 `json:"ew_start_s"`
	NSStartS   float64 `json:"ns_start_s"`
	SpacingEW  float64 `json:"spacing_ew"`
	SpacingNS  float64 `json:"spacing_ns"`
	VEW        float64 `json:"v_ew"`
	VNS        float64 `json:"v_ns"`
	VJitter    float64 `json:"v_jitter"`
	Seed       int64   `json:"seed"`
}

// DefaultParams returns the standard mixed-demand scenario: six vehicles
// per approach, no speed jitter.
func DefaultParams() Params {
	return Params{
		EWCount:    6,
		NSCount:    6,
		SpawnGapEW: 2.5,
		SpawnGapNS: 2.2,
		EWStartS:   -220,
		NSStartS:   -200,
		SpacingEW:  25,
		SpacingNS:  22,
		VEW:        12,
		VNS:        11,
		VJitter:    0,
		Seed:       42,
	}
}

// Validate rejects negative counts, gaps, spacings and jitter.
func (p Params) Validate() error {
	if p.EWCount < 0 {
		return &traffic.ConfigError{Field: "ew_count", Reason: fmt.Sprintf("must not be negative, got %d", p.EWCount)}
	}
	if p.NSCount < 0 {
		return &traffic.ConfigError{Field: "ns_count", Reason: fmt.Sprintf("must not be negative, got %d", p.NSCount)}
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"spawn_gap_ew", p.SpawnGapEW},
		{"spawn_gap_ns", p.SpawnGapNS},
		{"spacing_ew", p.SpacingEW},
		{"spacing_ns", p.SpacingNS},
		{"v_jitter", p.VJitter},
	} {
		if f.v < 0 || math.IsNaN(f.v) {
			return &traffic.ConfigError{Field: f.name, Reason: fmt.Sprintf("must not be negative, got %v", f.v)}
		}
	}
	return nil
}

// Total returns the number of vehicles the scenario schedules.
func (p Params) Total() int { return p.EWCount + p.NSCount }

// Spawn is one scheduled vehicle.
type Spawn struct {
	At      float64
	Vehicle *traffic.Vehicle
}

// Scheduler accepts vehicles for later release. *engine.Simulation
// satisfies it.
type Scheduler interface {
	ScheduleVehicle(at float64, v *traffic.Vehicle)
}

// Build returns the scenario's spawns, EW first, with IDs from 1. Speeds
// get a (i mod 3) m/s offset on EW and (i mod 2) on NS, plus a uniform
// jitter in [-VJitter, VJitter], clamped at zero.
func Build(p Params) ([]Spawn, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(uint64(p.Seed), pcgStream))

	spawns := make([]Spawn, 0, p.Total())
	id := 1
	for i := 0; i < p.EWCount; i++ {
		fi := float64(i)
		v := p.VEW + float64(i%3) + jitter(rng, p.VJitter)
		spawns = append(spawns, Spawn{
			At:      fi * p.SpawnGapEW,
			Vehicle: traffic.NewVehicle(id, traffic.LaneEW, 1, p.EWStartS-fi*p.SpacingEW, v),
		})
		id++
	}
	for i := 0; i < p.NSCount; i++ {
		fi := float64(i)
		v := p.VNS + float64(i%2) + jitter(rng, p.VJitter)
		spawns = append(spawns, Spawn{
			At:      NSFirstSpawn + fi*p.SpawnGapNS,
			Vehicle: traffic.NewVehicle(id, traffic.LaneNS, 1, p.NSStartS-fi*p.SpacingNS, v),
		})
		id++
	}
	return spawns, nil
}

func jitter(rng *rand.Rand, amplitude float64) float64 {
	// always draw so the sequence does not depend on the amplitude
	u := 2*rng.Float64() - 1
	return amplitude * u
}

// Populate builds the scenario and schedules every vehicle on s. It
// returns the number of vehicles scheduled.
func Populate(s Scheduler, p Params) (int, error) {
	spawns, err := Build(p)
	if err != nil {
		return 0, err
	}
	for _, sp := range spawns {
		s.ScheduleVehicle(sp.At, sp.Vehicle)
	}
	return len(spawns), nil
}
