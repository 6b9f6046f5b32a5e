package traffic

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDT = 0.1

func newTestSignal(t *testing.T, cfg SignalConfig) *Signal {
	t.Helper()
	s, err := NewSignal(cfg)
	require.NoError(t, err)
	return s
}

// demand builds an Approaching map with one vehicle per given distance.
func demand(ew, ns []float64) Approaching {
	a := Approaching{LaneEW: nil, LaneNS: nil}
	id := 1
	for _, d := range ew {
		a[LaneEW] = append(a[LaneEW], NewVehicle(id, LaneEW, 1, -d, 10))
		id++
	}
	for _, d := range ns {
		a[LaneNS] = append(a[LaneNS], NewVehicle(id, LaneNS, 1, -d, 10))
		id++
	}
	return a
}

// runUntilChange updates s until its state changes and returns the time
// spent in the previous state.
func runUntilChange(t *testing.T, s *Signal, a Approaching, limit float64) float64 {
	t.Helper()
	start := s.State()
	for elapsed := 0.0; elapsed < limit; elapsed += testDT {
		before := s.TimeInState()
		s.Update(testDT, a)
		if s.State() != start {
			return before + testDT
		}
	}
	t.Fatalf("signal stayed in %s for %v s", start, limit)
	return 0
}

func TestNewSignalInitialState(t *testing.T) {
	s := newTestSignal(t, DefaultSignalConfig())
	assert.Equal(t, EWGreen, s.State())
	assert.Equal(t, 0.0, s.TimeInState())
	assert.Empty(t, s.Phases())
}

func TestSignalConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SignalConfig)
		field   string
		wantErr bool
	}{
		{"defaults", func(c *SignalConfig) {}, "", false},
		{"min equals max", func(c *SignalConfig) { c.MinGreen = c.MaxGreen }, "", false},
		{"empty policy", func(c *SignalConfig) { c.Policy = "" }, "", false},
		{"fixed policy", func(c *SignalConfig) { c.Policy = PolicyFixed }, "", false},
		{"min exceeds max", func(c *SignalConfig) { c.MinGreen = 30 }, "min_green", true},
		{"zero min green", func(c *SignalConfig) { c.MinGreen = 0 }, "min_green", true},
		{"negative yellow", func(c *SignalConfig) { c.Yellow = -1 }, "yellow", true},
		{"zero all red", func(c *SignalConfig) { c.AllRed = 0 }, "all_red", true},
		{"unknown policy", func(c *SignalConfig) { c.Policy = "max-pressure" }, "policy", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSignalConfig()
			tt.mutate(&cfg)
			_, err := NewSignal(cfg)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "want *ConfigError, got %v", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestSignalQueriesExclusive(t *testing.T) {
	for state := EWGreen; state <= NSYellow; state++ {
		s := &Signal{cfg: DefaultSignalConfig(), state: state}
		for _, lane := range Lanes {
			n := 0
			for _, b := range []bool{s.IsGreenFor(lane), s.IsYellowFor(lane), s.IsRedFor(lane)} {
				if b {
					n++
				}
			}
			if n != 1 {
				t.Errorf("state %s lane %s: %d of green/yellow/red true, want exactly 1", state, lane, n)
			}
		}
	}

	allRed := &Signal{state: AllRed}
	assert.True(t, allRed.IsRedFor(LaneEW))
	assert.True(t, allRed.IsRedFor(LaneNS))
}

func TestSignalHoldsMinimumGreen(t *testing.T) {
	s := newTestSignal(t, DefaultSignalConfig())
	a := demand(nil, []float64{80})

	green := runUntilChange(t, s, a, 60)
	assert.Equal(t, EWYellow, s.State())
	assert.GreaterOrEqual(t, green, 8.0)
	assert.LessOrEqual(t, green, 8.0+testDT+1e-9)
}

func TestSignalExtendsForClosingPlatoon(t *testing.T) {
	s := newTestSignal(t, DefaultSignalConfig())
	// A served-lane vehicle inside 40 m holds green until max green even
	// with demand on the crossing lane.
	a := demand([]float64{30}, []float64{80})

	green := runUntilChange(t, s, a, 60)
	assert.Equal(t, EWYellow, s.State())
	assert.GreaterOrEqual(t, green, 25.0)
	assert.LessOrEqual(t, green, 25.0+testDT+1e-9)
}

func TestSignalHoldsGreenWithoutDemand(t *testing.T) {
	s := newTestSignal(t, DefaultSignalConfig())
	// Crossing-lane vehicle already committed (within 10 m) is not demand.
	a := demand(nil, []float64{5})
	for i := 0; i < 200; i++ {
		s.Update(testDT, a)
	}
	assert.Equal(t, EWGreen, s.State(), "green should hold below max green without demand")

	for i := 0; i < 60; i++ {
		s.Update(testDT, a)
	}
	assert.Equal(t, EWYellow, s.State(), "max green must end the phase")
}

func TestSignalFullCycle(t *testing.T) {
	cfg := DefaultSignalConfig()
	s := newTestSignal(t, cfg)
	a := demand([]float64{80}, []float64{80})

	runUntilChange(t, s, a, 60)
	require.Equal(t, EWYellow, s.State())

	yellow := runUntilChange(t, s, a, 60)
	require.Equal(t, AllRed, s.State())
	assert.InDelta(t, cfg.Yellow, yellow, testDT+1e-9)

	allRed := runUntilChange(t, s, a, 60)
	require.Equal(t, NSGreen, s.State(), "all-red after EW must serve NS")
	assert.InDelta(t, cfg.AllRed, allRed, testDT+1e-9)

	runUntilChange(t, s, a, 60)
	require.Equal(t, NSYellow, s.State())
	runUntilChange(t, s, a, 60)
	require.Equal(t, AllRed, s.State())
	runUntilChange(t, s, a, 60)
	assert.Equal(t, EWGreen, s.State(), "all-red after NS must serve EW")

	phases := s.Phases()
	want := []SignalState{EWGreen, EWYellow, AllRed, NSGreen, NSYellow, AllRed}
	require.Len(t, phases, len(want))
	for i, p := range phases {
		assert.Equal(t, want[i], p.State, "phase %d", i)
		if i > 0 {
			assert.InDelta(t, phases[i-1].Start+phases[i-1].Duration, p.Start, 1e-9)
		}
	}
}

func TestSignalAllRedWithoutHistoryServesNS(t *testing.T) {
	s := &Signal{cfg: DefaultSignalConfig(), state: AllRed}
	s.Update(1.0, demand(nil, nil))
	assert.Equal(t, NSGreen, s.State())
}

func TestSignalFixedPolicyIgnoresDemand(t *testing.T) {
	cfg := DefaultSignalConfig()
	cfg.Policy = PolicyFixed
	s := newTestSignal(t, cfg)

	green := runUntilChange(t, s, demand(nil, nil), 60)
	assert.Equal(t, EWYellow, s.State())
	assert.GreaterOrEqual(t, green, cfg.MaxGreen)
	assert.LessOrEqual(t, green, cfg.MaxGreen+testDT+1e-9)
}

func TestSignalStateJSON(t *testing.T) {
	for state := EWGreen; state <= NSYellow; state++ {
		data, err := json.Marshal(state)
		require.NoError(t, err)
		var back SignalState
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, state, back)
	}
	assert.Equal(t, "ALL_RED", AllRed.String())

	_, err := ParseSignalState("PURPLE")
	assert.Error(t, err)
}
