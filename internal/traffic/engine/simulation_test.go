package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/v2x.sim/internal/traffic"
)

func newTestSim(t *testing.T, cfg Config, opts ...Option) *Simulation {
	t.Helper()
	sim, err := New(cfg, opts...)
	require.NoError(t, err)
	return sim
}

// scheduleDefaultScenario places the standard mixed-demand population:
// six EW vehicles every 2.5 s and six NS vehicles every 2.2 s from t = 1.
func scheduleDefaultScenario(sim *Simulation) int {
	id := 1
	for i := 0; i < 6; i++ {
		v := traffic.NewVehicle(id, traffic.LaneEW, 1, -220-25*float64(i), 12+float64(i%3))
		sim.ScheduleVehicle(2.5*float64(i), v)
		id++
	}
	for i := 0; i < 6; i++ {
		v := traffic.NewVehicle(id, traffic.LaneNS, 1, -200-22*float64(i), 11+float64(i%2))
		sim.ScheduleVehicle(1+2.2*float64(i), v)
		id++
	}
	return id - 1
}

// alwaysRed holds both approaches at red forever.
type alwaysRed struct{}

func (alwaysRed) IsGreenFor(traffic.Lane) bool { return false }
func (alwaysRed) IsYellowFor(traffic.Lane) bool { return false }
func (alwaysRed) IsRedFor(traffic.Lane) bool { return true }
func (alwaysRed) State() traffic.SignalState { return traffic.AllRed }
func (alwaysRed) TimeInState() float64 { return 0 }
func (alwaysRed) Update(dt float64, _ traffic.Approaching) {}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero dt", func(c *Config) { c.DT = 0 }, "dt"},
		{"negative dt", func(c *Config) { c.DT = -0.1 }, "dt"},
		{"NaN dt", func(c *Config) { c.DT = math.NaN() }, "dt"},
		{"min green above max", func(c *Config) { c.Signal.MinGreen = 40 }, "min_green"},
		{"zero yellow", func(c *Config) { c.Signal.Yellow = 0 }, "yellow"},
		{"zero exit distance", func(c *Config) { c.Road.ExitDistance = 0 }, "exit_distance"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			sim, err := New(cfg)
			require.Error(t, err)
			assert.Nil(t, sim)

			var cfgErr *traffic.ConfigError
			require.True(t, errors.As(err, &cfgErr), "want *traffic.ConfigError, got %T", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestNewInitialState(t *testing.T) {
	sim := newTestSim(t, DefaultConfig())
	assert.Equal(t, 0.0, sim.T())
	assert.Equal(t, 0, sim.Tick())
	assert.Equal(t, traffic.EWGreen, sim.Signal().State())
	assert.Equal(t, Metrics{}, sim.Metrics())
	assert.Empty(t, sim.Vehicles())
}

func TestSteps(t *testing.T) {
	sim := newTestSim(t, Config{DT: 0.05, Signal: traffic.DefaultSignalConfig(), Road: traffic.DefaultRoad()})
	assert.Equal(t, 400, sim.Steps(20))
	assert.Equal(t, 0, sim.Steps(0))
	assert.Equal(t, 0, sim.Steps(-5))
	assert.Equal(t, 0, sim.Steps(0.04))

	tenth := newTestSim(t, DefaultConfig())
	assert.Equal(t, 3, tenth.Steps(0.3), "0.3/0.1 must not truncate to 2")
	assert.Equal(t, 600, tenth.Steps(60))

	tenth.Run(0.3)
	assert.Equal(t, 3, tenth.Tick())
	assert.InDelta(t, 0.3, tenth.T(), 1e-12)
}

func TestScheduleReleasesInTimeOrder(t *testing.T) {
	sim := newTestSim(t, DefaultConfig())
	sim.ScheduleVehicle(0.5, traffic.NewVehicle(3, traffic.LaneEW, 1, -100, 0))
	sim.ScheduleVehicle(0, traffic.NewVehicle(1, traffic.LaneEW, 1, -150, 0))
	sim.ScheduleVehicle(0.5, traffic.NewVehicle(4, traffic.LaneNS, 1, -100, 0))
	sim.ScheduleVehicle(0.2, traffic.NewVehicle(2, traffic.LaneNS, 1, -150, 0))

	var seen [][]int
	for i := 0; i < 7; i++ {
		sim.Step()
		var ids []int
		for _, v := range sim.Vehicles() {
			ids = append(ids, v.ID)
		}
		seen = append(seen, ids)
	}

	want := [][]int{
		{1},          // t=0.0
		{1},          // t=0.1
		{1, 2},       // t=0.2
		{1, 2},       // t=0.3
		{1, 2},       // t=0.4
		{1, 2, 3, 4}, // t=0.5, equal spawn times keep scheduling order
		{1, 2, 3, 4},
	}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("active population mismatch (-want +got):\n%s", diff)
	}
}

func TestScheduleDuringRun(t *testing.T) {
	sim := newTestSim(t, DefaultConfig())
	sim.Run(1)
	sim.ScheduleVehicle(0, traffic.NewVehicle(1, traffic.LaneEW, 1, -100, 10))
	assert.Equal(t, 1, sim.Counts().Pending)

	sim.Step()
	c := sim.Counts()
	assert.Equal(t, 0, c.Pending)
	assert.Equal(t, 1, c.Active)
}

// Scenario A: a faster follower closes on a slower leader.
func TestFollowerAvoidsLead(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DT = 0.05
	sim := newTestSim(t, cfg)

	lead := traffic.NewVehicle(1, traffic.LaneEW, 1, -80, 10)
	follower := traffic.NewVehicle(2, traffic.LaneEW, 1, -110, 15)
	sim.ScheduleVehicle(0, lead)
	sim.ScheduleVehicle(0, follower)

	gap := func() float64 {
		return float64(follower.Direction)*(lead.S-follower.S) - 0.5*(lead.Length+follower.Length)
	}
	minGap := math.Inf(1)
	for i := 0; i < sim.Steps(20); i++ {
		minGap = math.Min(minGap, gap())
		sim.Step()
	}
	minGap = math.Min(minGap, gap())

	assert.Greater(t, minGap, 1.5, "minimum following gap")
	assert.Equal(t, 0, sim.Metrics().Collisions)
}

// Scenario B: demand only on NS must win the right-of-way.
func TestSignalSwitchesToDemand(t *testing.T) {
	sim := newTestSim(t, DefaultConfig())
	for i := 0; i < 6; i++ {
		v := traffic.NewVehicle(100+i, traffic.LaneNS, 1, -100-12*float64(i), 8)
		sim.ScheduleVehicle(0, v)
	}

	require.Equal(t, traffic.EWGreen, sim.Signal().State())
	sawNSGreen := false
	for i := 0; i < sim.Steps(20); i++ {
		sim.Step()
		if sim.Signal().State() == traffic.NSGreen {
			sawNSGreen = true
			break
		}
	}
	assert.True(t, sawNSGreen, "signal did not switch to NS green under demand")
	// min green + yellow + all-red is the earliest possible switch.
	assert.GreaterOrEqual(t, sim.T(), 12.0-1e-9)
}

// Scenario C: a persistent red stops an approaching vehicle before s = 0.
func TestVehicleStopsAtPersistentRed(t *testing.T) {
	for _, v0 := range []float64{14, 20} {
		t.Run(fmt.Sprintf("v0=%v", v0), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Road.ExitDistance = 500
			sim := newTestSim(t, cfg, WithSignalController(alwaysRed{}))

			v := traffic.NewVehicle(1, traffic.LaneEW, 1, -300, v0)
			sim.ScheduleVehicle(0, v)

			maxS := v.S
			for i := 0; i < sim.Steps(120); i++ {
				sim.Step()
				maxS = math.Max(maxS, v.S)
			}
			assert.Less(t, maxS, 0.0, "vehicle crossed the stop line")
			assert.Less(t, v.V, 0.01, "vehicle should be at rest")
			assert.Greater(t, v.S, -1.0, "vehicle should stop at the line, not short of it")
			assert.Equal(t, 1, sim.Counts().Active)
		})
	}
}

func TestRunInvariants(t *testing.T) {
	sim := newTestSim(t, DefaultConfig())
	total := scheduleDefaultScenario(sim)

	var prev Metrics
	ctx := context.Background()
	_, err := sim.RunContext(ctx, 120, func(snap Snapshot) {
		for _, v := range sim.Vehicles() {
			if v.V < 0 {
				t.Fatalf("t=%.2f vehicle %d: negative speed %v", snap.T, v.ID, v.V)
			}
			if v.A < -v.DMax || v.A > v.AMax {
				t.Fatalf("t=%.2f vehicle %d: accel %v outside [%v, %v]", snap.T, v.ID, v.A, -v.DMax, v.AMax)
			}
		}

		m := snap.Metrics
		if m.Collisions < prev.Collisions || m.NearMisses < prev.NearMisses ||
			m.TotalVehiclesExited < prev.TotalVehiclesExited || m.TotalDelay < prev.TotalDelay {
			t.Fatalf("t=%.2f metrics decreased: %+v -> %+v", snap.T, prev, m)
		}
		prev = m

		c := snap.Counts
		if c.Spawned != c.Active+c.Exited {
			t.Fatalf("t=%.2f spawned %d != active %d + exited %d", snap.T, c.Spawned, c.Active, c.Exited)
		}
		if c.Spawned+c.Pending != total || c.Scheduled != total {
			t.Fatalf("t=%.2f population not conserved: %+v (scheduled %d)", snap.T, c, total)
		}
	})
	require.NoError(t, err)

	m := sim.Metrics()
	assert.Equal(t, total, m.TotalVehiclesExited, "every vehicle should leave within 120 s")
	assert.Equal(t, 0, m.Collisions)
	assert.Greater(t, m.TotalDelay, 0.0)
}

func TestSignalPhaseDurations(t *testing.T) {
	sim := newTestSim(t, DefaultConfig())
	scheduleDefaultScenario(sim)
	sim.Run(120)

	sig, ok := sim.Signal().(*traffic.Signal)
	require.True(t, ok)
	cfg := sig.Config()
	phases := sig.Phases()
	require.NotEmpty(t, phases)

	const tol = DefaultDT + 1e-9
	for i, p := range phases {
		switch p.State {
		case traffic.EWGreen, traffic.NSGreen:
			assert.GreaterOrEqual(t, p.Duration, cfg.MinGreen-1e-9, "phase %d %s", i, p.State)
			assert.LessOrEqual(t, p.Duration, cfg.MaxGreen+tol, "phase %d %s", i, p.State)
		case traffic.EWYellow, traffic.NSYellow:
			assert.InDelta(t, cfg.Yellow, p.Duration, tol, "phase %d %s", i, p.State)
		case traffic.AllRed:
			assert.InDelta(t, cfg.AllRed, p.Duration, tol, "phase %d %s", i, p.State)
			require.Greater(t, i, 0)
			if i+1 < len(phases) {
				before, after := phases[i-1].State, phases[i+1].State
				if before == traffic.EWYellow {
					assert.Equal(t, traffic.NSGreen, after)
				} else {
					assert.Equal(t, traffic.EWGreen, after)
				}
			}
		}
	}
}

func TestDeterminism(t *testing.T) {
	run := func() (Metrics, []traffic.Phase, []Snapshot) {
		sim := newTestSim(t, DefaultConfig())
		scheduleDefaultScenario(sim)
		var snaps []Snapshot
		m, err := sim.RunContext(context.Background(), 90, func(s Snapshot) { snaps = append(snaps, s) })
		require.NoError(t, err)
		return m, sim.Signal().(*traffic.Signal).Phases(), snaps
	}

	m1, p1, s1 := run()
	m2, p2, s2 := run()
	assert.Equal(t, m1, m2)
	if diff := cmp.Diff(p1, p2); diff != "" {
		t.Errorf("phase history differs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(s1, s2); diff != "" {
		t.Errorf("snapshots differ (-first +second):\n%s", diff)
	}
}

func TestExitRemovalDoesNotSkip(t *testing.T) {
	sim := newTestSim(t, DefaultConfig())
	// Three adjacent vehicles already past the exit on the first tick,
	// followed by one that stays.
	sim.ScheduleVehicle(0, traffic.NewVehicle(1, traffic.LaneEW, 1, 251, 10))
	sim.ScheduleVehicle(0, traffic.NewVehicle(2, traffic.LaneEW, 1, 260, 10))
	sim.ScheduleVehicle(0, traffic.NewVehicle(3, traffic.LaneNS, 1, 300, 10))
	sim.ScheduleVehicle(0, traffic.NewVehicle(4, traffic.LaneNS, 1, -50, 10))

	sim.Step()

	assert.Equal(t, 3, sim.Metrics().TotalVehiclesExited)
	vs := sim.Vehicles()
	require.Len(t, vs, 1)
	assert.Equal(t, 4, vs[0].ID)
	assert.Equal(t, Counts{Scheduled: 4, Spawned: 4, Active: 1, Exited: 3}, sim.Counts())
}

func TestExitedVehicleDoesNotCollide(t *testing.T) {
	sim := newTestSim(t, DefaultConfig())
	// The leader leaves this tick; the follower would otherwise be inside
	// the collision margin.
	sim.ScheduleVehicle(0, traffic.NewVehicle(1, traffic.LaneEW, 1, 250.5, 14))
	sim.ScheduleVehicle(0, traffic.NewVehicle(2, traffic.LaneEW, 1, 247, 14))

	sim.Step()
	assert.Equal(t, 1, sim.Metrics().TotalVehiclesExited)
	assert.Equal(t, 0, sim.Metrics().Collisions)
}

func TestCollisionCounted(t *testing.T) {
	sim := newTestSim(t, DefaultConfig())
	sim.ScheduleVehicle(0, traffic.NewVehicle(1, traffic.LaneEW, 1, -98, 0))
	sim.ScheduleVehicle(0, traffic.NewVehicle(2, traffic.LaneEW, 1, -100, 0))

	sim.Step()
	assert.Equal(t, 1, sim.Metrics().Collisions, "overlapping pair counts once per tick")
	sim.Step()
	assert.Equal(t, 2, sim.Metrics().Collisions, "collisions are not terminal")
}

func TestCountNearMissesFirstMatch(t *testing.T) {
	tests := []struct {
		name     string
		vehicles []*traffic.Vehicle
		want     int
	}{
		{
			name: "crossing pair",
			vehicles: []*traffic.Vehicle{
				traffic.NewVehicle(1, traffic.LaneEW, 1, -3, 10),
				traffic.NewVehicle(2, traffic.LaneNS, 1, -4, 10),
			},
			want: 2,
		},
		{
			name: "three way conflict is undercounted",
			vehicles: []*traffic.Vehicle{
				traffic.NewVehicle(1, traffic.LaneEW, 1, -3, 10),
				traffic.NewVehicle(2, traffic.LaneNS, 1, -4, 10),
				traffic.NewVehicle(3, traffic.LaneNS, -1, 5, 10),
			},
			want: 3,
		},
		{
			name: "arrivals far apart",
			vehicles: []*traffic.Vehicle{
				traffic.NewVehicle(1, traffic.LaneEW, 1, -5, 1),
				traffic.NewVehicle(2, traffic.LaneNS, 1, -5, 10),
			},
			want: 0,
		},
		{
			name: "both stationary",
			vehicles: []*traffic.Vehicle{
				traffic.NewVehicle(1, traffic.LaneEW, 1, -2, 0),
				traffic.NewVehicle(2, traffic.LaneNS, 1, -2, 0),
			},
			want: 0,
		},
		{
			name: "partner outside zone",
			vehicles: []*traffic.Vehicle{
				traffic.NewVehicle(1, traffic.LaneEW, 1, -3, 10),
				traffic.NewVehicle(2, traffic.LaneNS, 1, -7, 10),
			},
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := newTestSim(t, DefaultConfig())
			sim.vehicles = tt.vehicles
			sim.countNearMisses()
			assert.Equal(t, tt.want, sim.Metrics().NearMisses)
		})
	}
}

func TestRunContextCancelled(t *testing.T) {
	sim := newTestSim(t, DefaultConfig())
	scheduleDefaultScenario(sim)

	ctx, cancel := context.WithCancel(context.Background())
	ticks := 0
	_, err := sim.RunContext(ctx, 60, func(Snapshot) {
		ticks++
		if ticks == 10 {
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 10, sim.Tick())
}

func TestSnapshot(t *testing.T) {
	sim := newTestSim(t, DefaultConfig())
	sim.ScheduleVehicle(0, traffic.NewVehicle(1, traffic.LaneEW, 1, -50, 0))
	sim.ScheduleVehicle(0, traffic.NewVehicle(2, traffic.LaneNS, 1, -60, 0))
	sim.ScheduleVehicle(0, traffic.NewVehicle(3, traffic.LaneNS, 1, -200, 0))
	sim.ScheduleVehicle(5, traffic.NewVehicle(4, traffic.LaneNS, 1, -80, 0))

	sim.Step()
	snap := sim.Snapshot()
	assert.Equal(t, 1, snap.Tick)
	assert.InDelta(t, 0.1, snap.T, 1e-12)
	assert.Equal(t, traffic.EWGreen, snap.SignalState)
	assert.Equal(t, 1, snap.EWApproaching)
	assert.Equal(t, 1, snap.NSApproaching)
	assert.Equal(t, Counts{Scheduled: 4, Spawned: 3, Active: 3, Pending: 1}, snap.Counts)
}

func TestWithLoggerReportsTransitions(t *testing.T) {
	var lines []string
	logf := func(format string, v ...interface{}) { lines = append(lines, fmt.Sprintf(format, v...)) }

	sim := newTestSim(t, DefaultConfig(), WithLogger(logf))
	sim.ScheduleVehicle(0, traffic.NewVehicle(1, traffic.LaneNS, 1, -100, 0))
	sim.Run(13)

	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "EW_GREEN -> EW_YELLOW")
	assert.Contains(t, lines[1], "EW_YELLOW -> ALL_RED")
	assert.Contains(t, lines[2], "ALL_RED -> NS_GREEN")
}
