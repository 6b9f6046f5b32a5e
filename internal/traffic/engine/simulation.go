package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/banshee-data/v2x.sim/internal/traffic"
	"github.com/banshee-data/v2x.sim/internal/traffic/control"
)

const (
	// ApproachRadius is the demand sensing radius around the stop line.
	ApproachRadius = 120.0 // m
	// NearMissWindow is the arrival-time difference below which two
	// vehicles in the conflict zone count as a near-miss.
	NearMissWindow = 1.0 // s
	// CollisionMargin is added to the half lengths of a leader-follower
	// pair before their centre gap counts as a collision.
	CollisionMargin = 0.5 // m

	// DefaultDT is the default timestep.
	DefaultDT = 0.1 // s

	// stepEpsilon absorbs float error when converting a duration to ticks.
	stepEpsilon = 1e-9
)

// SignalController is the signal surface the engine drives. *traffic.Signal
// is the production implementation.
type SignalController interface {
	control.SignalView
	IsGreenFor(lane traffic.Lane) bool
	State() traffic.SignalState
	TimeInState() float64
	Update(dt float64, approaching traffic.Approaching)
}

// Config is the construction-time configuration of a Simulation.
type Config struct {
	DT     float64              `json:"dt"`
	Signal traffic.SignalConfig `json:"signal"`
	Road   traffic.Road         `json:"road"`
}

// DefaultConfig returns dt = 0.1 s with the default signal and road.
func DefaultConfig() Config {
	return Config{
		DT:     DefaultDT,
		Signal: traffic.DefaultSignalConfig(),
		Road:   traffic.DefaultRoad(),
	}
}

// Option customises a Simulation at construction.
type Option func(*Simulation)

// WithSignalController replaces the signal built from Config.Signal.
func WithSignalController(c SignalController) Option {
	return func(s *Simulation) { s.signal = c }
}

// WithLogger reports signal phase changes through logf.
func WithLogger(logf func(format string, v ...interface{})) Option {
	return func(s *Simulation) { s.logf = logf }
}

// Simulation is the orchestrator. It is the only mutator of the vehicle
// population and of Metrics, and is not safe for concurrent use.
type Simulation struct {
	cfg    Config
	road   traffic.Road
	signal SignalController
	logf   func(format string, v ...interface{})

	t        float64
	tick     int
	vehicles []*traffic.Vehicle
	pending  spawnSchedule
	spawned  int
	metrics  Metrics

	// scratch buffers reused across ticks
	accels []float64
	exited []bool
}

// New validates cfg and returns a simulation at t = 0 with an empty
// population.
func New(cfg Config, opts ...Option) (*Simulation, error) {
	if !(cfg.DT > 0) {
		return nil, &traffic.ConfigError{Field: "dt", Reason: fmt.Sprintf("must be positive, got %v", cfg.DT)}
	}
	if err := cfg.Road.Validate(); err != nil {
		return nil, err
	}
	s := &Simulation{cfg: cfg, road: cfg.Road}
	for _, opt := range opts {
		opt(s)
	}
	if s.signal == nil {
		sig, err := traffic.NewSignal(cfg.Signal)
		if err != nil {
			return nil, err
		}
		s.signal = sig
	}
	return s, nil
}

// T returns the current simulated time.
func (s *Simulation) T() float64 { return s.t }

// DT returns the fixed timestep.
func (s *Simulation) DT() float64 { return s.cfg.DT }

// Tick returns the number of completed steps.
func (s *Simulation) Tick() int { return s.tick }

// Config returns the construction configuration.
func (s *Simulation) Config() Config { return s.cfg }

// Road returns the road geometry.
func (s *Simulation) Road() traffic.Road { return s.road }

// Signal returns the signal controller.
func (s *Simulation) Signal() SignalController { return s.signal }

// Metrics returns a copy of the accumulated metrics.
func (s *Simulation) Metrics() Metrics { return s.metrics }

// Vehicles returns the active population in spawn order. The slice is a
// copy; the vehicles are shared and must be treated as read-only.
func (s *Simulation) Vehicles() []*traffic.Vehicle {
	out := make([]*traffic.Vehicle, len(s.vehicles))
	copy(out, s.vehicles)
	return out
}

// Counts returns the current population split.
func (s *Simulation) Counts() Counts {
	return Counts{
		Scheduled: s.spawned + s.pending.len(),
		Spawned:   s.spawned,
		Active:    len(s.vehicles),
		Exited:    s.metrics.TotalVehiclesExited,
		Pending:   s.pending.len(),
	}
}

// ScheduleVehicle queues v to enter the active population once simulated
// time reaches spawnTime. It may be called before or during a run.
func (s *Simulation) ScheduleVehicle(spawnTime float64, v *traffic.Vehicle) {
	s.pending.insert(spawnTime, v)
}

// Step advances the simulation by one timestep.
func (s *Simulation) Step() {
	dt := s.cfg.DT

	// 1. spawn
	s.vehicles = append(s.vehicles, s.pending.releaseDue(s.t)...)
	s.spawned = s.metrics.TotalVehiclesExited + len(s.vehicles)

	// 2-3. demand sensing and signal update on pre-integration positions
	approaching := s.road.ApproachingByLane(s.vehicles, ApproachRadius)
	prev := s.signal.State()
	s.signal.Update(dt, approaching)
	if st := s.signal.State(); st != prev && s.logf != nil {
		s.logf("t=%.2f signal %s -> %s (EW=%d NS=%d approaching)",
			s.t, prev, st, approaching.Count(traffic.LaneEW), approaching.Count(traffic.LaneNS))
	}

	// 4. control: every decision reads the same pre-integration state
	s.computeControls()

	// 5. integrate and accumulate delay
	for _, v := range s.vehicles {
		v.Integrate(dt)
		s.metrics.TotalDelay += math.Max(0, v.VDes-v.V) * dt
	}

	// 6. near-misses in the conflict zone
	s.countNearMisses()

	// 7. exits
	s.removeExited()

	// 8. rear-end collisions among survivors
	s.countCollisions()

	// 9. time
	s.tick++
	s.t = float64(s.tick) * dt
}

func (s *Simulation) computeControls() {
	n := len(s.vehicles)
	if cap(s.accels) < n {
		s.accels = make([]float64, n)
	}
	accels := s.accels[:n]
	for i, v := range s.vehicles {
		lead := s.road.LeadVehicle(s.vehicles, v)
		accels[i] = commandAccel(v, s.signal, s.road, lead)
	}
	for i, v := range s.vehicles {
		v.ApplyControl(accels[i])
	}
}

// commandAccel sums the cruise, signal and car-following laws. While the
// signal law is braking the cruise term is capped at zero, so a vehicle
// planning a stop is never pushed through the stop line.
func commandAccel(v *traffic.Vehicle, sig SignalController, road traffic.Road, lead *traffic.Vehicle) float64 {
	cruise := v.SpeedControl()
	signal := control.SignalAccel(v, sig, road)
	if signal < 0 {
		cruise = math.Min(cruise, 0)
	}
	return cruise + signal + control.RearEndAccel(v, lead)
}

// countNearMisses counts at most one near-miss per in-zone vehicle per
// tick: the first other in-zone vehicle whose arrival time is within the
// window. Zones with three or more occupants are therefore undercounted.
func (s *Simulation) countNearMisses() {
	var zone []*traffic.Vehicle
	for _, v := range s.vehicles {
		if s.road.InConflictZone(v) {
			zone = append(zone, v)
		}
	}
	for _, v := range zone {
		tv := v.TimeToConflict()
		for _, u := range zone {
			if u == v {
				continue
			}
			// Inf - Inf is NaN and never compares below the window.
			if math.Abs(tv-u.TimeToConflict()) < NearMissWindow {
				s.metrics.NearMisses++
				break
			}
		}
	}
}

// removeExited marks exits in one pass and compacts in a second so no
// vehicle is skipped.
func (s *Simulation) removeExited() {
	n := len(s.vehicles)
	if cap(s.exited) < n {
		s.exited = make([]bool, n)
	}
	marks := s.exited[:n]
	found := false
	for i, v := range s.vehicles {
		marks[i] = s.road.Exited(v)
		found = found || marks[i]
	}
	if !found {
		return
	}
	kept := s.vehicles[:0]
	for i, v := range s.vehicles {
		if marks[i] {
			s.metrics.TotalVehiclesExited++
			continue
		}
		kept = append(kept, v)
	}
	for i := len(kept); i < n; i++ {
		s.vehicles[i] = nil
	}
	s.vehicles = kept
}

func (s *Simulation) countCollisions() {
	for _, v := range s.vehicles {
		lead := s.road.LeadVehicle(s.vehicles, v)
		if lead == nil {
			continue
		}
		centreGap := float64(v.Direction) * (lead.S - v.S)
		if centreGap < 0.5*(v.Length+lead.Length)+CollisionMargin {
			s.metrics.Collisions++
		}
	}
}

// Steps returns the number of ticks Run executes for duration.
func (s *Simulation) Steps(duration float64) int {
	if !(duration > 0) {
		return 0
	}
	return int(math.Floor(duration/s.cfg.DT + stepEpsilon))
}

// Run executes floor(duration/dt) ticks and returns the final metrics.
func (s *Simulation) Run(duration float64) Metrics {
	m, _ := s.RunContext(context.Background(), duration, nil)
	return m
}

// RunContext is Run with a cancellation check between ticks. observe, if
// non-nil, receives a snapshot after every tick. On cancellation the
// metrics so far are returned with ctx.Err().
func (s *Simulation) RunContext(ctx context.Context, duration float64, observe func(Snapshot)) (Metrics, error) {
	steps := s.Steps(duration)
	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return s.metrics, err
		}
		s.Step()
		if observe != nil {
			observe(s.Snapshot())
		}
	}
	return s.metrics, nil
}
