package traffic

import (
	"encoding/json"
	"fmt"
)

// SignalState is the active phase of the intersection controller.
type SignalState int

const (
	EWGreen SignalState = iota
	EWYellow
	AllRed
	NSGreen
	NSYellow
)

var signalStateNames = [...]string{
	EWGreen:  "EW_GREEN",
	EWYellow: "EW_YELLOW",
	AllRed:   "ALL_RED",
	NSGreen:  "NS_GREEN",
	NSYellow: "NS_YELLOW",
}

func (s SignalState) String() string {
	if s < 0 || int(s) >= len(signalStateNames) {
		return fmt.Sprintf("SignalState(%d)", int(s))
	}
	return signalStateNames[s]
}

// ParseSignalState is the inverse of String.
func ParseSignalState(name string) (SignalState, error) {
	for i, n := range signalStateNames {
		if n == name {
			return SignalState(i), nil
		}
	}
	return 0, fmt.Errorf("unknown signal state %q", name)
}

func (s SignalState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *SignalState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseSignalState(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// greenFor returns the green state serving lane.
func greenFor(lane Lane) SignalState {
	if lane == LaneNS {
		return NSGreen
	}
	return EWGreen
}

// yellowFor returns the yellow state ending lane's service.
func yellowFor(lane Lane) SignalState {
	if lane == LaneNS {
		return NSYellow
	}
	return EWYellow
}

// Signal control policies.
const (
	// PolicyAdaptive holds green for a closing platoon and releases it as
	// soon as the crossing approach has demand.
	PolicyAdaptive = "adaptive"
	// PolicyFixed is the pretimed baseline: every green lasts MaxGreen.
	PolicyFixed = "fixed"
)

// Demand thresholds used by the adaptive policy.
const (
	// ExtensionDistance is how close a served-lane vehicle must be to the
	// stop line to extend the green.
	ExtensionDistance = 40.0 // m
	// QueueDistance separates queued demand on the crossing lane from
	// vehicles already committed to the stop line.
	QueueDistance = 10.0 // m
)

// SignalConfig holds the phase timings of the controller. All durations
// are in seconds.
type SignalConfig struct {
	MinGreen float64 `json:"min_green"`
	MaxGreen float64 `json:"max_green"`
	Yellow   float64 `json:"yellow"`
	AllRed   float64 `json:"all_red"`
	Policy   string  `json:"policy,omitempty"`
}

// DefaultSignalConfig returns the standard adaptive timing plan.
func DefaultSignalConfig() SignalConfig {
	return SignalConfig{
		MinGreen: 8.0,
		MaxGreen: 25.0,
		Yellow:   3.0,
		AllRed:   1.0,
		Policy:   PolicyAdaptive,
	}
}

// Validate checks every duration is positive, MinGreen <= MaxGreen and the
// policy is known. An empty policy means adaptive.
func (c SignalConfig) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"min_green", c.MinGreen},
		{"max_green", c.MaxGreen},
		{"yellow", c.Yellow},
		{"all_red", c.AllRed},
	} {
		if err := positive(f.name, f.v); err != nil {
			return err
		}
	}
	if c.MinGreen > c.MaxGreen {
		return &ConfigError{
			Field:  "min_green",
			Reason: fmt.Sprintf("(%v) must not exceed max_green (%v)", c.MinGreen, c.MaxGreen),
		}
	}
	switch c.Policy {
	case "", PolicyAdaptive, PolicyFixed:
	default:
		return &ConfigError{Field: "policy", Reason: fmt.Sprintf("unknown value %q", c.Policy)}
	}
	return nil
}

// Phase is one completed signal interval.
type Phase struct {
	State    SignalState `json:"state"`
	Start    float64     `json:"start"`
	Duration float64     `json:"duration"`
}

// Signal is the intersection's finite-state controller. It starts in
// EWGreen and cycles indefinitely; it mutates only itself.
type Signal struct {
	cfg SignalConfig

	state    SignalState
	tInState float64
	clock    float64

	// lastServed is the lane whose green most recently ended. It decides
	// which approach is served after the all-red clearance.
	lastServed    Lane
	hasLastServed bool

	phases []Phase
}

// NewSignal validates cfg and returns a controller in EWGreen.
func NewSignal(cfg SignalConfig) (*Signal, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyAdaptive
	}
	return &Signal{cfg: cfg, state: EWGreen}, nil
}

// Config returns the timing plan.
func (s *Signal) Config() SignalConfig { return s.cfg }

// State returns the active phase.
func (s *Signal) State() SignalState { return s.state }

// TimeInState returns the time elapsed in the active phase.
func (s *Signal) TimeInState() float64 { return s.tInState }

// Phases returns the completed phases in order.
func (s *Signal) Phases() []Phase {
	out := make([]Phase, len(s.phases))
	copy(out, s.phases)
	return out
}

// IsGreenFor reports whether lane has right-of-way.
func (s *Signal) IsGreenFor(lane Lane) bool {
	return s.state == greenFor(lane)
}

// IsYellowFor reports whether lane's green is ending.
func (s *Signal) IsYellowFor(lane Lane) bool {
	return s.state == yellowFor(lane)
}

// IsRedFor reports whether lane must stop. AllRed is red for both lanes.
func (s *Signal) IsRedFor(lane Lane) bool {
	return !s.IsGreenFor(lane) && !s.IsYellowFor(lane)
}

// servedLane returns the lane served by a green or yellow state.
func servedLane(state SignalState) (Lane, bool) {
	switch state {
	case EWGreen, EWYellow:
		return LaneEW, true
	case NSGreen, NSYellow:
		return LaneNS, true
	}
	return 0, false
}

func (s *Signal) transition(next SignalState) {
	s.phases = append(s.phases, Phase{
		State:    s.state,
		Start:    s.clock - s.tInState,
		Duration: s.tInState,
	})
	if lane, ok := servedLane(s.state); ok && next == yellowFor(lane) {
		s.lastServed = lane
		s.hasLastServed = true
	}
	s.state = next
	s.tInState = 0
}

// Update advances the controller by dt using the per-lane approaching
// lists computed from pre-integration positions.
func (s *Signal) Update(dt float64, approaching Approaching) {
	s.tInState += dt
	s.clock += dt

	switch s.state {
	case EWGreen, NSGreen:
		lane, _ := servedLane(s.state)
		if s.greenShouldEnd(lane, approaching) {
			s.transition(yellowFor(lane))
		}
	case EWYellow, NSYellow:
		if s.tInState >= s.cfg.Yellow {
			s.transition(AllRed)
		}
	case AllRed:
		if s.tInState >= s.cfg.AllRed {
			last := LaneEW
			if s.hasLastServed {
				last = s.lastServed
			}
			s.transition(greenFor(last.Other()))
		}
	}
}

// greenShouldEnd applies the green-phase rules for the configured policy.
func (s *Signal) greenShouldEnd(lane Lane, approaching Approaching) bool {
	if s.cfg.Policy == PolicyFixed {
		return s.tInState >= s.cfg.MaxGreen
	}
	if s.tInState < s.cfg.MinGreen {
		return false
	}
	if s.tInState < s.cfg.MaxGreen && anyWithin(approaching[lane], ExtensionDistance) {
		return false
	}
	return anyBeyond(approaching[lane.Other()], QueueDistance) || s.tInState >= s.cfg.MaxGreen
}

func anyWithin(vehicles []*Vehicle, d float64) bool {
	for _, v := range vehicles {
		if v.DistanceToStopLine() < d {
			return true
		}
	}
	return false
}

func anyBeyond(vehicles []*Vehicle, d float64) bool {
	for _, v := range vehicles {
		if v.DistanceToStopLine() > d {
			return true
		}
	}
	return false
}
