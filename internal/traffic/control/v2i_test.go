package control

import (
	"testing"

	"github.com/banshee-data/v2x.sim/internal/traffic"
	"github.com/stretchr/testify/assert"
)

// fixedSignal reports the same state for every lane.
type fixedSignal struct {
	red, yellow bool
}

func (f fixedSignal) IsRedFor(traffic.Lane) bool    { return f.red }
func (f fixedSignal) IsYellowFor(traffic.Lane) bool { return f.yellow }

func TestSignalAccel(t *testing.T) {
	road := traffic.DefaultRoad()
	red := fixedSignal{red: true}
	yellow := fixedSignal{yellow: true}
	green := fixedSignal{}

	tests := []struct {
		name string
		sig  SignalView
		s, v float64
		want float64
	}{
		{"red plans stop", red, -100, 10, -0.5},
		{"red at stop line brakes hard", red, 0, 10, -traffic.DefaultDMax},
		{"red stationary far away", red, -50, 0, 0},
		{"yellow far away ignored", yellow, -40, 10, 0},
		{"yellow close brakes", yellow, -25, 10, -2.0},
		{"yellow close beyond capability", yellow, -5, 14, -traffic.DefaultDMax},
		{"yellow past stop line", yellow, 2, 10, -traffic.DefaultDMax},
		{"green", green, -5, 14, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := traffic.NewVehicle(1, traffic.LaneEW, 1, tt.s, tt.v)
			got := SignalAccel(v, tt.sig, road)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.LessOrEqual(t, got, 0.0, "signal never accelerates")
		})
	}
}

func TestSignalAccelWithRealSignal(t *testing.T) {
	sig, err := traffic.NewSignal(traffic.DefaultSignalConfig())
	if err != nil {
		t.Fatal(err)
	}
	road := traffic.DefaultRoad()

	ew := traffic.NewVehicle(1, traffic.LaneEW, 1, -20, 12)
	ns := traffic.NewVehicle(2, traffic.LaneNS, 1, -20, 12)

	if got := SignalAccel(ew, sig, road); got != 0 {
		t.Errorf("EW on EW_GREEN: got %v, want 0", got)
	}
	if got := SignalAccel(ns, sig, road); got >= 0 {
		t.Errorf("NS on EW_GREEN should brake, got %v", got)
	}
}
