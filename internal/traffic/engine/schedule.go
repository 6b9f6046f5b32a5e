package engine

import (
	"sort"

	"github.com/banshee-data/v2x.sim/internal/traffic"
)

type pendingVehicle struct {
	at      float64
	vehicle *traffic.Vehicle
}

// spawnSchedule keeps pending vehicles ordered by spawn time. Vehicles
// with equal spawn times keep their scheduling order.
type spawnSchedule struct {
	items []pendingVehicle
}

func (q *spawnSchedule) insert(at float64, v *traffic.Vehicle) {
	i := sort.Search(len(q.items), func(i int) bool { return q.items[i].at > at })
	q.items = append(q.items, pendingVehicle{})
	copy(q.items[i+1:], q.items[i:])
	q.items[i] = pendingVehicle{at: at, vehicle: v}
}

// releaseDue removes and returns every vehicle with spawn time <= now.
func (q *spawnSchedule) releaseDue(now float64) []*traffic.Vehicle {
	n := 0
	for n < len(q.items) && q.items[n].at <= now {
		n++
	}
	if n == 0 {
		return nil
	}
	out := make([]*traffic.Vehicle, n)
	for i := 0; i < n; i++ {
		out[i] = q.items[i].vehicle
		q.items[i] = pendingVehicle{}
	}
	q.items = q.items[n:]
	return out
}

func (q *spawnSchedule) len() int { return len(q.items) }
