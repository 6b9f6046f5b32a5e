package sweep

import (
	"gonum.org/v1/gonum/stat"
)

// Weights scores a combo: lower is better. Collisions dominate, then
// near-misses; delay is a cost and throughput a reward.
type Weights struct {
	Collisions float64 `json:"collisions"`
	NearMisses float64 `json:"near_misses"`
	Delay      float64 `json:"delay"`
	Exited     float64 `json:"exited"`
}

// DefaultWeights returns the weights used when a request sets none.
func DefaultWeights() Weights {
	return Weights{Collisions: 1000, NearMisses: 50, Delay: 1, Exited: 10}
}

func (w Weights) isZero() bool { return w == Weights{} }

// Score applies w to the per-combo means.
func (w Weights) Score(r ComboResult) float64 {
	return w.Collisions*r.CollisionsMean +
		w.NearMisses*r.NearMissesMean +
		w.Delay*r.DelayMean -
		w.Exited*r.ExitedMean
}

// meanStddev returns the mean and sample standard deviation of xs. The
// deviation is 0 for fewer than two samples.
func meanStddev(xs []float64) (mean, stddev float64) {
	switch len(xs) {
	case 0:
		return 0, 0
	case 1:
		return xs[0], 0
	}
	return stat.MeanStdDev(xs, nil)
}
