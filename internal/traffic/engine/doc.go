// Package engine advances the intersection simulation one fixed timestep
// at a time.
//
// A Simulation owns the active vehicle population, the pending spawn
// schedule, the signal controller and the metric accumulators. Each Step
// runs the same ordered pipeline: spawn, sense demand, update the signal,
// compute every vehicle's control from pre-integration positions,
// integrate, detect near-misses, remove exited vehicles, detect
// collisions, advance time. The pipeline order is load-bearing.
//
// The engine is single-threaded and contains no randomness: identical
// inputs give bit-identical metrics and signal trajectories.
package engine
