package engine

// Metrics are the run's monotone accumulators. Collisions and near-misses
// are modelled-world outcomes, not engine faults.
type Metrics struct {
	Collisions          int     `json:"collisions"`
	NearMisses          int     `json:"near_misses"`
	TotalVehiclesExited int     `json:"vehicles_exited"`
	TotalDelay          float64 `json:"total_delay"` // vehicle-seconds of speed deficit, m/s*s
}

// Counts describes the population split at an instant. Spawned always
// equals Active + Exited, and Spawned + Pending equals everything ever
// scheduled.
type Counts struct {
	Scheduled int `json:"scheduled"`
	Spawned   int `json:"spawned"`
	Active    int `json:"active"`
	Exited    int `json:"exited"`
	Pending   int `json:"pending"`
}
