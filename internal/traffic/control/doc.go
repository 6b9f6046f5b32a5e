// Package control holds the cooperative control laws that sit on top of a
// vehicle's own cruise controller.
//
// Both laws are pure functions returning an acceleration contribution that
// the caller sums with Vehicle.SpeedControl before committing it. V2V and
// V2I information is modelled as instantaneous and perfect; no range
// gating is applied.
package control
