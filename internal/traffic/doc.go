// Package traffic owns the entity model of the intersection simulation.
//
// Responsibilities: vehicle kinematics and the vehicle's own speed law,
// spatial queries over the two approaches (Road), and the signal state
// machine that grants right-of-way to one approach at a time.
// Key types: Vehicle, Road, Signal, SignalState, Lane.
//
// Positions are signed scalars along an approach with the stop line at
// s = 0. Nothing in this package mutates a Vehicle except the Vehicle's
// own methods; Road and Signal only read.
package traffic
