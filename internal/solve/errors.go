package solve

import "fmt"

// ConfigurationError marks parameter combinations no amount of searching
// can fix: non-positive fleet or capacity, malformed demands.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return "configuration: " + e.Msg }

// CapacityInfeasibleError: total demand exceeds what the whole fleet can
// carry. Detected before any search begins.
type CapacityInfeasibleError struct {
	TotalDemand int
	FleetSize   int
	Capacity    int
}

func (e *CapacityInfeasibleError) Error() string {
	return fmt.Sprintf("capacity infeasible: total demand %d exceeds fleet limit %d (%d vehicles × capacity %d)",
		e.TotalDemand, e.FleetSize*e.Capacity, e.FleetSize, e.Capacity)
}

// FleetInfeasibleError: construction exhausted every vehicle slot with
// stops still unrouted. The caller must raise fleet size, capacity or the
// distance cap and retry.
type FleetInfeasibleError struct {
	Unrouted  int
	FleetSize int
}

func (e *FleetInfeasibleError) Error() string {
	return fmt.Sprintf("fleet infeasible: %d stops unrouted after exhausting all %d vehicle slots", e.Unrouted, e.FleetSize)
}

// InvariantError indicates a logic defect: an accepted solution violated a
// hard constraint or lost/duplicated a stop. Never swallowed.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string { return "internal invariant violation: " + e.Msg }
