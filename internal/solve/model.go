// Package solve contains the routing model and the two-stage CVRP solver:
// cheapest-arc construction followed by guided local search under a
// lexicographic fleet-size-then-distance objective.
package solve

import (
	"math"

	"fleetplan/internal/model"
)

// Model is the declarative constraint bundle shared by construction and
// improvement. The matrix is treated as immutable shared state for the
// whole solve; nothing in this package writes to it.
type Model struct {
	Matrix      *model.DistanceMatrix
	Demands     []int   // aligned with Matrix.IDs; Demands[0] is the depot and must be 0
	Capacity    int     // per vehicle
	MaxDistance float64 // per vehicle; <= 0 means uncapped
	FleetSize   int
}

// maxDist normalizes the distance cap: non-positive means unlimited.
func (m *Model) maxDist() float64 {
	if m.MaxDistance <= 0 {
		return math.Inf(1)
	}
	return m.MaxDistance
}

// Validate enforces the model invariants before any search begins.
func (m *Model) Validate() error {
	if m.Matrix == nil || m.Matrix.Size() == 0 {
		return &ConfigurationError{Msg: "empty distance matrix"}
	}
	n := m.Matrix.Size()
	if len(m.Demands) != n {
		return &ConfigurationError{Msg: "demand vector does not match matrix size"}
	}
	if m.FleetSize <= 0 {
		return &ConfigurationError{Msg: "fleet size must be positive"}
	}
	if m.Capacity <= 0 {
		return &ConfigurationError{Msg: "vehicle capacity must be positive"}
	}
	if m.Demands[0] != 0 {
		return &ConfigurationError{Msg: "depot demand must be zero"}
	}
	total := 0
	for i, d := range m.Demands {
		if d < 0 {
			return &ConfigurationError{Msg: "negative demand at node " + m.Matrix.IDs[i]}
		}
		total += d
	}
	if total > m.FleetSize*m.Capacity {
		return &CapacityInfeasibleError{TotalDemand: total, FleetSize: m.FleetSize, Capacity: m.Capacity}
	}
	// Second guard behind the matrix builder: every retained stop must
	// still have finite depot costs both ways.
	for i := 1; i < n; i++ {
		if math.IsInf(m.Matrix.At(0, i), 1) || math.IsInf(m.Matrix.At(i, 0), 1) {
			return &ConfigurationError{Msg: "node " + m.Matrix.IDs[i] + " lacks a finite depot cost; matrix was not filtered"}
		}
	}
	return nil
}

// Solution assigns each matrix index (1..N-1) to exactly one vehicle slot.
// Depot bookends are implicit; an empty slot means the vehicle is unused.
type Solution struct {
	Routes [][]int // one per vehicle slot
}

func newSolution(fleetSize int) *Solution {
	return &Solution{Routes: make([][]int, fleetSize)}
}

// Clone deep-copies the solution. Improvement threads never share routes.
func (s *Solution) Clone() *Solution {
	out := &Solution{Routes: make([][]int, len(s.Routes))}
	for i, r := range s.Routes {
		if len(r) > 0 {
			out.Routes[i] = append([]int(nil), r...)
		}
	}
	return out
}

// VehiclesUsed counts non-empty routes (the primary objective).
func (s *Solution) VehiclesUsed() int {
	used := 0
	for _, r := range s.Routes {
		if len(r) > 0 {
			used++
		}
	}
	return used
}

// routeDistance walks depot → stops → depot over the true matrix.
func routeDistance(m *Model, order []int) float64 {
	if len(order) == 0 {
		return 0
	}
	total := m.Matrix.At(0, order[0])
	for i := 0; i+1 < len(order); i++ {
		total += m.Matrix.At(order[i], order[i+1])
	}
	total += m.Matrix.At(order[len(order)-1], 0)
	return total
}

func routeDemand(m *Model, order []int) int {
	total := 0
	for _, idx := range order {
		total += m.Demands[idx]
	}
	return total
}

// TotalDistance sums true route distances (the secondary objective).
func (s *Solution) TotalDistance(m *Model) float64 {
	total := 0.0
	for _, r := range s.Routes {
		total += routeDistance(m, r)
	}
	return total
}

// lexBetter compares (vehicles, distance) lexicographically: the two
// objectives are incommensurable and are never blended into one scalar.
func lexBetter(v1 int, d1 float64, v2 int, d2 float64) bool {
	if v1 != v2 {
		return v1 < v2
	}
	return d1 < d2-1e-9
}

// verify checks the hard invariants of a finished solution: each stop on
// exactly one route, and every route within both caps.
func verify(m *Model, s *Solution) error {
	seen := make([]int, m.Matrix.Size())
	for _, r := range s.Routes {
		for _, idx := range r {
			if idx <= 0 || idx >= m.Matrix.Size() {
				return &InvariantError{Msg: "route references node index out of range"}
			}
			seen[idx]++
		}
		if routeDemand(m, r) > m.Capacity {
			return &InvariantError{Msg: "route exceeds vehicle capacity"}
		}
		if routeDistance(m, r) > m.maxDist()+1e-9 {
			return &InvariantError{Msg: "route exceeds distance cap"}
		}
	}
	for idx := 1; idx < m.Matrix.Size(); idx++ {
		if seen[idx] != 1 {
			return &InvariantError{Msg: "stop " + m.Matrix.IDs[idx] + " not visited exactly once"}
		}
	}
	return nil
}
