package solve

import "math"

// construct builds the initial feasible solution by cheapest-arc
// insertion: at each step, the unrouted stop with the globally cheapest
// feasible insertion across all open routes wins. A new vehicle slot is
// opened only when no open route can feasibly take any remaining stop.
// Ties prefer the route with the most remaining capacity, then the lowest
// slot index, so construction is deterministic and reproducible.
func construct(m *Model) (*Solution, error) {
	n := m.Matrix.Size()
	sol := newSolution(m.FleetSize)
	loads := make([]int, m.FleetSize)
	dists := make([]float64, m.FleetSize)
	open := 0 // slots 0..open-1 are open

	unrouted := map[int]bool{}
	for i := 1; i < n; i++ {
		unrouted[i] = true
	}

	for len(unrouted) > 0 {
		bestNode, bestSlot, bestPos := -1, -1, -1
		bestDelta := math.Inf(1)
		for node := 1; node < n; node++ {
			if !unrouted[node] {
				continue
			}
			for slot := 0; slot < open; slot++ {
				if loads[slot]+m.Demands[node] > m.Capacity {
					continue
				}
				pos, delta := cheapestPosition(m, sol.Routes[slot], node)
				if pos < 0 || dists[slot]+delta > m.maxDist()+1e-9 {
					continue
				}
				if better(delta, slot, bestDelta, bestSlot, loads, m) {
					bestNode, bestSlot, bestPos, bestDelta = node, slot, pos, delta
				}
			}
		}
		if bestNode >= 0 {
			insert(sol, bestSlot, bestPos, bestNode)
			loads[bestSlot] += m.Demands[bestNode]
			dists[bestSlot] += bestDelta
			delete(unrouted, bestNode)
			continue
		}
		// No open route can take anything; open a fresh slot with the
		// cheapest depot round trip, if the fleet still has one.
		if open >= m.FleetSize {
			return nil, &FleetInfeasibleError{Unrouted: len(unrouted), FleetSize: m.FleetSize}
		}
		seed, seedDist := -1, math.Inf(1)
		for node := 1; node < n; node++ {
			if !unrouted[node] {
				continue
			}
			rt := m.Matrix.At(0, node) + m.Matrix.At(node, 0)
			if m.Demands[node] <= m.Capacity && rt <= m.maxDist()+1e-9 && rt < seedDist {
				seed, seedDist = node, rt
			}
		}
		if seed < 0 {
			// Remaining stops fit no vehicle at all, empty one included.
			return nil, &FleetInfeasibleError{Unrouted: len(unrouted), FleetSize: m.FleetSize}
		}
		sol.Routes[open] = []int{seed}
		loads[open] = m.Demands[seed]
		dists[open] = seedDist
		delete(unrouted, seed)
		open++
	}
	return sol, nil
}

// cheapestPosition finds the insertion position with the smallest marginal
// cost increase, or -1 when every position crosses an infinite arc.
func cheapestPosition(m *Model, route []int, node int) (int, float64) {
	bestPos, bestDelta := -1, math.Inf(1)
	for pos := 0; pos <= len(route); pos++ {
		prev, next := 0, 0
		if pos > 0 {
			prev = route[pos-1]
		}
		if pos < len(route) {
			next = route[pos]
		}
		delta := m.Matrix.At(prev, node) + m.Matrix.At(node, next) - m.Matrix.At(prev, next)
		if delta < bestDelta {
			bestPos, bestDelta = pos, delta
		}
	}
	if math.IsInf(bestDelta, 1) {
		return -1, bestDelta
	}
	return bestPos, bestDelta
}

// better applies the marginal-cost ordering with the two tie-breaks.
func better(delta float64, slot int, bestDelta float64, bestSlot int, loads []int, m *Model) bool {
	if bestSlot < 0 {
		return true
	}
	if delta < bestDelta-1e-9 {
		return true
	}
	if delta > bestDelta+1e-9 {
		return false
	}
	remA := m.Capacity - loads[slot]
	remB := m.Capacity - loads[bestSlot]
	if remA != remB {
		return remA > remB
	}
	return slot < bestSlot
}

func insert(sol *Solution, slot, pos, node int) {
	route := sol.Routes[slot]
	route = append(route, 0)
	copy(route[pos+1:], route[pos:])
	route[pos] = node
	sol.Routes[slot] = route
}
