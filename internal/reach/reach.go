// Package reach classifies candidate stops by directed reachability
// between the depot and each stop. The cost provider has already collapsed
// street-network routing into point-to-point costs, so a stop is reachable
// exactly when a finite depot→stop cost exists, and returnable when a
// finite stop→depot cost exists. The underlying network can be one-way,
// so the two directions are decided independently: a stop may be enterable
// but not leavable (a trap), or the reverse.
package reach

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"fleetplan/internal/model"
)

// DepotError reports a depot with no finite arcs in one or both
// directions. The scenario cannot be solved; callers must not downgrade
// this to a per-node drop.
type DepotError struct {
	DepotID  string
	Outgoing int
	Incoming int
}

func (e *DepotError) Error() string {
	return fmt.Sprintf("depot %q has %d finite outgoing and %d finite incoming arcs; scenario is unsolvable", e.DepotID, e.Outgoing, e.Incoming)
}

// Classify computes a ReachabilityStatus for every catalog node other than
// the depot. Classification is pure: no input is mutated.
func Classify(nodes []model.Node, costs *model.CostTable, depotID string) (map[string]model.ReachabilityStatus, error) {
	if depotID == "" {
		return nil, &DepotError{DepotID: depotID}
	}
	out := len(costs.Out(depotID))
	in := len(costs.In(depotID))
	if out == 0 || in == 0 {
		return nil, &DepotError{DepotID: depotID, Outgoing: out, Incoming: in}
	}

	stops := make([]model.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.ID != depotID {
			stops = append(stops, n)
		}
	}

	// Per-node checks are independent with no shared mutable state; fan
	// out in chunks and join once before assembling the result map.
	status := make([]model.ReachabilityStatus, len(stops))
	workers := runtime.GOMAXPROCS(0)
	if workers > len(stops) {
		workers = len(stops)
	}
	if workers < 1 {
		workers = 1
	}
	var wg sync.WaitGroup
	chunk := (len(stops) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(stops) {
			hi = len(stops)
		}
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				reachable := finite(costs.Cost(depotID, stops[i].ID))
				returnable := finite(costs.Cost(stops[i].ID, depotID))
				status[i] = classifyOne(reachable, returnable)
			}
		}(lo, hi)
	}
	wg.Wait()

	result := make(map[string]model.ReachabilityStatus, len(stops))
	for i, n := range stops {
		result[n.ID] = status[i]
	}
	return result, nil
}

func classifyOne(reachable, returnable bool) model.ReachabilityStatus {
	switch {
	case reachable && returnable:
		return model.Bidirectional
	case reachable:
		return model.OneWayTrap
	case returnable:
		return model.ReturnOnly
	}
	return model.Isolated
}

func finite(c float64) bool { return !math.IsInf(c, 1) }
