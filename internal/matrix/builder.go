// Package matrix turns classified candidate stops into the clean square
// distance matrix consumed by the solver, applying the exclusion policy in
// a fixed order and logging every drop. The filter is deliberately
// conservative: dropping a usable stop costs a little service coverage,
// keeping an unservable one costs a solver infeasibility that is much
// harder to diagnose downstream.
package matrix

import (
	"fmt"
	"math"
	"sort"

	"fleetplan/internal/model"
)

// Input bundles everything the builder needs. DenylistedSegments and
// ManualExclusions default to empty; they are configuration, not
// hardcoded policy.
type Input struct {
	Nodes              []model.Node // catalog order, may include the depot entry
	DepotID            string
	Costs              *model.CostTable
	Status             map[string]model.ReachabilityStatus
	DenylistedSegments []string
	ManualExclusions   []string
}

// Result is the immutable outcome of one build.
type Result struct {
	Matrix     *model.DistanceMatrix
	Demands    []int // aligned with Matrix.IDs; Demands[0] == 0
	Exclusions []model.ExclusionRecord
	Stats      model.MatrixStats
}

// Build applies the exclusion policy and assembles the square matrix.
// Policy order: topology first, then denylisted segments among the
// bidirectional survivors, then manual exclusions. A node already dropped
// is never recorded twice. Identical inputs yield identical output,
// including record order.
func Build(in Input) (*Result, error) {
	if in.DepotID == "" {
		return nil, fmt.Errorf("matrix: depot id required")
	}
	denied := map[string]bool{}
	for _, tag := range in.DenylistedSegments {
		denied[tag] = true
	}
	manual := map[string]bool{}
	for _, id := range in.ManualExclusions {
		manual[id] = true
	}

	stops := make([]model.Node, 0, len(in.Nodes))
	for _, n := range in.Nodes {
		if n.ID != in.DepotID {
			stops = append(stops, n)
		}
	}

	byReason := map[string]int{
		string(model.ReasonTopology):          0,
		string(model.ReasonDenylistedSegment): 0,
		string(model.ReasonManual):            0,
	}
	var records []model.ExclusionRecord
	dropped := map[string]bool{}
	drop := func(id string, reason model.ExclusionReason, detail string) {
		if dropped[id] {
			return
		}
		dropped[id] = true
		byReason[string(reason)]++
		records = append(records, model.ExclusionRecord{NodeID: id, Reason: reason, Detail: detail})
	}

	// 1. Topology: anything not bidirectional cannot be served round-trip.
	for _, n := range stops {
		st, ok := in.Status[n.ID]
		if !ok {
			drop(n.ID, model.ReasonTopology, "not classified")
			continue
		}
		if st != model.Bidirectional {
			drop(n.ID, model.ReasonTopology, st.String())
		}
	}
	// 2. Denylisted segments: formally reachable, empirically unreliable.
	for _, n := range stops {
		if dropped[n.ID] {
			continue
		}
		if n.SegmentTag != "" && denied[n.SegmentTag] {
			drop(n.ID, model.ReasonDenylistedSegment, "segment "+n.SegmentTag)
		}
	}
	// 3. Manual exclusions; idempotent against the steps above.
	for _, n := range stops {
		if manual[n.ID] {
			drop(n.ID, model.ReasonManual, "listed in manual exclusion set")
		}
	}

	// Retained set: depot first, then survivors in catalog order.
	ids := make([]string, 0, len(stops)+1)
	demands := make([]int, 0, len(stops)+1)
	ids = append(ids, in.DepotID)
	demands = append(demands, 0)
	for _, n := range stops {
		if !dropped[n.ID] {
			ids = append(ids, n.ID)
			demands = append(demands, n.Demand)
		}
	}

	n := len(ids)
	d := make([][]float64, n)
	finiteOffDiag := 0
	for i := 0; i < n; i++ {
		d[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			if i == j {
				d[i][j] = 0 // forced, regardless of any self-cost data
				continue
			}
			c := in.Costs.Cost(ids[i], ids[j])
			d[i][j] = c
			if !math.IsInf(c, 1) {
				finiteOffDiag++
			}
		}
	}

	density := 0.0
	if n > 1 {
		density = float64(finiteOffDiag) / float64(n*n-n)
	}
	stats := model.MatrixStats{
		Candidates: len(stops),
		Retained:   n - 1,
		Excluded:   byReason,
		Density:    density,
	}
	return &Result{
		Matrix:     &model.DistanceMatrix{IDs: ids, D: d},
		Demands:    demands,
		Exclusions: records,
		Stats:      stats,
	}, nil
}

// AuditRoutes re-checks a plan's routes against the raw cost table and
// reports every consecutive pair with no finite cost. With the
// conservative filter in place a non-empty result indicates a logic
// fault, not bad input.
func AuditRoutes(routes []model.Route, costs *model.CostTable) []model.InvalidLeg {
	var bad []model.InvalidLeg
	for _, r := range routes {
		for i := 0; i+1 < len(r.Stops); i++ {
			if math.IsInf(costs.Cost(r.Stops[i], r.Stops[i+1]), 1) {
				bad = append(bad, model.InvalidLeg{Vehicle: r.Vehicle, Position: i, From: r.Stops[i], To: r.Stops[i+1]})
			}
		}
	}
	sort.Slice(bad, func(i, j int) bool {
		if bad[i].Vehicle != bad[j].Vehicle {
			return bad[i].Vehicle < bad[j].Vehicle
		}
		return bad[i].Position < bad[j].Position
	})
	return bad
}
