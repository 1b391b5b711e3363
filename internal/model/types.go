package model

import (
	"encoding/json"
	"math"
	"sort"
)

// Core planning domain types shared by the classifier, the matrix builder
// and the solver. The planning core exchanges only these in-memory values;
// persistence and transport concerns live elsewhere.

// Node is a candidate delivery stop (or the depot, with Demand 0).
// X/Y are carried for diagnostics only; the planner never derives costs
// from positions.
type Node struct {
	ID         string  `json:"id"`
	Demand     int     `json:"demand"`
	X          float64 `json:"x,omitempty"`
	Y          float64 `json:"y,omitempty"`
	SegmentTag string  `json:"segmentTag,omitempty"`
}

// CostEdge is one directed travel cost as supplied by the cost provider.
type CostEdge struct {
	From string  `json:"from"`
	To   string  `json:"to"`
	Cost float64 `json:"cost"`
}

// CostTable holds directed travel costs. A missing entry is +Inf, never a
// sentinel like -1 or a null: downstream arithmetic stays total.
type CostTable struct {
	out map[string]map[string]float64
	in  map[string]map[string]float64
}

func NewCostTable(edges []CostEdge) *CostTable {
	t := &CostTable{out: map[string]map[string]float64{}, in: map[string]map[string]float64{}}
	for _, e := range edges {
		t.Add(e.From, e.To, e.Cost)
	}
	return t
}

// Add records cost(from→to). Negative and NaN costs are treated as absent.
func (t *CostTable) Add(from, to string, cost float64) {
	if from == "" || to == "" || from == to {
		return
	}
	if math.IsNaN(cost) || cost < 0 {
		return
	}
	if t.out[from] == nil {
		t.out[from] = map[string]float64{}
	}
	if t.in[to] == nil {
		t.in[to] = map[string]float64{}
	}
	t.out[from][to] = cost
	t.in[to][from] = cost
}

// Cost returns cost(from→to), +Inf if no cost was provided.
func (t *CostTable) Cost(from, to string) float64 {
	if from == to {
		return 0
	}
	if m := t.out[from]; m != nil {
		if c, ok := m[to]; ok {
			return c
		}
	}
	return math.Inf(1)
}

// Out returns the outgoing cost map of a node (may be nil).
func (t *CostTable) Out(id string) map[string]float64 { return t.out[id] }

// In returns the incoming cost map of a node (may be nil).
func (t *CostTable) In(id string) map[string]float64 { return t.in[id] }

// ReachabilityStatus classifies a stop by whether finite-cost paths exist
// depot→stop and stop→depot.
type ReachabilityStatus int

const (
	Bidirectional ReachabilityStatus = iota // both directions finite
	OneWayTrap                              // reachable from depot, no way back
	ReturnOnly                              // can return, not reachable
	Isolated                                // neither direction
)

func (s ReachabilityStatus) String() string {
	switch s {
	case Bidirectional:
		return "bidirectional"
	case OneWayTrap:
		return "one-way-trap"
	case ReturnOnly:
		return "return-only"
	case Isolated:
		return "isolated"
	}
	return "unknown"
}

// ExclusionReason names the policy step that dropped a node.
type ExclusionReason string

const (
	ReasonTopology          ExclusionReason = "topology"
	ReasonDenylistedSegment ExclusionReason = "denylisted-segment"
	ReasonManual            ExclusionReason = "manual"
)

// ExclusionRecord is one append-only entry in the exclusion log. Every
// excluded node has exactly one record; retained nodes have none.
type ExclusionRecord struct {
	NodeID string          `json:"nodeId"`
	Reason ExclusionReason `json:"reason"`
	Detail string          `json:"detail,omitempty"`
}

// DistanceMatrix is the clean square matrix over {depot} ∪ retained stops,
// depot at index 0. It is built once per scenario and never mutated after.
type DistanceMatrix struct {
	IDs []string
	D   [][]float64
}

// Size returns the node count including the depot.
func (m *DistanceMatrix) Size() int { return len(m.IDs) }

// At returns the cost from index i to index j.
func (m *DistanceMatrix) At(i, j int) float64 { return m.D[i][j] }

// MarshalJSON encodes +Inf entries as null so the matrix can be exported
// for audit without inventing a magic large number.
func (m *DistanceMatrix) MarshalJSON() ([]byte, error) {
	rows := make([][]*float64, len(m.D))
	for i, row := range m.D {
		rows[i] = make([]*float64, len(row))
		for j := range row {
			if !math.IsInf(row[j], 1) {
				v := row[j]
				rows[i][j] = &v
			}
		}
	}
	return json.Marshal(struct {
		IDs  []string     `json:"ids"`
		Rows [][]*float64 `json:"rows"`
	}{IDs: m.IDs, Rows: rows})
}

// UnmarshalJSON restores null entries to +Inf.
func (m *DistanceMatrix) UnmarshalJSON(data []byte) error {
	var raw struct {
		IDs  []string     `json:"ids"`
		Rows [][]*float64 `json:"rows"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.IDs = raw.IDs
	m.D = make([][]float64, len(raw.Rows))
	for i, row := range raw.Rows {
		m.D[i] = make([]float64, len(row))
		for j, v := range row {
			if v == nil {
				m.D[i][j] = math.Inf(1)
			} else {
				m.D[i][j] = *v
			}
		}
	}
	return nil
}

// MatrixStats summarizes a build: how many nodes survived, why the rest
// were dropped, and how dense the finite off-diagonal entries are.
type MatrixStats struct {
	Candidates int            `json:"candidates"`
	Retained   int            `json:"retained"`
	Excluded   map[string]int `json:"excludedByReason"`
	Density    float64        `json:"density"`
}

// ExcludedTotal sums the per-reason exclusion counts.
func (s MatrixStats) ExcludedTotal() int {
	total := 0
	for _, n := range s.Excluded {
		total += n
	}
	return total
}

// Route is one vehicle's tour: stop ids from depot back to depot, with its
// measured directed distance and carried demand.
type Route struct {
	Vehicle  int      `json:"vehicle"`
	Stops    []string `json:"stops"`
	Distance float64  `json:"distance"`
	Demand   int      `json:"demand"`
}

// PlanSummary is the fleet-level result of one solve.
type PlanSummary struct {
	VehiclesUsed        int     `json:"vehiclesUsed"`
	TotalDistance       float64 `json:"totalDistance"`
	AvgRouteDistance    float64 `json:"avgRouteDistance"`
	MaxRouteDistance    float64 `json:"maxRouteDistance"`
	DistanceCapExceeded bool    `json:"distanceCapExceeded"`
	Sweeps              int     `json:"sweeps"`
	SolveMs             int64   `json:"solveMs"`
}

// ScenarioIn is the request body creating a scenario: the node catalog and
// the raw directed cost table from the external collaborators.
type ScenarioIn struct {
	Name    string     `json:"name,omitempty"`
	DepotID string     `json:"depotId"`
	Nodes   []Node     `json:"nodes"`
	Edges   []CostEdge `json:"edges"`
}

// Scenario is a stored scenario.
type Scenario struct {
	ID        string     `json:"id"`
	Name      string     `json:"name,omitempty"`
	DepotID   string     `json:"depotId"`
	Nodes     []Node     `json:"nodes"`
	Edges     []CostEdge `json:"edges"`
	CreatedAt string     `json:"createdAt"`
}

// PlanRequest carries the operational inputs for one planning run.
type PlanRequest struct {
	ScenarioID         string   `json:"scenarioId"`
	FleetSize          int      `json:"fleetSize"`
	Capacity           int      `json:"capacity"`
	MaxDistance        float64  `json:"maxDistance,omitempty"` // 0 = uncapped
	TimeBudgetSec      int      `json:"timeBudgetSec,omitempty"`
	MaxSweeps          int      `json:"maxSweeps,omitempty"` // deterministic alternative to wall clock
	Workers            int      `json:"workers,omitempty"`
	Seed               int64    `json:"seed,omitempty"`
	DenylistedSegments []string `json:"denylistedSegments,omitempty"`
	ManualExclusions   []string `json:"manualExclusions,omitempty"`
}

// Plan is a stored planning result.
type Plan struct {
	ID         string            `json:"id"`
	ScenarioID string            `json:"scenarioId"`
	Status     string            `json:"status"` // completed, failed
	Error      string            `json:"error,omitempty"`
	Request    PlanRequest       `json:"request"`
	Routes     []Route           `json:"routes,omitempty"`
	Exclusions []ExclusionRecord `json:"exclusions,omitempty"`
	Matrix     *DistanceMatrix   `json:"matrix,omitempty"`
	Stats      *MatrixStats      `json:"matrixStats,omitempty"`
	Summary    *PlanSummary      `json:"summary,omitempty"`
	CreatedAt  string            `json:"createdAt"`
}

// InvalidLeg is one consecutive route pair with no finite raw cost; see the
// plan audit endpoint.
type InvalidLeg struct {
	Vehicle  int    `json:"vehicle"`
	Position int    `json:"position"`
	From     string `json:"from"`
	To       string `json:"to"`
}

// SortExclusions orders records by node id for stable output.
func SortExclusions(recs []ExclusionRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].NodeID < recs[j].NodeID })
}
