package reach

import (
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetplan/internal/model"
)

func catalog(ids ...string) []model.Node {
	nodes := make([]model.Node, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, model.Node{ID: id, Demand: 1})
	}
	return nodes
}

func TestClassify_AllFourStatuses(t *testing.T) {
	costs := model.NewCostTable([]model.CostEdge{
		{From: "depot", To: "a", Cost: 10}, {From: "a", To: "depot", Cost: 12},
		{From: "depot", To: "trap", Cost: 5}, // no way back
		{From: "ret", To: "depot", Cost: 7},  // no way in
		// "iso" has no arcs at all
	})
	status, err := Classify(catalog("a", "trap", "ret", "iso"), costs, "depot")
	require.NoError(t, err)

	assert.Equal(t, model.Bidirectional, status["a"])
	assert.Equal(t, model.OneWayTrap, status["trap"])
	assert.Equal(t, model.ReturnOnly, status["ret"])
	assert.Equal(t, model.Isolated, status["iso"])
}

func TestClassify_OneWayTrapScenario(t *testing.T) {
	// depot→1=10, 1→depot=10, depot→2=5, 2→depot missing
	costs := model.NewCostTable([]model.CostEdge{
		{From: "depot", To: "1", Cost: 10},
		{From: "1", To: "depot", Cost: 10},
		{From: "depot", To: "2", Cost: 5},
	})
	status, err := Classify(catalog("1", "2"), costs, "depot")
	require.NoError(t, err)
	assert.Equal(t, model.Bidirectional, status["1"])
	assert.Equal(t, model.OneWayTrap, status["2"])
}

func TestClassify_DepotWithoutArcsIsFatal(t *testing.T) {
	onlyOut := model.NewCostTable([]model.CostEdge{{From: "depot", To: "a", Cost: 1}})
	_, err := Classify(catalog("a"), onlyOut, "depot")
	var de *DepotError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 1, de.Outgoing)
	assert.Equal(t, 0, de.Incoming)

	empty := model.NewCostTable(nil)
	_, err = Classify(catalog("a"), empty, "depot")
	require.ErrorAs(t, err, &de)
}

func TestClassify_DepotEntryNotClassified(t *testing.T) {
	costs := model.NewCostTable([]model.CostEdge{
		{From: "depot", To: "a", Cost: 1},
		{From: "a", To: "depot", Cost: 1},
	})
	nodes := append(catalog("a"), model.Node{ID: "depot"})
	status, err := Classify(nodes, costs, "depot")
	require.NoError(t, err)
	_, present := status["depot"]
	assert.False(t, present, "depot must not receive a status")
	assert.Len(t, status, 1)
}

func TestClassify_ManyNodesParallelPath(t *testing.T) {
	// enough stops to exercise the chunked fan-out
	edges := []model.CostEdge{}
	nodes := []model.Node{}
	for i := 0; i < 257; i++ {
		id := "stop-" + strconv.Itoa(i)
		nodes = append(nodes, model.Node{ID: id, Demand: 1})
		edges = append(edges, model.CostEdge{From: "depot", To: id, Cost: float64(i + 1)})
		if i%2 == 0 {
			edges = append(edges, model.CostEdge{From: id, To: "depot", Cost: float64(i + 1)})
		}
	}
	status, err := Classify(nodes, model.NewCostTable(edges), "depot")
	require.NoError(t, err)
	require.Len(t, status, 257)
	for i, n := range nodes {
		want := model.OneWayTrap
		if i%2 == 0 {
			want = model.Bidirectional
		}
		assert.Equal(t, want, status[n.ID], "node %s", n.ID)
	}
}

func TestCostTable_MissingIsInfinite(t *testing.T) {
	costs := model.NewCostTable([]model.CostEdge{{From: "x", To: "y", Cost: 3}})
	assert.Equal(t, 3.0, costs.Cost("x", "y"))
	assert.True(t, math.IsInf(costs.Cost("y", "x"), 1))
	assert.Equal(t, 0.0, costs.Cost("x", "x"))
}
