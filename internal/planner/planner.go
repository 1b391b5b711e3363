// Package planner runs the full pipeline for one scenario: classify
// reachability, build the clean distance matrix, solve the CVRP. It is
// the seam between the stored scenario/plan records and the pure core
// packages.
package planner

import (
	"context"
	"errors"
	"time"

	"fleetplan/internal/matrix"
	"fleetplan/internal/model"
	"fleetplan/internal/reach"
	"fleetplan/internal/solve"
)

// Outcome carries everything one run produced, for persistence and for
// the API response.
type Outcome struct {
	Routes     []model.Route
	Exclusions []model.ExclusionRecord
	Matrix     *model.DistanceMatrix
	Stats      model.MatrixStats
	Summary    model.PlanSummary
}

// Run executes the pipeline. Per-node problems are recovered locally (the
// node is excluded and logged); configuration- and fleet-level
// infeasibilities abort the run with a typed error the caller can map to
// a response.
func Run(ctx context.Context, sc model.Scenario, req model.PlanRequest, progress func(solve.Progress)) (*Outcome, error) {
	costs := model.NewCostTable(sc.Edges)

	status, err := reach.Classify(sc.Nodes, costs, sc.DepotID)
	if err != nil {
		return nil, err
	}

	built, err := matrix.Build(matrix.Input{
		Nodes:              sc.Nodes,
		DepotID:            sc.DepotID,
		Costs:              costs,
		Status:             status,
		DenylistedSegments: req.DenylistedSegments,
		ManualExclusions:   req.ManualExclusions,
	})
	if err != nil {
		return nil, err
	}

	m := &solve.Model{
		Matrix:      built.Matrix,
		Demands:     built.Demands,
		Capacity:    req.Capacity,
		MaxDistance: req.MaxDistance,
		FleetSize:   req.FleetSize,
	}
	res, err := solve.Run(ctx, m, solve.Options{
		TimeBudget: time.Duration(req.TimeBudgetSec) * time.Second,
		MaxSweeps:  req.MaxSweeps,
		Workers:    req.Workers,
		Seed:       req.Seed,
		Progress:   progress,
	})
	if err != nil {
		return nil, err
	}

	// Records come out of the builder in policy order; stored plans keep
	// them sorted by node id so diffs between runs line up.
	model.SortExclusions(built.Exclusions)

	return &Outcome{
		Routes:     res.Routes,
		Exclusions: built.Exclusions,
		Matrix:     built.Matrix,
		Stats:      built.Stats,
		Summary:    res.Summary,
	}, nil
}

// Audit re-checks a stored plan's routes against the scenario's raw cost
// table, reporting consecutive legs the real network cannot serve.
func Audit(sc model.Scenario, routes []model.Route) []model.InvalidLeg {
	return matrix.AuditRoutes(routes, model.NewCostTable(sc.Edges))
}

// Fatal reports whether err is a run-aborting planner error (as opposed
// to an infrastructure failure), so callers can pick a response status.
func Fatal(err error) bool {
	var de *reach.DepotError
	var ce *solve.ConfigurationError
	var ci *solve.CapacityInfeasibleError
	var fe *solve.FleetInfeasibleError
	return errors.As(err, &de) || errors.As(err, &ce) || errors.As(err, &ci) || errors.As(err, &fe)
}
