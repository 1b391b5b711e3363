package store

import (
    "context"
    "errors"

    "fleetplan/internal/model"
)

// Store is the persistence interface used by the API server. Scenarios
// hold the raw collaborator inputs; plans hold finished planning results.
type Store interface {
    // Scenarios
    CreateScenario(ctx context.Context, in model.ScenarioIn) (model.Scenario, error)
    GetScenario(ctx context.Context, id string) (model.Scenario, error)
    ListScenarios(ctx context.Context, cursor string, limit int) (items []model.Scenario, nextCursor string, err error)

    // Plans
    SavePlan(ctx context.Context, p model.Plan) (model.Plan, error)
    GetPlan(ctx context.Context, id string) (model.Plan, error)
    ListPlans(ctx context.Context, scenarioID, cursor string, limit int) ([]model.Plan, string, error)

    // Solve metrics (per plan, opaque key/value)
    SaveSolveMetrics(ctx context.Context, planID string, metrics map[string]any) error
    GetSolveMetrics(ctx context.Context, planID string) (map[string]any, error)
}

var ErrNotFound = errors.New("not found")
