package api

import (
    "fmt"

    "fleetplan/internal/model"
)

func validateScenario(req *model.ScenarioIn) error {
    if req.DepotID == "" {
        return fmt.Errorf("depotId is required")
    }
    if len(req.Nodes) == 0 {
        return fmt.Errorf("at least one node is required")
    }
    seen := map[string]bool{}
    for _, n := range req.Nodes {
        if n.ID == "" {
            return fmt.Errorf("node with empty id")
        }
        if seen[n.ID] {
            return fmt.Errorf("duplicate node id: %s", n.ID)
        }
        seen[n.ID] = true
        if n.Demand < 0 {
            return fmt.Errorf("node %s has negative demand", n.ID)
        }
        if n.ID == req.DepotID && n.Demand != 0 {
            return fmt.Errorf("depot demand must be zero")
        }
    }
    for _, e := range req.Edges {
        if e.From == "" || e.To == "" {
            return fmt.Errorf("edge with empty endpoint")
        }
        if e.Cost < 0 {
            return fmt.Errorf("edge %s->%s has negative cost", e.From, e.To)
        }
    }
    return nil
}

func validatePlanRequest(req *model.PlanRequest) error {
    if req.ScenarioID == "" {
        return fmt.Errorf("scenarioId is required")
    }
    if req.FleetSize <= 0 {
        return fmt.Errorf("fleetSize must be > 0")
    }
    if req.Capacity <= 0 {
        return fmt.Errorf("capacity must be > 0")
    }
    if req.MaxDistance < 0 {
        return fmt.Errorf("maxDistance must be >= 0")
    }
    if req.TimeBudgetSec < 0 {
        return fmt.Errorf("timeBudgetSec must be >= 0")
    }
    if req.MaxSweeps < 0 {
        return fmt.Errorf("maxSweeps must be >= 0")
    }
    if req.Workers < 0 {
        return fmt.Errorf("workers must be >= 0")
    }
    return nil
}
