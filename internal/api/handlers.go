package api

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "strings"
    "time"

    "fleetplan/internal/buildinfo"
    "fleetplan/internal/metrics"
    "fleetplan/internal/model"
    "fleetplan/internal/planner"
    "fleetplan/internal/solve"
)

// ScenariosHandler handles POST/GET /v1/scenarios
func (s *Server) ScenariosHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var req model.ScenarioIn
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if err := validateScenario(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid scenario", err.Error(), r.URL.Path)
            return
        }
        sc, err := s.Store.CreateScenario(r.Context(), req)
        if err != nil {
            writeError(w, err, r.URL.Path)
            return
        }
        writeJSON(w, http.StatusCreated, sc)
    case http.MethodGet:
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" {
            fmt.Sscanf(v, "%d", &limit)
        }
        items, next, err := s.Store.ListScenarios(r.Context(), cursor, limit)
        if err != nil {
            writeError(w, err, r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// ScenarioByIDHandler handles GET /v1/scenarios/{id}
func (s *Server) ScenarioByIDHandler(w http.ResponseWriter, r *http.Request) {
    id := strings.TrimPrefix(r.URL.Path, "/v1/scenarios/")
    if id == "" || strings.Contains(id, "/") {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
        return
    }
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    sc, err := s.Store.GetScenario(r.Context(), id)
    if err != nil {
        writeError(w, err, r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, sc)
}

// PlansHandler handles POST/GET /v1/plans. POST accepts the plan request,
// stores a running plan record and solves in the background; clients poll
// the plan or stream progress over the WebSocket endpoint.
func (s *Server) PlansHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var req model.PlanRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        s.Defaults.Apply(&req)
        if err := validatePlanRequest(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid plan request", err.Error(), r.URL.Path)
            return
        }
        sc, err := s.Store.GetScenario(r.Context(), req.ScenarioID)
        if err != nil {
            writeError(w, err, r.URL.Path)
            return
        }
        plan, err := s.Store.SavePlan(r.Context(), model.Plan{
            ScenarioID: sc.ID,
            Status:     "running",
            Request:    req,
        })
        if err != nil {
            writeError(w, err, r.URL.Path)
            return
        }
        s.Broker.Publish(plan.ID, PlanEvent{Type: "plan.started", Data: map[string]any{"planId": plan.ID}})
        go s.runPlan(plan, sc)
        writeJSON(w, http.StatusAccepted, plan)
    case http.MethodGet:
        scenarioID := r.URL.Query().Get("scenarioId")
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" {
            fmt.Sscanf(v, "%d", &limit)
        }
        items, next, err := s.Store.ListPlans(r.Context(), scenarioID, cursor, limit)
        if err != nil {
            writeError(w, err, r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// runPlan executes the pipeline in the background and persists the result.
func (s *Server) runPlan(plan model.Plan, sc model.Scenario) {
    budget := time.Duration(plan.Request.TimeBudgetSec) * time.Second
    if budget <= 0 {
        budget = 300 * time.Second
    }
    // grace on top of the solver's own deadline
    ctx, cancel := context.WithTimeout(context.Background(), budget+30*time.Second)
    defer cancel()

    start := time.Now()
    progress := func(p solve.Progress) {
        s.Broker.Publish(plan.ID, PlanEvent{Type: "plan.progress", Data: map[string]any{
            "planId": plan.ID, "sweep": p.Sweep, "vehiclesUsed": p.VehiclesUsed, "totalDistance": p.TotalDistance,
        }})
    }
    out, err := planner.Run(ctx, sc, plan.Request, progress)
    if err != nil {
        plan.Status = "failed"
        plan.Error = err.Error()
        outcome := "error"
        if planner.Fatal(err) {
            outcome = "infeasible"
        }
        metrics.Plans.WithLabelValues(outcome).Inc()
        if _, serr := s.Store.SavePlan(ctx, plan); serr != nil {
            plan.Error = plan.Error + "; save failed: " + serr.Error()
        }
        s.Broker.Publish(plan.ID, PlanEvent{Type: "plan.failed", Data: map[string]any{"planId": plan.ID, "error": plan.Error}})
        return
    }

    plan.Status = "completed"
    plan.Routes = out.Routes
    plan.Exclusions = out.Exclusions
    plan.Matrix = out.Matrix
    plan.Stats = &out.Stats
    plan.Summary = &out.Summary
    metrics.Plans.WithLabelValues("completed").Inc()
    metrics.SolveDuration.Observe(time.Since(start).Seconds())
    metrics.MatrixDensity.Observe(out.Stats.Density)
    for reason, n := range out.Stats.Excluded {
        metrics.ExcludedNodes.WithLabelValues(reason).Add(float64(n))
    }
    if _, err := s.Store.SavePlan(ctx, plan); err != nil {
        s.Broker.Publish(plan.ID, PlanEvent{Type: "plan.failed", Data: map[string]any{"planId": plan.ID, "error": err.Error()}})
        return
    }
    _ = s.Store.SaveSolveMetrics(ctx, plan.ID, map[string]any{
        "sweeps":        out.Summary.Sweeps,
        "solveMs":       out.Summary.SolveMs,
        "vehiclesUsed":  out.Summary.VehiclesUsed,
        "totalDistance": out.Summary.TotalDistance,
        "density":       out.Stats.Density,
    })
    s.Broker.Publish(plan.ID, PlanEvent{Type: "plan.completed", Data: map[string]any{
        "planId": plan.ID, "vehiclesUsed": out.Summary.VehiclesUsed, "totalDistance": out.Summary.TotalDistance,
    }})
}

// PlanByIDHandler handles GET /v1/plans/{id} plus the /matrix, /exclusions,
// /audit and /metrics subresources, and the /progress/ws stream.
func (s *Server) PlanByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/plans/")
    if rest == r.URL.Path || rest == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
        return
    }
    parts := strings.Split(rest, "/")
    id := parts[0]
    sub := strings.Join(parts[1:], "/")

    if sub == "progress/ws" {
        s.PlanProgressWSHandler(w, r, id)
        return
    }
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    plan, err := s.Store.GetPlan(r.Context(), id)
    if err != nil {
        writeError(w, err, r.URL.Path)
        return
    }
    switch sub {
    case "":
        writeJSON(w, http.StatusOK, plan)
    case "matrix":
        if plan.Matrix == nil {
            writeProblem(w, http.StatusConflict, "Plan incomplete", "matrix not available for status "+plan.Status, r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"matrix": plan.Matrix, "stats": plan.Stats})
    case "exclusions":
        writeJSON(w, http.StatusOK, map[string]any{"items": plan.Exclusions})
    case "audit":
        sc, err := s.Store.GetScenario(r.Context(), plan.ScenarioID)
        if err != nil {
            writeError(w, err, r.URL.Path)
            return
        }
        invalid := planner.Audit(sc, plan.Routes)
        writeJSON(w, http.StatusOK, map[string]any{"invalidLegs": invalid, "clean": len(invalid) == 0})
    case "metrics":
        mx, err := s.Store.GetSolveMetrics(r.Context(), id)
        if err != nil {
            writeError(w, err, r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, mx)
    default:
        writeProblem(w, http.StatusNotFound, "Not Found", "unknown subresource", r.URL.Path)
    }
}

// VersionHandler reports build metadata.
func (s *Server) VersionHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, buildinfo.Info())
}

// HealthHandler reports liveness.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler reports readiness (store reachable enough to list).
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    if _, _, err := s.Store.ListScenarios(r.Context(), "", 1); err != nil {
        writeProblem(w, http.StatusServiceUnavailable, "Not ready", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
