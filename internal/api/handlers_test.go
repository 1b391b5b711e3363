package api

import (
    "bytes"
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "fleetplan/internal/model"
)

func newTestServer(t *testing.T) *Server {
    t.Helper()
    s, err := NewServer()
    if err != nil { t.Fatalf("NewServer: %v", err) }
    return s
}

// a small scenario: three serviceable stops and one trap
const testScenario = `{
    "name": "east-loop",
    "depotId": "depot",
    "nodes": [
        {"id": "depot", "demand": 0},
        {"id": "a", "demand": 2},
        {"id": "b", "demand": 3},
        {"id": "c", "demand": 1},
        {"id": "trap", "demand": 1}
    ],
    "edges": [
        {"from": "depot", "to": "a", "cost": 4}, {"from": "a", "to": "depot", "cost": 4},
        {"from": "depot", "to": "b", "cost": 6}, {"from": "b", "to": "depot", "cost": 6},
        {"from": "depot", "to": "c", "cost": 3}, {"from": "c", "to": "depot", "cost": 3},
        {"from": "a", "to": "b", "cost": 2}, {"from": "b", "to": "a", "cost": 2},
        {"from": "a", "to": "c", "cost": 5}, {"from": "c", "to": "a", "cost": 5},
        {"from": "b", "to": "c", "cost": 7}, {"from": "c", "to": "b", "cost": 7},
        {"from": "depot", "to": "trap", "cost": 1}
    ]
}`

func createScenario(t *testing.T, s *Server) model.Scenario {
    t.Helper()
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/v1/scenarios", strings.NewReader(testScenario))
    req.Header.Set("Content-Type", "application/json")
    s.ScenariosHandler(rr, req)
    if rr.Code != http.StatusCreated { t.Fatalf("create scenario: got %d: %s", rr.Code, rr.Body.String()) }
    var sc model.Scenario
    if err := json.Unmarshal(rr.Body.Bytes(), &sc); err != nil { t.Fatalf("decode scenario: %v", err) }
    return sc
}

func startPlan(t *testing.T, s *Server, body map[string]any) model.Plan {
    t.Helper()
    b, _ := json.Marshal(body)
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/v1/plans", bytes.NewReader(b))
    req.Header.Set("Content-Type", "application/json")
    s.PlansHandler(rr, req)
    if rr.Code != http.StatusAccepted { t.Fatalf("start plan: got %d: %s", rr.Code, rr.Body.String()) }
    var plan model.Plan
    if err := json.Unmarshal(rr.Body.Bytes(), &plan); err != nil { t.Fatalf("decode plan: %v", err) }
    if plan.Status != "running" { t.Fatalf("fresh plan status: got %q", plan.Status) }
    return plan
}

func waitPlan(t *testing.T, s *Server, id string) model.Plan {
    t.Helper()
    deadline := time.Now().Add(10 * time.Second)
    for time.Now().Before(deadline) {
        p, err := s.Store.GetPlan(context.Background(), id)
        if err != nil { t.Fatalf("get plan: %v", err) }
        if p.Status != "running" { return p }
        time.Sleep(20 * time.Millisecond)
    }
    t.Fatalf("plan %s still running after 10s", id)
    return model.Plan{}
}

func TestHealthReady(t *testing.T) {
    s := newTestServer(t)
    rr := httptest.NewRecorder()
    s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
    if rr.Code != 200 { t.Fatalf("health: got %d", rr.Code) }
    rr = httptest.NewRecorder()
    s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
    if rr.Code != 200 { t.Fatalf("ready: got %d", rr.Code) }
}

func TestScenarioCreateGetList(t *testing.T) {
    s := newTestServer(t)
    sc := createScenario(t, s)
    if sc.ID == "" { t.Fatal("scenario id not assigned") }

    rr := httptest.NewRecorder()
    s.ScenarioByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/scenarios/"+sc.ID, nil))
    if rr.Code != 200 { t.Fatalf("get scenario: %d", rr.Code) }

    rr = httptest.NewRecorder()
    s.ScenariosHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/scenarios?limit=5", nil))
    if rr.Code != 200 { t.Fatalf("list scenarios: %d", rr.Code) }
    var list struct {
        Items []model.Scenario `json:"items"`
    }
    if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil { t.Fatalf("decode list: %v", err) }
    if len(list.Items) != 1 { t.Fatalf("expected 1 scenario, got %d", len(list.Items)) }

    rr = httptest.NewRecorder()
    s.ScenarioByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/scenarios/nope", nil))
    if rr.Code != http.StatusNotFound { t.Fatalf("missing scenario: %d", rr.Code) }
}

func TestScenarioValidation(t *testing.T) {
    s := newTestServer(t)
    bad := []string{
        `{"nodes":[{"id":"a"}]}`,                                              // no depot
        `{"depotId":"d","nodes":[]}`,                                          // no nodes
        `{"depotId":"d","nodes":[{"id":"a"},{"id":"a"}]}`,                     // duplicate
        `{"depotId":"d","nodes":[{"id":"d","demand":5}]}`,                     // depot demand
        `{"depotId":"d","nodes":[{"id":"a","demand":-1}]}`,                    // negative demand
        `{"depotId":"d","nodes":[{"id":"d"}],"edges":[{"from":"d","to":"x","cost":-2}]}`, // negative cost
    }
    for i, body := range bad {
        rr := httptest.NewRecorder()
        req := httptest.NewRequest(http.MethodPost, "/v1/scenarios", strings.NewReader(body))
        s.ScenariosHandler(rr, req)
        if rr.Code != http.StatusBadRequest { t.Fatalf("case %d: got %d, want 400", i, rr.Code) }
    }
}

func TestPlanLifecycle(t *testing.T) {
    s := newTestServer(t)
    sc := createScenario(t, s)

    plan := startPlan(t, s, map[string]any{
        "scenarioId": sc.ID, "fleetSize": 3, "capacity": 5,
        "maxSweeps": 10, "timeBudgetSec": 5, "seed": 1,
    })
    done := waitPlan(t, s, plan.ID)
    if done.Status != "completed" { t.Fatalf("plan status: got %q (%s)", done.Status, done.Error) }
    if done.Summary == nil || done.Summary.VehiclesUsed == 0 { t.Fatalf("summary missing: %+v", done.Summary) }

    // every serviceable stop routed exactly once, trap excluded
    seen := map[string]int{}
    for _, r := range done.Routes {
        for _, id := range r.Stops[1 : len(r.Stops)-1] {
            seen[id]++
        }
    }
    for _, id := range []string{"a", "b", "c"} {
        if seen[id] != 1 { t.Fatalf("stop %s visited %d times", id, seen[id]) }
    }
    if seen["trap"] != 0 { t.Fatal("trap stop must not be routed") }
    if len(done.Exclusions) != 1 || done.Exclusions[0].NodeID != "trap" {
        t.Fatalf("exclusions: %+v", done.Exclusions)
    }
    if done.Exclusions[0].Reason != model.ReasonTopology { t.Fatalf("exclusion reason: %s", done.Exclusions[0].Reason) }
}

func TestPlanExclusionsSortedByNode(t *testing.T) {
    s := newTestServer(t)
    // two traps listed in reverse id order; the stored log must not keep
    // catalog order
    body := `{
        "depotId": "depot",
        "nodes": [
            {"id": "depot", "demand": 0},
            {"id": "z-trap", "demand": 1},
            {"id": "a-trap", "demand": 1},
            {"id": "stop", "demand": 1}
        ],
        "edges": [
            {"from": "depot", "to": "z-trap", "cost": 1},
            {"from": "depot", "to": "a-trap", "cost": 1},
            {"from": "depot", "to": "stop", "cost": 2}, {"from": "stop", "to": "depot", "cost": 2}
        ]
    }`
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/v1/scenarios", strings.NewReader(body))
    s.ScenariosHandler(rr, req)
    if rr.Code != http.StatusCreated { t.Fatalf("create scenario: %d: %s", rr.Code, rr.Body.String()) }
    var sc model.Scenario
    if err := json.Unmarshal(rr.Body.Bytes(), &sc); err != nil { t.Fatalf("decode scenario: %v", err) }

    plan := startPlan(t, s, map[string]any{
        "scenarioId": sc.ID, "fleetSize": 1, "capacity": 5,
        "maxSweeps": 3, "timeBudgetSec": 5,
    })
    done := waitPlan(t, s, plan.ID)
    if done.Status != "completed" { t.Fatalf("status: %q (%s)", done.Status, done.Error) }
    if len(done.Exclusions) != 2 { t.Fatalf("exclusions: %+v", done.Exclusions) }
    if done.Exclusions[0].NodeID != "a-trap" || done.Exclusions[1].NodeID != "z-trap" {
        t.Fatalf("exclusion order: %s, %s", done.Exclusions[0].NodeID, done.Exclusions[1].NodeID)
    }
}

func TestPlanSubresources(t *testing.T) {
    s := newTestServer(t)
    sc := createScenario(t, s)
    plan := startPlan(t, s, map[string]any{
        "scenarioId": sc.ID, "fleetSize": 3, "capacity": 10,
        "maxSweeps": 5, "timeBudgetSec": 5, "seed": 1,
    })
    waitPlan(t, s, plan.ID)

    get := func(sub string) *httptest.ResponseRecorder {
        rr := httptest.NewRecorder()
        s.PlanByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/plans/"+plan.ID+sub, nil))
        return rr
    }

    if rr := get(""); rr.Code != 200 { t.Fatalf("plan: %d", rr.Code) }

    rr := get("/matrix")
    if rr.Code != 200 { t.Fatalf("matrix: %d", rr.Code) }
    var mres struct {
        Matrix model.DistanceMatrix `json:"matrix"`
        Stats  model.MatrixStats    `json:"stats"`
    }
    if err := json.Unmarshal(rr.Body.Bytes(), &mres); err != nil { t.Fatalf("decode matrix: %v", err) }
    if len(mres.Matrix.IDs) != 4 || mres.Matrix.IDs[0] != "depot" { t.Fatalf("matrix ids: %v", mres.Matrix.IDs) }
    if mres.Stats.Retained != 3 { t.Fatalf("retained: %d", mres.Stats.Retained) }

    rr = get("/exclusions")
    if rr.Code != 200 { t.Fatalf("exclusions: %d", rr.Code) }

    rr = get("/audit")
    if rr.Code != 200 { t.Fatalf("audit: %d", rr.Code) }
    var ares struct {
        InvalidLegs []model.InvalidLeg `json:"invalidLegs"`
        Clean       bool               `json:"clean"`
    }
    if err := json.Unmarshal(rr.Body.Bytes(), &ares); err != nil { t.Fatalf("decode audit: %v", err) }
    if !ares.Clean || len(ares.InvalidLegs) != 0 { t.Fatalf("audit not clean: %+v", ares.InvalidLegs) }

    rr = get("/metrics")
    if rr.Code != 200 { t.Fatalf("solve metrics: %d", rr.Code) }

    if rr := get("/bogus"); rr.Code != http.StatusNotFound { t.Fatalf("unknown subresource: %d", rr.Code) }
}

func TestPlanInfeasibleFails(t *testing.T) {
    s := newTestServer(t)
    sc := createScenario(t, s)
    // total demand 6 against a single vehicle of capacity 1
    plan := startPlan(t, s, map[string]any{
        "scenarioId": sc.ID, "fleetSize": 1, "capacity": 1,
        "maxSweeps": 5, "timeBudgetSec": 5,
    })
    done := waitPlan(t, s, plan.ID)
    if done.Status != "failed" { t.Fatalf("status: got %q", done.Status) }
    if !strings.Contains(done.Error, "capacity infeasible") { t.Fatalf("error: %q", done.Error) }
}

func TestPlanUnknownScenario(t *testing.T) {
    s := newTestServer(t)
    b, _ := json.Marshal(map[string]any{"scenarioId": "nope", "fleetSize": 1, "capacity": 1})
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/v1/plans", bytes.NewReader(b))
    s.PlansHandler(rr, req)
    if rr.Code != http.StatusNotFound { t.Fatalf("got %d, want 404", rr.Code) }
}

func TestPlanDefaultsApplied(t *testing.T) {
    s := newTestServer(t)
    sc := createScenario(t, s)
    // fleetSize and capacity omitted: server defaults must fill them
    plan := startPlan(t, s, map[string]any{"scenarioId": sc.ID, "maxSweeps": 5, "timeBudgetSec": 5})
    if plan.Request.FleetSize != s.Defaults.FleetSize { t.Fatalf("fleetSize: %d", plan.Request.FleetSize) }
    if plan.Request.Capacity != s.Defaults.Capacity { t.Fatalf("capacity: %d", plan.Request.Capacity) }
    waitPlan(t, s, plan.ID)
}

func TestPlanRateLimit(t *testing.T) {
    s := newTestServer(t)
    calls := 0
    h := s.WithPlanRateLimit(func(w http.ResponseWriter, r *http.Request) {
        calls++
        w.WriteHeader(http.StatusAccepted)
    })
    var last int
    for i := 0; i < 5; i++ {
        rr := httptest.NewRecorder()
        h(rr, httptest.NewRequest(http.MethodPost, "/v1/plans", nil))
        last = rr.Code
    }
    if last != http.StatusTooManyRequests { t.Fatalf("5th request: got %d, want 429", last) }
    if calls != 3 { t.Fatalf("passed calls: got %d, want burst of 3", calls) }
}
