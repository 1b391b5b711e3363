package store

import (
    "context"
    "sync"
    "time"

    "github.com/google/uuid"

    "fleetplan/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu        sync.Mutex
    scenarios map[string]model.Scenario
    scOrder   []string // insertion order for stable listing
    plans     map[string]model.Plan
    plansBySc map[string][]string // scenarioId -> plan ids
    planOrder []string
    solveMx   map[string]map[string]any // planId -> metrics
}

func NewMemory() *Memory {
    return &Memory{
        scenarios: map[string]model.Scenario{},
        plans:     map[string]model.Plan{},
        plansBySc: map[string][]string{},
        solveMx:   map[string]map[string]any{},
    }
}

func (m *Memory) CreateScenario(ctx context.Context, in model.ScenarioIn) (model.Scenario, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    sc := model.Scenario{
        ID:        uuid.New().String(),
        Name:      in.Name,
        DepotID:   in.DepotID,
        Nodes:     in.Nodes,
        Edges:     in.Edges,
        CreatedAt: time.Now().UTC().Format(time.RFC3339),
    }
    m.scenarios[sc.ID] = sc
    m.scOrder = append(m.scOrder, sc.ID)
    return sc, nil
}

func (m *Memory) GetScenario(ctx context.Context, id string) (model.Scenario, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    sc, ok := m.scenarios[id]
    if !ok {
        return model.Scenario{}, ErrNotFound
    }
    return sc, nil
}

func (m *Memory) ListScenarios(ctx context.Context, cursor string, limit int) ([]model.Scenario, string, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    return pageScenarios(m.scenarios, m.scOrder, cursor, limit)
}

func (m *Memory) SavePlan(ctx context.Context, p model.Plan) (model.Plan, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    if p.ID == "" {
        p.ID = uuid.New().String()
    }
    if p.CreatedAt == "" {
        p.CreatedAt = time.Now().UTC().Format(time.RFC3339)
    }
    if _, exists := m.plans[p.ID]; !exists {
        m.planOrder = append(m.planOrder, p.ID)
        m.plansBySc[p.ScenarioID] = append(m.plansBySc[p.ScenarioID], p.ID)
    }
    m.plans[p.ID] = p
    return p, nil
}

func (m *Memory) GetPlan(ctx context.Context, id string) (model.Plan, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    p, ok := m.plans[id]
    if !ok {
        return model.Plan{}, ErrNotFound
    }
    return p, nil
}

func (m *Memory) ListPlans(ctx context.Context, scenarioID, cursor string, limit int) ([]model.Plan, string, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    ids := m.planOrder
    if scenarioID != "" {
        ids = m.plansBySc[scenarioID]
    }
    start := 0
    if cursor != "" {
        for i, id := range ids {
            if id == cursor {
                start = i + 1
                break
            }
        }
    }
    if limit <= 0 {
        limit = 100
    }
    out := []model.Plan{}
    var next string
    for i := start; i < len(ids) && len(out) < limit; i++ {
        out = append(out, m.plans[ids[i]])
        next = ids[i]
    }
    if start+len(out) >= len(ids) {
        next = ""
    }
    return out, next, nil
}

func (m *Memory) SaveSolveMetrics(ctx context.Context, planID string, metrics map[string]any) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    m.solveMx[planID] = metrics
    return nil
}

func (m *Memory) GetSolveMetrics(ctx context.Context, planID string) (map[string]any, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    mx, ok := m.solveMx[planID]
    if !ok {
        return nil, ErrNotFound
    }
    return mx, nil
}

func pageScenarios(byID map[string]model.Scenario, order []string, cursor string, limit int) ([]model.Scenario, string, error) {
    start := 0
    if cursor != "" {
        for i, id := range order {
            if id == cursor {
                start = i + 1
                break
            }
        }
    }
    if limit <= 0 {
        limit = 100
    }
    out := []model.Scenario{}
    var next string
    for i := start; i < len(order) && len(out) < limit; i++ {
        out = append(out, byID[order[i]])
        next = order[i]
    }
    if start+len(out) >= len(order) {
        next = ""
    }
    return out, next, nil
}
