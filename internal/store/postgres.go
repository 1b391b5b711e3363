package store

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "fleetplan/internal/model"
)

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

// EnsureSchema creates the tables if they do not exist (dev helper).
func (p *Postgres) EnsureSchema(ctx context.Context) error {
    stmts := []string{
        `CREATE TABLE IF NOT EXISTS scenarios (
            id UUID PRIMARY KEY,
            name TEXT NOT NULL DEFAULT '',
            depot_id TEXT NOT NULL,
            nodes JSONB NOT NULL,
            edges JSONB NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
        `CREATE TABLE IF NOT EXISTS plans (
            id UUID PRIMARY KEY,
            scenario_id UUID NOT NULL REFERENCES scenarios(id),
            status TEXT NOT NULL,
            error TEXT NOT NULL DEFAULT '',
            request JSONB NOT NULL,
            routes JSONB,
            exclusions JSONB,
            matrix JSONB,
            matrix_stats JSONB,
            summary JSONB,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
        `CREATE INDEX IF NOT EXISTS plans_scenario_idx ON plans (scenario_id, created_at)`,
        `CREATE TABLE IF NOT EXISTS solve_metrics (
            plan_id UUID PRIMARY KEY REFERENCES plans(id),
            metrics JSONB NOT NULL
        )`,
    }
    for _, s := range stmts {
        if _, err := p.db.ExecContext(ctx, s); err != nil {
            return err
        }
    }
    return nil
}

func (p *Postgres) CreateScenario(ctx context.Context, in model.ScenarioIn) (model.Scenario, error) {
    sc := model.Scenario{
        ID:        uuid.New().String(),
        Name:      in.Name,
        DepotID:   in.DepotID,
        Nodes:     in.Nodes,
        Edges:     in.Edges,
        CreatedAt: time.Now().UTC().Format(time.RFC3339),
    }
    nodes, err := json.Marshal(sc.Nodes)
    if err != nil {
        return model.Scenario{}, err
    }
    edges, err := json.Marshal(sc.Edges)
    if err != nil {
        return model.Scenario{}, err
    }
    _, err = p.db.ExecContext(ctx,
        `INSERT INTO scenarios (id, name, depot_id, nodes, edges) VALUES ($1,$2,$3,$4,$5)`,
        sc.ID, sc.Name, sc.DepotID, nodes, edges)
    if err != nil {
        return model.Scenario{}, err
    }
    return sc, nil
}

func (p *Postgres) GetScenario(ctx context.Context, id string) (model.Scenario, error) {
    var sc model.Scenario
    var nodes, edges []byte
    var created time.Time
    err := p.db.QueryRowContext(ctx,
        `SELECT id::text, name, depot_id, nodes, edges, created_at FROM scenarios WHERE id=$1`, id).
        Scan(&sc.ID, &sc.Name, &sc.DepotID, &nodes, &edges, &created)
    if errors.Is(err, sql.ErrNoRows) {
        return model.Scenario{}, ErrNotFound
    }
    if err != nil {
        return model.Scenario{}, err
    }
    if err := json.Unmarshal(nodes, &sc.Nodes); err != nil {
        return model.Scenario{}, err
    }
    if err := json.Unmarshal(edges, &sc.Edges); err != nil {
        return model.Scenario{}, err
    }
    sc.CreatedAt = created.UTC().Format(time.RFC3339)
    return sc, nil
}

func (p *Postgres) ListScenarios(ctx context.Context, cursor string, limit int) ([]model.Scenario, string, error) {
    if limit <= 0 {
        limit = 100
    }
    rows, err := p.db.QueryContext(ctx,
        `SELECT id::text, name, depot_id, nodes, edges, created_at FROM scenarios
         WHERE ($1 = '' OR id::text > $1) ORDER BY id LIMIT $2`, cursor, limit+1)
    if err != nil {
        return nil, "", err
    }
    defer rows.Close()
    out := []model.Scenario{}
    for rows.Next() {
        var sc model.Scenario
        var nodes, edges []byte
        var created time.Time
        if err := rows.Scan(&sc.ID, &sc.Name, &sc.DepotID, &nodes, &edges, &created); err != nil {
            return nil, "", err
        }
        if err := json.Unmarshal(nodes, &sc.Nodes); err != nil {
            return nil, "", err
        }
        if err := json.Unmarshal(edges, &sc.Edges); err != nil {
            return nil, "", err
        }
        sc.CreatedAt = created.UTC().Format(time.RFC3339)
        out = append(out, sc)
    }
    next := ""
    if len(out) > limit {
        out = out[:limit]
        next = out[len(out)-1].ID
    }
    return out, next, rows.Err()
}

func (p *Postgres) SavePlan(ctx context.Context, pl model.Plan) (model.Plan, error) {
    if pl.ID == "" {
        pl.ID = uuid.New().String()
    }
    if pl.CreatedAt == "" {
        pl.CreatedAt = time.Now().UTC().Format(time.RFC3339)
    }
    request, err := json.Marshal(pl.Request)
    if err != nil {
        return model.Plan{}, err
    }
    routes, _ := json.Marshal(pl.Routes)
    exclusions, _ := json.Marshal(pl.Exclusions)
    var mtx, stats, summary []byte
    if pl.Matrix != nil {
        if mtx, err = json.Marshal(pl.Matrix); err != nil {
            return model.Plan{}, err
        }
    }
    if pl.Stats != nil {
        stats, _ = json.Marshal(pl.Stats)
    }
    if pl.Summary != nil {
        summary, _ = json.Marshal(pl.Summary)
    }
    _, err = p.db.ExecContext(ctx,
        `INSERT INTO plans (id, scenario_id, status, error, request, routes, exclusions, matrix, matrix_stats, summary)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
         ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status, error=EXCLUDED.error,
            routes=EXCLUDED.routes, exclusions=EXCLUDED.exclusions, matrix=EXCLUDED.matrix,
            matrix_stats=EXCLUDED.matrix_stats, summary=EXCLUDED.summary`,
        pl.ID, pl.ScenarioID, pl.Status, pl.Error, request, routes, exclusions, nullable(mtx), nullable(stats), nullable(summary))
    if err != nil {
        return model.Plan{}, err
    }
    return pl, nil
}

func nullable(b []byte) any {
    if len(b) == 0 {
        return nil
    }
    return b
}

func (p *Postgres) GetPlan(ctx context.Context, id string) (model.Plan, error) {
    var pl model.Plan
    var request, routes, exclusions, mtx, stats, summary []byte
    var created time.Time
    err := p.db.QueryRowContext(ctx,
        `SELECT id::text, scenario_id::text, status, error, request, routes, exclusions, matrix, matrix_stats, summary, created_at
         FROM plans WHERE id=$1`, id).
        Scan(&pl.ID, &pl.ScenarioID, &pl.Status, &pl.Error, &request, &routes, &exclusions, &mtx, &stats, &summary, &created)
    if errors.Is(err, sql.ErrNoRows) {
        return model.Plan{}, ErrNotFound
    }
    if err != nil {
        return model.Plan{}, err
    }
    if err := decodePlanBlobs(&pl, request, routes, exclusions, mtx, stats, summary); err != nil {
        return model.Plan{}, err
    }
    pl.CreatedAt = created.UTC().Format(time.RFC3339)
    return pl, nil
}

func (p *Postgres) ListPlans(ctx context.Context, scenarioID, cursor string, limit int) ([]model.Plan, string, error) {
    if limit <= 0 {
        limit = 100
    }
    rows, err := p.db.QueryContext(ctx,
        `SELECT id::text, scenario_id::text, status, error, request, routes, exclusions, matrix, matrix_stats, summary, created_at
         FROM plans WHERE ($1 = '' OR scenario_id::text = $1) AND ($2 = '' OR id::text > $2)
         ORDER BY id LIMIT $3`, scenarioID, cursor, limit+1)
    if err != nil {
        return nil, "", err
    }
    defer rows.Close()
    out := []model.Plan{}
    for rows.Next() {
        var pl model.Plan
        var request, routes, exclusions, mtx, stats, summary []byte
        var created time.Time
        if err := rows.Scan(&pl.ID, &pl.ScenarioID, &pl.Status, &pl.Error, &request, &routes, &exclusions, &mtx, &stats, &summary, &created); err != nil {
            return nil, "", err
        }
        if err := decodePlanBlobs(&pl, request, routes, exclusions, mtx, stats, summary); err != nil {
            return nil, "", err
        }
        pl.CreatedAt = created.UTC().Format(time.RFC3339)
        out = append(out, pl)
    }
    next := ""
    if len(out) > limit {
        out = out[:limit]
        next = out[len(out)-1].ID
    }
    return out, next, rows.Err()
}

func decodePlanBlobs(pl *model.Plan, request, routes, exclusions, mtx, stats, summary []byte) error {
    if err := json.Unmarshal(request, &pl.Request); err != nil {
        return err
    }
    if len(routes) > 0 {
        if err := json.Unmarshal(routes, &pl.Routes); err != nil {
            return err
        }
    }
    if len(exclusions) > 0 {
        if err := json.Unmarshal(exclusions, &pl.Exclusions); err != nil {
            return err
        }
    }
    if len(mtx) > 0 {
        pl.Matrix = &model.DistanceMatrix{}
        if err := json.Unmarshal(mtx, pl.Matrix); err != nil {
            return err
        }
    }
    if len(stats) > 0 {
        pl.Stats = &model.MatrixStats{}
        if err := json.Unmarshal(stats, pl.Stats); err != nil {
            return err
        }
    }
    if len(summary) > 0 {
        pl.Summary = &model.PlanSummary{}
        if err := json.Unmarshal(summary, pl.Summary); err != nil {
            return err
        }
    }
    return nil
}

func (p *Postgres) SaveSolveMetrics(ctx context.Context, planID string, metrics map[string]any) error {
    data, err := json.Marshal(metrics)
    if err != nil {
        return err
    }
    _, err = p.db.ExecContext(ctx,
        `INSERT INTO solve_metrics (plan_id, metrics) VALUES ($1,$2)
         ON CONFLICT (plan_id) DO UPDATE SET metrics=EXCLUDED.metrics`, planID, data)
    return err
}

func (p *Postgres) GetSolveMetrics(ctx context.Context, planID string) (map[string]any, error) {
    var data []byte
    err := p.db.QueryRowContext(ctx, `SELECT metrics FROM solve_metrics WHERE plan_id=$1`, planID).Scan(&data)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    if err != nil {
        return nil, err
    }
    out := map[string]any{}
    if err := json.Unmarshal(data, &out); err != nil {
        return nil, err
    }
    return out, nil
}
