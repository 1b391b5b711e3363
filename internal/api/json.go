package api

import (
    "encoding/json"
    "errors"
    "net/http"

    "fleetplan/internal/planner"
    "fleetplan/internal/store"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
    Type     string `json:"type"`
    Title    string `json:"title"`
    Status   int    `json:"status"`
    Detail   string `json:"detail,omitempty"`
    Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
    writeJSON(w, status, Problem{
        Type:     "about:blank",
        Title:    title,
        Status:   status,
        Detail:   detail,
        Instance: instance,
    })
}

// writeError maps store and planner errors onto problem responses:
// missing records are 404, infeasible or misconfigured scenarios are 422
// (the caller can adjust parameters and retry), everything else is 500.
func writeError(w http.ResponseWriter, err error, instance string) {
    switch {
    case errors.Is(err, store.ErrNotFound):
        writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), instance)
    case planner.Fatal(err):
        writeProblem(w, http.StatusUnprocessableEntity, "Plan infeasible", err.Error(), instance)
    default:
        writeProblem(w, http.StatusInternalServerError, "Internal error", err.Error(), instance)
    }
}
