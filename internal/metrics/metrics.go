package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the API
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // Plans counts planning runs by outcome (completed, infeasible, error)
    Plans = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "plans_total", Help: "Planning runs by outcome."},
        []string{"outcome"},
    )
    // ExcludedNodes counts nodes dropped by the matrix builder, by reason
    ExcludedNodes = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "excluded_nodes_total", Help: "Nodes excluded from the distance matrix, by reason."},
        []string{"reason"},
    )
    // SolveDuration tracks end-to-end solve durations in seconds
    SolveDuration = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "solve_duration_seconds", Help: "CVRP solve duration in seconds.", Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30, 60, 300, 600}},
    )
    // MatrixDensity observes the finite-entry density of built matrices
    MatrixDensity = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "matrix_density", Help: "Fraction of finite off-diagonal matrix entries.", Buckets: []float64{0.1, 0.25, 0.5, 0.75, 0.9, 0.95, 0.99, 1}},
    )
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
    regOnce.Do(func() {
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(Plans)
        Registry.MustRegister(ExcludedNodes)
        Registry.MustRegister(SolveDuration)
        Registry.MustRegister(MatrixDensity)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
