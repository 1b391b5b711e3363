package api

import (
    "net"
    "net/http"
    "sync"

    "golang.org/x/time/rate"
)

// rateLimiter throttles plan creation per remote address. Solving is the
// expensive operation in this service; a runaway client must not be able
// to queue unbounded solver work.
type rateLimiter struct {
    mu      sync.Mutex
    clients map[string]*rate.Limiter
    limit   rate.Limit
    burst   int
}

func newRateLimiter() *rateLimiter {
    // one solve per 2s sustained, short bursts allowed
    return &rateLimiter{clients: map[string]*rate.Limiter{}, limit: rate.Limit(0.5), burst: 3}
}

func (rl *rateLimiter) allow(remoteAddr string) bool {
    host, _, err := net.SplitHostPort(remoteAddr)
    if err != nil {
        host = remoteAddr
    }
    rl.mu.Lock()
    lim := rl.clients[host]
    if lim == nil {
        lim = rate.NewLimiter(rl.limit, rl.burst)
        rl.clients[host] = lim
    }
    rl.mu.Unlock()
    return lim.Allow()
}

// WithPlanRateLimit guards a handler with the per-client limiter.
func (s *Server) WithPlanRateLimit(next http.HandlerFunc) http.HandlerFunc {
    return func(w http.ResponseWriter, r *http.Request) {
        if !s.limiter.allow(r.RemoteAddr) {
            writeProblem(w, http.StatusTooManyRequests, "Rate limited", "too many plan requests; slow down", r.URL.Path)
            return
        }
        next(w, r)
    }
}
