package api

import (
    "os"
    "strings"

    "context"

    "fleetplan/internal/config"
    "fleetplan/internal/store"
)

type Server struct {
    Store    store.Store
    Broker   EventBroker
    Defaults config.Planner
    limiter  *rateLimiter
}

// NewServer creates a Server. If DATABASE_URL is unset, uses in-memory store.
func NewServer() (*Server, error) {
    dsn := os.Getenv("DATABASE_URL")
    var s store.Store
    if strings.TrimSpace(dsn) == "" {
        s = store.NewMemory()
    } else {
        sp, err := store.NewPostgres(dsn)
        if err != nil {
            return nil, err
        }
        // Create tables (dev helper)
        if os.Getenv("DB_MIGRATE") != "false" {
            if err := sp.EnsureSchema(context.Background()); err != nil {
                return nil, err
            }
        }
        s = sp
    }
    // Broker selection
    var broker EventBroker
    if os.Getenv("REDIS_URL") != "" {
        if rb, err := NewRedisBroker(); err == nil {
            broker = rb
        } else {
            broker = NewBroker()
        }
    } else {
        broker = NewBroker()
    }
    defaults, err := config.FromEnv()
    if err != nil {
        return nil, err
    }
    return &Server{Store: s, Broker: broker, Defaults: defaults, limiter: newRateLimiter()}, nil
}
