// Package config loads planner defaults from an optional YAML file named
// by PLANNER_CONFIG. Request fields always win over file values; file
// values win over the built-in defaults.
package config

import (
    "fmt"
    "os"

    "gopkg.in/yaml.v3"

    "fleetplan/internal/model"
)

// Planner holds the operational defaults applied to plan requests that
// leave the corresponding field unset.
type Planner struct {
    FleetSize          int      `yaml:"fleetSize"`
    Capacity           int      `yaml:"capacity"`
    MaxDistance        float64  `yaml:"maxDistance"`
    TimeBudgetSec      int      `yaml:"timeBudgetSec"`
    Workers            int      `yaml:"workers"`
    DenylistedSegments []string `yaml:"denylistedSegments"` // default: empty, on purpose
    ManualExclusions   []string `yaml:"manualExclusions"`   // default: empty, on purpose
}

// Default mirrors the planning parameters the system shipped with.
func Default() Planner {
    return Planner{
        FleetSize:     15,
        Capacity:      100,
        TimeBudgetSec: 300,
    }
}

// Load reads path into the defaults. An empty path returns Default().
func Load(path string) (Planner, error) {
    cfg := Default()
    if path == "" {
        return cfg, nil
    }
    data, err := os.ReadFile(path)
    if err != nil {
        return cfg, fmt.Errorf("config: read %s: %w", path, err)
    }
    if err := yaml.Unmarshal(data, &cfg); err != nil {
        return cfg, fmt.Errorf("config: parse %s: %w", path, err)
    }
    return cfg, nil
}

// FromEnv loads the file named by PLANNER_CONFIG, if set.
func FromEnv() (Planner, error) {
    return Load(os.Getenv("PLANNER_CONFIG"))
}

// Apply fills the unset fields of a plan request from the defaults.
func (c Planner) Apply(req *model.PlanRequest) {
    if req.FleetSize == 0 {
        req.FleetSize = c.FleetSize
    }
    if req.Capacity == 0 {
        req.Capacity = c.Capacity
    }
    if req.MaxDistance == 0 {
        req.MaxDistance = c.MaxDistance
    }
    if req.TimeBudgetSec == 0 {
        req.TimeBudgetSec = c.TimeBudgetSec
    }
    if req.Workers == 0 {
        req.Workers = c.Workers
    }
    if req.DenylistedSegments == nil {
        req.DenylistedSegments = c.DenylistedSegments
    }
    if req.ManualExclusions == nil {
        req.ManualExclusions = c.ManualExclusions
    }
}
