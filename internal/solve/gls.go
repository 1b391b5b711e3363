package solve

import (
	"context"
	"math"
	"math/rand"
	"time"

	"fleetplan/internal/model"
)

// Options tunes one solver run. The zero value gets the defaults below.
type Options struct {
	TimeBudget    time.Duration // wall clock; default 300s
	MaxSweeps     int           // deterministic budget; 0 = wall clock only
	Workers       int           // independent perturbed searches; default 1
	Seed          int64         // 0 = time-derived
	PenaltyFactor float64       // guided-search lambda; default 0.2
	Progress      func(Progress)
}

// Progress is a snapshot emitted after each improvement sweep.
type Progress struct {
	Sweep         int     `json:"sweep"`
	VehiclesUsed  int     `json:"vehiclesUsed"`
	TotalDistance float64 `json:"totalDistance"`
}

// Result is the solver output: the best feasible solution found, its
// per-route detail and the fleet summary.
type Result struct {
	Solution *Solution
	Routes   []model.Route
	Summary  model.PlanSummary
}

const (
	defaultTimeBudget = 300 * time.Second
	defaultLambda     = 0.2
	stallLimit        = 50 // consecutive sweeps without a new best before giving up
	decayEvery        = 64 // penalty half-life in escape rounds
	eps               = 1e-9
)

// Run validates the model, constructs an initial solution and improves it
// under the lexicographic objective until the budget is spent. It never
// returns a partial or constraint-violating solution: infeasibility is an
// error, and a violated invariant in an accepted solution is surfaced as
// an InvariantError rather than swallowed.
func Run(ctx context.Context, m *Model, opts Options) (*Result, error) {
	start := time.Now()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if opts.TimeBudget <= 0 {
		opts.TimeBudget = defaultTimeBudget
	}
	if opts.PenaltyFactor <= 0 {
		opts.PenaltyFactor = defaultLambda
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	initial, err := construct(m)
	if err != nil {
		return nil, err
	}
	// Construction guarantees the caps; a violation here is a defect.
	capExceeded := false
	for _, r := range initial.Routes {
		if routeDistance(m, r) > m.maxDist()+eps {
			capExceeded = true
		}
	}
	if capExceeded {
		return nil, &InvariantError{Msg: "initial construction violated the distance cap"}
	}

	deadline := start.Add(opts.TimeBudget)
	best := initial.Clone()
	bestSweeps := 0
	if opts.Workers == 1 {
		im := newImprover(m, opts, seed)
		best, bestSweeps = im.improve(ctx, initial, deadline)
	} else {
		// Independent searches on independent copies; the only shared
		// step is the final best-of comparison.
		type outcome struct {
			sol    *Solution
			sweeps int
		}
		results := make(chan outcome, opts.Workers)
		for w := 0; w < opts.Workers; w++ {
			go func(w int) {
				im := newImprover(m, opts, seed+int64(w)*7919)
				sol := initial.Clone()
				if w > 0 {
					im.perturb(sol)
				}
				got, sweeps := im.improve(ctx, sol, deadline)
				results <- outcome{sol: got, sweeps: sweeps}
			}(w)
		}
		for w := 0; w < opts.Workers; w++ {
			oc := <-results
			bestSweeps += oc.sweeps
			if lexBetter(oc.sol.VehiclesUsed(), oc.sol.TotalDistance(m), best.VehiclesUsed(), best.TotalDistance(m)) {
				best = oc.sol
			}
		}
	}

	if err := verify(m, best); err != nil {
		return nil, err
	}
	return &Result{
		Solution: best,
		Routes:   exportRoutes(m, best),
		Summary:  summarize(m, best, capExceeded, bestSweeps, time.Since(start)),
	}, nil
}

// improver is one search thread: its solution, penalties and RNG are
// private; the model and matrix are shared read-only.
type improver struct {
	m       *Model
	lambda  float64 // PenaltyFactor × mean finite arc cost
	pen     []int   // arc penalties, keyed u*n+v
	n       int
	rng     *rand.Rand
	opts    Options
	escapes int
}

func newImprover(m *Model, opts Options, seed int64) *improver {
	n := m.Matrix.Size()
	mean, cnt := 0.0, 0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j && !math.IsInf(m.Matrix.At(i, j), 1) {
				mean += m.Matrix.At(i, j)
				cnt++
			}
		}
	}
	if cnt > 0 {
		mean /= float64(cnt)
	}
	return &improver{
		m:      m,
		lambda: opts.PenaltyFactor * mean,
		pen:    make([]int, n*n),
		n:      n,
		rng:    rand.New(rand.NewSource(seed)),
		opts:   opts,
	}
}

// improve runs neighborhood sweeps until the budget or the search is
// exhausted, returning the best solution seen and the sweep count. Cancel
// and deadline checks are cooperative, at the top of each sweep, and the
// best-so-far is always returned.
func (im *improver) improve(ctx context.Context, cur *Solution, deadline time.Time) (*Solution, int) {
	best := cur.Clone()
	bestVeh, bestDist := best.VehiclesUsed(), best.TotalDistance(im.m)
	sweeps, stalled := 0, 0
	for {
		if ctx.Err() != nil || !time.Now().Before(deadline) {
			break
		}
		if im.opts.MaxSweeps > 0 && sweeps >= im.opts.MaxSweeps {
			break
		}
		sweeps++
		moved := im.sweep(cur)
		curVeh, curDist := cur.VehiclesUsed(), cur.TotalDistance(im.m)
		if lexBetter(curVeh, curDist, bestVeh, bestDist) {
			best = cur.Clone()
			bestVeh, bestDist = curVeh, curDist
			stalled = 0
		} else {
			stalled++
		}
		if im.opts.Progress != nil {
			im.opts.Progress(Progress{Sweep: sweeps, VehiclesUsed: bestVeh, TotalDistance: bestDist})
		}
		if !moved {
			// Local optimum for the penalized landscape too: raise
			// penalties on the heaviest arcs in use and try again.
			im.penalize(cur)
		}
		if stalled >= stallLimit {
			break
		}
	}
	return best, sweeps
}

// sweep scans relocate, exchange and intra-route 2-opt neighborhoods in a
// fixed order, applying every first-improvement move it finds. A move is
// applied only when it keeps capacity and distance invariants and does
// not worsen the true lexicographic objective; the penalized distances
// decide preference among the remaining candidates.
func (im *improver) sweep(s *Solution) bool {
	moved := false
	if im.relocatePass(s) {
		moved = true
	}
	if im.exchangePass(s) {
		moved = true
	}
	if im.twoOptPass(s) {
		moved = true
	}
	return moved
}

func (im *improver) relocatePass(s *Solution) bool {
	m := im.m
	moved := false
	for a := range s.Routes {
		for i := 0; i < len(s.Routes[a]); i++ {
			node := s.Routes[a][i]
			oldA := s.Routes[a]
			newA := without(oldA, i)
			relocated := false
			for b := range s.Routes {
				if b == a || len(s.Routes[b]) == 0 {
					continue
				}
				if routeDemand(m, s.Routes[b])+m.Demands[node] > m.Capacity {
					continue
				}
				oldB := s.Routes[b]
				for pos := 0; pos <= len(oldB); pos++ {
					newB := withAt(oldB, pos, node)
					if !im.accept(oldA, oldB, newA, newB, len(newA) == 0) {
						continue
					}
					s.Routes[a] = newA
					s.Routes[b] = newB
					moved, relocated = true, true
					break
				}
				if relocated {
					break
				}
			}
			if relocated {
				i-- // the route shrank under us
			}
		}
	}
	return moved
}

func (im *improver) exchangePass(s *Solution) bool {
	m := im.m
	moved := false
	for a := range s.Routes {
		for b := a + 1; b < len(s.Routes); b++ {
			for i := 0; i < len(s.Routes[a]); i++ {
				for j := 0; j < len(s.Routes[b]); j++ {
					oldA, oldB := s.Routes[a], s.Routes[b]
					na, nb := oldA[i], oldB[j]
					if routeDemand(m, oldA)-m.Demands[na]+m.Demands[nb] > m.Capacity {
						continue
					}
					if routeDemand(m, oldB)-m.Demands[nb]+m.Demands[na] > m.Capacity {
						continue
					}
					newA := swapAt(oldA, i, nb)
					newB := swapAt(oldB, j, na)
					if !im.accept(oldA, oldB, newA, newB, false) {
						continue
					}
					s.Routes[a] = newA
					s.Routes[b] = newB
					moved = true
				}
			}
		}
	}
	return moved
}

func (im *improver) twoOptPass(s *Solution) bool {
	moved := false
	for a := range s.Routes {
		route := s.Routes[a]
		for i := 0; i < len(route)-1; i++ {
			for k := i + 1; k < len(route); k++ {
				cand := reverseSegment(route, i, k)
				// Single-route move: pass the same empty counterpart.
				if !im.accept(route, nil, cand, nil, false) {
					continue
				}
				s.Routes[a] = cand
				route = cand
				moved = true
			}
		}
		// With an asymmetric matrix a reversal re-prices every arc, so
		// distances were recomputed from scratch above.
	}
	return moved
}

// accept decides one candidate move given the affected routes before and
// after. emptied reports whether the move empties a route (a primary-
// objective improvement). The true objective may never get worse; the
// penalized distance must strictly improve so penalties can steer the
// search across plateaus.
func (im *improver) accept(oldA, oldB, newA, newB []int, emptied bool) bool {
	m := im.m
	dA, dB := routeDistance(m, newA), routeDistance(m, newB)
	if math.IsInf(dA, 1) || math.IsInf(dB, 1) {
		return false
	}
	if dA > m.maxDist()+eps || dB > m.maxDist()+eps {
		return false
	}
	trueDelta := dA + dB - routeDistance(m, oldA) - routeDistance(m, oldB)
	if emptied {
		return true // fewer vehicles wins regardless of distance
	}
	if trueDelta > eps {
		return false
	}
	augDelta := im.pDist(newA) + im.pDist(newB) - im.pDist(oldA) - im.pDist(oldB)
	return augDelta < -eps
}

// pDist is the penalized route distance used for move evaluation only;
// recorded distances always come from the untouched matrix.
func (im *improver) pDist(order []int) float64 {
	if len(order) == 0 {
		return 0
	}
	total := im.arcCost(0, order[0])
	for i := 0; i+1 < len(order); i++ {
		total += im.arcCost(order[i], order[i+1])
	}
	total += im.arcCost(order[len(order)-1], 0)
	return total
}

func (im *improver) arcCost(u, v int) float64 {
	return im.m.Matrix.At(u, v) + im.lambda*float64(im.pen[u*im.n+v])
}

// penalize increments the penalty of the max-utility arcs currently in
// use, the classic guided-local-search escape: frequently kept expensive
// arcs become less attractive for subsequent evaluation.
func (im *improver) penalize(s *Solution) {
	maxUtil := 0.0
	var top []int
	walk := func(u, v int) {
		d := im.m.Matrix.At(u, v)
		if math.IsInf(d, 1) {
			return
		}
		util := d / float64(1+im.pen[u*im.n+v])
		if util > maxUtil+eps {
			maxUtil = util
			top = top[:0]
			top = append(top, u*im.n+v)
		} else if util > maxUtil-eps {
			top = append(top, u*im.n+v)
		}
	}
	for _, r := range s.Routes {
		if len(r) == 0 {
			continue
		}
		walk(0, r[0])
		for i := 0; i+1 < len(r); i++ {
			walk(r[i], r[i+1])
		}
		walk(r[len(r)-1], 0)
	}
	for _, k := range top {
		im.pen[k]++
	}
	im.escapes++
	if im.escapes%decayEvery == 0 {
		for k := range im.pen {
			im.pen[k] /= 2
		}
	}
}

// perturb applies a handful of random feasible relocations to
// differentiate a worker's starting point from its siblings'.
func (im *improver) perturb(s *Solution) {
	m := im.m
	for tries := 0; tries < 4*im.n; tries++ {
		a := im.rng.Intn(len(s.Routes))
		b := im.rng.Intn(len(s.Routes))
		if a == b || len(s.Routes[a]) == 0 || len(s.Routes[b]) == 0 {
			continue
		}
		i := im.rng.Intn(len(s.Routes[a]))
		node := s.Routes[a][i]
		if routeDemand(m, s.Routes[b])+m.Demands[node] > m.Capacity {
			continue
		}
		pos := im.rng.Intn(len(s.Routes[b]) + 1)
		newA := without(s.Routes[a], i)
		newB := withAt(s.Routes[b], pos, node)
		if routeDistance(m, newA) > m.maxDist()+eps || routeDistance(m, newB) > m.maxDist()+eps {
			continue
		}
		if math.IsInf(routeDistance(m, newB), 1) || math.IsInf(routeDistance(m, newA), 1) {
			continue
		}
		s.Routes[a] = newA
		s.Routes[b] = newB
	}
}

func without(route []int, i int) []int {
	out := make([]int, 0, len(route)-1)
	out = append(out, route[:i]...)
	return append(out, route[i+1:]...)
}

func withAt(route []int, pos, node int) []int {
	out := make([]int, 0, len(route)+1)
	out = append(out, route[:pos]...)
	out = append(out, node)
	return append(out, route[pos:]...)
}

func swapAt(route []int, i, node int) []int {
	out := append([]int(nil), route...)
	out[i] = node
	return out
}

func reverseSegment(route []int, i, k int) []int {
	out := append([]int(nil), route...)
	for a, b := i, k; a < b; a, b = a+1, b-1 {
		out[a], out[b] = out[b], out[a]
	}
	return out
}

func exportRoutes(m *Model, s *Solution) []model.Route {
	var routes []model.Route
	for slot, r := range s.Routes {
		if len(r) == 0 {
			continue
		}
		stops := make([]string, 0, len(r)+2)
		stops = append(stops, m.Matrix.IDs[0])
		for _, idx := range r {
			stops = append(stops, m.Matrix.IDs[idx])
		}
		stops = append(stops, m.Matrix.IDs[0])
		routes = append(routes, model.Route{
			Vehicle:  slot,
			Stops:    stops,
			Distance: routeDistance(m, r),
			Demand:   routeDemand(m, r),
		})
	}
	return routes
}

func summarize(m *Model, s *Solution, capExceeded bool, sweeps int, dur time.Duration) model.PlanSummary {
	sum := model.PlanSummary{
		VehiclesUsed:        s.VehiclesUsed(),
		TotalDistance:       s.TotalDistance(m),
		DistanceCapExceeded: capExceeded,
		Sweeps:              sweeps,
		SolveMs:             dur.Milliseconds(),
	}
	for _, r := range s.Routes {
		if len(r) == 0 {
			continue
		}
		if d := routeDistance(m, r); d > sum.MaxRouteDistance {
			sum.MaxRouteDistance = d
		}
	}
	if sum.VehiclesUsed > 0 {
		sum.AvgRouteDistance = sum.TotalDistance / float64(sum.VehiclesUsed)
	}
	return sum
}
