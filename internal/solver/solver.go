// Package solver adapts the allocation MILP description to an LP engine.
// The simplex engine (gonum) is treated as a black box; this package only
// converts the model, branches on fractional binaries, and maps engine
// outcomes onto the status vocabulary.
package solver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize/convex/lp"

	"hospalloc/internal/opt"
)

const (
	defaultLPTol    = 1e-10
	defaultMaxNodes = 100000
	intTol          = 1e-6 // integrality tolerance for binary columns
	boundTol        = 1e-9 // incumbent pruning tolerance
)

// BranchBound solves mixed binary/continuous linear programs by
// depth-first branch and bound over LP relaxations.
type BranchBound struct {
	LPTol    float64
	MaxNodes int
}

// New returns a BranchBound solver with default tolerances.
func New() *BranchBound {
	return &BranchBound{LPTol: defaultLPTol, MaxNodes: defaultMaxNodes}
}

type node struct {
	fixed map[int]float64 // binary column -> 0 or 1
}

// Solve implements opt.Solver. Infeasibility and unboundedness are
// reported through the solution status; root engine failures, node-limit
// exhaustion, and context expiry are errors (the caller must not read
// them as "no solution exists"). A subproblem whose relaxation fails
// numerically is pruned, not fatal.
func (s *BranchBound) Solve(ctx context.Context, m *opt.Model) (opt.Solution, error) {
	binaries := make([]int, 0, len(m.Vars))
	for i, v := range m.Vars {
		if v.Kind == opt.Binary {
			binaries = append(binaries, i)
		}
	}

	var (
		best     []float64
		bestObj  = math.Inf(1)
		haveBest = false
		nodes    = 0
		stack    = []node{{fixed: map[int]float64{}}}
	)

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return opt.Solution{Status: opt.StatusError, Nodes: nodes}, fmt.Errorf("milp solve aborted: %w", err)
		}
		if nodes >= s.maxNodes() {
			return opt.Solution{Status: opt.StatusError, Nodes: nodes}, fmt.Errorf("milp solve exceeded %d nodes", s.maxNodes())
		}

		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		atRoot := nodes == 0
		nodes++

		obj, x, err := s.solveRelaxation(m, n.fixed)
		switch {
		case err == nil:
			// continue below
		case errors.Is(err, lp.ErrInfeasible):
			if atRoot {
				return opt.Solution{Status: opt.StatusInfeasible, Nodes: nodes}, nil
			}
			continue
		case errors.Is(err, lp.ErrUnbounded):
			if atRoot {
				return opt.Solution{Status: opt.StatusUnbounded, Nodes: nodes}, nil
			}
			return opt.Solution{Status: opt.StatusError, Nodes: nodes}, fmt.Errorf("relaxation unbounded below root: %w", err)
		default:
			if atRoot {
				return opt.Solution{Status: opt.StatusError, Nodes: nodes}, fmt.Errorf("lp engine: %w", err)
			}
			// Numerical failure on a subproblem: prune it and keep
			// searching. The incumbent, if any, still stands.
			continue
		}

		if haveBest && obj >= bestObj-boundTol {
			continue // bound: cannot beat the incumbent
		}

		branch, frac := mostFractional(x, binaries, n.fixed)
		if branch < 0 {
			// All binaries integral: new incumbent.
			bestObj = obj
			best = append(best[:0], x...)
			haveBest = true
			continue
		}

		// Explore the branch nearest the relaxation value first (LIFO).
		near, far := 1.0, 0.0
		if frac < 0.5 {
			near, far = 0.0, 1.0
		}
		stack = append(stack, node{fixed: withFixed(n.fixed, branch, far)})
		stack = append(stack, node{fixed: withFixed(n.fixed, branch, near)})
	}

	if !haveBest {
		// Root relaxation was feasible but no integer assignment is.
		return opt.Solution{Status: opt.StatusInfeasible, Nodes: nodes}, nil
	}
	return opt.Solution{Status: opt.StatusOptimal, Objective: bestObj, Values: best, Nodes: nodes}, nil
}

func (s *BranchBound) maxNodes() int {
	if s.MaxNodes > 0 {
		return s.MaxNodes
	}
	return defaultMaxNodes
}

func (s *BranchBound) lpTol() float64 {
	if s.LPTol > 0 {
		return s.LPTol
	}
	return defaultLPTol
}

// mostFractional returns the unfixed binary column farthest from an
// integer, or -1 when all binaries are integral within tolerance.
func mostFractional(x []float64, binaries []int, fixed map[int]float64) (int, float64) {
	best, bestDist := -1, intTol
	var bestVal float64
	for _, col := range binaries {
		if _, ok := fixed[col]; ok {
			continue
		}
		v := x[col]
		dist := math.Abs(v - math.Round(v))
		if dist > bestDist {
			best, bestDist, bestVal = col, dist, v
		}
	}
	return best, bestVal
}

func withFixed(fixed map[int]float64, col int, val float64) map[int]float64 {
	out := make(map[int]float64, len(fixed)+1)
	for k, v := range fixed {
		out[k] = v
	}
	out[col] = val
	return out
}
