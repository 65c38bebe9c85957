package opt

import (
	"context"
	"fmt"
	"time"
)

// Result is the terminal outcome of one orchestrated solve. Plan and
// Expansions are populated only for StatusOptimal; every other status
// carries a Detail explaining the terminal state. There is never a
// partial or best-effort allocation.
type Result struct {
	Status     Status
	Detail     string
	Objective  float64
	Plan       []Allocation
	Expansions []SiteExpansion
	Breakdown  Breakdown
	Nodes      int
	Duration   time.Duration
}

// Run sequences one solve: build the distance matrix, validate, pre-check
// aggregate feasibility, build the model, invoke the solver, extract.
//
// An invalid problem is returned as an error before any model exists. A
// provably infeasible aggregate (demand beyond base plus maximum
// expansion) short-circuits to StatusRejected without a solver call.
// Solver failures and timeouts become StatusError, never infeasibility:
// the true feasibility status is unknown.
func Run(ctx context.Context, p Problem, s Solver) (Result, error) {
	if err := Validate(p); err != nil {
		return Result{}, fmt.Errorf("invalid problem: %w", err)
	}

	start := time.Now()
	if !AggregateFeasible(p) {
		return Result{
			Status: StatusRejected,
			Detail: fmt.Sprintf("total demand %g exceeds total capacity %g plus max expansion %g",
				p.TotalDemand(), p.TotalCapacity(), p.MaxExpansion*float64(len(p.Hospitals))),
			Duration: time.Since(start),
		}, nil
	}

	dm := BuildMatrix(p.Counties, p.Hospitals)
	m := BuildModel(p, dm)

	sol, err := s.Solve(ctx, m)
	if err != nil {
		return Result{Status: StatusError, Detail: err.Error(), Nodes: sol.Nodes, Duration: time.Since(start)}, nil
	}
	if sol.Status != StatusOptimal {
		return Result{Status: sol.Status, Detail: "no feasible allocation exists", Nodes: sol.Nodes, Duration: time.Since(start)}, nil
	}

	plan, expansions, bd, err := Extract(p, dm, m, sol)
	if err != nil {
		return Result{Status: StatusError, Detail: err.Error(), Nodes: sol.Nodes, Duration: time.Since(start)}, nil
	}
	return Result{
		Status:     StatusOptimal,
		Objective:  sol.Objective,
		Plan:       plan,
		Expansions: expansions,
		Breakdown:  bd,
		Nodes:      sol.Nodes,
		Duration:   time.Since(start),
	}, nil
}
