package solver

import (
	"context"
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/optimize/convex/lp"

	"hospalloc/internal/opt"
)

// twoSiteModel is a small allocation MILP with a known optimum: one
// county of 30 patients, two hospitals of capacity 12 and 8, per-site
// expansion cap 15, so ten units must be bought at the closer site.
func twoSiteModel() (opt.Problem, *opt.Model) {
	p := opt.Problem{
		Counties:     []opt.County{{ID: "c", X: 0, Y: 0, Demand: 30}},
		Hospitals:    []opt.Hospital{{ID: "h1", X: 1, Y: 0, Capacity: 12}, {ID: "h2", X: 0, Y: 2, Capacity: 8}},
		PerDistance:  1,
		MaxExpansion: 15,
		FixedSetup:   100,
		PerUnit:      3,
	}
	return p, opt.BuildModel(p, opt.BuildMatrix(p.Counties, p.Hospitals))
}

func TestSolveOptimal(t *testing.T) {
	p, m := twoSiteModel()
	sol, err := New().Solve(context.Background(), m)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if sol.Status != opt.StatusOptimal {
		t.Fatalf("status %v", sol.Status)
	}
	// h1 takes 22 at distance 1, h2 takes 8 at distance 2, one setup,
	// ten units: 22 + 16 + 100 + 30 = 168.
	if math.Abs(sol.Objective-168) > 1e-6 {
		t.Fatalf("objective %g, want 168", sol.Objective)
	}
	if len(sol.Values) != len(m.Vars) {
		t.Fatalf("%d values, want %d", len(sol.Values), len(m.Vars))
	}
	// Binaries must come back integral.
	for j := 0; j < len(p.Hospitals); j++ {
		v := sol.Values[m.ActiveVar(j)]
		if math.Abs(v-math.Round(v)) > 1e-6 {
			t.Fatalf("activation %d fractional: %g", j, v)
		}
	}
	if sol.Nodes < 1 {
		t.Fatalf("nodes %d", sol.Nodes)
	}
}

func TestSolveInfeasible(t *testing.T) {
	// Demand 30 against base 20 and a ceiling of 20+2*2 = 24: even full
	// expansion cannot cover demand, so the root relaxation has no
	// feasible point.
	p := opt.Problem{
		Counties:     []opt.County{{ID: "c", Demand: 30}},
		Hospitals:    []opt.Hospital{{ID: "h1", Capacity: 12}, {ID: "h2", Capacity: 8}},
		PerDistance:  1,
		MaxExpansion: 2,
		FixedSetup:   100,
		PerUnit:      3,
	}
	m := opt.BuildModel(p, opt.BuildMatrix(p.Counties, p.Hospitals))
	sol, err := New().Solve(context.Background(), m)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if sol.Status != opt.StatusInfeasible {
		t.Fatalf("status %v, want infeasible", sol.Status)
	}
}

func TestSolveContextCancelled(t *testing.T) {
	_, m := twoSiteModel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Solve(ctx, m)
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestSolveNodeLimit(t *testing.T) {
	_, m := twoSiteModel()
	s := &BranchBound{MaxNodes: 1, LPTol: defaultLPTol}
	// The root relaxation is fractional here, so one node cannot finish.
	_, err := s.Solve(context.Background(), m)
	if err == nil {
		t.Fatal("expected node-limit error")
	}
}

func TestSolvePureLP(t *testing.T) {
	// No expansion pressure: demand fits base capacity, every binary
	// stays zero and the root relaxation is already integral.
	p := opt.Problem{
		Counties:     []opt.County{{ID: "c", X: 0, Y: 0, Demand: 10}},
		Hospitals:    []opt.Hospital{{ID: "h", X: 3, Y: 4, Capacity: 20}},
		PerDistance:  2,
		MaxExpansion: 5,
		FixedSetup:   1000,
		PerUnit:      50,
	}
	m := opt.BuildModel(p, opt.BuildMatrix(p.Counties, p.Hospitals))
	sol, err := New().Solve(context.Background(), m)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if sol.Status != opt.StatusOptimal {
		t.Fatalf("status %v", sol.Status)
	}
	if math.Abs(sol.Objective-100) > 1e-6 {
		t.Fatalf("objective %g, want 100", sol.Objective)
	}
	if sol.Nodes != 1 {
		t.Fatalf("nodes %d, want 1 for an integral root", sol.Nodes)
	}
}

func TestMostFractional(t *testing.T) {
	x := []float64{0.0, 0.3, 0.45, 0.99}
	binaries := []int{0, 1, 2, 3}
	col, frac := mostFractional(x, binaries, nil)
	if col != 2 {
		t.Fatalf("picked column %d, want 2", col)
	}
	if frac != 0.45 {
		t.Fatalf("frac %g", frac)
	}

	// Fixed columns are skipped even when fractional.
	col, _ = mostFractional(x, binaries, map[int]float64{2: 0})
	if col != 1 {
		t.Fatalf("picked column %d, want 1", col)
	}

	// All integral within tolerance.
	col, _ = mostFractional([]float64{1.0, 0.0000001}, []int{0, 1}, nil)
	if col != -1 {
		t.Fatalf("picked column %d, want -1", col)
	}
}

func TestSolveRelaxationSubstitutesFixed(t *testing.T) {
	// Fixed binaries must leave the reduced LP entirely: no x=val rows,
	// values echoed back in model coordinates, fixed costs in the
	// objective. Both sites forced open: travel 22+16, expansion 30,
	// setups 200.
	p, m := twoSiteModel()
	fixed := map[int]float64{m.ActiveVar(0): 1, m.ActiveVar(1): 1}
	obj, x, err := New().solveRelaxation(m, fixed)
	if err != nil {
		t.Fatalf("solveRelaxation: %v", err)
	}
	if len(x) != len(m.Vars) {
		t.Fatalf("%d values, want %d", len(x), len(m.Vars))
	}
	for j := 0; j < len(p.Hospitals); j++ {
		if x[m.ActiveVar(j)] != 1 {
			t.Fatalf("activation %d = %g, want the fixed value 1", j, x[m.ActiveVar(j)])
		}
	}
	if math.Abs(obj-268) > 1e-6 {
		t.Fatalf("objective %g, want 268", obj)
	}
}

func TestSolveRelaxationFixedRowInfeasible(t *testing.T) {
	// A row whose columns are all fixed reduces to a constant; a violated
	// constant must surface as infeasibility without a simplex call.
	m := &opt.Model{
		Vars: []opt.Variable{{Kind: opt.Binary, Cost: 1, Lower: 0, Upper: 1}},
		Cons: []opt.Constraint{{Lower: 1, Upper: 1, Terms: []opt.Term{{Var: 0, Coef: 1}}}},
	}
	_, _, err := New().solveRelaxation(m, map[int]float64{0: 0})
	if !errors.Is(err, lp.ErrInfeasible) {
		t.Fatalf("err %v, want lp.ErrInfeasible", err)
	}
}

func TestWithFixedCopies(t *testing.T) {
	base := map[int]float64{1: 0}
	out := withFixed(base, 2, 1)
	if len(base) != 1 {
		t.Fatal("parent fixing mutated")
	}
	if out[1] != 0 || out[2] != 1 {
		t.Fatalf("bad child fixing: %v", out)
	}
}
