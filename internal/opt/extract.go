package opt

import (
	"fmt"
	"math"
)

// valueTol absorbs solver numerical noise: variable values below it are
// treated as exactly zero during extraction.
const valueTol = 1e-6

// breakdownTol is the relative tolerance when cross-checking the
// recomputed cost breakdown against the solver's reported objective.
const breakdownTol = 1e-3

// Allocation routes Amount patients from county index to hospital index.
type Allocation struct {
	County   int
	Hospital int
	Amount   float64
}

// SiteExpansion is the extracted expansion decision for one hospital.
type SiteExpansion struct {
	Hospital int
	Active   bool
	Units    float64
}

// Breakdown splits the objective into travel, fixed-setup, and variable
// expansion cost.
type Breakdown struct {
	Travel   float64
	Fixed    float64
	Variable float64
	Total    float64
}

// Extract interprets an optimal solution into an allocation plan,
// expansion decisions, and a cost breakdown. The breakdown is recomputed
// from the extracted values and checked against the solver objective; a
// mismatch beyond tolerance means the solve is not trustworthy and is
// reported as an error rather than returned.
func Extract(p Problem, dm Matrix, m *Model, sol Solution) ([]Allocation, []SiteExpansion, Breakdown, error) {
	if sol.Status != StatusOptimal {
		return nil, nil, Breakdown{}, fmt.Errorf("cannot extract from %s solution", sol.Status)
	}
	if len(sol.Values) < len(m.Vars) {
		return nil, nil, Breakdown{}, fmt.Errorf("solution has %d values, model has %d columns", len(sol.Values), len(m.Vars))
	}

	var plan []Allocation
	var bd Breakdown
	for i := range p.Counties {
		for j := range p.Hospitals {
			v := sol.Values[m.FlowVar(i, j)]
			if v < valueTol {
				continue
			}
			plan = append(plan, Allocation{County: i, Hospital: j, Amount: v})
			bd.Travel += p.PerDistance * dm.At(i, j) * v
		}
	}

	expansions := make([]SiteExpansion, len(p.Hospitals))
	for j := range p.Hospitals {
		active := sol.Values[m.ActiveVar(j)] > 0.5
		units := sol.Values[m.ExpandVar(j)]
		if units < valueTol {
			units = 0
		}
		expansions[j] = SiteExpansion{Hospital: j, Active: active, Units: units}
		if active {
			bd.Fixed += p.FixedSetup
		}
		bd.Variable += p.PerUnit * units
	}
	bd.Total = bd.Travel + bd.Fixed + bd.Variable

	if diff := math.Abs(bd.Total - sol.Objective); diff > breakdownTol*math.Max(1, math.Abs(sol.Objective)) {
		return nil, nil, Breakdown{}, fmt.Errorf("cost breakdown %.6f disagrees with solver objective %.6f", bd.Total, sol.Objective)
	}
	return plan, expansions, bd, nil
}
