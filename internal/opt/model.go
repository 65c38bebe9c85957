package opt

import "math"

// VarKind distinguishes continuous from binary decision variables.
type VarKind uint8

const (
	Continuous VarKind = iota
	Binary
)

// Variable is one column of the MILP: its domain kind, bounds, and
// objective coefficient (minimization).
type Variable struct {
	Kind  VarKind
	Cost  float64
	Lower float64
	Upper float64 // math.Inf(1) when unbounded above
}

// Term is one coefficient of a linear constraint row.
type Term struct {
	Var  int
	Coef float64
}

// Constraint is an interval row Lower <= terms <= Upper. Lower == Upper
// expresses equality; an infinite bound leaves that side open.
type Constraint struct {
	Lower float64
	Upper float64
	Terms []Term
}

// Model is an immutable MILP description: build it once, hand it to a
// Solver. Columns are addressed by integer index: flows first, then
// activation binaries, then expansion-usage columns.
type Model struct {
	Vars []Variable
	Cons []Constraint

	nCounties  int
	nHospitals int
}

// FlowVar returns the column index of flow[county i][hospital j].
func (m *Model) FlowVar(i, j int) int { return i*m.nHospitals + j }

// ActiveVar returns the column index of the activation binary for hospital j.
func (m *Model) ActiveVar(j int) int { return m.nCounties*m.nHospitals + j }

// ExpandVar returns the column index of expansion usage for hospital j.
func (m *Model) ExpandVar(j int) int { return m.nCounties*m.nHospitals + m.nHospitals + j }

// BuildModel assembles the allocation MILP from a problem and its distance
// matrix:
//
//	min  sum perDistance*dist[i][j]*flow[i][j] + sum fixedSetup*active[j] + sum perUnit*expand[j]
//	s.t. sum_j flow[i][j]  = demand[i]                 for every county i
//	     sum_i flow[i][j] <= capacity[j] + expand[j]   for every hospital j
//	     expand[j]        <= maxExpansion * active[j]  for every hospital j
//
// The last row both caps usage and forces activation whenever any
// expansion is used; it must stay a single linking row, splitting it
// changes the feasible region.
func BuildModel(p Problem, dm Matrix) *Model {
	nc, nh := len(p.Counties), len(p.Hospitals)
	m := &Model{
		Vars:       make([]Variable, 0, nc*nh+2*nh),
		Cons:       make([]Constraint, 0, nc+2*nh),
		nCounties:  nc,
		nHospitals: nh,
	}

	inf := math.Inf(1)
	for i := 0; i < nc; i++ {
		for j := 0; j < nh; j++ {
			m.Vars = append(m.Vars, Variable{Kind: Continuous, Cost: p.PerDistance * dm.At(i, j), Upper: inf})
		}
	}
	for j := 0; j < nh; j++ {
		m.Vars = append(m.Vars, Variable{Kind: Binary, Cost: p.FixedSetup, Upper: 1})
	}
	for j := 0; j < nh; j++ {
		m.Vars = append(m.Vars, Variable{Kind: Continuous, Cost: p.PerUnit, Upper: p.MaxExpansion})
	}

	// Demand satisfaction: every patient is placed, exactly.
	for i := 0; i < nc; i++ {
		terms := make([]Term, nh)
		for j := 0; j < nh; j++ {
			terms[j] = Term{Var: m.FlowVar(i, j), Coef: 1}
		}
		m.Cons = append(m.Cons, Constraint{Lower: p.Counties[i].Demand, Upper: p.Counties[i].Demand, Terms: terms})
	}

	// Capacity: inflow bounded by base capacity plus purchased expansion.
	for j := 0; j < nh; j++ {
		terms := make([]Term, 0, nc+1)
		for i := 0; i < nc; i++ {
			terms = append(terms, Term{Var: m.FlowVar(i, j), Coef: 1})
		}
		terms = append(terms, Term{Var: m.ExpandVar(j), Coef: -1})
		m.Cons = append(m.Cons, Constraint{Lower: math.Inf(-1), Upper: p.Hospitals[j].Capacity, Terms: terms})
	}

	// Linking: expand[j] - maxExpansion*active[j] <= 0.
	for j := 0; j < nh; j++ {
		m.Cons = append(m.Cons, Constraint{
			Lower: math.Inf(-1),
			Upper: 0,
			Terms: []Term{{Var: m.ExpandVar(j), Coef: 1}, {Var: m.ActiveVar(j), Coef: -p.MaxExpansion}},
		})
	}

	return m
}
