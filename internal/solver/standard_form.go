package solver

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"hospalloc/internal/opt"
)

// sfRow is one equality row of the standard form under construction.
// slack > 0 appends a +1 slack column (<= rows), slack < 0 a -1 surplus
// column (>= rows), slack == 0 no extra column (equalities).
type sfRow struct {
	terms []opt.Term
	slack int
	rhs   float64
}

// feasTol bounds the constraint residual accepted for a row whose
// columns are all fixed.
const feasTol = 1e-9

// solveRelaxation converts the model plus the node's binary fixings to
// standard equality form (min c'x, Ax = b, x >= 0) and runs one simplex
// solve. Fixed columns are substituted out rather than pinned with x=val
// equality rows: pinned columns stack redundant rows onto the bound and
// linking structure and hand phase one a singular basis. The returned
// vector is in model coordinates, fixed values included.
func (s *BranchBound) solveRelaxation(m *opt.Model, fixed map[int]float64) (float64, []float64, error) {
	colOf := make([]int, len(m.Vars)) // model column -> reduced column, -1 if fixed
	nFree := 0
	objConst := 0.0
	for col, v := range m.Vars {
		if val, ok := fixed[col]; ok {
			colOf[col] = -1
			objConst += v.Cost * val
			continue
		}
		colOf[col] = nFree
		nFree++
	}

	rows := make([]sfRow, 0, len(m.Cons)+nFree)
	for _, c := range m.Cons {
		terms := make([]opt.Term, 0, len(c.Terms))
		shift := 0.0
		for _, t := range c.Terms {
			if val, ok := fixed[t.Var]; ok {
				shift += t.Coef * val
				continue
			}
			terms = append(terms, opt.Term{Var: colOf[t.Var], Coef: t.Coef})
		}
		lower, upper := c.Lower-shift, c.Upper-shift
		if len(terms) == 0 {
			// Every column fixed: the row is a constant, check it.
			if lower > feasTol || upper < -feasTol {
				return 0, nil, lp.ErrInfeasible
			}
			continue
		}
		switch {
		case c.Lower == c.Upper:
			rows = append(rows, sfRow{terms: terms, rhs: upper})
		default:
			if !math.IsInf(upper, 1) {
				rows = append(rows, sfRow{terms: terms, slack: 1, rhs: upper})
			}
			if !math.IsInf(lower, -1) {
				rows = append(rows, sfRow{terms: terms, slack: -1, rhs: lower})
			}
		}
	}

	for col, v := range m.Vars {
		rc := colOf[col]
		if rc < 0 {
			continue
		}
		if !math.IsInf(v.Upper, 1) {
			rows = append(rows, sfRow{terms: []opt.Term{{Var: rc, Coef: 1}}, slack: 1, rhs: v.Upper})
		}
		if v.Lower > 0 {
			rows = append(rows, sfRow{terms: []opt.Term{{Var: rc, Coef: 1}}, slack: -1, rhs: v.Lower})
		}
	}

	nSlack := 0
	for _, r := range rows {
		if r.slack != 0 {
			nSlack++
		}
	}
	nCols := nFree + nSlack

	c := make([]float64, nCols)
	for col, v := range m.Vars {
		if rc := colOf[col]; rc >= 0 {
			c[rc] = v.Cost
		}
	}

	a := mat.NewDense(len(rows), nCols, nil)
	b := make([]float64, len(rows))
	slackCol := nFree
	for i, r := range rows {
		sign := 1.0
		if r.rhs < 0 {
			sign = -1 // simplex phase one wants b >= 0; flip the whole row
		}
		for _, t := range r.terms {
			a.Set(i, t.Var, sign*t.Coef)
		}
		if r.slack != 0 {
			a.Set(i, slackCol, sign*float64(r.slack))
			slackCol++
		}
		b[i] = sign * r.rhs
	}

	obj, xr, err := lp.Simplex(c, a, b, s.lpTol(), nil)
	if err != nil {
		return 0, nil, err
	}

	x := make([]float64, len(m.Vars))
	for col := range m.Vars {
		if val, ok := fixed[col]; ok {
			x[col] = val
			continue
		}
		x[col] = xr[colOf[col]]
	}
	return obj + objConst, x, nil
}
