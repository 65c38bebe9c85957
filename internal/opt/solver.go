package opt

import "context"

// Status is the outcome vocabulary shared by the solver adapter and the
// orchestrator.
type Status int

const (
	StatusOptimal Status = iota
	StatusRejected
	StatusInfeasible
	StatusUnbounded
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusRejected:
		return "rejected"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	default:
		return "error"
	}
}

// Solution is the raw solver output: a status, the objective value, and
// one value per model column. Values is populated only for StatusOptimal.
type Solution struct {
	Status    Status
	Objective float64
	Values    []float64
	Nodes     int // search nodes explored, for diagnostics
}

// Solver is the external MILP capability consumed by the orchestrator. A
// failed solve (crash, timeout, numerical breakdown) must surface as an
// error, never as a zero-valued assignment; timeouts in particular must
// not be reported as infeasibility.
type Solver interface {
	Solve(ctx context.Context, m *Model) (Solution, error)
}
