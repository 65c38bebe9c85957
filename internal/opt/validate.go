package opt

import "fmt"

// Validate rejects malformed problems before any model is built. The
// returned error names the offending field.
func Validate(p Problem) error {
	if len(p.Counties) == 0 {
		return fmt.Errorf("counties must not be empty")
	}
	if len(p.Hospitals) == 0 {
		return fmt.Errorf("hospitals must not be empty")
	}
	for _, c := range p.Counties {
		if c.Demand < 0 {
			return fmt.Errorf("county %s: demand must be >= 0, got %g", c.ID, c.Demand)
		}
	}
	for _, h := range p.Hospitals {
		if h.Capacity < 0 {
			return fmt.Errorf("hospital %s: baseCapacity must be >= 0, got %g", h.ID, h.Capacity)
		}
	}
	if p.PerDistance < 0 {
		return fmt.Errorf("costs.perDistance must be >= 0, got %g", p.PerDistance)
	}
	if p.MaxExpansion < 0 {
		return fmt.Errorf("costs.maxExpansion must be >= 0, got %g", p.MaxExpansion)
	}
	if p.FixedSetup < 0 {
		return fmt.Errorf("costs.fixedSetup must be >= 0, got %g", p.FixedSetup)
	}
	if p.PerUnit < 0 {
		return fmt.Errorf("costs.perUnit must be >= 0, got %g", p.PerUnit)
	}
	return nil
}

// AggregateFeasible reports whether total demand fits within total base
// capacity plus the maximum possible expansion. A false result proves the
// instance infeasible without a solver call.
func AggregateFeasible(p Problem) bool {
	return p.TotalDemand() <= p.TotalCapacity()+p.MaxExpansion*float64(len(p.Hospitals))
}
