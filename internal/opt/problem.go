package opt

// County is a demand site: a catchment area whose patients must all be
// placed at some hospital.
type County struct {
	ID     string
	X, Y   float64
	Demand float64
}

// Hospital is a supply site with base capacity and optional paid expansion.
type Hospital struct {
	ID       string
	X, Y     float64
	Capacity float64
}

// Problem is one allocation instance. All fields are fixed for the
// duration of a solve; the orchestrator owns the value exclusively.
type Problem struct {
	Counties  []County
	Hospitals []Hospital

	PerDistance  float64 // travel cost per patient per distance unit
	MaxExpansion float64 // expansion cap per hospital
	FixedSetup   float64 // one-off activation cost
	PerUnit      float64 // cost per expansion unit used
}

// TotalDemand sums demand over all counties.
func (p Problem) TotalDemand() float64 {
	total := 0.0
	for _, c := range p.Counties {
		total += c.Demand
	}
	return total
}

// TotalCapacity sums base capacity over all hospitals.
func (p Problem) TotalCapacity() float64 {
	total := 0.0
	for _, h := range p.Hospitals {
		total += h.Capacity
	}
	return total
}
