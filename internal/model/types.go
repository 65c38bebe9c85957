package model

// Core domain types for patient allocation problems.

// DemandSite is a county (or other catchment area) with a forecast number
// of patients that must all be placed somewhere.
type DemandSite struct {
	ID     string  `json:"id" yaml:"id"`
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Demand float64 `json:"demand" yaml:"demand"`
}

// SupplySite is a hospital offering base capacity plus optional paid
// expansion capacity up to the instance-wide cap.
type SupplySite struct {
	ID           string  `json:"id" yaml:"id"`
	X            float64 `json:"x" yaml:"x"`
	Y            float64 `json:"y" yaml:"y"`
	BaseCapacity float64 `json:"baseCapacity" yaml:"baseCapacity"`
}

// CostSpec holds the scalar cost constants of an instance.
type CostSpec struct {
	PerDistance  float64 `json:"perDistance" yaml:"perDistance"`   // travel cost per patient per distance unit
	MaxExpansion float64 `json:"maxExpansion" yaml:"maxExpansion"` // expansion cap, uniform across hospitals
	FixedSetup   float64 `json:"fixedSetup" yaml:"fixedSetup"`     // one-off cost when any expansion is used
	PerUnit      float64 `json:"perUnit" yaml:"perUnit"`           // cost per expansion unit actually used
}

// Instance is one complete allocation problem. Immutable once stored.
type Instance struct {
	ID        string       `json:"id,omitempty" yaml:"id,omitempty"`
	TenantID  string       `json:"tenantId,omitempty" yaml:"tenantId,omitempty"`
	Name      string       `json:"name,omitempty" yaml:"name,omitempty"`
	Counties  []DemandSite `json:"counties" yaml:"counties"`
	Hospitals []SupplySite `json:"hospitals" yaml:"hospitals"`
	Costs     CostSpec     `json:"costs" yaml:"costs"`
}

// Assignment is one flow edge of an allocation plan: Amount patients from
// county CountyID are routed to hospital HospitalID.
type Assignment struct {
	CountyID   string  `json:"countyId"`
	HospitalID string  `json:"hospitalId"`
	Amount     float64 `json:"amount"`
}

// Expansion is the per-hospital expansion decision. Units > 0 only when
// Active is true.
type Expansion struct {
	HospitalID string  `json:"hospitalId"`
	Active     bool    `json:"active"`
	Units      float64 `json:"units"`
}

// CostBreakdown splits the objective into its three terms, recomputed from
// the extracted plan rather than read off the solver.
type CostBreakdown struct {
	Travel   float64 `json:"travel"`
	Fixed    float64 `json:"fixed"`
	Variable float64 `json:"variable"`
	Total    float64 `json:"total"`
}

// SolveRequest asks for an instance to be solved. Either InstanceID refers
// to a stored instance or Instance carries one inline.
type SolveRequest struct {
	TenantID     string    `json:"tenantId,omitempty"`
	InstanceID   string    `json:"instanceId,omitempty"`
	Instance     *Instance `json:"instance,omitempty"`
	TimeBudgetMs int       `json:"timeBudgetMs,omitempty"`
}

// SolveRecord is the stored outcome of one solve.
type SolveRecord struct {
	ID         string        `json:"id"`
	TenantID   string        `json:"tenantId"`
	InstanceID string        `json:"instanceId,omitempty"`
	Status     string        `json:"status"` // optimal, rejected, infeasible, unbounded, error
	Detail     string        `json:"detail,omitempty"`
	Objective  float64       `json:"objective,omitempty"`
	Plan       []Assignment  `json:"plan,omitempty"`
	Expansions []Expansion   `json:"expansions,omitempty"`
	Breakdown  CostBreakdown `json:"breakdown"`
	Nodes      int           `json:"nodes,omitempty"` // branch-and-bound nodes explored
	DurationMs int64         `json:"durationMs"`
	CreatedAt  string        `json:"createdAt,omitempty"`
}

// Subscriptions for webhook notifications on solve outcomes.

type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}

// TotalDemand sums patient demand over all counties.
func (in *Instance) TotalDemand() float64 {
	total := 0.0
	for _, c := range in.Counties {
		total += c.Demand
	}
	return total
}

// TotalBaseCapacity sums base capacity over all hospitals.
func (in *Instance) TotalBaseCapacity() float64 {
	total := 0.0
	for _, h := range in.Hospitals {
		total += h.BaseCapacity
	}
	return total
}
