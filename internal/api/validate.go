package api

import (
	"fmt"

	"hospalloc/internal/model"
)

func validateSolveRequest(req *model.SolveRequest) error {
	if req.TimeBudgetMs < 0 {
		return fmt.Errorf("timeBudgetMs must be >= 0")
	}
	if req.InstanceID == "" && req.Instance == nil {
		return fmt.Errorf("either instanceId or an inline instance is required")
	}
	if req.InstanceID != "" && req.Instance != nil {
		return fmt.Errorf("instanceId and inline instance are mutually exclusive")
	}
	if req.Instance != nil {
		return validateInstance(req.Instance)
	}
	return nil
}

func validateInstance(in *model.Instance) error {
	if len(in.Counties) == 0 {
		return fmt.Errorf("instance has no counties")
	}
	if len(in.Hospitals) == 0 {
		return fmt.Errorf("instance has no hospitals")
	}
	for i, c := range in.Counties {
		if c.Demand < 0 {
			return fmt.Errorf("county %d (%s): demand must be >= 0", i, c.ID)
		}
	}
	for i, h := range in.Hospitals {
		if h.BaseCapacity < 0 {
			return fmt.Errorf("hospital %d (%s): baseCapacity must be >= 0", i, h.ID)
		}
	}
	co := in.Costs
	if co.PerDistance < 0 || co.MaxExpansion < 0 || co.FixedSetup < 0 || co.PerUnit < 0 {
		return fmt.Errorf("cost constants must be >= 0")
	}
	return nil
}
