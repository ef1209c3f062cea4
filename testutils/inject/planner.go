package inject

import (
	"context"

	"go.viam.com/gridnav/motionplan"
)

// Planner is an injected planner.
type Planner struct {
	motionplan.Planner
	PlanFunc func(ctx context.Context, req *motionplan.PlanRequest) (motionplan.Path, error)
}

// NewPlanner returns a new injected planner wrapping a real one, which may be nil.
func NewPlanner(planner motionplan.Planner) *Planner {
	return &Planner{Planner: planner}
}

// Plan calls the injected Plan or the real version.
func (p *Planner) Plan(ctx context.Context, req *motionplan.PlanRequest) (motionplan.Path, error) {
	if p.PlanFunc == nil {
		return p.Planner.Plan(ctx, req)
	}
	return p.PlanFunc(ctx, req)
}
