// Package motionplan contains the state-space search used to find paths across an occupancy grid.
package motionplan

import (
	"context"

	"github.com/golang/geo/r2"
)

// Occupancy answers whether a continuous 2D state is free of obstacles. States off the mapped
// area carry no evidence of an obstacle and are free; the search is limited by
// PlanRequest.Bounds, not by the map.
type Occupancy interface {
	IsFree(p r2.Point) bool
}

// PlanRequest is everything a Planner needs for one search.
type PlanRequest struct {
	// Bounds limits the states the search may visit.
	Bounds     r2.Rect
	Start      r2.Point
	Goal       r2.Point
	Occupancy  Occupancy
	Resolution float64
}

// Path is an ordered sequence of states from the start to the goal. A Path returned by a
// Planner is owned by the caller and never modified afterwards.
type Path []r2.Point

// Planner finds a path for a PlanRequest. It returns ErrNoPath when no path exists.
type Planner interface {
	Plan(ctx context.Context, req *PlanRequest) (Path, error)
}

// PlannerFunc adapts a function into a Planner.
type PlannerFunc func(ctx context.Context, req *PlanRequest) (Path, error)

// Plan calls f.
func (f PlannerFunc) Plan(ctx context.Context, req *PlanRequest) (Path, error) {
	return f(ctx, req)
}
