package navigation

import (
	"math"

	"github.com/golang/geo/r2"

	"go.viam.com/gridnav/motionplan"
	"go.viam.com/gridnav/spatialmath"
)

// RoundToGrid snaps each coordinate to the nearest multiple of res. Halfway values round away
// from zero, so 0.125 snaps to 0.25 and -0.125 to -0.25 at a resolution of 0.25.
func RoundToGrid(p r2.Point, res float64) r2.Point {
	if res <= 0 {
		return p
	}
	return r2.Point{
		X: math.Round(p.X/res) * res,
		Y: math.Round(p.Y/res) * res,
	}
}

// PlanningWindow is the square of half-width round(horizon) around center.
func PlanningWindow(center r2.Point, horizon float64) r2.Rect {
	h := math.Round(horizon)
	return r2.RectFromPoints(
		r2.Point{X: center.X - h, Y: center.Y - h},
		r2.Point{X: center.X + h, Y: center.Y + h},
	)
}

// BuildPlanRequest snaps the agent and goal positions to the planning lattice and bounds the
// search. The window is centred on the world origin unless cfg.WindowCenteredOnAgent is set, in
// which case it follows the snapped agent position.
func BuildPlanRequest(pose spatialmath.Pose, goal Goal, cfg Config, occ motionplan.Occupancy) *motionplan.PlanRequest {
	start := RoundToGrid(pose.Planar(), cfg.PlanResolution)
	center := r2.Point{}
	if cfg.WindowCenteredOnAgent {
		center = start
	}
	return &motionplan.PlanRequest{
		Bounds:     PlanningWindow(center, cfg.PlanHorizon),
		Start:      start,
		Goal:       RoundToGrid(goal.Point(), cfg.PlanResolution),
		Occupancy:  occ,
		Resolution: cfg.PlanResolution,
	}
}
