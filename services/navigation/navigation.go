// Package navigation is the reactive replanning loop: it merges map, goal and pose updates into
// planning requests and turns the resulting paths into waypoints for a motion controller.
package navigation

import (
	"fmt"

	"github.com/golang/geo/r2"
)

// Goal is the most recently commanded target. It persists until replaced.
type Goal struct {
	X       float64
	Y       float64
	Heading float64
}

// Point returns the goal position.
func (g Goal) Point() r2.Point {
	return r2.Point{X: g.X, Y: g.Y}
}

func (g Goal) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", g.X, g.Y, g.Heading)
}

// Waypoint is the next target handed to the motion controller.
type Waypoint struct {
	X       float64
	Y       float64
	Heading float64
}

// Point returns the waypoint position.
func (w Waypoint) Point() r2.Point {
	return r2.Point{X: w.X, Y: w.Y}
}

func (w Waypoint) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", w.X, w.Y, w.Heading)
}

// Outcome is how a planning attempt ended.
type Outcome int

const (
	// OutcomeSkipped means an input was missing and no search ran.
	OutcomeSkipped Outcome = iota
	// OutcomeFailed means the search found no path. Nothing was published.
	OutcomeFailed
	// OutcomeAtGoal means the path was too short to hold a waypoint. Only the path was published.
	OutcomeAtGoal
	// OutcomePublished means a waypoint and the path were published.
	OutcomePublished
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	case OutcomeAtGoal:
		return "at_goal"
	case OutcomePublished:
		return "published"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}
