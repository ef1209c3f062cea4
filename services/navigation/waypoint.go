package navigation

import (
	"math"

	"go.viam.com/gridnav/motionplan"
	"go.viam.com/gridnav/spatialmath"
)

// ExtractWaypoint picks path[lookahead] as the next waypoint. A path no longer than lookahead
// means the agent is already at the goal and yields no waypoint. When the waypoint is the last
// state of the path it keeps the commanded goal heading; otherwise it points from the agent
// toward the waypoint.
func ExtractWaypoint(path motionplan.Path, pose spatialmath.Pose, goal Goal, lookahead int) (Waypoint, bool) {
	if lookahead < 0 || len(path) <= lookahead {
		return Waypoint{}, false
	}
	wp := path[lookahead]
	heading := goal.Heading
	if len(path) > lookahead+1 {
		here := pose.Planar()
		heading = math.Atan2(wp.Y-here.Y, wp.X-here.X)
	}
	return Waypoint{X: wp.X, Y: wp.Y, Heading: heading}, true
}
