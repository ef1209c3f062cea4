package ros

import (
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/gridnav/motionplan"
	"go.viam.com/gridnav/occupancy"
	"go.viam.com/gridnav/referenceframe"
	"go.viam.com/gridnav/services/navigation"
	"go.viam.com/gridnav/spatialmath"
)

// GridMetadata converts map metadata to the navigator's grid layout.
func (m MapMetaData) GridMetadata() occupancy.GridMetadata {
	return occupancy.GridMetadata{
		Width:      int(m.Width),
		Height:     int(m.Height),
		Resolution: float64(m.Resolution),
		Origin:     r2.Point{X: m.Origin.Position.X, Y: m.Origin.Position.Y},
	}
}

// Spatial converts a ROS pose.
func (p Pose) Spatial() spatialmath.Pose {
	return spatialmath.NewPose(
		r3.Vector{X: p.Position.X, Y: p.Position.Y, Z: p.Position.Z},
		p.Orientation.quat(),
	)
}

func (q Quaternion) quat() quat.Number {
	// an all-zero quaternion is how many publishers leave orientation unset
	if q == (Quaternion{}) {
		return quat.Number{Real: 1}
	}
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

// Stamped converts a transform for insertion into a TransformBuffer.
func (ts TransformStamped) Stamped(static bool) referenceframe.StampedTransform {
	return referenceframe.StampedTransform{
		Parent: ts.Header.FrameID,
		Child:  ts.ChildFrameID,
		Stamp:  ts.Header.Stamp.Time(),
		Pose: spatialmath.NewPose(
			r3.Vector{X: ts.Transform.Translation.X, Y: ts.Transform.Translation.Y, Z: ts.Transform.Translation.Z},
			ts.Transform.Rotation.quat(),
		),
		Static: static,
	}
}

// GoalFromMultiArray reads a goal laid out as [x, y, heading].
func GoalFromMultiArray(msg Float32MultiArray) (navigation.Goal, error) {
	if len(msg.Data) < 3 {
		return navigation.Goal{}, errors.Errorf("goal needs [x, y, heading], got %d values", len(msg.Data))
	}
	return navigation.Goal{X: float64(msg.Data[0]), Y: float64(msg.Data[1]), Heading: float64(msg.Data[2])}, nil
}

// WaypointMultiArray lays a waypoint out as [x, y, heading].
func WaypointMultiArray(wp navigation.Waypoint) Float32MultiArray {
	return Float32MultiArray{
		Layout: MultiArrayLayout{Dim: []MultiArrayDimension{{Label: "pose", Size: 3, Stride: 3}}},
		Data:   []float32{float32(wp.X), float32(wp.Y), float32(wp.Heading)},
	}
}

// PathMessage builds a nav_msgs/Path with every pose labelled with frame.
func PathMessage(frame string, path motionplan.Path, stamp time.Time) Path {
	header := Header{Stamp: FromTime(stamp), FrameID: frame}
	return Path{
		Header: header,
		Poses: lo.Map(path, func(p r2.Point, _ int) PoseStamped {
			return PoseStamped{
				Header: header,
				Pose:   Pose{Position: Vector3{X: p.X, Y: p.Y}, Orientation: Quaternion{W: 1}},
			}
		}),
	}
}

// Points returns the positions of a path message.
func (p Path) Points() motionplan.Path {
	return lo.Map(p.Poses, func(ps PoseStamped, _ int) r2.Point {
		return r2.Point{X: ps.Pose.Position.X, Y: ps.Pose.Position.Y}
	})
}
