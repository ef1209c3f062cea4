// Package spatialmath defines the rigid transforms used to locate the robot in the map frame.
package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is a translation plus a unit quaternion rotation. Poses are values and are never mutated
// once built.
type Pose struct {
	point       r3.Vector
	orientation quat.Number
}

// NewZeroPose returns a pose at (0, 0, 0) with no rotation.
func NewZeroPose() Pose {
	return Pose{orientation: quat.Number{Real: 1}}
}

// NewPose builds a pose from a translation and a rotation quaternion. The quaternion is
// normalized; a zero quaternion is treated as no rotation.
func NewPose(point r3.Vector, orientation quat.Number) Pose {
	return Pose{point: point, orientation: Normalize(orientation)}
}

// NewPoseFromPoint returns a pose at the given point with no rotation.
func NewPoseFromPoint(point r3.Vector) Pose {
	return Pose{point: point, orientation: quat.Number{Real: 1}}
}

// NewPoseFromYaw returns a planar pose at (x, y, 0) rotated by theta radians about +Z.
func NewPoseFromYaw(x, y, theta float64) Pose {
	return Pose{point: r3.Vector{X: x, Y: y}, orientation: QuatFromYaw(theta)}
}

// Point returns the translation of the pose.
func (p Pose) Point() r3.Vector {
	return p.point
}

// Orientation returns the rotation of the pose.
func (p Pose) Orientation() quat.Number {
	return p.orientation
}

// Planar projects the translation onto the XY plane.
func (p Pose) Planar() r2.Point {
	return r2.Point{X: p.point.X, Y: p.point.Y}
}

// Yaw returns the rotation about +Z, in radians in (-pi, pi].
func (p Pose) Yaw() float64 {
	return QuatToYaw(p.orientation)
}

func (p Pose) String() string {
	return fmt.Sprintf("{X:%.3f Y:%.3f Z:%.3f Yaw:%.3f}", p.point.X, p.point.Y, p.point.Z, p.Yaw())
}

// Compose returns the pose a∘b: b expressed in the frame that a is expressed in.
func Compose(a, b Pose) Pose {
	return Pose{
		point:       a.point.Add(RotateVector(a.orientation, b.point)),
		orientation: Normalize(quat.Mul(a.orientation, b.orientation)),
	}
}

// PoseInverse returns the pose that undoes p, such that Compose(p, PoseInverse(p)) is the zero pose.
func PoseInverse(p Pose) Pose {
	inv := quat.Conj(p.orientation)
	return Pose{
		point:       RotateVector(inv, p.point).Mul(-1),
		orientation: inv,
	}
}

// PoseAlmostEqual returns whether two poses are within epsilon in translation and represent the
// same rotation.
func PoseAlmostEqual(a, b Pose, epsilon float64) bool {
	return a.point.Sub(b.point).Norm() <= epsilon &&
		QuaternionAlmostEqual(a.orientation, b.orientation, epsilon)
}

// QuaternionAlmostEqual compares rotations, treating q and -q as the same rotation.
func QuaternionAlmostEqual(a, b quat.Number, tol float64) bool {
	withinTol := func(x, y quat.Number) bool {
		return math.Abs(x.Real-y.Real) <= tol &&
			math.Abs(x.Imag-y.Imag) <= tol &&
			math.Abs(x.Jmag-y.Jmag) <= tol &&
			math.Abs(x.Kmag-y.Kmag) <= tol
	}
	return withinTol(a, b) || withinTol(a, Flip(b))
}
