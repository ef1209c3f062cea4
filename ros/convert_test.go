package ros

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"go.viam.com/test"

	"go.viam.com/gridnav/motionplan"
	"go.viam.com/gridnav/occupancy"
	"go.viam.com/gridnav/services/navigation"
)

func TestGridMetadata(t *testing.T) {
	var msg MapMetaData
	raw := `{"map_load_time": {"secs": 12, "nsecs": 0}, "resolution": 0.05, "width": 384, "height": 320,
		"origin": {"position": {"x": -10, "y": -8.5, "z": 0}, "orientation": {"x": 0, "y": 0, "z": 0, "w": 1}}}`
	test.That(t, json.Unmarshal([]byte(raw), &msg), test.ShouldBeNil)

	meta := msg.GridMetadata()
	test.That(t, meta.Width, test.ShouldEqual, 384)
	test.That(t, meta.Height, test.ShouldEqual, 320)
	test.That(t, meta.Resolution, test.ShouldAlmostEqual, 0.05, 1e-7)
	test.That(t, meta.Origin, test.ShouldResemble, r2.Point{X: -10, Y: -8.5})
	test.That(t, meta.Valid(), test.ShouldBeTrue)
}

func TestOccupancyGridDecode(t *testing.T) {
	var msg OccupancyGrid
	raw := `{"header": {"seq": 3, "stamp": {"secs": 1, "nsecs": 5}, "frame_id": "map"},
		"info": {"resolution": 1, "width": 2, "height": 2, "origin": {"position": {}, "orientation": {}}},
		"data": [0, 100, -1, 50]}`
	test.That(t, json.Unmarshal([]byte(raw), &msg), test.ShouldBeNil)
	test.That(t, msg.Data, test.ShouldResemble, []int8{0, 100, occupancy.Unknown, 50})
	test.That(t, msg.Header.Stamp.Time(), test.ShouldEqual, time.Unix(1, 5))
}

func TestTime(t *testing.T) {
	test.That(t, Time{}.Time().IsZero(), test.ShouldBeTrue)
	test.That(t, FromTime(time.Time{}), test.ShouldResemble, Time{})
	stamp := time.Unix(1700000000, 250)
	test.That(t, FromTime(stamp), test.ShouldResemble, Time{Secs: 1700000000, Nsecs: 250})
	test.That(t, FromTime(stamp).Time().Equal(stamp), test.ShouldBeTrue)
}

func TestStampedTransform(t *testing.T) {
	half := math.Sqrt2 / 2
	ts := TransformStamped{
		Header:       Header{FrameID: "odom", Stamp: Time{Secs: 10}},
		ChildFrameID: "base_footprint",
		Transform: Transform{
			Translation: Vector3{X: 1, Y: 2},
			Rotation:    Quaternion{Z: half, W: half},
		},
	}
	st := ts.Stamped(false)
	test.That(t, st.Parent, test.ShouldEqual, "odom")
	test.That(t, st.Child, test.ShouldEqual, "base_footprint")
	test.That(t, st.Stamp, test.ShouldEqual, time.Unix(10, 0))
	test.That(t, st.Static, test.ShouldBeFalse)
	test.That(t, st.Pose.Yaw(), test.ShouldAlmostEqual, math.Pi/2)
	test.That(t, ts.Stamped(true).Static, test.ShouldBeTrue)

	// unset orientation is treated as identity
	unset := Pose{Position: Vector3{X: 4}}.Spatial()
	test.That(t, unset.Yaw(), test.ShouldAlmostEqual, 0.)
	test.That(t, unset.Planar(), test.ShouldResemble, r2.Point{X: 4})
}

func TestGoalFromMultiArray(t *testing.T) {
	goal, err := GoalFromMultiArray(Float32MultiArray{Data: []float32{1.5, -2, 0.25}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, goal, test.ShouldResemble, navigation.Goal{X: 1.5, Y: -2, Heading: 0.25})

	// extra values are ignored
	goal, err = GoalFromMultiArray(Float32MultiArray{Data: []float32{1, 1, 0, 9}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, goal.Point(), test.ShouldResemble, r2.Point{X: 1, Y: 1})

	_, err = GoalFromMultiArray(Float32MultiArray{Data: []float32{1, 1}})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "got 2 values")
}

func TestPathMessage(t *testing.T) {
	path := motionplan.Path{{X: 0, Y: 0}, {X: 0.25, Y: 0}, {X: 0.5, Y: 0.25}}
	stamp := time.Unix(42, 0)
	msg := PathMessage("map", path, stamp)

	test.That(t, msg.Header.FrameID, test.ShouldEqual, "map")
	test.That(t, msg.Header.Stamp, test.ShouldResemble, Time{Secs: 42})
	test.That(t, len(msg.Poses), test.ShouldEqual, 3)
	for _, pose := range msg.Poses {
		test.That(t, pose.Header.FrameID, test.ShouldEqual, "map")
		test.That(t, pose.Pose.Orientation, test.ShouldResemble, Quaternion{W: 1})
	}
	test.That(t, msg.Points(), test.ShouldResemble, path)

	raw, err := json.Marshal(WaypointMultiArray(navigation.Waypoint{X: 0.5, Y: 0.25, Heading: 1}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(raw), test.ShouldContainSubstring, `"data":[0.5,0.25,1]`)
}
