// Package ros bridges the navigator to a ROS graph: message types as they appear on the wire
// through rosbridge and in bag files, conversions to navigator types, and the node that binds
// topics to a Navigator.
package ros

import (
	"time"
)

// Message type names as rosbridge expects them.
const (
	OccupancyGridType     = "nav_msgs/OccupancyGrid"
	MapMetaDataType       = "nav_msgs/MapMetaData"
	PathType              = "nav_msgs/Path"
	Float32MultiArrayType = "std_msgs/Float32MultiArray"
	TFMessageType         = "tf2_msgs/TFMessage"
)

// Time is a ROS timestamp.
type Time struct {
	Secs  int64 `json:"secs"`
	Nsecs int64 `json:"nsecs"`
}

// Time converts to a time.Time. The zero stamp maps to the zero time.
func (t Time) Time() time.Time {
	if t.Secs == 0 && t.Nsecs == 0 {
		return time.Time{}
	}
	return time.Unix(t.Secs, t.Nsecs)
}

// FromTime converts a time.Time to a ROS timestamp.
func FromTime(t time.Time) Time {
	if t.IsZero() {
		return Time{}
	}
	return Time{Secs: t.Unix(), Nsecs: int64(t.Nanosecond())}
}

// Header is std_msgs/Header.
type Header struct {
	Seq     uint32 `json:"seq"`
	Stamp   Time   `json:"stamp"`
	FrameID string `json:"frame_id"`
}

// Vector3 is geometry_msgs/Vector3 and geometry_msgs/Point.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is geometry_msgs/Quaternion.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Pose is geometry_msgs/Pose.
type Pose struct {
	Position    Vector3    `json:"position"`
	Orientation Quaternion `json:"orientation"`
}

// PoseStamped is geometry_msgs/PoseStamped.
type PoseStamped struct {
	Header Header `json:"header"`
	Pose   Pose   `json:"pose"`
}

// Path is nav_msgs/Path.
type Path struct {
	Header Header        `json:"header"`
	Poses  []PoseStamped `json:"poses"`
}

// MapMetaData is nav_msgs/MapMetaData.
type MapMetaData struct {
	MapLoadTime Time    `json:"map_load_time"`
	Resolution  float32 `json:"resolution"`
	Width       uint32  `json:"width"`
	Height      uint32  `json:"height"`
	Origin      Pose    `json:"origin"`
}

// OccupancyGrid is nav_msgs/OccupancyGrid. Data is row-major, 0-100 or -1 for unknown.
type OccupancyGrid struct {
	Header Header      `json:"header"`
	Info   MapMetaData `json:"info"`
	Data   []int8      `json:"data"`
}

// MultiArrayDimension is std_msgs/MultiArrayDimension.
type MultiArrayDimension struct {
	Label  string `json:"label"`
	Size   uint32 `json:"size"`
	Stride uint32 `json:"stride"`
}

// MultiArrayLayout is std_msgs/MultiArrayLayout.
type MultiArrayLayout struct {
	Dim        []MultiArrayDimension `json:"dim"`
	DataOffset uint32                `json:"data_offset"`
}

// Float32MultiArray is std_msgs/Float32MultiArray.
type Float32MultiArray struct {
	Layout MultiArrayLayout `json:"layout"`
	Data   []float32        `json:"data"`
}

// Transform is geometry_msgs/Transform.
type Transform struct {
	Translation Vector3    `json:"translation"`
	Rotation    Quaternion `json:"rotation"`
}

// TransformStamped is geometry_msgs/TransformStamped.
type TransformStamped struct {
	Header       Header    `json:"header"`
	ChildFrameID string    `json:"child_frame_id"`
	Transform    Transform `json:"transform"`
}

// TFMessage is tf2_msgs/TFMessage.
type TFMessage struct {
	Transforms []TransformStamped `json:"transforms"`
}
