package ros

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/gridnav/logging"
	"go.viam.com/gridnav/motionplan"
	"go.viam.com/gridnav/referenceframe"
	"go.viam.com/gridnav/ros/rosbridge"
	"go.viam.com/gridnav/services/navigation"
)

// Topics names every topic the node reads from or writes to.
type Topics struct {
	Map         string `json:"map" yaml:"map"`
	MapMetadata string `json:"map_metadata" yaml:"map_metadata"`
	Goal        string `json:"goal" yaml:"goal"`
	TF          string `json:"tf" yaml:"tf"`
	TFStatic    string `json:"tf_static" yaml:"tf_static"`
	Waypoint    string `json:"waypoint" yaml:"waypoint"`
	Path        string `json:"path" yaml:"path"`
}

// DefaultTopics are the topic names a turtlebot stack uses.
func DefaultTopics() Topics {
	return Topics{
		Map:         "map",
		MapMetadata: "map_metadata",
		Goal:        "/turtlebot_controller/nav_goal",
		TF:          "/tf",
		TFStatic:    "/tf_static",
		Waypoint:    "/turtlebot_controller/position_goal",
		Path:        "/turtlebot_controller/path_goal",
	}
}

// Inputs lists the configured input topics.
func (t Topics) Inputs() []string {
	var inputs []string
	for _, topic := range []string{t.MapMetadata, t.Map, t.Goal, t.TF, t.TFStatic} {
		if topic != "" {
			inputs = append(inputs, topic)
		}
	}
	return inputs
}

// Bridge is the part of a rosbridge connection the node uses.
type Bridge interface {
	Subscribe(ctx context.Context, topic, msgType string, handler rosbridge.Handler) error
	Advertise(ctx context.Context, topic, msgType string) error
	Publish(ctx context.Context, topic string, msg interface{}) error
}

// Node binds ROS topics to a Navigator and a TransformBuffer. It is also the Publisher that puts
// waypoints and paths back onto the graph.
type Node struct {
	bridge     Bridge
	navigator  *navigation.Navigator
	transforms *referenceframe.TransformBuffer
	topics     Topics
	logger     logging.Logger
	now        func() time.Time
}

// NewNode returns an unbound node. Call Bind to subscribe and advertise.
func NewNode(
	bridge Bridge,
	navigator *navigation.Navigator,
	transforms *referenceframe.TransformBuffer,
	topics Topics,
	logger logging.Logger,
) *Node {
	return &Node{
		bridge:     bridge,
		navigator:  navigator,
		transforms: transforms,
		topics:     topics,
		logger:     logger,
		now:        time.Now,
	}
}

// Bind advertises the output topics and subscribes to every input.
func (n *Node) Bind(ctx context.Context) error {
	if err := n.bridge.Advertise(ctx, n.topics.Waypoint, Float32MultiArrayType); err != nil {
		return errors.Wrapf(err, "cannot advertise %s", n.topics.Waypoint)
	}
	if err := n.bridge.Advertise(ctx, n.topics.Path, PathType); err != nil {
		return errors.Wrapf(err, "cannot advertise %s", n.topics.Path)
	}

	for _, sub := range []struct {
		topic   string
		msgType string
		handler rosbridge.Handler
	}{
		{n.topics.MapMetadata, MapMetaDataType, n.HandleMapMetadata},
		{n.topics.Map, OccupancyGridType, n.HandleMap},
		{n.topics.Goal, Float32MultiArrayType, n.HandleGoal},
		{n.topics.TF, TFMessageType, n.HandleTF},
		{n.topics.TFStatic, TFMessageType, n.HandleTFStatic},
	} {
		if sub.topic == "" {
			continue
		}
		if err := n.bridge.Subscribe(ctx, sub.topic, sub.msgType, sub.handler); err != nil {
			return errors.Wrapf(err, "cannot subscribe to %s", sub.topic)
		}
	}
	return nil
}

// Handler returns the input handler bound to topic, or nil when the topic is not an input.
func (n *Node) Handler(topic string) rosbridge.Handler {
	switch topic {
	case n.topics.MapMetadata:
		return n.HandleMapMetadata
	case n.topics.Map:
		return n.HandleMap
	case n.topics.Goal:
		return n.HandleGoal
	case n.topics.TF:
		return n.HandleTF
	case n.topics.TFStatic:
		return n.HandleTFStatic
	default:
		return nil
	}
}

// HandleMapMetadata decodes a nav_msgs/MapMetaData and forwards it to the navigator.
func (n *Node) HandleMapMetadata(ctx context.Context, raw json.RawMessage) {
	var msg MapMetaData
	if err := json.Unmarshal(raw, &msg); err != nil {
		n.logger.Warnw("cannot decode map metadata", "error", err)
		return
	}
	n.forward("map metadata", n.navigator.HandleMetadata(ctx, msg.GridMetadata()))
}

// HandleMap decodes a nav_msgs/OccupancyGrid and forwards its cells to the navigator. The grid
// layout comes from the metadata topic, or from the map's own info when no metadata topic is
// configured.
func (n *Node) HandleMap(ctx context.Context, raw json.RawMessage) {
	var msg OccupancyGrid
	if err := json.Unmarshal(raw, &msg); err != nil {
		n.logger.Warnw("cannot decode map", "error", err)
		return
	}
	if n.topics.MapMetadata == "" {
		n.forward("map", n.navigator.HandleGrid(ctx, msg.Info.GridMetadata(), msg.Data))
		return
	}
	n.forward("map", n.navigator.HandleMap(ctx, msg.Data))
}

// HandleGoal decodes a [x, y, heading] Float32MultiArray goal.
func (n *Node) HandleGoal(ctx context.Context, raw json.RawMessage) {
	var msg Float32MultiArray
	if err := json.Unmarshal(raw, &msg); err != nil {
		n.logger.Warnw("cannot decode goal", "error", err)
		return
	}
	goal, err := GoalFromMultiArray(msg)
	if err != nil {
		n.logger.Warnw("ignoring goal", "error", err)
		return
	}
	n.forward("goal", n.navigator.HandleGoal(ctx, goal))
}

// HandleTF stores dynamic transforms.
func (n *Node) HandleTF(ctx context.Context, raw json.RawMessage) {
	n.handleTransforms(raw, false)
}

// HandleTFStatic stores static transforms.
func (n *Node) HandleTFStatic(ctx context.Context, raw json.RawMessage) {
	n.handleTransforms(raw, true)
}

func (n *Node) handleTransforms(raw json.RawMessage, static bool) {
	var msg TFMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		n.logger.Warnw("cannot decode transforms", "error", err)
		return
	}
	for _, tf := range msg.Transforms {
		if err := n.transforms.SetTransform(tf.Stamped(static)); err != nil {
			n.logger.Debugw("ignoring transform", "parent", tf.Header.FrameID, "child", tf.ChildFrameID, "error", err)
		}
	}
}

func (n *Node) forward(what string, err error) {
	if err != nil {
		n.logger.Debugw("navigator did not take update", "update", what, "error", err)
	}
}

// PublishWaypoint sends the waypoint as [x, y, heading].
func (n *Node) PublishWaypoint(ctx context.Context, wp navigation.Waypoint) error {
	return n.bridge.Publish(ctx, n.topics.Waypoint, WaypointMultiArray(wp))
}

// PublishPath sends the path as a nav_msgs/Path.
func (n *Node) PublishPath(ctx context.Context, frame string, path motionplan.Path) error {
	return n.bridge.Publish(ctx, n.topics.Path, PathMessage(frame, path, n.now()))
}
