package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r2"
	"github.com/google/uuid"
	"go.viam.com/test"

	"go.viam.com/gridnav/config"
	"go.viam.com/gridnav/internal/planlog"
	"go.viam.com/gridnav/logging"
	"go.viam.com/gridnav/motionplan"
	"go.viam.com/gridnav/ros"
	"go.viam.com/gridnav/services/navigation"
)

func deliver(t *testing.T, sys *system, topic string, msg interface{}) {
	t.Helper()
	raw, err := json.Marshal(msg)
	test.That(t, err, test.ShouldBeNil)
	handler := sys.node.Handler(topic)
	test.That(t, handler, test.ShouldNotBeNil)
	handler(context.Background(), raw)
}

func TestSystem(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.PlanLog = filepath.Join(dir, "planlog.db")
	cfg.PlotDir = filepath.Join(dir, "plots")

	var out bytes.Buffer
	sys, err := newSystem(ctx, &cfg, &printBridge{out: &out}, clock.New(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sys.node.Bind(ctx), test.ShouldBeNil)

	topics := cfg.Topics
	deliver(t, sys, topics.TFStatic, ros.TFMessage{Transforms: []ros.TransformStamped{{
		Header:       ros.Header{FrameID: "map"},
		ChildFrameID: "base_footprint",
		Transform:    ros.Transform{Rotation: ros.Quaternion{W: 1}},
	}}})
	meta := ros.MapMetaData{Resolution: 0.1, Width: 100, Height: 100, Origin: ros.Pose{Position: ros.Vector3{X: -5, Y: -5}}}
	deliver(t, sys, topics.MapMetadata, meta)
	deliver(t, sys, topics.Map, ros.OccupancyGrid{Info: meta, Data: make([]int8, 100*100)})
	deliver(t, sys, topics.Goal, ros.Float32MultiArray{Data: []float32{0, 2, 1.5}})
	test.That(t, sys.navigator.Sync(ctx), test.ShouldBeNil)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	test.That(t, lines, test.ShouldHaveLength, 2)

	var wp struct {
		Topic string                `json:"topic"`
		Msg   ros.Float32MultiArray `json:"msg"`
	}
	test.That(t, json.Unmarshal([]byte(lines[0]), &wp), test.ShouldBeNil)
	test.That(t, wp.Topic, test.ShouldEqual, topics.Waypoint)
	test.That(t, wp.Msg.Data, test.ShouldHaveLength, 3)
	test.That(t, wp.Msg.Data[0], test.ShouldAlmostEqual, 0)
	test.That(t, wp.Msg.Data[1], test.ShouldAlmostEqual, 0.75)

	var path struct {
		Topic string   `json:"topic"`
		Msg   ros.Path `json:"msg"`
	}
	test.That(t, json.Unmarshal([]byte(lines[1]), &path), test.ShouldBeNil)
	test.That(t, path.Topic, test.ShouldEqual, topics.Path)
	test.That(t, path.Msg.Header.FrameID, test.ShouldEqual, "map")
	test.That(t, path.Msg.Poses, test.ShouldHaveLength, 9)

	_, err = os.Stat(filepath.Join(cfg.PlotDir, "plan_00001.png"))
	test.That(t, err, test.ShouldBeNil)

	test.That(t, sys.Close(ctx), test.ShouldBeNil)

	store, err := planlog.Open(ctx, cfg.PlanLog, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer store.Close()
	summary, err := store.Summarize(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, summary.ByOutcome, test.ShouldResemble, map[string]int{"skipped": 1, "published": 1})
}

func recordedMsg(t *testing.T, topic string, stamp time.Time, msg interface{}) ros.BagMessage {
	t.Helper()
	raw, err := json.Marshal(msg)
	test.That(t, err, test.ShouldBeNil)
	return ros.BagMessage{Topic: topic, Stamp: stamp, Data: raw}
}

func robotOnTF(x, y float64, stamp time.Time) ros.TFMessage {
	return ros.TFMessage{Transforms: []ros.TransformStamped{{
		Header:       ros.Header{FrameID: "map", Stamp: ros.FromTime(stamp)},
		ChildFrameID: "base_footprint",
		Transform:    ros.Transform{Translation: ros.Vector3{X: x, Y: y}, Rotation: ros.Quaternion{W: 1}},
	}}}
}

func TestReplayRecordedTransforms(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	topics := cfg.Topics
	sim := clock.NewMock()
	var out bytes.Buffer
	sys, err := newSystem(ctx, &cfg, &printBridge{out: &out}, sim, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, sys.Close(ctx), test.ShouldBeNil)
	}()

	// a recording from long ago: the robot sits at the origin when the goal arrives and has moved
	// by the time a later transform is recorded
	start := time.Date(2018, 3, 1, 12, 0, 0, 0, time.UTC)
	meta := ros.MapMetaData{Resolution: 0.1, Width: 100, Height: 100, Origin: ros.Pose{Position: ros.Vector3{X: -5, Y: -5}}}
	msgs := []ros.BagMessage{
		recordedMsg(t, topics.TF, start, robotOnTF(0, 0, start)),
		recordedMsg(t, topics.MapMetadata, start.Add(100*time.Millisecond), meta),
		recordedMsg(t, topics.Map, start.Add(200*time.Millisecond), ros.OccupancyGrid{Info: meta, Data: make([]int8, 100*100)}),
		recordedMsg(t, topics.Goal, start.Add(300*time.Millisecond), ros.Float32MultiArray{Data: []float32{0, 2, 1.5}}),
		recordedMsg(t, topics.TF, start.Add(5*time.Second), robotOnTF(3, 3, start.Add(5*time.Second))),
	}

	delivered, err := replay(ctx, sys, msgs, 0, sim)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, delivered, test.ShouldEqual, len(msgs))
	test.That(t, sys.navigator.Sync(ctx), test.ShouldBeNil)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	test.That(t, lines, test.ShouldHaveLength, 2)
	var path struct {
		Topic string   `json:"topic"`
		Msg   ros.Path `json:"msg"`
	}
	test.That(t, json.Unmarshal([]byte(lines[1]), &path), test.ShouldBeNil)
	test.That(t, path.Topic, test.ShouldEqual, topics.Path)
	points := path.Msg.Points()
	test.That(t, points[0].X, test.ShouldAlmostEqual, 0.)
	test.That(t, points[0].Y, test.ShouldAlmostEqual, 0.)
	test.That(t, points[len(points)-1].Y, test.ShouldAlmostEqual, 2.)
}

func TestSystemBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Navigation.LookaheadIndex = 0
	cfg.PlanLog = filepath.Join(t.TempDir(), "planlog.db")
	_, err := newSystem(context.Background(), &cfg, &printBridge{out: &bytes.Buffer{}}, clock.New(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "lookahead_index")
}

func runApp(args ...string) (string, error) {
	var out, errOut bytes.Buffer
	err := NewApp(&out, &errOut).Run(append([]string{"navigator"}, args...))
	return out.String(), err
}

func TestHistoryAction(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "planlog.db")
	store, err := planlog.Open(ctx, path, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	base := time.Unix(1700000000, 0)
	for i, outcome := range []navigation.Outcome{navigation.OutcomePublished, navigation.OutcomeFailed} {
		attempt := navigation.Attempt{
			ID:       uuid.New(),
			Trigger:  "goal",
			Started:  base.Add(time.Duration(i) * time.Second),
			Duration: 10 * time.Millisecond,
			Outcome:  outcome,
			Goal:     r2.Point{X: 3, Y: 3},
		}
		if outcome == navigation.OutcomeFailed {
			attempt.Err = motionplan.ErrNoPath
		}
		test.That(t, store.RecordAttempt(ctx, attempt), test.ShouldBeNil)
	}
	test.That(t, store.Close(), test.ShouldBeNil)

	out, err := runApp("--planlog", path, "history", "--limit", "1")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "attempts: 2")
	test.That(t, out, test.ShouldContainSubstring, "failed     1")
	test.That(t, out, test.ShouldContainSubstring, "published  1")
	test.That(t, out, test.ShouldContainSubstring, "search time: mean 10ms")
	test.That(t, strings.Count(out, "| goal "), test.ShouldEqual, 1)
	test.That(t, out, test.ShouldContainSubstring, motionplan.ErrNoPath.Error())

	_, err = runApp("history")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no planlog configured")

	_, err = runApp("--planlog", filepath.Join(t.TempDir(), "missing.db"), "history")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "cannot read planlog")
}

func TestReplayActionErrors(t *testing.T) {
	_, err := runApp("replay")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "exactly one bag file")

	_, err = runApp("replay", filepath.Join(t.TempDir(), "missing.bag"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unable to open input file")
}

func TestConfigFlag(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "navigator.json")
	test.That(t, os.WriteFile(cfgPath, []byte(`{"navigation": {"plan_horizon": -1}}`), 0o600), test.ShouldBeNil)
	_, err := runApp("--config", cfgPath, "history")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "plan_horizon")
}
