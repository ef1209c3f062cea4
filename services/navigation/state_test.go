package navigation_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/gridnav/logging"
	"go.viam.com/gridnav/occupancy"
	"go.viam.com/gridnav/referenceframe"
	"go.viam.com/gridnav/services/navigation"
	"go.viam.com/gridnav/spatialmath"
	"go.viam.com/gridnav/testutils/inject"
	"go.viam.com/gridnav/utils"
)

// openMap is a 20m x 20m map of 10cm cells centred on the origin with no obstacles.
func openMap() (occupancy.GridMetadata, []int8) {
	meta := occupancy.GridMetadata{Width: 200, Height: 200, Resolution: 0.1, Origin: r2.Point{X: -10, Y: -10}}
	return meta, make([]int8, meta.Width*meta.Height)
}

func poseLookup(x, y, theta float64) *inject.TransformLookup {
	lookup := inject.NewTransformLookup(nil)
	lookup.LookupFunc = inject.FixedPose(spatialmath.NewPoseFromYaw(x, y, theta))
	return lookup
}

func failingLookup(err error) *inject.TransformLookup {
	lookup := inject.NewTransformLookup(nil)
	lookup.LookupFunc = func(ctx context.Context, target, source string, at time.Time) (spatialmath.Pose, error) {
		return spatialmath.Pose{}, err
	}
	return lookup
}

func TestReadyToPlanTruthTable(t *testing.T) {
	for _, haveField := range []bool{false, true} {
		for _, poseKnown := range []bool{false, true} {
			for _, haveGoal := range []bool{false, true} {
				expected := haveField && poseKnown && haveGoal
				test.That(t, navigation.ReadyToPlan(haveField, poseKnown, haveGoal), test.ShouldEqual, expected)
			}
		}
	}
}

func TestStateTrackerReadiness(t *testing.T) {
	ctx := context.Background()
	meta, probs := openMap()

	for _, haveField := range []bool{false, true} {
		for _, poseKnown := range []bool{false, true} {
			for _, haveGoal := range []bool{false, true} {
				t.Run(fmt.Sprintf("field=%v pose=%v goal=%v", haveField, poseKnown, haveGoal), func(t *testing.T) {
					lookup := failingLookup(referenceframe.NewFrameNotFoundError("map", "base_footprint", "base_footprint"))
					if poseKnown {
						lookup = poseLookup(1, 2, 0)
					}
					st := navigation.NewStateTracker(navigation.DefaultConfig(), lookup, logging.NewTestLogger(t))
					if haveField {
						st.UpdateMetadata(meta)
						st.UpdateMap(probs)
					}
					if haveGoal {
						st.SetGoal(navigation.Goal{X: 3, Y: 4, Heading: 1})
					}

					snap, ready := st.ReadyToPlan(ctx)
					test.That(t, ready, test.ShouldEqual, haveField && poseKnown && haveGoal)
					test.That(t, snap.Field != nil, test.ShouldEqual, haveField)
					test.That(t, snap.PoseKnown, test.ShouldEqual, poseKnown)
					test.That(t, snap.HasGoal, test.ShouldEqual, haveGoal)
					test.That(t, len(snap.Missing()), test.ShouldEqual, countFalse(haveField, poseKnown, haveGoal))
					if !poseKnown {
						test.That(t, spatialmath.PoseAlmostEqual(snap.Pose, spatialmath.NewZeroPose(), 1e-9), test.ShouldBeTrue)
					}
				})
			}
		}
	}
}

func countFalse(flags ...bool) int {
	n := 0
	for _, f := range flags {
		if !f {
			n++
		}
	}
	return n
}

func TestStateTrackerMapOrdering(t *testing.T) {
	meta, probs := openMap()

	t.Run("map before metadata", func(t *testing.T) {
		st := navigation.NewStateTracker(navigation.DefaultConfig(), nil, logging.NewTestLogger(t))
		test.That(t, st.UpdateMap(probs), test.ShouldBeFalse)
		test.That(t, st.Occupancy(), test.ShouldBeNil)
		test.That(t, st.UpdateMetadata(meta), test.ShouldBeTrue)
		test.That(t, st.Occupancy(), test.ShouldNotBeNil)
		// inflation window is round(0.25 / 0.1) * 2 cells
		test.That(t, st.Occupancy().InflationWindow(), test.ShouldEqual, 6)
	})

	t.Run("metadata before map", func(t *testing.T) {
		st := navigation.NewStateTracker(navigation.DefaultConfig(), nil, logging.NewTestLogger(t))
		test.That(t, st.UpdateMetadata(meta), test.ShouldBeFalse)
		test.That(t, st.Occupancy(), test.ShouldBeNil)
		test.That(t, st.UpdateMap(probs), test.ShouldBeTrue)
		test.That(t, st.Occupancy(), test.ShouldNotBeNil)
	})

	t.Run("repeated metadata does not rebuild", func(t *testing.T) {
		st := navigation.NewStateTracker(navigation.DefaultConfig(), nil, logging.NewTestLogger(t))
		st.UpdateMetadata(meta)
		test.That(t, st.UpdateMap(probs), test.ShouldBeTrue)
		field := st.Occupancy()
		test.That(t, st.UpdateMetadata(meta), test.ShouldBeFalse)
		test.That(t, st.Occupancy(), test.ShouldEqual, field)
	})

	t.Run("each map update replaces the field", func(t *testing.T) {
		st := navigation.NewStateTracker(navigation.DefaultConfig(), nil, logging.NewTestLogger(t))
		st.UpdateMetadata(meta)
		st.UpdateMap(probs)
		first := st.Occupancy()
		_, probs2 := openMap()
		probs2[0] = 100
		test.That(t, st.UpdateMap(probs2), test.ShouldBeTrue)
		test.That(t, st.Occupancy(), test.ShouldNotEqual, first)
		prob, _ := st.Occupancy().Probability(meta.Origin)
		test.That(t, prob, test.ShouldEqual, int8(100))
	})
}

func TestStateTrackerGridWithLayout(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	meta, probs := openMap()
	st := navigation.NewStateTracker(navigation.DefaultConfig(), nil, logger)
	test.That(t, st.UpdateGrid(meta, probs), test.ShouldBeTrue)
	test.That(t, st.Occupancy(), test.ShouldNotBeNil)
	test.That(t, st.Occupancy().Metadata(), test.ShouldResemble, meta)

	// a resized map swaps layout and cells together without passing through a mismatched pair
	small := occupancy.GridMetadata{Width: 10, Height: 10, Resolution: 0.1, Origin: r2.Point{X: -0.5, Y: -0.5}}
	test.That(t, st.UpdateGrid(small, make([]int8, 100)), test.ShouldBeTrue)
	test.That(t, st.Occupancy().Metadata(), test.ShouldResemble, small)
	test.That(t, logs.FilterMessage("ignoring occupancy update, keeping previous map").Len(), test.ShouldEqual, 0)
}

func TestStateTrackerMalformedMap(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	meta, probs := openMap()
	st := navigation.NewStateTracker(navigation.DefaultConfig(), nil, logger)
	st.UpdateMetadata(meta)
	test.That(t, st.UpdateMap(probs), test.ShouldBeTrue)
	good := st.Occupancy()

	test.That(t, st.UpdateMap(probs[:len(probs)-1]), test.ShouldBeFalse)
	test.That(t, st.Occupancy(), test.ShouldEqual, good)
	test.That(t, logs.FilterMessage("ignoring occupancy update, keeping previous map").Len(), test.ShouldEqual, 1)

	bad := meta
	bad.Width = 0
	test.That(t, st.UpdateMetadata(bad), test.ShouldBeFalse)
	test.That(t, st.Occupancy(), test.ShouldEqual, good)
	test.That(t, logs.FilterMessage("ignoring occupancy update, keeping previous map").Len(), test.ShouldEqual, 2)
}

func TestStateTrackerGoal(t *testing.T) {
	st := navigation.NewStateTracker(navigation.DefaultConfig(), nil, logging.NewTestLogger(t))
	_, ok := st.Goal()
	test.That(t, ok, test.ShouldBeFalse)

	st.SetGoal(navigation.Goal{X: 1, Y: 2, Heading: 3})
	st.SetGoal(navigation.Goal{X: 4, Y: 5, Heading: 6})
	goal, ok := st.Goal()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, goal, test.ShouldResemble, navigation.Goal{X: 4, Y: 5, Heading: 6})
}

func TestCurrentPose(t *testing.T) {
	ctx := context.Background()

	t.Run("known", func(t *testing.T) {
		var gotTarget, gotSource string
		var gotTime time.Time
		lookup := inject.NewTransformLookup(nil)
		lookup.LookupFunc = func(ctx context.Context, target, source string, at time.Time) (spatialmath.Pose, error) {
			gotTarget, gotSource, gotTime = target, source, at
			return spatialmath.NewPoseFromYaw(1, 2, 0.5), nil
		}
		st := navigation.NewStateTracker(navigation.DefaultConfig(), lookup, logging.NewTestLogger(t))
		pose, known := st.CurrentPose(ctx)
		test.That(t, known, test.ShouldBeTrue)
		test.That(t, pose.Planar(), test.ShouldResemble, r2.Point{X: 1, Y: 2})
		test.That(t, gotTarget, test.ShouldEqual, "map")
		test.That(t, gotSource, test.ShouldEqual, "base_footprint")
		test.That(t, gotTime.IsZero(), test.ShouldBeTrue)
	})

	for _, err := range []error{
		referenceframe.NewFrameNotFoundError("map", "base_footprint", "map"),
		referenceframe.NewDisconnectedError("map", "base_footprint"),
		referenceframe.NewExtrapolationError("map", "base_footprint", "transform is 3s old"),
		errors.New("transport down"),
	} {
		t.Run(err.Error(), func(t *testing.T) {
			st := navigation.NewStateTracker(navigation.DefaultConfig(), failingLookup(err), logging.NewTestLogger(t))
			pose, known := st.CurrentPose(ctx)
			test.That(t, known, test.ShouldBeFalse)
			test.That(t, spatialmath.PoseAlmostEqual(pose, spatialmath.NewZeroPose(), 1e-9), test.ShouldBeTrue)
		})
	}

	t.Run("lookup slower than timeout", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		lookup := inject.NewTransformLookup(nil)
		lookup.LookupFunc = func(ctx context.Context, target, source string, at time.Time) (spatialmath.Pose, error) {
			<-release
			return spatialmath.NewZeroPose(), nil
		}
		cfg := navigation.DefaultConfig()
		cfg.PoseTimeout = utils.Duration(20 * time.Millisecond)
		st := navigation.NewStateTracker(cfg, lookup, logging.NewTestLogger(t))

		start := time.Now()
		_, known := st.CurrentPose(ctx)
		test.That(t, known, test.ShouldBeFalse)
		test.That(t, time.Since(start), test.ShouldBeLessThan, time.Second)
	})

	t.Run("no lookup", func(t *testing.T) {
		st := navigation.NewStateTracker(navigation.DefaultConfig(), nil, logging.NewTestLogger(t))
		_, known := st.CurrentPose(ctx)
		test.That(t, known, test.ShouldBeFalse)
	})
}

func TestCurrentPoseFromTransformBuffer(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	clk.Set(time.Unix(1000, 0))
	buffer := referenceframe.NewTransformBuffer(clk, time.Second)

	st := navigation.NewStateTracker(navigation.DefaultConfig(), buffer, logging.NewTestLogger(t))
	_, known := st.CurrentPose(ctx)
	test.That(t, known, test.ShouldBeFalse)

	test.That(t, buffer.SetTransform(referenceframe.StampedTransform{
		Parent: "map", Child: "odom", Static: true,
		Pose: spatialmath.NewPoseFromPoint(r3.Vector{X: 1}),
	}), test.ShouldBeNil)
	test.That(t, buffer.SetTransform(referenceframe.StampedTransform{
		Parent: "odom", Child: "base_footprint", Stamp: clk.Now(),
		Pose: spatialmath.NewPoseFromPoint(r3.Vector{Y: 2}),
	}), test.ShouldBeNil)

	pose, known := st.CurrentPose(ctx)
	test.That(t, known, test.ShouldBeTrue)
	test.That(t, pose.Planar().X, test.ShouldAlmostEqual, 1)
	test.That(t, pose.Planar().Y, test.ShouldAlmostEqual, 2)

	// odom stops updating
	clk.Add(5 * time.Second)
	_, known = st.CurrentPose(ctx)
	test.That(t, known, test.ShouldBeFalse)
}
