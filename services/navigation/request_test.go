package navigation_test

import (
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"

	"go.viam.com/gridnav/services/navigation"
	"go.viam.com/gridnav/spatialmath"
)

func TestRoundToGrid(t *testing.T) {
	for _, tc := range []struct {
		in       r2.Point
		res      float64
		expected r2.Point
	}{
		{r2.Point{X: 0.37, Y: 0.12}, 0.25, r2.Point{X: 0.25, Y: 0}},
		{r2.Point{X: 0.13, Y: 0.13}, 0.25, r2.Point{X: 0.25, Y: 0.25}},
		{r2.Point{X: 0.12, Y: -0.12}, 0.25, r2.Point{X: 0, Y: 0}},
		{r2.Point{X: 4.9, Y: 5.1}, 0.25, r2.Point{X: 5, Y: 5}},
		{r2.Point{X: -1.3, Y: 2.6}, 0.5, r2.Point{X: -1.5, Y: 2.5}},
		{r2.Point{X: 1.04, Y: 0.96}, 0.1, r2.Point{X: 1.0, Y: 1.0}},
		// halfway values round away from zero
		{r2.Point{X: 0.125, Y: -0.125}, 0.25, r2.Point{X: 0.25, Y: -0.25}},
		{r2.Point{X: 0.375, Y: -0.375}, 0.25, r2.Point{X: 0.5, Y: -0.5}},
		{r2.Point{X: 0.25, Y: -0.75}, 0.5, r2.Point{X: 0.5, Y: -1}},
	} {
		out := navigation.RoundToGrid(tc.in, tc.res)
		test.That(t, out.X, test.ShouldAlmostEqual, tc.expected.X)
		test.That(t, out.Y, test.ShouldAlmostEqual, tc.expected.Y)
	}

	// a non-positive resolution leaves the point alone
	p := r2.Point{X: 0.37, Y: 0.12}
	test.That(t, navigation.RoundToGrid(p, 0), test.ShouldResemble, p)
}

func TestPlanningWindow(t *testing.T) {
	window := navigation.PlanningWindow(r2.Point{}, 15)
	test.That(t, window.Lo(), test.ShouldResemble, r2.Point{X: -15, Y: -15})
	test.That(t, window.Hi(), test.ShouldResemble, r2.Point{X: 15, Y: 15})

	// the horizon itself is rounded
	window = navigation.PlanningWindow(r2.Point{X: 1, Y: -1}, 2.5)
	test.That(t, window.Lo(), test.ShouldResemble, r2.Point{X: -2, Y: -4})
	test.That(t, window.Hi(), test.ShouldResemble, r2.Point{X: 4, Y: 2})
}

func TestBuildPlanRequest(t *testing.T) {
	cfg := navigation.DefaultConfig()
	pose := spatialmath.NewPoseFromYaw(20.1, -3.37, 1)
	goal := navigation.Goal{X: 22.13, Y: -1.9, Heading: 2}

	t.Run("window at world origin", func(t *testing.T) {
		req := navigation.BuildPlanRequest(pose, goal, cfg, nil)
		test.That(t, req.Start.X, test.ShouldAlmostEqual, 20)
		test.That(t, req.Start.Y, test.ShouldAlmostEqual, -3.25)
		test.That(t, req.Goal.X, test.ShouldAlmostEqual, 22.25)
		test.That(t, req.Goal.Y, test.ShouldAlmostEqual, -2)
		test.That(t, req.Resolution, test.ShouldEqual, 0.25)
		test.That(t, req.Bounds.Lo(), test.ShouldResemble, r2.Point{X: -15, Y: -15})
		test.That(t, req.Bounds.Hi(), test.ShouldResemble, r2.Point{X: 15, Y: 15})
		// an agent this far from the origin is outside its own window
		test.That(t, req.Bounds.ContainsPoint(req.Start), test.ShouldBeFalse)
	})

	t.Run("window following the agent", func(t *testing.T) {
		agentCfg := cfg
		agentCfg.WindowCenteredOnAgent = true
		req := navigation.BuildPlanRequest(pose, goal, agentCfg, nil)
		test.That(t, req.Bounds.Center().X, test.ShouldAlmostEqual, 20)
		test.That(t, req.Bounds.Center().Y, test.ShouldAlmostEqual, -3.25)
		test.That(t, req.Bounds.ContainsPoint(req.Start), test.ShouldBeTrue)
		test.That(t, req.Bounds.ContainsPoint(req.Goal), test.ShouldBeTrue)
	})
}
