package navigation

import (
	"context"
	"sync"
	"time"

	goutils "go.viam.com/utils"

	"go.viam.com/gridnav/logging"
	"go.viam.com/gridnav/occupancy"
	"go.viam.com/gridnav/referenceframe"
	"go.viam.com/gridnav/spatialmath"
)

// StateTracker holds the latest map, metadata, goal and occupancy field. Each is guarded by its
// own lock so transport goroutines can write while the planning loop reads, and a rebuilt field
// replaces the previous one in a single assignment.
type StateTracker struct {
	cfg    Config
	lookup referenceframe.TransformLookup
	logger logging.Logger

	metaMu sync.RWMutex
	meta   *occupancy.GridMetadata

	probsMu sync.RWMutex
	probs   []int8

	fieldMu sync.RWMutex
	field   *occupancy.Field

	goalMu sync.RWMutex
	goal   *Goal
}

// NewStateTracker returns a tracker that resolves the agent pose through lookup.
func NewStateTracker(cfg Config, lookup referenceframe.TransformLookup, logger logging.Logger) *StateTracker {
	return &StateTracker{cfg: cfg, lookup: lookup, logger: logger}
}

// UpdateMetadata stores the grid layout. It reports whether a new field was built, which only
// happens when map data is already held and the layout changed or no field exists yet.
func (st *StateTracker) UpdateMetadata(meta occupancy.GridMetadata) bool {
	st.metaMu.Lock()
	unchanged := st.meta != nil && *st.meta == meta
	st.meta = &meta
	st.metaMu.Unlock()

	if unchanged && st.Occupancy() != nil {
		return false
	}
	return st.rebuild()
}

// UpdateMap stores new cell probabilities and reports whether a new field was built from them.
// The slice must not be modified by the caller afterwards.
func (st *StateTracker) UpdateMap(probs []int8) bool {
	st.probsMu.Lock()
	st.probs = probs
	st.probsMu.Unlock()
	return st.rebuild()
}

// UpdateGrid stores a layout and the cells laid out by it together, then rebuilds once.
func (st *StateTracker) UpdateGrid(meta occupancy.GridMetadata, probs []int8) bool {
	st.metaMu.Lock()
	st.meta = &meta
	st.metaMu.Unlock()
	st.probsMu.Lock()
	st.probs = probs
	st.probsMu.Unlock()
	return st.rebuild()
}

func (st *StateTracker) rebuild() bool {
	st.metaMu.RLock()
	meta := st.meta
	st.metaMu.RUnlock()
	st.probsMu.RLock()
	probs := st.probs
	st.probsMu.RUnlock()

	if meta == nil || probs == nil {
		return false
	}

	inflation := occupancy.InflationCells(st.cfg.PlanResolution, meta.Resolution, st.cfg.InflationMultiplier)
	field, err := occupancy.Build(*meta, probs, inflation, st.cfg.OccupancyThreshold)
	if err != nil {
		st.logger.Warnw("ignoring occupancy update, keeping previous map", "error", err)
		return false
	}

	st.fieldMu.Lock()
	st.field = field
	st.fieldMu.Unlock()
	st.logger.Debugw("occupancy field rebuilt",
		"width", meta.Width, "height", meta.Height, "resolution", meta.Resolution, "inflation_cells", inflation)
	return true
}

// Occupancy returns the current field, or nil if none has been built.
func (st *StateTracker) Occupancy() *occupancy.Field {
	st.fieldMu.RLock()
	defer st.fieldMu.RUnlock()
	return st.field
}

// SetGoal replaces the goal.
func (st *StateTracker) SetGoal(goal Goal) {
	st.goalMu.Lock()
	defer st.goalMu.Unlock()
	st.goal = &goal
}

// Goal returns the current goal and whether one has been set.
func (st *StateTracker) Goal() (Goal, bool) {
	st.goalMu.RLock()
	defer st.goalMu.RUnlock()
	if st.goal == nil {
		return Goal{}, false
	}
	return *st.goal, true
}

type lookupResult struct {
	pose spatialmath.Pose
	err  error
}

// CurrentPose asks for the latest transform from the map frame to the agent's base frame. Any
// failure, including the lookup outliving the pose timeout, yields a zero pose and false. The
// zero pose is a placeholder and must not be planned from.
func (st *StateTracker) CurrentPose(ctx context.Context) (spatialmath.Pose, bool) {
	if st.lookup == nil {
		return spatialmath.NewZeroPose(), false
	}
	ctx, cancel := context.WithTimeout(ctx, st.cfg.PoseTimeout.Std())
	defer cancel()

	resultChan := make(chan lookupResult, 1)
	goutils.PanicCapturingGo(func() {
		pose, err := st.lookup.Lookup(ctx, st.cfg.MapFrame, st.cfg.BaseFrame, time.Time{})
		resultChan <- lookupResult{pose, err}
	})

	var result lookupResult
	select {
	case <-ctx.Done():
		result.err = ctx.Err()
	case result = <-resultChan:
	}

	if result.err != nil {
		if lookupErr, ok := referenceframe.AsLookupError(result.err); ok {
			st.logger.Debugw("agent pose unknown", "kind", lookupErr.Kind.String(), "error", result.err)
		} else {
			st.logger.Debugw("agent pose unknown", "error", result.err)
		}
		return spatialmath.NewZeroPose(), false
	}
	return result.pose, true
}

// Snapshot is one consistent view of the inputs of a planning attempt.
type Snapshot struct {
	Field     *occupancy.Field
	Pose      spatialmath.Pose
	PoseKnown bool
	Goal      Goal
	HasGoal   bool
}

// Missing names the inputs that are absent.
func (s Snapshot) Missing() []string {
	var missing []string
	if s.Field == nil {
		missing = append(missing, "map")
	}
	if !s.PoseKnown {
		missing = append(missing, "pose")
	}
	if !s.HasGoal {
		missing = append(missing, "goal")
	}
	return missing
}

// Ready reports whether the snapshot can be planned from.
func (s Snapshot) Ready() bool {
	return ReadyToPlan(s.Field != nil, s.PoseKnown, s.HasGoal)
}

// ReadyToPlan is true only when a field, a known pose and a goal are all present.
func ReadyToPlan(haveField, poseKnown, haveGoal bool) bool {
	return haveField && poseKnown && haveGoal
}

// ReadyToPlan reads every input once and reports whether an attempt may proceed.
func (st *StateTracker) ReadyToPlan(ctx context.Context) (Snapshot, bool) {
	snap := Snapshot{Field: st.Occupancy()}
	snap.Goal, snap.HasGoal = st.Goal()
	snap.Pose, snap.PoseKnown = st.CurrentPose(ctx)
	return snap, snap.Ready()
}
