package navigation

import (
	"context"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/golang/geo/r2"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go.viam.com/gridnav/logging"
	"go.viam.com/gridnav/motionplan"
	"go.viam.com/gridnav/occupancy"
	"go.viam.com/gridnav/referenceframe"
	"go.viam.com/gridnav/utils"
)

const eventBufferSize = 16

var errClosed = errors.New("navigator is closed")

// Attempt describes one run of the planning loop.
type Attempt struct {
	ID       uuid.UUID
	Trigger  string
	Started  time.Time
	Duration time.Duration
	Outcome  Outcome
	Start    r2.Point
	Goal     r2.Point
	// PathLength is the number of states in the path, zero when no search succeeded.
	PathLength int
	Waypoint   *Waypoint
	Err        error
}

// AttemptRecorder keeps a history of planning attempts.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, attempt Attempt) error
}

type eventKind int

const (
	metadataEvent eventKind = iota
	mapEvent
	gridEvent
	goalEvent
	replanEvent
	syncEvent
)

func (k eventKind) trigger() string {
	switch k {
	case metadataEvent:
		return "metadata"
	case mapEvent, gridEvent:
		return "map"
	case goalEvent:
		return "goal"
	default:
		return "map_debounced"
	}
}

type event struct {
	kind  eventKind
	meta  occupancy.GridMetadata
	probs []int8
	goal  Goal
	done  chan struct{}
}

// Navigator is the replanning loop. Updates handed to it are applied and acted upon one at a time
// by a single goroutine, so at most one planning attempt is in flight and its result is published
// before the next update is looked at.
type Navigator struct {
	cfg      Config
	logger   logging.Logger
	tracker  *StateTracker
	planner  motionplan.Planner
	router   *OutputRouter
	recorder AttemptRecorder

	replanMu  sync.Mutex
	debounced func(func())

	events    chan event
	workers   utils.StoppableWorkers
	startOnce sync.Once
}

// NewNavigator validates cfg and wires the loop together. recorder may be nil.
func NewNavigator(
	cfg Config,
	lookup referenceframe.TransformLookup,
	planner motionplan.Planner,
	router *OutputRouter,
	recorder AttemptRecorder,
	logger logging.Logger,
) (*Navigator, error) {
	if err := cfg.Validate("navigation"); err != nil {
		return nil, err
	}
	if planner == nil {
		return nil, errors.New("navigator requires a planner")
	}
	if router == nil {
		router = NewOutputRouter(cfg.MapFrame, logger)
	}
	n := &Navigator{
		cfg:      cfg,
		logger:   logger,
		tracker:  NewStateTracker(cfg, lookup, logger),
		planner:  planner,
		router:   router,
		recorder: recorder,
		events:   make(chan event, eventBufferSize),
		workers:  utils.NewStoppableWorkers(),
	}
	if cfg.MapReplanDebounce > 0 {
		n.debounced = debounce.New(cfg.MapReplanDebounce.Std())
	}
	return n, nil
}

// Tracker exposes the state the loop plans from.
func (n *Navigator) Tracker() *StateTracker {
	return n.tracker
}

// Start launches the event goroutine. Calling it more than once has no effect.
func (n *Navigator) Start() {
	n.startOnce.Do(func() {
		n.workers.AddWorkers(n.dispatch)
	})
}

// Close stops the event goroutine. Queued updates that were not handled are dropped.
func (n *Navigator) Close(ctx context.Context) error {
	n.workers.Stop()
	return nil
}

// HandleMetadata queues a grid layout update.
func (n *Navigator) HandleMetadata(ctx context.Context, meta occupancy.GridMetadata) error {
	return n.enqueue(ctx, event{kind: metadataEvent, meta: meta})
}

// HandleMap queues new cell probabilities.
func (n *Navigator) HandleMap(ctx context.Context, probs []int8) error {
	return n.enqueue(ctx, event{kind: mapEvent, probs: probs})
}

// HandleGrid queues a map that carries its own layout, for sources with no separate metadata
// stream.
func (n *Navigator) HandleGrid(ctx context.Context, meta occupancy.GridMetadata, probs []int8) error {
	return n.enqueue(ctx, event{kind: gridEvent, meta: meta, probs: probs})
}

// HandleGoal queues a new goal.
func (n *Navigator) HandleGoal(ctx context.Context, goal Goal) error {
	return n.enqueue(ctx, event{kind: goalEvent, goal: goal})
}

// Sync blocks until every update queued before it has been handled, including any planning
// attempt it triggered. The navigator must have been started.
func (n *Navigator) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if err := n.enqueue(ctx, event{kind: syncEvent, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-n.workers.Context().Done():
		return errClosed
	}
}

func (n *Navigator) enqueue(ctx context.Context, ev event) error {
	if n.workers.Context().Err() != nil {
		return errClosed
	}
	select {
	case n.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-n.workers.Context().Done():
		return errClosed
	}
}

func (n *Navigator) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-n.events:
			n.handle(ctx, ev)
		}
	}
}

func (n *Navigator) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case metadataEvent:
		if n.tracker.UpdateMetadata(ev.meta) {
			n.mapReady(ctx, ev.kind)
		}
	case mapEvent:
		if n.tracker.UpdateMap(ev.probs) {
			n.mapReady(ctx, ev.kind)
		}
	case gridEvent:
		if n.tracker.UpdateGrid(ev.meta, ev.probs) {
			n.mapReady(ctx, ev.kind)
		}
	case goalEvent:
		n.logger.Infow("new goal", "goal", ev.goal.String())
		n.tracker.SetGoal(ev.goal)
		n.replan(ctx, ev.kind.trigger())
	case replanEvent:
		n.replan(ctx, ev.kind.trigger())
	case syncEvent:
		close(ev.done)
	}
}

func (n *Navigator) mapReady(ctx context.Context, kind eventKind) {
	if n.debounced == nil {
		n.replan(ctx, kind.trigger())
		return
	}
	n.debounced(func() {
		if err := n.enqueue(n.workers.Context(), event{kind: replanEvent}); err != nil {
			n.logger.Debugw("dropping debounced replan", "error", err)
		}
	})
}

func (n *Navigator) replan(ctx context.Context, trigger string) {
	// failures are logged by the attempt and the next update replans
	_, _ = n.runAttempt(ctx, trigger)
}

// Replan runs one planning attempt against the current state. A missing input is not an error
// and yields OutcomeSkipped. A failed search logs one warning, publishes nothing and returns the
// search error with OutcomeFailed; it is never retried.
func (n *Navigator) Replan(ctx context.Context) (Outcome, error) {
	return n.runAttempt(ctx, "manual")
}

func (n *Navigator) runAttempt(ctx context.Context, trigger string) (Outcome, error) {
	n.replanMu.Lock()
	defer n.replanMu.Unlock()

	attempt := Attempt{ID: uuid.New(), Trigger: trigger, Started: time.Now()}
	outcome, err := n.attempt(ctx, &attempt)
	attempt.Outcome = outcome
	attempt.Err = err
	attempt.Duration = time.Since(attempt.Started)
	if n.recorder != nil {
		if recErr := n.recorder.RecordAttempt(ctx, attempt); recErr != nil {
			n.logger.Debugw("could not record planning attempt", "attempt", attempt.ID, "error", recErr)
		}
	}
	return outcome, err
}

func (n *Navigator) attempt(ctx context.Context, attempt *Attempt) (Outcome, error) {
	snap, ready := n.tracker.ReadyToPlan(ctx)
	if !ready {
		n.logger.Infow("not ready to plan", "attempt", attempt.ID, "trigger", attempt.Trigger, "missing", snap.Missing())
		return OutcomeSkipped, nil
	}

	req := BuildPlanRequest(snap.Pose, snap.Goal, n.cfg, snap.Field)
	attempt.Start, attempt.Goal = req.Start, req.Goal

	path, err := n.planner.Plan(ctx, req)
	if err == nil && len(path) == 0 {
		err = motionplan.ErrNoPath
	}
	if err != nil {
		n.logger.Warnw("no path found",
			"attempt", attempt.ID, "start", req.Start, "goal", req.Goal, "error", err)
		return OutcomeFailed, err
	}
	attempt.PathLength = len(path)

	wp, ok := ExtractWaypoint(path, snap.Pose, snap.Goal, n.cfg.LookaheadIndex)
	if !ok {
		n.logger.Infow("at goal, publishing path only", "attempt", attempt.ID, "states", len(path))
		n.router.Publish(ctx, nil, path)
		return OutcomeAtGoal, nil
	}
	attempt.Waypoint = &wp
	n.logger.Infow("publishing waypoint", "attempt", attempt.ID, "waypoint", wp.String(), "states", len(path))
	n.router.Publish(ctx, &wp, path)
	return OutcomePublished, nil
}
