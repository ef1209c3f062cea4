package navigation

import (
	"context"
	"sync"

	"go.uber.org/multierr"

	"go.viam.com/gridnav/logging"
	"go.viam.com/gridnav/motionplan"
)

// Publisher is a destination for planning results.
type Publisher interface {
	PublishWaypoint(ctx context.Context, wp Waypoint) error
	// PublishPath sends the full path; every state is expressed in frame.
	PublishPath(ctx context.Context, frame string, path motionplan.Path) error
}

// OutputRouter fans planning results out to every registered Publisher. Delivery is best effort:
// failures are logged and never reach the planning loop.
type OutputRouter struct {
	frame  string
	logger logging.Logger

	mu    sync.RWMutex
	sinks []Publisher
}

// NewOutputRouter returns a router that labels paths with frame.
func NewOutputRouter(frame string, logger logging.Logger, sinks ...Publisher) *OutputRouter {
	return &OutputRouter{frame: frame, logger: logger, sinks: sinks}
}

// AddSink registers another Publisher.
func (r *OutputRouter) AddSink(sink Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, sink)
}

// Publish sends wp, when non-nil, and then path to every sink.
func (r *OutputRouter) Publish(ctx context.Context, wp *Waypoint, path motionplan.Path) {
	r.mu.RLock()
	sinks := make([]Publisher, len(r.sinks))
	copy(sinks, r.sinks)
	r.mu.RUnlock()

	var errs error
	if wp != nil {
		for _, sink := range sinks {
			errs = multierr.Append(errs, sink.PublishWaypoint(ctx, *wp))
		}
	}
	for _, sink := range sinks {
		errs = multierr.Append(errs, sink.PublishPath(ctx, r.frame, path))
	}
	if errs != nil {
		r.logger.Warnw("failed to deliver planning output", "failures", len(multierr.Errors(errs)), "error", errs)
	}
}
