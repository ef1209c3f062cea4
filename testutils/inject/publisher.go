package inject

import (
	"context"

	"go.viam.com/gridnav/motionplan"
	"go.viam.com/gridnav/services/navigation"
)

// Publisher is an injected navigation output sink.
type Publisher struct {
	navigation.Publisher
	PublishWaypointFunc func(ctx context.Context, wp navigation.Waypoint) error
	PublishPathFunc     func(ctx context.Context, frame string, path motionplan.Path) error
}

// NewPublisher returns a new injected sink wrapping a real one, which may be nil.
func NewPublisher(publisher navigation.Publisher) *Publisher {
	return &Publisher{Publisher: publisher}
}

// PublishWaypoint calls the injected PublishWaypoint or the real version.
func (p *Publisher) PublishWaypoint(ctx context.Context, wp navigation.Waypoint) error {
	if p.PublishWaypointFunc == nil {
		return p.Publisher.PublishWaypoint(ctx, wp)
	}
	return p.PublishWaypointFunc(ctx, wp)
}

// PublishPath calls the injected PublishPath or the real version.
func (p *Publisher) PublishPath(ctx context.Context, frame string, path motionplan.Path) error {
	if p.PublishPathFunc == nil {
		return p.Publisher.PublishPath(ctx, frame, path)
	}
	return p.PublishPathFunc(ctx, frame, path)
}
