package inject

import (
	"context"
	"time"

	"go.viam.com/gridnav/referenceframe"
	"go.viam.com/gridnav/spatialmath"
)

// TransformLookup is an injected transform source.
type TransformLookup struct {
	referenceframe.TransformLookup
	LookupFunc func(ctx context.Context, target, source string, at time.Time) (spatialmath.Pose, error)
}

// NewTransformLookup returns a new injected transform source wrapping a real one, which may be nil.
func NewTransformLookup(lookup referenceframe.TransformLookup) *TransformLookup {
	return &TransformLookup{TransformLookup: lookup}
}

// Lookup calls the injected Lookup or the real version.
func (tl *TransformLookup) Lookup(ctx context.Context, target, source string, at time.Time) (spatialmath.Pose, error) {
	if tl.LookupFunc == nil {
		return tl.TransformLookup.Lookup(ctx, target, source, at)
	}
	return tl.LookupFunc(ctx, target, source, at)
}

// FixedPose returns a LookupFunc that always resolves to pose.
func FixedPose(pose spatialmath.Pose) func(ctx context.Context, target, source string, at time.Time) (spatialmath.Pose, error) {
	return func(ctx context.Context, target, source string, at time.Time) (spatialmath.Pose, error) {
		return pose, nil
	}
}
