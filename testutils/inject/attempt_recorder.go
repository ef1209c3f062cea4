package inject

import (
	"context"

	"go.viam.com/gridnav/services/navigation"
)

// AttemptRecorder is an injected planning history.
type AttemptRecorder struct {
	navigation.AttemptRecorder
	RecordAttemptFunc func(ctx context.Context, attempt navigation.Attempt) error
}

// NewAttemptRecorder returns a new injected history wrapping a real one, which may be nil.
func NewAttemptRecorder(recorder navigation.AttemptRecorder) *AttemptRecorder {
	return &AttemptRecorder{AttemptRecorder: recorder}
}

// RecordAttempt calls the injected RecordAttempt or the real version.
func (r *AttemptRecorder) RecordAttempt(ctx context.Context, attempt navigation.Attempt) error {
	if r.RecordAttemptFunc == nil {
		return r.AttemptRecorder.RecordAttempt(ctx, attempt)
	}
	return r.RecordAttemptFunc(ctx, attempt)
}
