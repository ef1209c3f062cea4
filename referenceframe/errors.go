package referenceframe

import (
	"fmt"

	"github.com/pkg/errors"
)

// LookupErrorKind distinguishes why a transform lookup failed.
type LookupErrorKind int

// The ways a lookup can fail. All of them mean "pose unknown" to callers.
const (
	// NotFound means one of the frames has never been seen.
	NotFound LookupErrorKind = iota
	// Disconnected means both frames exist but no chain of transforms joins them.
	Disconnected
	// Extrapolation means the requested time is outside of the buffered data, or the data is
	// too old to be trusted.
	Extrapolation
)

func (k LookupErrorKind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Disconnected:
		return "disconnected"
	case Extrapolation:
		return "extrapolation"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// LookupError is returned by TransformLookup implementations when a pose cannot be produced.
type LookupError struct {
	Kind   LookupErrorKind
	Target string
	Source string
	Reason string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("cannot look up %q in frame %q (%s): %s", e.Source, e.Target, e.Kind, e.Reason)
}

// NewFrameNotFoundError is used when a frame has not been seen by the buffer.
func NewFrameNotFoundError(target, source, frame string) error {
	return &LookupError{Kind: NotFound, Target: target, Source: source, Reason: fmt.Sprintf("frame %q does not exist", frame)}
}

// NewDisconnectedError is used when two frames do not share a common ancestor.
func NewDisconnectedError(target, source string) error {
	return &LookupError{Kind: Disconnected, Target: target, Source: source, Reason: "frames are not part of the same tree"}
}

// NewExtrapolationError is used when a transform would have to be extrapolated.
func NewExtrapolationError(target, source, reason string) error {
	return &LookupError{Kind: Extrapolation, Target: target, Source: source, Reason: reason}
}

// AsLookupError returns the LookupError wrapped in err, if there is one.
func AsLookupError(err error) (*LookupError, bool) {
	var lookupErr *LookupError
	if errors.As(err, &lookupErr) {
		return lookupErr, true
	}
	return nil, false
}
