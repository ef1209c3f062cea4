package motionplan

import "github.com/pkg/errors"

// ErrNoPath is returned when the search exhausts the state space without reaching the goal.
var ErrNoPath = errors.New("motion planner failed to find path")

// NewInvalidRequestError is used when a PlanRequest cannot be searched at all.
func NewInvalidRequestError(reason string) error {
	return errors.Errorf("invalid plan request: %s", reason)
}
