package utils

import (
	"github.com/pkg/errors"
)

// NewUnexpectedTypeError is used when there is a type mismatch.
func NewUnexpectedTypeError(expected interface{}, actual interface{}) error {
	return errors.Errorf("expected %T but got %T", expected, actual)
}

// NewTopicNotBoundError is used when a message arrives for, or is sent to, a topic with no binding.
func NewTopicNotBoundError(topic string) error {
	return errors.Errorf("topic %q is not bound", topic)
}
