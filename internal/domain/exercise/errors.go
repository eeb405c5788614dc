package exercise

import "errors"

// ErrUnknownExercise is returned for exercise types outside the registry.
var ErrUnknownExercise = errors.New("unsupported exercise type")
