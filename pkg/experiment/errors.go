package experiment

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

var (
	// ErrNotFound indicates the requested experiment does not exist.
	ErrNotFound = errors.New("experiment not found")

	// ErrExperimentExists indicates an experiment with the same id is already registered.
	ErrExperimentExists = errors.New("experiment already exists")

	// ErrImmutableExperiment indicates an attempt to change variants after the experiment left draft.
	ErrImmutableExperiment = errors.New("experiment variants are immutable once started")

	// ErrConcurrentModification indicates a lifecycle write lost against a concurrent writer.
	ErrConcurrentModification = errors.New("experiment was modified concurrently")

	// ErrActionMismatch indicates a confirmation for an action other than the pending one.
	ErrActionMismatch = errors.New("action does not match the pending proposal")

	// ErrInvalidAction indicates an action string or action value that cannot be applied.
	ErrInvalidAction = errors.New("invalid experiment action")

	// ErrFlagInUse indicates another live experiment already drives the flag.
	ErrFlagInUse = errors.New("flag is already linked to another experiment")

	// ErrLockUnavailable indicates the distributed lifecycle lock could not be taken.
	ErrLockUnavailable = errors.New("experiment lock unavailable")
)

// ValidationError collects every problem found in an experiment definition,
// keyed by field path.
type ValidationError map[string][]string

func (v ValidationError) Error() string {
	if len(v) == 0 {
		return "invalid experiment definition"
	}
	parts := make([]string, 0, len(v))
	for _, field := range slices.Sorted(maps.Keys(v)) {
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(v[field], ", ")))
	}
	return "invalid experiment definition: " + strings.Join(parts, "; ")
}

func (v ValidationError) add(field, msg string) {
	v[field] = append(v[field], msg)
}

// Has reports whether a field has at least one problem.
func (v ValidationError) Has(field string) bool {
	return len(v[field]) > 0
}

// IsValidationError reports whether err carries a ValidationError.
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// TransitionError indicates the lifecycle has no transition for the trigger in the current state.
type TransitionError struct {
	ExperimentID string
	State        State
	Trigger      Trigger
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("experiment %q: no %q transition from state %q", e.ExperimentID, e.Trigger, e.State)
}

// IsTransitionError reports whether err carries a TransitionError.
func IsTransitionError(err error) bool {
	var e *TransitionError
	return errors.As(err, &e)
}
