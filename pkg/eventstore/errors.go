package eventstore

import "errors"

var (
	// ErrInvalidEvent indicates an event with missing required fields.
	ErrInvalidEvent = errors.New("invalid metric event")

	// ErrUnknownVariant indicates the event names a variant the experiment does not define.
	ErrUnknownVariant = errors.New("unknown variant")

	// ErrUnknownMetric indicates the event names a metric the experiment does not track.
	ErrUnknownMetric = errors.New("unknown metric")

	// ErrExperimentClosed indicates the experiment is not accepting events in its current state.
	ErrExperimentClosed = errors.New("experiment is not accepting events")

	// ErrDedupTimeout indicates the deduper did not answer in time.
	ErrDedupTimeout = errors.New("event dedup timed out")
)
