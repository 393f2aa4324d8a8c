package flags

import "errors"

var (
	// ErrFlagNotFound indicates the flag is neither defined nor linked to an experiment.
	ErrFlagNotFound = errors.New("feature flag not found")

	// ErrFlagExists indicates a flag with the same name is already defined.
	ErrFlagExists = errors.New("feature flag already exists")

	// ErrInvalidFlag indicates the provided flag parameters are invalid.
	ErrInvalidFlag = errors.New("invalid feature flag parameters")

	// ErrEmptyParticipant indicates a resolution request without a participant id.
	ErrEmptyParticipant = errors.New("participant id is required")
)
