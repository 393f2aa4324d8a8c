package allocator

import "errors"

var (
	// ErrNoVariants indicates the experiment has no variant with positive weight.
	ErrNoVariants = errors.New("experiment has no assignable variant")

	// ErrEmptyParticipant indicates an assignment request without a participant id.
	ErrEmptyParticipant = errors.New("participant id is required")
)
