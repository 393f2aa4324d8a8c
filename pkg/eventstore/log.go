package eventstore

import (
	"context"

	"github.com/dmitrymomot/abkit/pkg/experiment"
)

// Log is an append-only sink for raw events. Append must not retain the
// slice after it returns.
type Log interface {
	Append(ctx context.Context, events []experiment.Event) error
}

// Source replays previously logged events, oldest first.
type Source interface {
	Replay(ctx context.Context, fn func(experiment.Event) error) error
}

// Observer is notified about the fate of every event. Implementations must be
// safe for concurrent use and must not block.
type Observer interface {
	EventRecorded(experimentID, variantID, metric string)
	EventDuplicate(experimentID string)
	EventDropped(experimentID, reason string)
	EventRejected(reason string)
}

// Drop reasons reported to the Observer.
const (
	DropClosed     = "closed"
	DropBufferFull = "buffer_full"
	DropLogFailed  = "log_failed"
)

type noopObserver struct{}

func (noopObserver) EventRecorded(string, string, string) {}
func (noopObserver) EventDuplicate(string)                {}
func (noopObserver) EventDropped(string, string)          {}
func (noopObserver) EventRejected(string)                 {}
