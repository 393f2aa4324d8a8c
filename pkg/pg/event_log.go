package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/abkit/pkg/experiment"
)

var eventColumns = []string{"event_id", "experiment_id", "variant_id", "participant_id", "metric", "value", "occurred_at"}

// EventLog is the append-only raw event table. It implements
// eventstore.Log and eventstore.Source.
type EventLog struct {
	db DB
}

// NewEventLog creates an event log on db.
func NewEventLog(db DB) *EventLog {
	return &EventLog{db: db}
}

// Append bulk-inserts events with COPY.
func (l *EventLog) Append(ctx context.Context, events []experiment.Event) error {
	if len(events) == 0 {
		return nil
	}
	n, err := l.db.CopyFrom(ctx, pgx.Identifier{"metric_events"}, eventColumns,
		pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
			ev := events[i]
			var id *string
			if ev.ID != "" {
				id = &ev.ID
			}
			return []any{id, ev.ExperimentID, ev.VariantID, ev.ParticipantID, ev.Metric, float64(ev.Value), ev.Timestamp}, nil
		}))
	if err != nil {
		return fmt.Errorf("append %d events: %w", len(events), err)
	}
	if int(n) != len(events) {
		return fmt.Errorf("append events: copied %d of %d", n, len(events))
	}
	return nil
}

// Replay streams every logged event in insertion order.
func (l *EventLog) Replay(ctx context.Context, fn func(experiment.Event) error) error {
	rows, err := l.db.Query(ctx, `
		SELECT COALESCE(event_id, ''), experiment_id, variant_id, participant_id, metric, value, occurred_at
		  FROM metric_events
		 ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("replay events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ev    experiment.Event
			value float64
			at    time.Time
		)
		if err := rows.Scan(&ev.ID, &ev.ExperimentID, &ev.VariantID, &ev.ParticipantID, &ev.Metric, &value, &at); err != nil {
			return fmt.Errorf("scan event: %w", err)
		}
		ev.Value = experiment.Value(value)
		ev.Timestamp = at
		if err := fn(ev); err != nil {
			return err
		}
	}
	return rows.Err()
}
