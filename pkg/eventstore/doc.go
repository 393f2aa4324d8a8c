// Package eventstore records metric events and keeps running aggregates for
// analysis.
//
// Each experiment owns a shard of cells, one per (variant, metric) pair, and
// each cell has its own mutex, so concurrent writers only contend when they
// update the same cell. Cells hold a Welford running mean and variance along
// with sum, successes, minimum and maximum; distinct participants are tracked
// per variant.
//
// Events carrying an id are deduplicated through a Deduper. Record never
// blocks on persistence: when a raw Log is configured, events are queued on a
// bounded buffer and flushed in batches by a background goroutine; a full
// buffer or a closed store drops the event from the log and increments the
// Dropped counter instead of failing the caller.
//
//	store := eventstore.New(registry,
//	    eventstore.WithDeduper(eventstore.NewMemoryDeduper(100_000, time.Hour)),
//	    eventstore.WithLog(pgLog, 4096),
//	)
//	defer store.Close()
//
//	recorded, err := store.Record(ctx, ev)
//	snap := store.Snapshot(ev.ExperimentID)
package eventstore
