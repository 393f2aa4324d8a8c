// Package pg is the PostgreSQL backend for abkit.
//
// Connect opens a pgx pool with retries and Migrate applies the embedded goose
// migrations. On top of the pool the package provides two stores:
//
//   - ExperimentStore keeps experiment documents in the experiments table and
//     implements experiment.Store, using the version column for
//     compare-and-swap updates.
//   - EventLog appends raw metric events to metric_events with COPY and
//     replays them in insertion order. It implements eventstore.Log and
//     eventstore.Source.
//
// Configuration is read from environment variables prefixed with PG_, for
// example PG_CONN_URL and PG_MAX_OPEN_CONNS.
//
//	pool, err := pg.Connect(ctx, cfg.Postgres)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg.Postgres, log); err != nil {
//		return err
//	}
//	registry := experiment.NewRegistry(pg.NewExperimentStore(pool))
package pg
