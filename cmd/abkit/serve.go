package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/abkit/pkg/allocator"
	"github.com/dmitrymomot/abkit/pkg/api"
	"github.com/dmitrymomot/abkit/pkg/config"
	"github.com/dmitrymomot/abkit/pkg/decision"
	"github.com/dmitrymomot/abkit/pkg/eventstore"
	"github.com/dmitrymomot/abkit/pkg/experiment"
	"github.com/dmitrymomot/abkit/pkg/flags"
	"github.com/dmitrymomot/abkit/pkg/httpserver"
	"github.com/dmitrymomot/abkit/pkg/logger"
	"github.com/dmitrymomot/abkit/pkg/pg"
	"github.com/dmitrymomot/abkit/pkg/redis"
	"github.com/dmitrymomot/abkit/pkg/stats"
	"github.com/dmitrymomot/abkit/pkg/telemetry"
)

// app is the wired service.
type app struct {
	log      *slog.Logger
	metrics  *telemetry.Metrics
	registry *experiment.Registry
	events   *eventstore.Store
	sweeper  *decision.Sweeper
	handler  http.Handler

	pool   *pgxpool.Pool
	client *goredis.Client
}

func newLogger(cfg config.Config) *slog.Logger {
	return logger.New(
		logger.WithEnvironment(cfg.Env, cfg.Service),
		logger.WithLevelName(cfg.LogLevel),
		logger.WithContextExtractors(api.RequestIDExtractor),
	)
}

// buildApp connects the configured backends and wires every component. The
// caller must call close on the returned app, also when an error is returned
// after partial construction.
func buildApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{log: log, metrics: telemetry.New()}

	var store experiment.Store = experiment.NewMemoryStore()
	var probes []httpserver.Probe
	if cfg.StoreBackend == config.BackendPostgres {
		pool, err := pg.Connect(ctx, cfg.Postgres)
		if err != nil {
			return a, err
		}
		a.pool = pool
		if cfg.Postgres.AutoMigrate {
			if err := pg.Migrate(ctx, pool, cfg.Postgres, log); err != nil {
				return a, err
			}
		}
		store = pg.NewExperimentStore(pool)
		probes = append(probes, httpserver.Probe{Name: "postgres", Check: pg.Healthcheck(pool)})
	}

	if cfg.NeedsRedis() {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return a, err
		}
		a.client = client
		probes = append(probes, httpserver.Probe{Name: "redis", Check: redis.Healthcheck(client)})
	}

	regOpts := []experiment.Option{experiment.WithLogger(log.With(logger.Component("registry")))}
	if cfg.Locker == config.BackendRedis {
		regOpts = append(regOpts, experiment.WithLocker(redis.NewLocker(a.client, cfg.Redis), 0))
	}
	a.registry = experiment.NewRegistry(store, regOpts...)
	if err := a.registry.Load(ctx); err != nil {
		return a, err
	}
	if cfg.DefinitionsPath != "" {
		if err := seedDefinitions(ctx, a.registry, cfg.DefinitionsPath, cfg.AutoStart, log); err != nil {
			return a, err
		}
	}

	var dedup eventstore.Deduper = eventstore.NewMemoryDeduper(cfg.Events.DedupCapacity, cfg.Events.DedupTTL)
	if cfg.DedupBackend == config.BackendRedis {
		dedup = redis.NewDeduper(a.client, cfg.Redis)
	}
	evOpts := []eventstore.Option{
		eventstore.WithDeduper(dedup),
		eventstore.WithDedupTimeout(cfg.Events.DedupTimeout),
		eventstore.WithObserver(a.metrics),
		eventstore.WithLogger(log.With(logger.Component("events"))),
	}
	var eventLog *pg.EventLog
	if a.pool != nil {
		eventLog = pg.NewEventLog(a.pool)
		if cfg.Events.PersistRaw {
			evOpts = append(evOpts,
				eventstore.WithLog(eventLog, cfg.Events.BufferSize),
				eventstore.WithBatching(cfg.Events.BatchSize, cfg.Events.FlushInterval),
			)
		}
	}
	a.events = eventstore.New(a.registry, evOpts...)
	if eventLog != nil && cfg.Events.Restore {
		if _, err := a.events.Restore(ctx, eventLog); err != nil {
			return a, err
		}
	}

	flagProvider, err := flags.NewMemoryProvider()
	if err != nil {
		return a, err
	}
	alloc := allocator.New(a.registry, allocator.WithLogger(log.With(logger.Component("allocator"))))
	resolver := flags.NewResolver(flagProvider, a.registry, alloc, flags.WithLogger(log.With(logger.Component("flags"))))

	analyzer := stats.NewAnalyzer(a.registry, a.events,
		stats.WithPower(cfg.Sweep.Power),
		stats.WithLogger(log.With(logger.Component("stats"))),
	)
	a.sweeper = decision.NewSweeper(a.registry, analyzer,
		decision.WithInterval(cfg.Sweep.Interval),
		decision.WithConcurrency(cfg.Sweep.Concurrency),
		decision.WithAutoConfirmAfter(cfg.Sweep.AutoConfirmAfter),
		decision.WithHistorySize(cfg.Sweep.HistorySize),
		decision.WithObserver(a.metrics),
		decision.WithLogger(log.With(logger.Component("sweeper"))),
	)

	a.handler = api.New(api.Deps{
		Registry:  a.registry,
		Flags:     flagProvider,
		Resolver:  resolver,
		Assigner:  alloc,
		Events:    a.events,
		Analyzer:  analyzer,
		Decisions: a.sweeper,
	},
		api.WithLogger(log.With(logger.Component("api"))),
		api.WithObserver(a.metrics),
		api.WithMetricsHandler(a.metrics.Handler()),
		api.WithProbes(cfg.HTTP.ProbeTimeout, probes...),
	).Router()

	return a, nil
}

// close flushes buffered events before the connections go away.
func (a *app) close() {
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			a.log.Error("failed to close event store", logger.Error(err))
		}
	}
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			a.log.Error("failed to close redis client", logger.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// seedDefinitions registers every definition from path that the registry does
// not know yet and optionally starts it.
func seedDefinitions(ctx context.Context, reg *experiment.Registry, path string, autoStart bool, log *slog.Logger) error {
	exps, err := experiment.LoadDefinitions(path)
	if err != nil {
		return err
	}
	created := 0
	for _, exp := range exps {
		if _, err := reg.Create(ctx, exp); err != nil {
			if errors.Is(err, experiment.ErrExperimentExists) {
				continue
			}
			return err
		}
		created++
		if autoStart {
			if _, err := reg.Start(ctx, exp.ID); err != nil {
				return err
			}
		}
	}
	log.InfoContext(ctx, "experiment definitions seeded",
		slog.String("path", path),
		logger.Count("definitions", len(exps)),
		logger.Count("created", created))
	return nil
}

func runServe(ctx context.Context, cfg config.Config) error {
	log := newLogger(cfg)

	a, err := buildApp(ctx, cfg, log)
	defer a.close()
	if err != nil {
		return err
	}

	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log.With(logger.Component("http"))))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx, a.handler)
	})
	if a.pool != nil {
		g.Go(func() error {
			err := a.registry.Watch(ctx, cfg.RegistryRefresh)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	if cfg.Sweep.Enabled {
		g.Go(func() error {
			err := a.sweeper.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	log.InfoContext(ctx, "abkit started",
		slog.String("store", cfg.StoreBackend),
		slog.String("dedup", cfg.DedupBackend),
		slog.String("locker", cfg.Locker),
		slog.String("version", version))
	err = g.Wait()
	log.Info("abkit stopped")
	return err
}

func runMigrate(ctx context.Context, cfg config.Config) error {
	log := newLogger(cfg)
	pool, err := pg.Connect(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()
	return pg.Migrate(ctx, pool, cfg.Postgres, log)
}
