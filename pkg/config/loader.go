package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Load reads the given .env files (".env" when none are named; a missing
// default file is fine), parses the process environment into Config and
// validates it. Variables already set in the environment win over file values.
func Load(files ...string) (Config, error) {
	if err := loadEnvFiles(files); err != nil {
		return Config{}, err
	}
	return parse(env.Options{})
}

// LoadFrom parses Config from an explicit variable set instead of the
// process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

// MustLoad works like Load but panics on failure.
func MustLoad(files ...string) Config {
	cfg, err := Load(files...)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		err := godotenv.Load()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return errors.Join(ErrLoadingEnvFile, err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return errors.Join(ErrLoadingEnvFile, err)
	}
	return nil
}

func parse(opts env.Options) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks backend selectors and numeric bounds and reports every
// problem at once.
func (c Config) Validate() error {
	var errs []error
	oneOf := func(name, v string, allowed ...string) {
		if !slices.Contains(allowed, v) {
			errs = append(errs, fmt.Errorf("%s must be one of %v, got %q", name, allowed, v))
		}
	}
	positive := func(name string, ok bool) {
		if !ok {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	oneOf("STORE_BACKEND", c.StoreBackend, BackendMemory, BackendPostgres)
	oneOf("DEDUP_BACKEND", c.DedupBackend, BackendMemory, BackendRedis)
	oneOf("LOCKER", c.Locker, BackendNone, BackendRedis)

	if c.StoreBackend == BackendPostgres && c.Postgres.ConnectionString == "" {
		errs = append(errs, errors.New("PG_CONN_URL is required with the postgres store"))
	}
	if c.NeedsRedis() && c.Redis.ConnectionURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required with redis backends"))
	}

	positive("REGISTRY_REFRESH_INTERVAL", c.RegistryRefresh > 0)
	positive("SWEEP_INTERVAL", c.Sweep.Interval > 0)
	positive("SWEEP_CONCURRENCY", c.Sweep.Concurrency > 0)
	positive("SWEEP_HISTORY_SIZE", c.Sweep.HistorySize > 0)
	if c.Sweep.AutoConfirmAfter < 0 {
		errs = append(errs, errors.New("SWEEP_AUTO_CONFIRM_AFTER cannot be negative"))
	}
	if c.Sweep.Power <= 0 || c.Sweep.Power >= 1 {
		errs = append(errs, errors.New("SWEEP_POWER must be in (0, 1)"))
	}

	positive("EVENTS_DEDUP_CAPACITY", c.Events.DedupCapacity > 0)
	positive("EVENTS_DEDUP_TTL", c.Events.DedupTTL > 0)
	positive("EVENTS_DEDUP_TIMEOUT", c.Events.DedupTimeout > 0)
	positive("EVENTS_BUFFER_SIZE", c.Events.BufferSize > 0)
	positive("EVENTS_BATCH_SIZE", c.Events.BatchSize > 0)
	positive("EVENTS_FLUSH_INTERVAL", c.Events.FlushInterval > 0)

	if c.DefinitionsPath != "" {
		if _, err := os.Stat(c.DefinitionsPath); err != nil {
			errs = append(errs, fmt.Errorf("DEFINITIONS_PATH: %w", err))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
}
