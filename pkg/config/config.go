package config

import (
	"time"

	"github.com/dmitrymomot/abkit/pkg/httpserver"
	"github.com/dmitrymomot/abkit/pkg/pg"
	"github.com/dmitrymomot/abkit/pkg/redis"
)

// Backend selectors.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendNone     = "none"
)

// Config is the complete process configuration.
type Config struct {
	Env             string `env:"APP_ENV" envDefault:"development"`
	Service         string `env:"SERVICE_NAME" envDefault:"abkit"`
	LogLevel        string `env:"LOG_LEVEL"`
	DefinitionsPath string `env:"DEFINITIONS_PATH"`
	AutoStart       bool   `env:"AUTO_START" envDefault:"false"`

	StoreBackend string `env:"STORE_BACKEND" envDefault:"memory"` // memory or postgres
	DedupBackend string `env:"DEDUP_BACKEND" envDefault:"memory"` // memory or redis
	Locker       string `env:"LOCKER" envDefault:"none"`          // none or redis

	RegistryRefresh time.Duration `env:"REGISTRY_REFRESH_INTERVAL" envDefault:"5s"` // postgres store only

	HTTP     httpserver.Config `envPrefix:"HTTP_"`
	Postgres pg.Config         `envPrefix:"PG_"`
	Redis    redis.Config      `envPrefix:"REDIS_"`
	Sweep    SweepConfig       `envPrefix:"SWEEP_"`
	Events   EventsConfig      `envPrefix:"EVENTS_"`
}

// SweepConfig controls the periodic decision sweep.
type SweepConfig struct {
	Enabled          bool          `env:"ENABLED" envDefault:"true"`
	Interval         time.Duration `env:"INTERVAL" envDefault:"1m"`
	Concurrency      int           `env:"CONCURRENCY" envDefault:"4"`
	AutoConfirmAfter int           `env:"AUTO_CONFIRM_AFTER" envDefault:"0"` // 0 leaves confirmation to an operator
	HistorySize      int           `env:"HISTORY_SIZE" envDefault:"50"`
	Power            float64       `env:"POWER" envDefault:"0.8"`
}

// EventsConfig controls the metric event store.
type EventsConfig struct {
	DedupCapacity int           `env:"DEDUP_CAPACITY" envDefault:"100000"`
	DedupTTL      time.Duration `env:"DEDUP_TTL" envDefault:"24h"`
	DedupTimeout  time.Duration `env:"DEDUP_TIMEOUT" envDefault:"50ms"` // bound on the redis dedup call
	PersistRaw    bool          `env:"PERSIST_RAW" envDefault:"true"`   // only with the postgres store
	BufferSize    int           `env:"BUFFER_SIZE" envDefault:"10000"`
	BatchSize     int           `env:"BATCH_SIZE" envDefault:"500"`
	FlushInterval time.Duration `env:"FLUSH_INTERVAL" envDefault:"1s"`
	Restore       bool          `env:"RESTORE" envDefault:"true"` // rebuild aggregates from the raw log on boot
}

// IsProduction reports whether the process runs in a production-like environment.
func (c Config) IsProduction() bool {
	switch c.Env {
	case "production", "prod", "staging", "stage":
		return true
	}
	return false
}

// NeedsRedis reports whether any component is backed by Redis.
func (c Config) NeedsRedis() bool {
	return c.DedupBackend == BackendRedis || c.Locker == BackendRedis
}
