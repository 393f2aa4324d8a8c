package pg

import "time"

// Config is read with the PG_ prefix, e.g. PG_CONN_URL.
type Config struct {
	ConnectionString  string        `env:"CONN_URL"`                            // ConnectionString is the connection string to the database.
	MaxOpenConns      int32         `env:"MAX_OPEN_CONNS" envDefault:"10"`      // MaxOpenConns is the maximum number of open connections to the database.
	MaxIdleConns      int32         `env:"MAX_IDLE_CONNS" envDefault:"2"`       // MaxIdleConns is the number of connections kept open when idle.
	HealthCheckPeriod time.Duration `env:"HEALTHCHECK_PERIOD" envDefault:"1m"`  // HealthCheckPeriod is the period between pool health checks.
	MaxConnIdleTime   time.Duration `env:"MAX_CONN_IDLE_TIME" envDefault:"10m"` // MaxConnIdleTime is how long a connection may stay idle before it is closed.
	MaxConnLifetime   time.Duration `env:"MAX_CONN_LIFETIME" envDefault:"30m"`  // MaxConnLifetime is the maximum age of a connection.

	RetryAttempts int           `env:"RETRY_ATTEMPTS" envDefault:"3"`  // RetryAttempts is the number of connection attempts.
	RetryInterval time.Duration `env:"RETRY_INTERVAL" envDefault:"2s"` // RetryInterval is the base wait between attempts, multiplied by the attempt number.

	MigrationsTable string `env:"MIGRATIONS_TABLE" envDefault:"abkit_migrations"` // MigrationsTable stores the applied schema version.
	AutoMigrate     bool   `env:"AUTO_MIGRATE" envDefault:"true"`                 // AutoMigrate applies embedded migrations on startup.
}
