package redis

import "time"

// Config is read with the REDIS_ prefix, e.g. REDIS_URL.
type Config struct {
	ConnectionURL  string        `env:"URL" envDefault:"redis://localhost:6379/0"` // ConnectionURL is in the format "redis://:password@localhost:6379/0".
	RetryAttempts  int           `env:"RETRY_ATTEMPTS" envDefault:"3"`             // RetryAttempts is the number of connection attempts.
	RetryInterval  time.Duration `env:"RETRY_INTERVAL" envDefault:"5s"`            // RetryInterval is the wait between connection attempts.
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"30s"`          // ConnectTimeout bounds the whole connection phase.

	KeyPrefix    string        `env:"KEY_PREFIX" envDefault:"abkit:"`        // KeyPrefix namespaces every key written by abkit.
	DedupTTL     time.Duration `env:"DEDUP_TTL" envDefault:"24h"`            // DedupTTL is how long an event id is remembered.
	LockWait     time.Duration `env:"LOCK_WAIT" envDefault:"2s"`             // LockWait bounds how long Lock polls for a held lock.
	LockInterval time.Duration `env:"LOCK_RETRY_INTERVAL" envDefault:"50ms"` // LockInterval is the poll interval while waiting for a lock.
}
