package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers event ids in Redis for a fixed window so that replicas
// share one deduplication view. It implements eventstore.Deduper.
type Deduper struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewDeduper creates a deduper using the key prefix and DedupTTL of cfg.
func NewDeduper(client redis.UniversalClient, cfg Config) *Deduper {
	ttl := cfg.DedupTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Deduper{client: client, prefix: cfg.KeyPrefix + "event:", ttl: ttl}
}

// Seen marks key as seen and reports whether it already was.
func (d *Deduper) Seen(ctx context.Context, key string) (bool, error) {
	fresh, err := d.client.SetNX(ctx, d.prefix+key, 1, d.ttl).Result()
	if err != nil {
		return false, err
	}
	return !fresh, nil
}
