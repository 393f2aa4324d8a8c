// Package redis connects abkit to Redis for multi-replica deployments.
//
// Connect opens a go-redis client with retries and Healthcheck turns it into
// a readiness probe. Two adapters are built on the client:
//
//   - Locker serializes experiment lifecycle writes across replicas with
//     SET NX PX and a token-checked release script.
//   - Deduper keeps a shared window of recently seen event ids with SET NX EX.
//
// All keys are namespaced by Config.KeyPrefix. Configuration is read from
// environment variables prefixed with REDIS_.
//
//	client, err := redis.Connect(ctx, cfg.Redis)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	registry := experiment.NewRegistry(store,
//		experiment.WithLocker(redis.NewLocker(client, cfg.Redis), 10*time.Second))
//	events := eventstore.New(registry,
//		eventstore.WithDeduper(redis.NewDeduper(client, cfg.Redis)))
package redis
