// Package config loads the abkit process configuration.
//
// Values come from the environment, optionally seeded from .env files via
// godotenv, and are parsed with caarlos0/env into the closed Config struct.
// Each subsystem has its own prefixed section:
//
//	HTTP_*    httpserver.Config
//	PG_*      pg.Config
//	REDIS_*   redis.Config
//	SWEEP_*   SweepConfig
//	EVENTS_*  EventsConfig
//
// Load validates the result and reports every problem joined with
// ErrInvalidConfig:
//
//	cfg, err := config.Load()
//	if err != nil {
//		return err
//	}
package config
