// Package httpserver runs the abkit HTTP API with context-driven graceful
// shutdown and JSON health probes.
//
// Run binds the listener first, so start hooks see the real address even
// when Addr uses port 0, then serves until the context is cancelled:
//
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, router); err != nil {
//		return err
//	}
//
// LivenessHandler and ReadinessHandler back the /health/live and
// /health/ready endpoints. Readiness runs each Probe with its own timeout and
// reports 503 with per-probe results when any of them fails.
package httpserver
