// Package logger builds the service's *slog.Logger and provides attribute
// helpers so experiment, variant and request fields are named the same way in
// every component.
//
// New applies Option values on top of production defaults (JSON, INFO) and
// wraps the handler so attributes pulled from context.Context, such as the
// request id set by the API middleware, are attached to every record:
//
//	log := logger.New(
//	    logger.WithEnvironment(cfg.Env, "abkit"),
//	    logger.WithContextValue("request_id", requestIDKey{}),
//	)
//	log.InfoContext(ctx, "experiment started",
//	    logger.ExperimentID(exp.ID),
//	    logger.Component("registry"),
//	)
//
// Helpers such as Error return an empty slog.Attr for nil input, so they can
// be passed unconditionally.
package logger
