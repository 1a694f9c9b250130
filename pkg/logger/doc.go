// Package logger builds the structured slog loggers used across mailroom.
//
// Records are written as JSON to stdout. Request scoped values such as the
// request id are attached by ContextExtractor functions wrapped around the
// handler. Code that does not own an extractor can still tag records by
// stashing attributes in the context with WithAttrs:
//
//	log := logger.New(logger.Config{Level: "info"}, middlewares.RequestIDExtractor())
//	ctx = logger.WithAttrs(ctx, slog.String("job_id", id))
//	log.InfoContext(ctx, "email delivered", slog.String("recipient", to))
//
// When Config.Sentry.DSN is set, warnings are additionally shipped to Sentry
// as logs and errors are reported as Sentry issues.
package logger
