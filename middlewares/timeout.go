package middlewares

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrymomot/mailroom/internal"
)

// DefaultTimeout is the default request timeout.
const DefaultTimeout = 30 * time.Second

// TimeoutConfig configures the timeout middleware.
type TimeoutConfig struct {
	// Paths overrides Timeout for exact request paths.
	Paths   map[string]time.Duration
	Timeout time.Duration
}

// TimeoutOption configures TimeoutConfig.
type TimeoutOption func(*TimeoutConfig)

// WithPathTimeout gives requests to path their own budget. Bulk routes use
// it, since each recipient adds a pacing pause.
func WithPathTimeout(path string, d time.Duration) TimeoutOption {
	return func(cfg *TimeoutConfig) {
		if path != "" && d > 0 {
			cfg.Paths[path] = d
		}
	}
}

// Timeout bounds handler execution. When the budget runs out a *TimeoutError
// is returned to the error handler. The handler keeps running; it should
// watch GetTimeoutContext(c).Done() to stop early.
func Timeout(timeout time.Duration, opts ...TimeoutOption) internal.Middleware {
	cfg := &TimeoutConfig{
		Timeout: timeout,
		Paths:   make(map[string]time.Duration),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return func(next internal.HandlerFunc) internal.HandlerFunc {
		return func(c internal.Context) error {
			budget := cfg.Timeout
			if d, ok := cfg.Paths[c.Request().URL.Path]; ok {
				budget = d
			}

			ctx, cancel := context.WithTimeout(c.Context(), budget)
			defer cancel()
			c.Set(timeoutContextKey{}, ctx)

			done := make(chan error, 1)
			go func() {
				done <- next(c)
			}()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					c.LogWarn("request timeout", "timeout", budget.String(), "path", c.Request().URL.Path)
					return &TimeoutError{Duration: budget}
				}
				return ctx.Err()
			}
		}
	}
}

type timeoutContextKey struct{}

// GetTimeoutContext returns the context bounded by Timeout, or the request
// context when the middleware is not installed.
func GetTimeoutContext(c internal.Context) context.Context {
	if v, ok := c.Get(timeoutContextKey{}).(context.Context); ok {
		return v
	}
	return c.Context()
}
