package middlewares

import (
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/mailroom/internal"
	"github.com/dmitrymomot/mailroom/pkg/metrics"
)

// unmatchedRoute labels requests no route pattern matched, keeping the
// route label bounded.
const unmatchedRoute = "unmatched"

// Metrics records request count and latency per method, route pattern, and
// status code. Install it outside Recover so panics are counted as 500s.
func Metrics() internal.Middleware {
	return func(next internal.HandlerFunc) internal.HandlerFunc {
		return func(c internal.Context) error {
			start := time.Now()
			err := next(c)

			route := unmatchedRoute
			if rctx := chi.RouteContext(c.Request().Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}
			metrics.ObserveHTTPRequest(c.Request().Method, route, c.ResponseWriter().Status(), time.Since(start))
			return err
		}
	}
}
