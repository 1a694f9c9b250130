// Package internal holds the HTTP application core behind the mailroom API.
//
// Import "github.com/dmitrymomot/mailroom" instead, which re-exports the
// public surface.
//
// # Core Types
//
//   - App: owns the chi router, middleware, health endpoints, and the server lifecycle
//   - Context: request/response access plus JSON, HTML, and logging helpers
//   - Router: the interface handlers use to declare routes
//   - Handler: implemented by types that declare routes
//   - HandlerFunc: a route handler returning an error
//   - Middleware: wraps a HandlerFunc
//   - ErrorHandler: renders errors returned by handlers
//
// Context embeds context.Context and can be passed straight to service calls:
//
//	func (h *Emails) send(c internal.Context) error {
//	    resp, err := h.svc.SendNow(c, req)
//	    if err != nil {
//	        return err
//	    }
//	    return c.JSON(http.StatusOK, resp)
//	}
//
// # Errors
//
// Handlers return errors instead of writing failure responses. Unless
// WithErrorHandler replaces it, the default handler writes
// {"detail": message} with the HTTPError code, or a 500 for anything else.
//
// # Server Runtime
//
// Run starts the startup hooks, serves until SIGINT or SIGTERM, then shuts the
// server down and runs the shutdown hooks in order:
//
//	err := app.Run(":8000",
//	    internal.Logger(log),
//	    internal.StartupHook(sched.StartFunc()),
//	    internal.ShutdownHook(sched.Shutdown()),
//	)
package internal
