// Package middlewares provides the HTTP middleware stack of the mailroom API.
//
//   - RequestID assigns or propagates X-Request-ID; pair it with
//     RequestIDExtractor in the logger so every record carries request_id.
//   - Recover converts handler panics into *PanicError.
//   - Timeout bounds handler time and returns *TimeoutError; bulk routes get
//     a longer budget through WithPathTimeout.
//   - CORS answers preflight requests; the default allows every origin.
//   - Metrics records Prometheus request counters by chi route pattern.
//
// Recommended order:
//
//	mailroom.WithMiddleware(
//	    middlewares.CORS(),
//	    middlewares.RequestID(),
//	    middlewares.Metrics(),
//	    middlewares.Recover(),
//	    middlewares.Timeout(30*time.Second,
//	        middlewares.WithPathTimeout("/api/send-bulk-email", 10*time.Minute),
//	    ),
//	)
//
// PanicError and TimeoutError are plain errors; the application error handler
// decides how to render them.
package middlewares
