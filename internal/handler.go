package internal

// Handler declares routes on a router.
//
// Example:
//
//	type TemplatesHandler struct {
//	    svc *dispatch.Service
//	}
//
//	func (h *TemplatesHandler) Routes(r mailroom.Router) {
//	    r.GET("/api/templates", h.list)
//	}
type Handler interface {
	Routes(r Router)
}

// HandlerFunc is the signature for route handlers.
// Returning a non-nil error hands it to the app's ErrorHandler.
type HandlerFunc func(c Context) error

// Middleware wraps a HandlerFunc to add cross-cutting concerns.
//
// Example:
//
//	func Stamp(next mailroom.HandlerFunc) mailroom.HandlerFunc {
//	    return func(c mailroom.Context) error {
//	        c.SetHeader("X-Served-By", "mailroom")
//	        return next(c)
//	    }
//	}
type Middleware func(next HandlerFunc) HandlerFunc

// ErrorHandler renders errors returned from handlers.
type ErrorHandler func(Context, error) error
