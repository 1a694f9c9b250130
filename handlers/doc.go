// Package handlers exposes the dispatch service over HTTP.
//
// Each handler type declares its routes through mailroom.Router:
//
//	app := mailroom.New(
//	    mailroom.WithErrorHandler(handlers.ErrorHandler),
//	    mailroom.WithHandlers(
//	        handlers.NewEmails(svc),
//	        handlers.NewSheets(svc),
//	        handlers.NewRecords(svc),
//	        handlers.NewSystem(svc, handlers.SystemConfig{...}),
//	    ),
//	)
//
// Request bodies are checked by the requests package before they reach the
// service. Handlers return errors and leave rendering to ErrorHandler.
package handlers
