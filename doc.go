// Package mailroom is the HTTP shell of the mailroom email dispatch service.
//
// It re-exports the application core from internal so that handlers,
// middlewares, and cmd/mailroom depend on one small surface:
//
//	app := mailroom.New(
//	    mailroom.WithLogger(log),
//	    mailroom.WithMiddleware(
//	        middlewares.CORS(),
//	        middlewares.RequestID(),
//	        middlewares.Metrics(),
//	        middlewares.Recover(),
//	    ),
//	    mailroom.WithErrorHandler(handlers.ErrorHandler),
//	    mailroom.WithHandlers(handlers.NewEmails(svc), handlers.NewRecords(svc)),
//	)
//
//	err := app.Run(cfg.HTTP.Addr,
//	    mailroom.Logger(log),
//	    mailroom.StartupHook(sched.StartFunc()),
//	    mailroom.ShutdownHook(sched.Shutdown()),
//	)
//
// The delivery pipeline itself lives in the dispatch package; this package
// only routes requests to it.
package mailroom
