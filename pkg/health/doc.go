// Package health serves liveness and readiness probes built from named check
// functions with the func(context.Context) error signature shared by the db,
// redis, store and scheduler packages.
//
//	r.Get("/health/live", health.LivenessHandler())
//	r.Get("/health/ready", health.ReadinessHandler(health.Checks{
//		"store":     st.Ping,
//		"scheduler": scheduler.Healthcheck(sched),
//	}, health.WithTimeout(3*time.Second)))
//
// Probes answer in plain text ("OK" or "Service Unavailable") unless the
// client asks for JSON with an Accept header or ?format=json.
package health
