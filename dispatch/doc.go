// Package dispatch is the delivery pipeline behind the HTTP API.
//
// An [Executor] renders and sends messages through a mailer transport and
// converts every failure into a [Result]. A [Service] validates requests,
// sends immediately or registers jobs with the scheduler, and records an
// outcome for every attempt in the store.
//
// Bulk sends are strictly sequential with a fixed pause between messages:
//
//	res := exec.DeliverBulk(ctx, recipients, "Spring offer", contexts, dispatch.Inline(""))
//	log.Println(res.Message()) // Bulk email completed: 2/3 sent successfully
//
// Recipient i uses contexts[i], or contexts[0] when fewer contexts than
// recipients were given.
package dispatch
