// Package scheduler runs one-shot and recurring jobs in-process.
//
// A Scheduler keeps a table of pending jobs keyed by id. A single loop
// goroutine sleeps until the earliest due time, removes every job that is
// due and hands it to a bounded worker pool. Registering an id that is
// already pending replaces the earlier job.
//
// Guarantees:
//
//   - a job never runs before its due time, as reported by the Clock;
//   - jobs with distinct due times are dispatched in due-time order;
//   - at most MaxInstances invocations of the same id run at once, extra
//     invocations are skipped and logged;
//   - a failing or panicking job is logged and does not affect others.
//
// The table lives in memory only. Callers that need durability persist the
// intent themselves and call Restore at startup.
//
// Example:
//
//	s := scheduler.New(
//		scheduler.WithWorkers(20),
//		scheduler.WithMaxInstances(3),
//		scheduler.WithLogger(log),
//		scheduler.WithTask("purge", "0 3 * * *", purge),
//	)
//	if err := s.Start(ctx); err != nil {
//		return err
//	}
//	defer s.Stop(context.Background())
//
//	id, err := s.Schedule("email_3f9a0c1d", send, time.Now().Add(5*time.Minute))
package scheduler
