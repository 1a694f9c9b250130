package scheduler

import (
	"context"
	"errors"
)

var (
	errSchedulerNil        = errors.New("scheduler is nil")
	errSchedulerNotStarted = errors.New("scheduler not started")
)

// Healthcheck returns a health check function for the scheduler.
// Compatible with health.CheckFunc.
func Healthcheck(s *Scheduler) func(ctx context.Context) error {
	return func(context.Context) error {
		if s == nil {
			return errors.Join(ErrHealthcheckFailed, errSchedulerNil)
		}
		if !s.IsRunning() {
			return errors.Join(ErrHealthcheckFailed, errSchedulerNotStarted)
		}
		return nil
	}
}
