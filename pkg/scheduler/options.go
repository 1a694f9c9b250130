package scheduler

import (
	"context"
	"log/slog"
	"time"
)

const (
	defaultWorkers      = 20
	defaultMaxInstances = 3
	defaultPollInterval = time.Second
)

type taskConfig struct {
	fn   Func
	name string
	spec string
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithWorkers sets the size of the worker pool. Defaults to 20.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithMaxInstances caps concurrent invocations per job id. Defaults to 3.
func WithMaxInstances(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxInstances = n
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger. If not set, a noop logger is used.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPollInterval caps how long the loop sleeps between checks.
// Defaults to one second.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.poll = d
		}
	}
}

// WithTask registers a recurring task. spec is a 5 field cron expression
// (minute hour day month weekday). The task runs under the id "task:<name>".
//
// Example:
//
//	scheduler.WithTask("purge_logs", "0 * * * *", func(ctx context.Context) error {
//	    return store.Purge(ctx, 30*24*time.Hour)
//	})
func WithTask(name, spec string, fn func(context.Context) error) Option {
	return func(s *Scheduler) {
		s.tasks = append(s.tasks, taskConfig{name: name, spec: spec, fn: fn})
	}
}
