package scheduler

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"

	"github.com/dmitrymomot/mailroom/pkg/logger"
	"github.com/dmitrymomot/mailroom/pkg/metrics"
)

// TaskPrefix is prepended to the names of recurring tasks to form their ids.
const TaskPrefix = "task:"

// Func is the unit of work run by the scheduler.
type Func func(ctx context.Context) error

// JobInfo describes a pending job.
type JobInfo struct {
	At        time.Time `json:"at"`
	ID        string    `json:"id"`
	Recurring bool      `json:"recurring"`
}

type entry struct {
	at       time.Time
	fn       Func
	schedule cron.Schedule
	id       string
	seq      uint64
}

// Scheduler fires jobs at their due time on a bounded worker pool.
type Scheduler struct {
	clock  Clock
	logger *slog.Logger

	pending map[string]*entry
	running map[string]int
	seq     uint64
	tasks   []taskConfig

	sem      *semaphore.Weighted
	wake     chan struct{}
	stopLoop context.CancelFunc
	stopJobs context.CancelFunc
	loopDone chan struct{}
	wg       sync.WaitGroup

	poll         time.Duration
	workers      int
	maxInstances int

	mu      sync.Mutex
	started bool
}

// New creates a scheduler. Jobs may be registered before Start; they fire
// once the loop runs.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:        realClock{},
		logger:       logger.NewNope(),
		pending:      make(map[string]*entry),
		running:      make(map[string]int),
		wake:         make(chan struct{}, 1),
		poll:         defaultPollInterval,
		workers:      defaultWorkers,
		maxInstances: defaultMaxInstances,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sem = semaphore.NewWeighted(int64(s.workers))
	return s
}

// Schedule registers fn to run once at at. A pending job with the same id is
// replaced. at must be strictly after the clock's current time.
func (s *Scheduler) Schedule(id string, fn Func, at time.Time) (string, error) {
	if err := validate(id, fn); err != nil {
		return "", err
	}
	if !at.After(s.clock.Now()) {
		return "", ErrDueTimeNotInFuture
	}
	s.put(&entry{id: id, fn: fn, at: at})
	return id, nil
}

// Restore registers a job without the future check. Jobs whose due time has
// passed fire on the next loop iteration. It is meant for reloading
// persisted jobs at startup.
func (s *Scheduler) Restore(id string, fn Func, at time.Time) (string, error) {
	if err := validate(id, fn); err != nil {
		return "", err
	}
	s.put(&entry{id: id, fn: fn, at: at})
	return id, nil
}

// Cancel removes a pending job. Invocations already running are not
// interrupted.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	if _, ok := s.pending[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	delete(s.pending, id)
	n := len(s.pending)
	s.mu.Unlock()

	metrics.SetSchedulerPending(n)
	s.logger.Debug("job cancelled", slog.String("job_id", id))
	s.signal()
	return nil
}

// Pending lists pending jobs ordered by due time.
func (s *Scheduler) Pending() []JobInfo {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.pending))
	for _, e := range s.pending {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	slices.SortFunc(entries, byDue)
	out := make([]JobInfo, len(entries))
	for i, e := range entries {
		out[i] = JobInfo{ID: e.id, At: e.at, Recurring: e.schedule != nil}
	}
	return out
}

// Has reports whether id is pending.
func (s *Scheduler) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	return ok
}

// Running returns the number of in-flight invocations of id.
func (s *Scheduler) Running(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[id]
}

// IsRunning reports whether the loop has been started and not stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Start launches the loop. Recurring tasks are armed here, so an invalid
// cron expression is reported by Start.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	now := s.clock.Now()
	for _, t := range s.tasks {
		if t.fn == nil || strings.TrimSpace(t.name) == "" {
			return fmt.Errorf("%w: task %q has no name or handler", ErrInvalidSchedule, t.name)
		}
		sched, err := parser.Parse(t.spec)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, t.spec, err)
		}
		id := TaskPrefix + t.name
		s.seq++
		s.pending[id] = &entry{id: id, fn: Func(t.fn), schedule: sched, at: sched.Next(now), seq: s.seq}
	}

	loopCtx, stopLoop := context.WithCancel(context.WithoutCancel(ctx))
	jobsCtx, stopJobs := context.WithCancel(context.WithoutCancel(ctx))
	s.stopLoop = stopLoop
	s.stopJobs = stopJobs
	s.loopDone = make(chan struct{})
	s.started = true

	go s.loop(loopCtx, jobsCtx)

	s.logger.Info("scheduler started",
		slog.Int("workers", s.workers),
		slog.Int("max_instances", s.maxInstances),
		slog.Int("tasks", len(s.tasks)),
		slog.Int("pending", len(s.pending)),
	)
	return nil
}

// Stop halts the loop and waits for running jobs until ctx is done. Jobs
// still running at that point have their context cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.started = false
	stopLoop, stopJobs, loopDone := s.stopLoop, s.stopJobs, s.loopDone
	s.mu.Unlock()

	stopLoop()
	<-loopDone

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		stopJobs()
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		stopJobs()
		s.logger.Warn("scheduler stopped before running jobs finished", slog.Any("error", ctx.Err()))
		return ctx.Err()
	}
}

// StartFunc returns Start as a startup hook.
func (s *Scheduler) StartFunc() func(context.Context) error {
	return s.Start
}

// Shutdown returns a shutdown hook that tolerates a scheduler that never
// started.
func (s *Scheduler) Shutdown() func(context.Context) error {
	return func(ctx context.Context) error {
		if err := s.Stop(ctx); err != nil && !errors.Is(err, ErrNotStarted) {
			return err
		}
		return nil
	}
}

func (s *Scheduler) put(e *entry) {
	s.mu.Lock()
	_, replaced := s.pending[e.id]
	s.seq++
	e.seq = s.seq
	s.pending[e.id] = e
	n := len(s.pending)
	s.mu.Unlock()

	metrics.SetSchedulerPending(n)
	if replaced {
		s.logger.Info("job replaced", slog.String("job_id", e.id), slog.Time("due", e.at))
	} else {
		s.logger.Debug("job scheduled", slog.String("job_id", e.id), slog.Time("due", e.at))
	}
	s.signal()
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx, jobsCtx context.Context) {
	defer close(s.loopDone)

	for {
		now := s.clock.Now()
		due, next := s.takeDue(now)
		for _, e := range due {
			s.dispatch(ctx, jobsCtx, e)
		}

		wait := s.poll
		if !next.IsZero() {
			wait = min(wait, next.Sub(now))
		}

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-s.clock.WaitUntil(now.Add(wait)):
		}
	}
}

// takeDue removes every job due at now and returns them in dispatch order,
// together with the earliest remaining due time. Recurring jobs are re-armed
// for their next occurrence.
func (s *Scheduler) takeDue(now time.Time) ([]*entry, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*entry
	for id, e := range s.pending {
		if e.at.After(now) {
			continue
		}
		due = append(due, e)
		delete(s.pending, id)
	}
	slices.SortFunc(due, byDue)

	for _, e := range due {
		if e.schedule == nil {
			continue
		}
		s.seq++
		s.pending[e.id] = &entry{id: e.id, fn: e.fn, schedule: e.schedule, at: e.schedule.Next(now), seq: s.seq}
	}

	var next time.Time
	for _, e := range s.pending {
		if next.IsZero() || e.at.Before(next) {
			next = e.at
		}
	}
	metrics.SetSchedulerPending(len(s.pending))
	return due, next
}

// dispatch starts e on the pool. It blocks while every worker is busy, which
// keeps start order equal to due order.
func (s *Scheduler) dispatch(loopCtx, jobsCtx context.Context, e *entry) {
	s.mu.Lock()
	if s.running[e.id] >= s.maxInstances {
		s.mu.Unlock()
		metrics.IncSchedulerRun("skipped")
		s.logger.Warn("job skipped, maximum running instances reached",
			slog.String("job_id", e.id),
			slog.Int("max_instances", s.maxInstances),
		)
		return
	}
	s.running[e.id]++
	s.mu.Unlock()
	s.updateRunningGauge()

	if err := s.sem.Acquire(loopCtx, 1); err != nil {
		s.release(e.id)
		metrics.IncSchedulerRun("failed")
		s.logger.Warn("job dropped, scheduler stopping", slog.String("job_id", e.id))
		return
	}

	s.wg.Add(1)
	go s.run(jobsCtx, e)
}

func (s *Scheduler) run(ctx context.Context, e *entry) {
	defer s.wg.Done()
	defer s.release(e.id)
	defer s.sem.Release(1)

	ctx = logger.WithAttrs(ctx, slog.String("job_id", e.id))

	start := time.Now()
	if err := s.invoke(ctx, e); err != nil {
		metrics.IncSchedulerRun("failed")
		s.logger.ErrorContext(ctx, "job failed",
			slog.Duration("duration", time.Since(start)),
			slog.Any("error", err),
		)
		return
	}
	metrics.IncSchedulerRun("ok")
	s.logger.DebugContext(ctx, "job completed", slog.Duration("duration", time.Since(start)))
}

func (s *Scheduler) invoke(ctx context.Context, e *entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return e.fn(ctx)
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	if s.running[id] <= 1 {
		delete(s.running, id)
	} else {
		s.running[id]--
	}
	s.mu.Unlock()
	s.updateRunningGauge()
}

func (s *Scheduler) updateRunningGauge() {
	s.mu.Lock()
	total := 0
	for _, n := range s.running {
		total += n
	}
	s.mu.Unlock()
	metrics.SetSchedulerRunning(total)
}

func validate(id string, fn Func) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyID
	}
	if fn == nil {
		return ErrNilFunc
	}
	return nil
}

func byDue(a, b *entry) int {
	if c := a.at.Compare(b.at); c != 0 {
		return c
	}
	return cmp.Compare(a.seq, b.seq)
}
