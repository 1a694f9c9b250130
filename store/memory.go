package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// Memory keeps records in process memory. It is the default backend and the
// one used by tests; nothing survives a restart.
type Memory struct {
	now       func() time.Time
	scheduled map[string]*ScheduledRecord
	outcomes  []Outcome
	mu        sync.RWMutex
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		now:       time.Now,
		scheduled: make(map[string]*ScheduledRecord),
	}
}

func (m *Memory) InsertOutcome(_ context.Context, o *Outcome) error {
	if err := prepareOutcome(o, m.now()); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, *o)
	return nil
}

func (m *Memory) InsertScheduled(_ context.Context, rec *ScheduledRecord) error {
	if err := prepareScheduled(rec, m.now()); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *rec
	m.scheduled[rec.JobID] = &stored
	return nil
}

func (m *Memory) FindOutcomes(_ context.Context, q Query) ([]Outcome, error) {
	m.mu.RLock()
	out := make([]Outcome, 0, len(m.outcomes))
	// Newest insert first, so equal timestamps list in reverse insert order.
	for i := len(m.outcomes) - 1; i >= 0; i-- {
		out = append(out, m.outcomes[i])
	}
	m.mu.RUnlock()

	desc := descending(q.Sort, OrderDesc)
	slices.SortStableFunc(out, func(a, b Outcome) int {
		if desc {
			return b.SentAt.Compare(a.SentAt)
		}
		return a.SentAt.Compare(b.SentAt)
	})
	return limit(out, q.Limit), nil
}

func (m *Memory) FindScheduled(_ context.Context, q Query) ([]ScheduledRecord, error) {
	m.mu.RLock()
	out := make([]ScheduledRecord, 0, len(m.scheduled))
	for _, rec := range m.scheduled {
		if q.Status == "" || rec.Status == q.Status {
			out = append(out, *rec)
		}
	}
	m.mu.RUnlock()

	desc := descending(q.Sort, OrderAsc)
	slices.SortFunc(out, func(a, b ScheduledRecord) int {
		c := cmp.Or(a.ScheduleTime.Compare(b.ScheduleTime), a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.JobID, b.JobID))
		if desc {
			return -c
		}
		return c
	})
	return limit(out, q.Limit), nil
}

func (m *Memory) UpdateScheduledStatus(_ context.Context, jobID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.scheduled[jobID]
	if !ok {
		return ErrNotFound
	}
	rec.Status = status
	rec.UpdatedAt = m.now().UTC()
	return nil
}

func (m *Memory) Ping(context.Context) error  { return nil }
func (m *Memory) Close(context.Context) error { return nil }

func limit[T any](s []T, n int) []T {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}

var _ Store = (*Memory)(nil)
