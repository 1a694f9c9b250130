package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailroom/pkg/cache"
	"github.com/dmitrymomot/mailroom/pkg/events"
	"github.com/dmitrymomot/mailroom/store"
)

// countingStore counts listing calls that reach the backend.
type countingStore struct {
	store.Store
	mu             sync.Mutex
	outcomeReads   int
	scheduledReads int
}

func (c *countingStore) FindOutcomes(ctx context.Context, q store.Query) ([]store.Outcome, error) {
	c.mu.Lock()
	c.outcomeReads++
	c.mu.Unlock()
	return c.Store.FindOutcomes(ctx, q)
}

func (c *countingStore) FindScheduled(ctx context.Context, q store.Query) ([]store.ScheduledRecord, error) {
	c.mu.Lock()
	c.scheduledReads++
	c.mu.Unlock()
	return c.Store.FindScheduled(ctx, q)
}

func TestCached(t *testing.T) {
	t.Parallel()

	builders := map[string]func(t *testing.T) (cache.Cache[[]store.Outcome], cache.Cache[[]store.ScheduledRecord]){
		"memory": func(t *testing.T) (cache.Cache[[]store.Outcome], cache.Cache[[]store.ScheduledRecord]) {
			return cache.NewMemory[[]store.Outcome](cache.MemoryConfig{}), cache.NewMemory[[]store.ScheduledRecord](cache.MemoryConfig{})
		},
		"redis": func(t *testing.T) (cache.Cache[[]store.Outcome], cache.Cache[[]store.ScheduledRecord]) {
			srv := miniredis.RunT(t)
			client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return cache.NewRedis[[]store.Outcome](client, "mailroom:outcomes", 0),
				cache.NewRedis[[]store.ScheduledRecord](client, "mailroom:scheduled", 0)
		},
	}

	for name, build := range builders {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			backend := &countingStore{Store: store.NewMemory()}
			outcomes, scheduled := build(t)
			s := store.NewCached(backend, outcomes, scheduled, store.WithCacheTTL(time.Minute))
			t.Cleanup(func() { _ = s.Close(ctx) })

			require.NoError(t, s.InsertOutcome(ctx, &store.Outcome{Type: store.TypeImmediate, Recipient: "a@example.com"}))

			for range 3 {
				got, err := s.FindOutcomes(ctx, store.Query{Limit: 50})
				require.NoError(t, err)
				require.Len(t, got, 1)
			}
			assert.Equal(t, 1, backend.outcomeReads)

			require.NoError(t, s.InsertOutcome(ctx, &store.Outcome{Type: store.TypeImmediate, Recipient: "b@example.com"}))
			got, err := s.FindOutcomes(ctx, store.Query{Limit: 50})
			require.NoError(t, err)
			assert.Len(t, got, 2)
			assert.Equal(t, 2, backend.outcomeReads)

			require.NoError(t, s.InsertScheduled(ctx, &store.ScheduledRecord{JobID: "email_1", Type: store.KindSingle}))
			pending, err := s.FindScheduled(ctx, store.Query{Status: store.StatusScheduled})
			require.NoError(t, err)
			require.Len(t, pending, 1)

			require.NoError(t, s.UpdateScheduledStatus(ctx, "email_1", store.StatusFired))
			pending, err = s.FindScheduled(ctx, store.Query{Status: store.StatusScheduled})
			require.NoError(t, err)
			assert.Empty(t, pending)
			assert.Equal(t, 2, backend.scheduledReads)
		})
	}
}

// gatedStore snapshots scheduled listings on entry and returns the
// snapshot only after release is closed.
type gatedStore struct {
	store.Store
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedStore) FindScheduled(ctx context.Context, q store.Query) ([]store.ScheduledRecord, error) {
	rows, err := g.Store.FindScheduled(ctx, q)
	g.once.Do(func() {
		close(g.started)
		<-g.release
	})
	return rows, err
}

func TestCached_LoadRacingWrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := &gatedStore{Store: store.NewMemory(), started: make(chan struct{}), release: make(chan struct{})}
	s := store.NewCached(backend,
		cache.NewMemory[[]store.Outcome](cache.MemoryConfig{}),
		cache.NewMemory[[]store.ScheduledRecord](cache.MemoryConfig{}),
		store.WithCacheTTL(time.Minute),
	)
	t.Cleanup(func() { _ = s.Close(ctx) })

	q := store.Query{Status: store.StatusScheduled}
	done := make(chan []store.ScheduledRecord, 1)
	go func() {
		rows, _ := s.FindScheduled(ctx, q)
		done <- rows
	}()

	<-backend.started
	require.NoError(t, s.InsertScheduled(ctx, &store.ScheduledRecord{JobID: "email_1", Type: store.KindSingle}))
	close(backend.release)
	assert.Empty(t, <-done, "load started before the write")

	pending, err := s.FindScheduled(ctx, q)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "email_1", pending[0].JobID)
}

type recordingPublisher struct {
	err    error
	mu     sync.Mutex
	events []events.Event
	closed bool
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

func TestPublishing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("emits one event per write", func(t *testing.T) {
		t.Parallel()

		pub := &recordingPublisher{}
		s := store.NewPublishing(store.NewMemory(), pub, nil)

		o := &store.Outcome{Type: store.TypeImmediate, Recipient: "a@example.com"}
		require.NoError(t, s.InsertOutcome(ctx, o))
		require.NoError(t, s.InsertScheduled(ctx, &store.ScheduledRecord{JobID: "email_1", Type: store.KindSingle}))
		require.NoError(t, s.UpdateScheduledStatus(ctx, "email_1", store.StatusCancelled))
		require.Error(t, s.UpdateScheduledStatus(ctx, "missing", store.StatusCancelled))

		require.Len(t, pub.events, 3)
		assert.Equal(t, store.EventOutcomeRecorded, pub.events[0].Type)
		assert.Equal(t, o.ID, pub.events[0].Key)
		assert.Equal(t, store.EventJobScheduled, pub.events[1].Type)
		assert.Equal(t, store.StatusChange{JobID: "email_1", Status: store.StatusCancelled}, pub.events[2].Data)

		require.NoError(t, s.Close(ctx))
		assert.True(t, pub.closed)
	})

	t.Run("publish failure does not fail the write", func(t *testing.T) {
		t.Parallel()

		mem := store.NewMemory()
		s := store.NewPublishing(mem, &recordingPublisher{err: errors.New("broker down")}, nil)

		require.NoError(t, s.InsertOutcome(ctx, &store.Outcome{Type: store.TypeImmediate}))
		got, err := mem.FindOutcomes(ctx, store.Query{})
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})
}
