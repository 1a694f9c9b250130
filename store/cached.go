package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/mailroom/pkg/cache"
	"github.com/dmitrymomot/mailroom/pkg/logger"
	"github.com/dmitrymomot/mailroom/pkg/metrics"
)

// Cached serves listings from a cache and clears it on every write.
// Cache failures are logged and fall through to the wrapped store.
//
// Keys carry a generation that every write bumps, so a listing loaded
// before a write can never be served after it.
type Cached struct {
	Store
	outcomes     cache.Cache[[]Outcome]
	scheduled    cache.Cache[[]ScheduledRecord]
	logger       *slog.Logger
	outcomesGen  atomic.Uint64
	scheduledGen atomic.Uint64
	ttl          time.Duration
}

// CachedOption configures Cached.
type CachedOption func(*Cached)

// WithCacheTTL sets how long a listing stays cached. Zero uses the cache
// default.
func WithCacheTTL(d time.Duration) CachedOption {
	return func(c *Cached) { c.ttl = d }
}

// WithCacheLogger sets the logger for cache failures.
func WithCacheLogger(l *slog.Logger) CachedOption {
	return func(c *Cached) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCached wraps next with listing caches.
func NewCached(next Store, outcomes cache.Cache[[]Outcome], scheduled cache.Cache[[]ScheduledRecord], opts ...CachedOption) *Cached {
	c := &Cached{
		Store:     next,
		outcomes:  outcomes,
		scheduled: scheduled,
		logger:    logger.NewNope(),
		ttl:       30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cached) InsertOutcome(ctx context.Context, o *Outcome) error {
	if err := c.Store.InsertOutcome(ctx, o); err != nil {
		return err
	}
	c.invalidate(ctx, &c.outcomesGen, c.outcomes.Clear)
	return nil
}

func (c *Cached) InsertScheduled(ctx context.Context, rec *ScheduledRecord) error {
	if err := c.Store.InsertScheduled(ctx, rec); err != nil {
		return err
	}
	c.invalidate(ctx, &c.scheduledGen, c.scheduled.Clear)
	return nil
}

func (c *Cached) UpdateScheduledStatus(ctx context.Context, jobID, status string) error {
	if err := c.Store.UpdateScheduledStatus(ctx, jobID, status); err != nil {
		return err
	}
	c.invalidate(ctx, &c.scheduledGen, c.scheduled.Clear)
	return nil
}

func (c *Cached) FindOutcomes(ctx context.Context, q Query) ([]Outcome, error) {
	return cached(ctx, c, c.outcomes, &c.outcomesGen, q, c.Store.FindOutcomes)
}

func (c *Cached) FindScheduled(ctx context.Context, q Query) ([]ScheduledRecord, error) {
	return cached(ctx, c, c.scheduled, &c.scheduledGen, q, c.Store.FindScheduled)
}

// Close closes both caches and then the wrapped store.
func (c *Cached) Close(ctx context.Context) error {
	return errors.Join(c.outcomes.Close(), c.scheduled.Close(), c.Store.Close(ctx))
}

func cached[T any](ctx context.Context, c *Cached, store cache.Cache[[]T], gen *atomic.Uint64, q Query, load func(context.Context, Query) ([]T, error)) ([]T, error) {
	key := fmt.Sprintf("%d:%s:%d:%d", gen.Load(), q.Status, q.Limit, q.Sort)
	return cache.GetOrSet(ctx, store, key, func(ctx context.Context) ([]T, time.Duration, error) {
		rows, err := load(ctx, q)
		return rows, c.ttl, err
	})
}

func (c *Cached) invalidate(ctx context.Context, gen *atomic.Uint64, clear func(context.Context) error) {
	gen.Add(1)
	if err := clear(ctx); err != nil {
		metrics.IncStoreError("cache_clear")
		c.logger.WarnContext(ctx, "failed to clear listing cache", slog.Any("error", err))
	}
}

var _ Store = (*Cached)(nil)
