// Package cache provides a small generic TTL cache with an in-memory and a
// Redis backend behind one interface.
//
// TTL semantics for Set: a positive duration expires the entry after that
// duration, zero uses the backend default, a negative duration never expires.
//
// GetOrSet collapses concurrent misses for the same key into one call of the
// loader:
//
//	page, err := cache.GetOrSet(ctx, c, "outcomes:50", func(ctx context.Context) ([]Outcome, time.Duration, error) {
//		rows, err := next.FindOutcomes(ctx, q)
//		return rows, 0, err
//	})
package cache
