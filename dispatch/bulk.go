package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/mailroom/ingest"
	"github.com/dmitrymomot/mailroom/pkg/metrics"
)

// BulkItem is the result for one recipient of a bulk or sheet send.
type BulkItem struct {
	Context   Context `json:"context,omitempty"`
	Recipient string  `json:"recipient"`
	Error     string  `json:"error,omitempty"`
	Success   bool    `json:"success"`
}

// BulkResult lists one item per recipient in input order.
type BulkResult struct {
	Items      []BulkItem
	Successful int
	Total      int
}

// Message summarizes the batch.
func (r BulkResult) Message() string {
	return fmt.Sprintf("Bulk email completed: %d/%d sent successfully", r.Successful, r.Total)
}

func (r *BulkResult) add(res Result, c Context) {
	item := BulkItem{Recipient: res.Recipient, Success: res.OK, Context: c}
	if res.Err != nil {
		item.Error = res.Err.Error()
	}
	if res.OK {
		r.Successful++
	}
	r.Total++
	r.Items = append(r.Items, item)
}

// DeliverBulk sends to recipients one by one, in order, pausing between
// sends. Recipient i uses contexts[i], falling back to contexts[0]; with no
// contexts the default context is used. When ctx ends, the remaining
// recipients are recorded as failed with the context error.
func (e *Executor) DeliverBulk(ctx context.Context, recipients []string, subject string, contexts []Context, tpl Template) BulkResult {
	if n := len(contexts); n > 0 && n < len(recipients) {
		e.logger.WarnContext(ctx, "fewer contexts than recipients, reusing the first context",
			slog.Int("recipients", len(recipients)),
			slog.Int("contexts", n),
		)
	}
	metrics.ObserveBulkBatch(len(recipients))

	res := BulkResult{Items: make([]BulkItem, 0, len(recipients))}
	for i, rcpt := range recipients {
		c := pickContext(contexts, i)
		if err := ctx.Err(); err != nil {
			res.add(Result{Recipient: rcpt, Err: err}, c)
			continue
		}
		res.add(e.DeliverSingle(ctx, rcpt, subject, c, tpl), c)
		if i < len(recipients)-1 {
			e.wait(ctx)
		}
	}
	return res
}

// DeliverSheet sends every row as a personalized message with the same
// pacing as DeliverBulk.
func (e *Executor) DeliverSheet(ctx context.Context, rows []ingest.Row) BulkResult {
	metrics.ObserveBulkBatch(len(rows))

	res := BulkResult{Items: make([]BulkItem, 0, len(rows))}
	for i, row := range rows {
		var c Context
		if row.Name != "" {
			c = Context{KeyName: row.Name}
		}
		if err := ctx.Err(); err != nil {
			res.add(Result{Recipient: row.Email, Err: err}, c)
			continue
		}
		res.add(e.DeliverPersonalized(ctx, row.Email, row.Subject, row.Body), c)
		if i < len(rows)-1 {
			e.wait(ctx)
		}
	}
	return res
}

func (e *Executor) wait(ctx context.Context) {
	if e.pause <= 0 {
		return
	}
	t := time.NewTimer(e.pause)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func pickContext(contexts []Context, i int) Context {
	switch {
	case len(contexts) == 0:
		return DefaultContext()
	case i < len(contexts):
		return contexts[i].withDefaults()
	default:
		return contexts[0].withDefaults()
	}
}
