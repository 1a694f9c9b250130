package store

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/mailroom/pkg/events"
	"github.com/dmitrymomot/mailroom/pkg/logger"
)

// Event types emitted by Publishing.
const (
	EventOutcomeRecorded  = "outcome.recorded"
	EventJobScheduled     = "job.scheduled"
	EventJobStatusChanged = "job.status_changed"
)

// StatusChange is the payload of EventJobStatusChanged.
type StatusChange struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// Publishing emits an event after every successful write. A failed publish
// is logged and does not fail the write.
type Publishing struct {
	Store
	publisher events.Publisher
	logger    *slog.Logger
}

// NewPublishing wraps next. A nil logger discards publish failures.
func NewPublishing(next Store, publisher events.Publisher, log *slog.Logger) *Publishing {
	if log == nil {
		log = logger.NewNope()
	}
	return &Publishing{Store: next, publisher: publisher, logger: log}
}

func (p *Publishing) InsertOutcome(ctx context.Context, o *Outcome) error {
	if err := p.Store.InsertOutcome(ctx, o); err != nil {
		return err
	}
	p.publish(ctx, events.Event{Type: EventOutcomeRecorded, Key: o.ID, OccurredAt: o.SentAt, Data: o})
	return nil
}

func (p *Publishing) InsertScheduled(ctx context.Context, rec *ScheduledRecord) error {
	if err := p.Store.InsertScheduled(ctx, rec); err != nil {
		return err
	}
	p.publish(ctx, events.Event{Type: EventJobScheduled, Key: rec.JobID, OccurredAt: rec.UpdatedAt, Data: rec})
	return nil
}

func (p *Publishing) UpdateScheduledStatus(ctx context.Context, jobID, status string) error {
	if err := p.Store.UpdateScheduledStatus(ctx, jobID, status); err != nil {
		return err
	}
	p.publish(ctx, events.Event{Type: EventJobStatusChanged, Key: jobID, Data: StatusChange{JobID: jobID, Status: status}})
	return nil
}

// Close closes the publisher before the wrapped store.
func (p *Publishing) Close(ctx context.Context) error {
	if err := p.publisher.Close(); err != nil {
		p.logger.WarnContext(ctx, "failed to close event publisher", slog.Any("error", err))
	}
	return p.Store.Close(ctx)
}

func (p *Publishing) publish(ctx context.Context, e events.Event) {
	if err := p.publisher.Publish(ctx, e); err != nil {
		p.logger.WarnContext(ctx, "failed to publish event",
			slog.String("event_type", e.Type),
			slog.String("key", e.Key),
			slog.Any("error", err),
		)
	}
}

var _ Store = (*Publishing)(nil)
