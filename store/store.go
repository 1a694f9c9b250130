package store

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrymomot/mailroom/pkg/id"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrNilRecord     = errors.New("store: nil record")
	ErrEmptyJobID    = errors.New("store: empty job id")
	ErrUnknownDriver = errors.New("store: unknown driver")
)

// Outcome types.
const (
	TypeImmediate             = "immediate"
	TypePersonalizedImmediate = "personalized_immediate"
	TypeBulkImmediate         = "bulk_immediate"
	TypeSheetImmediate        = "sheet_immediate"
	TypeScheduled             = "scheduled"
	TypePersonalizedScheduled = "personalized_scheduled"
	TypeBulkScheduled         = "bulk_scheduled"
	TypeSheetScheduled        = "sheet_scheduled"
)

// Scheduled record kinds.
const (
	KindSingle       = "single"
	KindPersonalized = "personalized"
	KindBulk         = "bulk"
	KindSheet        = "sheet"
)

// Scheduled record statuses.
const (
	StatusScheduled = "scheduled"
	StatusFired     = "fired"
	StatusCancelled = "cancelled"
)

// Result is the per-recipient entry of a bulk or sheet outcome.
type Result struct {
	Context   map[string]string `json:"context,omitempty" bson:"context,omitempty"`
	Recipient string            `json:"recipient" bson:"recipient"`
	Error     string            `json:"error,omitempty" bson:"error,omitempty"`
	Success   bool              `json:"success" bson:"success"`
}

// SheetRow is one spreadsheet message kept on a scheduled sheet record.
type SheetRow struct {
	Email   string `json:"email" bson:"email"`
	Subject string `json:"subject" bson:"subject"`
	Body    string `json:"body" bson:"body"`
	Name    string `json:"name,omitempty" bson:"name,omitempty"`
}

// Outcome records one delivery attempt. Success is nil for bulk and sheet
// outcomes, whose per-recipient status lives in Results.
type Outcome struct {
	SentAt     time.Time           `json:"sent_at" bson:"sent_at"`
	Success    *bool               `json:"success,omitempty" bson:"success,omitempty"`
	Context    map[string]string   `json:"context,omitempty" bson:"context,omitempty"`
	ID         string              `json:"id" bson:"_id"`
	JobID      string              `json:"job_id,omitempty" bson:"job_id,omitempty"`
	Type       string              `json:"type" bson:"type"`
	Recipient  string              `json:"recipient,omitempty" bson:"recipient,omitempty"`
	Subject    string              `json:"subject,omitempty" bson:"subject,omitempty"`
	EmailBody  string              `json:"email_body,omitempty" bson:"email_body,omitempty"`
	Error      string              `json:"error,omitempty" bson:"error,omitempty"`
	Recipients []string            `json:"recipients,omitempty" bson:"recipients,omitempty"`
	Contexts   []map[string]string `json:"contexts,omitempty" bson:"contexts,omitempty"`
	Results    []Result            `json:"results,omitempty" bson:"results,omitempty"`
}

// ScheduledRecord describes a deferred job so it can be listed and
// re-registered after a restart.
type ScheduledRecord struct {
	ScheduleTime time.Time           `json:"schedule_time" bson:"schedule_time"`
	CreatedAt    time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at" bson:"updated_at"`
	Context      map[string]string   `json:"context,omitempty" bson:"context,omitempty"`
	JobID        string              `json:"job_id" bson:"job_id"`
	Type         string              `json:"type" bson:"type"`
	Status       string              `json:"status" bson:"status"`
	Recipient    string              `json:"recipient,omitempty" bson:"recipient,omitempty"`
	Subject      string              `json:"subject,omitempty" bson:"subject,omitempty"`
	EmailBody    string              `json:"email_body,omitempty" bson:"email_body,omitempty"`
	Template     string              `json:"template,omitempty" bson:"template,omitempty"`
	TemplateName string              `json:"template_name,omitempty" bson:"template_name,omitempty"`
	Recipients   []string            `json:"recipients,omitempty" bson:"recipients,omitempty"`
	Contexts     []map[string]string `json:"contexts,omitempty" bson:"contexts,omitempty"`
	Rows         []SheetRow          `json:"rows,omitempty" bson:"rows,omitempty"`
}

// Order selects the listing direction. OrderDefault is newest first for
// outcomes and earliest due first for scheduled records.
type Order int

const (
	OrderDefault Order = iota
	OrderAsc
	OrderDesc
)

// Query filters a listing. Status applies to scheduled records only and
// matches every record when empty. A non-positive Limit returns everything.
type Query struct {
	Status string
	Limit  int
	Sort   Order
}

// Store is implemented by every backend.
type Store interface {
	// InsertOutcome fills ID and SentAt when they are empty.
	InsertOutcome(ctx context.Context, o *Outcome) error
	// InsertScheduled stores rec, replacing a record with the same job id.
	// CreatedAt, UpdatedAt and Status are filled when empty.
	InsertScheduled(ctx context.Context, rec *ScheduledRecord) error
	FindOutcomes(ctx context.Context, q Query) ([]Outcome, error)
	FindScheduled(ctx context.Context, q Query) ([]ScheduledRecord, error)
	// UpdateScheduledStatus returns ErrNotFound for unknown job ids.
	UpdateScheduledStatus(ctx context.Context, jobID, status string) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

func prepareOutcome(o *Outcome, now time.Time) error {
	if o == nil {
		return ErrNilRecord
	}
	if o.ID == "" {
		o.ID = id.NewULID()
	}
	if o.SentAt.IsZero() {
		o.SentAt = now
	}
	o.SentAt = o.SentAt.UTC()
	return nil
}

func prepareScheduled(rec *ScheduledRecord, now time.Time) error {
	if rec == nil {
		return ErrNilRecord
	}
	if rec.JobID == "" {
		return ErrEmptyJobID
	}
	if rec.Status == "" {
		rec.Status = StatusScheduled
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = now.UTC()
	rec.ScheduleTime = rec.ScheduleTime.UTC()
	return nil
}

func descending(o Order, fallback Order) bool {
	if o == OrderDefault {
		o = fallback
	}
	return o == OrderDesc
}
