package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	outcomesTable  = "email_logs"
	scheduledTable = "scheduled_emails"
)

// Postgres stores each record as a JSONB payload next to the columns used
// for filtering and ordering. The schema lives in store/migrations.
type Postgres struct {
	db  *pgxpool.Pool
	sb  sq.StatementBuilderType
	now func() time.Time
}

// NewPostgres wraps an open pool. The pool is closed by Close.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{
		db:  pool,
		sb:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now: time.Now,
	}
}

func (p *Postgres) InsertOutcome(ctx context.Context, o *Outcome) error {
	if err := prepareOutcome(o, p.now()); err != nil {
		return err
	}
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("store: marshal outcome: %w", err)
	}

	var jobID *string
	if o.JobID != "" {
		jobID = &o.JobID
	}
	q := p.sb.
		Insert(outcomesTable).
		Columns("id", "job_id", "type", "sent_at", "payload").
		Values(o.ID, jobID, o.Type, o.SentAt, payload)

	return p.exec(ctx, q, "insert outcome")
}

func (p *Postgres) InsertScheduled(ctx context.Context, rec *ScheduledRecord) error {
	if err := prepareScheduled(rec, p.now()); err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: marshal scheduled record: %w", err)
	}

	q := p.sb.
		Insert(scheduledTable).
		Columns("job_id", "type", "status", "schedule_time", "created_at", "updated_at", "payload").
		Values(rec.JobID, rec.Type, rec.Status, rec.ScheduleTime, rec.CreatedAt, rec.UpdatedAt, payload).
		Suffix(`ON CONFLICT (job_id) DO UPDATE SET
			type = EXCLUDED.type,
			status = EXCLUDED.status,
			schedule_time = EXCLUDED.schedule_time,
			updated_at = EXCLUDED.updated_at,
			payload = EXCLUDED.payload`)

	return p.exec(ctx, q, "insert scheduled record")
}

func (p *Postgres) FindOutcomes(ctx context.Context, q Query) ([]Outcome, error) {
	dir := "ASC"
	if descending(q.Sort, OrderDesc) {
		dir = "DESC"
	}
	sel := p.sb.
		Select("payload").
		From(outcomesTable).
		OrderBy("sent_at "+dir, "id "+dir)
	if q.Limit > 0 {
		sel = sel.Limit(uint64(q.Limit))
	}

	return findPayloads[Outcome](ctx, p.db, sel, "outcomes", nil)
}

func (p *Postgres) FindScheduled(ctx context.Context, q Query) ([]ScheduledRecord, error) {
	dir := "ASC"
	if descending(q.Sort, OrderAsc) {
		dir = "DESC"
	}
	sel := p.sb.
		Select("payload", "status", "updated_at").
		From(scheduledTable).
		OrderBy("schedule_time "+dir, "created_at "+dir, "job_id "+dir)
	if q.Status != "" {
		sel = sel.Where(sq.Eq{"status": q.Status})
	}
	if q.Limit > 0 {
		sel = sel.Limit(uint64(q.Limit))
	}

	// Status changes only touch the columns, so they win over the payload.
	return findPayloads(ctx, p.db, sel, "scheduled records", func(rows pgx.Rows, rec *ScheduledRecord) error {
		var (
			payload   []byte
			status    string
			updatedAt time.Time
		)
		if err := rows.Scan(&payload, &status, &updatedAt); err != nil {
			return err
		}
		if err := json.Unmarshal(payload, rec); err != nil {
			return err
		}
		rec.Status, rec.UpdatedAt = status, updatedAt.UTC()
		return nil
	})
}

func (p *Postgres) UpdateScheduledStatus(ctx context.Context, jobID, status string) error {
	q := p.sb.
		Update(scheduledTable).
		Set("status", status).
		Set("updated_at", p.now().UTC()).
		Where(sq.Eq{"job_id": jobID})

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("store: build update status: %w", err)
	}
	tag, err := p.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("store: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

func (p *Postgres) Close(context.Context) error {
	p.db.Close()
	return nil
}

func (p *Postgres) exec(ctx context.Context, q sq.Sqlizer, what string) error {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("store: build %s: %w", what, err)
	}
	if _, err := p.db.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("store: %s: %w", what, err)
	}
	return nil
}

// findPayloads runs sel and decodes every row into T. A nil scan decodes a
// single payload column.
func findPayloads[T any](ctx context.Context, db *pgxpool.Pool, sel sq.SelectBuilder, what string, scan func(pgx.Rows, *T) error) ([]T, error) {
	sqlStr, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build select %s: %w", what, err)
	}

	rows, err := db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query %s: %w", what, err)
	}
	defer rows.Close()

	if scan == nil {
		scan = func(rows pgx.Rows, v *T) error {
			var payload []byte
			if err := rows.Scan(&payload); err != nil {
				return err
			}
			return json.Unmarshal(payload, v)
		}
	}

	res := make([]T, 0)
	for rows.Next() {
		var v T
		if err := scan(rows, &v); err != nil {
			return nil, fmt.Errorf("store: scan %s: %w", what, err)
		}
		res = append(res, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate %s: %w", what, err)
	}
	return res, nil
}

var _ Store = (*Postgres)(nil)
