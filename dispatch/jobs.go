package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/mailroom/ingest"
	"github.com/dmitrymomot/mailroom/pkg/scheduler"
	"github.com/dmitrymomot/mailroom/store"
)

var outcomeTypes = map[string]string{
	store.KindSingle:       store.TypeScheduled,
	store.KindPersonalized: store.TypePersonalizedScheduled,
	store.KindBulk:         store.TypeBulkScheduled,
	store.KindSheet:        store.TypeSheetScheduled,
}

// job builds the function the scheduler runs for rec. It delivers, records
// one outcome and marks the record fired. A failed single or personalized
// delivery is returned as the job error.
func (s *Service) job(rec store.ScheduledRecord) scheduler.Func {
	return func(ctx context.Context) error {
		outcome := &store.Outcome{
			JobID:   rec.JobID,
			Type:    outcomeTypes[rec.Type],
			Subject: rec.Subject,
		}

		var err error
		switch rec.Type {
		case store.KindSingle:
			c := Context(rec.Context)
			res := s.exec.DeliverSingle(ctx, rec.Recipient, rec.Subject, c, templateOf(rec.Template, rec.TemplateName))
			outcome.Recipient, outcome.Context = rec.Recipient, rec.Context
			outcome.Success, outcome.Error, err = &res.OK, errString(res.Err), res.Err

		case store.KindPersonalized:
			res := s.exec.DeliverPersonalized(ctx, rec.Recipient, rec.Subject, rec.EmailBody)
			outcome.Recipient, outcome.EmailBody = rec.Recipient, rec.EmailBody
			outcome.Success, outcome.Error, err = &res.OK, errString(res.Err), res.Err

		case store.KindBulk:
			tpl := templateOf(rec.Template, rec.TemplateName)
			res := s.exec.DeliverBulk(ctx, rec.Recipients, rec.Subject, fromMaps(rec.Contexts), tpl)
			outcome.Recipients, outcome.Contexts = rec.Recipients, rec.Contexts
			outcome.Results = storeResults(res.Items)

		case store.KindSheet:
			rows := make([]ingest.Row, len(rec.Rows))
			for i, r := range rec.Rows {
				rows[i] = ingest.Row{Email: r.Email, Subject: r.Subject, Body: r.Body, Name: r.Name}
			}
			res := s.exec.DeliverSheet(ctx, rows)
			outcome.Recipients = rec.Recipients
			outcome.Results = storeResults(res.Items)

		default:
			return fmt.Errorf("dispatch: unknown scheduled job type %q", rec.Type)
		}

		s.record(ctx, outcome)
		s.setStatus(ctx, rec.JobID, store.StatusFired)
		s.logger.InfoContext(ctx, "scheduled email job completed",
			slog.String("job_id", rec.JobID),
			slog.String("type", rec.Type),
		)
		return err
	}
}

// Rehydrate re-registers every record still marked scheduled. Records whose
// due time already passed fire on the next scheduler tick, or are marked
// cancelled under RehydrateDrop. It returns the number of restored jobs.
func (s *Service) Rehydrate(ctx context.Context) (int, error) {
	recs, err := s.store.FindScheduled(ctx, store.Query{Status: store.StatusScheduled})
	if err != nil {
		return 0, fmt.Errorf("dispatch: load scheduled jobs: %w", err)
	}

	now := s.now()
	var (
		restored int
		errs     []error
	)
	for _, rec := range recs {
		overdue := !rec.ScheduleTime.After(now)
		if overdue && s.rehydrate == RehydrateDrop {
			s.logger.WarnContext(ctx, "dropping overdue scheduled job",
				slog.String("job_id", rec.JobID),
				slog.Time("schedule_time", rec.ScheduleTime),
			)
			s.setStatus(ctx, rec.JobID, store.StatusCancelled)
			continue
		}

		if _, err := s.scheduler.Restore(rec.JobID, s.job(rec), rec.ScheduleTime); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rec.JobID, err))
			continue
		}
		restored++
		if overdue {
			s.logger.InfoContext(ctx, "overdue scheduled job will fire now",
				slog.String("job_id", rec.JobID),
				slog.Time("schedule_time", rec.ScheduleTime),
			)
		}
	}

	s.logger.InfoContext(ctx, "scheduled jobs rehydrated",
		slog.Int("restored", restored),
		slog.Int("total", len(recs)),
	)
	return restored, errors.Join(errs...)
}
