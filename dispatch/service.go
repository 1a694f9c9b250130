package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/dmitrymomot/mailroom/pkg/id"
	"github.com/dmitrymomot/mailroom/pkg/logger"
	"github.com/dmitrymomot/mailroom/pkg/mailer"
	"github.com/dmitrymomot/mailroom/pkg/metrics"
	"github.com/dmitrymomot/mailroom/pkg/scheduler"
	"github.com/dmitrymomot/mailroom/store"
)

// Job id prefixes.
const (
	PrefixSingle       = "email"
	PrefixPersonalized = "personalized_email"
	PrefixBulk         = "bulk_email"
	PrefixSheet        = "sheet_email"
)

// Listing limits.
const (
	PendingLimit        = 100
	DefaultOutcomeLimit = 50
	MaxOutcomeLimit     = 500
)

// Rehydrate policies for jobs whose due time passed while the process was down.
const (
	RehydrateFire = "fire"
	RehydrateDrop = "drop"
)

// Scheduler is the part of *scheduler.Scheduler the service uses.
type Scheduler interface {
	Schedule(id string, fn scheduler.Func, at time.Time) (string, error)
	Restore(id string, fn scheduler.Func, at time.Time) (string, error)
	Cancel(id string) error
}

// Service implements the send, schedule and listing operations.
type Service struct {
	exec      *Executor
	scheduler Scheduler
	store     store.Store
	logger    *slog.Logger
	now       func() time.Time
	newJobID  func(prefix string) string
	rehydrate string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the time source used to validate schedule times. It should
// match the scheduler clock.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithJobIDs replaces the job id generator.
func WithJobIDs(fn func(prefix string) string) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.newJobID = fn
		}
	}
}

// WithRehydratePolicy selects RehydrateFire (default) or RehydrateDrop.
func WithRehydratePolicy(policy string) ServiceOption {
	return func(s *Service) {
		if policy == RehydrateFire || policy == RehydrateDrop {
			s.rehydrate = policy
		}
	}
}

// NewService wires the executor, scheduler and store together.
func NewService(exec *Executor, sched Scheduler, st store.Store, opts ...ServiceOption) *Service {
	s := &Service{
		exec:      exec,
		scheduler: sched,
		store:     st,
		logger:    logger.NewNope(),
		now:       time.Now,
		newJobID:  id.NewJobID,
		rehydrate: RehydrateFire,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendNow renders and sends one message and records an "immediate" outcome.
// A failed delivery returns ErrDeliveryFailed after the outcome is stored.
func (s *Service) SendNow(ctx context.Context, req SingleRequest) (Response, error) {
	if err := s.validateSingle(req); err != nil {
		return Response{}, err
	}

	tpl := templateOf(req.Template, req.TemplateName)
	subject := s.exec.Subject(req.Subject, tpl)
	c := req.Context.withDefaults()
	res := s.exec.DeliverSingle(ctx, req.Recipient, subject, c, tpl)

	s.record(ctx, &store.Outcome{
		Type:      store.TypeImmediate,
		Recipient: req.Recipient,
		Subject:   subject,
		Context:   c,
		Success:   &res.OK,
		Error:     errString(res.Err),
	})

	if !res.OK {
		return Response{}, errors.Join(ErrDeliveryFailed, res.Err)
	}
	return success("Email sent successfully to " + req.Recipient), nil
}

// SendPersonalizedNow sends a caller supplied body.
func (s *Service) SendPersonalizedNow(ctx context.Context, req PersonalizedRequest) (Response, error) {
	if err := validRecipient(req.Recipient); err != nil {
		return Response{}, err
	}

	res := s.exec.DeliverPersonalized(ctx, req.Recipient, req.Subject, req.EmailBody)
	s.record(ctx, &store.Outcome{
		Type:      store.TypePersonalizedImmediate,
		Recipient: req.Recipient,
		Subject:   req.Subject,
		EmailBody: req.EmailBody,
		Success:   &res.OK,
		Error:     errString(res.Err),
	})

	if !res.OK {
		return Response{}, errors.Join(ErrDeliveryFailed, res.Err)
	}
	return success("Personalized email sent successfully to " + req.Recipient), nil
}

// SendBulkNow sends to every recipient and records one "bulk_immediate"
// outcome with the itemized results. Individual failures do not fail the call.
func (s *Service) SendBulkNow(ctx context.Context, req BulkRequest) (Response, error) {
	if err := s.validateBulk(req); err != nil {
		return Response{}, err
	}

	tpl := templateOf(req.Template, req.TemplateName)
	subject := s.exec.Subject(req.Subject, tpl)
	res := s.exec.DeliverBulk(ctx, req.Recipients, subject, req.Contexts, tpl)

	s.record(ctx, &store.Outcome{
		Type:       store.TypeBulkImmediate,
		Recipients: req.Recipients,
		Subject:    subject,
		Contexts:   contextMaps(req.Contexts),
		Results:    storeResults(res.Items),
	})

	resp := success(res.Message())
	resp.Results = res.Items
	return resp, nil
}

// SendSheetNow sends every spreadsheet row as a personalized message.
func (s *Service) SendSheetNow(ctx context.Context, req SheetRequest) (Response, error) {
	if err := validateSheet(req); err != nil {
		return Response{}, err
	}

	res := s.exec.DeliverSheet(ctx, req.Rows)
	s.record(ctx, &store.Outcome{
		Type:       store.TypeSheetImmediate,
		Recipients: sheetRecipients(req),
		Results:    storeResults(res.Items),
	})

	resp := success(res.Message())
	resp.Results = res.Items
	return resp, nil
}

// ScheduleLater registers a single templated message for later delivery.
func (s *Service) ScheduleLater(ctx context.Context, req SingleRequest) (Response, error) {
	at, err := s.dueTime(req.ScheduleTime)
	if err != nil {
		return Response{}, err
	}
	if err := s.validateSingle(req); err != nil {
		return Response{}, err
	}

	tpl := templateOf(req.Template, req.TemplateName)
	rec := &store.ScheduledRecord{
		JobID:        s.newJobID(PrefixSingle),
		Type:         store.KindSingle,
		Recipient:    req.Recipient,
		Subject:      s.exec.Subject(req.Subject, tpl),
		Context:      req.Context.withDefaults(),
		Template:     req.Template,
		TemplateName: req.TemplateName,
		ScheduleTime: at,
	}
	if err := s.register(ctx, rec); err != nil {
		return Response{}, err
	}
	return scheduled("Email", rec), nil
}

// SchedulePersonalized registers a personalized message for later delivery.
func (s *Service) SchedulePersonalized(ctx context.Context, req PersonalizedRequest) (Response, error) {
	at, err := s.dueTime(req.ScheduleTime)
	if err != nil {
		return Response{}, err
	}
	if err := validRecipient(req.Recipient); err != nil {
		return Response{}, err
	}

	rec := &store.ScheduledRecord{
		JobID:        s.newJobID(PrefixPersonalized),
		Type:         store.KindPersonalized,
		Recipient:    req.Recipient,
		Subject:      req.Subject,
		EmailBody:    req.EmailBody,
		ScheduleTime: at,
	}
	if err := s.register(ctx, rec); err != nil {
		return Response{}, err
	}
	return scheduled("Personalized email", rec), nil
}

// ScheduleBulk registers a bulk send for later delivery.
func (s *Service) ScheduleBulk(ctx context.Context, req BulkRequest) (Response, error) {
	at, err := s.dueTime(req.ScheduleTime)
	if err != nil {
		return Response{}, err
	}
	if err := s.validateBulk(req); err != nil {
		return Response{}, err
	}

	tpl := templateOf(req.Template, req.TemplateName)
	rec := &store.ScheduledRecord{
		JobID:        s.newJobID(PrefixBulk),
		Type:         store.KindBulk,
		Recipients:   req.Recipients,
		Subject:      s.exec.Subject(req.Subject, tpl),
		Contexts:     contextMaps(req.Contexts),
		Template:     req.Template,
		TemplateName: req.TemplateName,
		ScheduleTime: at,
	}
	if err := s.register(ctx, rec); err != nil {
		return Response{}, err
	}
	return scheduled("Bulk email", rec), nil
}

// ScheduleSheet registers spreadsheet rows for later delivery.
func (s *Service) ScheduleSheet(ctx context.Context, req SheetRequest) (Response, error) {
	at, err := s.dueTime(req.ScheduleTime)
	if err != nil {
		return Response{}, err
	}
	if err := validateSheet(req); err != nil {
		return Response{}, err
	}

	rows := make([]store.SheetRow, len(req.Rows))
	for i, r := range req.Rows {
		rows[i] = store.SheetRow{Email: r.Email, Subject: r.Subject, Body: r.Body, Name: r.Name}
	}
	rec := &store.ScheduledRecord{
		JobID:        s.newJobID(PrefixSheet),
		Type:         store.KindSheet,
		Recipients:   sheetRecipients(req),
		Rows:         rows,
		ScheduleTime: at,
	}
	if err := s.register(ctx, rec); err != nil {
		return Response{}, err
	}
	return scheduled("Sheet emails", rec), nil
}

// Cancel removes a pending job and marks its record cancelled.
func (s *Service) Cancel(ctx context.Context, jobID string) (Response, error) {
	if err := s.scheduler.Cancel(jobID); err != nil {
		if errors.Is(err, scheduler.ErrJobNotFound) {
			return Response{}, errors.Join(ErrJobNotFound, err)
		}
		return Response{}, err
	}
	s.setStatus(ctx, jobID, store.StatusCancelled)
	return success(fmt.Sprintf("Scheduled email %s cancelled", jobID)), nil
}

// ListPending returns up to PendingLimit records still waiting to fire,
// earliest first.
func (s *Service) ListPending(ctx context.Context) ([]store.ScheduledRecord, error) {
	return s.store.FindScheduled(ctx, store.Query{Status: store.StatusScheduled, Limit: PendingLimit, Sort: store.OrderAsc})
}

// ListOutcomes returns the newest outcomes. limit is clamped to
// [1, MaxOutcomeLimit]; zero means DefaultOutcomeLimit.
func (s *Service) ListOutcomes(ctx context.Context, limit int) ([]store.Outcome, error) {
	switch {
	case limit == 0:
		limit = DefaultOutcomeLimit
	case limit < 1:
		limit = 1
	case limit > MaxOutcomeLimit:
		limit = MaxOutcomeLimit
	}
	return s.store.FindOutcomes(ctx, store.Query{Limit: limit, Sort: store.OrderDesc})
}

// Ping reports whether the record store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Templates lists the named template library.
func (s *Service) Templates() []mailer.TemplateInfo {
	if s.exec.library == nil {
		return []mailer.TemplateInfo{}
	}
	return s.exec.library.List()
}

// register stores rec before handing the job to the scheduler, so a job
// that fires at once always finds its record. If the scheduler rejects the
// job the record is marked cancelled.
func (s *Service) register(ctx context.Context, rec *store.ScheduledRecord) error {
	stored := true
	if err := s.store.InsertScheduled(ctx, rec); err != nil {
		stored = false
		metrics.IncStoreError("insert_scheduled")
		s.logger.ErrorContext(ctx, "failed to store scheduled job",
			slog.String("job_id", rec.JobID),
			slog.Any("error", err),
		)
	}

	fn := s.job(*rec)
	_, err := s.scheduler.Schedule(rec.JobID, fn, rec.ScheduleTime)
	if errors.Is(err, scheduler.ErrDueTimeNotInFuture) {
		// The due time was accepted but passed while the record was stored.
		_, err = s.scheduler.Restore(rec.JobID, fn, rec.ScheduleTime)
	}
	if err != nil {
		if stored {
			s.setStatus(ctx, rec.JobID, store.StatusCancelled)
		}
		return errors.Join(ErrSchedule, err)
	}

	s.logger.InfoContext(ctx, "email scheduled",
		slog.String("job_id", rec.JobID),
		slog.String("type", rec.Type),
		slog.Time("schedule_time", rec.ScheduleTime),
	)
	return nil
}

func (s *Service) record(ctx context.Context, o *store.Outcome) {
	if err := s.store.InsertOutcome(ctx, o); err != nil {
		metrics.IncStoreError("insert_outcome")
		s.logger.ErrorContext(ctx, "failed to store outcome",
			slog.String("type", o.Type),
			slog.String("job_id", o.JobID),
			slog.Any("error", err),
		)
	}
}

func (s *Service) setStatus(ctx context.Context, jobID, status string) {
	if err := s.store.UpdateScheduledStatus(ctx, jobID, status); err != nil {
		metrics.IncStoreError("update_status")
		s.logger.ErrorContext(ctx, "failed to update scheduled job status",
			slog.String("job_id", jobID),
			slog.String("status", status),
			slog.Any("error", err),
		)
	}
}

func (s *Service) dueTime(t *DueTime) (time.Time, error) {
	if t == nil || t.IsZero() {
		return time.Time{}, invalid("Schedule time is required")
	}
	if !t.After(s.now()) {
		return time.Time{}, invalid("Schedule time must be in the future")
	}
	return t.UTC(), nil
}

func (s *Service) validateSingle(req SingleRequest) error {
	if err := validRecipient(req.Recipient); err != nil {
		return err
	}
	return s.validTemplate(req.TemplateName)
}

func (s *Service) validateBulk(req BulkRequest) error {
	if len(req.Recipients) == 0 {
		return invalid("At least one recipient is required")
	}
	for _, r := range req.Recipients {
		if err := validRecipient(r); err != nil {
			return err
		}
	}
	return s.validTemplate(req.TemplateName)
}

func (s *Service) validTemplate(name string) error {
	if name != "" && !s.exec.HasTemplate(name) {
		return invalid("Unknown template: " + name)
	}
	return nil
}

func validateSheet(req SheetRequest) error {
	if len(req.Rows) == 0 {
		return invalid("At least one email row is required")
	}
	for _, r := range req.Rows {
		if err := validRecipient(r.Email); err != nil {
			return err
		}
	}
	return nil
}

func validRecipient(addr string) error {
	if _, err := mail.ParseAddress(strings.TrimSpace(addr)); err != nil || strings.TrimSpace(addr) == "" {
		return invalid(fmt.Sprintf("Invalid recipient address: %q", addr))
	}
	return nil
}

func scheduled(what string, rec *store.ScheduledRecord) Response {
	resp := success(fmt.Sprintf("%s scheduled successfully for %s", what, rec.ScheduleTime.Format(mailer.TimeFormat)))
	resp.JobID = rec.JobID
	return resp
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func contextMaps(cs []Context) []map[string]string {
	if len(cs) == 0 {
		return nil
	}
	out := make([]map[string]string, len(cs))
	for i, c := range cs {
		out[i] = c.withDefaults()
	}
	return out
}

func fromMaps(ms []map[string]string) []Context {
	if len(ms) == 0 {
		return nil
	}
	out := make([]Context, len(ms))
	for i, m := range ms {
		out[i] = Context(m)
	}
	return out
}

func storeResults(items []BulkItem) []store.Result {
	out := make([]store.Result, len(items))
	for i, it := range items {
		out[i] = store.Result{Recipient: it.Recipient, Success: it.Success, Error: it.Error, Context: it.Context}
	}
	return out
}

func sheetRecipients(req SheetRequest) []string {
	out := make([]string, len(req.Rows))
	for i, r := range req.Rows {
		out[i] = r.Email
	}
	return out
}
