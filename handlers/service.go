package handlers

import (
	"context"

	"github.com/dmitrymomot/mailroom/dispatch"
	"github.com/dmitrymomot/mailroom/pkg/mailer"
	"github.com/dmitrymomot/mailroom/store"
)

// Service is the dispatch surface the handlers call.
// *dispatch.Service implements it.
type Service interface {
	SendNow(ctx context.Context, req dispatch.SingleRequest) (dispatch.Response, error)
	SendPersonalizedNow(ctx context.Context, req dispatch.PersonalizedRequest) (dispatch.Response, error)
	SendBulkNow(ctx context.Context, req dispatch.BulkRequest) (dispatch.Response, error)
	SendSheetNow(ctx context.Context, req dispatch.SheetRequest) (dispatch.Response, error)
	ScheduleLater(ctx context.Context, req dispatch.SingleRequest) (dispatch.Response, error)
	SchedulePersonalized(ctx context.Context, req dispatch.PersonalizedRequest) (dispatch.Response, error)
	ScheduleBulk(ctx context.Context, req dispatch.BulkRequest) (dispatch.Response, error)
	ScheduleSheet(ctx context.Context, req dispatch.SheetRequest) (dispatch.Response, error)
	Cancel(ctx context.Context, jobID string) (dispatch.Response, error)
	ListPending(ctx context.Context) ([]store.ScheduledRecord, error)
	ListOutcomes(ctx context.Context, limit int) ([]store.Outcome, error)
	Ping(ctx context.Context) error
	Templates() []mailer.TemplateInfo
}

var _ Service = (*dispatch.Service)(nil)
