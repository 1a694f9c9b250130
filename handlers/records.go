package handlers

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/mailroom"
	"github.com/dmitrymomot/mailroom/dispatch"
	"github.com/dmitrymomot/mailroom/store"
)

// Records serves the scheduled job and outcome listings.
type Records struct {
	svc Service
}

// NewRecords creates the listing handler.
func NewRecords(svc Service) *Records {
	return &Records{svc: svc}
}

// Routes implements mailroom.Handler.
func (h *Records) Routes(r mailroom.Router) {
	r.GET("/api/scheduled-emails", h.scheduled)
	r.DELETE("/api/scheduled-emails/{job_id}", h.cancel)
	r.GET("/api/email-logs", h.logs)
}

func (h *Records) scheduled(c mailroom.Context) error {
	recs, err := h.svc.ListPending(c)
	if err != nil {
		return mailroom.ErrInternal("Failed to list scheduled emails", mailroom.WithError(err))
	}
	if recs == nil {
		recs = []store.ScheduledRecord{}
	}
	return c.JSON(http.StatusOK, map[string]any{"scheduled_emails": recs})
}

func (h *Records) cancel(c mailroom.Context) error {
	jobID := c.Param("job_id")
	resp, err := h.svc.Cancel(c, jobID)
	if errors.Is(err, dispatch.ErrJobNotFound) {
		return mailroom.ErrNotFound("Scheduled email "+jobID+" not found", mailroom.WithError(err))
	}
	return respond(c)(resp, err)
}

func (h *Records) logs(c mailroom.Context) error {
	limit, err := mailroom.QueryDefault(c, "limit", dispatch.DefaultOutcomeLimit)
	if err != nil {
		return mailroom.ErrUnprocessable("limit must be an integer", mailroom.WithError(err))
	}

	logs, err := h.svc.ListOutcomes(c, limit)
	if err != nil {
		return mailroom.ErrInternal("Failed to list email logs", mailroom.WithError(err))
	}
	if logs == nil {
		logs = []store.Outcome{}
	}
	return c.JSON(http.StatusOK, map[string]any{"logs": logs})
}
