package handlers

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/mailroom"
	"github.com/dmitrymomot/mailroom/dispatch"
	"github.com/dmitrymomot/mailroom/middlewares"
	"github.com/dmitrymomot/mailroom/requests"
)

// Emails serves the single, personalized and bulk endpoints.
type Emails struct {
	svc Service
}

// NewEmails creates the email handler.
func NewEmails(svc Service) *Emails {
	return &Emails{svc: svc}
}

// Routes implements mailroom.Handler.
func (h *Emails) Routes(r mailroom.Router) {
	r.POST("/api/send-email", h.send)
	r.POST("/api/schedule-email", h.schedule)
	r.POST("/api/send-personalized-email", h.sendPersonalized)
	r.POST("/api/schedule-personalized-email", h.schedulePersonalized)
	r.POST("/api/send-bulk-email", h.sendBulk)
	r.POST("/api/schedule-bulk-email", h.scheduleBulk)
}

func (h *Emails) send(c mailroom.Context) error {
	var req dispatch.SingleRequest
	if err := requests.Decode(c.Request().Body, requests.Single, &req); err != nil {
		return err
	}
	resp, err := h.svc.SendNow(middlewares.GetTimeoutContext(c), req)
	if err != nil {
		return deliveryError(err, "Failed to send email")
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Emails) schedule(c mailroom.Context) error {
	var req dispatch.SingleRequest
	if err := requests.Decode(c.Request().Body, requests.Single, &req); err != nil {
		return err
	}
	return respond(c)(h.svc.ScheduleLater(c, req))
}

func (h *Emails) sendPersonalized(c mailroom.Context) error {
	var req dispatch.PersonalizedRequest
	if err := requests.Decode(c.Request().Body, requests.Personalized, &req); err != nil {
		return err
	}
	resp, err := h.svc.SendPersonalizedNow(middlewares.GetTimeoutContext(c), req)
	if err != nil {
		return deliveryError(err, "Failed to send personalized email")
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Emails) schedulePersonalized(c mailroom.Context) error {
	var req dispatch.PersonalizedRequest
	if err := requests.Decode(c.Request().Body, requests.Personalized, &req); err != nil {
		return err
	}
	return respond(c)(h.svc.SchedulePersonalized(c, req))
}

// sendBulk always answers 200 once the batch ran; per-recipient failures
// are reported in the results.
func (h *Emails) sendBulk(c mailroom.Context) error {
	var req dispatch.BulkRequest
	if err := requests.Decode(c.Request().Body, requests.Bulk, &req); err != nil {
		return err
	}
	return respond(c)(h.svc.SendBulkNow(middlewares.GetTimeoutContext(c), req))
}

func (h *Emails) scheduleBulk(c mailroom.Context) error {
	var req dispatch.BulkRequest
	if err := requests.Decode(c.Request().Body, requests.Bulk, &req); err != nil {
		return err
	}
	return respond(c)(h.svc.ScheduleBulk(c, req))
}

// respond writes a service response or hands its error to the error handler.
func respond(c mailroom.Context) func(dispatch.Response, error) error {
	return func(resp dispatch.Response, err error) error {
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func deliveryError(err error, msg string) error {
	if errors.Is(err, dispatch.ErrDeliveryFailed) {
		return mailroom.ErrInternal(msg, mailroom.WithError(err))
	}
	return err
}
