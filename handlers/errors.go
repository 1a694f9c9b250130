package handlers

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/mailroom"
	"github.com/dmitrymomot/mailroom/dispatch"
	"github.com/dmitrymomot/mailroom/middlewares"
	"github.com/dmitrymomot/mailroom/requests"
)

type detail struct {
	Detail any `json:"detail"`
}

// ErrorHandler renders handler errors as {"detail": ...}.
//
// Schema violations answer 422 with a list of field errors, dispatch
// validation 400, unknown jobs 404 and timeouts 504. Other errors keep their
// HTTPError code or become a 500 without the cause in the body.
func ErrorHandler(c mailroom.Context, err error) error {
	if _, ok := middlewares.AsPanicError(err); ok {
		return serverError(c, http.StatusInternalServerError, "Internal Server Error", err)
	}
	if te, ok := middlewares.AsTimeoutError(err); ok {
		c.LogWarn("request timed out", "timeout", te.Duration, "request_id", middlewares.GetRequestID(c))
		return c.JSON(http.StatusGatewayTimeout, detail{"Request timed out"})
	}
	if herr := mailroom.AsHTTPError(err); herr != nil {
		if herr.Code >= http.StatusInternalServerError {
			return serverError(c, herr.Code, herr.Message, err)
		}
		return c.JSON(herr.Code, detail{herr.Message})
	}
	if fields, ok := requests.AsValidationErrors(err); ok {
		code := http.StatusUnprocessableEntity
		if errors.Is(err, requests.ErrBodyTooLarge) {
			code = http.StatusRequestEntityTooLarge
		}
		return c.JSON(code, detail{fields})
	}

	var verr *dispatch.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, detail{verr.Message})
	case errors.Is(err, dispatch.ErrJobNotFound):
		return c.JSON(http.StatusNotFound, detail{"Scheduled email not found"})
	default:
		return serverError(c, http.StatusInternalServerError, "Internal Server Error", err)
	}
}

func serverError(c mailroom.Context, code int, msg string, err error) error {
	c.LogError("request failed",
		"error", err,
		"status", code,
		"request_id", middlewares.GetRequestID(c),
	)
	return c.JSON(code, detail{msg})
}
