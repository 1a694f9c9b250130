package dispatch

import "errors"

var (
	ErrDeliveryFailed = errors.New("dispatch: delivery failed")
	ErrDeliveryPanic  = errors.New("dispatch: delivery panicked")
	ErrJobNotFound    = errors.New("dispatch: scheduled job not found")
	ErrSchedule       = errors.New("dispatch: failed to schedule job")
)

// ValidationError rejects a request before any job or record exists.
// Message is safe to show to API clients.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string) error { return &ValidationError{Message: msg} }
