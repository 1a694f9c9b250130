package scheduler

import "errors"

var (
	ErrDueTimeNotInFuture = errors.New("scheduler: due time must be in the future")
	ErrJobNotFound        = errors.New("scheduler: job not found")
	ErrEmptyID            = errors.New("scheduler: job id is empty")
	ErrNilFunc            = errors.New("scheduler: job func is nil")
	ErrAlreadyStarted     = errors.New("scheduler: already started")
	ErrNotStarted         = errors.New("scheduler: not started")
	ErrInvalidSchedule    = errors.New("scheduler: invalid cron schedule")
	ErrHealthcheckFailed  = errors.New("scheduler: healthcheck failed")
)
