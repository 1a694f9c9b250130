package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/dmitrymomot/mailroom/pkg/logger"
	"github.com/dmitrymomot/mailroom/pkg/mailer"
	"github.com/dmitrymomot/mailroom/pkg/metrics"
)

// DefaultBulkPause is the pause between consecutive bulk sends.
const DefaultBulkPause = 500 * time.Millisecond

// Deliverer sends one message. *mailer.Transport implements it.
type Deliverer interface {
	Deliver(ctx context.Context, to, subject, body string) mailer.Result
}

// Result is the outcome of one delivery.
type Result struct {
	Err       error
	Recipient string
	Kind      mailer.ContentKind
	OK        bool
}

// Executor renders and delivers messages. It is safe for concurrent use.
type Executor struct {
	transport Deliverer
	renderer  *mailer.Renderer
	library   *mailer.Library
	logger    *slog.Logger
	pause     time.Duration
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLibrary enables named templates.
func WithLibrary(lib *mailer.Library) ExecutorOption {
	return func(e *Executor) { e.library = lib }
}

// WithBulkPause overrides DefaultBulkPause. Negative values are ignored.
func WithBulkPause(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d >= 0 {
			e.pause = d
		}
	}
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExecutor creates an executor sending through transport.
func NewExecutor(transport Deliverer, renderer *mailer.Renderer, opts ...ExecutorOption) *Executor {
	e := &Executor{
		transport: transport,
		renderer:  renderer,
		logger:    logger.NewNope(),
		pause:     DefaultBulkPause,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DeliverSingle renders tpl with the subject and c, then sends the result.
func (e *Executor) DeliverSingle(ctx context.Context, recipient, subject string, c Context, tpl Template) Result {
	return e.guard(ctx, recipient, func() mailer.Result {
		body := e.Render(subject, c, tpl)
		return e.transport.Deliver(ctx, recipient, subject, body)
	})
}

// DeliverPersonalized sends body exactly as given, without templating.
func (e *Executor) DeliverPersonalized(ctx context.Context, recipient, subject, body string) Result {
	return e.guard(ctx, recipient, func() mailer.Result {
		return e.transport.Deliver(ctx, recipient, subject, body)
	})
}

// Render returns the body for tpl. It never fails: unknown library names
// and broken templates produce the fallback layout.
func (e *Executor) Render(subject string, c Context, tpl Template) string {
	data := c.withDefaults().data(subject)

	if tpl.Name != "" {
		if e.library != nil {
			out, err := e.library.Render(tpl.Name, data)
			if err == nil {
				return out
			}
			e.logger.Warn("named template failed, using fallback",
				slog.String("template", tpl.Name),
				slog.Any("error", err),
			)
		}
		return e.renderer.Fallback(data)
	}

	src := tpl.Source
	if strings.TrimSpace(src) == "" {
		src = mailer.DefaultTemplate
	}
	return e.renderer.Render(src, data)
}

// Subject returns subject, or the library subject of a named template when
// subject is blank.
func (e *Executor) Subject(subject string, tpl Template) string {
	if strings.TrimSpace(subject) != "" || tpl.Name == "" || e.library == nil {
		return subject
	}
	if info, ok := e.library.Lookup(tpl.Name); ok {
		return info.Subject
	}
	return subject
}

// HasTemplate reports whether name is in the library.
func (e *Executor) HasTemplate(name string) bool {
	if e.library == nil {
		return false
	}
	_, ok := e.library.Lookup(name)
	return ok
}

func (e *Executor) guard(ctx context.Context, recipient string, send func() mailer.Result) (res Result) {
	start := time.Now()
	res.Recipient = recipient

	defer func() {
		if r := recover(); r != nil {
			res.OK = false
			res.Err = errors.Join(ErrDeliveryPanic, fmt.Errorf("%v", r))
			e.logger.ErrorContext(ctx, "delivery panicked",
				slog.String("recipient", recipient),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
		metrics.ObserveDelivery(string(res.Kind), res.OK, time.Since(start))
	}()

	mr := send()
	res.Kind, res.OK, res.Err = mr.Kind, mr.OK, mr.Err
	if !res.OK && res.Err == nil {
		res.Err = mailer.ErrSendFailed
	}
	return res
}
