package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/dmitrymomot/mailroom/pkg/logger"
	"github.com/dmitrymomot/mailroom/pkg/sanitizer"
)

// ContentKind is the MIME flavour chosen for a body.
type ContentKind string

const (
	KindPlain ContentKind = "plain"
	KindHTML  ContentKind = "html"
)

// DetectKind reports KindHTML when body contains both '<' and '>'.
func DetectKind(body string) ContentKind {
	if strings.ContainsRune(body, '<') && strings.ContainsRune(body, '>') {
		return KindHTML
	}
	return KindPlain
}

// Result is the outcome of one Deliver call.
type Result struct {
	Err  error
	Kind ContentKind
	OK   bool
}

// Transport delivers single messages and converts every failure into a
// Result. It is safe for concurrent use.
type Transport struct {
	sender   Sender
	logger   *slog.Logger
	identity Identity
	timeout  time.Duration
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithIdentity sets the From address used for every message.
func WithIdentity(id Identity) TransportOption {
	return func(t *Transport) { t.identity = id }
}

// WithSendTimeout bounds a single provider call. Zero disables the bound.
func WithSendTimeout(d time.Duration) TransportOption {
	return func(t *Transport) { t.timeout = d }
}

// WithTransportLogger sets the logger. Defaults to a no-op logger.
func WithTransportLogger(l *slog.Logger) TransportOption {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTransport wraps sender.
func NewTransport(sender Sender, opts ...TransportOption) *Transport {
	t := &Transport{
		sender: sender,
		logger: logger.NewNope(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Deliver sends body to a single recipient. It never panics and never
// returns an error value: failures are reported through Result.Err.
func (t *Transport) Deliver(ctx context.Context, to, subject, body string) (res Result) {
	res.Kind = DetectKind(body)

	defer func() {
		if r := recover(); r != nil {
			res.OK = false
			res.Err = errors.Join(ErrSendFailed, fmt.Errorf("panic: %v", r))
		}
		t.log(ctx, to, res)
	}()

	if t.sender == nil {
		res.Err = ErrNilSender
		return res
	}

	addr, err := mail.ParseAddress(strings.TrimSpace(to))
	if err != nil {
		res.Err = errors.Join(ErrInvalidAddress, err)
		return res
	}

	email := &Email{
		To:      []string{addr.Address},
		Subject: subject,
		From:    t.identity.From(),
	}
	if res.Kind == KindHTML {
		email.HTML = body
		email.Text = sanitizer.StripHTML(body)
	} else {
		email.Text = body
	}
	if err := email.Validate(); err != nil {
		res.Err = err
		return res
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	if err := t.sender.Send(ctx, email); err != nil {
		res.Err = errors.Join(ErrSendFailed, err)
		return res
	}

	res.OK = true
	return res
}

func (t *Transport) log(ctx context.Context, to string, res Result) {
	if res.OK {
		t.logger.InfoContext(ctx, "email sent",
			slog.String("recipient", to),
			slog.String("kind", string(res.Kind)),
		)
		return
	}
	t.logger.ErrorContext(ctx, "email delivery failed",
		slog.String("recipient", to),
		slog.String("kind", string(res.Kind)),
		slog.Any("error", res.Err),
	)
}
