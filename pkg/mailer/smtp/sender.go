// Package smtp delivers mail through an SMTP relay using go-mail.
package smtp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gomail "github.com/wneessen/go-mail"

	"github.com/dmitrymomot/mailroom/pkg/mailer"
)

var (
	ErrMissingHost   = errors.New("smtp: host is required")
	ErrInvalidPolicy = errors.New("smtp: unknown tls policy")
	ErrInvalidAuth   = errors.New("smtp: unknown auth mechanism")
)

// Sender implements mailer.Sender over SMTP. A fresh connection is dialed for
// every message, so a Sender is safe for concurrent use.
type Sender struct {
	opts   []gomail.Option
	config Config
}

// New validates cfg and prepares client options.
func New(cfg Config) (*Sender, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, ErrMissingHost
	}

	opts := []gomail.Option{gomail.WithPort(cfg.Port)}
	if cfg.Timeout > 0 {
		opts = append(opts, gomail.WithTimeout(cfg.Timeout))
	}

	switch strings.ToLower(cfg.TLSPolicy) {
	case "", TLSMandatory:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	case TLSOpportunistic:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	case TLSNone:
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidPolicy, cfg.TLSPolicy)
	}
	if cfg.SSL {
		opts = append(opts, gomail.WithSSL())
	}

	if cfg.Username != "" {
		switch strings.ToLower(cfg.Auth) {
		case "", AuthPlain:
			opts = append(opts, gomail.WithSMTPAuth(gomail.SMTPAuthPlain))
		case AuthLogin:
			opts = append(opts, gomail.WithSMTPAuth(gomail.SMTPAuthLogin))
		case AuthNone:
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidAuth, cfg.Auth)
		}
		opts = append(opts, gomail.WithUsername(cfg.Username), gomail.WithPassword(cfg.Password))
	}

	// Fail fast on option errors instead of on the first send.
	if _, err := gomail.NewClient(cfg.Host, opts...); err != nil {
		return nil, fmt.Errorf("smtp: invalid client options: %w", err)
	}

	return &Sender{opts: opts, config: cfg}, nil
}

// Send implements mailer.Sender.
func (s *Sender) Send(ctx context.Context, email *mailer.Email) error {
	msg, err := s.message(email)
	if err != nil {
		return err
	}

	client, err := gomail.NewClient(s.config.Host, s.opts...)
	if err != nil {
		return fmt.Errorf("smtp: create client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp: failed to send email: %w", err)
	}
	return nil
}

func (s *Sender) message(email *mailer.Email) (*gomail.Msg, error) {
	msg := gomail.NewMsg()

	if email.From != "" {
		if err := msg.From(email.From); err != nil {
			return nil, fmt.Errorf("smtp: from: %w", err)
		}
	} else if err := msg.FromFormat(s.config.FromName, s.config.sender()); err != nil {
		return nil, fmt.Errorf("smtp: from: %w", err)
	}

	if err := msg.To(email.To...); err != nil {
		return nil, fmt.Errorf("smtp: to: %w", err)
	}
	if len(email.CC) > 0 {
		if err := msg.Cc(email.CC...); err != nil {
			return nil, fmt.Errorf("smtp: cc: %w", err)
		}
	}
	if len(email.BCC) > 0 {
		if err := msg.Bcc(email.BCC...); err != nil {
			return nil, fmt.Errorf("smtp: bcc: %w", err)
		}
	}
	if email.ReplyTo != "" {
		if err := msg.ReplyTo(email.ReplyTo); err != nil {
			return nil, fmt.Errorf("smtp: reply-to: %w", err)
		}
	}
	for k, v := range email.Headers {
		msg.SetGenHeader(gomail.Header(k), v)
	}

	msg.Subject(email.Subject)

	switch {
	case email.HTML != "" && email.Text != "":
		msg.SetBodyString(gomail.TypeTextPlain, email.Text)
		msg.AddAlternativeString(gomail.TypeTextHTML, email.HTML)
	case email.HTML != "":
		msg.SetBodyString(gomail.TypeTextHTML, email.HTML)
	default:
		msg.SetBodyString(gomail.TypeTextPlain, email.Text)
	}
	return msg, nil
}
