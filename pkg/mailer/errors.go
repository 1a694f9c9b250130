package mailer

import "errors"

var (
	ErrNoRecipient        = errors.New("mailer: email must have at least one recipient")
	ErrNoSubject          = errors.New("mailer: email must have a subject")
	ErrNoContent          = errors.New("mailer: email must have a body")
	ErrInvalidAddress     = errors.New("mailer: invalid recipient address")
	ErrTemplateNotFound   = errors.New("mailer: template not found")
	ErrRenderFailed       = errors.New("mailer: failed to render template")
	ErrUndefinedVariable  = errors.New("mailer: undefined template variable")
	ErrSendFailed         = errors.New("mailer: failed to send email")
	ErrInvalidFrontmatter = errors.New("mailer: invalid frontmatter")
	ErrNilSender          = errors.New("mailer: sender is nil")
)
