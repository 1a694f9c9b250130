package mailer

import (
	"fmt"
	"strings"
)

// Recipient formats a name and address as "Name <email>".
// Only the address is returned when name is empty.
func Recipient(name, email string) string {
	if name == "" {
		return email
	}
	return fmt.Sprintf("%s <%s>", name, email)
}

// Email is a fully prepared message ready for a Sender.
// At least one of HTML or Text is set. When both are set the message is
// sent as multipart/alternative.
type Email struct {
	Headers map[string]string
	Subject string
	HTML    string
	Text    string
	From    string // falls back to the provider's configured sender
	ReplyTo string
	To      []string
	CC      []string
	BCC     []string
}

// Validate checks the fields every provider requires.
func (e *Email) Validate() error {
	if e == nil || len(e.To) == 0 {
		return ErrNoRecipient
	}
	if strings.TrimSpace(e.Subject) == "" {
		return ErrNoSubject
	}
	if e.HTML == "" && e.Text == "" {
		return ErrNoContent
	}
	return nil
}
