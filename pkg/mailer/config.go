package mailer

import "time"

// Provider names accepted by Config.Provider.
const (
	ProviderSMTP   = "smtp"
	ProviderResend = "resend"
	ProviderSES    = "ses"
)

// Config holds mailer configuration.
// Embed this in your app config for env parsing with caarlos0/env.
type Config struct {
	Provider     string        `env:"MAIL_PROVIDER" envDefault:"smtp"`
	SendTimeout  time.Duration `env:"MAIL_SEND_TIMEOUT" envDefault:"30s"`
	TemplatesDir string        `env:"TEMPLATES_DIR"`
	Identity     Identity
}

// Identity is the sender shown in message bodies and used as From address.
type Identity struct {
	Name  string `env:"SENDER_NAME" envDefault:"The Team"`
	Email string `env:"SENDER_EMAIL"`
	Phone string `env:"SENDER_PHONE"`
}

// From returns the RFC 5322 From value, or "" when no address is set.
func (i Identity) From() string {
	if i.Email == "" {
		return ""
	}
	return Recipient(i.Name, i.Email)
}
