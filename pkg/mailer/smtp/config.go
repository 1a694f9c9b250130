package smtp

import "time"

// TLS policies accepted by Config.TLSPolicy.
const (
	TLSMandatory     = "mandatory"
	TLSOpportunistic = "opportunistic"
	TLSNone          = "none"
)

// Auth mechanisms accepted by Config.Auth.
const (
	AuthPlain = "plain"
	AuthLogin = "login"
	AuthNone  = "none"
)

// Config holds SMTP relay settings. Credentials have no defaults.
type Config struct {
	Host      string        `env:"MAIL_SERVER" envDefault:"smtp.gmail.com"`
	Username  string        `env:"MAIL_USERNAME"`
	Password  string        `env:"MAIL_PASSWORD"`
	From      string        `env:"MAIL_FROM"`
	FromName  string        `env:"MAIL_FROM_NAME"`
	TLSPolicy string        `env:"MAIL_TLS_POLICY" envDefault:"mandatory"`
	Auth      string        `env:"MAIL_AUTH" envDefault:"plain"`
	Port      int           `env:"MAIL_PORT" envDefault:"587"`
	Timeout   time.Duration `env:"MAIL_DIAL_TIMEOUT" envDefault:"15s"`
	SSL       bool          `env:"MAIL_SSL_TLS" envDefault:"false"`
}

// Configured reports whether credentials are present.
func (c Config) Configured() bool {
	return c.Username != "" && c.Password != ""
}

func (c Config) sender() string {
	if c.From != "" {
		return c.From
	}
	return c.Username
}
