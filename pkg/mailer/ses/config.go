package ses

// Config holds Amazon SES settings. Credentials come from the default AWS
// chain (environment, shared config, instance role).
type Config struct {
	Region           string `env:"SES_REGION" envDefault:"us-east-1"`
	SenderEmail      string `env:"SES_FROM_EMAIL"`
	SenderName       string `env:"SES_FROM_NAME"`
	ConfigurationSet string `env:"SES_CONFIGURATION_SET"`
}

// Configured reports whether a sender address is set.
func (c Config) Configured() bool {
	return c.SenderEmail != ""
}
