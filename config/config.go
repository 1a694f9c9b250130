// Package config loads the service configuration from the environment.
//
// An optional .env file is read first with godotenv; variables already set
// in the process environment win. Values are then parsed with caarlos0/env
// into the per-package config structs. No credential has a default.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/dmitrymomot/mailroom/dispatch"
	"github.com/dmitrymomot/mailroom/pkg/db"
	"github.com/dmitrymomot/mailroom/pkg/events"
	"github.com/dmitrymomot/mailroom/pkg/logger"
	"github.com/dmitrymomot/mailroom/pkg/mailer"
	"github.com/dmitrymomot/mailroom/pkg/mailer/resend"
	"github.com/dmitrymomot/mailroom/pkg/mailer/ses"
	"github.com/dmitrymomot/mailroom/pkg/mailer/smtp"
	"github.com/dmitrymomot/mailroom/pkg/redis"
	"github.com/dmitrymomot/mailroom/store"
)

var (
	ErrParse   = errors.New("config: failed to parse environment")
	ErrInvalid = errors.New("config: invalid configuration")
	ErrDotenv  = errors.New("config: failed to load .env file")
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// Cache drivers.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config is the full service configuration.
type Config struct {
	HTTP      HTTPConfig
	Logger    logger.Config
	Mailer    mailer.Config
	SMTP      smtp.Config
	Resend    resend.Config
	SES       ses.Config
	Scheduler SchedulerConfig
	Dispatch  DispatchConfig
	Store     StoreConfig
	Cache     CacheConfig
	Kafka     events.KafkaConfig
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8001"`
	CORSOrigins     []string      `env:"CORS_ALLOW_ORIGINS" envSeparator:"," envDefault:"*"`
	RequestTimeout  time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"30s"`
	BulkTimeout     time.Duration `env:"HTTP_BULK_TIMEOUT" envDefault:"10m"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// SchedulerConfig sizes the deferred job pool.
type SchedulerConfig struct {
	Workers      int `env:"SCHEDULER_WORKERS" envDefault:"20"`
	MaxInstances int `env:"SCHEDULER_MAX_INSTANCES" envDefault:"3"`
}

// DispatchConfig tunes delivery.
type DispatchConfig struct {
	RehydratePolicy string        `env:"REHYDRATE_POLICY" envDefault:"fire"`
	BulkPause       time.Duration `env:"BULK_PAUSE" envDefault:"500ms"`
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Driver string `env:"STORE_DRIVER" envDefault:"memory"`
	DB     db.Config
	Mongo  store.MongoConfig
}

// CacheConfig selects the listing cache in front of the store.
type CacheConfig struct {
	Driver     string        `env:"CACHE_DRIVER" envDefault:"none"`
	TTL        time.Duration `env:"CACHE_TTL" envDefault:"30s"`
	MaxEntries int           `env:"CACHE_MAX_ENTRIES" envDefault:"1000"`
	Redis      redis.Config
}

// Load reads the first existing file of files (".env" when none are given)
// and parses the environment.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, errors.Join(ErrDotenv, fmt.Errorf("%s: %w", f, err))
		}
		break
	}
	return parse(env.Options{})
}

// FromMap parses environ instead of the process environment.
func FromMap(environ map[string]string) (Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return Config{}, errors.Join(ErrParse, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	oneOf := func(name, v string, allowed ...string) {
		if !slices.Contains(allowed, v) {
			errs = append(errs, fmt.Errorf("%s must be one of %v, got %q", name, allowed, v))
		}
	}

	oneOf("MAIL_PROVIDER", c.Mailer.Provider, mailer.ProviderSMTP, mailer.ProviderResend, mailer.ProviderSES)
	oneOf("STORE_DRIVER", c.Store.Driver, StoreMemory, StorePostgres, StoreMongo)
	oneOf("CACHE_DRIVER", c.Cache.Driver, CacheNone, CacheMemory, CacheRedis)
	oneOf("REHYDRATE_POLICY", c.Dispatch.RehydratePolicy, dispatch.RehydrateFire, dispatch.RehydrateDrop)

	if c.Store.Driver == StorePostgres && c.Store.DB.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
	}
	if c.Cache.Driver == CacheRedis && c.Cache.Redis.URL == "" {
		errs = append(errs, errors.New("REDIS_URL is required for the redis cache"))
	}
	if c.Scheduler.Workers < 1 {
		errs = append(errs, errors.New("SCHEDULER_WORKERS must be positive"))
	}
	if c.Scheduler.MaxInstances < 1 {
		errs = append(errs, errors.New("SCHEDULER_MAX_INSTANCES must be positive"))
	}
	if c.Dispatch.BulkPause < 0 {
		errs = append(errs, errors.New("BULK_PAUSE must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalid}, errs...)...)
	}
	return nil
}

// EmailConfigured reports whether the selected provider has credentials.
func (c Config) EmailConfigured() bool {
	switch c.Mailer.Provider {
	case mailer.ProviderResend:
		return c.Resend.Configured()
	case mailer.ProviderSES:
		return c.SES.Configured()
	default:
		return c.SMTP.Configured()
	}
}

// Sender is the display From value for the banner. It never includes
// credentials.
func (c Config) Sender() string {
	return c.Mailer.Identity.From()
}
