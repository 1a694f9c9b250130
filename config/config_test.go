package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailroom/config"
)

func TestFromMap_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.FromMap(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, ":8001", cfg.HTTP.Addr)
	assert.Equal(t, []string{"*"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, 20, cfg.Scheduler.Workers)
	assert.Equal(t, 3, cfg.Scheduler.MaxInstances)
	assert.Equal(t, 500*time.Millisecond, cfg.Dispatch.BulkPause)
	assert.Equal(t, "fire", cfg.Dispatch.RehydratePolicy)
	assert.Equal(t, config.StoreMemory, cfg.Store.Driver)
	assert.Equal(t, config.CacheNone, cfg.Cache.Driver)
	assert.Equal(t, "smtp", cfg.Mailer.Provider)
	assert.Equal(t, 587, cfg.SMTP.Port)

	assert.Empty(t, cfg.SMTP.Username)
	assert.Empty(t, cfg.SMTP.Password)
	assert.Empty(t, cfg.Resend.APIKey)
	assert.False(t, cfg.EmailConfigured())
	assert.Empty(t, cfg.Sender())
}

func TestFromMap_Overrides(t *testing.T) {
	t.Parallel()

	cfg, err := config.FromMap(map[string]string{
		"HTTP_ADDR":          ":9000",
		"BULK_PAUSE":         "0s",
		"REHYDRATE_POLICY":   "drop",
		"STORE_DRIVER":       "postgres",
		"DATABASE_URL":       "postgres://localhost/mail",
		"CACHE_DRIVER":       "redis",
		"REDIS_URL":          "redis://localhost:6379/0",
		"KAFKA_BROKERS":      "a:9092,b:9092",
		"SENDER_NAME":        "Ops",
		"SENDER_EMAIL":       "ops@example.com",
		"MAIL_USERNAME":      "ops@example.com",
		"MAIL_PASSWORD":      "secret",
		"CORS_ALLOW_ORIGINS": "https://a.example,https://b.example",
	})
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Zero(t, cfg.Dispatch.BulkPause)
	assert.Equal(t, "drop", cfg.Dispatch.RehydratePolicy)
	assert.Equal(t, "postgres://localhost/mail", cfg.Store.DB.URL)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
	assert.True(t, cfg.EmailConfigured())
	assert.Equal(t, "Ops <ops@example.com>", cfg.Sender())
	assert.Len(t, cfg.HTTP.CORSOrigins, 2)
}

func TestFromMap_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		environ map[string]string
		want    string
	}{
		{"unknown provider", map[string]string{"MAIL_PROVIDER": "pigeon"}, "MAIL_PROVIDER"},
		{"unknown store", map[string]string{"STORE_DRIVER": "sqlite"}, "STORE_DRIVER"},
		{"postgres without url", map[string]string{"STORE_DRIVER": "postgres"}, "DATABASE_URL"},
		{"redis without url", map[string]string{"CACHE_DRIVER": "redis"}, "REDIS_URL"},
		{"bad policy", map[string]string{"REHYDRATE_POLICY": "later"}, "REHYDRATE_POLICY"},
		{"no workers", map[string]string{"SCHEDULER_WORKERS": "0"}, "SCHEDULER_WORKERS"},
		{"negative pause", map[string]string{"BULK_PAUSE": "-1s"}, "BULK_PAUSE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.FromMap(tt.environ)
			require.ErrorIs(t, err, config.ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("errors are joined", func(t *testing.T) {
		t.Parallel()

		_, err := config.FromMap(map[string]string{"STORE_DRIVER": "x", "CACHE_DRIVER": "y"})
		require.ErrorIs(t, err, config.ErrInvalid)
		assert.Contains(t, err.Error(), "STORE_DRIVER")
		assert.Contains(t, err.Error(), "CACHE_DRIVER")
	})

	t.Run("unparsable value", func(t *testing.T) {
		t.Parallel()

		_, err := config.FromMap(map[string]string{"BULK_PAUSE": "soon"})
		require.ErrorIs(t, err, config.ErrParse)
	})
}

func TestEmailConfigured(t *testing.T) {
	t.Parallel()

	tests := []struct {
		environ map[string]string
		want    bool
	}{
		{map[string]string{"MAIL_PROVIDER": "resend", "RESEND_API_KEY": "re_x"}, false},
		{map[string]string{"MAIL_PROVIDER": "resend", "RESEND_API_KEY": "re_x", "RESEND_FROM_EMAIL": "a@example.com"}, true},
		{map[string]string{"MAIL_PROVIDER": "ses", "SES_FROM_EMAIL": "a@example.com"}, true},
		{map[string]string{"MAIL_USERNAME": "a@example.com"}, false},
	}
	for _, tt := range tests {
		cfg, err := config.FromMap(tt.environ)
		require.NoError(t, err)
		assert.Equal(t, tt.want, cfg.EmailConfigured(), tt.environ)
	}
}

// Load touches the process environment, so it does not run in parallel.
func TestLoad_Dotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("MAILROOM_TEST_ONLY=1\nSCHEDULER_MAX_INSTANCES=5\n"), 0o600))
	t.Setenv("SCHEDULER_MAX_INSTANCES", "")
	require.NoError(t, os.Unsetenv("SCHEDULER_MAX_INSTANCES"))
	t.Cleanup(func() { _ = os.Unsetenv("MAILROOM_TEST_ONLY") })

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"), path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Scheduler.MaxInstances)
	assert.Equal(t, "1", os.Getenv("MAILROOM_TEST_ONLY"))
}
