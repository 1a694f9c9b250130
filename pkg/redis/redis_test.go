package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailroom/pkg/redis"
)

func TestOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("validation", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name    string
			url     string
			wantErr error
		}{
			{name: "empty", url: "", wantErr: redis.ErrEmptyConnectionURL},
			{name: "http scheme", url: "http://localhost:6379", wantErr: redis.ErrFailedToParseURL},
			{name: "no scheme", url: "localhost:6379", wantErr: redis.ErrFailedToParseURL},
			{name: "bad db", url: "redis://localhost:6379/abc", wantErr: redis.ErrFailedToParseURL},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				client, err := redis.Open(ctx, redis.Config{URL: tt.url})
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, client)
			})
		}
	})

	t.Run("connects and passes healthcheck", func(t *testing.T) {
		t.Parallel()

		srv := miniredis.RunT(t)
		client, err := redis.Open(ctx, redis.Config{URL: "redis://" + srv.Addr()})
		require.NoError(t, err)

		require.NoError(t, redis.Healthcheck(client)(ctx))
		require.NoError(t, redis.Shutdown(client)(ctx))
	})

	t.Run("unreachable server", func(t *testing.T) {
		t.Parallel()

		srv := miniredis.RunT(t)
		addr := srv.Addr()
		srv.Close()

		_, err := redis.Open(ctx, redis.Config{
			URL:           "redis://" + addr,
			RetryAttempts: 2,
			RetryInterval: 10 * time.Millisecond,
			DialTimeout:   100 * time.Millisecond,
		})
		require.ErrorIs(t, err, redis.ErrConnectionFailed)
	})
}

func TestHealthcheck_Failures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	require.ErrorIs(t, redis.Healthcheck(nil)(ctx), redis.ErrHealthcheckFailed)

	srv := miniredis.RunT(t)
	client, err := redis.Open(ctx, redis.Config{URL: "redis://" + srv.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	srv.Close()
	require.ErrorIs(t, redis.Healthcheck(client)(ctx), redis.ErrHealthcheckFailed)
}
