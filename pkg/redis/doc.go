// Package redis opens the go-redis client used by the listing cache.
//
// Open validates the URL, applies pool settings from Config and pings the
// server with a linear backoff before handing the client out:
//
//	client, err := redis.Open(ctx, cfg.Redis)
//	if err != nil {
//		return err
//	}
//	defer redis.Shutdown(client)(context.Background())
//
// Healthcheck adapts a client to the readiness probe signature.
package redis
