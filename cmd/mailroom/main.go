// Command mailroom runs the email dispatch API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dmitrymomot/mailroom"
	"github.com/dmitrymomot/mailroom/config"
	"github.com/dmitrymomot/mailroom/dispatch"
	"github.com/dmitrymomot/mailroom/handlers"
	"github.com/dmitrymomot/mailroom/middlewares"
	"github.com/dmitrymomot/mailroom/pkg/cache"
	"github.com/dmitrymomot/mailroom/pkg/db"
	"github.com/dmitrymomot/mailroom/pkg/events"
	"github.com/dmitrymomot/mailroom/pkg/logger"
	"github.com/dmitrymomot/mailroom/pkg/mailer"
	"github.com/dmitrymomot/mailroom/pkg/mailer/resend"
	"github.com/dmitrymomot/mailroom/pkg/mailer/ses"
	"github.com/dmitrymomot/mailroom/pkg/mailer/smtp"
	"github.com/dmitrymomot/mailroom/pkg/metrics"
	"github.com/dmitrymomot/mailroom/pkg/redis"
	"github.com/dmitrymomot/mailroom/pkg/scheduler"
	"github.com/dmitrymomot/mailroom/store"
	"github.com/dmitrymomot/mailroom/store/migrations"
)

const cacheCleanupInterval = time.Minute

// Routes that send to many recipients run under HTTP_BULK_TIMEOUT.
var bulkRoutes = []string{
	"/api/send-bulk-email",
	"/api/send-sheet-emails",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logger, middlewares.RequestIDExtractor())
	if err := run(cfg, log); err != nil {
		log.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx := context.Background()
	metrics.Register()

	sender, err := newSender(ctx, cfg)
	if err != nil {
		return err
	}
	if !cfg.EmailConfigured() {
		log.Warn("mail provider credentials are not set, deliveries will fail", "provider", cfg.Mailer.Provider)
	}

	transport := mailer.NewTransport(sender,
		mailer.WithIdentity(cfg.Mailer.Identity),
		mailer.WithSendTimeout(cfg.Mailer.SendTimeout),
		mailer.WithTransportLogger(log),
	)
	renderer := mailer.NewRenderer(cfg.Mailer.Identity, mailer.WithRendererLogger(log))

	execOpts := []dispatch.ExecutorOption{
		dispatch.WithBulkPause(cfg.Dispatch.BulkPause),
		dispatch.WithExecutorLogger(log),
	}
	if dir := cfg.Mailer.TemplatesDir; dir != "" {
		lib, err := mailer.LoadLibrary(os.DirFS(dir), renderer)
		if err != nil {
			return fmt.Errorf("load templates from %s: %w", dir, err)
		}
		execOpts = append(execOpts, dispatch.WithLibrary(lib))
		log.Info("template library loaded", "dir", dir, "templates", len(lib.List()))
	}
	exec := dispatch.NewExecutor(transport, renderer, execOpts...)

	var (
		checks   []mailroom.HealthOption
		shutdown []mailroom.RunOption
	)

	st, err := openStore(ctx, cfg, log, &checks)
	if err != nil {
		return err
	}
	st, err = withCache(ctx, cfg, log, st, &checks, &shutdown)
	if err != nil {
		_ = st.Close(ctx)
		return err
	}
	publisher, err := newPublisher(cfg, log)
	if err != nil {
		_ = st.Close(ctx)
		return err
	}
	st = store.NewPublishing(st, publisher, log)

	sched := scheduler.New(
		scheduler.WithWorkers(cfg.Scheduler.Workers),
		scheduler.WithMaxInstances(cfg.Scheduler.MaxInstances),
		scheduler.WithLogger(log),
	)
	svc := dispatch.NewService(exec, sched, st,
		dispatch.WithLogger(log),
		dispatch.WithRehydratePolicy(cfg.Dispatch.RehydratePolicy),
	)

	checks = append(checks, mailroom.WithReadinessCheck("scheduler", scheduler.Healthcheck(sched)))

	pathTimeouts := make([]middlewares.TimeoutOption, 0, len(bulkRoutes))
	for _, p := range bulkRoutes {
		pathTimeouts = append(pathTimeouts, middlewares.WithPathTimeout(p, cfg.HTTP.BulkTimeout))
	}

	app := mailroom.New(
		mailroom.WithLogger(log),
		mailroom.WithMiddleware(
			middlewares.RequestID(),
			middlewares.Metrics(),
			middlewares.Recover(),
			middlewares.CORS(middlewares.WithAllowOrigins(cfg.HTTP.CORSOrigins...)),
			middlewares.Timeout(cfg.HTTP.RequestTimeout, pathTimeouts...),
		),
		mailroom.WithErrorHandler(handlers.ErrorHandler),
		mailroom.WithHandlers(
			handlers.NewEmails(svc),
			handlers.NewSheets(svc),
			handlers.NewRecords(svc),
			handlers.NewSystem(svc, handlers.SystemConfig{
				Sender:           cfg.Sender(),
				EmailConfigured:  cfg.EmailConfigured(),
				SchedulerRunning: sched.IsRunning,
			}),
		),
		mailroom.WithMount("/metrics", metrics.Handler()),
		mailroom.WithHealthChecks(checks...),
	)

	opts := []mailroom.RunOption{
		mailroom.Logger(log),
		mailroom.ShutdownTimeout(cfg.HTTP.ShutdownTimeout),
		mailroom.StartupHook(sched.StartFunc()),
		mailroom.StartupHook(rehydrate(svc, log)),
		mailroom.ShutdownHook(sched.Shutdown()),
		mailroom.ShutdownHook(st.Close),
	}
	opts = append(opts, shutdown...)

	log.Info("starting mailroom",
		"addr", cfg.HTTP.Addr,
		"provider", cfg.Mailer.Provider,
		"store", cfg.Store.Driver,
		"cache", cfg.Cache.Driver,
		"events", cfg.Kafka.Enabled(),
	)
	return app.Run(cfg.HTTP.Addr, opts...)
}

func newSender(ctx context.Context, cfg config.Config) (mailer.Sender, error) {
	switch cfg.Mailer.Provider {
	case mailer.ProviderResend:
		return resend.New(cfg.Resend), nil
	case mailer.ProviderSES:
		s, err := ses.New(ctx, cfg.SES)
		if err != nil {
			return nil, fmt.Errorf("ses sender: %w", err)
		}
		return s, nil
	default:
		s, err := smtp.New(cfg.SMTP)
		if err != nil {
			return nil, fmt.Errorf("smtp sender: %w", err)
		}
		return s, nil
	}
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger, checks *[]mailroom.HealthOption) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		pool, err := db.Connect(ctx, cfg.Store.DB)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx, pool, migrations.FS, cfg.Store.DB.MigrationsTable, log); err != nil {
			pool.Close()
			return nil, err
		}
		*checks = append(*checks, mailroom.WithReadinessCheck("postgres", db.Healthcheck(pool)))
		return store.NewPostgres(pool), nil
	case config.StoreMongo:
		m, err := store.OpenMongo(ctx, cfg.Store.Mongo)
		if err != nil {
			return nil, err
		}
		*checks = append(*checks, mailroom.WithReadinessCheck("mongo", m.Ping))
		return m, nil
	default:
		log.Warn("using the in-memory record store, records are lost on restart")
		return store.NewMemory(), nil
	}
}

func withCache(ctx context.Context, cfg config.Config, log *slog.Logger, st store.Store, checks *[]mailroom.HealthOption, shutdown *[]mailroom.RunOption) (store.Store, error) {
	opts := []store.CachedOption{store.WithCacheTTL(cfg.Cache.TTL), store.WithCacheLogger(log)}

	switch cfg.Cache.Driver {
	case config.CacheMemory:
		mc := cache.MemoryConfig{
			DefaultTTL:      cfg.Cache.TTL,
			CleanupInterval: cacheCleanupInterval,
			MaxEntries:      cfg.Cache.MaxEntries,
		}
		return store.NewCached(st,
			cache.NewMemory[[]store.Outcome](mc),
			cache.NewMemory[[]store.ScheduledRecord](mc),
			opts...,
		), nil
	case config.CacheRedis:
		client, err := redis.Open(ctx, cfg.Cache.Redis)
		if err != nil {
			return st, err
		}
		*checks = append(*checks, mailroom.WithReadinessCheck("redis", redis.Healthcheck(client)))
		*shutdown = append(*shutdown, mailroom.ShutdownHook(redis.Shutdown(client)))
		return store.NewCached(st,
			cache.NewRedis[[]store.Outcome](client, "mailroom:outcomes:", cfg.Cache.TTL),
			cache.NewRedis[[]store.ScheduledRecord](client, "mailroom:scheduled:", cfg.Cache.TTL),
			opts...,
		), nil
	default:
		return st, nil
	}
}

func newPublisher(cfg config.Config, log *slog.Logger) (events.Publisher, error) {
	if !cfg.Kafka.Enabled() {
		return events.Nop{}, nil
	}
	k, err := events.NewKafka(cfg.Kafka)
	if err != nil {
		return nil, err
	}
	log.Info("publishing record events to kafka", "topic", cfg.Kafka.Topic)
	return k, nil
}

func rehydrate(svc *dispatch.Service, log *slog.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		n, err := svc.Rehydrate(ctx)
		if err != nil {
			return fmt.Errorf("rehydrate scheduled jobs: %w", err)
		}
		log.Info("scheduled jobs restored", "count", n)
		return nil
	}
}
