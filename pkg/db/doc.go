// Package db opens the PostgreSQL pool used by the postgres record store and
// applies its embedded goose migrations.
//
//	pool, err := db.Connect(ctx, cfg.Postgres)
//	if err != nil {
//		return err
//	}
//	if err := db.Migrate(ctx, pool, migrations.FS, cfg.Postgres.MigrationsTable, log); err != nil {
//		return err
//	}
//
// Connect retries with a linearly growing pause and pings the pool before
// returning it. [Healthcheck] and [Shutdown] return closures for the health
// package and the application shutdown hooks.
package db
