// Package db provides the PostgreSQL connection pool JobForge's store
// is built on.
//
// This package wraps [github.com/jackc/pgx/v5/pgxpool] to provide connection pooling,
// health checks, and database migrations with sensible defaults for a durable job queue.
//
// # Features
//
//   - Connection pooling with configurable limits and timeouts
//   - Automatic retry during startup, waiting a linearly increasing delay between attempts
//   - Database migrations using [github.com/pressly/goose/v3]
//
// # Configuration
//
// All settings are passed to [Open] as functional options; this package
// reads no environment variables itself:
//
//	WithMaxConns(n)              - Maximum open connections (default: 10)
//	WithMinConns(n)              - Minimum idle connections (default: 5)
//	WithHealthCheckPeriod(d)     - Health check interval (default: 1m)
//	WithMaxConnIdleTime(d)       - Maximum connection idle time (default: 10m)
//	WithMaxConnLifetime(d)       - Maximum connection lifetime (default: 30m)
//	WithRetry(attempts, interval) - Connection retry attempts and base interval (default: 3, 5s)
//	WithMigrations(fs)           - Embedded migrations applied by Open
//	WithLogger(l)                - Logger for migration output
//
// [Migrate] reads the "migrations" directory of the embedded filesystem and
// records applied versions in the "schema_migrations" table.
//
// # Usage
//
// Basic connection setup with functional options:
//
//	import (
//		"context"
//		"log"
//		"os"
//
//		"github.com/jobforge/jobforge/pkg/db"
//	)
//
//	func main() {
//		ctx := context.Background()
//
//		pool, err := db.Open(ctx, os.Getenv("DATABASE_CONN_URL"),
//			db.WithMaxConns(10),
//			db.WithMinConns(5),
//		)
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer pool.Close()
//	}
//
// # Health Checks
//
// This package has no health-check helper; a check can ping the pool directly:
//
//	func dbCheck(pool *pgxpool.Pool) func(context.Context) error {
//		return func(ctx context.Context) error { return pool.Ping(ctx) }
//	}
//
// # Transactions
//
// The [WithTx] helper provides automatic transaction management with rollback on error:
//
//	import (
//		"context"
//
//		"github.com/jobforge/jobforge/pkg/db"
//	)
//
//	err := db.WithTx(ctx, pool, func(tx pgx.Tx) error {
//		// Execute queries using tx
//		return tx.QueryRow(ctx, "SELECT 1").Scan(&result)
//	})
//	if err != nil {
//		// Transaction was rolled back automatically
//	}
//
// # Migrations
//
// Run database migrations using embedded SQL files:
//
//	import (
//		"context"
//		"embed"
//		"log/slog"
//
//		"github.com/jobforge/jobforge/pkg/db"
//	)
//
//	//go:embed migrations/*.sql
//	var migrations embed.FS
//
//	err := db.Migrate(ctx, pool, migrations, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Error Handling
//
// The package defines sentinel errors for common failure modes:
//
//   - [ErrFailedToParseDBConfig] - Invalid connection string format
//   - [ErrFailedToOpenDBConnection] - Connection failed after all retries
//   - [ErrHealthcheckFailed] - Database ping failed
//   - [ErrSetDialect] - Migration dialect configuration error
//   - [ErrApplyMigrations] - Migration execution failed
//
// Errors are wrapped using [errors.Join] to preserve the original error context.
package db
