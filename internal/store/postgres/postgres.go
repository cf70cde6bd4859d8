// Package postgres provides a store.Backend that keeps collection snapshots
// in a Postgres table, using sqlx over an otelsql-instrumented lib/pq driver.
package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/XSAM/otelsql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/jensholdgaard/auctionhouse/internal/config"
	"github.com/jensholdgaard/auctionhouse/internal/store"
)

//go:embed migrations/001_initial.sql
var initialSchema string

func init() {
	store.Register("postgres", func(ctx context.Context, cfg config.StorageConfig) (store.Backend, error) {
		db, err := Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		b, err := New(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return b, nil
	})
}

// Connect opens and verifies a Postgres connection with OTEL instrumentation.
func Connect(ctx context.Context, cfg config.PostgresConfig) (*sqlx.DB, error) {
	dsn := cfg.DSN()

	// Register the OTel-instrumented driver wrapping lib/pq.
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
	if err != nil {
		return nil, fmt.Errorf("registering otel driver: %w", err)
	}

	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}
