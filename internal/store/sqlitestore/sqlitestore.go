// Package sqlitestore provides a store.Backend that keeps collection
// snapshots as rows of a single SQLite table, accessed through database/sql
// with OTEL instrumentation via otelsql.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/XSAM/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/jensholdgaard/auctionhouse/internal/config"
	"github.com/jensholdgaard/auctionhouse/internal/store"
)

func init() {
	store.Register("sqlite", func(ctx context.Context, cfg config.StorageConfig) (store.Backend, error) {
		return Open(ctx, cfg.SQLite.Path)
	})
}

const schema = `CREATE TABLE IF NOT EXISTS snapshots (
	name       TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	updated_at TEXT NOT NULL
)`

// Backend implements store.Backend on a SQLite database file.
type Backend struct {
	db   *sql.DB
	path string
}

// Open creates the database file and schema if needed.
func Open(ctx context.Context, path string) (*Backend, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating dirs: %w", err)
	}

	db, err := otelsql.Open("sqlite", path,
		otelsql.WithAttributes(semconv.DBSystemSqlite),
	)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// A single connection serialises writers and keeps the file lock simple.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating snapshots table: %w", err)
	}
	return &Backend{db: db, path: path}, nil
}

func (b *Backend) Load(ctx context.Context, name string) ([]byte, error) {
	var payload []byte
	err := b.db.QueryRowContext(ctx, `SELECT payload FROM snapshots WHERE name = ?`, name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %s: %w", name, err)
	}
	return payload, nil
}

func (b *Backend) Save(ctx context.Context, name string, data []byte) (retErr error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots(name, payload, updated_at) VALUES(?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		name, data, time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("upserting snapshot %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot %s: %w", name, err)
	}
	return nil
}

func (b *Backend) Ping(ctx context.Context) error { return b.db.PingContext(ctx) }

func (b *Backend) Close() error { return b.db.Close() }

// Path returns the database file path.
func (b *Backend) Path() string { return b.path }
