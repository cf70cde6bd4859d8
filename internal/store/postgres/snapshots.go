package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Backend implements store.Backend with one row per collection.
type Backend struct {
	db *sqlx.DB
}

// New applies the schema and returns a Backend on db.
func New(ctx context.Context, db *sqlx.DB) (*Backend, error) {
	if _, err := db.ExecContext(ctx, initialSchema); err != nil {
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Backend{db: db}, nil
}

func (b *Backend) Load(ctx context.Context, name string) ([]byte, error) {
	var payload []byte
	err := b.db.GetContext(ctx, &payload, `SELECT payload FROM snapshots WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %s: %w", name, err)
	}
	return payload, nil
}

func (b *Backend) Save(ctx context.Context, name string, data []byte) error {
	// lib/pq sends []byte as bytea, which jsonb rejects; pass text instead.
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO snapshots (name, payload, updated_at) VALUES ($1, $2::jsonb, now())
		 ON CONFLICT (name) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
		name, string(data),
	)
	if err != nil {
		return fmt.Errorf("saving snapshot %s: %w", name, err)
	}
	return nil
}

func (b *Backend) Ping(ctx context.Context) error { return b.db.PingContext(ctx) }

func (b *Backend) Close() error { return b.db.Close() }
