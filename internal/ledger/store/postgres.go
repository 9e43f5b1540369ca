package store

import (
	"context"
	"database/sql"
	"fmt"

	"proofpals/pkg/platform/sentinel"
	txcontext "proofpals/pkg/platform/tx"
)

// Postgres implements the ledger with a conditional insert. ON CONFLICT DO
// NOTHING makes Reserve atomic and idempotent under concurrent callers.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Postgres) execer(ctx context.Context) execer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Postgres) Reserve(ctx context.Context, ringID string, keyImage []byte) (bool, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO key_images (ring_id, key_image)
		VALUES ($1, $2)
		ON CONFLICT (ring_id, key_image) DO NOTHING`,
		ringID, keyImage)
	if err != nil {
		return false, fmt.Errorf("reserve key image: %w: %w", sentinel.ErrUnavailable, err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reserve rows affected: %w", err)
	}
	return inserted == 1, nil
}

// Schema creates the key image table if missing.
func (s *Postgres) Schema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS key_images (
			ring_id   TEXT NOT NULL,
			key_image BYTEA NOT NULL,
			PRIMARY KEY (ring_id, key_image)
		)`)
	return err
}
