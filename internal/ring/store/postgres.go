package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"proofpals/internal/crypto/ringsig"
	"proofpals/internal/ring/models"
	id "proofpals/pkg/domain"
	"proofpals/pkg/platform/sentinel"
	txcontext "proofpals/pkg/platform/tx"
)

// Postgres persists rings. Member keys are stored as an ordered bytea
// array; order matters because signatures commit to it.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) execer(ctx context.Context) execer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Postgres) Create(ctx context.Context, ring *models.Ring) error {
	members := make([][]byte, len(ring.Members))
	for i, m := range ring.Members {
		members[i] = m
	}
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO rings (id, members, created_at)
		VALUES ($1, $2, $3)`,
		uuid.UUID(ring.ID), pq.ByteaArray(members), ring.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("ring %s: %w", ring.ID, sentinel.ErrDuplicate)
		}
		return fmt.Errorf("insert ring: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, ringID id.RingID) (*models.Ring, error) {
	var members pq.ByteaArray
	ring := &models.Ring{ID: ringID}
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT members, created_at FROM rings WHERE id = $1`,
		uuid.UUID(ringID)).Scan(&members, &ring.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ring %s: %w", ringID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select ring: %w", err)
	}
	ring.Members = make([]ringsig.PublicKey, len(members))
	for i, m := range members {
		ring.Members[i] = ringsig.PublicKey(m)
	}
	return ring, nil
}

// Schema creates the rings table if missing.
func (s *Postgres) Schema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS rings (
			id         UUID PRIMARY KEY,
			members    BYTEA[] NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`)
	return err
}
