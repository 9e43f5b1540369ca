// Package postgres persists the audit chain in a single append-only table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"proofpals/pkg/platform/audit"
	txcontext "proofpals/pkg/platform/tx"
)

// Store implements audit.Log on Postgres. The chain is serialized by an
// advisory lock on append so concurrent writers cannot fork it.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// appendLockID scopes the advisory lock taken while assigning a sequence
// number and chaining the digest.
const appendLockID = 0x70726f6f66 // "proof"

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) querier(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) Append(ctx context.Context, event audit.Event) (uint64, error) {
	payload, err := audit.EncodePayload(event)
	if err != nil {
		return 0, err
	}

	var seq uint64
	err = txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		q := s.querier(ctx)
		if _, err := q.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, appendLockID); err != nil {
			return fmt.Errorf("acquire audit append lock: %w", err)
		}

		// Idempotent re-append: same event ID returns the original seq.
		var existing uint64
		err := q.QueryRowContext(ctx,
			`SELECT seq FROM audit_log WHERE event_id = $1`, event.ID).Scan(&existing)
		if err == nil {
			seq = existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check audit event: %w", err)
		}

		prev := audit.GenesisDigest
		var lastSeq uint64
		err = q.QueryRowContext(ctx,
			`SELECT seq, digest FROM audit_log ORDER BY seq DESC LIMIT 1`).Scan(&lastSeq, &prev)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read audit chain head: %w", err)
		}

		seq = lastSeq + 1
		payloadDigest := audit.PayloadDigest(payload)
		digest := audit.ChainDigest(prev, payloadDigest, seq)
		_, err = q.ExecContext(ctx, `
			INSERT INTO audit_log (seq, event_id, prev_digest, payload_digest, digest, payload, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			seq, event.ID, prev, payloadDigest, digest, payload, event.Timestamp.UTC())
		if err != nil {
			return fmt.Errorf("append audit entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *Store) Range(ctx context.Context, fromSeq, toSeq uint64) ([]audit.Entry, error) {
	if fromSeq == 0 {
		fromSeq = 1
	}
	query := `
		SELECT seq, event_id, prev_digest, payload_digest, digest, payload, created_at
		FROM audit_log WHERE seq >= $1`
	args := []any{fromSeq}
	if toSeq > 0 {
		query += ` AND seq <= $2`
		args = append(args, toSeq)
	}
	query += ` ORDER BY seq`

	rows, err := s.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("range audit log: %w", err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var e audit.Entry
		var eventID uuid.UUID
		if err := rows.Scan(&e.Seq, &eventID, &e.PrevDigest, &e.PayloadDigest, &e.Digest, &e.Payload, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.EventID = eventID.String()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) VerifyChain(ctx context.Context, fromSeq, toSeq uint64) (bool, error) {
	if fromSeq == 0 {
		fromSeq = 1
	}
	entries, err := s.Range(ctx, fromSeq, toSeq)
	if err != nil {
		return false, err
	}
	if len(entries) == 0 {
		return true, nil
	}

	prev := audit.GenesisDigest
	if fromSeq > 1 {
		err := s.querier(ctx).QueryRowContext(ctx,
			`SELECT digest FROM audit_log WHERE seq = $1`, fromSeq-1).Scan(&prev)
		if err != nil {
			return false, fmt.Errorf("read predecessor digest: %w", err)
		}
	}
	return audit.VerifyEntries(prev, entries), nil
}

// Schema creates the audit table if missing. Called at startup; safe to
// re-run.
func (s *Store) Schema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_log (
			seq            BIGINT PRIMARY KEY,
			event_id       UUID NOT NULL UNIQUE,
			prev_digest    TEXT NOT NULL,
			payload_digest TEXT NOT NULL,
			digest         TEXT NOT NULL,
			payload        BYTEA NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL
		)`)
	return err
}
