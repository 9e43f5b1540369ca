package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"proofpals/internal/credential/models"
	id "proofpals/pkg/domain"
	"proofpals/pkg/platform/sentinel"
	txcontext "proofpals/pkg/platform/tx"
)

const uniqueViolation = "23505"

// Postgres persists credentials and key shares. The issue-if-none-active
// check runs under a per-pair advisory lock so concurrent issuance for the
// same pair serializes even when no credential row exists yet.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Create(ctx context.Context, cred *models.Credential, now time.Time) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		tx, _ := txcontext.From(ctx)

		if _, err := tx.ExecContext(ctx,
			`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, cred.PairHash); err != nil {
			return fmt.Errorf("lock pair: %w", err)
		}

		var active bool
		err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM credentials
				WHERE pair_hash = $1 AND consumed_at IS NULL AND expires_at > $2
			)`, cred.PairHash, now).Scan(&active)
		if err != nil {
			return fmt.Errorf("check active credential: %w", err)
		}
		if active {
			return sentinel.ErrDuplicate
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO credentials (
				id, ring_id, submission_id, share, member_index,
				key_image, pair_hash, issued_at, expires_at, consumed_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			cred.ID.String(), cred.RingID.String(), cred.SubmissionID.String(),
			cred.Share, cred.MemberIndex, cred.KeyImage, cred.PairHash,
			cred.IssuedAt, cred.ExpiresAt, cred.ConsumedAt)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return sentinel.ErrDuplicate
			}
			return fmt.Errorf("insert credential: %w", err)
		}
		return nil
	})
}

func (s *Postgres) FindByID(ctx context.Context, credID id.CredentialID) (*models.Credential, error) {
	var (
		cred                   models.Credential
		rawID, rawRing, rawSub string
		consumedAt             sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, ring_id, submission_id, share, member_index,
		       key_image, pair_hash, issued_at, expires_at, consumed_at
		FROM credentials WHERE id = $1`, credID.String()).Scan(
		&rawID, &rawRing, &rawSub, &cred.Share, &cred.MemberIndex,
		&cred.KeyImage, &cred.PairHash, &cred.IssuedAt, &cred.ExpiresAt, &consumedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find credential: %w", err)
	}
	if cred.ID, err = id.ParseCredentialID(rawID); err != nil {
		return nil, err
	}
	if cred.RingID, err = id.ParseRingID(rawRing); err != nil {
		return nil, err
	}
	if cred.SubmissionID, err = id.ParseSubmissionID(rawSub); err != nil {
		return nil, err
	}
	if consumedAt.Valid {
		cred.ConsumedAt = &consumedAt.Time
	}
	return &cred, nil
}

func (s *Postgres) MarkConsumed(ctx context.Context, keyImage []byte, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE credentials SET consumed_at = $2
		WHERE key_image = $1 AND consumed_at IS NULL`, keyImage, now)
	if err != nil {
		return fmt.Errorf("mark credential consumed: %w", err)
	}
	return nil
}

func (s *Postgres) DepositShare(ctx context.Context, ringID id.RingID, reviewerHash string, memberIndex int, share []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO key_shares (ring_id, reviewer_hash, member_index, share)
		VALUES ($1, $2, $3, $4)`,
		ringID.String(), reviewerHash, memberIndex, share)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrDuplicate
		}
		return fmt.Errorf("deposit key share: %w", err)
	}
	return nil
}

func (s *Postgres) FindShare(ctx context.Context, ringID id.RingID, reviewerHash string) ([]byte, int, error) {
	var (
		share       []byte
		memberIndex int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT share, member_index FROM key_shares
		WHERE ring_id = $1 AND reviewer_hash = $2`,
		ringID.String(), reviewerHash).Scan(&share, &memberIndex)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("find key share: %w", err)
	}
	return share, memberIndex, nil
}

// Schema creates the credential tables if missing.
func (s *Postgres) Schema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS credentials (
			id            UUID PRIMARY KEY,
			ring_id       UUID NOT NULL,
			submission_id UUID NOT NULL,
			share         BYTEA NOT NULL,
			member_index  INT NOT NULL,
			key_image     BYTEA NOT NULL,
			pair_hash     TEXT NOT NULL,
			issued_at     TIMESTAMPTZ NOT NULL,
			expires_at    TIMESTAMPTZ NOT NULL,
			consumed_at   TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS credentials_pair_hash_idx ON credentials (pair_hash);
		CREATE INDEX IF NOT EXISTS credentials_key_image_idx ON credentials (key_image);
		CREATE TABLE IF NOT EXISTS key_shares (
			ring_id       UUID NOT NULL,
			reviewer_hash TEXT NOT NULL,
			member_index  INT NOT NULL,
			share         BYTEA NOT NULL,
			PRIMARY KEY (ring_id, reviewer_hash)
		)`)
	return err
}
