package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"proofpals/internal/submission/models"
	id "proofpals/pkg/domain"
	"proofpals/pkg/platform/sentinel"
	txcontext "proofpals/pkg/platform/tx"
	"proofpals/pkg/requestcontext"
)

// Postgres persists submissions, votes, and escalations. The per-submission
// critical section is a row lock: Execute and Resolve run SELECT ... FOR
// UPDATE inside a transaction, so concurrent votes on one submission
// serialize while other submissions proceed in parallel.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Postgres) querier(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Postgres) Create(ctx context.Context, sub *models.Submission) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO submissions
			(id, content_ref, genre, ring_id, status,
			 count_approve, count_reject, count_escalate, count_flag,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.UUID(sub.ID), sub.ContentRef, sub.Genre, uuid.UUID(sub.RingID), sub.Status,
		sub.Tally.Approve, sub.Tally.Reject, sub.Tally.Escalate, sub.Tally.Flag,
		sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("submission %s: %w", sub.ID, sentinel.ErrDuplicate)
		}
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func scanSubmission(row interface{ Scan(...any) error }) (*models.Submission, error) {
	sub := &models.Submission{}
	var subID, ringID uuid.UUID
	var decidedAt sql.NullTime
	err := row.Scan(&subID, &sub.ContentRef, &sub.Genre, &ringID, &sub.Status,
		&sub.Tally.Approve, &sub.Tally.Reject, &sub.Tally.Escalate, &sub.Tally.Flag,
		&sub.CreatedAt, &sub.UpdatedAt, &decidedAt)
	if err != nil {
		return nil, err
	}
	sub.ID = id.SubmissionID(subID)
	sub.RingID = id.RingID(ringID)
	if decidedAt.Valid {
		t := decidedAt.Time
		sub.DecidedAt = &t
	}
	return sub, nil
}

const submissionColumns = `id, content_ref, genre, ring_id, status,
	count_approve, count_reject, count_escalate, count_flag,
	created_at, updated_at, decided_at`

func (s *Postgres) FindByID(ctx context.Context, subID id.SubmissionID) (*models.Submission, error) {
	row := s.querier(ctx).QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, uuid.UUID(subID))
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("submission %s: %w", subID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select submission: %w", err)
	}
	return sub, nil
}

func (s *Postgres) lockSubmission(ctx context.Context, subID id.SubmissionID) (*models.Submission, error) {
	row := s.querier(ctx).QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1 FOR UPDATE`, uuid.UUID(subID))
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("submission %s: %w", subID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock submission: %w", err)
	}
	return sub, nil
}

func (s *Postgres) saveLocked(ctx context.Context, sub *models.Submission) error {
	var decidedAt any
	if sub.DecidedAt != nil {
		decidedAt = *sub.DecidedAt
	}
	_, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE submissions SET status = $2,
			count_approve = $3, count_reject = $4, count_escalate = $5, count_flag = $6,
			updated_at = $7, decided_at = $8
		WHERE id = $1`,
		uuid.UUID(sub.ID), sub.Status,
		sub.Tally.Approve, sub.Tally.Reject, sub.Tally.Escalate, sub.Tally.Flag,
		sub.UpdatedAt, decidedAt)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	return nil
}

// Execute runs validate then mutate while holding the submission's row
// lock, persisting the mutated row and the vote in one transaction.
func (s *Postgres) Execute(
	ctx context.Context,
	subID id.SubmissionID,
	vote *models.Vote,
	validate func(*models.Submission) error,
	mutate func(*models.Submission),
) (*models.Submission, error) {
	var result *models.Submission
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		sub, err := s.lockSubmission(ctx, subID)
		if err != nil {
			return err
		}
		if err := validate(sub); err != nil {
			return err
		}
		mutate(sub)
		if err := s.saveLocked(ctx, sub); err != nil {
			return err
		}
		if vote != nil {
			if err := s.insertVote(ctx, vote); err != nil {
				return err
			}
		}
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Postgres) insertVote(ctx context.Context, vote *models.Vote) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO votes (id, submission_id, ring_id, kind, signature, key_image, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.UUID(vote.ID), uuid.UUID(vote.SubmissionID), uuid.UUID(vote.RingID),
		vote.Kind, vote.Signature, vote.KeyImage, vote.ReceivedAt)
	if err != nil {
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

// Resolve writes the escalation record and status flip in one transaction.
func (s *Postgres) Resolve(ctx context.Context, esc *models.Escalation) (*models.Submission, error) {
	var result *models.Submission
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		sub, err := s.lockSubmission(ctx, esc.SubmissionID)
		if err != nil {
			return err
		}

		res, err := s.querier(ctx).ExecContext(ctx, `
			INSERT INTO escalations (submission_id, resolution, resolver_id, rationale, resolved_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (submission_id) DO NOTHING`,
			uuid.UUID(esc.SubmissionID), esc.Resolution, esc.ResolverID, esc.Rationale, esc.ResolvedAt)
		if err != nil {
			return fmt.Errorf("insert escalation: %w", err)
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("escalation rows affected: %w", err)
		}
		if inserted == 0 {
			return fmt.Errorf("submission %s: %w", esc.SubmissionID, sentinel.ErrDuplicate)
		}
		if !sub.Status.Resolvable() {
			return fmt.Errorf("submission %s status %s: %w", esc.SubmissionID, sub.Status, sentinel.ErrInvalidState)
		}

		sub.ApplyResolution(esc.Resolution, requestcontext.Now(ctx))
		if err := s.saveLocked(ctx, sub); err != nil {
			return err
		}
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Postgres) FindEscalation(ctx context.Context, subID id.SubmissionID) (*models.Escalation, error) {
	esc := &models.Escalation{SubmissionID: subID}
	err := s.querier(ctx).QueryRowContext(ctx, `
		SELECT resolution, resolver_id, rationale, resolved_at
		FROM escalations WHERE submission_id = $1`,
		uuid.UUID(subID)).Scan(&esc.Resolution, &esc.ResolverID, &esc.Rationale, &esc.ResolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("escalation for %s: %w", subID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select escalation: %w", err)
	}
	return esc, nil
}

func (s *Postgres) ListByStatus(ctx context.Context, status models.Status) ([]*models.Submission, error) {
	rows, err := s.querier(ctx).QueryContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE status = $1 ORDER BY created_at DESC`, status)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var out []*models.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Postgres) ListVotes(ctx context.Context, subID id.SubmissionID) ([]*models.Vote, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, `
		SELECT id, submission_id, ring_id, kind, signature, key_image, received_at
		FROM votes WHERE submission_id = $1 ORDER BY received_at`, uuid.UUID(subID))
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	var out []*models.Vote
	for rows.Next() {
		vote := &models.Vote{}
		var voteID, sID, ringID uuid.UUID
		if err := rows.Scan(&voteID, &sID, &ringID, &vote.Kind, &vote.Signature, &vote.KeyImage, &vote.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		vote.ID = id.VoteID(voteID)
		vote.SubmissionID = id.SubmissionID(sID)
		vote.RingID = id.RingID(ringID)
		out = append(out, vote)
	}
	return out, rows.Err()
}

// Schema creates the submission keyspace tables if missing.
func (s *Postgres) Schema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS submissions (
			id             UUID PRIMARY KEY,
			content_ref    TEXT NOT NULL,
			genre          TEXT NOT NULL DEFAULT '',
			ring_id        UUID NOT NULL,
			status         TEXT NOT NULL,
			count_approve  INT NOT NULL DEFAULT 0,
			count_reject   INT NOT NULL DEFAULT 0,
			count_escalate INT NOT NULL DEFAULT 0,
			count_flag     INT NOT NULL DEFAULT 0,
			created_at     TIMESTAMPTZ NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL,
			decided_at     TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS votes (
			id            UUID PRIMARY KEY,
			submission_id UUID NOT NULL REFERENCES submissions(id),
			ring_id       UUID NOT NULL,
			kind          TEXT NOT NULL,
			signature     BYTEA NOT NULL,
			key_image     BYTEA NOT NULL,
			received_at   TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS escalations (
			submission_id UUID PRIMARY KEY REFERENCES submissions(id),
			resolution    TEXT NOT NULL,
			resolver_id   TEXT NOT NULL,
			rationale     TEXT NOT NULL DEFAULT '',
			resolved_at   TIMESTAMPTZ NOT NULL
		)`)
	return err
}
