//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"proofpals/pkg/platform/audit"
	"proofpals/pkg/testutil"
)

func TestPostgresAuditLog(t *testing.T) {
	db := testutil.StartPostgres(t)
	store := New(db)
	require.NoError(t, store.Schema(context.Background()))
	ctx := context.Background()

	event := audit.Event{ID: uuid.New(), Action: audit.EventVoteAccepted, SubmissionID: uuid.NewString()}
	seq, err := store.Append(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	t.Run("append is idempotent by event id", func(t *testing.T) {
		again, err := store.Append(ctx, event)
		require.NoError(t, err)
		assert.Equal(t, seq, again)

		entries, err := store.Range(ctx, 0, 0)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("chain verifies across appends", func(t *testing.T) {
		for range 5 {
			_, err := store.Append(ctx, audit.Event{ID: uuid.New(), Action: audit.EventStatusChanged})
			require.NoError(t, err)
		}
		valid, err := store.VerifyChain(ctx, 0, 0)
		require.NoError(t, err)
		assert.True(t, valid)

		valid, err = store.VerifyChain(ctx, 3, 5)
		require.NoError(t, err)
		assert.True(t, valid, "sub-range verification anchors on the predecessor digest")
	})

	t.Run("concurrent appends keep a contiguous chain", func(t *testing.T) {
		g, gctx := errgroup.WithContext(ctx)
		for range 16 {
			g.Go(func() error {
				_, err := store.Append(gctx, audit.Event{ID: uuid.New(), Action: audit.EventVoteRejected})
				return err
			})
		}
		require.NoError(t, g.Wait())

		valid, err := store.VerifyChain(ctx, 0, 0)
		require.NoError(t, err)
		assert.True(t, valid)

		entries, err := store.Range(ctx, 0, 0)
		require.NoError(t, err)
		for i, e := range entries {
			assert.Equal(t, uint64(i+1), e.Seq, "sequence numbers must be dense")
		}
	})
}
