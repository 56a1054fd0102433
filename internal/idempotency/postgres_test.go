package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/ayo6706/token-ledger/internal/testutil/dblock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPgBackend_Lifecycle(t *testing.T) {
	ctx := context.Background()
	pool := dblock.Pool(t, "idempotency_keys")

	s := NewStore(nil, NewPgBackend(pool), time.Hour)

	ok, err := s.Reserve(ctx, "alice|k1", "h1", "POST", "/v1/transfers")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Reserve(ctx, "alice|k1", "h1", "POST", "/v1/transfers")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Lookup(ctx, "alice|k1", "h1")
	assert.ErrorIs(t, err, ErrInProgress)

	rec, err := s.Finalize(ctx, "alice|k1", "h1", 201, []byte(`{"status":"transferred"}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, "postgres", rec.ServedBy)

	rec, err = s.Lookup(ctx, "alice|k1", "h1")
	require.NoError(t, err)
	assert.Equal(t, 201, rec.Status)

	_, err = s.Finalize(ctx, "alice|k1", "other", 201, nil, "application/json")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err = s.Reserve(ctx, "alice|k2", "h2", "POST", "/v1/issue")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.Release(ctx, "alice|k2", "h2"))
	_, err = s.Lookup(ctx, "alice|k2", "h2")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = pool.Exec(ctx, `UPDATE idempotency_keys SET created_at = NOW() - INTERVAL '2 hours' WHERE idempotency_key = $1`, "alice|k1")
	require.NoError(t, err)
	ok, err = s.Reserve(ctx, "alice|k1", "h3", "POST", "/v1/transfers")
	require.NoError(t, err)
	assert.True(t, ok, "expired row is taken over")
	_, err = s.Lookup(ctx, "alice|k1", "h3")
	assert.ErrorIs(t, err, ErrInProgress)
}
