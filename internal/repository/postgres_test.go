package repository

import (
	"context"
	"testing"

	"github.com/ayo6706/token-ledger/internal/domain"
	"github.com/ayo6706/token-ledger/internal/models"
	"github.com/ayo6706/token-ledger/internal/testutil/dblock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPgStore(t *testing.T) *PgStore {
	t.Helper()
	return NewPgStore(dblock.Pool(t, "agreements", "balances", "customers", "symbol_stats"))
}

func TestPgStore_RoundTrip(t *testing.T) {
	store := setupPgStore(t)
	ctx := context.Background()
	q := store.Queries()

	stats := models.Stats{Supply: domain.NewAsset(0, tok), MaxSupply: domain.NewAsset(1_000_0000, tok), Issuer: "alice"}
	require.NoError(t, q.InsertStats(ctx, stats))
	assert.ErrorIs(t, q.InsertStats(ctx, stats), ErrDuplicate)

	got, err := q.GetStats(ctx, "TOK")
	require.NoError(t, err)
	assert.Equal(t, stats, got)

	require.NoError(t, q.PutCustomer(ctx, models.Customer{
		Account:   "shop",
		Fee:       domain.NewAsset(5, tok),
		Overdraft: domain.NewAsset(0, domain.Symbol{}),
		Role:      domain.RoleBusiness,
		Enabled:   true,
	}))
	c, err := q.GetCustomer(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleBusiness, c.Role)
	assert.Equal(t, int64(5), c.Fee.Amount)

	a, err := q.InsertAgreement(ctx, sampleAgreement("alice", "shop", 1))
	require.NoError(t, err)
	assert.NotZero(t, a.ID)
	_, err = q.InsertAgreement(ctx, sampleAgreement("alice", "shop", 1))
	assert.ErrorIs(t, err, ErrDuplicate)

	fetched, err := q.GetAgreement(ctx, a.Key())
	require.NoError(t, err)
	assert.True(t, a.BeginsAt.Equal(fetched.BeginsAt))
	assert.Equal(t, a.Price, fetched.Price)

	byPayee, err := q.ListAgreementsByPayeeService(ctx, models.ServiceKey{Account: "shop", ServiceID: 1})
	require.NoError(t, err)
	assert.Len(t, byPayee, 1)

	require.NoError(t, q.DeleteAgreement(ctx, a.ID))
	assert.ErrorIs(t, q.DeleteAgreement(ctx, a.ID), ErrNotFound)
}

func TestPgStore_RunInTxRollsBack(t *testing.T) {
	store := setupPgStore(t)
	ctx := context.Background()

	require.NoError(t, store.Queries().InsertStats(ctx, models.Stats{
		Supply: domain.NewAsset(0, tok), MaxSupply: domain.NewAsset(100, tok), Issuer: "alice",
	}))

	err := store.RunInTx(ctx, func(q Queries) error {
		if err := q.PutBalance(ctx, models.Balance{Owner: "alice", Balance: domain.NewAsset(5, tok)}); err != nil {
			return err
		}
		return ErrDuplicate
	})
	require.ErrorIs(t, err, ErrDuplicate)

	sum, err := store.Queries().SumBalances(ctx, "TOK")
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum)
}
