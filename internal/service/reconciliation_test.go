package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/token-ledger/internal/domain"
	"github.com/ayo6706/token-ledger/internal/models"
	"github.com/ayo6706/token-ledger/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// racingStore runs afterList once, right after the first symbol listing, on
// both the plain and the transactional query sets.
type racingStore struct {
	*repository.MemoryStore
	once      sync.Once
	afterList func()
}

func (s *racingStore) Queries() repository.Queries {
	return &racingQueries{Queries: s.MemoryStore.Queries(), store: s}
}

func (s *racingStore) RunInTx(ctx context.Context, fn func(q repository.Queries) error) error {
	return s.MemoryStore.RunInTx(ctx, func(q repository.Queries) error {
		return fn(&racingQueries{Queries: q, store: s})
	})
}

type racingQueries struct {
	repository.Queries
	store *racingStore
}

func (q *racingQueries) ListStats(ctx context.Context) ([]models.Stats, error) {
	stats, err := q.Queries.ListStats(ctx)
	q.store.once.Do(q.store.afterList)
	return stats, err
}

func TestReconciliation_ConcurrentIssueIsNotAnImbalance(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "alice", domain.RolePersonal)
	f.symbol(t, "alice", "1000 TOK")
	require.NoError(t, f.ledger.Issue(f.ctx, as("alice"), "alice", tok("10 TOK"), ""))

	issued := make(chan error, 1)
	store := &racingStore{MemoryStore: f.store}
	store.afterList = func() {
		go func() { issued <- f.ledger.Issue(f.ctx, as("alice"), "alice", tok("5 TOK"), "") }()
		select {
		case err := <-issued:
			issued <- err
		case <-time.After(50 * time.Millisecond):
		}
	}

	imbalances, err := NewReconciliationService(store).Run(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, imbalances)

	require.NoError(t, <-issued)
	assert.Equal(t, int64(15), f.supply(t, "TOK"))
	f.requireBalanced(t)
}

func TestReconciliation_ReportsImbalance(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "alice", domain.RolePersonal)
	f.symbol(t, "alice", "1000 TOK")
	require.NoError(t, f.ledger.Issue(f.ctx, as("alice"), "alice", tok("10 TOK"), ""))

	require.NoError(t, f.store.RunInTx(f.ctx, func(q repository.Queries) error {
		bal, err := q.GetBalance(f.ctx, "alice", "TOK")
		if err != nil {
			return err
		}
		bal.Balance.Amount = 7
		return q.PutBalance(f.ctx, bal)
	}))

	imbalances, err := NewReconciliationService(f.store).Run(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []Imbalance{{Symbol: "TOK", Supply: 10, Balances: 7}}, imbalances)
}
