package service

import (
	"context"
	"testing"
	"time"

	"github.com/ayo6706/token-ledger/internal/clock"
	"github.com/ayo6706/token-ledger/internal/domain"
	"github.com/ayo6706/token-ledger/internal/notify"
	"github.com/ayo6706/token-ledger/internal/repository"
	"github.com/stretchr/testify/require"
)

const authority domain.Name = "bank"

var t0 = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	ctx        context.Context
	store      *repository.MemoryStore
	clock      *clock.Fake
	notes      *notify.Recorder
	ledger     *LedgerService
	customers  *CustomerService
	agreements *AgreementService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	clk := clock.NewFake(t0)
	notes := &notify.Recorder{}
	ledger := NewLedgerService(store, notes, clk, authority)
	return &fixture{
		ctx:        context.Background(),
		store:      store,
		clock:      clk,
		notes:      notes,
		ledger:     ledger,
		customers:  NewCustomerService(store, ledger, notes, clk, authority),
		agreements: NewAgreementService(store, ledger, notes, clk, authority),
	}
}

func as(names ...domain.Name) domain.Authorization {
	return domain.NewAuthorization(names...)
}

func (f *fixture) customer(t *testing.T, name domain.Name, role domain.Role) {
	t.Helper()
	_, err := f.customers.Upsert(f.ctx, as(authority), UpsertCustomerCmd{Account: name, Role: role, Enabled: true})
	require.NoError(t, err)
}

func (f *fixture) symbol(t *testing.T, issuer domain.Name, maxSupply string) {
	t.Helper()
	_, err := f.ledger.CreateSymbol(f.ctx, as(issuer), issuer, domain.MustParseAsset(maxSupply))
	require.NoError(t, err)
}

func (f *fixture) amount(t *testing.T, owner domain.Name, code string) int64 {
	t.Helper()
	bal, err := f.ledger.GetBalance(f.ctx, owner, code)
	require.NoError(t, err)
	return bal.Balance.Amount
}

func (f *fixture) supply(t *testing.T, code string) int64 {
	t.Helper()
	st, err := f.ledger.GetSupply(f.ctx, code)
	require.NoError(t, err)
	return st.Supply.Amount
}

func (f *fixture) requireBalanced(t *testing.T) {
	t.Helper()
	imbalances, err := NewReconciliationService(f.store).Run(f.ctx)
	require.NoError(t, err)
	require.Empty(t, imbalances)
}

func tok(raw string) domain.Asset {
	return domain.MustParseAsset(raw)
}
