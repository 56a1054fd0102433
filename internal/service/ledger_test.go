package service

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/ayo6706/token-ledger/internal/domain"
	"github.com/ayo6706/token-ledger/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_IssueTransferRetire(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "alice", domain.RolePersonal)
	f.customer(t, "bob", domain.RolePersonal)
	f.symbol(t, "alice", "1000000 TOK")

	require.NoError(t, f.ledger.Issue(f.ctx, as("alice"), "alice", tok("100 TOK"), "mint"))
	assert.Equal(t, int64(100), f.supply(t, "TOK"))
	assert.Equal(t, int64(100), f.amount(t, "alice", "TOK"))

	require.NoError(t, f.ledger.Transfer(f.ctx, as("alice"), "alice", "bob", tok("30 TOK"), "lunch"))
	assert.Equal(t, int64(70), f.amount(t, "alice", "TOK"))
	assert.Equal(t, int64(30), f.amount(t, "bob", "TOK"))
	assert.Equal(t, int64(100), f.supply(t, "TOK"))

	require.NoError(t, f.ledger.Retire(f.ctx, as("alice"), tok("20 TOK"), "burn"))
	assert.Equal(t, int64(50), f.amount(t, "alice", "TOK"))
	assert.Equal(t, int64(80), f.supply(t, "TOK"))
	f.requireBalanced(t)
}

func TestLedger_CreateSymbolTwice(t *testing.T) {
	f := newFixture(t)
	f.symbol(t, "alice", "1000.0000 TOK")

	_, err := f.ledger.CreateSymbol(f.ctx, as("bob"), "bob", tok("5.00 TOK"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSymbolExists)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))

	st, err := f.ledger.GetSupply(f.ctx, "TOK")
	require.NoError(t, err)
	assert.Equal(t, domain.Name("alice"), st.Issuer)
	assert.Equal(t, "1000.0000 TOK", st.MaxSupply.String())
}

func TestLedger_CreateSymbolValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.CreateSymbol(f.ctx, as("bob"), "alice", tok("10 TOK"))
	assert.Equal(t, domain.KindAuthorization, domain.KindOf(err))

	_, err = f.ledger.CreateSymbol(f.ctx, as("alice"), "alice", domain.NewAsset(0, domain.Symbol{Code: "TOK"}))
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = f.ledger.CreateSymbol(f.ctx, as("alice"), "alice", domain.NewAsset(10, domain.Symbol{Code: "tok"}))
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestLedger_IssueRejections(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "alice", domain.RolePersonal)
	f.symbol(t, "alice", "100.00 TOK")

	cases := map[string]struct {
		auth domain.Authorization
		qty  domain.Asset
		memo string
		want error
	}{
		"wrong signer":     {as("bob"), tok("1.00 TOK"), "", domain.ErrMissingAuthority},
		"non positive":     {as("alice"), tok("0.00 TOK"), "", domain.ErrNonPositive},
		"precision":        {as("alice"), tok("1.0 TOK"), "", domain.ErrSymbolMismatch},
		"exceeds headroom": {as("alice"), tok("100.01 TOK"), "", domain.ErrExceedsSupply},
		"memo too long":    {as("alice"), tok("1.00 TOK"), strings.Repeat("m", 257), domain.ErrMemoTooLong},
		"unknown symbol":   {as("alice"), tok("1.00 XYZ"), "", domain.ErrSymbolNotFound},
		"signer first":     {as("bob"), tok("1.00 TOK"), strings.Repeat("m", 257), domain.ErrMissingAuthority},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := f.ledger.Issue(f.ctx, tc.auth, "alice", tc.qty, tc.memo)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Equal(t, int64(0), f.supply(t, "TOK"))
}

func TestLedger_IssueToOtherAccountForwards(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "alice", domain.RolePersonal)
	f.customer(t, "bob", domain.RolePersonal)
	f.symbol(t, "alice", "1000 TOK")

	require.NoError(t, f.ledger.Issue(f.ctx, as("alice"), "bob", tok("40 TOK"), "grant"))
	assert.Equal(t, int64(0), f.amount(t, "alice", "TOK"))
	assert.Equal(t, int64(40), f.amount(t, "bob", "TOK"))
	assert.Equal(t, int64(40), f.supply(t, "TOK"))
	assert.Len(t, f.notes.Events(), 2+2, "customer summaries plus the forwarded transfer")
}

func TestLedger_IssueRollsBackWhenForwardFails(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "alice", domain.RolePersonal)
	f.symbol(t, "alice", "1000 TOK")
	before := len(f.notes.Events())

	err := f.ledger.Issue(f.ctx, as("alice"), "ghost", tok("40 TOK"), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	assert.Equal(t, int64(0), f.supply(t, "TOK"))
	_, err = f.ledger.GetBalance(f.ctx, "alice", "TOK")
	assert.ErrorIs(t, err, domain.ErrBalanceNotFound)
	assert.Len(t, f.notes.Events(), before)
}

func TestLedger_TransferRejections(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "alice", domain.RolePersonal)
	f.customer(t, "bob", domain.RolePersonal)
	f.symbol(t, "alice", "1000 TOK")
	require.NoError(t, f.ledger.Issue(f.ctx, as("alice"), "alice", tok("50 TOK"), ""))

	err := f.ledger.Transfer(f.ctx, as("alice"), "alice", "alice", tok("1 TOK"), "")
	assert.ErrorIs(t, err, domain.ErrSelfTransfer)

	err = f.ledger.Transfer(f.ctx, as("bob"), "alice", "bob", tok("1 TOK"), "")
	assert.Equal(t, domain.KindAuthorization, domain.KindOf(err))

	err = f.ledger.Transfer(f.ctx, as("alice"), "alice", "carol", tok("1 TOK"), "")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	err = f.ledger.Transfer(f.ctx, as("alice"), "alice", "bob", tok("-1 TOK"), "")
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	err = f.ledger.Transfer(f.ctx, as("alice"), "alice", "bob", tok("51 TOK"), "")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, domain.KindState, domain.KindOf(err))

	err = f.ledger.Transfer(f.ctx, as("bob"), "bob", "alice", tok("1 TOK"), "")
	assert.ErrorIs(t, err, domain.ErrBalanceNotFound)

	assert.Equal(t, int64(50), f.amount(t, "alice", "TOK"))
	_, err = f.ledger.GetBalance(f.ctx, "bob", "TOK")
	assert.ErrorIs(t, err, domain.ErrBalanceNotFound)
}

func TestLedger_TransferNotifiesBothParties(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "alice", domain.RolePersonal)
	f.customer(t, "bob", domain.RolePersonal)
	f.symbol(t, "alice", "1000 TOK")
	require.NoError(t, f.ledger.Issue(f.ctx, as("alice"), "alice", tok("50 TOK"), ""))
	before := len(f.notes.Events())

	require.NoError(t, f.ledger.Transfer(f.ctx, as("alice"), "alice", "bob", tok("5 TOK"), "coffee"))

	events := f.notes.Events()[before:]
	require.Len(t, events, 2)
	assert.Equal(t, notify.EventTransfer, events[0].Type)
	assert.Equal(t, domain.Name("alice"), events[0].Account)
	assert.Equal(t, domain.Name("bob"), events[1].Account)
	assert.Equal(t, "coffee", events[1].Memo)
	assert.Equal(t, "5 TOK", events[1].Fields["quantity"])
}

func TestLedger_RetireRejections(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "alice", domain.RolePersonal)
	f.symbol(t, "alice", "1000 TOK")

	err := f.ledger.Retire(f.ctx, as("alice"), tok("1 TOK"), "")
	assert.ErrorIs(t, err, domain.ErrBalanceNotFound)

	require.NoError(t, f.ledger.Issue(f.ctx, as("alice"), "alice", tok("10 TOK"), ""))
	err = f.ledger.Retire(f.ctx, as("alice"), tok("11 TOK"), "")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	err = f.ledger.Retire(f.ctx, as("bob"), tok("1 TOK"), "")
	assert.ErrorIs(t, err, domain.ErrMissingAuthority)
	err = f.ledger.Retire(f.ctx, as("bob"), tok("1 TOK"), strings.Repeat("m", 257))
	assert.ErrorIs(t, err, domain.ErrMissingAuthority, "signer is checked before the memo")

	assert.Equal(t, int64(10), f.supply(t, "TOK"))
	assert.Equal(t, int64(10), f.amount(t, "alice", "TOK"))
}

func TestLedger_OpenClose(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "alice", domain.RolePersonal)
	f.customer(t, "bob", domain.RolePersonal)
	f.symbol(t, "alice", "1000.00 TOK")
	sym := domain.Symbol{Code: "TOK", Precision: 2}

	require.NoError(t, f.ledger.Open(f.ctx, as("alice"), "bob", sym, "alice"))
	require.NoError(t, f.ledger.Open(f.ctx, as("alice"), "bob", sym, "alice"), "open is idempotent")
	assert.Equal(t, int64(0), f.amount(t, "bob", "TOK"))

	err := f.ledger.Open(f.ctx, as("bob"), "bob", sym, "alice")
	assert.ErrorIs(t, err, domain.ErrMissingAuthority)
	err = f.ledger.Open(f.ctx, as("alice"), "bob", domain.Symbol{Code: "TOK", Precision: 4}, "alice")
	assert.ErrorIs(t, err, domain.ErrSymbolMismatch)
	err = f.ledger.Open(f.ctx, as("alice"), "bob", domain.Symbol{Code: "NOPE", Precision: 2}, "alice")
	assert.ErrorIs(t, err, domain.ErrSymbolNotFound)

	require.NoError(t, f.ledger.Issue(f.ctx, as("alice"), "bob", tok("1.00 TOK"), ""))
	err = f.ledger.Close(f.ctx, as("bob"), "bob", sym)
	assert.ErrorIs(t, err, domain.ErrBalanceNotZero)

	require.NoError(t, f.ledger.Transfer(f.ctx, as("bob"), "bob", "alice", tok("1.00 TOK"), ""))
	err = f.ledger.Close(f.ctx, as("alice"), "bob", sym)
	assert.ErrorIs(t, err, domain.ErrMissingAuthority)
	require.NoError(t, f.ledger.Close(f.ctx, as("bob"), "bob", sym))

	err = f.ledger.Close(f.ctx, as("bob"), "bob", sym)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
	f.requireBalanced(t)
}

func TestLedger_ListBalancesAndSymbols(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "alice", domain.RolePersonal)
	f.symbol(t, "alice", "1000 ZED")
	f.symbol(t, "alice", "1000 ABC")
	require.NoError(t, f.ledger.Issue(f.ctx, as("alice"), "alice", tok("3 ZED"), ""))
	require.NoError(t, f.ledger.Issue(f.ctx, as("alice"), "alice", tok("4 ABC"), ""))

	balances, err := f.ledger.ListBalances(f.ctx, "alice")
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, "4 ABC", balances[0].Balance.String())
	assert.Equal(t, "3 ZED", balances[1].Balance.String())

	symbols, err := f.ledger.ListSymbols(f.ctx)
	require.NoError(t, err)
	require.Len(t, symbols, 2)
	assert.Equal(t, "ABC", symbols[0].Symbol().Code)
}

// Random issue/transfer/retire sequences must keep Σ balances == supply and
// never drive a balance negative, whether each call succeeds or not.
func TestLedger_SupplyConservation(t *testing.T) {
	f := newFixture(t)
	accounts := []domain.Name{"alice", "bob", "carol", "dave"}
	for _, a := range accounts {
		f.customer(t, a, domain.RolePersonal)
	}
	f.symbol(t, "alice", "10000 TOK")

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		qty := domain.NewAsset(int64(rng.Intn(200)+1), domain.Symbol{Code: "TOK"})
		var err error
		switch rng.Intn(3) {
		case 0:
			err = f.ledger.Issue(f.ctx, as("alice"), accounts[rng.Intn(len(accounts))], qty, "")
		case 1:
			from := accounts[rng.Intn(len(accounts))]
			to := accounts[rng.Intn(len(accounts))]
			err = f.ledger.Transfer(f.ctx, as(from), from, to, qty, "")
		default:
			err = f.ledger.Retire(f.ctx, as("alice"), qty, "")
		}
		if err != nil {
			require.NotEqual(t, domain.KindInternal, domain.KindOf(err), "unexpected error: %v", err)
		}

		var sum int64
		for _, a := range accounts {
			bal, err := f.ledger.GetBalance(f.ctx, a, "TOK")
			if errors.Is(err, domain.ErrBalanceNotFound) {
				continue
			}
			require.NoError(t, err)
			require.GreaterOrEqual(t, bal.Balance.Amount, int64(0))
			sum += bal.Balance.Amount
		}
		require.Equal(t, f.supply(t, "TOK"), sum, "step %d", i)
	}
	f.requireBalanced(t)
}
