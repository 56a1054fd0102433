package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/token-ledger/internal/clock"
	"github.com/ayo6706/token-ledger/internal/domain"
	"github.com/ayo6706/token-ledger/internal/models"
	"github.com/ayo6706/token-ledger/internal/notify"
	"github.com/ayo6706/token-ledger/internal/observability"
	"github.com/ayo6706/token-ledger/internal/repository"
	"go.uber.org/zap"
)

// LedgerService owns symbol stats and balances. Every mutation keeps
// Σ balances(S) == supply(S) and never leaves a negative balance.
type LedgerService struct {
	store     QueryStore
	notifier  notify.Notifier
	clock     clock.Clock
	authority domain.Name
}

func NewLedgerService(store QueryStore, notifier notify.Notifier, clk clock.Clock, authority domain.Name) *LedgerService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if clk == nil {
		clk = clock.System()
	}
	return &LedgerService{
		store:     store,
		notifier:  notifier,
		clock:     clk,
		authority: authority,
	}
}

// CreateSymbol registers maxSupply's symbol with zero supply.
func (s *LedgerService) CreateSymbol(ctx context.Context, auth domain.Authorization, issuer domain.Name, maxSupply domain.Asset) (models.Stats, error) {
	stats, err := s.createSymbol(ctx, auth, issuer, maxSupply)
	observability.ObserveLedgerOperation("create_symbol", err)
	return stats, err
}

func (s *LedgerService) createSymbol(ctx context.Context, auth domain.Authorization, issuer domain.Name, maxSupply domain.Asset) (models.Stats, error) {
	if err := auth.Require(issuer); err != nil {
		return models.Stats{}, err
	}
	if err := issuer.Validate(); err != nil {
		return models.Stats{}, err
	}
	if err := maxSupply.Symbol.Validate(); err != nil {
		return models.Stats{}, err
	}
	if !maxSupply.IsValid() {
		return models.Stats{}, domain.Validationf("invalid_supply", "invalid supply")
	}
	if maxSupply.Amount <= 0 {
		return models.Stats{}, domain.Validationf("invalid_supply", "max-supply must be positive")
	}

	stats := models.Stats{
		Supply:    domain.NewAsset(0, maxSupply.Symbol),
		MaxSupply: maxSupply,
		Issuer:    issuer,
	}
	err := s.store.RunInTx(ctx, func(q repository.Queries) error {
		if _, err := q.GetStats(ctx, maxSupply.Symbol.Code); err == nil {
			return domain.ErrSymbolExists
		} else if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("lookup stats: %w", err)
		}
		if err := q.InsertStats(ctx, stats); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return domain.ErrSymbolExists
			}
			return fmt.Errorf("insert stats: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Stats{}, err
	}

	zap.L().Info("symbol created", zap.String("symbol", maxSupply.Symbol.String()), zap.String("issuer", issuer.String()), zap.String("max_supply", maxSupply.String()))
	return stats, nil
}

// Issue mints qty into the issuer's balance and forwards it to `to` in the
// same unit when to is not the issuer.
func (s *LedgerService) Issue(ctx context.Context, auth domain.Authorization, to domain.Name, qty domain.Asset, memo string) error {
	now := clock.Seconds(s.clock.Now())
	err := runUnit(ctx, s.store, s.notifier, func(u *unit) error {
		return s.issueTx(ctx, u, auth, to, qty, memo, now)
	})
	observability.ObserveLedgerOperation("issue", err)
	if err == nil {
		zap.L().Info("tokens issued", zap.String("to", to.String()), zap.String("quantity", qty.String()))
	}
	return err
}

func (s *LedgerService) issueTx(ctx context.Context, u *unit, auth domain.Authorization, to domain.Name, qty domain.Asset, memo string, now time.Time) error {
	if err := qty.Symbol.Validate(); err != nil {
		return err
	}
	stats, err := s.loadStats(ctx, u.q, qty.Symbol.Code)
	if err != nil {
		return err
	}
	if err := auth.Require(stats.Issuer); err != nil {
		return err
	}

	if err := domain.ValidateMemo(memo); err != nil {
		return err
	}
	if err := to.Validate(); err != nil {
		return err
	}
	if err := checkQuantity(qty, stats); err != nil {
		return err
	}
	if qty.Amount > stats.Headroom() {
		return domain.ErrExceedsSupply
	}

	stats.Supply.Amount += qty.Amount
	if err := u.q.UpdateStats(ctx, stats); err != nil {
		return fmt.Errorf("update stats: %w", err)
	}
	if err := credit(ctx, u.q, stats.Issuer, qty); err != nil {
		return err
	}

	if to != stats.Issuer {
		return s.transferTx(ctx, u, stats.Issuer, to, qty, memo, now)
	}
	return nil
}

// Retire burns qty from the issuer's own balance.
func (s *LedgerService) Retire(ctx context.Context, auth domain.Authorization, qty domain.Asset, memo string) error {
	err := runUnit(ctx, s.store, s.notifier, func(u *unit) error {
		if err := qty.Symbol.Validate(); err != nil {
			return err
		}
		stats, err := s.loadStats(ctx, u.q, qty.Symbol.Code)
		if err != nil {
			return err
		}
		if err := auth.Require(stats.Issuer); err != nil {
			return err
		}
		if err := domain.ValidateMemo(memo); err != nil {
			return err
		}
		if err := checkQuantity(qty, stats); err != nil {
			return err
		}

		if err := debit(ctx, u.q, stats.Issuer, qty); err != nil {
			return err
		}
		stats.Supply.Amount -= qty.Amount
		if err := u.q.UpdateStats(ctx, stats); err != nil {
			return fmt.Errorf("update stats: %w", err)
		}
		return nil
	})
	observability.ObserveLedgerOperation("retire", err)
	if err == nil {
		zap.L().Info("tokens retired", zap.String("quantity", qty.String()))
	}
	return err
}

// Transfer moves qty from `from` to `to`.
func (s *LedgerService) Transfer(ctx context.Context, auth domain.Authorization, from, to domain.Name, qty domain.Asset, memo string) error {
	now := clock.Seconds(s.clock.Now())
	err := runUnit(ctx, s.store, s.notifier, func(u *unit) error {
		if from == to {
			return domain.ErrSelfTransfer
		}
		if err := auth.Require(from); err != nil {
			return err
		}
		return s.transferTx(ctx, u, from, to, qty, memo, now)
	})
	observability.ObserveLedgerOperation("transfer", err)
	return err
}

// transferTx is the transfer body shared by Transfer, Issue and agreement
// charges. The caller has already established authority for `from`.
func (s *LedgerService) transferTx(ctx context.Context, u *unit, from, to domain.Name, qty domain.Asset, memo string, now time.Time) error {
	if from == to {
		return domain.ErrSelfTransfer
	}
	if err := to.Validate(); err != nil {
		return err
	}
	exists, err := queryRegistry{q: u.q, authority: s.authority}.Exists(ctx, to)
	if err != nil {
		return err
	}
	if !exists {
		return domain.NotFoundf(domain.ErrAccountNotFound.Code, "to account %s does not exist", to)
	}
	if err := qty.Symbol.Validate(); err != nil {
		return err
	}
	stats, err := s.loadStats(ctx, u.q, qty.Symbol.Code)
	if err != nil {
		return err
	}
	if err := checkQuantity(qty, stats); err != nil {
		return err
	}
	if err := domain.ValidateMemo(memo); err != nil {
		return err
	}

	if err := debit(ctx, u.q, from, qty); err != nil {
		return err
	}
	if err := credit(ctx, u.q, to, qty); err != nil {
		return err
	}

	fields := map[string]string{"from": from.String(), "to": to.String(), "quantity": qty.String()}
	u.emit(
		notify.NewEvent(notify.EventTransfer, from, memo, now, fields),
		notify.NewEvent(notify.EventTransfer, to, memo, now, fields),
	)
	return nil
}

// Open creates a zero balance row for owner; payer proves the call.
func (s *LedgerService) Open(ctx context.Context, auth domain.Authorization, owner domain.Name, symbol domain.Symbol, payer domain.Name) error {
	err := s.store.RunInTx(ctx, func(q repository.Queries) error {
		if err := auth.Require(payer); err != nil {
			return err
		}
		if err := owner.Validate(); err != nil {
			return err
		}
		exists, err := queryRegistry{q: q, authority: s.authority}.Exists(ctx, owner)
		if err != nil {
			return err
		}
		if !exists {
			return domain.NotFoundf(domain.ErrAccountNotFound.Code, "owner account %s does not exist", owner)
		}
		if err := symbol.Validate(); err != nil {
			return err
		}
		stats, err := s.loadStats(ctx, q, symbol.Code)
		if err != nil {
			return err
		}
		if stats.Symbol() != symbol {
			return domain.ErrSymbolMismatch
		}

		if _, err := q.GetBalance(ctx, owner, symbol.Code); err == nil {
			return nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("lookup balance: %w", err)
		}
		if err := q.PutBalance(ctx, models.Balance{Owner: owner, Balance: domain.NewAsset(0, symbol)}); err != nil {
			return fmt.Errorf("open balance: %w", err)
		}
		return nil
	})
	observability.ObserveLedgerOperation("open", err)
	return err
}

// Close deletes owner's zero balance row.
func (s *LedgerService) Close(ctx context.Context, auth domain.Authorization, owner domain.Name, symbol domain.Symbol) error {
	err := s.store.RunInTx(ctx, func(q repository.Queries) error {
		if err := auth.Require(owner); err != nil {
			return err
		}
		bal, err := q.GetBalance(ctx, owner, symbol.Code)
		if err != nil {
			return notFound(err, domain.NotFoundf(domain.ErrBalanceNotFound.Code,
				"balance row already deleted or never existed, action won't have any effect"))
		}
		if bal.Balance.Amount != 0 {
			return domain.ErrBalanceNotZero
		}
		if err := q.DeleteBalance(ctx, owner, symbol.Code); err != nil {
			return fmt.Errorf("close balance: %w", err)
		}
		return nil
	})
	observability.ObserveLedgerOperation("close", err)
	return err
}

// GetSupply returns the stats record of a symbol code.
func (s *LedgerService) GetSupply(ctx context.Context, code string) (models.Stats, error) {
	return s.loadStats(ctx, s.store.Queries(), code)
}

// GetBalance returns owner's balance row in a symbol code.
func (s *LedgerService) GetBalance(ctx context.Context, owner domain.Name, code string) (models.Balance, error) {
	bal, err := s.store.Queries().GetBalance(ctx, owner, code)
	if err != nil {
		return models.Balance{}, notFound(err, domain.ErrBalanceNotFound)
	}
	return bal, nil
}

// ListBalances returns every balance row of owner ordered by symbol code.
func (s *LedgerService) ListBalances(ctx context.Context, owner domain.Name) ([]models.Balance, error) {
	return s.store.Queries().ListBalances(ctx, owner)
}

// ListSymbols returns every registered symbol ordered by code.
func (s *LedgerService) ListSymbols(ctx context.Context) ([]models.Stats, error) {
	return s.store.Queries().ListStats(ctx)
}

func (s *LedgerService) loadStats(ctx context.Context, q repository.Queries, code string) (models.Stats, error) {
	stats, err := q.GetStats(ctx, code)
	if err != nil {
		return models.Stats{}, notFound(err, domain.ErrSymbolNotFound)
	}
	return stats, nil
}

func checkQuantity(qty domain.Asset, stats models.Stats) error {
	if !qty.IsValid() {
		return domain.Validationf(domain.ErrNonPositive.Code, "invalid quantity")
	}
	if qty.Amount <= 0 {
		return domain.ErrNonPositive
	}
	if qty.Symbol != stats.Symbol() {
		return domain.ErrSymbolMismatch
	}
	return nil
}

func credit(ctx context.Context, q repository.Queries, owner domain.Name, qty domain.Asset) error {
	bal, err := q.GetBalance(ctx, owner, qty.Symbol.Code)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		bal = models.Balance{Owner: owner, Balance: domain.NewAsset(0, qty.Symbol)}
	case err != nil:
		return fmt.Errorf("lookup balance: %w", err)
	}
	bal.Balance.Amount += qty.Amount
	if err := q.PutBalance(ctx, bal); err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	return nil
}

func debit(ctx context.Context, q repository.Queries, owner domain.Name, qty domain.Asset) error {
	bal, err := q.GetBalance(ctx, owner, qty.Symbol.Code)
	if err != nil {
		return notFound(err, domain.ErrBalanceNotFound)
	}
	if bal.Balance.Amount < qty.Amount {
		return domain.Statef(domain.ErrInsufficientFunds.Code, "overdrawn balance for %s", owner)
	}
	bal.Balance.Amount -= qty.Amount
	if err := q.PutBalance(ctx, bal); err != nil {
		return fmt.Errorf("debit balance: %w", err)
	}
	return nil
}
