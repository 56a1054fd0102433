package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/token-ledger/internal/observability"
	"github.com/ayo6706/token-ledger/internal/repository"
	"go.uber.org/zap"
)

// Imbalance is a symbol whose balances do not add up to its supply.
type Imbalance struct {
	Symbol   string
	Supply   int64
	Balances int64
}

// ReconciliationService verifies ledger integrity invariants.
type ReconciliationService struct {
	store QueryStore
}

// NewReconciliationService creates a reconciliation service.
func NewReconciliationService(store QueryStore) *ReconciliationService {
	return &ReconciliationService{store: store}
}

// Run checks Σ balances == supply for every symbol and reports the offenders.
// Supplies and balance sums are read in one unit so a concurrent write cannot
// show up on one side only.
func (s *ReconciliationService) Run(ctx context.Context) ([]Imbalance, error) {
	var (
		checked    int
		imbalances []Imbalance
	)
	err := s.store.RunInTx(ctx, func(q repository.Queries) error {
		symbols, err := q.ListStats(ctx)
		if err != nil {
			return fmt.Errorf("list symbols: %w", err)
		}
		checked = len(symbols)
		imbalances = imbalances[:0]
		for _, st := range symbols {
			code := st.Symbol().Code
			sum, err := q.SumBalances(ctx, code)
			if err != nil {
				return fmt.Errorf("sum balances of %s: %w", code, err)
			}
			if sum != st.Supply.Amount {
				imbalances = append(imbalances, Imbalance{Symbol: code, Supply: st.Supply.Amount, Balances: sum})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, im := range imbalances {
		observability.IncrementSupplyImbalance(im.Symbol)
		zap.L().Error("CRITICAL: supply imbalance detected",
			zap.String("symbol", im.Symbol),
			zap.Int64("supply", im.Supply),
			zap.Int64("balances", im.Balances))
	}
	if len(imbalances) == 0 {
		zap.L().Info("Ledger Balanced", zap.Int("symbols", checked))
	}
	return imbalances, nil
}
