package worker

import (
	"context"
	"time"

	"github.com/ayo6706/token-ledger/internal/observability"
	"github.com/ayo6706/token-ledger/internal/service"
	"go.uber.org/zap"
)

const defaultReconciliationInterval = time.Hour

// Reconciler checks that every symbol's balances add up to its supply.
type Reconciler interface {
	Run(ctx context.Context) ([]service.Imbalance, error)
}

// ReconciliationWorker checks supply conservation once at startup and then
// on every tick.
type ReconciliationWorker struct {
	*loop
	svc Reconciler
}

func NewReconciliationWorker(svc Reconciler) *ReconciliationWorker {
	w := &ReconciliationWorker{svc: svc}
	w.loop = newLoop("reconciliation", defaultReconciliationInterval, true, func(ctx context.Context) {
		w.RunOnce(ctx)
	})
	return w
}

func (w *ReconciliationWorker) WithInterval(interval time.Duration) *ReconciliationWorker {
	w.setInterval(interval)
	return w
}

// RunOnce performs one check and returns how many symbols were out of
// balance. The service logs each imbalance itself.
func (w *ReconciliationWorker) RunOnce(ctx context.Context) int {
	imbalances, err := w.svc.Run(ctx)
	switch {
	case err != nil:
		observability.IncrementWorkerRun("reconciliation", "failed")
		zap.L().Error("reconciliation run failed", zap.Error(err))
		return 0
	case len(imbalances) > 0:
		observability.IncrementWorkerRun("reconciliation", "imbalanced")
	default:
		observability.IncrementWorkerRun("reconciliation", "success")
	}
	return len(imbalances)
}
