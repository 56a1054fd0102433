package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ayo6706/token-ledger/internal/observability"
	"go.uber.org/zap"
)

const defaultPurgeInterval = 15 * time.Minute

// KeyPurger deletes idempotency records that outlived their TTL.
type KeyPurger interface {
	Purge(ctx context.Context) (int64, error)
}

// IdempotencyJanitor keeps the durable idempotency table bounded. Redis
// expires its copies on its own.
type IdempotencyJanitor struct {
	*loop
	store KeyPurger
}

func NewIdempotencyJanitor(store KeyPurger) *IdempotencyJanitor {
	w := &IdempotencyJanitor{store: store}
	w.loop = newLoop("idempotency_janitor", defaultPurgeInterval, false, func(ctx context.Context) {
		if _, err := w.ProcessOnce(ctx); err != nil {
			zap.L().Warn("idempotency purge failed", zap.Error(err))
		}
	})
	return w
}

func (w *IdempotencyJanitor) WithPollInterval(interval time.Duration) *IdempotencyJanitor {
	w.setInterval(interval)
	return w
}

// ProcessOnce purges immediately.
func (w *IdempotencyJanitor) ProcessOnce(ctx context.Context) (int64, error) {
	n, err := w.store.Purge(ctx)
	if err != nil {
		observability.IncrementWorkerRun("idempotency_janitor", "failed")
		return 0, err
	}
	observability.IncrementWorkerRun("idempotency_janitor", "success")
	if n > 0 {
		zap.L().Info("expired idempotency keys purged", zap.Int64("count", n))
	}
	return n, nil
}

func (w *IdempotencyJanitor) String() string {
	return fmt.Sprintf("IdempotencyJanitor(interval=%v)", w.interval)
}
