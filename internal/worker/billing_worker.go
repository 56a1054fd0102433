package worker

import (
	"context"
	"fmt"

	"github.com/ayo6706/token-ledger/internal/observability"
	"github.com/ayo6706/token-ledger/internal/service"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const sweepMemo = "billing|sweep"

// Biller charges every agreement whose next period has elapsed.
type Biller interface {
	ChargeDue(ctx context.Context, memo string) (service.SweepResult, error)
}

// BillingWorker runs the charge sweep on a cron schedule. A sweep that is
// still running when the next tick fires is skipped, not queued.
type BillingWorker struct {
	svc      Biller
	schedule string
}

func NewBillingWorker(svc Biller, schedule string) *BillingWorker {
	return &BillingWorker{svc: svc, schedule: schedule}
}

// Run registers the sweep and starts the scheduler. The returned stop
// function waits for an in-flight sweep to finish.
func (w *BillingWorker) Run(ctx context.Context) (func(), error) {
	logger := cronLogger{s: zap.L().Sugar()}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(w.schedule, func() { _, _ = w.RunOnce(ctx) }); err != nil {
		return nil, fmt.Errorf("schedule billing sweep %q: %w", w.schedule, err)
	}
	c.Start()
	zap.L().Info("billing worker started", zap.String("schedule", w.schedule))

	return func() {
		<-c.Stop().Done()
		zap.L().Info("billing worker stopped")
	}, nil
}

// RunOnce performs a single sweep.
func (w *BillingWorker) RunOnce(ctx context.Context) (service.SweepResult, error) {
	res, err := w.svc.ChargeDue(ctx, sweepMemo)
	observability.SetBillingSweepCharged(res.Charged)
	switch {
	case err != nil:
		observability.IncrementWorkerRun("billing", "failed")
		zap.L().Error("billing sweep aborted", zap.Error(err), zap.Int("charged", res.Charged))
	case res.Failed > 0:
		observability.IncrementWorkerRun("billing", "partial")
	default:
		observability.IncrementWorkerRun("billing", "success")
	}
	zap.L().Info("billing sweep finished",
		zap.Int("due", res.Due),
		zap.Int("charged", res.Charged),
		zap.Int("failed", res.Failed))
	return res, err
}

// cronLogger routes scheduler chatter through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
