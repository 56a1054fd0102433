package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ayo6706/token-ledger/internal/idempotency"
	"github.com/ayo6706/token-ledger/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReconciler struct {
	imbalances []service.Imbalance
	err        error
	runs       int
}

func (f *fakeReconciler) Run(context.Context) ([]service.Imbalance, error) {
	f.runs++
	return f.imbalances, f.err
}

type fakeBiller struct {
	res  service.SweepResult
	err  error
	memo string
}

func (f *fakeBiller) ChargeDue(_ context.Context, memo string) (service.SweepResult, error) {
	f.memo = memo
	return f.res, f.err
}

func TestReconciliationWorker_RunOnce(t *testing.T) {
	ctx := context.Background()

	clean := &fakeReconciler{}
	assert.Equal(t, 0, NewReconciliationWorker(clean).RunOnce(ctx))

	dirty := &fakeReconciler{imbalances: []service.Imbalance{{Symbol: "TOK", Supply: 10, Balances: 9}}}
	assert.Equal(t, 1, NewReconciliationWorker(dirty).RunOnce(ctx))

	broken := &fakeReconciler{err: errors.New("db down")}
	assert.Equal(t, 0, NewReconciliationWorker(broken).RunOnce(ctx))
}

func TestReconciliationWorker_RunsAtStartupAndStops(t *testing.T) {
	rec := &fakeReconciler{}
	w := NewReconciliationWorker(rec).WithInterval(time.Hour)

	done := make(chan struct{})
	go func() {
		w.Start(context.Background())
		close(done)
	}()
	w.Stop()
	w.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestBillingWorker_RunOnce(t *testing.T) {
	b := &fakeBiller{res: service.SweepResult{Due: 3, Charged: 2, Failed: 1}}
	res, err := NewBillingWorker(b, "@daily").RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Charged)
	assert.Equal(t, sweepMemo, b.memo)
}

func TestBillingWorker_Schedule(t *testing.T) {
	_, err := NewBillingWorker(&fakeBiller{}, "not a schedule").Run(context.Background())
	assert.Error(t, err)

	stop, err := NewBillingWorker(&fakeBiller{}, "@hourly").Run(context.Background())
	require.NoError(t, err)
	stop()
}

func TestIdempotencyJanitor_ProcessOnce(t *testing.T) {
	ctx := context.Background()
	store := idempotency.NewStore(nil, idempotency.NewMemoryBackend(), time.Nanosecond)

	_, err := store.Reserve(ctx, "k", "h", "POST", "/v1/issue")
	require.NoError(t, err)
	_, err = store.Finalize(ctx, "k", "h", 201, nil, "application/json")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	n, err := NewIdempotencyJanitor(store).ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

type countingPurger struct {
	calls chan struct{}
}

func (p *countingPurger) Purge(context.Context) (int64, error) {
	select {
	case p.calls <- struct{}{}:
	default:
	}
	return 0, nil
}

func TestIdempotencyJanitor_PurgesOnTick(t *testing.T) {
	p := &countingPurger{calls: make(chan struct{}, 1)}
	stop := NewIdempotencyJanitor(p).WithPollInterval(10 * time.Millisecond).Run(context.Background())

	select {
	case <-p.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("janitor never purged")
	}
	stop()
}

func TestLoop_StopWaitsForJob(t *testing.T) {
	started := make(chan struct{})
	finished := false
	l := newLoop("test", time.Hour, true, func(context.Context) {
		close(started)
		time.Sleep(20 * time.Millisecond)
		finished = true
	})

	stop := l.Run(context.Background())
	<-started
	stop()
	assert.True(t, finished, "stop returns after the running job")
}
