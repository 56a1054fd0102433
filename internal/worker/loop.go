package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// loop calls job every interval until Stop is called or ctx ends. The
// ticker-driven workers embed it.
type loop struct {
	name     string
	interval time.Duration
	atStart  bool
	job      func(ctx context.Context)

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newLoop(name string, interval time.Duration, atStart bool, job func(ctx context.Context)) *loop {
	return &loop{
		name:     name,
		interval: interval,
		atStart:  atStart,
		job:      job,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (l *loop) setInterval(d time.Duration) {
	if d > 0 {
		l.interval = d
	}
}

// Start blocks until the loop is stopped.
func (l *loop) Start(ctx context.Context) {
	defer close(l.done)
	log := zap.L().With(zap.String("worker", l.name))
	log.Info("worker starting", zap.Duration("interval", l.interval))

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	if l.atStart {
		l.job(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			log.Info("worker context canceled")
			return
		case <-l.stopCh:
			log.Info("worker stopped")
			return
		case <-ticker.C:
			l.job(ctx)
		}
	}
}

// Stop is safe to call more than once and does not wait.
func (l *loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Run starts the loop in a goroutine. The returned func stops it and waits
// for an in-flight job to return.
func (l *loop) Run(ctx context.Context) func() {
	go l.Start(ctx)
	return func() {
		l.Stop()
		<-l.done
	}
}
