package clock

import (
	"sync"
	"time"
)

// Clock supplies the wall-clock reading a ledger call is evaluated against.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// System returns the process wall clock.
func System() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Fake is a manually driven clock for tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

func NewFake(now time.Time) *Fake {
	return &Fake{now: now.UTC()}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t.UTC()
	f.mu.Unlock()
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Seconds truncates a reading to whole seconds, the ledger's time resolution.
func Seconds(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
