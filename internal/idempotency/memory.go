package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/ayo6706/token-ledger/internal/clock"
)

// MemoryBackend keeps reservations in process memory. It backs single-node
// deployments that run without Postgres.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]Entry
	clock   clock.Clock
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]Entry), clock: clock.System()}
}

// WithClock replaces the clock stamped on new reservations.
func (m *MemoryBackend) WithClock(c clock.Clock) *MemoryBackend {
	m.clock = c
	return m
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Get(_ context.Context, key string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (m *MemoryBackend) Reserve(_ context.Context, key, requestHash, _, _ string, staleBefore time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && !stale(e, staleBefore) {
		return false, nil
	}
	m.entries[key] = Entry{
		Record:     Record{Key: key, RequestHash: requestHash},
		InProgress: true,
		CreatedAt:  m.clock.Now(),
	}
	return true, nil
}

func (m *MemoryBackend) Finalize(_ context.Context, key, requestHash string, status int, body []byte, contentType string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.RequestHash != requestHash {
		return Entry{}, ErrNotFound
	}
	e.Status = status
	e.Body = append([]byte(nil), body...)
	e.ContentType = contentType
	e.InProgress = false
	m.entries[key] = e
	return e, nil
}

func (m *MemoryBackend) Release(_ context.Context, key, requestHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && e.InProgress && e.RequestHash == requestHash {
		delete(m.entries, key)
	}
	return nil
}

func (m *MemoryBackend) Purge(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, e := range m.entries {
		if !e.InProgress && e.CreatedAt.Before(before) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

func stale(e Entry, before time.Time) bool {
	return !before.IsZero() && !e.InProgress && e.CreatedAt.Before(before)
}
