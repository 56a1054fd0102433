package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/token-ledger/internal/clock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrNotFound     = errors.New("idempotency key not found")
	ErrHashMismatch = errors.New("idempotency key reused with a different request")
	ErrInProgress   = errors.New("idempotency key in progress")
)

const (
	redisKeyPrefix = "ledger:idempotency:"
	firstWait      = 25 * time.Millisecond
	maxWait        = 400 * time.Millisecond
)

// Record is a finished response kept for replay. ServedBy names the layer
// that answered and is never persisted.
type Record struct {
	Key         string `json:"key"`
	RequestHash string `json:"hash"`
	Status      int    `json:"status"`
	Body        []byte `json:"body"`
	ContentType string `json:"content_type"`
	ServedBy    string `json:"-"`
}

// Entry is a durable record plus its reservation state.
type Entry struct {
	Record
	InProgress bool
	CreatedAt  time.Time
}

// Backend is the durable side of the store. Reserve must be atomic: exactly
// one caller wins a fresh key. A finished entry created before staleBefore
// counts as free and is taken over; a zero staleBefore never takes over.
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) (Entry, error)
	Reserve(ctx context.Context, key, requestHash, method, path string, staleBefore time.Time) (bool, error)
	Finalize(ctx context.Context, key, requestHash string, status int, body []byte, contentType string) (Entry, error)
	Release(ctx context.Context, key, requestHash string) error
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// Store layers an optional Redis replay cache over a durable Backend.
// Reservations always go to the backend; Redis only shortcuts replays.
type Store struct {
	redis   redis.Cmdable
	backend Backend
	ttl     time.Duration
	clock   clock.Clock
}

func NewStore(redis redis.Cmdable, backend Backend, ttl time.Duration) *Store {
	return &Store{redis: redis, backend: backend, ttl: ttl, clock: clock.System()}
}

// WithClock replaces the clock used for expiry.
func (s *Store) WithClock(c clock.Clock) *Store {
	s.clock = c
	return s
}

// Lookup returns the finished record for key. ErrInProgress means another
// request holds the reservation; expired records read as ErrNotFound.
func (s *Store) Lookup(ctx context.Context, key, requestHash string) (*Record, error) {
	if rec, ok := s.cached(ctx, key); ok {
		if rec.RequestHash != requestHash {
			return nil, ErrHashMismatch
		}
		return rec, nil
	}

	entry, err := s.backend.Get(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	case s.expired(entry):
		return nil, ErrNotFound
	case entry.RequestHash != requestHash:
		return nil, ErrHashMismatch
	case entry.InProgress:
		return nil, ErrInProgress
	}
	return s.served(ctx, entry), nil
}

// Reserve claims key for this request. Keys whose finished record has
// outlived the TTL are claimable again before the janitor purges them.
func (s *Store) Reserve(ctx context.Context, key, requestHash, method, path string) (bool, error) {
	won, err := s.backend.Reserve(ctx, key, requestHash, method, path, s.staleBefore())
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if won {
		s.forget(ctx, key)
	}
	return won, nil
}

// Finalize stores the response for a reservation this caller holds.
func (s *Store) Finalize(ctx context.Context, key, requestHash string, status int, body []byte, contentType string) (*Record, error) {
	entry, err := s.backend.Finalize(ctx, key, requestHash, status, body, contentType)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finalize idempotency key: %w", err)
	}
	return s.served(ctx, entry), nil
}

// Release drops an in-progress reservation so the client may retry.
func (s *Store) Release(ctx context.Context, key, requestHash string) error {
	if err := s.backend.Release(ctx, key, requestHash); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// Purge removes durable records older than the store TTL. Redis entries
// expire on their own.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	n, err := s.backend.Purge(ctx, s.clock.Now().Add(-s.ttl))
	if err != nil {
		return 0, fmt.Errorf("purge idempotency keys: %w", err)
	}
	return n, nil
}

// WaitForCompletion polls with a growing interval until the holder of key
// finalizes or releases it, or ctx ends.
func (s *Store) WaitForCompletion(ctx context.Context, key, requestHash string) (*Record, error) {
	wait := firstWait
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		rec, err := s.Lookup(ctx, key, requestHash)
		if !errors.Is(err, ErrInProgress) {
			return rec, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
		if wait < maxWait {
			wait *= 2
		}
		timer.Reset(wait)
	}
}

func (s *Store) staleBefore() time.Time {
	if s.ttl <= 0 {
		return time.Time{}
	}
	return s.clock.Now().Add(-s.ttl)
}

func (s *Store) expired(e Entry) bool {
	if s.ttl <= 0 || e.InProgress || e.CreatedAt.IsZero() {
		return false
	}
	return s.clock.Now().Sub(e.CreatedAt) > s.ttl
}

func (s *Store) served(ctx context.Context, entry Entry) *Record {
	rec := entry.Record
	rec.ServedBy = s.backend.Name()
	s.remember(ctx, rec)
	return &rec
}

func (s *Store) cached(ctx context.Context, key string) (*Record, bool) {
	if s.redis == nil {
		return nil, false
	}
	raw, err := s.redis.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("idempotency cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		zap.L().Warn("idempotency cache entry unreadable", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	rec.ServedBy = "redis"
	return &rec, true
}

func (s *Store) remember(ctx context.Context, rec Record) {
	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		zap.L().Warn("idempotency cache encode failed", zap.String("key", rec.Key), zap.Error(err))
		return
	}
	if err := s.redis.Set(ctx, redisKey(rec.Key), payload, s.ttl).Err(); err != nil {
		zap.L().Warn("idempotency cache write failed", zap.String("key", rec.Key), zap.Error(err))
	}
}

// forget drops a cached replay left over from an expired record.
func (s *Store) forget(ctx context.Context, key string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, redisKey(key)).Err(); err != nil {
		zap.L().Warn("idempotency cache delete failed", zap.String("key", key), zap.Error(err))
	}
}

func redisKey(key string) string {
	return redisKeyPrefix + key
}
