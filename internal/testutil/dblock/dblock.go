package dblock

import (
	"context"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ayo6706/token-ledger/internal/db"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	lockAddr    = "127.0.0.1:45432"
	lockTimeout = 2 * time.Minute
)

// Acquire serializes Postgres-backed test binaries on one machine. The lock
// is a TCP listener so it is released even when the process dies.
func Acquire(t testing.TB) {
	t.Helper()
	deadline := time.Now().Add(lockTimeout)
	for {
		ln, err := net.Listen("tcp", lockAddr)
		if err == nil {
			t.Cleanup(func() { _ = ln.Close() })
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("database lock %s still held after %s", lockAddr, lockTimeout)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// DatabaseURL returns DATABASE_URL or skips the test when it is unset.
func DatabaseURL(t testing.TB) string {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres test")
	}
	return url
}

// Pool locks the test database, applies migrations and empties the given
// tables. The pool is closed when the test ends.
func Pool(t testing.TB, tables ...string) *pgxpool.Pool {
	t.Helper()
	url := DatabaseURL(t)
	Acquire(t)

	if err := db.Migrate(url); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if len(tables) > 0 {
		stmt := "TRUNCATE TABLE " + strings.Join(tables, ", ") + " RESTART IDENTITY CASCADE"
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("truncate: %v", err)
		}
	}
	return pool
}
