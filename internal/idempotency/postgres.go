package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgBackend struct {
	db *pgxpool.Pool
}

func NewPgBackend(db *pgxpool.Pool) *PgBackend {
	return &PgBackend{db: db}
}

func (p *PgBackend) Name() string { return "postgres" }

const entryColumns = `idempotency_key, request_hash, response_status, response_body, content_type, in_progress, created_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		e      Entry
		status int32
	)
	if err := row.Scan(&e.Key, &e.RequestHash, &status, &e.Body, &e.ContentType, &e.InProgress, &e.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	e.Status = int(status)
	return e, nil
}

func (p *PgBackend) Get(ctx context.Context, key string) (Entry, error) {
	return scanEntry(p.db.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM idempotency_keys WHERE idempotency_key = $1`, key))
}

// Reserve inserts the key, or takes over a finished row created before
// staleBefore. A NULL cutoff leaves existing rows alone.
func (p *PgBackend) Reserve(ctx context.Context, key, requestHash, method, path string, staleBefore time.Time) (bool, error) {
	var cutoff *time.Time
	if !staleBefore.IsZero() {
		cutoff = &staleBefore
	}
	var reserved string
	err := p.db.QueryRow(ctx, `
INSERT INTO idempotency_keys (idempotency_key, request_hash, method, path)
VALUES ($1, $2, $3, $4)
ON CONFLICT (idempotency_key) DO UPDATE
SET request_hash = EXCLUDED.request_hash,
    method = EXCLUDED.method,
    path = EXCLUDED.path,
    response_status = 0,
    response_body = ''::bytea,
    content_type = 'application/json',
    in_progress = TRUE,
    created_at = NOW(),
    updated_at = NOW()
WHERE NOT idempotency_keys.in_progress
  AND $5::timestamptz IS NOT NULL
  AND idempotency_keys.created_at < $5::timestamptz
RETURNING idempotency_key`, key, requestHash, method, path, cutoff).Scan(&reserved)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return false, err
}

func (p *PgBackend) Finalize(ctx context.Context, key, requestHash string, status int, body []byte, contentType string) (Entry, error) {
	return scanEntry(p.db.QueryRow(ctx, `
UPDATE idempotency_keys
SET response_status = $1, response_body = $2, content_type = $3, in_progress = FALSE, updated_at = NOW()
WHERE idempotency_key = $4 AND request_hash = $5
RETURNING `+entryColumns, int32(status), body, contentType, key, requestHash))
}

func (p *PgBackend) Release(ctx context.Context, key, requestHash string) error {
	_, err := p.db.Exec(ctx,
		`DELETE FROM idempotency_keys WHERE idempotency_key = $1 AND request_hash = $2 AND in_progress`,
		key, requestHash)
	return err
}

func (p *PgBackend) Purge(ctx context.Context, before time.Time) (int64, error) {
	tag, err := p.db.Exec(ctx,
		`DELETE FROM idempotency_keys WHERE NOT in_progress AND created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
