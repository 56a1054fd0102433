package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"

	"github.com/ayo6706/token-ledger/internal/api/problem"
	"github.com/ayo6706/token-ledger/internal/idempotency"
	"github.com/ayo6706/token-ledger/internal/observability"
	"go.uber.org/zap"
)

const (
	idempotencyHeader = "Idempotency-Key"
	maxKeyLength      = 128
)

// IdempotencyMiddleware makes ledger writes safe to retry. Keys are scoped to
// the signing accounts, so two callers may reuse the same key without
// colliding. A 5xx answer releases the reservation rather than becoming the
// replayed answer. Reads pass straight through.
func IdempotencyMiddleware(store *idempotency.Store, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil || !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			g, ok := newGuard(w, r, store, logger)
			if !ok {
				return
			}
			if g.replayed() {
				return
			}

			rec := &bodyRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			g.settle(rec)
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// guard tracks one request's claim on a scoped key.
type guard struct {
	w         http.ResponseWriter
	r         *http.Request
	store     *idempotency.Store
	logger    *zap.Logger
	clientKey string
	key       string
	hash      string
}

// newGuard validates the header and buffers the body so the request hash
// covers it. On failure the problem response has already been written.
func newGuard(w http.ResponseWriter, r *http.Request, store *idempotency.Store, logger *zap.Logger) (*guard, bool) {
	clientKey := r.Header.Get(idempotencyHeader)
	switch {
	case clientKey == "":
		observability.IncrementIdempotencyEvent("missing_key")
		badRequest(w, r, "idempotency/missing-key", "Idempotency-Key header is required")
		return nil, false
	case len(clientKey) > maxKeyLength:
		observability.IncrementIdempotencyEvent("invalid_key")
		badRequest(w, r, "idempotency/invalid-key", "Idempotency-Key is too long")
		return nil, false
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		badRequest(w, r, "request/invalid-body", "failed to read request body")
		return nil, false
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	return &guard{
		w:         w,
		r:         r,
		store:     store,
		logger:    logger,
		clientKey: clientKey,
		key:       AccountFromContext(r.Context()) + "|" + clientKey,
		hash:      requestHash(r.Method, r.URL.Path, body),
	}, true
}

// replayed answers the request from a previous run when one exists, or
// reports a conflict. It returns false once this request owns the key.
func (g *guard) replayed() bool {
	ctx := g.r.Context()
	record, err := g.store.Lookup(ctx, g.key, g.hash)
	switch {
	case err == nil:
		g.replay("replay", record)
		return true
	case errors.Is(err, idempotency.ErrHashMismatch):
		observability.IncrementIdempotencyEvent("hash_mismatch")
		g.conflict("idempotency/key-conflict", "Idempotency-Key was used with a different request")
		return true
	case errors.Is(err, idempotency.ErrInProgress):
		return g.waitForOther()
	case !errors.Is(err, idempotency.ErrNotFound):
		observability.IncrementIdempotencyEvent("lookup_error")
		g.logger.Warn("idempotency lookup failed", zap.Error(err), zap.String("key", g.clientKey))
	}

	reserved, err := g.store.Reserve(ctx, g.key, g.hash, g.r.Method, g.r.URL.Path)
	if err != nil {
		observability.IncrementIdempotencyEvent("reserve_error")
		g.logger.Error("idempotency reserve failed", zap.Error(err), zap.String("key", g.clientKey))
		problem.Write(g.w, g.r, http.StatusServiceUnavailable, problem.Type("idempotency/unavailable"),
			http.StatusText(http.StatusServiceUnavailable), "idempotency store unavailable")
		return true
	}
	if !reserved {
		// Lost the race to a concurrent request with the same key.
		return g.waitForOther()
	}
	observability.IncrementIdempotencyEvent("reserved")
	return false
}

func (g *guard) waitForOther() bool {
	record, err := g.store.WaitForCompletion(g.r.Context(), g.key, g.hash)
	if err == nil {
		g.replay("replay_after_wait", record)
		return true
	}
	observability.IncrementIdempotencyEvent("in_progress_conflict")
	g.logger.Warn("idempotency wait failed", zap.Error(err), zap.String("key", g.clientKey))
	g.conflict("idempotency/in-progress", "a request with this Idempotency-Key is still being processed")
	return true
}

func (g *guard) settle(rec *bodyRecorder) {
	ctx := g.r.Context()
	status := rec.statusOrOK()
	if status >= http.StatusInternalServerError {
		observability.IncrementIdempotencyEvent("released")
		if err := g.store.Release(ctx, g.key, g.hash); err != nil {
			g.logger.Warn("idempotency release failed", zap.Error(err), zap.String("key", g.clientKey))
		}
		return
	}

	contentType := rec.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	if _, err := g.store.Finalize(ctx, g.key, g.hash, status, rec.body.Bytes(), contentType); err != nil {
		observability.IncrementIdempotencyEvent("finalize_error")
		g.logger.Warn("idempotency finalize failed", zap.Error(err), zap.String("key", g.clientKey))
		return
	}
	observability.IncrementIdempotencyEvent("finalized")
}

func (g *guard) replay(outcome string, record *idempotency.Record) {
	observability.IncrementIdempotencyEvent(outcome)
	g.w.Header().Set("Content-Type", record.ContentType)
	g.w.Header().Set("X-Idempotent-Replay", record.ServedBy)
	g.w.WriteHeader(record.Status)
	_, _ = g.w.Write(record.Body)
}

func (g *guard) conflict(problemType, detail string) {
	problem.Write(g.w, g.r, http.StatusConflict, problem.Type(problemType), http.StatusText(http.StatusConflict), detail)
}

func badRequest(w http.ResponseWriter, r *http.Request, problemType, detail string) {
	problem.Write(w, r, http.StatusBadRequest, problem.Type(problemType), http.StatusText(http.StatusBadRequest), detail)
}

func requestHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// bodyRecorder keeps a copy of the response for the replay cache.
type bodyRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (br *bodyRecorder) WriteHeader(code int) {
	if br.status == 0 {
		br.status = code
	}
	br.ResponseWriter.WriteHeader(code)
}

func (br *bodyRecorder) Write(b []byte) (int, error) {
	if br.status == 0 {
		br.status = http.StatusOK
	}
	br.body.Write(b)
	return br.ResponseWriter.Write(b)
}

func (br *bodyRecorder) statusOrOK() int {
	if br.status == 0 {
		return http.StatusOK
	}
	return br.status
}
