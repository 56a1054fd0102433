package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = time.Second

// HealthHandler serves liveness and readiness probes. A nil pool means the
// ledger runs on the in-memory store; a nil redis means no replay cache.
type HealthHandler struct {
	db    *pgxpool.Pool
	redis redis.Cmdable
}

func NewHealthHandler(db *pgxpool.Pool, redis redis.Cmdable) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

type readiness struct {
	Status string            `json:"status"`
	Store  string            `json:"store"`
	Checks map[string]string `json:"checks"`
}

func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready pings every configured dependency and reports each one, answering
// 503 with the same body when any fails.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	report := readiness{Status: "ready", Store: "memory", Checks: map[string]string{}}
	if h.db != nil {
		report.Store = "postgres"
		report.Checks["postgres"] = checkResult(h.db.Ping(ctx))
	}
	if h.redis != nil {
		report.Checks["redis"] = checkResult(h.redis.Ping(ctx).Err())
	}

	status := http.StatusOK
	for _, result := range report.Checks {
		if result != "ok" {
			report.Status = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}
	RespondJSON(w, status, report)
}

func checkResult(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}
