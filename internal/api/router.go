package api

import (
	"net/http"

	"github.com/ayo6706/token-ledger/internal/api/handler"
	"github.com/ayo6706/token-ledger/internal/api/middleware"
	"github.com/ayo6706/token-ledger/internal/api/spec"
	"github.com/ayo6706/token-ledger/internal/config"
	"github.com/ayo6706/token-ledger/internal/idempotency"
	"github.com/ayo6706/token-ledger/internal/service"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

type Router struct {
	cfg        *config.Config
	logger     *zap.Logger
	db         *pgxpool.Pool
	redis      redis.Cmdable
	idem       *idempotency.Store
	ledger     *service.LedgerService
	customers  *service.CustomerService
	agreements *service.AgreementService
}

// NewRouter wires the HTTP surface. db and redis may be nil; readiness then
// skips those checks.
func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	db *pgxpool.Pool,
	idem *idempotency.Store,
	redis redis.Cmdable,
	ledger *service.LedgerService,
	customers *service.CustomerService,
	agreements *service.AgreementService,
) *Router {
	return &Router{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		redis:      redis,
		idem:       idem,
		ledger:     ledger,
		customers:  customers,
		agreements: agreements,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	health := handler.NewHealthHandler(api.db, api.redis)
	symbols := handler.NewSymbolHandler(api.ledger)
	ledger := handler.NewLedgerHandler(api.ledger)
	customers := handler.NewCustomerHandler(api.customers)
	agreements := handler.NewAgreementHandler(api.agreements)
	idempotent := middleware.IdempotencyMiddleware(api.idem, api.logger)
	verifier := middleware.NewTokenVerifier(api.cfg.JWTSecret, api.cfg.JWTIssuer, api.cfg.JWTAudience)

	// Ops
	r.Get("/health/live", health.Live)
	r.Get("/health/ready", health.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	// Public reads
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))

		r.Get("/v1/symbols", symbols.List)
		r.Get("/v1/symbols/{code}", symbols.Get)
		r.Get("/v1/accounts/{owner}/balances", ledger.ListBalances)
		r.Get("/v1/accounts/{owner}/balances/{code}", ledger.GetBalance)
		r.Get("/v1/customers/{account}", customers.Get)
		r.Get("/v1/agreements", agreements.List)
		r.Get("/v1/agreements/{payer}/{payee}/{service}", agreements.Get)
	})

	// Signed writes
	r.Group(func(r chi.Router) {
		r.Use(verifier.Middleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Post("/v1/symbols", symbols.Create)
		r.With(idempotent).Post("/v1/issue", ledger.Issue)
		r.With(idempotent).Post("/v1/retire", ledger.Retire)
		r.With(idempotent).Post("/v1/transfers", ledger.Transfer)
		r.Post("/v1/balances/open", ledger.Open)
		r.Post("/v1/balances/close", ledger.Close)

		r.Put("/v1/customers/{account}", customers.Upsert)
		r.Delete("/v1/customers/{account}", customers.Erase)

		r.Put("/v1/agreements", agreements.Upsert)
		r.Delete("/v1/agreements/{payer}/{payee}/{service}", agreements.Erase)
		r.With(idempotent).Post("/v1/agreements/{payer}/{payee}/{service}/charge", agreements.Charge)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handler.RespondError(w, r, http.StatusNotFound, "route/not-found", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		handler.RespondError(w, r, http.StatusMethodNotAllowed, "route/method-not-allowed", r.Method+" not allowed on "+r.URL.Path)
	})

	return r
}
