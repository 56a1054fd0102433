package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ayo6706/token-ledger/internal/api"
	"github.com/ayo6706/token-ledger/internal/clock"
	"github.com/ayo6706/token-ledger/internal/config"
	"github.com/ayo6706/token-ledger/internal/db"
	"github.com/ayo6706/token-ledger/internal/idempotency"
	"github.com/ayo6706/token-ledger/internal/notify"
	"github.com/ayo6706/token-ledger/internal/observability"
	"github.com/ayo6706/token-ledger/internal/repository"
	"github.com/ayo6706/token-ledger/internal/service"
	"github.com/ayo6706/token-ledger/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	shutdownGrace = 30 * time.Second
	redisDialWait = 2 * time.Second
)

// Run bootstraps the HTTP server and background workers, blocking until
// ctx is cancelled or the server fails.
func Run(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var (
		store       service.QueryStore
		pool        *pgxpool.Pool
		idemBackend idempotency.Backend
	)
	if cfg.UseMemoryStore() {
		logger.Warn("DATABASE_URL not set, ledger state lives in process memory")
		store = repository.NewMemoryStore()
		idemBackend = idempotency.NewMemoryBackend()
	} else {
		if cfg.RunMigrations {
			if err := db.Migrate(cfg.DatabaseURL); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}
		}
		pool, err = db.Connect(ctx, cfg.DatabaseURL, db.WithMaxConns(cfg.DBMaxConns))
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		store = repository.NewPgStore(pool)
		idemBackend = idempotency.NewPgBackend(pool)
	}

	// A nil *redis.Client must not leak into the Cmdable interface.
	var cache redis.Cmdable
	notifier := notify.Multi{notify.LogNotifier{}}
	if cfg.RedisURL != "" {
		redisClient, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		cache = redisClient
		notifier = append(notifier, notify.NewRedisPublisher(redisClient))
	}

	clk := clock.System()
	ledger := service.NewLedgerService(store, notifier, clk, cfg.AuthorityAccount)
	customers := service.NewCustomerService(store, ledger, notifier, clk, cfg.AuthorityAccount).
		WithOverdraftAutoIssue(cfg.OverdraftAutoIssue)
	agreements := service.NewAgreementService(store, ledger, notifier, clk, cfg.AuthorityAccount)
	idemStore := idempotency.NewStore(cache, idemBackend, cfg.IdempotencyTTL)

	stopReconciliation := worker.NewReconciliationWorker(service.NewReconciliationService(store)).
		WithInterval(cfg.ReconciliationInterval).
		Run(ctx)
	stopJanitor := worker.NewIdempotencyJanitor(idemStore).
		WithPollInterval(cfg.IdempotencyPurgeInterval).
		Run(ctx)

	stopBilling := func() {}
	if cfg.BillingEnabled {
		stopBilling, err = worker.NewBillingWorker(agreements, cfg.BillingSchedule).Run(ctx)
		if err != nil {
			return fmt.Errorf("start billing worker: %w", err)
		}
	}

	router := api.NewRouter(cfg, logger, pool, idemStore, cache, ledger, customers, agreements)

	logger.Info("http server starting",
		zap.String("port", cfg.HTTPPort),
		zap.String("authority", cfg.AuthorityAccount.String()),
		zap.Bool("memory_store", cfg.UseMemoryStore()),
		zap.Bool("billing", cfg.BillingEnabled))
	serveErr := serve(ctx, &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}, logger)

	// Workers stop after the listener so in-flight charges finish first.
	logger.Info("stopping workers")
	stopBilling()
	stopJanitor()
	stopReconciliation()

	if serveErr != nil {
		return serveErr
	}
	logger.Info("shutdown complete")
	return nil
}

// serve runs srv until ctx ends, then drains it within shutdownGrace.
func serve(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	listenErr := make(chan error, 1)
	go func() { listenErr <- srv.ListenAndServe() }()

	select {
	case err := <-listenErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		logger.Info("shutdown requested")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl > zapcore.ErrorLevel {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.InitialFields = map[string]interface{}{"service": "token-ledger"}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), redisDialWait)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
