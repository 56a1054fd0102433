package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/token-ledger/internal/domain"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const (
	envPrefix       = "LEDGER_"
	minSecretLength = 32
)

// Config holds all runtime configuration derived from environment variables.
type Config struct {
	HTTPPort                 string
	DatabaseURL              string
	DBMaxConns               int32
	RunMigrations            bool
	RedisURL                 string
	JWTSecret                string
	JWTIssuer                string
	JWTAudience              string
	AuthorityAccount         domain.Name
	ReconciliationInterval   time.Duration
	BillingEnabled           bool
	BillingSchedule          string
	OverdraftAutoIssue       bool
	PublicRateLimitRPS       int
	AuthRateLimitRPS         int
	LogLevel                 string
	IdempotencyTTL           time.Duration
	IdempotencyPurgeInterval time.Duration
}

// defaults lists every key with its default. Each key is read from its
// upper-case env name or the same name with the LEDGER_ prefix.
var defaults = map[string]any{
	"port":                       "8080",
	"database_url":               "",
	"db_max_conns":               10,
	"run_migrations":             true,
	"redis_url":                  "",
	"jwt_secret":                 "",
	"jwt_issuer":                 "token-ledger",
	"jwt_audience":               "ledger-api",
	"authority_account":          "bank",
	"reconciliation_interval":    "1h",
	"billing_enabled":            false,
	"billing_schedule":           "@daily",
	"overdraft_auto_issue":       false,
	"public_rate_limit_rps":      10,
	"auth_rate_limit_rps":        100,
	"log_level":                  "info",
	"idempotency_ttl":            "24h",
	"idempotency_purge_interval": "15m",
}

// Load reads .env (when present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for key, def := range defaults {
		env := strings.ToUpper(key)
		_ = v.BindEnv(key, env, envPrefix+env)
		v.SetDefault(key, def)
	}

	var errs []error
	duration := func(key string) time.Duration {
		d, err := time.ParseDuration(strings.TrimSpace(v.GetString(key)))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", strings.ToUpper(key), err))
		}
		return d
	}

	cfg := &Config{
		HTTPPort:                 v.GetString("port"),
		DatabaseURL:              strings.TrimSpace(v.GetString("database_url")),
		DBMaxConns:               int32(v.GetInt("db_max_conns")),
		RunMigrations:            v.GetBool("run_migrations"),
		RedisURL:                 strings.TrimSpace(v.GetString("redis_url")),
		JWTSecret:                v.GetString("jwt_secret"),
		JWTIssuer:                strings.TrimSpace(v.GetString("jwt_issuer")),
		JWTAudience:              strings.TrimSpace(v.GetString("jwt_audience")),
		AuthorityAccount:         domain.Name(strings.TrimSpace(v.GetString("authority_account"))),
		ReconciliationInterval:   duration("reconciliation_interval"),
		BillingEnabled:           v.GetBool("billing_enabled"),
		BillingSchedule:          strings.TrimSpace(v.GetString("billing_schedule")),
		OverdraftAutoIssue:       v.GetBool("overdraft_auto_issue"),
		PublicRateLimitRPS:       max(v.GetInt("public_rate_limit_rps"), 1),
		AuthRateLimitRPS:         max(v.GetInt("auth_rate_limit_rps"), 1),
		LogLevel:                 v.GetString("log_level"),
		IdempotencyTTL:           duration("idempotency_ttl"),
		IdempotencyPurgeInterval: duration("idempotency_purge_interval"),
	}
	if cfg.DBMaxConns <= 0 {
		cfg.DBMaxConns = 10
	}

	if err := errors.Join(append(errs, cfg.validate()...)...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() []error {
	var errs []error
	switch {
	case strings.TrimSpace(c.JWTSecret) == "":
		errs = append(errs, errors.New("JWT_SECRET is required"))
	case len(c.JWTSecret) < minSecretLength:
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters", minSecretLength))
	}
	if c.JWTIssuer == "" {
		errs = append(errs, errors.New("JWT_ISSUER is required"))
	}
	if c.JWTAudience == "" {
		errs = append(errs, errors.New("JWT_AUDIENCE is required"))
	}
	if err := c.AuthorityAccount.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("invalid AUTHORITY_ACCOUNT: %w", err))
	}
	if c.BillingEnabled {
		if _, err := cron.ParseStandard(c.BillingSchedule); err != nil {
			errs = append(errs, fmt.Errorf("invalid BILLING_SCHEDULE: %w", err))
		}
	}
	return errs
}

// UseMemoryStore reports whether state lives in process memory.
func (c *Config) UseMemoryStore() bool {
	return c.DatabaseURL == ""
}
