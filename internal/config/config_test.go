package config

import (
	"testing"
	"time"

	"github.com/ayo6706/token-ledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", secret)
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.True(t, cfg.UseMemoryStore())
	assert.Equal(t, domain.Name("bank"), cfg.AuthorityAccount)
	assert.Equal(t, time.Hour, cfg.ReconciliationInterval)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.False(t, cfg.BillingEnabled)
	assert.False(t, cfg.OverdraftAutoIssue)
	assert.Equal(t, int32(10), cfg.DBMaxConns)
	assert.Equal(t, 15*time.Minute, cfg.IdempotencyPurgeInterval)
}

func TestLoad_PrefixedAliases(t *testing.T) {
	t.Setenv("LEDGER_JWT_SECRET", secret)
	t.Setenv("LEDGER_PORT", "9090")
	t.Setenv("LEDGER_AUTHORITY_ACCOUNT", "treasury")
	t.Setenv("LEDGER_BILLING_ENABLED", "true")
	t.Setenv("LEDGER_BILLING_SCHEDULE", "0 3 * * *")
	t.Setenv("LEDGER_DATABASE_URL", "postgres://u:p@localhost:5432/ledger")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, domain.Name("treasury"), cfg.AuthorityAccount)
	assert.True(t, cfg.BillingEnabled)
	assert.Equal(t, "0 3 * * *", cfg.BillingSchedule)
	assert.False(t, cfg.UseMemoryStore())
}

func TestLoad_Rejections(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret": {"JWT_SECRET": ""},
		"short secret":   {"JWT_SECRET": "short"},
		"bad authority":  {"JWT_SECRET": secret, "AUTHORITY_ACCOUNT": "Bank!"},
		"bad ttl":        {"JWT_SECRET": secret, "IDEMPOTENCY_TTL": "forever"},
		"bad cron":       {"JWT_SECRET": secret, "BILLING_ENABLED": "true", "BILLING_SCHEDULE": "every day"},
		"bad reconcile":  {"JWT_SECRET": secret, "RECONCILIATION_INTERVAL": "1 hour"},
		"bad purge":      {"JWT_SECRET": secret, "IDEMPOTENCY_PURGE_INTERVAL": "often"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_ReportsEveryProblem(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")
	t.Setenv("AUTHORITY_ACCOUNT", "Bank!")
	t.Setenv("IDEMPOTENCY_TTL", "forever")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "AUTHORITY_ACCOUNT")
	assert.Contains(t, err.Error(), "IDEMPOTENCY_TTL")
}
