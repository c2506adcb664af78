package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := config.Load()

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 30, cfg.Server.ReadTimeout)
	require.Equal(t, 300, cfg.Server.WriteTimeout)

	require.Equal(t, int64(100), cfg.Billing.CreditsPerUSD)
	require.Equal(t, 1.5, cfg.Billing.MarkupFactor)
	require.False(t, cfg.Billing.StrictErrors)

	require.Equal(t, 1024, cfg.Admission.CompletionTokenCeiling)
	require.Equal(t, 0.01, cfg.Admission.FlatUSDPer1KTokens)
	require.Equal(t, 4, cfg.Admission.CharsPerToken)

	require.Empty(t, cfg.Redis.Addr)
	require.Equal(t, 30, cfg.Redis.BalanceTTLSeconds)
	require.Empty(t, cfg.Database.DSN)

	require.Contains(t, cfg.CORS.AllowedHeaders, "X-Billing-Account")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("BILLING_CREDITS_PER_USD", "1000")
	t.Setenv("BILLING_MARKUP_FACTOR", "2.0")
	t.Setenv("BILLING_STRICT_ERRORS", "true")
	t.Setenv("ADMISSION_COMPLETION_TOKEN_CEILING", "256")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("DATABASE_DSN", "postgres://localhost/hearth")

	cfg := config.Load()

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, int64(1000), cfg.Billing.CreditsPerUSD)
	require.Equal(t, 2.0, cfg.Billing.MarkupFactor)
	require.True(t, cfg.Billing.StrictErrors)
	require.Equal(t, 256, cfg.Admission.CompletionTokenCeiling)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, "postgres://localhost/hearth", cfg.Database.DSN)
}

func TestParseDependenciesConfig(t *testing.T) {
	cfg := config.Load()
	deps := config.ParseDependenciesConfig(cfg)

	require.Same(t, &cfg.Server, deps.ServerConfig)
	require.Same(t, &cfg.Billing, deps.BillingConfig)
	require.Same(t, &cfg.Admission, deps.AdmissionConfig)
}
