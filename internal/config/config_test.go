package config_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/market-shopper/internal/config"
	"github.com/noah-isme/market-shopper/internal/pricing"
	"github.com/noah-isme/market-shopper/internal/relay"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"SESSION_SECRET":       "test-secret",
		"REDIS_URL":            "",
		"QUOTE_RELAY_URL":      "",
		"PRICING_SERVICE_RATE": "",
		"PORT":                 "",
	})
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.False(t, cfg.UsesRedis())
	require.Equal(t, relay.DefaultEndpoint, cfg.QuoteRelayURL)
	require.Zero(t, cfg.RelayTimeout, "dispatched quotes wait for the relay unless a deadline is configured")

	s := cfg.PricingSchedule()
	require.Equal(t, pricing.DefaultBaseFee, s.BaseFee)
	require.True(t, s.ServiceRate.Equal(pricing.DefaultServiceRate))
	require.Equal(t, pricing.DefaultPriorityFee, s.PriorityFee(pricing.PriorityExpress))
}

func TestLoadPricingOverrides(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"SESSION_SECRET":       "test-secret",
		"PRICING_BASE_FEE":     "12000",
		"PRICING_SERVICE_RATE": "0.15",
		"PRICING_PRIORITY_FEE": "7000",
	})
	require.NoError(t, err)
	s := cfg.PricingSchedule()
	require.Equal(t, int64(12000), s.BaseFee)
	require.True(t, s.ServiceRate.Equal(decimal.RequireFromString("0.15")))
	require.Equal(t, int64(7000), s.PriorityFee(pricing.PriorityExpress))
	require.Equal(t, pricing.DefaultPriorityFee, pricing.DefaultSchedule().PriorityFee(pricing.PriorityExpress))
}

func TestLoadRequiresSessionSecret(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{"SESSION_SECRET": ""})
	require.Error(t, err)
}

func TestLoadRejectsBadRate(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{"SESSION_SECRET": "x", "PRICING_SERVICE_RATE": "1.5"})
	require.Error(t, err)
	_, err = config.LoadForTests(map[string]string{"SESSION_SECRET": "x", "PRICING_SERVICE_RATE": "ten"})
	require.Error(t, err)
}
