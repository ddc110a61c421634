package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{"GATEWAY_TOKEN": "secret"}))
	require.NoError(t, err)

	assert.Equal(t, "5200", cfg.Port)
	assert.Equal(t, int64(500), cfg.DailyAdViewLimit)
	assert.Equal(t, 0.00001, cfg.CoinToUSDRate)
	assert.Equal(t, float64(5), cfg.ReferralCommissionPercent)
	assert.Equal(t, int64(25000), cfg.YoutubePromotionRewardCoins)
	assert.Equal(t, 25, cfg.StoreMaxRetries)
	assert.Equal(t, 5*time.Minute, cfg.ReconcileInterval)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Empty(t, cfg.AdminUIDs)
	assert.False(t, cfg.ReceiptsEnabled())
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"GATEWAY_TOKEN":       "secret",
		"ADMIN_UIDS":          " a1, a2 ,,",
		"DAILY_AD_VIEW_LIMIT": "3",
		"RECONCILE_INTERVAL":  "30s",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, cfg.AdminUIDs)
	assert.Equal(t, int64(3), cfg.DailyAdViewLimit)
	assert.Equal(t, 30*time.Second, cfg.ReconcileInterval)
}

func TestFromEnv_Errors(t *testing.T) {
	_, err := FromEnv(envMap(map[string]string{}))
	assert.ErrorContains(t, err, "GATEWAY_TOKEN")

	_, err = FromEnv(envMap(map[string]string{"GATEWAY_TOKEN": "x", "STORE_MAX_RETRIES": "many"}))
	assert.ErrorContains(t, err, "STORE_MAX_RETRIES")

	_, err = FromEnv(envMap(map[string]string{"GATEWAY_TOKEN": "x", "REFERRAL_COMMISSION_PERCENT": "150"}))
	assert.Error(t, err)
}
