package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"REDIS_URL":    "redis://localhost:6379/0",
		"DATABASE_URL": "",
		"PORT":         "",
	})
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, 30*time.Minute, cfg.SessionIdleEvict)
	require.Equal(t, "10-M", cfg.CouponRateLimit)
	require.False(t, cfg.CouponsFromDatabase())
	require.Equal(t, 0.5, cfg.BreakerFailureRatio)
	require.True(t, cfg.MetricsEnabled)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"REDIS_URL":             "redis://cache:6379/1",
		"DATABASE_URL":          "postgres://shop@db/shop",
		"PORT":                  ":9090",
		"SESSION_IDLE_EVICT":    "5m",
		"SHIPPING_RATE_URL":     "http://rates.internal/quote",
		"SHIPPING_RATE_TIMEOUT": "750ms",
		"BREAKER_MIN_REQUESTS":  "12",
		"CORS_ALLOWED_ORIGINS":  "https://shop.example, https://admin.example ,",
		"OBS_ENABLE_PROMETHEUS": "off",
		"SESSION_TTL":           "not-a-duration",
	})
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.True(t, cfg.CouponsFromDatabase())
	require.Equal(t, 5*time.Minute, cfg.SessionIdleEvict)
	require.Equal(t, 750*time.Millisecond, cfg.ShippingRateTimeout)
	require.Equal(t, 12, cfg.BreakerMinRequests)
	require.Equal(t, []string{"https://shop.example", "https://admin.example"}, cfg.CORSAllowedOrigins)
	require.False(t, cfg.MetricsEnabled)
	require.Equal(t, 720*time.Hour, cfg.SessionTTL)
}

func TestLoadRequiresRedis(t *testing.T) {
	_, err := LoadForTests(map[string]string{"REDIS_URL": ""})
	require.ErrorContains(t, err, "REDIS_URL")
}

func TestLoadRejectsBadFailureRatio(t *testing.T) {
	_, err := LoadForTests(map[string]string{
		"REDIS_URL":             "redis://localhost:6379/0",
		"BREAKER_FAILURE_RATIO": "1.5",
	})
	require.Error(t, err)
}
