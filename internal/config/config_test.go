package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	require.Equal(t, ":8081", cfg.HTTPAddr)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 30*time.Minute, cfg.PaymentWindow)
	require.Equal(t, time.Minute, cfg.SweepInterval)
	require.Equal(t, "teashop-api", cfg.ServiceName)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092 ,")
	t.Setenv("PAYMENT_WINDOW", "10m")
	t.Setenv("SWEEP_INTERVAL", "nonsense")

	cfg := Load()
	require.Equal(t, ":9000", cfg.HTTPAddr)
	require.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 10*time.Minute, cfg.PaymentWindow)
	// Bad duration falls back to the default.
	require.Equal(t, time.Minute, cfg.SweepInterval)
}
