package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, 7, cfg.ToleranceDays)
	assert.Equal(t, 1.0, cfg.AmountTolerancePct)
	assert.Equal(t, 0.5, cfg.PartialRatio)
	assert.Equal(t, 4, cfg.QueueWorkers)
	assert.Equal(t, 30, cfg.ReqTimeoutSec)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("DATABASE_URL", "postgres://localhost/pouch")
	t.Setenv("RECONCILER_PARTIAL_RATIO", "0.25")
	t.Setenv("TRANSFER_IMMEDIATE_RETRIES", "5")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Port)
	assert.True(t, cfg.LogPretty)
	assert.Equal(t, "postgres://localhost/pouch", cfg.DatabaseURL)
	assert.Equal(t, 0.25, cfg.PartialRatio)
	assert.Equal(t, 5, cfg.TransferRetries)
}

func TestLoadIgnoresGarbage(t *testing.T) {
	t.Setenv("RECONCILER_TOLERANCE_DAYS", "a week")
	t.Setenv("LOG_PRETTY", "yes please")

	cfg := Load()

	assert.Equal(t, 7, cfg.ToleranceDays)
	assert.False(t, cfg.LogPretty)
}
