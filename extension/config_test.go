package extension

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{SweepInterval: time.Minute})

	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, time.Hour, cfg.ReconcileInterval)
	assert.Equal(t, 100, cfg.SweepBatchSize)
	assert.Equal(t, 10, cfg.MaxValidationAttempts)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
}

func TestMergeConfigurations(t *testing.T) {
	yaml := Config{SweepInterval: 2 * time.Minute}
	prog := Config{
		SweepInterval:  time.Minute,
		OrphanAge:      time.Hour,
		DisableMigrate: true,
		RedisURL:       "redis://cache:6379/1",
	}

	cfg := mergeConfigurations(yaml, prog)

	assert.Equal(t, 2*time.Minute, cfg.SweepInterval, "file wins")
	assert.Equal(t, time.Hour, cfg.OrphanAge, "programmatic fills gaps")
	assert.True(t, cfg.DisableMigrate)
	assert.Equal(t, "redis://cache:6379/1", cfg.RedisURL)
}

func TestEnvironmentOverridesConfig(t *testing.T) {
	t.Setenv("TRIALPAY_MAX_VALIDATION_ATTEMPTS", "3")
	t.Setenv("TRIALPAY_VALIDATION_WINDOW", "30m")

	cfg := Config{MaxValidationAttempts: 20, SweepBatchSize: 50}
	require.NoError(t, env.Parse(&cfg))

	assert.Equal(t, 3, cfg.MaxValidationAttempts)
	assert.Equal(t, 30*time.Minute, cfg.ValidationWindow)
	assert.Equal(t, 50, cfg.SweepBatchSize, "unset variables keep their value")
}
