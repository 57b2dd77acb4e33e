package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	cfg := fromViper(v)

	assert.Equal(t, 8080, cfg.Port)
	assert.False(t, cfg.Redis.Enabled)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, []string{"MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY"}, cfg.Scheduler.Days)
	assert.Len(t, cfg.Scheduler.Periods, 8)
	assert.Equal(t, ProducerGreedy, cfg.Scheduler.PrimaryProducer)
	assert.Equal(t, "base", cfg.Scheduler.FallbackStrategy)
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.LockTTL)
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.CacheTTL)
	assert.Equal(t, 4096, cfg.Suggestion.MaxTokens)
	assert.InDelta(t, 0.1, cfg.Suggestion.Temperature, 1e-9)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SCHEDULER_PRIMARY_PRODUCER", "Suggestion")
	t.Setenv("SCHEDULER_DAYS", "MON, WED ,")
	t.Setenv("SCHEDULER_LOCK_WAIT", "not-a-duration")

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	cfg := fromViper(v)

	assert.Equal(t, ProducerSuggestion, cfg.Scheduler.PrimaryProducer)
	assert.Equal(t, []string{"MON", "WED"}, cfg.Scheduler.Days)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.LockWait)
}

func TestSplitAndTrim(t *testing.T) {
	assert.Nil(t, splitAndTrim(""))
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a ,, b "))
}
