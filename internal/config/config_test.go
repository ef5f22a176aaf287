package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	os.Unsetenv("STORE_PATH")
	os.Unsetenv("RISK_THRESHOLD")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "./data/gpu-market-intel.db", cfg.Store.Path)
	assert.Equal(t, 5, cfg.Store.PoolSize)
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 100.0, cfg.Risk.Threshold)
	assert.Equal(t, 3.0, cfg.Risk.Weights["new release"])
	assert.Equal(t, 1.0, cfg.Risk.Weights["default"])
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromEnv_WithEnvVars(t *testing.T) {
	os.Setenv("STORE_PATH", "/tmp/custom.db")
	os.Setenv("RISK_THRESHOLD", "250")
	defer func() {
		os.Unsetenv("STORE_PATH")
		os.Unsetenv("RISK_THRESHOLD")
	}()

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/custom.db", cfg.Store.Path)
	assert.Equal(t, 250.0, cfg.Risk.Threshold)
}

func TestConfig_Validate_MissingStorePath(t *testing.T) {
	cfg := &Config{Retry: RetryConfig{MaxAttempts: 4}, Risk: RiskConfig{Threshold: 100}, Schedule: ScheduleConfig{PriceCrawl: "0 9 * * *", RedditCollection: "15 9 * * *"}}
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.path")
}

func TestConfig_Validate_NonPositivePoolSize(t *testing.T) {
	cfg := &Config{
		Store:    StoreConfig{Path: "./x.db", PoolSize: 0},
		Retry:    RetryConfig{MaxAttempts: 4},
		Risk:     RiskConfig{Threshold: 100},
		Schedule: ScheduleConfig{PriceCrawl: "0 9 * * *", RedditCollection: "15 9 * * *"},
	}
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.pool_size")
}

func TestConfig_Validate_BadCronExpression(t *testing.T) {
	cfg := &Config{
		Store:    StoreConfig{Path: "./x.db", PoolSize: 5},
		Retry:    RetryConfig{MaxAttempts: 4},
		Risk:     RiskConfig{Threshold: 100},
		Schedule: ScheduleConfig{PriceCrawl: "not a cron", RedditCollection: "15 9 * * *"},
	}
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "schedule.price_crawl")
}

func TestConfig_Validate_NonPositiveThreshold(t *testing.T) {
	cfg := &Config{
		Store:    StoreConfig{Path: "./x.db", PoolSize: 5},
		Retry:    RetryConfig{MaxAttempts: 4},
		Risk:     RiskConfig{Threshold: 0},
		Schedule: ScheduleConfig{PriceCrawl: "0 9 * * *", RedditCollection: "15 9 * * *"},
	}
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "risk.threshold")
}

func TestConfig_Validate_Success(t *testing.T) {
	cfg := &Config{
		Store:    StoreConfig{Path: "./x.db", PoolSize: 5},
		Retry:    RetryConfig{MaxAttempts: 4},
		Risk:     RiskConfig{Threshold: 100},
		Schedule: ScheduleConfig{PriceCrawl: "0 9 * * *", RedditCollection: "15 9 * * *"},
	}
	err := cfg.Validate()
	assert.NoError(t, err)
}
