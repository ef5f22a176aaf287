package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func parseCron(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}

// Config holds all application configuration
type Config struct {
	Store    StoreConfig    `mapstructure:"store"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// StoreConfig holds SQLite storage configuration
type StoreConfig struct {
	Path     string `mapstructure:"path"`
	PoolSize int    `mapstructure:"pool_size"`
}

// ScheduleConfig holds the cron expressions driving the two standing jobs.
type ScheduleConfig struct {
	PriceCrawl       string `mapstructure:"price_crawl"`
	RedditCollection string `mapstructure:"reddit_collection"`
}

// RetryConfig holds the backoff parameters wrapping every extractor I/O call.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// RiskConfig holds the risk-alert threshold and the sentiment keyword
// weight table. Weights carries a "default" entry for any keyword not
// otherwise listed, alongside the curated per-keyword overrides.
type RiskConfig struct {
	Threshold float64            `mapstructure:"threshold"`
	Weights   map[string]float64 `mapstructure:"weights"`
}

// BrowserConfig holds the headless-browser extractor's navigation timeout.
type BrowserConfig struct {
	NavigateTimeout time.Duration `mapstructure:"navigate_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "text"
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration primarily from environment variables
func LoadFromEnv() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.path", "./data/gpu-market-intel.db")
	v.SetDefault("store.pool_size", 5)

	// 09:00 and 09:15 in the process's local time zone by default (the
	// scheduler's cron runs on local time) — staggered so the two jobs don't
	// contend for the same outbound connections.
	v.SetDefault("schedule.price_crawl", "0 9 * * *")
	v.SetDefault("schedule.reddit_collection", "15 9 * * *")

	v.SetDefault("retry.max_attempts", 4)
	v.SetDefault("retry.base_delay", time.Second)
	v.SetDefault("retry.max_delay", 30*time.Second)

	v.SetDefault("risk.threshold", 100.0)
	v.SetDefault("risk.weights", map[string]float64{
		"new release": 3.0,
		"price drop":  2.0,
		"default":     1.0,
	})

	v.SetDefault("browser.navigate_timeout", 30*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func bindEnvVars(v *viper.Viper) {
	bindEnv := func(key string, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			slog.Warn("failed to bind environment variable",
				slog.String("key", key),
				slog.String("env_var", envVar),
				slog.String("error", err.Error()))
		}
	}

	bindEnv("store.path", "STORE_PATH")
	bindEnv("store.pool_size", "STORE_POOL_SIZE")
	bindEnv("schedule.price_crawl", "SCHEDULE_PRICE_CRAWL")
	bindEnv("schedule.reddit_collection", "SCHEDULE_REDDIT_COLLECTION")
	bindEnv("risk.threshold", "RISK_THRESHOLD")
	bindEnv("logging.level", "LOG_LEVEL")
	bindEnv("logging.format", "LOG_FORMAT")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Store.PoolSize < 1 {
		return fmt.Errorf("store.pool_size must be at least 1")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Risk.Threshold <= 0 {
		return fmt.Errorf("risk.threshold must be positive")
	}
	if _, err := parseCron(c.Schedule.PriceCrawl); err != nil {
		return fmt.Errorf("schedule.price_crawl: %w", err)
	}
	if _, err := parseCron(c.Schedule.RedditCollection); err != nil {
		return fmt.Errorf("schedule.reddit_collection: %w", err)
	}
	return nil
}
