package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Collector   CollectorConfig `mapstructure:"collector"`
	Upstream    UpstreamConfig  `mapstructure:"upstream"`
	Cleanup     CleanupConfig   `mapstructure:"cleanup"`
	Backup      BackupConfig    `mapstructure:"backup"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CollectorConfig drives the market data collector: cache location,
// fan-out width, upstream pacing and retry behaviour.
type CollectorConfig struct {
	CacheDir           string        `mapstructure:"cache_dir"`
	MaxWorkers         int           `mapstructure:"max_workers"`
	MinRequestInterval time.Duration `mapstructure:"min_request_interval"`
	CacheExpireHours   int           `mapstructure:"cache_expire_hours"`
	DefaultInterval    string        `mapstructure:"default_interval"`
	DefaultPeriod      string        `mapstructure:"default_period"`
	RetryAttempts      int           `mapstructure:"retry_attempts"`
	RetryMinWait       time.Duration `mapstructure:"retry_min_wait"`
	RetryMaxWait       time.Duration `mapstructure:"retry_max_wait"`
}

type UpstreamConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

type CleanupConfig struct {
	RetentionDays   int `mapstructure:"retention_days"`
	IntervalMinutes int `mapstructure:"interval_minutes"`
}

type BackupConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Dir            string `mapstructure:"dir"`
	RetentionCount int    `mapstructure:"retention_count"`
	Compress       bool   `mapstructure:"compress"`
	IntervalHours  int    `mapstructure:"interval_hours"`
}

// CacheTTL returns the cache expiry as a duration.
func (c CollectorConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheExpireHours) * time.Hour
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c.Collector.MaxWorkers < 1 {
		return fmt.Errorf("collector.max_workers must be >= 1, got %d", c.Collector.MaxWorkers)
	}
	if c.Collector.RetryAttempts < 1 {
		return fmt.Errorf("collector.retry_attempts must be >= 1, got %d", c.Collector.RetryAttempts)
	}
	if c.Collector.RetryMinWait > c.Collector.RetryMaxWait {
		return fmt.Errorf("collector.retry_min_wait (%s) exceeds retry_max_wait (%s)",
			c.Collector.RetryMinWait, c.Collector.RetryMaxWait)
	}
	if c.Collector.CacheExpireHours < 0 {
		return fmt.Errorf("collector.cache_expire_hours must not be negative, got %d", c.Collector.CacheExpireHours)
	}
	if c.Backup.Enabled && c.Backup.RetentionCount < 1 {
		return fmt.Errorf("backup.retention_count must be >= 1, got %d", c.Backup.RetentionCount)
	}
	return nil
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server
	viper.SetDefault("server.port", 8080)

	// Collector
	viper.SetDefault("collector.cache_dir", "cache")
	viper.SetDefault("collector.max_workers", 5)
	viper.SetDefault("collector.min_request_interval", "100ms")
	viper.SetDefault("collector.cache_expire_hours", 1)
	viper.SetDefault("collector.default_interval", "1m")
	viper.SetDefault("collector.default_period", "1d")
	viper.SetDefault("collector.retry_attempts", 3)
	viper.SetDefault("collector.retry_min_wait", "4s")
	viper.SetDefault("collector.retry_max_wait", "10s")

	// Upstream provider
	viper.SetDefault("upstream.base_url", "https://query1.finance.yahoo.com")
	viper.SetDefault("upstream.timeout", "30s")
	viper.SetDefault("upstream.user_agent", "stockdata-collector/1.0")

	// Cleanup
	viper.SetDefault("cleanup.retention_days", 30)
	viper.SetDefault("cleanup.interval_minutes", 60)

	// Backup
	viper.SetDefault("backup.enabled", true)
	viper.SetDefault("backup.dir", "cache/backups")
	viper.SetDefault("backup.retention_count", 10)
	viper.SetDefault("backup.compress", false)
	viper.SetDefault("backup.interval_hours", 24)
}
