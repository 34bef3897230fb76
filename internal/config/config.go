package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Proxy    ProxyConfig    `mapstructure:"proxy"`
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// ProxyConfig holds the render-proxy API settings and the request policy the
// executor applies on top of it.
type ProxyConfig struct {
	BaseURL              string `mapstructure:"base_url"`
	APIKey               string `mapstructure:"api_key"`
	Render               bool   `mapstructure:"render"`
	TimeoutSeconds       int    `mapstructure:"timeout_seconds"`
	MaxConcurrent        int    `mapstructure:"max_concurrent"`
	MaxRequestsPerSecond int    `mapstructure:"max_requests_per_second"`
	MaxAttempts          int    `mapstructure:"max_attempts"`
	BackoffBaseMs        int    `mapstructure:"backoff_base_ms"`
	BackoffMaxMs         int    `mapstructure:"backoff_max_ms"`
	RateLimitFloorMs     int    `mapstructure:"rate_limit_floor_ms"`
	AntiBotBackoffMs     int    `mapstructure:"anti_bot_backoff_ms"`
	PacingMinMs          int    `mapstructure:"pacing_min_ms"`
	PacingMaxMs          int    `mapstructure:"pacing_max_ms"`
	CacheSize            int    `mapstructure:"cache_size"`
}

// ScrapeConfig holds the collection limits and fan-out widths for a run.
type ScrapeConfig struct {
	Query                string `mapstructure:"query"`
	Country              string `mapstructure:"country"`
	LocaleCookie         string `mapstructure:"locale_cookie"`
	MaxSuppliers         int    `mapstructure:"max_suppliers"`
	MaxProductsPerSeller int    `mapstructure:"max_products_per_seller"`
	Limit                int    `mapstructure:"limit"`
	SellerWorkers        int    `mapstructure:"seller_workers"`
	ProductWorkers       int    `mapstructure:"product_workers"`
	RunTimeoutSeconds    int    `mapstructure:"run_timeout_seconds"`
}

// DatabaseConfig holds the optional result-store connection details
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// RedisConfig holds the optional run-registry connection details
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	Database int    `mapstructure:"database"`
}

// ConfigurationError aborts a run before any request is issued.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (p ProxyConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

func (p ProxyConfig) BackoffBase() time.Duration {
	return time.Duration(p.BackoffBaseMs) * time.Millisecond
}

func (p ProxyConfig) BackoffMax() time.Duration {
	return time.Duration(p.BackoffMaxMs) * time.Millisecond
}

func (p ProxyConfig) RateLimitFloor() time.Duration {
	return time.Duration(p.RateLimitFloorMs) * time.Millisecond
}

func (p ProxyConfig) AntiBotBackoff() time.Duration {
	return time.Duration(p.AntiBotBackoffMs) * time.Millisecond
}

func (p ProxyConfig) PacingMin() time.Duration {
	return time.Duration(p.PacingMinMs) * time.Millisecond
}

func (p ProxyConfig) PacingMax() time.Duration {
	return time.Duration(p.PacingMaxMs) * time.Millisecond
}

// Load loads configuration from YAML file with environment variable overrides
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, fmt.Errorf("config.yaml file not found in current directory")
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate ensures all configuration values are coherent before the first
// request goes out.
func (c *Config) Validate() error {
	if c.Proxy.BaseURL == "" {
		return &ConfigurationError{Field: "proxy.base_url", Reason: "cannot be empty"}
	}
	if c.Proxy.APIKey == "" {
		return &ConfigurationError{Field: "proxy.api_key", Reason: "missing credential"}
	}
	if c.Proxy.MaxConcurrent <= 0 {
		return &ConfigurationError{Field: "proxy.max_concurrent", Reason: "must be positive"}
	}
	if c.Proxy.MaxAttempts <= 0 {
		return &ConfigurationError{Field: "proxy.max_attempts", Reason: "must be positive"}
	}
	if c.Proxy.BackoffBaseMs < 0 || c.Proxy.BackoffMaxMs < 0 {
		return &ConfigurationError{Field: "proxy.backoff", Reason: "cannot be negative"}
	}
	if c.Proxy.BackoffMaxMs > 0 && c.Proxy.BackoffBaseMs > c.Proxy.BackoffMaxMs {
		return &ConfigurationError{Field: "proxy.backoff_base_ms", Reason: "cannot exceed backoff_max_ms"}
	}
	if c.Proxy.PacingMinMs < 0 || c.Proxy.PacingMaxMs < c.Proxy.PacingMinMs {
		return &ConfigurationError{Field: "proxy.pacing", Reason: "range is inverted"}
	}
	if c.Scrape.MaxSuppliers <= 0 {
		return &ConfigurationError{Field: "scrape.max_suppliers", Reason: "must be positive"}
	}
	if c.Scrape.MaxProductsPerSeller <= 0 {
		return &ConfigurationError{Field: "scrape.max_products_per_seller", Reason: "must be positive"}
	}
	if c.Scrape.Limit <= 0 {
		return &ConfigurationError{Field: "scrape.limit", Reason: "must be positive"}
	}
	if c.Scrape.SellerWorkers <= 0 || c.Scrape.ProductWorkers <= 0 {
		return &ConfigurationError{Field: "scrape.workers", Reason: "must be positive"}
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("proxy.base_url", "https://api.scrapfly.io/scrape")
	viper.SetDefault("proxy.api_key", "")
	viper.SetDefault("proxy.render", true)
	viper.SetDefault("proxy.timeout_seconds", 60)
	viper.SetDefault("proxy.max_concurrent", 3)
	viper.SetDefault("proxy.max_requests_per_second", 2)
	viper.SetDefault("proxy.max_attempts", 3)
	viper.SetDefault("proxy.backoff_base_ms", 1000)
	viper.SetDefault("proxy.backoff_max_ms", 30000)
	viper.SetDefault("proxy.rate_limit_floor_ms", 5000)
	viper.SetDefault("proxy.anti_bot_backoff_ms", 60000)
	viper.SetDefault("proxy.pacing_min_ms", 250)
	viper.SetDefault("proxy.pacing_max_ms", 1500)
	viper.SetDefault("proxy.cache_size", 128)

	viper.SetDefault("scrape.query", "")
	viper.SetDefault("scrape.country", "AU")
	viper.SetDefault("scrape.locale_cookie", "")
	viper.SetDefault("scrape.max_suppliers", 5)
	viper.SetDefault("scrape.max_products_per_seller", 1)
	viper.SetDefault("scrape.limit", 20)
	viper.SetDefault("scrape.seller_workers", 3)
	viper.SetDefault("scrape.product_workers", 3)
	viper.SetDefault("scrape.run_timeout_seconds", 0)

	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "aliexpress")
	viper.SetDefault("database.user", "scraper_user")
	viper.SetDefault("database.password", "scraper_pass")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.database", 0)
}
