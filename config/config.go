// Package config loads service settings from defaults, an optional YAML file
// and FEED_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name, e.g. FEED_PAGE_SIZE.
const EnvPrefix = "FEED"

// Config holds the tunables of the feed service.
type Config struct {
	APIEndpoint     string        `mapstructure:"api_endpoint"` // Empty runs the in-process demo backend
	Port            string        `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	RetryBaseDelay  time.Duration `mapstructure:"retry_base_delay"`
	HTTPTimeout     time.Duration `mapstructure:"http_timeout"`
	ScrollThreshold float64       `mapstructure:"scroll_threshold"`
	MaxRetries      int           `mapstructure:"max_retries"`
	PageSize        int           `mapstructure:"page_size"`
	DemoRecords     int           `mapstructure:"demo_records"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		Port:            "8080",
		LogLevel:        "info",
		RefreshInterval: 60 * time.Second,
		CacheTTL:        30 * time.Second,
		RetryBaseDelay:  time.Second,
		HTTPTimeout:     30 * time.Second,
		ScrollThreshold: 100,
		MaxRetries:      3,
		PageSize:        20,
		DemoRecords:     57,
	}
}

// Local reports whether no backend is configured and the demo backend should be used.
func (c *Config) Local() bool {
	return c.APIEndpoint == ""
}

// Validate rejects settings the feed cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("max_retries must be at least 1, got %d", c.MaxRetries))
	}
	if c.PageSize < 1 || c.PageSize > 100 {
		errs = append(errs, fmt.Errorf("page_size must be between 1 and 100, got %d", c.PageSize))
	}
	if c.RefreshInterval < time.Second {
		errs = append(errs, fmt.Errorf("refresh_interval must be at least 1s, got %s", c.RefreshInterval))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache_ttl must be positive, got %s", c.CacheTTL))
	}
	if c.RetryBaseDelay < 0 {
		errs = append(errs, fmt.Errorf("retry_base_delay must not be negative, got %s", c.RetryBaseDelay))
	}
	if c.ScrollThreshold < 0 {
		errs = append(errs, fmt.Errorf("scroll_threshold must not be negative, got %v", c.ScrollThreshold))
	}
	return errors.Join(errs...)
}

// Load reads the configuration. path names an optional YAML file; an empty
// path skips it. The file may also be given in FEED_CONFIG.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("config")
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can see it during Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("api_endpoint", d.APIEndpoint)
	v.SetDefault("port", d.Port)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("refresh_interval", d.RefreshInterval)
	v.SetDefault("cache_ttl", d.CacheTTL)
	v.SetDefault("retry_base_delay", d.RetryBaseDelay)
	v.SetDefault("http_timeout", d.HTTPTimeout)
	v.SetDefault("scroll_threshold", d.ScrollThreshold)
	v.SetDefault("max_retries", d.MaxRetries)
	v.SetDefault("page_size", d.PageSize)
	v.SetDefault("demo_records", d.DemoRecords)
	v.SetDefault("config", "")
}
