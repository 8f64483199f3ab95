package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := DefaultConfig()
	if *cfg != *want {
		t.Errorf("Load() = %+v, want %+v", cfg, want)
	}
	if !cfg.Local() {
		t.Error("Local() = false without an endpoint")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FEED_API_ENDPOINT", "https://example.com/api/recent_activity")
	t.Setenv("FEED_PAGE_SIZE", "50")
	t.Setenv("FEED_REFRESH_INTERVAL", "2m")
	t.Setenv("FEED_MAX_RETRIES", "5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIEndpoint != "https://example.com/api/recent_activity" || cfg.Local() {
		t.Errorf("APIEndpoint = %q", cfg.APIEndpoint)
	}
	if cfg.PageSize != 50 {
		t.Errorf("PageSize = %d, want 50", cfg.PageSize)
	}
	if cfg.RefreshInterval != 2*time.Minute {
		t.Errorf("RefreshInterval = %s, want 2m", cfg.RefreshInterval)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.MaxRetries)
	}
	if cfg.CacheTTL != 30*time.Second {
		t.Errorf("CacheTTL = %s, want default 30s", cfg.CacheTTL)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.yaml")
	content := "page_size: 10\ncache_ttl: 45s\nport: \"9090\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FEED_PORT", "7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PageSize != 10 || cfg.CacheTTL != 45*time.Second {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Port != "7070" {
		t.Errorf("Port = %q, env should override the file", cfg.Port)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() error = nil for a missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }, "max_retries"},
		{"page size too large", func(c *Config) { c.PageSize = 101 }, "page_size"},
		{"page size zero", func(c *Config) { c.PageSize = 0 }, "page_size"},
		{"sub-second refresh", func(c *Config) { c.RefreshInterval = 500 * time.Millisecond }, "refresh_interval"},
		{"zero ttl", func(c *Config) { c.CacheTTL = 0 }, "cache_ttl"},
		{"negative threshold", func(c *Config) { c.ScrollThreshold = -1 }, "scroll_threshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRejectsInvalidEnv(t *testing.T) {
	t.Setenv("FEED_PAGE_SIZE", "500")
	if _, err := Load(""); err == nil {
		t.Error("Load() error = nil for page_size 500")
	}
}
