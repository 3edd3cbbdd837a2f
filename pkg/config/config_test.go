package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen.Address != "0.0.0.0:3030" {
		t.Errorf("Listen.Address = %q, want 0.0.0.0:3030", cfg.Listen.Address)
	}
	if cfg.Cache.TTL != 60*time.Second {
		t.Errorf("Cache.TTL = %s, want 60s", cfg.Cache.TTL)
	}
	if cfg.Cache.NegativeTTL != 5*time.Second {
		t.Errorf("Cache.NegativeTTL = %s, want 5s", cfg.Cache.NegativeTTL)
	}
	if cfg.Upstream.Timeout != 15*time.Second {
		t.Errorf("Upstream.Timeout = %s, want 15s", cfg.Upstream.Timeout)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfigFile(t, `
listen:
  address: 127.0.0.1:8080
  health_address: 127.0.0.1:8081
cache:
  ttl: 30s
  negative_ttl: 2s
upstream:
  api_url: https://api.example.test
  timeout: 5s
prefetch:
  enabled: true
  organization_id: org-1
  concurrency: 2
logging:
  level: debug
  pretty: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen.Address != "127.0.0.1:8080" {
		t.Errorf("Listen.Address = %q", cfg.Listen.Address)
	}
	if cfg.Listen.HealthAddress != "127.0.0.1:8081" {
		t.Errorf("Listen.HealthAddress = %q", cfg.Listen.HealthAddress)
	}
	if cfg.Cache.TTL != 30*time.Second {
		t.Errorf("Cache.TTL = %s, want 30s", cfg.Cache.TTL)
	}
	if cfg.Upstream.APIURL != "https://api.example.test" {
		t.Errorf("Upstream.APIURL = %q", cfg.Upstream.APIURL)
	}
	// Unset file fields keep their defaults.
	if cfg.Upstream.IdentityURL != "https://identity.bitwarden.com" {
		t.Errorf("Upstream.IdentityURL = %q, want default", cfg.Upstream.IdentityURL)
	}
	if !cfg.Prefetch.Enabled || cfg.Prefetch.Concurrency != 2 {
		t.Errorf("Prefetch = %+v", cfg.Prefetch)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Pretty {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvAccessToken, "0.mock-token")
	t.Setenv(EnvAPIURL, "http://localhost:4000")
	t.Setenv(EnvIdentityURL, "http://localhost:4001")
	t.Setenv(EnvStateFile, "/tmp/bws-state")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Upstream.AccessToken != "0.mock-token" {
		t.Errorf("AccessToken = %q", cfg.Upstream.AccessToken)
	}
	if cfg.Upstream.APIURL != "http://localhost:4000" {
		t.Errorf("APIURL = %q", cfg.Upstream.APIURL)
	}
	if cfg.Upstream.IdentityURL != "http://localhost:4001" {
		t.Errorf("IdentityURL = %q", cfg.Upstream.IdentityURL)
	}
	if cfg.Upstream.StateFile != "/tmp/bws-state" {
		t.Errorf("StateFile = %q", cfg.Upstream.StateFile)
	}
}

func TestLoad_TokenNeverReadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
upstream:
  access_token: leaked-from-file
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Upstream.AccessToken != "" {
		t.Errorf("AccessToken = %q, want empty (file tokens ignored)", cfg.Upstream.AccessToken)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeConfigFile(t, "listen: [not a mapping")
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "empty listen address",
			mutate:  func(c *Config) { c.Listen.Address = "" },
			wantErr: true,
		},
		{
			name: "health address equals listen address",
			mutate: func(c *Config) {
				c.Listen.HealthAddress = c.Listen.Address
			},
			wantErr: true,
		},
		{
			name:    "missing api url",
			mutate:  func(c *Config) { c.Upstream.APIURL = "" },
			wantErr: true,
		},
		{
			name:    "zero cache ttl",
			mutate:  func(c *Config) { c.Cache.TTL = 0 },
			wantErr: true,
		},
		{
			name: "negative ttl exceeds ttl",
			mutate: func(c *Config) {
				c.Cache.NegativeTTL = 2 * c.Cache.TTL
			},
			wantErr: true,
		},
		{
			name:    "zero upstream timeout",
			mutate:  func(c *Config) { c.Upstream.Timeout = 0 },
			wantErr: true,
		},
		{
			name: "prefetch enabled without organization",
			mutate: func(c *Config) {
				c.Prefetch.Enabled = true
			},
			wantErr: true,
		},
		{
			name:    "zero prefetch concurrency",
			mutate:  func(c *Config) { c.Prefetch.Concurrency = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
