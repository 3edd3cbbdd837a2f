// Package config loads proxy configuration from an optional YAML file
// with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables honored as overrides. The token is intentionally
// env-only so it never has to live in a config file on disk.
const (
	EnvAccessToken = "BWS_ACCESS_TOKEN"
	EnvAPIURL      = "BWS_API_URL"
	EnvIdentityURL = "BWS_IDENTITY_URL"
	EnvStateFile   = "BWS_STATE_FILE"
)

// Config is the root configuration.
type Config struct {
	Listen   ListenConfig   `yaml:"listen"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Cache    CacheConfig    `yaml:"cache"`
	Prefetch PrefetchConfig `yaml:"prefetch"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ListenConfig holds the HTTP listener settings.
type ListenConfig struct {
	// Address is the main listener in host:port form.
	Address string `yaml:"address"`

	// HealthAddress, when set, starts a second listener that forwards
	// /_health to the main listener. Useful when health probes must hit a
	// different port than secret traffic.
	HealthAddress string `yaml:"health_address"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// UpstreamConfig holds the secrets backend settings.
type UpstreamConfig struct {
	APIURL      string `yaml:"api_url"`
	IdentityURL string `yaml:"identity_url"`

	// AccessToken is the machine-account token. Not read from YAML;
	// supply it via BWS_ACCESS_TOKEN.
	AccessToken string `yaml:"-"`

	// StateFile optionally persists SDK login state between restarts.
	StateFile string `yaml:"state_file"`

	// Timeout bounds every upstream call, including the fetch an owner
	// runs on behalf of all single-flight waiters.
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig holds the secret cache TTLs.
type CacheConfig struct {
	// TTL is the default freshness bound for cached values.
	TTL time.Duration `yaml:"ttl"`

	// NegativeTTL bounds how long a not-found result is remembered.
	NegativeTTL time.Duration `yaml:"negative_ttl"`
}

// PrefetchConfig controls the optional cache warm-up at startup.
type PrefetchConfig struct {
	Enabled bool `yaml:"enabled"`

	// OrganizationID is the organization whose secrets are warmed.
	OrganizationID string `yaml:"organization_id"`

	// Concurrency bounds the parallel warm-up fetches.
	Concurrency int `yaml:"concurrency"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Listen: ListenConfig{
			Address:         "0.0.0.0:3030",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Upstream: UpstreamConfig{
			APIURL:      "https://api.bitwarden.com",
			IdentityURL: "https://identity.bitwarden.com",
			Timeout:     15 * time.Second,
		},
		Cache: CacheConfig{
			TTL:         60 * time.Second,
			NegativeTTL: 5 * time.Second,
		},
		Prefetch: PrefetchConfig{
			Concurrency: 4,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the config file at path (when non-empty), applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAccessToken); v != "" {
		c.Upstream.AccessToken = v
	}
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.Upstream.APIURL = v
	}
	if v := os.Getenv(EnvIdentityURL); v != "" {
		c.Upstream.IdentityURL = v
	}
	if v := os.Getenv(EnvStateFile); v != "" {
		c.Upstream.StateFile = v
	}
}

// Validate reports configuration that cannot serve requests.
func (c *Config) Validate() error {
	if c.Listen.Address == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.Listen.HealthAddress == c.Listen.Address && c.Listen.HealthAddress != "" {
		return fmt.Errorf("health address must differ from the listen address")
	}
	if c.Upstream.APIURL == "" || c.Upstream.IdentityURL == "" {
		return fmt.Errorf("upstream api_url and identity_url are required")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive (got %s)", c.Cache.TTL)
	}
	if c.Cache.NegativeTTL <= 0 {
		return fmt.Errorf("cache negative_ttl must be positive (got %s)", c.Cache.NegativeTTL)
	}
	if c.Cache.NegativeTTL > c.Cache.TTL {
		return fmt.Errorf("cache negative_ttl must not exceed ttl")
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream timeout must be positive (got %s)", c.Upstream.Timeout)
	}
	if c.Prefetch.Enabled && c.Prefetch.OrganizationID == "" {
		return fmt.Errorf("prefetch requires an organization_id")
	}
	if c.Prefetch.Concurrency <= 0 {
		return fmt.Errorf("prefetch concurrency must be positive (got %d)", c.Prefetch.Concurrency)
	}
	return nil
}
