// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads worklogd's runtime configuration from a YAML file
// and WORKLOGD_* environment variables.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full worklogd server configuration.
type Config struct {
	// Host and Port form the listen address.
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// Issuer is the external base URL of this server. It appears in
	// discovery metadata and upstream redirect URIs.
	Issuer string `mapstructure:"issuer"`

	// DatabasePath is the SQLite database file.
	DatabasePath string `mapstructure:"database_path"`

	// SessionTTL is how long an idle session survives.
	SessionTTL time.Duration `mapstructure:"session_ttl"`

	Auth     AuthConfig     `mapstructure:"auth"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
}

// AuthConfig tunes the embedded authorization server.
type AuthConfig struct {
	CodeTTL        time.Duration `mapstructure:"code_ttl"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	PendingTTL     time.Duration `mapstructure:"pending_ttl"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
}

// UpstreamConfig describes the identity provider users log in with.
type UpstreamConfig struct {
	// Type is "oidc" or "oauth2".
	Type string `mapstructure:"type"`

	// Issuer enables OIDC discovery. Required for type "oidc".
	Issuer string `mapstructure:"issuer"`

	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	Scopes       []string `mapstructure:"scopes"`

	// Explicit endpoints for type "oauth2", or OIDC overrides.
	AuthorizationEndpoint string `mapstructure:"authorization_endpoint"`
	TokenEndpoint         string `mapstructure:"token_endpoint"`
	UserinfoEndpoint      string `mapstructure:"userinfo_endpoint"`
}

// ListenAddress returns the host:port the server binds to.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("port", 4820)
	v.SetDefault("database_path", "worklogd.db")
	v.SetDefault("session_ttl", 30*time.Minute)
	v.SetDefault("auth.code_ttl", 10*time.Minute)
	v.SetDefault("auth.access_token_ttl", time.Hour)
	v.SetDefault("auth.pending_ttl", 10*time.Minute)
	v.SetDefault("auth.sweep_interval", 10*time.Minute)
	v.SetDefault("upstream.type", "oidc")
}

// Load reads configuration from the given YAML file (optional) and the
// environment, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("WORKLOGD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for missing or inconsistent fields.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}

	if c.Issuer == "" {
		c.Issuer = fmt.Sprintf("http://%s", c.ListenAddress())
	}
	issuer, err := url.Parse(c.Issuer)
	if err != nil || issuer.Scheme == "" || issuer.Host == "" {
		return fmt.Errorf("issuer must be an absolute URL, got %q", c.Issuer)
	}

	switch c.Upstream.Type {
	case "oidc":
		if c.Upstream.Issuer == "" {
			return fmt.Errorf("upstream.issuer is required for type oidc")
		}
	case "oauth2":
		if c.Upstream.AuthorizationEndpoint == "" || c.Upstream.TokenEndpoint == "" {
			return fmt.Errorf("upstream.authorization_endpoint and upstream.token_endpoint are required for type oauth2")
		}
	default:
		return fmt.Errorf("unsupported upstream type %q", c.Upstream.Type)
	}
	if c.Upstream.ClientID == "" {
		return fmt.Errorf("upstream.client_id is required")
	}
	return nil
}
