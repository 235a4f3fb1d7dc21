// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

const (
	defaultCodeTTL        = 10 * time.Minute
	defaultAccessTokenTTL = time.Hour
	defaultPendingTTL     = 10 * time.Minute
	defaultSweepInterval  = 10 * time.Minute
)

// Config holds the settings for the embedded authorization server.
type Config struct {
	// Issuer is the externally visible base URL of this server, used in
	// discovery metadata and as the base for the upstream callback.
	Issuer string

	// CodeTTL is the lifetime of issued authorization codes.
	CodeTTL time.Duration

	// AccessTokenTTL is the lifetime of issued access tokens.
	AccessTokenTTL time.Duration

	// PendingTTL is how long a pending authorization waits for the
	// upstream callback before it is discarded.
	PendingTTL time.Duration

	// SweepInterval is how often expired grants are swept from storage.
	SweepInterval time.Duration
}

// Validate checks the config and applies defaults for unset durations.
func (c *Config) Validate() error {
	if c.Issuer == "" {
		return errors.New("issuer is required")
	}
	u, err := url.Parse(c.Issuer)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid issuer URL: %q", c.Issuer)
	}

	if c.CodeTTL <= 0 {
		c.CodeTTL = defaultCodeTTL
	}
	if c.AccessTokenTTL <= 0 {
		c.AccessTokenTTL = defaultAccessTokenTTL
	}
	if c.PendingTTL <= 0 {
		c.PendingTTL = defaultPendingTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	return nil
}
