// Package ratelimit throttles inbound activity per caller. A single instance
// keeps token buckets in memory; when Redis is configured the count is shared
// across instances with a fixed window.
package ratelimit

import (
	"time"

	"feedback-bot/internal/common/errors"
)

// Config represents rate limiter configuration
type Config struct {
	Enabled           bool `json:"enabled"`
	RequestsPerSecond int  `json:"requests_per_second"`
	BurstSize         int  `json:"burst_size"`

	// Distributed backend settings
	KeyPrefix string        `json:"key_prefix,omitempty"`
	Window    time.Duration `json:"window,omitempty"`

	// Cleanup settings for local limiters
	MaxKeys       int           `json:"max_keys,omitempty"`
	CleanupPeriod time.Duration `json:"cleanup_period,omitempty"`
}

// Validate fills defaults and rejects impossible settings.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.RequestsPerSecond <= 0 {
		return errors.ValidationError("requests per second must be positive")
	}
	if c.BurstSize <= 0 {
		c.BurstSize = c.RequestsPerSecond
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "rate_limit"
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.MaxKeys <= 0 {
		c.MaxKeys = 10000
	}
	if c.CleanupPeriod <= 0 {
		c.CleanupPeriod = 5 * time.Minute
	}
	return nil
}

// windowLimit is the number of hits the distributed backend allows per window.
func (c *Config) windowLimit() int {
	return int(float64(c.RequestsPerSecond)*c.Window.Seconds()) + c.BurstSize
}
