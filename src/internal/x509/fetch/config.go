// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package fetch

import (
	"fmt"
	"time"
)

// Default limits applied by [NewHTTPConfig].
const (
	DefaultTimeout         = 10 * time.Second
	DefaultRetryMax        = 2
	DefaultMaxResponseSize = 10 << 20
)

// HTTPConfig holds HTTP client configuration for fetch operations.
type HTTPConfig struct {
	Timeout   time.Duration // per-attempt request timeout
	Version   string        // application version for User-Agent
	UserAgent string        // custom User-Agent; built from Version when empty

	RetryMax int // retries after the first attempt

	// RequestsPerSecond caps outgoing requests; zero disables throttling.
	RequestsPerSecond float64
	Burst             int

	MaxResponseSize int64 // bytes
	Debug           bool  // log every attempt made by the retrying client
}

// NewHTTPConfig creates a new HTTP configuration with default values.
//
// Parameters:
//   - version: Application version string
//
// Returns:
//   - *HTTPConfig: Configuration with a 10 second timeout, two retries, no
//     throttling and a 10 MiB body limit
func NewHTTPConfig(version string) *HTTPConfig {
	return &HTTPConfig{
		Timeout:         DefaultTimeout,
		Version:         version,
		RetryMax:        DefaultRetryMax,
		Burst:           1,
		MaxResponseSize: DefaultMaxResponseSize,
	}
}

// GetUserAgent returns the User-Agent string, constructing it if not set.
func (c *HTTPConfig) GetUserAgent() string {
	if c.UserAgent != "" {
		return c.UserAgent
	}
	return fmt.Sprintf("AdES-Chain-Validator/%s (+https://github.com/H0llyW00dzZ/ades-chain-validator)", c.Version)
}
