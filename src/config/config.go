// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvConfigFile names the environment variable consulted when no path is given.
const EnvConfigFile = "ADES_VALIDATOR_CONFIG"

// ErrInvalid wraps every validation failure returned by [Config.Validate].
var ErrInvalid = errors.New("config: invalid configuration")

// format is a supported configuration file format.
type format int

const (
	formatJSON format = iota
	formatYAML
)

// Config is the validator configuration.
type Config struct {
	HTTP       HTTP       `json:"http" yaml:"http"`
	Revocation Revocation `json:"revocation" yaml:"revocation"`
	AIA        AIA        `json:"aia" yaml:"aia"`
	Trust      Trust      `json:"trust" yaml:"trust"`
	Validation Validation `json:"validation" yaml:"validation"`
	Metrics    Metrics    `json:"metrics" yaml:"metrics"`
}

// HTTP configures the network loader.
type HTTP struct {
	Timeout           string  `json:"timeout" yaml:"timeout" validate:"required,duration"`
	UserAgent         string  `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
	RetryMax          int     `json:"retryMax" yaml:"retryMax" validate:"min=0,max=10"`
	RequestsPerSecond float64 `json:"requestsPerSecond" yaml:"requestsPerSecond" validate:"min=0"`
	Burst             int     `json:"burst" yaml:"burst" validate:"min=1"`
	MaxResponseBytes  int64   `json:"maxResponseBytes" yaml:"maxResponseBytes" validate:"min=1024"`
	Debug             bool    `json:"debug" yaml:"debug"`
}

// Revocation configures the online revocation sources and their cache.
type Revocation struct {
	OCSP              bool   `json:"ocsp" yaml:"ocsp"`
	CRL               bool   `json:"crl" yaml:"crl"`
	CacheSize         int    `json:"cacheSize" yaml:"cacheSize" validate:"min=0"`
	CacheCleanup      string `json:"cacheCleanup" yaml:"cacheCleanup" validate:"required,duration"`
	CacheMaxAge       string `json:"cacheMaxAge" yaml:"cacheMaxAge" validate:"required,duration"`
	ClimbSigners      bool   `json:"climbSigners" yaml:"climbSigners"`
	CrossCheckOffline bool   `json:"crossCheckOffline" yaml:"crossCheckOffline"`
}

// AIA toggles issuer download through the authority information access extension.
type AIA struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// Trust lists where trust anchors and adjunct intermediates come from.
type Trust struct {
	Files            []string `json:"files,omitempty" yaml:"files,omitempty" validate:"dive,file"`
	Intermediates    []string `json:"intermediates,omitempty" yaml:"intermediates,omitempty" validate:"dive,file"`
	KeyStore         string   `json:"keyStore,omitempty" yaml:"keyStore,omitempty" validate:"omitempty,file"`
	KeyStorePassword string   `json:"keyStorePassword,omitempty" yaml:"keyStorePassword,omitempty"`
	Directory        string   `json:"directory,omitempty" yaml:"directory,omitempty" validate:"omitempty,dir"`
	Watch            bool     `json:"watch" yaml:"watch"`
	BundleURL        string   `json:"bundleUrl,omitempty" yaml:"bundleUrl,omitempty" validate:"omitempty,url"`
}

// Validation configures the walk itself.
type Validation struct {
	Concurrency int  `json:"concurrency" yaml:"concurrency" validate:"min=1,max=64"`
	Offline     bool `json:"offline" yaml:"offline"`
	// Time is an RFC 3339 instant; empty means now.
	Time string `json:"time,omitempty" yaml:"time,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// Metrics configures the Prometheus recorder.
type Metrics struct {
	Namespace string `json:"namespace" yaml:"namespace" validate:"required,alphanum_underscore"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		HTTP: HTTP{
			Timeout:          "10s",
			RetryMax:         2,
			Burst:            1,
			MaxResponseBytes: 10 << 20,
		},
		Revocation: Revocation{
			OCSP:              true,
			CRL:               true,
			CacheSize:         100,
			CacheCleanup:      "1h",
			CacheMaxAge:       "24h",
			ClimbSigners:      true,
			CrossCheckOffline: true,
		},
		AIA:        AIA{Enabled: true},
		Validation: Validation{Concurrency: 4},
		Metrics:    Metrics{Namespace: "ades_validator"},
	}
}

// detectFormat picks the parser from the file extension, case-insensitively.
func detectFormat(path string) format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatJSON
	}
}

func unmarshal(data []byte, cfg *Config, f format) error {
	switch f {
	case formatYAML:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("config: parse YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("config: parse JSON: %w", err)
		}
	}
	return nil
}

// Load reads the configuration at path over the defaults and validates it.
//
// Parameters:
//   - path: .json, .yaml or .yml file; empty falls back to
//     ADES_VALIDATOR_CONFIG, and to the defaults when that is unset too
//
// Returns:
//   - *Config: Validated configuration
//   - error: Read, parse or validation failure
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := unmarshal(data, cfg, detectFormat(path)); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newValidator returns a validator with the custom tags used by [Config].
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d > 0
	})
	_ = v.RegisterValidation("alphanum_underscore", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		for _, r := range s {
			if r != '_' && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
				return false
			}
		}
		return s != ""
	})
	return v
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) {
			msgs := make([]string, 0, len(fields))
			for _, f := range fields {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", f.Namespace(), f.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// ValidationTime returns the configured validation instant, zero for now.
func (c *Config) ValidationTime() time.Time {
	if c.Validation.Time == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, c.Validation.Time)
	return t
}

// duration parses a field already checked by Validate.
func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
