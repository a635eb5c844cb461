// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete gatewayz-core configuration.
type Config struct {
	Version string `toml:"version"`

	// Auth configures the shared credential-refresh coordinator.
	Auth AuthConfig `toml:"auth"`

	// Batch configures assistant-message batching and the durable outbox.
	Batch BatchConfig `toml:"batch"`

	// Pricing configures gateway unit conventions and display bounds.
	Pricing PricingConfig `toml:"pricing"`

	// Catalog configures the model-catalog client and its cache.
	Catalog CatalogConfig `toml:"catalog"`

	// History configures the chat-persistence client.
	History HistoryConfig `toml:"history"`

	// Stream configures the SSE completions client.
	Stream StreamConfig `toml:"stream"`
}

// AuthConfig contains credential-refresh configuration.
type AuthConfig struct {
	// RefreshTimeoutSecs bounds how long a stream waits on a credential
	// refresh before reporting failure.
	RefreshTimeoutSecs int `toml:"refresh_timeout_secs"`
}

// BatchConfig contains message batching configuration.
type BatchConfig struct {
	// WindowMs is the flush window in milliseconds, anchored at batch open.
	WindowMs int `toml:"window_ms"`
	// MaxSize flushes a batch immediately once it holds this many messages.
	MaxSize int `toml:"max_size"`
	// OutboxPath is the sqlite journal for crash-safe buffering.
	// Empty disables the journal.
	OutboxPath string `toml:"outbox_path"`
}

// PricingConfig contains price normalization configuration.
type PricingConfig struct {
	// PerMillionGateways lists gateways that already quote per million tokens.
	PerMillionGateways []string `toml:"per_million_gateways"`
	// PerBillionGateways lists gateways that quote per billion tokens.
	PerBillionGateways []string `toml:"per_billion_gateways"`
	// DisplayCap clamps normalized prices (USD per million tokens).
	DisplayCap float64 `toml:"display_cap"`
	// MismatchThreshold triggers the unit-mismatch diagnostic when a
	// per-token gateway produces a normalized price above it.
	MismatchThreshold float64 `toml:"mismatch_threshold"`
}

// CatalogConfig contains model catalog configuration.
type CatalogConfig struct {
	// BaseURL is the catalog API root.
	BaseURL string `toml:"base_url"`
	// CacheTTLHours is the time-to-live for cached gateway catalogs.
	CacheTTLHours int `toml:"cache_ttl_hours"`
	// CacheDir holds the file-backed cache. Empty uses in-memory only.
	CacheDir string `toml:"cache_dir"`
}

// HistoryConfig contains chat-persistence client configuration.
type HistoryConfig struct {
	// BaseURL is the history API root.
	BaseURL string `toml:"base_url"`
	// RateLimit caps persistence calls per second. Negative disables.
	RateLimit float64 `toml:"rate_limit"`
	// Burst is the rate limiter burst allowance.
	Burst int `toml:"burst"`
}

// StreamConfig contains streaming completions configuration.
type StreamConfig struct {
	// BaseURL is the completions API root.
	BaseURL string `toml:"base_url"`
	// DefaultModel is used when a request names no model.
	DefaultModel string `toml:"default_model"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Auth: AuthConfig{
			RefreshTimeoutSecs: 30,
		},

		Batch: BatchConfig{
			WindowMs: 1000,
			MaxSize:  10,
		},

		Pricing: PricingConfig{
			PerMillionGateways: []string{
				"fireworks", "featherless", "together",
				"deepinfra", "groq", "chutes",
			},
			PerBillionGateways: []string{"near"},
			DisplayCap:         100,
			MismatchThreshold:  1000,
		},

		Catalog: CatalogConfig{
			BaseURL:       "https://api.gatewayz.ai",
			CacheTTLHours: 1,
		},

		History: HistoryConfig{
			BaseURL:   "https://api.gatewayz.ai",
			RateLimit: 10,
			Burst:     20,
		},

		Stream: StreamConfig{
			BaseURL:      "https://api.gatewayz.ai",
			DefaultModel: "openai/gpt-4o-mini",
		},
	}
}

// RefreshTimeout returns the auth refresh timeout as a duration.
func (c *Config) RefreshTimeout() time.Duration {
	return time.Duration(c.Auth.RefreshTimeoutSecs) * time.Second
}

// BatchWindow returns the batch flush window as a duration.
func (c *Config) BatchWindow() time.Duration {
	return time.Duration(c.Batch.WindowMs) * time.Millisecond
}

// CatalogTTL returns the catalog cache TTL as a duration.
func (c *Config) CatalogTTL() time.Duration {
	return time.Duration(c.Catalog.CacheTTLHours) * time.Hour
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// Dir returns the gatewayz configuration directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".gatewayz"), nil
}

// Path returns the path to the TOML config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureDir ensures the config directory exists.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default config file, falling back to
// built-in defaults when no file exists. Environment overrides are applied
// last, then the result is validated.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		return cfg, cfg.Validate()
	}

	if _, statErr := os.Stat(path); statErr != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		return cfg, cfg.Validate()
	}

	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific TOML file with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}

	cfg.SetDefaults()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SetDefaults fills in any missing or zero-value configuration fields.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}

	if c.Auth.RefreshTimeoutSecs == 0 {
		c.Auth.RefreshTimeoutSecs = defaults.Auth.RefreshTimeoutSecs
	}

	if c.Batch.WindowMs == 0 {
		c.Batch.WindowMs = defaults.Batch.WindowMs
	}
	if c.Batch.MaxSize == 0 {
		c.Batch.MaxSize = defaults.Batch.MaxSize
	}

	if c.Pricing.PerMillionGateways == nil {
		c.Pricing.PerMillionGateways = defaults.Pricing.PerMillionGateways
	}
	if c.Pricing.PerBillionGateways == nil {
		c.Pricing.PerBillionGateways = defaults.Pricing.PerBillionGateways
	}
	if c.Pricing.DisplayCap == 0 {
		c.Pricing.DisplayCap = defaults.Pricing.DisplayCap
	}
	if c.Pricing.MismatchThreshold == 0 {
		c.Pricing.MismatchThreshold = defaults.Pricing.MismatchThreshold
	}

	if c.Catalog.BaseURL == "" {
		c.Catalog.BaseURL = defaults.Catalog.BaseURL
	}
	if c.Catalog.CacheTTLHours == 0 {
		c.Catalog.CacheTTLHours = defaults.Catalog.CacheTTLHours
	}

	if c.History.BaseURL == "" {
		c.History.BaseURL = defaults.History.BaseURL
	}
	if c.History.RateLimit == 0 {
		c.History.RateLimit = defaults.History.RateLimit
	}
	if c.History.Burst == 0 {
		c.History.Burst = defaults.History.Burst
	}

	if c.Stream.BaseURL == "" {
		c.Stream.BaseURL = defaults.Stream.BaseURL
	}
	if c.Stream.DefaultModel == "" {
		c.Stream.DefaultModel = defaults.Stream.DefaultModel
	}
}

// =============================================================================
// SAVE
// =============================================================================

// Save writes the configuration to the default TOML file with restrictive
// permissions; the file can carry endpoint URLs pointing at internal
// deployments.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the configuration to a specific TOML file.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	fmt.Fprintln(file, "# gatewayz configuration file")
	fmt.Fprintln(file, "")

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Auth.RefreshTimeoutSecs < 1 || c.Auth.RefreshTimeoutSecs > 300 {
		errs = append(errs, ValidationError{
			Field:   "auth.refresh_timeout_secs",
			Message: fmt.Sprintf("must be 1-300, got %d", c.Auth.RefreshTimeoutSecs),
		})
	}

	if c.Batch.WindowMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "batch.window_ms",
			Message: "must be non-negative",
		})
	}
	if c.Batch.MaxSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "batch.max_size",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Batch.MaxSize),
		})
	}

	if c.Pricing.DisplayCap <= 0 {
		errs = append(errs, ValidationError{
			Field:   "pricing.display_cap",
			Message: "must be positive",
		})
	}
	if c.Pricing.MismatchThreshold <= c.Pricing.DisplayCap {
		errs = append(errs, ValidationError{
			Field:   "pricing.mismatch_threshold",
			Message: fmt.Sprintf("must exceed display_cap (%g), got %g",
				c.Pricing.DisplayCap, c.Pricing.MismatchThreshold),
		})
	}
	// A gateway in both unit lists would normalize two different ways.
	billion := make(map[string]bool, len(c.Pricing.PerBillionGateways))
	for _, gw := range c.Pricing.PerBillionGateways {
		billion[strings.ToLower(gw)] = true
	}
	for _, gw := range c.Pricing.PerMillionGateways {
		if billion[strings.ToLower(gw)] {
			errs = append(errs, ValidationError{
				Field:   "pricing.per_million_gateways",
				Message: fmt.Sprintf("gateway %q also listed in per_billion_gateways", gw),
			})
		}
	}

	for field, raw := range map[string]string{
		"catalog.base_url": c.Catalog.BaseURL,
		"history.base_url": c.History.BaseURL,
		"stream.base_url":  c.Stream.BaseURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid URL %q", raw),
			})
		}
	}

	if c.Catalog.CacheTTLHours < 0 {
		errs = append(errs, ValidationError{
			Field:   "catalog.cache_ttl_hours",
			Message: "must be non-negative",
		})
	}
	if c.History.Burst < 1 {
		errs = append(errs, ValidationError{
			Field:   "history.burst",
			Message: fmt.Sprintf("must be at least 1, got %d", c.History.Burst),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - GATEWAYZ_API_URL: overrides catalog, history, and stream base_url
//   - GATEWAYZ_MODEL: overrides stream.default_model
//   - GATEWAYZ_OUTBOX: overrides batch.outbox_path
//   - GATEWAYZ_BATCH_WINDOW_MS: overrides batch.window_ms
//   - GATEWAYZ_RATE_LIMIT: overrides history.rate_limit
func (c *Config) ApplyEnvOverrides() {
	if apiURL := os.Getenv("GATEWAYZ_API_URL"); apiURL != "" {
		c.Catalog.BaseURL = apiURL
		c.History.BaseURL = apiURL
		c.Stream.BaseURL = apiURL
	}

	if model := os.Getenv("GATEWAYZ_MODEL"); model != "" {
		c.Stream.DefaultModel = model
	}

	if outbox := os.Getenv("GATEWAYZ_OUTBOX"); outbox != "" {
		c.Batch.OutboxPath = outbox
	}

	if window := os.Getenv("GATEWAYZ_BATCH_WINDOW_MS"); window != "" {
		if ms, err := strconv.Atoi(window); err == nil {
			c.Batch.WindowMs = ms
		}
	}

	if limit := os.Getenv("GATEWAYZ_RATE_LIMIT"); limit != "" {
		if rl, err := strconv.ParseFloat(limit, 64); err == nil {
			c.History.RateLimit = rl
		}
	}
}
