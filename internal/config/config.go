// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/halcyonlabs/halcyon-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete halcyon configuration.
type Config struct {
	// General settings
	Version      string `toml:"version" json:"version"`
	DefaultModel string `toml:"default_model" json:"default_model"`

	// Completion service configuration
	Service ServiceConfig `toml:"service" json:"service"`

	// Record-keeping backend configuration
	Backend BackendConfig `toml:"backend" json:"backend"`

	// Token budget configuration
	Budget BudgetConfig `toml:"budget" json:"budget"`

	// Daemon configuration (halcyond)
	Daemon DaemonConfig `toml:"daemon" json:"daemon"`

	// UI configuration
	UI UIConfig `toml:"ui" json:"ui"`
}

// ServiceConfig holds the hosted completion service settings.
type ServiceConfig struct {
	// BaseURL is the completion service endpoint
	BaseURL string `toml:"base_url" json:"base_url"`
	// APIKey authenticates against the service. Prefer the
	// HALCYON_API_KEY environment variable over the config file.
	APIKey string `toml:"api_key" json:"api_key"`
	// DeltaPaths are the JSON field paths probed, in order, for content
	// deltas in streamed events. Empty means the built-in defaults.
	DeltaPaths []string `toml:"delta_paths" json:"delta_paths"`
	// Temperature is the default sampling temperature (0 disables).
	Temperature float64 `toml:"temperature" json:"temperature"`
}

// BackendConfig holds the record-keeping backend settings.
type BackendConfig struct {
	// URL is the backend endpoint the TUI talks to
	URL string `toml:"url" json:"url"`
	// Enabled turns persistence on. When false, exchanges are not saved.
	Enabled bool `toml:"enabled" json:"enabled"`
}

// BudgetConfig tunes the token budget estimation.
type BudgetConfig struct {
	// SafetyFactor inflates the prompt estimate when computing the
	// completion budget. Must be at least 1.
	SafetyFactor float64 `toml:"safety_factor" json:"safety_factor"`
	// ContextLengths overrides the built-in catalog per model ID.
	ContextLengths map[string]int `toml:"context_lengths" json:"context_lengths"`
}

// DaemonConfig holds the halcyond daemon settings.
type DaemonConfig struct {
	// Addr is the listen address, e.g. ":8787"
	Addr string `toml:"addr" json:"addr"`
	// DataDir is where the event database lives (default ~/.halcyon)
	DataDir string `toml:"data_dir" json:"data_dir"`
	// SessionTTLSecs is the backend session lifetime in seconds
	SessionTTLSecs int `toml:"session_ttl_secs" json:"session_ttl_secs"`
	// RatePerSecond and RateBurst configure per-IP rate limiting
	RatePerSecond float64 `toml:"rate_per_second" json:"rate_per_second"`
	RateBurst     int     `toml:"rate_burst" json:"rate_burst"`
}

// UIConfig holds presentation settings.
type UIConfig struct {
	// SystemPrompt is prepended to every conversation when set
	SystemPrompt string `toml:"system_prompt" json:"system_prompt"`
	// ShowTimestamps renders message timestamps in the transcript
	ShowTimestamps bool `toml:"show_timestamps" json:"show_timestamps"`
	// Theme selects the color theme: "dark" or "light"
	Theme string `toml:"theme" json:"theme"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		Version:      "1.0.0",
		DefaultModel: "gpt-4o-mini",

		Service: ServiceConfig{
			BaseURL:     "https://api.halcyonlabs.dev",
			Temperature: 0.7,
		},

		Backend: BackendConfig{
			URL:     "http://127.0.0.1:8787",
			Enabled: true,
		},

		Budget: BudgetConfig{
			SafetyFactor: 1.2,
		},

		Daemon: DaemonConfig{
			Addr:           ":8787",
			SessionTTLSecs: 1800,
			RatePerSecond:  10,
			RateBurst:      30,
		},

		UI: UIConfig{
			Theme: "dark",
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the halcyon config directory (~/.halcyon).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".halcyon"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files should be 0600 to protect the API key.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()

	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				return nil, fmt.Errorf("failed to load TOML config: %w", err)
			}
			return finish(cfg)
		}
	}

	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				return nil, fmt.Errorf("failed to load JSON config: %w", err)
			}
			return finish(cfg)
		}
	}

	return finish(cfg)
}

// LoadFromPath loads configuration from an explicit file path, inferring
// the format from the extension.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	var err error
	if strings.HasSuffix(path, ".json") {
		err = LoadJSON(cfg, path)
	} else {
		err = LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, err
	}
	return finish(cfg)
}

// finish applies env overrides, defaults, and validation.
func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
// SECURITY: Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
// SECURITY: Checks and fixes file permissions on load.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML location.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// SECURITY: Creates config files with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# halcyon configuration file")
	fmt.Fprintln(file, "# Generated by halcyon - edit with care")
	fmt.Fprintln(file, "")

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file.
// RELIABILITY: Atomic write with fsync prevents data loss on crash.
func SaveJSON(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
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
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Service.BaseURL != "" {
		if u, err := url.Parse(c.Service.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{"service.base_url", "must be a valid absolute URL"})
		}
	}

	if c.Backend.URL != "" {
		if u, err := url.Parse(c.Backend.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{"backend.url", "must be a valid absolute URL"})
		}
	}

	if c.Budget.SafetyFactor < 1 {
		errs = append(errs, ValidationError{"budget.safety_factor", "must be at least 1"})
	}
	for model, length := range c.Budget.ContextLengths {
		if length <= 0 {
			errs = append(errs, ValidationError{
				"budget.context_lengths." + model, "must be positive"})
		}
	}

	if c.Service.Temperature < 0 || c.Service.Temperature > 2 {
		errs = append(errs, ValidationError{"service.temperature", "must be between 0 and 2"})
	}

	if c.Daemon.SessionTTLSecs < 0 {
		errs = append(errs, ValidationError{"daemon.session_ttl_secs", "must be non-negative"})
	}
	if c.Daemon.RatePerSecond < 0 {
		errs = append(errs, ValidationError{"daemon.rate_per_second", "must be non-negative"})
	}

	if c.UI.Theme != "" && c.UI.Theme != "dark" && c.UI.Theme != "light" {
		errs = append(errs, ValidationError{"ui.theme", "must be \"dark\" or \"light\""})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// DEFAULTS AND OVERRIDES
// =============================================================================

// SetDefaults fills in defaults for any missing or zero-value fields.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.DefaultModel == "" {
		c.DefaultModel = defaults.DefaultModel
	}
	if c.Service.BaseURL == "" {
		c.Service.BaseURL = defaults.Service.BaseURL
	}
	if c.Service.Temperature == 0 {
		c.Service.Temperature = defaults.Service.Temperature
	}
	if c.Backend.URL == "" {
		c.Backend.URL = defaults.Backend.URL
	}
	if c.Budget.SafetyFactor == 0 {
		c.Budget.SafetyFactor = defaults.Budget.SafetyFactor
	}
	if c.Daemon.Addr == "" {
		c.Daemon.Addr = defaults.Daemon.Addr
	}
	if c.Daemon.SessionTTLSecs == 0 {
		c.Daemon.SessionTTLSecs = defaults.Daemon.SessionTTLSecs
	}
	if c.Daemon.RatePerSecond == 0 {
		c.Daemon.RatePerSecond = defaults.Daemon.RatePerSecond
	}
	if c.Daemon.RateBurst == 0 {
		c.Daemon.RateBurst = defaults.Daemon.RateBurst
	}
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
}

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - HALCYON_API_KEY: overrides service.api_key
//   - HALCYON_SERVICE_URL: overrides service.base_url
//   - HALCYON_BACKEND_URL: overrides backend.url
//   - HALCYON_MODEL: overrides default_model
//   - HALCYON_NO_PERSIST: set to "1" or "true" to disable saving
//   - HALCYON_DAEMON_ADDR: overrides daemon.addr
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("HALCYON_API_KEY"); key != "" {
		c.Service.APIKey = key
	}
	if u := os.Getenv("HALCYON_SERVICE_URL"); u != "" {
		c.Service.BaseURL = u
	}
	if u := os.Getenv("HALCYON_BACKEND_URL"); u != "" {
		c.Backend.URL = u
	}
	if model := os.Getenv("HALCYON_MODEL"); model != "" {
		c.DefaultModel = model
	}
	if v := os.Getenv("HALCYON_NO_PERSIST"); v != "" {
		c.Backend.Enabled = !(v == "1" || strings.ToLower(v) == "true")
	}
	if addr := os.Getenv("HALCYON_DAEMON_ADDR"); addr != "" {
		c.Daemon.Addr = addr
	}
}

// =============================================================================
// LOOKUPS
// =============================================================================

// ContextLengthFor returns the configured context length override for a
// model, or 0 when the config has none.
func (c *Config) ContextLengthFor(model string) int {
	if c.Budget.ContextLengths == nil {
		return 0
	}
	return c.Budget.ContextLengths[model]
}

// DataDir returns the daemon data directory, defaulting to the config
// directory.
func (c *Config) DataDir() (string, error) {
	if c.Daemon.DataDir != "" {
		return c.Daemon.DataDir, nil
	}
	return ConfigDir()
}

