// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.DefaultModel == "" {
		t.Error("default model should be set")
	}
	if cfg.Budget.SafetyFactor != 1.2 {
		t.Errorf("safety factor = %v, want 1.2", cfg.Budget.SafetyFactor)
	}
	if !cfg.Backend.Enabled {
		t.Error("persistence should default to enabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromPath_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
default_model = "claude-sonnet"

[service]
base_url = "https://llm.example.com"
temperature = 0.3
delta_paths = ["choices.0.delta.content", "text"]

[backend]
url = "http://127.0.0.1:9999"
enabled = false

[budget]
safety_factor = 1.5

[budget.context_lengths]
"claude-sonnet" = 200000
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.DefaultModel != "claude-sonnet" {
		t.Errorf("model = %q", cfg.DefaultModel)
	}
	if cfg.Service.BaseURL != "https://llm.example.com" {
		t.Errorf("service url = %q", cfg.Service.BaseURL)
	}
	if cfg.Backend.Enabled {
		t.Error("backend should be disabled")
	}
	if cfg.Budget.SafetyFactor != 1.5 {
		t.Errorf("safety factor = %v", cfg.Budget.SafetyFactor)
	}
	if got := cfg.ContextLengthFor("claude-sonnet"); got != 200000 {
		t.Errorf("context length = %d", got)
	}
	if len(cfg.Service.DeltaPaths) != 2 {
		t.Errorf("delta paths = %v", cfg.Service.DeltaPaths)
	}
}

func TestLoadFromPath_FillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`default_model = "gpt-4o"`), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Service.BaseURL == "" {
		t.Error("service url should fall back to default")
	}
	if cfg.Budget.SafetyFactor != 1.2 {
		t.Errorf("safety factor = %v, want default 1.2", cfg.Budget.SafetyFactor)
	}
	if cfg.Daemon.Addr == "" {
		t.Error("daemon addr should fall back to default")
	}
}

func TestSaveTOML_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.DefaultModel = "mistral-large"
	cfg.UI.ShowTimestamps = true
	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file permissions = %o, want 0600", perm)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if loaded.DefaultModel != "mistral-large" {
		t.Errorf("model = %q after round trip", loaded.DefaultModel)
	}
	if !loaded.UI.ShowTimestamps {
		t.Error("show_timestamps lost in round trip")
	}
}

func TestSaveJSON_AtomicWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := Default()
	if err := SaveJSON(cfg, path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if loaded.DefaultModel != cfg.DefaultModel {
		t.Errorf("model = %q", loaded.DefaultModel)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad service url", func(c *Config) { c.Service.BaseURL = "::not-a-url" }, "service.base_url"},
		{"bad backend url", func(c *Config) { c.Backend.URL = "no-scheme" }, "backend.url"},
		{"safety factor below one", func(c *Config) { c.Budget.SafetyFactor = 0.5 }, "budget.safety_factor"},
		{"negative context length", func(c *Config) {
			c.Budget.ContextLengths = map[string]int{"m": -1}
		}, "budget.context_lengths.m"},
		{"temperature out of range", func(c *Config) { c.Service.Temperature = 3 }, "service.temperature"},
		{"bad theme", func(c *Config) { c.UI.Theme = "solarized" }, "ui.theme"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.field) {
				t.Errorf("error %q does not mention %q", err, tc.field)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("HALCYON_API_KEY", "sk-test-123")
	t.Setenv("HALCYON_MODEL", "claude-haiku")
	t.Setenv("HALCYON_BACKEND_URL", "http://10.0.0.5:8787")
	t.Setenv("HALCYON_NO_PERSIST", "true")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Service.APIKey != "sk-test-123" {
		t.Errorf("api key = %q", cfg.Service.APIKey)
	}
	if cfg.DefaultModel != "claude-haiku" {
		t.Errorf("model = %q", cfg.DefaultModel)
	}
	if cfg.Backend.URL != "http://10.0.0.5:8787" {
		t.Errorf("backend url = %q", cfg.Backend.URL)
	}
	if cfg.Backend.Enabled {
		t.Error("HALCYON_NO_PERSIST should disable persistence")
	}
}

func TestContextLengthFor_Unset(t *testing.T) {
	cfg := Default()
	if got := cfg.ContextLengthFor("anything"); got != 0 {
		t.Errorf("unset context length = %d, want 0", got)
	}
}
