// Package config loads the process-wide Nexus configuration: cache
// TTL, diff/summary churn and jitter thresholds, focus preset and role-map
// overrides, backend launch settings, and daemon limits. Struct-of-structs
// layout, a DefaultConfig constructor, YAML load plus env override, and
// fsnotify hot-reload.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"nexus/internal/model"
)

// Config holds all Nexus configuration.
type Config struct {
	Cache      CacheConfig      `yaml:"cache"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Focus      FocusConfig      `yaml:"focus"`
	Backends   BackendsConfig   `yaml:"backends"`
	Daemon     DaemonConfig     `yaml:"daemon"`
}

// CacheConfig mirrors internal/cache's lookup policy.
type CacheConfig struct {
	TTLMs int `yaml:"ttl_ms"`
}

func (c CacheConfig) TTL() time.Duration {
	if c.TTLMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.TTLMs) * time.Millisecond
}

// ThresholdsConfig mirrors internal/diffsum's churn fallback and jitter
// damping.
type ThresholdsConfig struct {
	ChurnFraction float64 `yaml:"churn_fraction"`
	JitterPixels  int     `yaml:"jitter_pixels"`
}

func DefaultThresholds() ThresholdsConfig {
	return ThresholdsConfig{ChurnFraction: 0.5, JitterPixels: 8}
}

// FocusConfig carries preset and role-map overrides/extensions.
// A preset or role-map entry present here is merged over the compiled-in
// default of the same name; it does not need to redeclare the whole set.
type FocusConfig struct {
	Presets map[string]PresetOverride       `yaml:"presets,omitempty"`
	Roles   map[string]map[string]string    `yaml:"roles,omitempty"` // backend tag -> raw role -> normalized Role
}

// PresetOverride is the on-disk shape of a filter.Preset (kept separate so
// this package does not import internal/filter just for one struct).
type PresetOverride struct {
	Roles   []string `yaml:"roles,omitempty"`
	Pattern string   `yaml:"pattern,omitempty"`
}

// BackendsConfig carries per-backend launch/connection settings.
type BackendsConfig struct {
	Native  NativeBackendConfig  `yaml:"native"`
	Browser BrowserBackendConfig `yaml:"browser"`
}

type NativeBackendConfig struct {
	MaxDepth int `yaml:"max_depth"`
}

type BrowserBackendConfig struct {
	DebuggerURL         string   `yaml:"debugger_url"`
	Launch              []string `yaml:"launch"`
	Headless            bool     `yaml:"headless"`
	ViewportWidth       int      `yaml:"viewport_width"`
	ViewportHeight      int      `yaml:"viewport_height"`
	NavigationTimeoutMs int      `yaml:"navigation_timeout_ms"`
}

// DaemonConfig carries the request-loop limits.
type DaemonConfig struct {
	WatchdogMs  int `yaml:"watchdog_ms"`
	MaxLineKB   int `yaml:"max_line_kb"`
	HealRetries int `yaml:"heal_retries"`
}

func (d DaemonConfig) Watchdog() time.Duration {
	if d.WatchdogMs <= 0 {
		return 15 * time.Second
	}
	return time.Duration(d.WatchdogMs) * time.Millisecond
}

func (d DaemonConfig) MaxLineBytes() int {
	if d.MaxLineKB <= 0 {
		return 4096 * 1024
	}
	return d.MaxLineKB * 1024
}

func (d DaemonConfig) Retries() int {
	if d.HealRetries <= 0 {
		return 2
	}
	return d.HealRetries
}

// DefaultConfig returns Nexus's compiled-in defaults — every field here
// matches the constant a component falls back to when config is silent
// about it.
func DefaultConfig() *Config {
	return &Config{
		Cache:      CacheConfig{TTLMs: 500},
		Thresholds: DefaultThresholds(),
		Focus:      FocusConfig{},
		Backends: BackendsConfig{
			Native: NativeBackendConfig{MaxDepth: 3},
			Browser: BrowserBackendConfig{
				Headless:            false,
				ViewportWidth:       1920,
				ViewportHeight:      1080,
				NavigationTimeoutMs: 30000,
			},
		},
		Daemon: DaemonConfig{WatchdogMs: 15000, MaxLineKB: 4096, HealRetries: 2},
	}
}

// Load reads a YAML config file at path, falling back to DefaultConfig when
// the file does not exist, then applies NEXUS_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies NEXUS_*-prefixed environment variable
// overrides after the YAML file has already been loaded, so env vars win.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("NEXUS_CACHE_TTL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.TTLMs = n
		}
	}
	if v := os.Getenv("NEXUS_CHURN_FRACTION"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Thresholds.ChurnFraction = f
		}
	}
	if v := os.Getenv("NEXUS_JITTER_PIXELS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Thresholds.JitterPixels = n
		}
	}
	if v := os.Getenv("NEXUS_BROWSER_DEBUGGER_URL"); v != "" {
		c.Backends.Browser.DebuggerURL = v
	}
	if v := os.Getenv("NEXUS_DAEMON_WATCHDOG_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Daemon.WatchdogMs = n
		}
	}
}

// ResolvedRoleMap merges FocusConfig.Roles (string-keyed, on-disk shape)
// over a base role map already in model.Role form. internal/core calls this
// with normalize.DefaultRoleMap() as base; presets are merged the same way
// directly in internal/core, which already imports internal/filter.
func (c *Config) ResolvedRoleMap(base map[string]map[string]model.Role) map[string]map[string]model.Role {
	for tag, raws := range c.Focus.Roles {
		if base[tag] == nil {
			base[tag] = make(map[string]model.Role)
		}
		for raw, role := range raws {
			base[tag][raw] = model.Role(role)
		}
	}
	return base
}
