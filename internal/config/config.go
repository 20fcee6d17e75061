// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for tokencost.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// .env files, environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - <user config dir>/tokencost/config.toml
//   - <user config dir>/tokencost/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/tokencost/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete tokencost configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Pricing controls where the price table comes from and how long it is cached.
	Pricing PricingConfig `toml:"pricing" json:"pricing"`

	// Usage controls the local usage log.
	Usage UsageConfig `toml:"usage" json:"usage"`

	// Estimate holds defaults for pre-flight estimates.
	Estimate EstimateConfig `toml:"estimate" json:"estimate"`

	UI UIConfig `toml:"ui" json:"ui"`

	Log LogConfig `toml:"log" json:"log"`
}

// PricingConfig contains price table source and cache configuration.
type PricingConfig struct {
	// URL is the current price table document.
	URL string `toml:"url" json:"url"`
	// HistoricalURL is the price table document with dated entries.
	HistoricalURL string `toml:"historical_url" json:"historical_url"`
	// UseHistorical fetches HistoricalURL instead of URL so that old usage
	// can be priced at the rate in effect when it was recorded.
	UseHistorical bool `toml:"use_historical" json:"use_historical"`
	// TTLHours is how long a cached copy is considered fresh.
	TTLHours int `toml:"ttl_hours" json:"ttl_hours"`
	// TimeoutSecs bounds a single fetch.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// Offline disables all network fetches; a cached copy is still used.
	Offline bool `toml:"offline" json:"offline"`
	// CachePath is the cached price document (empty = <config dir>/prices.json).
	CachePath string `toml:"cache_path" json:"cache_path"`
	// OverridesPath holds hand-edited entries (empty = <config dir>/prices.local.json).
	OverridesPath string `toml:"overrides_path" json:"overrides_path"`
	// Aliases maps a short name to a price table id (e.g. "sonnet" -> "claude-sonnet-4.5").
	Aliases map[string]string `toml:"aliases" json:"aliases"`
}

// UsageConfig contains usage log configuration.
type UsageConfig struct {
	Enabled bool `toml:"enabled" json:"enabled"`
	// DatabasePath is the SQLite usage log (empty = <config dir>/usage.db).
	DatabasePath string `toml:"database_path" json:"database_path"`
	// RetentionDays prunes older rows on `usage prune` (0 = keep forever).
	RetentionDays int `toml:"retention_days" json:"retention_days"`
}

// EstimateConfig contains pre-flight estimate defaults.
type EstimateConfig struct {
	DefaultModel string `toml:"default_model" json:"default_model"`
	// OutputRatio is the assumed output tokens per input token.
	OutputRatio float64 `toml:"output_ratio" json:"output_ratio"`
}

// UIConfig contains display configuration.
type UIConfig struct {
	// Theme is dark, light, or auto to follow the terminal background.
	Theme string `toml:"theme" json:"theme"`
}

// LogConfig contains diagnostic logging configuration.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" json:"level"`
	// Format is "text" or "json".
	Format string `toml:"format" json:"format"`
}

// TTL returns the cache freshness window.
func (p PricingConfig) TTL() time.Duration {
	return time.Duration(p.TTLHours) * time.Hour
}

// Timeout returns the fetch timeout.
func (p PricingConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSecs) * time.Second
}

// SourceURL returns the document URL that should be fetched.
func (p PricingConfig) SourceURL() string {
	if p.UseHistorical && p.HistoricalURL != "" {
		return p.HistoricalURL
	}
	return p.URL
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

const (
	// DefaultPricesURL is the current price table document.
	DefaultPricesURL = "https://www.llm-prices.com/current-v1.json"
	// DefaultHistoricalURL is the dated price table document.
	DefaultHistoricalURL = "https://www.llm-prices.com/historical-v1.json"
)

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Pricing: PricingConfig{
			URL:           DefaultPricesURL,
			HistoricalURL: DefaultHistoricalURL,
			TTLHours:      24,
			TimeoutSecs:   10,
			Aliases:       map[string]string{},
		},

		Usage: UsageConfig{
			Enabled:       true,
			RetentionDays: 0,
		},

		Estimate: EstimateConfig{
			DefaultModel: "gpt-4o-mini",
			OutputRatio:  3.0,
		},

		UI: UIConfig{
			Theme: "dark",
		},

		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// HomeEnv overrides the configuration directory.
const HomeEnv = "TOKENCOST_HOME"

// ConfigDir returns the tokencost configuration directory path.
func ConfigDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(base, "tokencost"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	return inConfigDir("config.toml")
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	return inConfigDir("config.json")
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

func inConfigDir(name string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// PriceCachePath resolves the cached price document location.
func (c *Config) PriceCachePath() (string, error) {
	if c.Pricing.CachePath != "" {
		return c.Pricing.CachePath, nil
	}
	if c.Pricing.UseHistorical {
		return inConfigDir("prices-historical.json")
	}
	return inConfigDir("prices.json")
}

// OverridesPath resolves the local price overrides location.
func (c *Config) OverridesPath() (string, error) {
	if c.Pricing.OverridesPath != "" {
		return c.Pricing.OverridesPath, nil
	}
	return inConfigDir("prices.local.json")
}

// DatabasePath resolves the usage log location.
func (c *Config) DatabasePath() (string, error) {
	if c.Usage.DatabasePath != "" {
		return c.Usage.DatabasePath, nil
	}
	return inConfigDir("usage.db")
}

// ensureSecurePermissions tightens config file permissions to 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// LoadDotEnv loads .env files from the working directory and the config
// directory. Variables already present in the environment are kept.
func LoadDotEnv() {
	candidates := []string{".env"}
	if p, err := inConfigDir(".env"); err == nil {
		candidates = append(candidates, p)
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			slog.Warn("could not load env file", "path", p, "error", err)
		}
	}
}

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	LoadDotEnv()

	var loadErr error

	if tomlPath, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			cfg := Default()
			if err := LoadTOML(cfg, tomlPath); err != nil {
				loadErr = fmt.Errorf("failed to load TOML config: %w", err)
			} else {
				return finish(cfg)
			}
		}
	}

	if jsonPath, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			cfg := Default()
			if err := LoadJSON(cfg, jsonPath); err != nil {
				loadErr = errors.Join(loadErr, fmt.Errorf("failed to load JSON config: %w", err))
			} else {
				return finish(cfg)
			}
		}
	}

	cfg, err := finish(Default())
	if err != nil {
		return nil, err
	}
	// Defaults, with any load error for informational purposes.
	return cfg, loadErr
}

// finish applies env overrides, migration, defaults, and validation.
func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	if err := cfg.Migrate(); err != nil {
		return nil, fmt.Errorf("config migration failed: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		slog.Warn("could not ensure secure permissions", "path", path, "error", err)
	}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		slog.Warn("unknown config keys ignored", "path", path, "keys", strings.Join(keys, ", "))
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		slog.Warn("could not ensure secure permissions", "path", path, "error", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}
	return finish(cfg)
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	err := util.AtomicWrite(path, 0600, func(w io.Writer) error {
		io.WriteString(w, "# tokencost configuration file\n")
		io.WriteString(w, "# Generated by tokencost - edit with care\n\n")
		return toml.NewEncoder(w).Encode(cfg)
	})
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
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
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"text": true, "json": true}
	validThemes     = map[string]bool{"dark": true, "light": true, "auto": true}
)

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// Pricing
	for field, raw := range map[string]string{
		"pricing.url":            c.Pricing.URL,
		"pricing.historical_url": c.Pricing.HistoricalURL,
	} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid URL '%s', must be http(s)://host/...", raw),
			})
		}
	}
	if c.Pricing.URL == "" {
		errs = append(errs, ValidationError{Field: "pricing.url", Message: "must not be empty"})
	}
	if c.Pricing.TTLHours < 0 {
		errs = append(errs, ValidationError{Field: "pricing.ttl_hours", Message: "must not be negative"})
	}
	if c.Pricing.TimeoutSecs < 1 || c.Pricing.TimeoutSecs > 300 {
		errs = append(errs, ValidationError{
			Field:   "pricing.timeout_secs",
			Message: fmt.Sprintf("value %d out of range (1-300)", c.Pricing.TimeoutSecs),
		})
	}
	for alias, target := range c.Pricing.Aliases {
		if strings.TrimSpace(alias) == "" || strings.TrimSpace(target) == "" {
			errs = append(errs, ValidationError{Field: "pricing.aliases", Message: "alias and target must not be empty"})
			break
		}
	}

	// Usage
	if c.Usage.RetentionDays < 0 {
		errs = append(errs, ValidationError{Field: "usage.retention_days", Message: "must not be negative"})
	}

	// Estimate
	if c.Estimate.OutputRatio < 0 || c.Estimate.OutputRatio > 100 {
		errs = append(errs, ValidationError{
			Field:   "estimate.output_ratio",
			Message: fmt.Sprintf("value %g out of range (0-100)", c.Estimate.OutputRatio),
		})
	}

	// UI
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}

	// Log
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level),
		})
	}
	if !validLogFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("invalid format '%s', must be one of: text, json", c.Log.Format),
		})
	}

	if len(errs) > 0 {
		sort.Slice(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
		return errs
	}
	return nil
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Version == "" {
		c.Version = d.Version
	}
	if c.Pricing.URL == "" {
		c.Pricing.URL = d.Pricing.URL
	}
	if c.Pricing.HistoricalURL == "" {
		c.Pricing.HistoricalURL = d.Pricing.HistoricalURL
	}
	if c.Pricing.TTLHours == 0 {
		c.Pricing.TTLHours = d.Pricing.TTLHours
	}
	if c.Pricing.TimeoutSecs == 0 {
		c.Pricing.TimeoutSecs = d.Pricing.TimeoutSecs
	}
	if c.Pricing.Aliases == nil {
		c.Pricing.Aliases = map[string]string{}
	}
	if c.Estimate.DefaultModel == "" {
		c.Estimate.DefaultModel = d.Estimate.DefaultModel
	}
	if c.Estimate.OutputRatio == 0 {
		c.Estimate.OutputRatio = d.Estimate.OutputRatio
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// Migrate upgrades older config values in place.
func (c *Config) Migrate() error {
	// "warning" was accepted before levels were normalized to slog names.
	if strings.EqualFold(c.Log.Level, "warning") {
		c.Log.Level = "warn"
	}
	c.Log.Level = strings.ToLower(c.Log.Level)

	// Aliases are matched case-insensitively.
	if len(c.Pricing.Aliases) > 0 {
		normalized := make(map[string]string, len(c.Pricing.Aliases))
		for k, v := range c.Pricing.Aliases {
			normalized[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
		c.Pricing.Aliases = normalized
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - TOKENCOST_PRICES_URL: overrides pricing.url
//   - TOKENCOST_HISTORICAL: "1"/"true" to price against the historical document
//   - TOKENCOST_OFFLINE: "1"/"true" to disable network fetches
//   - TOKENCOST_TTL_HOURS: overrides pricing.ttl_hours
//   - TOKENCOST_CACHE_PATH: overrides pricing.cache_path
//   - TOKENCOST_DB: overrides usage.database_path
//   - TOKENCOST_NO_USAGE: "1"/"true" to disable the usage log
//   - TOKENCOST_MODEL: overrides estimate.default_model
//   - TOKENCOST_LOG_LEVEL: overrides log.level
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("TOKENCOST_PRICES_URL"); v != "" {
		c.Pricing.URL = v
	}
	if v := os.Getenv("TOKENCOST_HISTORICAL"); v != "" {
		c.Pricing.UseHistorical = isTruthy(v)
	}
	if v := os.Getenv("TOKENCOST_OFFLINE"); v != "" {
		c.Pricing.Offline = isTruthy(v)
	}
	if v := os.Getenv("TOKENCOST_TTL_HOURS"); v != "" {
		if hours, err := strconv.Atoi(v); err == nil {
			c.Pricing.TTLHours = hours
		}
	}
	if v := os.Getenv("TOKENCOST_CACHE_PATH"); v != "" {
		c.Pricing.CachePath = v
	}
	if v := os.Getenv("TOKENCOST_DB"); v != "" {
		c.Usage.DatabasePath = v
	}
	if v := os.Getenv("TOKENCOST_NO_USAGE"); v != "" {
		c.Usage.Enabled = !isTruthy(v)
	}
	if v := os.Getenv("TOKENCOST_MODEL"); v != "" {
		c.Estimate.DefaultModel = v
	}
	if v := os.Getenv("TOKENCOST_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func isTruthy(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "pricing.ttl_hours").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookupField(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "pricing.ttl_hours").
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookupField(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookupField(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})
	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			field.SetBool(isTruthy(strVal))
			return nil
		case reflect.Map:
			// "alias=target,alias2=target2"
			if field.Type().Key().Kind() != reflect.String || field.Type().Elem().Kind() != reflect.String {
				break
			}
			m := make(map[string]string)
			for _, pair := range strings.Split(strVal, ",") {
				k, v, found := strings.Cut(pair, "=")
				if !found {
					return fmt.Errorf("invalid map entry %q, want key=value", pair)
				}
				m[strings.TrimSpace(k)] = strings.TrimSpace(v)
			}
			field.Set(reflect.ValueOf(m))
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"pricing.url",
		"pricing.historical_url",
		"pricing.use_historical",
		"pricing.ttl_hours",
		"pricing.timeout_secs",
		"pricing.offline",
		"pricing.cache_path",
		"pricing.overrides_path",
		"pricing.aliases",
		"usage.enabled",
		"usage.database_path",
		"usage.retention_days",
		"estimate.default_model",
		"estimate.output_ratio",
		"ui.theme",
		"log.level",
		"log.format",
	}
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Pricing.Aliases != nil {
		clone.Pricing.Aliases = make(map[string]string, len(c.Pricing.Aliases))
		for k, v := range c.Pricing.Aliases {
			clone.Pricing.Aliases[k] = v
		}
	}
	return &clone
}

// String returns a string representation of the config for debugging.
// Credentials embedded in URLs are redacted.
func (c *Config) String() string {
	safe := c.Clone()
	safe.Pricing.URL = redactURL(safe.Pricing.URL)
	safe.Pricing.HistoricalURL = redactURL(safe.Pricing.HistoricalURL)
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = url.User("REDACTED")
	return u.String()
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			slog.Warn("config load failed, using defaults", "error", err)
		}
		if cfg == nil {
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil && cfg == nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return err
}

// SetGlobal sets the global configuration instance. Global will not load
// from disk afterwards. Thread-safe.
func SetGlobal(cfg *Config) {
	// Outside the lock: a first Global() in progress takes the lock itself.
	globalConfigOnce.Do(func() {})
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
