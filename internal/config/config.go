// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/cascadeflow/cascadeflow-go/internal/cascade"
	"github.com/cascadeflow/cascadeflow-go/internal/complexity"
	"github.com/cascadeflow/cascadeflow-go/internal/policy"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete cascadeflow configuration.
type Config struct {
	Drafter  ModelSection   `toml:"drafter" json:"drafter"`
	Verifier ModelSection   `toml:"verifier" json:"verifier"`
	Cascade  CascadeSection `toml:"cascade" json:"cascade"`

	// Domains maps a domain tag to its routing policy.
	Domains map[string]DomainSection `toml:"domains" json:"domains"`

	Provider ProviderSection `toml:"provider" json:"provider"`
	Ledger   LedgerSection   `toml:"ledger" json:"ledger"`
	Logging  LoggingSection  `toml:"logging" json:"logging"`
}

// ModelSection configures one model slot of the cascade.
type ModelSection struct {
	// Name is the provider-qualified model name.
	Name string `toml:"name" json:"name"`
	// InputPerMillion / OutputPerMillion override the built-in price table
	// when non-zero.
	InputPerMillion  float64 `toml:"input_per_million" json:"input_per_million"`
	OutputPerMillion float64 `toml:"output_per_million" json:"output_per_million"`
	// SupportsTools declares tool-calling capability.
	SupportsTools bool `toml:"supports_tools" json:"supports_tools"`
}

// CascadeSection configures the quality gate and routing.
type CascadeSection struct {
	// QualityThreshold is the default accept gate in [0,1].
	QualityThreshold float64 `toml:"quality_threshold" json:"quality_threshold"`
	// EnablePreRouter turns complexity pre-routing on. Unset means
	// enabled; nil tracks whether the file said anything at all.
	EnablePreRouter *bool `toml:"enable_pre_router" json:"enable_pre_router"`
	// CascadeComplexities lists the tiers that attempt the drafter,
	// e.g. ["trivial", "simple", "moderate"].
	CascadeComplexities []string `toml:"cascade_complexities" json:"cascade_complexities"`
	// MaxSteps bounds the agent tool loop.
	MaxSteps int `toml:"max_steps" json:"max_steps"`
}

// PreRouterEnabled resolves the pre-router setting; unset means enabled.
func (s CascadeSection) PreRouterEnabled() bool {
	return s.EnablePreRouter == nil || *s.EnablePreRouter
}

// DomainSection is the per-domain routing policy.
type DomainSection struct {
	// QualityThreshold overrides the default gate when set.
	QualityThreshold *float64 `toml:"quality_threshold" json:"quality_threshold"`
	// ForceVerifier always escalates after drafting.
	ForceVerifier bool `toml:"force_verifier" json:"force_verifier"`
	// DirectToVerifier skips the drafter entirely.
	DirectToVerifier bool `toml:"direct_to_verifier" json:"direct_to_verifier"`
}

// ProviderSection configures the OpenAI-compatible transport.
type ProviderSection struct {
	BaseURL string `toml:"base_url" json:"base_url"`
	// APIKey is usually left empty here and supplied via environment.
	APIKey string `toml:"api_key" json:"api_key"`
	// MaxRetries bounds transport-level retry of retryable statuses.
	MaxRetries int `toml:"max_retries" json:"max_retries"`
	// RequestsPerSecond throttles outbound calls; 0 disables throttling.
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
	// TimeoutSecs is the per-call timeout for non-streaming requests.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
}

// LedgerSection configures cost persistence.
type LedgerSection struct {
	Enabled bool `toml:"enabled" json:"enabled"`
	// Path is the SQLite file; empty means ~/.cascadeflow/ledger.db.
	Path string `toml:"path" json:"path"`
}

// LoggingSection configures the zap logger.
type LoggingSection struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level"`
	// Format is "json" or "console".
	Format string `toml:"format" json:"format"`
}

// =============================================================================
// DEFAULTS AND LOADING
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills unset fields with built-in values.
func (c *Config) SetDefaults() {
	if c.Drafter.Name == "" {
		c.Drafter.Name = "gpt-4o-mini"
		c.Drafter.SupportsTools = true
	}
	if c.Verifier.Name == "" {
		c.Verifier.Name = "gpt-4o"
		c.Verifier.SupportsTools = true
	}
	if c.Cascade.QualityThreshold == 0 {
		c.Cascade.QualityThreshold = cascade.DefaultQualityThreshold
	}
	if c.Cascade.EnablePreRouter == nil {
		enabled := true
		c.Cascade.EnablePreRouter = &enabled
	}
	if len(c.Cascade.CascadeComplexities) == 0 {
		for _, t := range complexity.DefaultCascadeTiers() {
			c.Cascade.CascadeComplexities = append(c.Cascade.CascadeComplexities, strings.ToLower(t.String()))
		}
	}
	if c.Cascade.MaxSteps == 0 {
		c.Cascade.MaxSteps = cascade.DefaultMaxSteps
	}
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "https://api.openai.com/v1"
	}
	if c.Provider.MaxRetries == 0 {
		c.Provider.MaxRetries = 3
	}
	if c.Provider.TimeoutSecs == 0 {
		c.Provider.TimeoutSecs = 120
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// DefaultPath returns ~/.cascadeflow/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cascadeflow", "config.toml"), nil
}

// Load reads the default config file if present, then applies environment
// overrides. A missing file is not an error; defaults apply. config.toml
// takes precedence over config.json.
func Load() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	if _, serr := os.Stat(path); os.IsNotExist(serr) {
		jsonPath := strings.TrimSuffix(path, ".toml") + ".json"
		if _, serr := os.Stat(jsonPath); serr == nil {
			path = jsonPath
		}
	}
	return LoadFromPath(path)
}

// LoadFromPath reads the given TOML (or .json) file, fills defaults,
// applies environment overrides, and validates. A missing file yields
// defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(path); err == nil {
		if err := decodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg.SetDefaults()
	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	if filepath.Ext(path) == ".json" {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, cfg)
	}
	_, err := toml.DecodeFile(path, cfg)
	return err
}

// ApplyEnvOverrides applies CASCADEFLOW_* environment variables on top of
// the file values.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CASCADEFLOW_DRAFTER"); v != "" {
		c.Drafter.Name = v
	}
	if v := os.Getenv("CASCADEFLOW_VERIFIER"); v != "" {
		c.Verifier.Name = v
	}
	if v := os.Getenv("CASCADEFLOW_API_KEY"); v != "" {
		c.Provider.APIKey = v
	}
	if v := os.Getenv("CASCADEFLOW_BASE_URL"); v != "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv("CASCADEFLOW_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Cascade.QualityThreshold = f
		}
	}
	if v := os.Getenv("CASCADEFLOW_LEDGER_PATH"); v != "" {
		c.Ledger.Enabled = true
		c.Ledger.Path = v
	}
	if v := os.Getenv("CASCADEFLOW_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks field values; it does not touch the filesystem.
func (c *Config) Validate() error {
	if c.Drafter.Name == "" {
		return fmt.Errorf("drafter.name is required")
	}
	if c.Verifier.Name == "" {
		return fmt.Errorf("verifier.name is required")
	}
	if c.Cascade.QualityThreshold < 0 || c.Cascade.QualityThreshold > 1 {
		return fmt.Errorf("cascade.quality_threshold must be in [0,1], got %v", c.Cascade.QualityThreshold)
	}
	for _, name := range c.Cascade.CascadeComplexities {
		if _, ok := complexity.ParseTier(name); !ok {
			return fmt.Errorf("cascade.cascade_complexities: unknown tier %q", name)
		}
	}
	for domain, d := range c.Domains {
		if d.QualityThreshold != nil && (*d.QualityThreshold < 0 || *d.QualityThreshold > 1) {
			return fmt.Errorf("domains.%s.quality_threshold must be in [0,1]", domain)
		}
	}
	if c.Cascade.MaxSteps < 0 {
		return fmt.Errorf("cascade.max_steps must be non-negative")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// =============================================================================
// TRANSLATION
// =============================================================================

// CascadeConfig translates the file representation into the engine config.
func (c *Config) CascadeConfig() (cascade.Config, error) {
	engine := cascade.NewConfig(
		cascade.ModelConfig{
			Name:             c.Drafter.Name,
			InputPerMillion:  c.Drafter.InputPerMillion,
			OutputPerMillion: c.Drafter.OutputPerMillion,
			SupportsTools:    c.Drafter.SupportsTools,
		},
		cascade.ModelConfig{
			Name:             c.Verifier.Name,
			InputPerMillion:  c.Verifier.InputPerMillion,
			OutputPerMillion: c.Verifier.OutputPerMillion,
			SupportsTools:    c.Verifier.SupportsTools,
		},
	)
	engine.QualityThreshold = c.Cascade.QualityThreshold
	engine.EnablePreRouter = c.Cascade.PreRouterEnabled()
	engine.MaxSteps = c.Cascade.MaxSteps

	engine.CascadeComplexities = nil
	for _, name := range c.Cascade.CascadeComplexities {
		tier, ok := complexity.ParseTier(name)
		if !ok {
			return cascade.Config{}, fmt.Errorf("unknown complexity tier %q", name)
		}
		engine.CascadeComplexities = append(engine.CascadeComplexities, tier)
	}

	if len(c.Domains) > 0 {
		engine.DomainPolicies = make(map[string]policy.DomainPolicy, len(c.Domains))
		for domain, d := range c.Domains {
			engine.DomainPolicies[strings.ToLower(strings.TrimSpace(domain))] = policy.DomainPolicy{
				QualityThreshold: d.QualityThreshold,
				ForceVerifier:    d.ForceVerifier,
				DirectToVerifier: d.DirectToVerifier,
			}
		}
	}
	return engine, nil
}

// Timeout returns the provider call timeout as a duration.
func (p ProviderSection) Timeout() time.Duration {
	return time.Duration(p.TimeoutSecs) * time.Second
}

// Logger builds a zap logger per the logging section.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}

	var zc zap.Config
	if c.Logging.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = level
	return zc.Build()
}
