// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cascade

import (
	"fmt"

	"github.com/cascadeflow/cascadeflow-go/internal/complexity"
	"github.com/cascadeflow/cascadeflow-go/internal/policy"
	"github.com/cascadeflow/cascadeflow-go/internal/pricing"
	"github.com/cascadeflow/cascadeflow-go/internal/quality"
)

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	// DefaultQualityThreshold is the accept boundary when neither the
	// config nor a domain policy overrides it.
	DefaultQualityThreshold = 0.7

	// DefaultMaxSteps bounds the tool-calling agent loop.
	DefaultMaxSteps = 8
)

// =============================================================================
// MODEL CONFIG
// =============================================================================

// ModelConfig is immutable reference data about one model: its
// provider-qualified name and cost-per-million-token pair. A zero price
// pair defers to the engine's price table.
type ModelConfig struct {
	// Name is the provider-qualified model name (e.g. "openai/gpt-4o-mini").
	Name string `toml:"name" json:"name"`
	// InputPerMillion is the USD price per million input tokens.
	InputPerMillion float64 `toml:"input_per_million" json:"input_per_million"`
	// OutputPerMillion is the USD price per million output tokens.
	OutputPerMillion float64 `toml:"output_per_million" json:"output_per_million"`
	// SupportsTools declares whether the model accepts tool binding.
	// Requests that bind tools against a model without support fail at
	// configuration time, not mid-request.
	SupportsTools bool `toml:"supports_tools" json:"supports_tools"`
}

// hasExplicitPrice reports whether the config carries its own price pair.
func (m ModelConfig) hasExplicitPrice() bool {
	return m.InputPerMillion != 0 || m.OutputPerMillion != 0
}

// =============================================================================
// CASCADE CONFIG
// =============================================================================

// Config is the full cascade configuration. It is validated once by
// NewOrchestrator and treated as read-only afterwards; reconfiguration
// means building a new Config value, never mutating a shared one.
type Config struct {
	// Drafter is the cheap model tried first (required).
	Drafter ModelConfig
	// Verifier is the higher-capability escalation model (required).
	Verifier ModelConfig

	// QualityThreshold is the accept boundary in [0,1]. NewConfig seeds
	// DefaultQualityThreshold; an explicit zero accepts every draft.
	QualityThreshold float64

	// DomainPolicies maps domain tags to routing overrides.
	DomainPolicies map[string]policy.DomainPolicy

	// EnablePreRouter toggles complexity-based routing (default on; see
	// NewConfig).
	EnablePreRouter bool

	// CascadeComplexities lists the tiers eligible for cascading. Empty
	// means the default Trivial/Simple/Moderate set.
	CascadeComplexities []complexity.Tier

	// MaxSteps bounds the tool-calling agent loop (default 8).
	MaxSteps int

	// Weights tunes the heuristic quality scorer. The zero value means
	// quality.DefaultWeights.
	Weights *quality.Weights

	// Pricing is the model price table; nil means pricing.DefaultTable.
	Pricing *pricing.Table
}

// NewConfig returns a Config with defaults applied for drafter/verifier
// pair. Callers adjust fields before handing it to NewOrchestrator.
func NewConfig(drafter, verifier ModelConfig) Config {
	return Config{
		Drafter:             drafter,
		Verifier:            verifier,
		QualityThreshold:    DefaultQualityThreshold,
		EnablePreRouter:     true,
		CascadeComplexities: complexity.DefaultCascadeTiers(),
		MaxSteps:            DefaultMaxSteps,
	}
}

// =============================================================================
// CONFIGURATION ERRORS
// =============================================================================

// ConfigurationError reports an invalid configuration. It is raised at
// construction time, before any request is processed.
type ConfigurationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid cascade configuration: %s: %s", e.Field, e.Reason)
}

// validate checks the config and normalizes defaults in place.
func (c *Config) validate() error {
	if c.Drafter.Name == "" {
		return &ConfigurationError{Field: "drafter", Reason: "model name is required"}
	}
	if c.Verifier.Name == "" {
		return &ConfigurationError{Field: "verifier", Reason: "model name is required"}
	}
	if c.QualityThreshold < 0 || c.QualityThreshold > 1 {
		return &ConfigurationError{Field: "quality_threshold", Reason: "must be in [0,1]"}
	}
	for domain, p := range c.DomainPolicies {
		if t, ok := p.Threshold(); ok && (t < 0 || t > 1) {
			return &ConfigurationError{
				Field:  "domain_policies." + domain,
				Reason: "quality_threshold must be in [0,1]",
			}
		}
	}
	if c.MaxSteps < 0 {
		return &ConfigurationError{Field: "max_steps", Reason: "must be non-negative"}
	}

	// A zero threshold is honored as "accept every draft"; NewConfig seeds
	// the default.
	if len(c.CascadeComplexities) == 0 {
		c.CascadeComplexities = complexity.DefaultCascadeTiers()
	}
	if c.MaxSteps == 0 {
		c.MaxSteps = DefaultMaxSteps
	}
	if c.Pricing == nil {
		c.Pricing = pricing.DefaultTable()
	}
	return nil
}
