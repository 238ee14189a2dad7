// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pricing

import "strings"

// =============================================================================
// PRICE TABLE
// =============================================================================

// Price holds per-million-token rates in USD for one model.
type Price struct {
	// InputPerMillion is the USD cost per million input tokens.
	InputPerMillion float64 `json:"input_per_million"`
	// OutputPerMillion is the USD cost per million output tokens.
	OutputPerMillion float64 `json:"output_per_million"`
}

// Cost returns the USD cost for the given token counts at this price.
func (p Price) Cost(inputTokens, outputTokens int) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * p.InputPerMillion
	outputCost := float64(outputTokens) / 1_000_000 * p.OutputPerMillion
	return inputCost + outputCost
}

// Table maps provider-qualified model names to prices. A Table is immutable
// reference data after construction and safe for concurrent lookups.
type Table struct {
	prices map[string]Price
}

// NewTable builds a table from the given price map. The map is copied; model
// names are normalized to lower case and the provider prefix is kept as-is.
func NewTable(prices map[string]Price) *Table {
	copied := make(map[string]Price, len(prices))
	for name, p := range prices {
		copied[normalize(name)] = p
	}
	return &Table{prices: copied}
}

// normalize lower-cases a model name for lookup.
func normalize(model string) string {
	return strings.ToLower(strings.TrimSpace(model))
}

// Lookup returns the price for a model. Lookup tolerates a provider prefix
// on either side: "openai/gpt-4o-mini" finds a "gpt-4o-mini" entry and vice
// versa. The second return is false when the model is unknown.
func (t *Table) Lookup(model string) (Price, bool) {
	name := normalize(model)
	if p, ok := t.prices[name]; ok {
		return p, true
	}
	// Strip provider prefix ("openai/gpt-4o-mini" -> "gpt-4o-mini").
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		if p, ok := t.prices[name[idx+1:]]; ok {
			return p, true
		}
	}
	return Price{}, false
}

// Models returns the model names known to the table.
func (t *Table) Models() []string {
	names := make([]string, 0, len(t.prices))
	for name := range t.prices {
		names = append(names, name)
	}
	return names
}

// =============================================================================
// DEFAULT TABLE
// =============================================================================

// DefaultTable returns the built-in price table.
//
// Rates are USD per million tokens, as published by the providers. The table
// is reference data: updating it is a data change, not a code change.
func DefaultTable() *Table {
	return NewTable(map[string]Price{
		// OpenAI
		"gpt-4o":       {InputPerMillion: 2.50, OutputPerMillion: 10.00},
		"gpt-4o-mini":  {InputPerMillion: 0.150, OutputPerMillion: 0.600},
		"gpt-4.1":      {InputPerMillion: 2.00, OutputPerMillion: 8.00},
		"gpt-4.1-mini": {InputPerMillion: 0.40, OutputPerMillion: 1.60},
		"gpt-4.1-nano": {InputPerMillion: 0.10, OutputPerMillion: 0.40},

		// Anthropic
		"claude-3-5-haiku":  {InputPerMillion: 0.80, OutputPerMillion: 4.00},
		"claude-3-5-sonnet": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
		"claude-3-opus":     {InputPerMillion: 15.00, OutputPerMillion: 75.00},

		// Popular open-weight models served via OpenRouter-style gateways.
		"llama-3.1-8b-instruct":  {InputPerMillion: 0.05, OutputPerMillion: 0.08},
		"llama-3.1-70b-instruct": {InputPerMillion: 0.35, OutputPerMillion: 0.40},
		"qwen-2.5-72b-instruct":  {InputPerMillion: 0.35, OutputPerMillion: 0.40},

		// Local inference (Ollama and friends) is free.
		"local": {},
	})
}
