// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractDomainShapes(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]any
		want     string
	}{
		{"top-level key", map[string]any{"domain": "Medical"}, "medical"},
		{"nested key", map[string]any{"cascadeflow": map[string]any{"domain": "LEGAL"}}, "legal"},
		{"legacy flat key", map[string]any{"cascadeflow_domain": "support"}, "support"},
		{"top-level wins over nested", map[string]any{
			"domain":      "finance",
			"cascadeflow": map[string]any{"domain": "legal"},
		}, "finance"},
		{"whitespace trimmed", map[string]any{"domain": "  Medical  "}, "medical"},
		{"absent", map[string]any{"other": "x"}, ""},
		{"nil metadata", nil, ""},
		{"non-string value ignored", map[string]any{"domain": 42}, ""},
		{"empty string ignored", map[string]any{"domain": "   "}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractDomain(tt.metadata))
		})
	}
}

func TestResolve(t *testing.T) {
	threshold := 0.9
	policies := map[string]DomainPolicy{
		"Medical": {QualityThreshold: &threshold, ForceVerifier: true},
		"legal":   {DirectToVerifier: true},
	}

	p, ok := Resolve(map[string]any{"domain": "medical"}, policies)
	require.True(t, ok, "case-insensitive lookup must match")
	assert.True(t, p.ForceVerifier)

	got, set := p.Threshold()
	require.True(t, set)
	assert.Equal(t, 0.9, got)

	_, ok = Resolve(map[string]any{"domain": "unknown"}, policies)
	assert.False(t, ok, "unknown domain resolves to no policy")

	_, ok = Resolve(nil, policies)
	assert.False(t, ok, "absent metadata resolves to no policy")
}

func TestThresholdUnset(t *testing.T) {
	var p DomainPolicy
	_, set := p.Threshold()
	assert.False(t, set)
}
