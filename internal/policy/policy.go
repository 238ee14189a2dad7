// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package policy

import "strings"

// =============================================================================
// DOMAIN POLICY
// =============================================================================

// DomainPolicy overrides routing behavior for one domain tag.
//
// Field precedence when several are set: DirectToVerifier (never draft)
// over ForceVerifier (draft for the record, always escalate) over
// QualityThreshold (only moves the accept boundary).
type DomainPolicy struct {
	// QualityThreshold overrides the configured accept threshold when
	// non-nil.
	QualityThreshold *float64 `json:"quality_threshold,omitempty" toml:"quality_threshold"`
	// ForceVerifier drafts normally but discards the accept decision and
	// always escalates. Used for audit-style domains where the draft is
	// wanted but never trusted.
	ForceVerifier bool `json:"force_verifier,omitempty" toml:"force_verifier"`
	// DirectToVerifier skips the drafter entirely.
	DirectToVerifier bool `json:"direct_to_verifier,omitempty" toml:"direct_to_verifier"`
}

// Threshold returns the override value and whether one is set.
func (p DomainPolicy) Threshold() (float64, bool) {
	if p.QualityThreshold == nil {
		return 0, false
	}
	return *p.QualityThreshold, true
}

// =============================================================================
// DOMAIN EXTRACTION
// =============================================================================

// Metadata keys checked for the domain tag, in precedence order. The nested
// "cascadeflow" map and the flat legacy key exist because older clients
// shipped both shapes; all three must keep resolving.
const (
	domainKey       = "domain"
	nestedScopeKey  = "cascadeflow"
	legacyDomainKey = "cascadeflow_domain"
)

// ExtractDomain pulls the domain tag out of request metadata, tolerating
// the historical shapes. Returns "" when no tag is present.
func ExtractDomain(metadata map[string]any) string {
	if len(metadata) == 0 {
		return ""
	}

	if tag, ok := stringValue(metadata[domainKey]); ok {
		return normalizeTag(tag)
	}

	if nested, ok := metadata[nestedScopeKey].(map[string]any); ok {
		if tag, ok := stringValue(nested[domainKey]); ok {
			return normalizeTag(tag)
		}
	}

	if tag, ok := stringValue(metadata[legacyDomainKey]); ok {
		return normalizeTag(tag)
	}

	return ""
}

// Resolve looks up the policy for the domain carried by the metadata.
// Absent or unknown domains resolve to (zero, false), leaving routing to
// the pre-router and defaults.
func Resolve(metadata map[string]any, policies map[string]DomainPolicy) (DomainPolicy, bool) {
	tag := ExtractDomain(metadata)
	if tag == "" || len(policies) == 0 {
		return DomainPolicy{}, false
	}
	for name, p := range policies {
		if normalizeTag(name) == tag {
			return p, true
		}
	}
	return DomainPolicy{}, false
}

func stringValue(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}
