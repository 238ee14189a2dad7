// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cascade

import (
	"fmt"
	"sync"
	"time"

	"github.com/cascadeflow/cascadeflow-go/internal/chat"
	"github.com/cascadeflow/cascadeflow-go/internal/complexity"
)

// =============================================================================
// ROUTING REASONS
// =============================================================================

// Reason tags why a request was routed the way it was. Stable strings,
// intended for logs, billing, and dashboards.
type Reason string

const (
	// ReasonDraftAccepted - the draft passed the quality gate.
	ReasonDraftAccepted Reason = "draft_accepted"
	// ReasonQualityBelowThreshold - the draft scored under the gate.
	ReasonQualityBelowThreshold Reason = "quality_below_threshold"
	// ReasonDomainDirect - domain policy skipped the drafter entirely.
	ReasonDomainDirect Reason = "domain_direct_to_verifier"
	// ReasonDomainForced - domain policy discarded the accept decision.
	ReasonDomainForced Reason = "domain_force_verifier"
	// ReasonToolRisk - dangerous bound tools forced the verifier.
	ReasonToolRisk Reason = "tool_risk_escalation"
	// ReasonToolCallRisk - the draft's own tool calls forced the verifier.
	ReasonToolCallRisk Reason = "tool_call_risk_escalation"
	// ReasonComplexity - the pre-router withheld cascading.
	ReasonComplexity Reason = "complexity_direct_to_verifier"
)

// =============================================================================
// RESULT
// =============================================================================

// Result is the outcome of one cascaded request. A Result is created once
// per request, immutable after construction, and never shared across
// requests; each call returns its own value.
type Result struct {
	// RequestID is the engine-assigned identifier for this request.
	RequestID string `json:"request_id"`

	// Message is the final assistant message.
	Message chat.Message `json:"message"`

	// ModelUsed is the model that produced the final content.
	ModelUsed string `json:"model_used"`

	// Accepted is true when the drafter's response was accepted as final.
	Accepted bool `json:"accepted"`

	// DraftScore is the drafter's quality score; nil when the drafter was
	// never called.
	DraftScore *float64 `json:"draft_score,omitempty"`

	// Reason tags the deciding routing factor.
	Reason Reason `json:"reason"`

	// Complexity is the pre-router's assessment of the query.
	Complexity complexity.Tier `json:"complexity"`

	// Domain is the resolved domain tag, if any.
	Domain string `json:"domain,omitempty"`

	// DrafterCost and VerifierCost are the USD costs of the calls actually
	// made; zero for calls that never happened.
	DrafterCost  float64 `json:"drafter_cost"`
	VerifierCost float64 `json:"verifier_cost"`

	// TotalCost is DrafterCost + VerifierCost.
	TotalCost float64 `json:"total_cost"`

	// SavingsPercent compares TotalCost with a verifier-only baseline over
	// the same token volume. Negative when escalation cost extra.
	SavingsPercent float64 `json:"savings_percent"`

	// Latency is the wall time of the whole request.
	Latency time.Duration `json:"latency"`
}

// String returns a one-line summary for logs.
func (r Result) String() string {
	return fmt.Sprintf("%s [%s] accepted=%v cost=$%.6f savings=%.1f%% %s",
		r.ModelUsed, r.Reason, r.Accepted, r.TotalCost, r.SavingsPercent, r.Latency)
}

// =============================================================================
// SESSION STATS
// =============================================================================

// Stats accumulates cascade outcomes across requests. Safe for concurrent
// use.
type Stats struct {
	mu sync.RWMutex

	// TotalRequests is the number of completed requests recorded.
	TotalRequests int `json:"total_requests"`
	// DraftsAccepted counts requests settled by the drafter.
	DraftsAccepted int `json:"drafts_accepted"`
	// Escalations counts requests that reached the verifier.
	Escalations int `json:"escalations"`
	// TotalCost is the cumulative USD spend.
	TotalCost float64 `json:"total_cost"`
	// TotalSavings is the cumulative USD saved vs verifier-only.
	TotalSavings float64 `json:"total_savings"`
}

// NewStats returns an empty stats accumulator.
func NewStats() *Stats {
	return &Stats{}
}

// Record folds one result into the totals.
func (s *Stats) Record(r Result, savingsUSD float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalRequests++
	if r.Accepted {
		s.DraftsAccepted++
	} else {
		s.Escalations++
	}
	s.TotalCost += r.TotalCost
	s.TotalSavings += savingsUSD
}

// Snapshot returns a copy of the current totals.
func (s *Stats) Snapshot() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		TotalRequests:  s.TotalRequests,
		DraftsAccepted: s.DraftsAccepted,
		Escalations:    s.Escalations,
		TotalCost:      s.TotalCost,
		TotalSavings:   s.TotalSavings,
	}
}

// AcceptRate returns the fraction of requests settled by the drafter, or 0
// before any request completes.
func (s *Stats) AcceptRate() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.DraftsAccepted) / float64(s.TotalRequests)
}

// Summary returns a one-line human-readable summary.
func (s *Stats) Summary() string {
	snap := s.Snapshot()
	if snap.TotalRequests == 0 {
		return "no cascaded requests yet"
	}
	return fmt.Sprintf("%d requests (%d accepted, %d escalated) | cost $%.4f | saved $%.4f",
		snap.TotalRequests, snap.DraftsAccepted, snap.Escalations, snap.TotalCost, snap.TotalSavings)
}
