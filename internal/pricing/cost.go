// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pricing

import "strings"

// =============================================================================
// COST COMPUTATION
// =============================================================================

// Cost returns the USD cost of a call against the table. Unknown models cost
// 0; the second return is false so the caller can surface a warning rather
// than treat it as a priced result.
func (t *Table) Cost(model string, inputTokens, outputTokens int) (float64, bool) {
	price, ok := t.Lookup(model)
	if !ok {
		return 0, false
	}
	return price.Cost(inputTokens, outputTokens), true
}

// =============================================================================
// SAVINGS
// =============================================================================

// Savings returns the USD amount saved against a verifier-only baseline.
//
// baseline is what a single verifier call over the same token volume would
// have cost; paid is the total actually spent (drafter attempt plus the
// verifier call when it happened). The result is negative when escalation
// made the cascade more expensive than going straight to the verifier.
func Savings(baseline, paid float64) float64 {
	return baseline - paid
}

// SavingsPercent returns savings as a percentage of the baseline, or 0 when
// the baseline is zero (free or unknown-priced verifier).
func SavingsPercent(baseline, paid float64) float64 {
	if baseline <= 0 {
		return 0
	}
	return (baseline - paid) / baseline * 100
}

// =============================================================================
// TOKEN ESTIMATION
// =============================================================================

// EstimateTokens estimates the token count of a text for cost projection.
// Blends a word estimate with a chars/4 estimate; coarse but stable across
// prose and code, which is all a routing estimate needs.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	chars := len(text)
	return (words + chars/4) / 2
}

// EstimateMessagesTokens estimates token usage across message contents.
func EstimateMessagesTokens(contents []string) int {
	total := 0
	for _, c := range contents {
		total += EstimateTokens(c)
	}
	return total
}
