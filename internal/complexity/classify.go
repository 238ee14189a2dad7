// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package complexity

import (
	"fmt"
	"strings"
	"unicode"
)

// =============================================================================
// TIERS
// =============================================================================

// Tier is a query complexity level, ordered cheap to expensive.
type Tier int

const (
	// TierTrivial - greetings, one-word lookups (< 5 words, no signals).
	TierTrivial Tier = iota
	// TierSimple - basic questions, single-step reasoning.
	TierSimple
	// TierModerate - how/why questions, short multi-part asks.
	TierModerate
	// TierHard - code work, analysis, long or multi-step requests.
	TierHard
	// TierExpert - architectural decisions, trade-off evaluation.
	TierExpert
)

// String returns the human-readable tier name.
func (t Tier) String() string {
	switch t {
	case TierTrivial:
		return "Trivial"
	case TierSimple:
		return "Simple"
	case TierModerate:
		return "Moderate"
	case TierHard:
		return "Hard"
	case TierExpert:
		return "Expert"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// ParseTier parses a tier name (case-insensitive). Returns false for
// unrecognized names.
func ParseTier(s string) (Tier, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trivial":
		return TierTrivial, true
	case "simple":
		return TierSimple, true
	case "moderate":
		return TierModerate, true
	case "hard":
		return TierHard, true
	case "expert":
		return TierExpert, true
	}
	return 0, false
}

// DefaultCascadeTiers returns the tiers eligible for cascading by default.
func DefaultCascadeTiers() []Tier {
	return []Tier{TierTrivial, TierSimple, TierModerate}
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// Classification thresholds. Word counts lean low: a wrong "too easy"
// guess costs a wasted draft, not a wrong answer.
const (
	trivialMaxWords  = 5
	moderateMinWords = 12
	hardMinWords     = 40
	// deepHistoryTurns is the conversation depth past which the tier is
	// bumped one level: long contexts strain small drafters.
	deepHistoryTurns = 5
)

// expertMarkers indicate architectural or trade-off work.
var expertMarkers = []string{
	"architect",
	"design pattern",
	"trade-off",
	"tradeoff",
	"pros and cons",
	"best approach",
	"scalability",
	"migration strategy",
}

// hardMarkers indicate analysis, implementation, or debugging work.
var hardMarkers = []string{
	"implement",
	"refactor",
	"analyze",
	"optimize",
	"debug",
	"stack trace",
	"prove",
	"step by step",
}

// multiStepMarkers indicate explicitly sequenced asks.
var multiStepMarkers = []string{
	"first",
	"then",
	"finally",
	"after that",
	"and also",
}

// Classify assigns a complexity tier from the query text and the number of
// prior conversation turns.
func Classify(query string, historyTurns int) Tier {
	q := strings.ToLower(query)
	words := len(strings.Fields(query))

	tier := baseTier(q, words)

	// Deep conversations escalate one tier: the drafter has more context to
	// get wrong.
	if historyTurns > deepHistoryTurns && tier < TierExpert {
		tier++
	}

	return tier
}

func baseTier(q string, words int) Tier {
	for _, marker := range expertMarkers {
		if strings.Contains(q, marker) {
			return TierExpert
		}
	}

	hasCode := strings.Contains(q, "```")
	for _, marker := range hardMarkers {
		if strings.Contains(q, marker) {
			return TierHard
		}
	}
	if hasCode || words > hardMinWords {
		return TierHard
	}

	questions := strings.Count(q, "?")
	multiStep := 0
	for _, marker := range multiStepMarkers {
		if strings.Contains(q, marker) {
			multiStep++
		}
	}
	if questions > 1 || multiStep >= 2 || words > moderateMinWords {
		return TierModerate
	}

	if containsWord(q, "how") || containsWord(q, "why") || words >= trivialMaxWords {
		return TierSimple
	}

	return TierTrivial
}

// containsWord reports whether q contains w as a standalone word; "show"
// must not read as a how-question.
func containsWord(q, w string) bool {
	for _, field := range strings.FieldsFunc(q, isWordBoundary) {
		if field == w {
			return true
		}
	}
	return false
}

func isWordBoundary(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// Eligible reports whether the tier is in the cascade-eligible set.
func Eligible(tier Tier, cascadeTiers []Tier) bool {
	for _, t := range cascadeTiers {
		if t == tier {
			return true
		}
	}
	return false
}
