// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package quality

import (
	"math"
	"strings"
	"unicode"

	"github.com/cascadeflow/cascadeflow-go/internal/chat"
)

// =============================================================================
// WEIGHTS
// =============================================================================

// Weights holds the tunable constants for heuristic scoring. Zero values are
// not meaningful; use DefaultWeights as the base and override fields.
type Weights struct {
	// Base is the starting heuristic score before bonuses and penalties.
	Base float64
	// ShortLength is the character count past which ShortBonus applies.
	ShortLength int
	// ShortBonus is added when the text exceeds ShortLength characters.
	ShortBonus float64
	// LongLength is the character count past which LongBonus also applies.
	LongLength int
	// LongBonus is added when the text exceeds LongLength characters.
	LongBonus float64
	// SentenceBonus is added for terminal punctuation, and again for a
	// capitalized start.
	SentenceBonus float64
	// HedgePenalty is subtracted once per detected hedging phrase.
	HedgePenalty float64
	// Floor is the lowest heuristic score; near-empty text scores exactly
	// this, never lower.
	Floor float64
	// Ceiling is the highest heuristic score.
	Ceiling float64
	// MinLength is the character count below which the text short-circuits
	// to Floor.
	MinLength int
}

// DefaultWeights returns the documented default scoring constants.
func DefaultWeights() Weights {
	return Weights{
		Base:          0.50,
		ShortLength:   50,
		ShortBonus:    0.15,
		LongLength:    200,
		LongBonus:     0.10,
		SentenceBonus: 0.05,
		HedgePenalty:  0.10,
		Floor:         0.10,
		Ceiling:       1.0,
		MinLength:     10,
	}
}

// hedgePhrases are the uncertainty markers penalized by the heuristic path.
// Matching is case-insensitive on the whole text.
var hedgePhrases = []string{
	"i think",
	"i believe",
	"maybe",
	"perhaps",
	"i'm not sure",
	"i am not sure",
	"it seems",
	"possibly",
	"i guess",
	"not certain",
}

// =============================================================================
// SCORER
// =============================================================================

// Scorer computes confidence scores for drafted responses. The zero value is
// not usable; construct with NewScorer.
type Scorer struct {
	weights Weights
}

// NewScorer returns a scorer with the given weights.
func NewScorer(w Weights) *Scorer {
	return &Scorer{weights: w}
}

// Score returns a confidence in [0,1] for a drafted assistant message.
func (s *Scorer) Score(msg chat.Message) float64 {
	// Tool-call bypass: structurally complete regardless of text.
	if msg.HasToolCalls() {
		return 1.0
	}

	if len(msg.LogProbs) > 0 {
		return scoreFromLogProbs(msg.LogProbs)
	}

	return s.scoreHeuristic(msg.TrimmedContent())
}

// scoreFromLogProbs converts per-token log-probabilities into a confidence:
// exp(mean logprob), clamped to [0,1].
func scoreFromLogProbs(logprobs []float64) float64 {
	sum := 0.0
	for _, lp := range logprobs {
		sum += lp
	}
	mean := sum / float64(len(logprobs))
	return clamp(math.Exp(mean), 0, 1)
}

// scoreHeuristic scores plain text by surface features.
func (s *Scorer) scoreHeuristic(text string) float64 {
	w := s.weights

	if len(text) < w.MinLength {
		return w.Floor
	}

	score := w.Base

	if len(text) > w.ShortLength {
		score += w.ShortBonus
	}
	if len(text) > w.LongLength {
		score += w.LongBonus
	}

	if endsSentence(text) {
		score += w.SentenceBonus
	}
	if startsCapitalized(text) {
		score += w.SentenceBonus
	}

	lower := strings.ToLower(text)
	for _, phrase := range hedgePhrases {
		if strings.Contains(lower, phrase) {
			score -= w.HedgePenalty
		}
	}

	return clamp(score, w.Floor, w.Ceiling)
}

// endsSentence reports whether the text ends with terminal punctuation.
// Empty text has no sentence shape; both checks tolerate it so a
// zero MinLength cannot panic the scorer.
func endsSentence(text string) bool {
	runes := []rune(text)
	if len(runes) == 0 {
		return false
	}
	last := runes[len(runes)-1]
	return last == '.' || last == '!' || last == '?' || last == ':' || last == '`'
}

// startsCapitalized reports whether the text starts with an upper-case
// letter or a digit (numbered answers count as structured).
func startsCapitalized(text string) bool {
	runes := []rune(text)
	if len(runes) == 0 {
		return false
	}
	return unicode.IsUpper(runes[0]) || unicode.IsDigit(runes[0])
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
