// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package quality

import (
	"math"
	"strings"
	"testing"

	"github.com/cascadeflow/cascadeflow-go/internal/chat"
)

func newTestScorer() *Scorer {
	return NewScorer(DefaultWeights())
}

// TestToolCallBypass verifies that any tool-bearing response scores 1.0,
// even with empty content.
func TestToolCallBypass(t *testing.T) {
	s := newTestScorer()

	messages := []chat.Message{
		{Role: chat.RoleAssistant, ToolCalls: []chat.ToolCall{{ID: "c1", Name: "read_file"}}},
		{Role: chat.RoleAssistant, Content: "", ToolCalls: []chat.ToolCall{{ID: "c2", Name: "x"}}},
		{Role: chat.RoleAssistant, Content: "maybe?", ToolCalls: []chat.ToolCall{{ID: "c3", Name: "y"}}},
	}

	for _, msg := range messages {
		if got := s.Score(msg); got != 1.0 {
			t.Errorf("Score(tool-bearing msg) = %v, want 1.0", got)
		}
	}
}

// TestShortTextHitsFloor verifies that responses under the minimum length
// score exactly the floor, never lower.
func TestShortTextHitsFloor(t *testing.T) {
	s := newTestScorer()
	floor := DefaultWeights().Floor

	for _, text := range []string{"", "no", "ok.", "  yes  ", "123456789"} {
		got := s.Score(chat.Assistant(text))
		if got != floor {
			t.Errorf("Score(%q) = %v, want floor %v", text, got, floor)
		}
	}
}

// TestZeroMinLengthScoresEmptyText verifies the scorer stays total when a
// caller turns off the length short-circuit entirely.
func TestZeroMinLengthScoresEmptyText(t *testing.T) {
	w := DefaultWeights()
	w.MinLength = 0
	s := NewScorer(w)

	for _, text := range []string{"", "   ", "\n\t"} {
		got := s.Score(chat.Assistant(text))
		if got < 0 || got > 1 {
			t.Errorf("Score(%q) = %v, want a value in [0,1]", text, got)
		}
	}
}

// TestScoreAlwaysInRange feeds adversarial inputs and checks the invariant
// that scores stay inside [0,1].
func TestScoreAlwaysInRange(t *testing.T) {
	s := newTestScorer()

	inputs := []string{
		strings.Repeat("maybe i think perhaps i guess it seems possibly ", 50),
		strings.Repeat("A", 100000),
		"I think maybe perhaps I'm not sure it seems I guess not certain possibly",
		"\x00\x01\x02 garbage \xff",
	}

	for _, text := range inputs {
		got := s.Score(chat.Assistant(text))
		if got < 0 || got > 1 {
			t.Errorf("Score out of range: %v for %d-char input", got, len(text))
		}
	}
}

func TestHedgingLowersScore(t *testing.T) {
	s := newTestScorer()

	confident := "The answer is 42. The computation follows directly from the definition."
	hedged := "I think the answer is maybe 42, but I'm not sure it seems right."

	if s.Score(chat.Assistant(hedged)) >= s.Score(chat.Assistant(confident)) {
		t.Error("hedged text should score below confident text")
	}
}

func TestLengthBonuses(t *testing.T) {
	s := newTestScorer()

	short := "A short answer."
	long := "A longer answer. " + strings.Repeat("It elaborates with complete sentences and detail. ", 6)

	if s.Score(chat.Assistant(long)) <= s.Score(chat.Assistant(short)) {
		t.Error("long structured text should outscore short text")
	}
}

func TestLogProbPath(t *testing.T) {
	s := newTestScorer()

	// mean logprob -0.1 -> exp(-0.1) ~ 0.905
	msg := chat.Message{
		Role:     chat.RoleAssistant,
		Content:  "hi", // would hit the floor heuristically
		LogProbs: []float64{-0.1, -0.1, -0.1},
	}
	got := s.Score(msg)
	want := math.Exp(-0.1)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("logprob score = %v, want %v", got, want)
	}

	// Strongly negative logprobs clamp toward zero, never below.
	msg.LogProbs = []float64{-50, -50}
	if got := s.Score(msg); got < 0 || got > 0.001 {
		t.Errorf("low-confidence logprob score = %v, want ~0", got)
	}
}

// TestLogProbsPreferredOverHeuristics: when logprobs are present the surface
// heuristics are ignored entirely.
func TestLogProbsPreferredOverHeuristics(t *testing.T) {
	s := newTestScorer()

	polished := "A very polished and complete answer with good structure throughout."
	msg := chat.Message{Role: chat.RoleAssistant, Content: polished, LogProbs: []float64{-3.0}}

	want := math.Exp(-3.0)
	if got := s.Score(msg); math.Abs(got-want) > 1e-9 {
		t.Errorf("score = %v, want logprob-derived %v", got, want)
	}
}
