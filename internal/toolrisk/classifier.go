// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package toolrisk

import (
	"fmt"
	"strings"

	"github.com/cascadeflow/cascadeflow-go/internal/chat"
)

// =============================================================================
// RISK TIERS
// =============================================================================

// Tier is a tool's potential for harm, ordered by severity.
type Tier int

const (
	// TierLow - read-only operations, no side effects.
	TierLow Tier = iota
	// TierMedium - external reads or queries; reversible side effects at most.
	TierMedium
	// TierHigh - writes, mutations, code execution.
	TierHigh
	// TierCritical - destructive, irreversible, or outward-facing actions.
	TierCritical
)

// String returns the human-readable tier name.
func (t Tier) String() string {
	switch t {
	case TierLow:
		return "Low"
	case TierMedium:
		return "Medium"
	case TierHigh:
		return "High"
	case TierCritical:
		return "Critical"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// ForcesEscalation reports whether this tier must never be approved by the
// drafter alone.
func (t Tier) ForcesEscalation() bool {
	return t >= TierHigh
}

// =============================================================================
// CLASSIFICATION RESULTS
// =============================================================================

// Classification is the risk assessment of a single tool.
type Classification struct {
	Tool       string   `json:"tool"`
	Tier       Tier     `json:"tier"`
	Confidence float64  `json:"confidence"`
	Evidence   []string `json:"evidence,omitempty"`
	// Defaulted is true when no table entry matched and the Medium default
	// was applied. The confidence is then a flag value, not a measurement.
	Defaulted bool `json:"defaulted,omitempty"`
}

// SetClassification is the aggregate assessment of a bound tool set.
type SetClassification struct {
	MaxTier Tier             `json:"max_tier"`
	PerTool []Classification `json:"per_tool"`
	// ForceVerifier is true when the aggregate tier is High or Critical.
	ForceVerifier bool `json:"force_verifier"`
}

// =============================================================================
// CLASSIFIER
// =============================================================================

// Classifier scores tools against the built-in tier tables. Classifier is
// stateless and safe for concurrent use.
type Classifier struct{}

// NewClassifier returns the table-driven classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify assesses a single tool from its name and description.
func (c *Classifier) Classify(tool chat.ToolDefinition) Classification {
	name := strings.ToLower(tool.Name)
	desc := strings.ToLower(tool.Description)

	scores := make(map[Tier]float64, len(riskTables))
	evidence := make(map[Tier][]string, len(riskTables))
	total := 0.0

	for _, table := range riskTables {
		for _, n := range table.names {
			if strings.Contains(name, n) {
				scores[table.tier] += nameMatchWeight
				evidence[table.tier] = append(evidence[table.tier], "name:"+n)
			}
		}
		for _, p := range table.patterns {
			if p.MatchString(name) {
				scores[table.tier] += patternMatchWeight
				evidence[table.tier] = append(evidence[table.tier], "pattern:"+p.String())
			}
		}
		for _, k := range table.keywords {
			if strings.Contains(desc, k) {
				scores[table.tier] += descriptionMatchWeight
				evidence[table.tier] = append(evidence[table.tier], "desc:"+k)
			}
		}
		total += scores[table.tier]
	}

	if total == 0 {
		// Unrecognized tool: conservative middle-of-the-road default.
		return Classification{
			Tool:       tool.Name,
			Tier:       TierMedium,
			Confidence: defaultConfidence,
			Defaulted:  true,
		}
	}

	// Highest score wins; ties break toward the higher-severity tier.
	best := TierLow
	bestScore := -1.0
	for _, table := range riskTables {
		s := scores[table.tier]
		if s > bestScore || (s == bestScore && table.tier > best) {
			best = table.tier
			bestScore = s
		}
	}

	return Classification{
		Tool:       tool.Name,
		Tier:       best,
		Confidence: bestScore / total,
		Evidence:   evidence[best],
	}
}

// ClassifySet assesses a bound tool set. The aggregate tier is the maximum
// across tools; ForceVerifier is set when that maximum reaches High.
// An empty set classifies as Low with no escalation.
func (c *Classifier) ClassifySet(tools []chat.ToolDefinition) SetClassification {
	result := SetClassification{MaxTier: TierLow}
	for _, tool := range tools {
		cls := c.Classify(tool)
		result.PerTool = append(result.PerTool, cls)
		if cls.Tier > result.MaxTier {
			result.MaxTier = cls.Tier
		}
	}
	result.ForceVerifier = result.MaxTier.ForcesEscalation()
	return result
}

// ClassifyCalls assesses the tools actually invoked by a drafter response,
// looking each call up in the bound definitions. Calls naming unknown tools
// classify by name alone with an empty description.
func (c *Classifier) ClassifyCalls(calls []chat.ToolCall, bound []chat.ToolDefinition) SetClassification {
	byName := make(map[string]chat.ToolDefinition, len(bound))
	for _, def := range bound {
		byName[strings.ToLower(def.Name)] = def
	}

	defs := make([]chat.ToolDefinition, 0, len(calls))
	for _, call := range calls {
		if def, ok := byName[strings.ToLower(call.Name)]; ok {
			defs = append(defs, def)
		} else {
			defs = append(defs, chat.ToolDefinition{Name: call.Name})
		}
	}
	return c.ClassifySet(defs)
}
