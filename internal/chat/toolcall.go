// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"encoding/json"
	"strings"
)

// =============================================================================
// TOOL CALLS
// =============================================================================

// RawArgumentsKey is the map key used when tool-call arguments cannot be
// decoded. The original encoded string is preserved under this key so the
// turn never fails on malformed provider output.
const RawArgumentsKey = "raw"

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	// ID is the provider-assigned call identifier, echoed back in the
	// answering tool message.
	ID string `json:"id"`
	// Name is the tool name being invoked.
	Name string `json:"name"`
	// Arguments is the decoded key/value argument map.
	Arguments map[string]any `json:"arguments"`
}

// DecodeArguments decodes a provider-encoded argument payload into a map.
//
// Extraction must never fail the turn: an empty payload decodes to an empty
// map, and a payload that is not valid JSON degrades to {"raw": <original>}.
func DecodeArguments(raw string) map[string]any {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return map[string]any{}
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
		return map[string]any{RawArgumentsKey: raw}
	}
	if args == nil {
		return map[string]any{}
	}
	return args
}

// =============================================================================
// TOOL DEFINITIONS
// =============================================================================

// ToolDefinition describes a callable tool bound to a request. The core uses
// definitions only for risk classification and capability binding; execution
// is always a caller-supplied handler.
type ToolDefinition struct {
	// Name is the tool identifier (e.g. "read_file", "delete_records").
	Name string `json:"name"`
	// Description is the human-readable description shown to the model.
	Description string `json:"description"`
	// Parameters is the JSON-schema-shaped parameter description.
	Parameters map[string]any `json:"parameters,omitempty"`
}
