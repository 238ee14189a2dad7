// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat defines the provider-neutral conversation model used by the
// cascade engine: messages, tool calls, tool definitions, and token usage.
//
// # Key Types
//
//   - Message: one turn of a conversation (system/user/assistant/tool)
//   - ToolCall: a model-requested tool invocation with decoded arguments
//   - ToolDefinition: a callable tool the model may be bound to
//   - TokenUsage: provider-reported input/output token counts
//
// The engine never inspects provider wire formats beyond what these types
// carry. Tool-call argument decoding is lossless: arguments
// that fail to parse degrade to a {"raw": ...} map instead of failing the
// turn.
package chat
