// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/cascadeflow/cascadeflow-go/internal/chat"
)

// =============================================================================
// CALL OPTIONS
// =============================================================================

// CallOptions are forwarded opaquely into every model call. The engine
// never interprets them; timeout and cancellation semantics are whatever
// the provider layer honors.
type CallOptions struct {
	// Temperature for sampling; 0 means provider default.
	Temperature float64
	// MaxTokens caps the response length; 0 means provider default.
	MaxTokens int
	// Timeout for the individual call; 0 means the provider default.
	Timeout time.Duration
	// LogProbs requests per-token log-probabilities when supported.
	LogProbs bool
	// TraceTags are free-form tags passed through for observability.
	TraceTags map[string]string
}

// =============================================================================
// STREAMING
// =============================================================================

// Chunk is one streamed fragment of a model response.
type Chunk struct {
	// Content is the text delta carried by this chunk.
	Content string
	// Model is the model identifier, when the provider reports it.
	Model string
	// Done marks the final chunk of the stream.
	Done bool
}

// StreamFunc receives chunks as they arrive. It is called from the invoking
// goroutine; a slow callback backpressures the stream.
type StreamFunc func(Chunk)

// =============================================================================
// MODEL INTERFACE
// =============================================================================

// Model is a single invocable model. Implementations live outside the
// engine core; the bundled Client is one such implementation.
type Model interface {
	// Invoke performs one blocking call and returns the assistant message,
	// including tool calls, token usage, and log-probabilities when the
	// provider exposes them.
	Invoke(ctx context.Context, messages []chat.Message, tools []chat.ToolDefinition, opts *CallOptions) (chat.Message, error)

	// StreamInvoke performs one streaming call, forwarding chunks to fn as
	// they arrive, and returns the fully accumulated assistant message.
	StreamInvoke(ctx context.Context, messages []chat.Message, tools []chat.ToolDefinition, opts *CallOptions, fn StreamFunc) (chat.Message, error)
}

// =============================================================================
// TRANSPORT ERRORS
// =============================================================================

// TransportError wraps a failed provider call: network, auth, rate limit,
// or malformed response. It is fatal for the request and never interpreted
// as a quality signal.
type TransportError struct {
	// Model is the model that was being called.
	Model string
	// Op is "invoke" or "stream".
	Op string
	// Status is the HTTP status when applicable, else 0.
	Status int
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider %s %s failed (status %d): %v", e.Model, e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("provider %s %s failed: %v", e.Model, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}
