// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cascadeflow/cascadeflow-go/internal/cascade"
	"github.com/cascadeflow/cascadeflow-go/internal/chat"
	"github.com/cascadeflow/cascadeflow-go/internal/provider"
)

// =============================================================================
// CALLER AND TOOLS
// =============================================================================

// Caller produces one assistant message per call. Both a raw provider
// model and a cascade orchestrator satisfy this; the loop does not care
// which models answered underneath.
type Caller interface {
	Invoke(ctx context.Context, messages []chat.Message, tools []chat.ToolDefinition, opts *provider.CallOptions) (chat.Message, error)
}

// Handler executes one tool call and returns its textual result.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Tool pairs a definition advertised to the model with the handler that
// actually runs it.
type Tool struct {
	Definition chat.ToolDefinition
	Handler    Handler
}

// =============================================================================
// RUN RESULTS
// =============================================================================

// Status tags how a run ended.
type Status string

const (
	// StatusCompleted - the model produced a final answer with no tool calls.
	StatusCompleted Status = "completed"
	// StatusMaxStepsReached - the step budget ran out with tools still pending.
	StatusMaxStepsReached Status = "max_steps_reached"
)

// ToolExecution is one entry of the per-run tool log.
type ToolExecution struct {
	Step      int            `json:"step"`
	CallID    string         `json:"call_id"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    string         `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// RunResult is the outcome of one agent run.
type RunResult struct {
	// FinalMessage is the last assistant message produced.
	FinalMessage chat.Message `json:"final_message"`
	// Messages is the full transcript including tool messages.
	Messages []chat.Message `json:"messages"`
	// Status reports how the run ended.
	Status Status `json:"status"`
	// Steps is the number of model calls made.
	Steps int `json:"steps"`
	// ToolLog records every tool execution attempted.
	ToolLog []ToolExecution `json:"tool_log,omitempty"`
}

// =============================================================================
// LOOP
// =============================================================================

// Loop drives model calls and local tool execution until the model stops
// requesting tools or the step budget is exhausted. Safe for concurrent
// runs; per-run state lives on the stack.
type Loop struct {
	caller   Caller
	tools    []Tool
	byName   map[string]Handler
	maxSteps int
	logger   *zap.Logger
}

// Option customizes a Loop.
type Option func(*Loop)

// WithMaxSteps caps the number of model calls per run.
func WithMaxSteps(n int) Option {
	return func(l *Loop) { l.maxSteps = n }
}

// WithLogger attaches a logger; the default is a nop logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// DefaultMaxSteps bounds runaway tool loops.
const DefaultMaxSteps = 8

// New builds a loop over the given caller and tool set.
func New(caller Caller, tools []Tool, opts ...Option) (*Loop, error) {
	if caller == nil {
		return nil, fmt.Errorf("agent: caller is required")
	}

	byName := make(map[string]Handler, len(tools))
	for _, t := range tools {
		name := strings.ToLower(strings.TrimSpace(t.Definition.Name))
		if name == "" {
			return nil, fmt.Errorf("agent: tool with empty name")
		}
		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("agent: duplicate tool %q", name)
		}
		byName[name] = t.Handler
	}

	l := &Loop{
		caller:   caller,
		tools:    tools,
		byName:   byName,
		maxSteps: DefaultMaxSteps,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.maxSteps <= 0 {
		return nil, fmt.Errorf("agent: max steps must be positive, got %d", l.maxSteps)
	}
	return l, nil
}

// NewCascade builds a loop that calls through a cascade orchestrator and
// adopts the orchestrator's configured step budget. An explicit
// WithMaxSteps option still wins.
func NewCascade(o *cascade.Orchestrator, tools []Tool, opts ...Option) (*Loop, error) {
	if o == nil {
		return nil, fmt.Errorf("agent: orchestrator is required")
	}
	opts = append([]Option{WithMaxSteps(o.Config().MaxSteps)}, opts...)
	return New(o, tools, opts...)
}

// definitions returns the advertised tool definitions in registration order.
func (l *Loop) definitions() []chat.ToolDefinition {
	defs := make([]chat.ToolDefinition, len(l.tools))
	for i, t := range l.tools {
		defs[i] = t.Definition
	}
	return defs
}

// Run executes the loop starting from the given transcript. Model call
// failures propagate; tool handler failures do not.
func (l *Loop) Run(ctx context.Context, messages []chat.Message, opts *provider.CallOptions) (*RunResult, error) {
	transcript := make([]chat.Message, len(messages))
	copy(transcript, messages)

	result := &RunResult{Status: StatusMaxStepsReached}
	defs := l.definitions()

	for step := 1; step <= l.maxSteps; step++ {
		msg, err := l.caller.Invoke(ctx, transcript, defs, opts)
		if err != nil {
			return nil, err
		}
		result.Steps = step
		result.FinalMessage = msg
		transcript = append(transcript, msg)

		if !msg.HasToolCalls() {
			result.Status = StatusCompleted
			break
		}

		for _, call := range msg.ToolCalls {
			exec := l.execute(ctx, step, call)
			result.ToolLog = append(result.ToolLog, exec)

			content := exec.Result
			if exec.Error != "" {
				content = exec.Error
			}
			transcript = append(transcript, chat.ToolResult(call.ID, content))
		}
	}

	result.Messages = transcript
	return result, nil
}

// execute runs one tool call. A missing handler or a handler error turns
// into a synthesized result the model can read; the run never aborts here.
func (l *Loop) execute(ctx context.Context, step int, call chat.ToolCall) ToolExecution {
	exec := ToolExecution{
		Step:      step,
		CallID:    call.ID,
		Tool:      call.Name,
		Arguments: call.Arguments,
	}

	handler, ok := l.byName[strings.ToLower(call.Name)]
	if !ok || handler == nil {
		exec.Error = fmt.Sprintf("tool %q is not available", call.Name)
		l.logger.Warn("model requested unknown tool", zap.String("tool", call.Name))
		return exec
	}

	out, err := handler(ctx, call.Arguments)
	if err != nil {
		exec.Error = fmt.Sprintf("tool %q failed: %v", call.Name, err)
		l.logger.Warn("tool execution failed",
			zap.String("tool", call.Name),
			zap.Error(err))
		return exec
	}

	exec.Result = out
	return exec
}
