// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cascade

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadeflow/cascadeflow-go/internal/chat"
	"github.com/cascadeflow/cascadeflow-go/internal/policy"
	"github.com/cascadeflow/cascadeflow-go/internal/provider"
)

// fakeModel is a scripted provider.Model for orchestrator tests.
type fakeModel struct {
	reply  chat.Message
	err    error
	chunks []string
	calls  atomic.Int64
}

func (f *fakeModel) Invoke(_ context.Context, _ []chat.Message, _ []chat.ToolDefinition, _ *provider.CallOptions) (chat.Message, error) {
	f.calls.Add(1)
	if f.err != nil {
		return chat.Message{}, f.err
	}
	return f.reply, nil
}

func (f *fakeModel) StreamInvoke(_ context.Context, _ []chat.Message, _ []chat.ToolDefinition, _ *provider.CallOptions, fn provider.StreamFunc) (chat.Message, error) {
	f.calls.Add(1)
	if f.err != nil {
		return chat.Message{}, f.err
	}
	for _, c := range f.chunks {
		fn(provider.Chunk{Content: c})
	}
	fn(provider.Chunk{Done: true})
	return f.reply, nil
}

// confidentReply scores 0.75 on the heuristic path: long enough,
// capitalized, terminal punctuation, no hedging.
func confidentReply() chat.Message {
	msg := chat.Assistant("The capital of France is Paris, which has been the seat of government for centuries.")
	msg.Usage = &chat.TokenUsage{InputTokens: 1000, OutputTokens: 1000}
	return msg
}

func testConfig() Config {
	cfg := NewConfig(
		ModelConfig{Name: "drafter-small", InputPerMillion: 0.1, OutputPerMillion: 0.2, SupportsTools: true},
		ModelConfig{Name: "verifier-large", InputPerMillion: 10, OutputPerMillion: 20, SupportsTools: true},
	)
	cfg.EnablePreRouter = false
	return cfg
}

func userReq(query string) *Request {
	return &Request{Messages: []chat.Message{chat.User(query)}}
}

func TestRun_AcceptsConfidentDraft(t *testing.T) {
	drafter := &fakeModel{reply: confidentReply()}
	verifier := &fakeModel{reply: chat.Assistant("unused")}

	o, err := NewOrchestrator(testConfig(), drafter, verifier)
	require.NoError(t, err)

	result, err := o.Run(context.Background(), userReq("What is the capital of France?"))
	require.NoError(t, err)

	assert.True(t, result.Accepted)
	assert.Equal(t, ReasonDraftAccepted, result.Reason)
	assert.Equal(t, "drafter-small", result.ModelUsed)
	assert.Equal(t, int64(0), verifier.calls.Load(), "verifier must not be called for an accepted draft")
	assert.Zero(t, result.VerifierCost)
	require.NotNil(t, result.DraftScore)
	assert.GreaterOrEqual(t, *result.DraftScore, 0.7)
	assert.NotEmpty(t, result.RequestID)
}

func TestRun_EscalatesLowQualityDraft(t *testing.T) {
	drafter := &fakeModel{reply: chat.Assistant("no")}
	verifier := &fakeModel{reply: confidentReply()}

	o, err := NewOrchestrator(testConfig(), drafter, verifier)
	require.NoError(t, err)

	result, err := o.Run(context.Background(), userReq("Is the sky green?"))
	require.NoError(t, err)

	assert.False(t, result.Accepted)
	assert.Equal(t, ReasonQualityBelowThreshold, result.Reason)
	assert.Equal(t, "verifier-large", result.ModelUsed)
	assert.Equal(t, int64(1), drafter.calls.Load())
	assert.Equal(t, int64(1), verifier.calls.Load())
	require.NotNil(t, result.DraftScore)
	assert.Less(t, *result.DraftScore, 0.7)
	// Both calls are paid for.
	assert.InDelta(t, result.DrafterCost+result.VerifierCost, result.TotalCost, 1e-12)
	assert.Less(t, result.SavingsPercent, 0.0, "escalation costs more than verifier-only")
}

func TestRun_HighRiskToolForcesVerifier(t *testing.T) {
	drafter := &fakeModel{reply: confidentReply()}
	verifier := &fakeModel{reply: confidentReply()}

	cfg := testConfig()
	cfg.QualityThreshold = 0.0 // even a free pass cannot beat tool risk
	o, err := NewOrchestrator(cfg, drafter, verifier)
	require.NoError(t, err)

	req := userReq("Remove the old records")
	req.Tools = []chat.ToolDefinition{{Name: "delete_user", Description: "Delete a user account"}}

	result, err := o.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int64(0), drafter.calls.Load(), "drafter must be skipped for high-risk tools")
	assert.Equal(t, ReasonToolRisk, result.Reason)
	assert.Equal(t, "verifier-large", result.ModelUsed)
	assert.Nil(t, result.DraftScore)
}

func TestRun_LowRiskToolsStillCascade(t *testing.T) {
	draft := confidentReply()
	drafter := &fakeModel{reply: draft}
	verifier := &fakeModel{reply: chat.Assistant("unused")}

	o, err := NewOrchestrator(testConfig(), drafter, verifier)
	require.NoError(t, err)

	req := userReq("What is the weather like today in Lisbon?")
	req.Tools = []chat.ToolDefinition{{Name: "get_weather", Description: "Read the current weather"}}

	result, err := o.Run(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, result.Accepted)
	assert.Equal(t, int64(0), verifier.calls.Load())
}

func TestRun_DraftToolCallRiskEscalates(t *testing.T) {
	draft := chat.Assistant("")
	draft.ToolCalls = []chat.ToolCall{{ID: "c1", Name: "delete_everything", Arguments: map[string]any{}}}
	drafter := &fakeModel{reply: draft}
	verifier := &fakeModel{reply: confidentReply()}

	o, err := NewOrchestrator(testConfig(), drafter, verifier)
	require.NoError(t, err)

	req := userReq("Tidy up my files")
	req.Tools = []chat.ToolDefinition{{Name: "list_files", Description: "List files in a directory"}}

	result, err := o.Run(context.Background(), req)
	require.NoError(t, err)

	// The tool-call bypass scores the draft 1.0, but the call itself names
	// a destructive tool the drafter is not trusted with.
	assert.False(t, result.Accepted)
	assert.Equal(t, ReasonToolCallRisk, result.Reason)
	assert.Equal(t, int64(1), verifier.calls.Load())
}

func TestRun_DomainDirectToVerifier(t *testing.T) {
	drafter := &fakeModel{reply: confidentReply()}
	verifier := &fakeModel{reply: confidentReply()}

	cfg := testConfig()
	cfg.DomainPolicies = map[string]policy.DomainPolicy{
		"medical": {DirectToVerifier: true},
	}
	o, err := NewOrchestrator(cfg, drafter, verifier)
	require.NoError(t, err)

	req := userReq("What is the right dosage?")
	req.Metadata = map[string]any{"domain": "Medical"}

	result, err := o.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int64(0), drafter.calls.Load())
	assert.Equal(t, ReasonDomainDirect, result.Reason)
	assert.Equal(t, "medical", result.Domain)
	assert.Zero(t, result.SavingsPercent, "direct route pays exactly the baseline")
}

func TestRun_DomainForceVerifierOverridesAccept(t *testing.T) {
	drafter := &fakeModel{reply: confidentReply()}
	verifier := &fakeModel{reply: confidentReply()}

	cfg := testConfig()
	cfg.DomainPolicies = map[string]policy.DomainPolicy{
		"legal": {ForceVerifier: true},
	}
	o, err := NewOrchestrator(cfg, drafter, verifier)
	require.NoError(t, err)

	req := userReq("Summarize this contract clause please.")
	req.Metadata = map[string]any{"domain": "legal"}

	result, err := o.Run(context.Background(), req)
	require.NoError(t, err)

	// The draft is still made (and paid for) but its accept is discarded.
	assert.Equal(t, int64(1), drafter.calls.Load())
	assert.Equal(t, int64(1), verifier.calls.Load())
	assert.False(t, result.Accepted)
	assert.Equal(t, ReasonDomainForced, result.Reason)
	require.NotNil(t, result.DraftScore)
}

func TestRun_DomainThresholdOverride(t *testing.T) {
	drafter := &fakeModel{reply: confidentReply()} // scores 0.75
	verifier := &fakeModel{reply: confidentReply()}

	strict := 0.95
	cfg := testConfig()
	cfg.DomainPolicies = map[string]policy.DomainPolicy{
		"finance": {QualityThreshold: &strict},
	}
	o, err := NewOrchestrator(cfg, drafter, verifier)
	require.NoError(t, err)

	req := userReq("How should I allocate this portfolio?")
	req.Metadata = map[string]any{"domain": "finance"}

	result, err := o.Run(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, result.Accepted, "0.75 must fail a 0.95 domain threshold")
	assert.Equal(t, ReasonQualityBelowThreshold, result.Reason)
}

func TestRun_PreRouterSendsHardQueriesDirect(t *testing.T) {
	drafter := &fakeModel{reply: confidentReply()}
	verifier := &fakeModel{reply: confidentReply()}

	cfg := testConfig()
	cfg.EnablePreRouter = true
	o, err := NewOrchestrator(cfg, drafter, verifier)
	require.NoError(t, err)

	result, err := o.Run(context.Background(), userReq(
		"Design the architecture for a distributed payment system and explain the trade-offs between consistency and availability"))
	require.NoError(t, err)

	assert.Equal(t, int64(0), drafter.calls.Load())
	assert.Equal(t, ReasonComplexity, result.Reason)
}

func TestRun_ForceVerifierDomainDraftsHardQueries(t *testing.T) {
	drafter := &fakeModel{reply: confidentReply()}
	verifier := &fakeModel{reply: confidentReply()}

	cfg := testConfig()
	cfg.EnablePreRouter = true
	cfg.DomainPolicies = map[string]policy.DomainPolicy{
		"legal": {ForceVerifier: true},
	}
	o, err := NewOrchestrator(cfg, drafter, verifier)
	require.NoError(t, err)

	// An expert-tier query that the pre-router would route direct on its own.
	req := userReq("Design the architecture for our contract review pipeline and explain the trade-offs")
	req.Metadata = map[string]any{"domain": "legal"}

	result, err := o.Run(context.Background(), req)
	require.NoError(t, err)

	// The domain owns this route: the draft is still made and scored.
	assert.Equal(t, int64(1), drafter.calls.Load())
	assert.Equal(t, int64(1), verifier.calls.Load())
	assert.False(t, result.Accepted)
	assert.Equal(t, ReasonDomainForced, result.Reason)
	require.NotNil(t, result.DraftScore)
}

func TestRun_TransportErrorPropagates(t *testing.T) {
	transportErr := &provider.TransportError{Model: "drafter-small", Op: "chat", Err: errors.New("connection refused")}
	drafter := &fakeModel{err: transportErr}
	verifier := &fakeModel{reply: confidentReply()}

	o, err := NewOrchestrator(testConfig(), drafter, verifier)
	require.NoError(t, err)

	_, err = o.Run(context.Background(), userReq("Hello there, how are you?"))
	require.Error(t, err)

	var te *provider.TransportError
	assert.ErrorAs(t, err, &te)
	assert.Equal(t, int64(0), verifier.calls.Load(), "transport failure must not fall back to the verifier")
}

func TestRun_SavingsOnAcceptedDraft(t *testing.T) {
	drafter := &fakeModel{reply: confidentReply()}
	verifier := &fakeModel{reply: chat.Assistant("unused")}

	stats := NewStats()
	o, err := NewOrchestrator(testConfig(), drafter, verifier, WithStats(stats))
	require.NoError(t, err)

	result, err := o.Run(context.Background(), userReq("What is the capital of France?"))
	require.NoError(t, err)

	// 1000 in + 1000 out: drafter $0.0003 vs verifier baseline $0.03.
	assert.InDelta(t, 0.0003, result.TotalCost, 1e-9)
	assert.InDelta(t, 99.0, result.SavingsPercent, 0.1)

	snap := stats.Snapshot()
	assert.Equal(t, 1, snap.TotalRequests)
	assert.Equal(t, 1, snap.DraftsAccepted)
	assert.InDelta(t, 0.0297, snap.TotalSavings, 1e-9)
}

func TestRun_ToolsRequireCapableModels(t *testing.T) {
	cfg := testConfig()
	cfg.Drafter.SupportsTools = false
	o, err := NewOrchestrator(cfg, &fakeModel{}, &fakeModel{})
	require.NoError(t, err)

	req := userReq("Look this up for me please.")
	req.Tools = []chat.ToolDefinition{{Name: "get_weather"}}

	_, err = o.Run(context.Background(), req)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "drafter", cfgErr.Field)
}

func TestNewOrchestrator_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing drafter name", func(c *Config) { c.Drafter.Name = "" }},
		{"missing verifier name", func(c *Config) { c.Verifier.Name = "" }},
		{"threshold above one", func(c *Config) { c.QualityThreshold = 1.5 }},
		{"threshold negative", func(c *Config) { c.QualityThreshold = -0.1 }},
		{"negative max steps", func(c *Config) { c.MaxSteps = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := NewOrchestrator(cfg, &fakeModel{}, &fakeModel{})
			var cfgErr *ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestNewOrchestrator_RequiresModels(t *testing.T) {
	_, err := NewOrchestrator(testConfig(), nil, &fakeModel{})
	assert.Error(t, err)
	_, err = NewOrchestrator(testConfig(), &fakeModel{}, nil)
	assert.Error(t, err)
}

func TestInvoke_ReturnsFinalMessage(t *testing.T) {
	drafter := &fakeModel{reply: confidentReply()}
	verifier := &fakeModel{reply: chat.Assistant("unused")}

	o, err := NewOrchestrator(testConfig(), drafter, verifier)
	require.NoError(t, err)

	msg, err := o.Invoke(context.Background(), []chat.Message{chat.User("What is the capital of France?")}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, confidentReply().Content, msg.Content)
}

func TestStats_AcceptRate(t *testing.T) {
	s := NewStats()
	s.Record(Result{Accepted: true, TotalCost: 0.01}, 0.02)
	s.Record(Result{Accepted: false, TotalCost: 0.05}, -0.01)

	assert.InDelta(t, 0.5, s.AcceptRate(), 1e-9)
	snap := s.Snapshot()
	assert.Equal(t, 2, snap.TotalRequests)
	assert.Equal(t, 1, snap.Escalations)
	assert.InDelta(t, 0.06, snap.TotalCost, 1e-9)
	assert.InDelta(t, 0.01, snap.TotalSavings, 1e-9)
}
