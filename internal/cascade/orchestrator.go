// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cascade

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cascadeflow/cascadeflow-go/internal/chat"
	"github.com/cascadeflow/cascadeflow-go/internal/complexity"
	"github.com/cascadeflow/cascadeflow-go/internal/policy"
	"github.com/cascadeflow/cascadeflow-go/internal/pricing"
	"github.com/cascadeflow/cascadeflow-go/internal/provider"
	"github.com/cascadeflow/cascadeflow-go/internal/quality"
	"github.com/cascadeflow/cascadeflow-go/internal/toolrisk"
)

// =============================================================================
// REQUEST
// =============================================================================

// Request is one unit of work for the orchestrator.
type Request struct {
	// Messages is the conversation so far; the last user message is the
	// query being routed.
	Messages []chat.Message
	// Tools are the tool definitions bound to this request, if any.
	Tools []chat.ToolDefinition
	// Metadata carries caller tags; the domain tag is extracted from here.
	Metadata map[string]any
	// Options are forwarded opaquely into every model call.
	Options *provider.CallOptions
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator drives the drafter-then-maybe-verifier cascade. Construct
// with NewOrchestrator; safe for concurrent use.
type Orchestrator struct {
	cfg      Config
	drafter  provider.Model
	verifier provider.Model
	scorer   *quality.Scorer
	risk     *toolrisk.Classifier
	logger   *zap.Logger
	stats    *Stats
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger attaches a logger; the default is a nop logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithStats attaches a shared stats accumulator that every completed
// request is folded into.
func WithStats(stats *Stats) Option {
	return func(o *Orchestrator) { o.stats = stats }
}

// NewOrchestrator validates the configuration and builds an orchestrator.
// Configuration problems surface here, before any request is processed.
func NewOrchestrator(cfg Config, drafter, verifier provider.Model, opts ...Option) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if drafter == nil {
		return nil, &ConfigurationError{Field: "drafter", Reason: "model implementation is required"}
	}
	if verifier == nil {
		return nil, &ConfigurationError{Field: "verifier", Reason: "model implementation is required"}
	}

	weights := quality.DefaultWeights()
	if cfg.Weights != nil {
		weights = *cfg.Weights
	}

	o := &Orchestrator{
		cfg:      cfg,
		drafter:  drafter,
		verifier: verifier,
		scorer:   quality.NewScorer(weights),
		risk:     toolrisk.NewClassifier(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Config returns a copy of the validated configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// =============================================================================
// ROUTING
// =============================================================================

// routeDecision is the outcome of the pre-call routing stage.
type routeDecision struct {
	direct bool
	reason Reason

	domain    string
	pol       policy.DomainPolicy
	hasPolicy bool
	tier      complexity.Tier
}

// route applies the decision precedence: domain direct > tool risk >
// pre-router tier > cascade attempt.
func (o *Orchestrator) route(req *Request) routeDecision {
	d := routeDecision{}
	d.domain = policy.ExtractDomain(req.Metadata)
	d.pol, d.hasPolicy = policy.Resolve(req.Metadata, o.cfg.DomainPolicies)

	query := chat.LastUserContent(req.Messages)
	d.tier = complexity.Classify(query, historyTurns(req.Messages))

	if d.hasPolicy && d.pol.DirectToVerifier {
		d.direct = true
		d.reason = ReasonDomainDirect
		return d
	}

	if len(req.Tools) > 0 {
		if set := o.risk.ClassifySet(req.Tools); set.ForceVerifier {
			o.logger.Debug("tool risk forces verifier",
				zap.String("max_tier", set.MaxTier.String()))
			d.direct = true
			d.reason = ReasonToolRisk
			return d
		}
	}

	// A forceVerifier domain always drafts; the pre-router only decides
	// routes no policy has already decided.
	forced := d.hasPolicy && d.pol.ForceVerifier
	if o.cfg.EnablePreRouter && !forced && !complexity.Eligible(d.tier, o.cfg.CascadeComplexities) {
		d.direct = true
		d.reason = ReasonComplexity
		return d
	}

	return d
}

// historyTurns counts prior user/assistant turns, excluding the current
// query and system messages.
func historyTurns(messages []chat.Message) int {
	if len(messages) == 0 {
		return 0
	}
	turns := 0
	for _, m := range messages[:len(messages)-1] {
		if m.Role == chat.RoleUser || m.Role == chat.RoleAssistant {
			turns++
		}
	}
	return turns
}

// effectiveThreshold applies the domain override when present.
func (o *Orchestrator) effectiveThreshold(d routeDecision) float64 {
	if d.hasPolicy {
		if t, ok := d.pol.Threshold(); ok {
			return t
		}
	}
	return o.cfg.QualityThreshold
}

// validateRequest rejects impossible requests before any provider call.
func (o *Orchestrator) validateRequest(req *Request) error {
	if len(req.Tools) == 0 {
		return nil
	}
	if !o.cfg.Drafter.SupportsTools {
		return &ConfigurationError{Field: "drafter", Reason: "tools bound but model does not support tool calling"}
	}
	if !o.cfg.Verifier.SupportsTools {
		return &ConfigurationError{Field: "verifier", Reason: "tools bound but model does not support tool calling"}
	}
	return nil
}

// =============================================================================
// NON-STREAMING RUN
// =============================================================================

// Run executes one cascaded request and returns its Result. Transport
// failures from either model propagate untouched; they are never treated
// as a quality signal and never retried here.
func (o *Orchestrator) Run(ctx context.Context, req *Request) (*Result, error) {
	if err := o.validateRequest(req); err != nil {
		return nil, err
	}

	start := time.Now()
	decision := o.route(req)

	if decision.direct {
		return o.runDirect(ctx, req, decision, start)
	}
	return o.runCascade(ctx, req, decision, start)
}

// runDirect calls the verifier once, skipping the drafter entirely.
func (o *Orchestrator) runDirect(ctx context.Context, req *Request, d routeDecision, start time.Time) (*Result, error) {
	msg, err := o.verifier.Invoke(ctx, req.Messages, req.Tools, req.Options)
	if err != nil {
		return nil, err
	}

	verifierCost := o.callCost(o.cfg.Verifier, req.Messages, msg)
	result := o.finishResult(Result{
		Message:      msg,
		ModelUsed:    o.cfg.Verifier.Name,
		Accepted:     false,
		Reason:       d.reason,
		Complexity:   d.tier,
		Domain:       d.domain,
		VerifierCost: verifierCost,
		TotalCost:    verifierCost,
	}, verifierCost, start)
	return result, nil
}

// runCascade tries the drafter, gates on quality, and escalates if needed.
func (o *Orchestrator) runCascade(ctx context.Context, req *Request, d routeDecision, start time.Time) (*Result, error) {
	draft, err := o.drafter.Invoke(ctx, req.Messages, req.Tools, req.Options)
	if err != nil {
		return nil, err
	}

	score := o.scorer.Score(draft)
	threshold := o.effectiveThreshold(d)
	drafterCost := o.callCost(o.cfg.Drafter, req.Messages, draft)

	// Tool calls the draft wants to make are themselves risk-gated: a Low
	// tool set can still name a dangerous unbound tool.
	callRisk := false
	if draft.HasToolCalls() {
		callRisk = o.risk.ClassifyCalls(draft.ToolCalls, req.Tools).ForceVerifier
	}

	forced := d.hasPolicy && d.pol.ForceVerifier
	accepted := score >= threshold && !forced && !callRisk

	o.logger.Debug("draft scored",
		zap.Float64("score", score),
		zap.Float64("threshold", threshold),
		zap.Bool("accepted", accepted),
		zap.Bool("domain_forced", forced),
		zap.Bool("call_risk", callRisk))

	if accepted {
		// Baseline: what the verifier would have charged for this call.
		baseline := o.hypotheticalVerifierCost(req.Messages, draft)
		result := o.finishResult(Result{
			Message:     draft,
			ModelUsed:   o.cfg.Drafter.Name,
			Accepted:    true,
			DraftScore:  &score,
			Reason:      ReasonDraftAccepted,
			Complexity:  d.tier,
			Domain:      d.domain,
			DrafterCost: drafterCost,
			TotalCost:   drafterCost,
		}, baseline, start)
		return result, nil
	}

	final, err := o.verifier.Invoke(ctx, req.Messages, req.Tools, req.Options)
	if err != nil {
		return nil, err
	}

	reason := ReasonQualityBelowThreshold
	switch {
	case forced:
		reason = ReasonDomainForced
	case callRisk:
		reason = ReasonToolCallRisk
	}

	verifierCost := o.callCost(o.cfg.Verifier, req.Messages, final)
	result := o.finishResult(Result{
		Message:      final,
		ModelUsed:    o.cfg.Verifier.Name,
		Accepted:     false,
		DraftScore:   &score,
		Reason:       reason,
		Complexity:   d.tier,
		Domain:       d.domain,
		DrafterCost:  drafterCost,
		VerifierCost: verifierCost,
		TotalCost:    drafterCost + verifierCost,
	}, verifierCost, start)
	return result, nil
}

// finishResult stamps identity, savings, and latency, and records stats.
func (o *Orchestrator) finishResult(r Result, baseline float64, start time.Time) *Result {
	r.RequestID = uuid.NewString()
	r.SavingsPercent = pricing.SavingsPercent(baseline, r.TotalCost)
	r.Latency = time.Since(start)

	if o.stats != nil {
		o.stats.Record(r, pricing.Savings(baseline, r.TotalCost))
	}

	o.logger.Info("cascade complete",
		zap.String("request_id", r.RequestID),
		zap.String("model", r.ModelUsed),
		zap.String("reason", string(r.Reason)),
		zap.Bool("accepted", r.Accepted),
		zap.Float64("total_cost", r.TotalCost),
		zap.Float64("savings_pct", r.SavingsPercent),
		zap.Duration("latency", r.Latency))
	return &r
}

// =============================================================================
// COST ACCOUNTING
// =============================================================================

// callCost prices one completed call. Explicit per-model prices win over
// the table; unknown models cost 0 and are logged, never silent.
func (o *Orchestrator) callCost(mc ModelConfig, messages []chat.Message, reply chat.Message) float64 {
	in, out := callTokens(messages, reply)

	if mc.hasExplicitPrice() {
		return pricing.Price{
			InputPerMillion:  mc.InputPerMillion,
			OutputPerMillion: mc.OutputPerMillion,
		}.Cost(in, out)
	}

	cost, ok := o.cfg.Pricing.Cost(mc.Name, in, out)
	if !ok {
		o.logger.Warn("model missing from price table, cost recorded as 0",
			zap.String("model", mc.Name))
	}
	return cost
}

// hypotheticalVerifierCost prices the verifier over the same token volume
// as an accepted draft, for the savings baseline.
func (o *Orchestrator) hypotheticalVerifierCost(messages []chat.Message, reply chat.Message) float64 {
	return o.callCost(o.cfg.Verifier, messages, reply)
}

// callTokens returns input/output token counts, preferring provider usage
// and falling back to estimation.
func callTokens(messages []chat.Message, reply chat.Message) (int, int) {
	if reply.Usage != nil {
		return reply.Usage.InputTokens, reply.Usage.OutputTokens
	}
	in := 0
	for _, m := range messages {
		in += pricing.EstimateTokens(m.Content)
	}
	return in, pricing.EstimateTokens(reply.Content)
}

// =============================================================================
// CAPABILITY PASS-THROUGH
// =============================================================================

// Invoke runs a full cascade and returns only the final assistant message.
// This is the explicit pass-through that lets the orchestrator
// stand in anywhere a single model is expected (notably the agent loop);
// there is no implicit delegation to the drafter.
func (o *Orchestrator) Invoke(ctx context.Context, messages []chat.Message, tools []chat.ToolDefinition, opts *provider.CallOptions) (chat.Message, error) {
	result, err := o.Run(ctx, &Request{Messages: messages, Tools: tools, Options: opts})
	if err != nil {
		return chat.Message{}, err
	}
	return result.Message, nil
}
