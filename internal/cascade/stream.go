// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cascade

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cascadeflow/cascadeflow-go/internal/provider"
)

// =============================================================================
// STREAM CHUNKS
// =============================================================================

// StreamChunk is one fragment delivered to a streaming consumer.
type StreamChunk struct {
	// Content is the text delta.
	Content string `json:"content"`
	// Model identifies which model produced this fragment.
	Model string `json:"model"`
	// Switched marks the single synthetic chunk emitted when the engine
	// abandons a rejected draft and hands over to the verifier. Consumers
	// that rendered the draft optimistically should discard it on this
	// signal.
	Switched bool `json:"switched,omitempty"`
	// Done marks the final chunk of the whole cascade.
	Done bool `json:"done,omitempty"`
}

// StreamHandler receives chunks in order from the calling goroutine.
type StreamHandler func(StreamChunk)

// =============================================================================
// OPTIMISTIC STREAMING
// =============================================================================

// Stream executes one cascaded request, forwarding fragments as they
// arrive. The drafter's output is forwarded optimistically while it is
// still being scored; when the finished draft fails the gate, exactly one
// Switched chunk is emitted and the verifier's stream follows. Direct
// routes stream only the verifier.
//
// A transport failure mid-draft propagates to the caller; the verifier is
// not a fallback for broken transport.
func (o *Orchestrator) Stream(ctx context.Context, req *Request, fn StreamHandler) (*Result, error) {
	if fn == nil {
		return nil, &ConfigurationError{Field: "stream handler", Reason: "handler is required"}
	}
	if err := o.validateRequest(req); err != nil {
		return nil, err
	}

	start := time.Now()
	decision := o.route(req)

	if decision.direct {
		return o.streamDirect(ctx, req, decision, start, fn)
	}
	return o.streamCascade(ctx, req, decision, start, fn)
}

func (o *Orchestrator) streamDirect(ctx context.Context, req *Request, d routeDecision, start time.Time, fn StreamHandler) (*Result, error) {
	msg, err := o.verifier.StreamInvoke(ctx, req.Messages, req.Tools, req.Options, forwardTo(fn, o.cfg.Verifier.Name))
	if err != nil {
		return nil, err
	}
	fn(StreamChunk{Model: o.cfg.Verifier.Name, Done: true})

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

func (o *Orchestrator) streamCascade(ctx context.Context, req *Request, d routeDecision, start time.Time, fn StreamHandler) (*Result, error) {
	draft, err := o.drafter.StreamInvoke(ctx, req.Messages, req.Tools, req.Options, forwardTo(fn, o.cfg.Drafter.Name))
	if err != nil {
		return nil, err
	}

	score := o.scorer.Score(draft)
	threshold := o.effectiveThreshold(d)
	drafterCost := o.callCost(o.cfg.Drafter, req.Messages, draft)

	callRisk := false
	if draft.HasToolCalls() {
		callRisk = o.risk.ClassifyCalls(draft.ToolCalls, req.Tools).ForceVerifier
	}

	forced := d.hasPolicy && d.pol.ForceVerifier
	accepted := score >= threshold && !forced && !callRisk

	if accepted {
		fn(StreamChunk{Model: o.cfg.Drafter.Name, Done: true})
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

	o.logger.Debug("streamed draft rejected, switching",
		zap.Float64("score", score),
		zap.Float64("threshold", threshold),
		zap.Bool("domain_forced", forced),
		zap.Bool("call_risk", callRisk))

	fn(StreamChunk{
		Content:  switchMarker(o.cfg.Verifier.Name, score, threshold),
		Model:    o.cfg.Verifier.Name,
		Switched: true,
	})

	final, err := o.verifier.StreamInvoke(ctx, req.Messages, req.Tools, req.Options, forwardTo(fn, o.cfg.Verifier.Name))
	if err != nil {
		return nil, err
	}
	fn(StreamChunk{Model: o.cfg.Verifier.Name, Done: true})

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

// forwardTo adapts provider chunks onto the consumer handler, stamping the
// model name and suppressing the provider-level terminal chunk. The cascade
// emits its own Done once the whole request settles.
func forwardTo(fn StreamHandler, model string) provider.StreamFunc {
	return func(c provider.Chunk) {
		if c.Done && c.Content == "" {
			return
		}
		fn(StreamChunk{Content: c.Content, Model: model})
	}
}

// switchMarker is the content of the single synthetic chunk that announces
// a handover to the verifier.
func switchMarker(verifier string, score, threshold float64) string {
	return fmt.Sprintf("[switching to %s: draft quality %.2f below threshold %.2f]", verifier, score, threshold)
}
