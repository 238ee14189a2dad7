// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cascade

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadeflow/cascadeflow-go/internal/chat"
	"github.com/cascadeflow/cascadeflow-go/internal/policy"
	"github.com/cascadeflow/cascadeflow-go/internal/provider"
)

// collect gathers every chunk a Stream call emits.
func collect() (StreamHandler, *[]StreamChunk) {
	var chunks []StreamChunk
	return func(c StreamChunk) { chunks = append(chunks, c) }, &chunks
}

func countSwitched(chunks []StreamChunk) int {
	n := 0
	for _, c := range chunks {
		if c.Switched {
			n++
		}
	}
	return n
}

func TestStream_AcceptedDraftForwardsDrafterChunks(t *testing.T) {
	drafter := &fakeModel{reply: confidentReply(), chunks: []string{"The capital ", "is Paris."}}
	verifier := &fakeModel{reply: chat.Assistant("unused")}

	o, err := NewOrchestrator(testConfig(), drafter, verifier)
	require.NoError(t, err)

	fn, chunks := collect()
	result, err := o.Stream(context.Background(), userReq("What is the capital of France?"), fn)
	require.NoError(t, err)

	assert.True(t, result.Accepted)
	assert.Equal(t, int64(0), verifier.calls.Load())
	assert.Zero(t, countSwitched(*chunks))

	require.Len(t, *chunks, 3)
	assert.Equal(t, "The capital ", (*chunks)[0].Content)
	assert.Equal(t, "drafter-small", (*chunks)[0].Model)
	assert.True(t, (*chunks)[2].Done)
}

func TestStream_RejectedDraftSwitchesExactlyOnce(t *testing.T) {
	drafter := &fakeModel{reply: chat.Assistant("no"), chunks: []string{"no"}}
	verifier := &fakeModel{reply: confidentReply(), chunks: []string{"The capital ", "is Paris."}}

	o, err := NewOrchestrator(testConfig(), drafter, verifier)
	require.NoError(t, err)

	fn, chunks := collect()
	result, err := o.Stream(context.Background(), userReq("Is the sky green?"), fn)
	require.NoError(t, err)

	assert.False(t, result.Accepted)
	assert.Equal(t, ReasonQualityBelowThreshold, result.Reason)
	assert.Equal(t, 1, countSwitched(*chunks), "exactly one switch marker")

	// Order: drafter chunks, switch marker, verifier chunks, done.
	all := *chunks
	require.Len(t, all, 5)
	assert.Equal(t, "no", all[0].Content)
	assert.Equal(t, "drafter-small", all[0].Model)

	assert.True(t, all[1].Switched)
	assert.Equal(t, "verifier-large", all[1].Model)
	assert.Contains(t, all[1].Content, "verifier-large")
	assert.Contains(t, all[1].Content, "0.10", "marker carries the failing score")

	assert.Equal(t, "The capital ", all[2].Content)
	assert.Equal(t, "verifier-large", all[2].Model)
	assert.True(t, all[4].Done)
}

func TestStream_DirectRouteStreamsVerifierOnly(t *testing.T) {
	drafter := &fakeModel{reply: confidentReply(), chunks: []string{"draft"}}
	verifier := &fakeModel{reply: confidentReply(), chunks: []string{"verified answer"}}

	cfg := testConfig()
	cfg.DomainPolicies = map[string]policy.DomainPolicy{
		"medical": {DirectToVerifier: true},
	}
	o, err := NewOrchestrator(cfg, drafter, verifier)
	require.NoError(t, err)

	req := userReq("What is the right dosage?")
	req.Metadata = map[string]any{"domain": "medical"}

	fn, chunks := collect()
	result, err := o.Stream(context.Background(), req, fn)
	require.NoError(t, err)

	assert.Equal(t, int64(0), drafter.calls.Load())
	assert.Equal(t, ReasonDomainDirect, result.Reason)
	assert.Zero(t, countSwitched(*chunks), "no switch marker on a direct route")
	for _, c := range *chunks {
		assert.Equal(t, "verifier-large", c.Model)
	}
}

func TestStream_MidDraftErrorPropagates(t *testing.T) {
	transportErr := &provider.TransportError{Model: "drafter-small", Op: "stream", Err: errors.New("reset by peer")}
	drafter := &fakeModel{err: transportErr}
	verifier := &fakeModel{reply: confidentReply(), chunks: []string{"unused"}}

	o, err := NewOrchestrator(testConfig(), drafter, verifier)
	require.NoError(t, err)

	fn, chunks := collect()
	_, err = o.Stream(context.Background(), userReq("Hello there, how are you?"), fn)
	require.Error(t, err)

	var te *provider.TransportError
	assert.ErrorAs(t, err, &te)
	assert.Equal(t, int64(0), verifier.calls.Load(), "a broken drafter stream is not rescued by the verifier")
	assert.Zero(t, countSwitched(*chunks))
}

func TestStream_RequiresHandler(t *testing.T) {
	o, err := NewOrchestrator(testConfig(), &fakeModel{}, &fakeModel{})
	require.NoError(t, err)

	_, err = o.Stream(context.Background(), userReq("anything at all today?"), nil)
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}
