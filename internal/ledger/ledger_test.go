// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadeflow/cascadeflow-go/internal/cascade"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordAndGet(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	score := 0.82
	entry := Entry{
		RequestID:   "req-1",
		ModelUsed:   "drafter-small",
		Accepted:    true,
		Reason:      "draft_accepted",
		Domain:      "support",
		Complexity:  "simple",
		DraftScore:  &score,
		DrafterCost: 0.0003,
		TotalCost:   0.0003,
		SavingsUSD:  0.0297,
		LatencyMS:   420,
	}
	require.NoError(t, l.Record(ctx, entry))

	got, err := l.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, "drafter-small", got.ModelUsed)
	assert.True(t, got.Accepted)
	require.NotNil(t, got.DraftScore)
	assert.InDelta(t, 0.82, *got.DraftScore, 1e-9)
	assert.False(t, got.CreatedAt.IsZero(), "missing timestamp is filled in")
}

func TestGet_NotFound(t *testing.T) {
	l := openTestLedger(t)

	_, err := l.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecord_FillsRequestID(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, Entry{ModelUsed: "verifier-large", Reason: "quality_below_threshold"}))

	recent, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.NotEmpty(t, recent[0].RequestID)
	assert.Nil(t, recent[0].DraftScore, "absent score stays absent")
}

func TestTotalsWindowing(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Record(ctx, Entry{
			RequestID:  string(rune('a' + i)),
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
			ModelUsed:  "drafter-small",
			Accepted:   i < 2,
			Reason:     "draft_accepted",
			TotalCost:  0.01,
			SavingsUSD: 0.02,
		}))
	}

	// Window covers only the first two entries.
	totals, err := l.Totals(ctx, base, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, totals.Requests)
	assert.Equal(t, 2, totals.DraftsAccepted)
	assert.InDelta(t, 0.02, totals.TotalCost, 1e-9)
	assert.InDelta(t, 0.04, totals.TotalSavings, 1e-9)

	// Empty window aggregates to zero, not an error.
	empty, err := l.Totals(ctx, base.Add(-time.Hour), base)
	require.NoError(t, err)
	assert.Zero(t, empty.Requests)
}

func TestByModel(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, l.Record(ctx, Entry{RequestID: "1", CreatedAt: now, ModelUsed: "drafter-small", TotalCost: 0.001}))
	require.NoError(t, l.Record(ctx, Entry{RequestID: "2", CreatedAt: now, ModelUsed: "verifier-large", TotalCost: 0.05}))
	require.NoError(t, l.Record(ctx, Entry{RequestID: "3", CreatedAt: now, ModelUsed: "verifier-large", TotalCost: 0.05}))

	byModel, err := l.ByModel(ctx, now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, byModel, 2)

	// Highest spend first.
	assert.Equal(t, "verifier-large", byModel[0].Model)
	assert.Equal(t, 2, byModel[0].Requests)
	assert.InDelta(t, 0.10, byModel[0].TotalCost, 1e-9)
}

func TestRecent_NewestFirst(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Record(ctx, Entry{
			RequestID: string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
			ModelUsed: "drafter-small",
		}))
	}

	recent, err := l.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "e", recent[0].RequestID)
	assert.Equal(t, "c", recent[2].RequestID)
}

func TestFromResult(t *testing.T) {
	score := 0.42
	r := &cascade.Result{
		RequestID:    "req-9",
		ModelUsed:    "verifier-large",
		Accepted:     false,
		DraftScore:   &score,
		Reason:       cascade.ReasonQualityBelowThreshold,
		Domain:       "legal",
		DrafterCost:  0.0003,
		VerifierCost: 0.03,
		TotalCost:    0.0303,
		Latency:      1500 * time.Millisecond,
	}

	e := FromResult(r, -0.0003)
	assert.Equal(t, "req-9", e.RequestID)
	assert.Equal(t, "quality_below_threshold", e.Reason)
	assert.Equal(t, int64(1500), e.LatencyMS)
	assert.InDelta(t, -0.0003, e.SavingsUSD, 1e-9)
	require.NotNil(t, e.DraftScore)
}
