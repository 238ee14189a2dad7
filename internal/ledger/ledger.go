// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/cascadeflow/cascadeflow-go/internal/cascade"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrClosed   = errors.New("ledger closed")
	ErrNotFound = errors.New("request not found")
)

// =============================================================================
// ENTRIES
// =============================================================================

// Entry is one persisted cascade outcome.
type Entry struct {
	RequestID    string    `json:"request_id"`
	CreatedAt    time.Time `json:"created_at"`
	ModelUsed    string    `json:"model_used"`
	Accepted     bool      `json:"accepted"`
	Reason       string    `json:"reason"`
	Domain       string    `json:"domain,omitempty"`
	Complexity   string    `json:"complexity"`
	DraftScore   *float64  `json:"draft_score,omitempty"`
	DrafterCost  float64   `json:"drafter_cost"`
	VerifierCost float64   `json:"verifier_cost"`
	TotalCost    float64   `json:"total_cost"`
	SavingsUSD   float64   `json:"savings_usd"`
	LatencyMS    int64     `json:"latency_ms"`
}

// FromResult converts a cascade result into a ledger entry.
func FromResult(r *cascade.Result, savingsUSD float64) Entry {
	return Entry{
		RequestID:    r.RequestID,
		CreatedAt:    time.Now().UTC(),
		ModelUsed:    r.ModelUsed,
		Accepted:     r.Accepted,
		Reason:       string(r.Reason),
		Domain:       r.Domain,
		Complexity:   r.Complexity.String(),
		DraftScore:   r.DraftScore,
		DrafterCost:  r.DrafterCost,
		VerifierCost: r.VerifierCost,
		TotalCost:    r.TotalCost,
		SavingsUSD:   savingsUSD,
		LatencyMS:    r.Latency.Milliseconds(),
	}
}

// Totals aggregates a time window of entries.
type Totals struct {
	Requests       int     `json:"requests"`
	DraftsAccepted int     `json:"drafts_accepted"`
	TotalCost      float64 `json:"total_cost"`
	TotalSavings   float64 `json:"total_savings"`
}

// ModelTotals aggregates per final model.
type ModelTotals struct {
	Model     string  `json:"model"`
	Requests  int     `json:"requests"`
	TotalCost float64 `json:"total_cost"`
}

// =============================================================================
// LEDGER
// =============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS cascade_requests (
	request_id    TEXT PRIMARY KEY,
	created_at    INTEGER NOT NULL,
	model_used    TEXT NOT NULL,
	accepted      INTEGER NOT NULL,
	reason        TEXT NOT NULL,
	domain        TEXT NOT NULL DEFAULT '',
	complexity    TEXT NOT NULL DEFAULT '',
	draft_score   REAL,
	drafter_cost  REAL NOT NULL DEFAULT 0,
	verifier_cost REAL NOT NULL DEFAULT 0,
	total_cost    REAL NOT NULL DEFAULT 0,
	savings_usd   REAL NOT NULL DEFAULT 0,
	latency_ms    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_cascade_requests_created_at
	ON cascade_requests(created_at);
CREATE INDEX IF NOT EXISTS idx_cascade_requests_model
	ON cascade_requests(model_used);
`

// Ledger is a SQLite-backed request log. Safe for concurrent use; SQLite
// serializes writers, so the pool is limited to one connection.
type Ledger struct {
	db *sql.DB
}

// Open opens (and if needed creates) the ledger database at path. The
// special path ":memory:" opens an ephemeral in-memory ledger.
func Open(path string) (*Ledger, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".cascadeflow", "ledger.db")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}

	// One writer at a time; a wider pool just queues on the file lock.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record inserts one entry. A missing request ID or timestamp is filled in.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if e.RequestID == "" {
		e.RequestID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var score sql.NullFloat64
	if e.DraftScore != nil {
		score = sql.NullFloat64{Float64: *e.DraftScore, Valid: true}
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO cascade_requests (
			request_id, created_at, model_used, accepted, reason, domain,
			complexity, draft_score, drafter_cost, verifier_cost,
			total_cost, savings_usd, latency_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RequestID, e.CreatedAt.UnixMilli(), e.ModelUsed, boolToInt(e.Accepted),
		e.Reason, e.Domain, e.Complexity, score,
		e.DrafterCost, e.VerifierCost, e.TotalCost, e.SavingsUSD, e.LatencyMS,
	)
	if err != nil {
		return fmt.Errorf("record request %s: %w", e.RequestID, err)
	}
	return nil
}

// Get returns one entry by request ID.
func (l *Ledger) Get(ctx context.Context, requestID string) (Entry, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT request_id, created_at, model_used, accepted, reason, domain,
		       complexity, draft_score, drafter_cost, verifier_cost,
		       total_cost, savings_usd, latency_ms
		FROM cascade_requests WHERE request_id = ?`, requestID)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// Recent returns up to limit entries, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT request_id, created_at, model_used, accepted, reason, domain,
		       complexity, draft_score, drafter_cost, verifier_cost,
		       total_cost, savings_usd, latency_ms
		FROM cascade_requests ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Totals aggregates the window [from, to).
func (l *Ledger) Totals(ctx context.Context, from, to time.Time) (Totals, error) {
	var t Totals
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(accepted), 0),
		       COALESCE(SUM(total_cost), 0),
		       COALESCE(SUM(savings_usd), 0)
		FROM cascade_requests
		WHERE created_at >= ? AND created_at < ?`,
		from.UnixMilli(), to.UnixMilli(),
	).Scan(&t.Requests, &t.DraftsAccepted, &t.TotalCost, &t.TotalSavings)
	return t, err
}

// ByModel aggregates the window per final model, highest spend first.
func (l *Ledger) ByModel(ctx context.Context, from, to time.Time) ([]ModelTotals, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT model_used, COUNT(*), COALESCE(SUM(total_cost), 0)
		FROM cascade_requests
		WHERE created_at >= ? AND created_at < ?
		GROUP BY model_used
		ORDER BY SUM(total_cost) DESC`,
		from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []ModelTotals
	for rows.Next() {
		var mt ModelTotals
		if err := rows.Scan(&mt.Model, &mt.Requests, &mt.TotalCost); err != nil {
			return nil, err
		}
		totals = append(totals, mt)
	}
	return totals, rows.Err()
}

// =============================================================================
// SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e        Entry
		created  int64
		accepted int
		score    sql.NullFloat64
	)
	err := s.Scan(&e.RequestID, &created, &e.ModelUsed, &accepted, &e.Reason,
		&e.Domain, &e.Complexity, &score, &e.DrafterCost, &e.VerifierCost,
		&e.TotalCost, &e.SavingsUSD, &e.LatencyMS)
	if err != nil {
		return Entry{}, err
	}
	e.CreatedAt = time.UnixMilli(created).UTC()
	e.Accepted = accepted != 0
	if score.Valid {
		e.DraftScore = &score.Float64
	}
	return e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
