package domain

import (
	"context"
	"time"
)

// OpportunityStore persists detected opportunities.
type OpportunityStore interface {
	Insert(ctx context.Context, opp ArbitrageOpportunity) error
	ListRecent(ctx context.Context, limit int) ([]ArbitrageOpportunity, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
	// ListBetween returns opportunities detected in [from, to), oldest first.
	ListBetween(ctx context.Context, from, to time.Time) ([]ArbitrageOpportunity, error)
}

// MatchLogEntry is one accepted match from a cycle, kept for diagnostics.
type MatchLogEntry struct {
	CycleID    string
	Kind       string // "pair" or "group"
	Key        string
	Origin     MatchOrigin
	Alignment  Alignment
	Confidence float64
	Detail     any
	CreatedAt  time.Time
}

// MatchLogStore records the matches each cycle produced.
type MatchLogStore interface {
	InsertBatch(ctx context.Context, entries []MatchLogEntry) error
	ListByCycle(ctx context.Context, cycleID string) ([]MatchLogEntry, error)
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, limit int) ([]AuditEntry, error)
}
