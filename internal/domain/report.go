package domain

import (
	"context"
	"time"
)

// PlatformFetch summarizes one platform's fetch within a cycle.
type PlatformFetch struct {
	Platform  Platform      `json:"platform"`
	Markets   int           `json:"markets"`
	Duration  time.Duration `json:"duration_ns"`
	FromCache bool          `json:"from_cache,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// CycleReport is everything one scan cycle produced.
type CycleReport struct {
	CycleID       string                 `json:"cycle_id"`
	StartedAt     time.Time              `json:"started_at"`
	FinishedAt    time.Time              `json:"finished_at"`
	Fetches       []PlatformFetch        `json:"fetches"`
	Pairs         []MatchedPair          `json:"pairs"`
	Groups        []MatchedGroup         `json:"groups"`
	Implications  []Implication          `json:"implications,omitempty"`
	Opportunities []ArbitrageOpportunity `json:"opportunities"`
	Suppressed    int                    `json:"suppressed"`
	Malformed     int                    `json:"malformed"`
}

// Duration is the wall time the cycle took.
func (r CycleReport) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// ReportArchive stores cycle reports and opportunity exports in cold storage.
type ReportArchive interface {
	SaveReport(ctx context.Context, report CycleReport) (string, error)
	ExportOpportunities(ctx context.Context, day time.Time, opps []ArbitrageOpportunity) (string, error)
	ListReports(ctx context.Context, day time.Time) ([]BlobInfo, error)
}
