package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// MatchLogStore implements domain.MatchLogStore using PostgreSQL.
type MatchLogStore struct {
	pool *pgxpool.Pool
}

// NewMatchLogStore creates a new MatchLogStore backed by the given
// connection pool.
func NewMatchLogStore(pool *pgxpool.Pool) *MatchLogStore {
	return &MatchLogStore{pool: pool}
}

// InsertBatch writes one cycle's matches in a single round trip.
func (s *MatchLogStore) InsertBatch(ctx context.Context, entries []domain.MatchLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	const query = `
		INSERT INTO match_log (cycle_id, kind, match_key, origin, alignment, confidence, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	batch := &pgx.Batch{}
	for _, e := range entries {
		detail, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("postgres: marshal match detail %s: %w", e.Key, err)
		}
		batch.Queue(query, e.CycleID, e.Kind, e.Key, string(e.Origin), string(e.Alignment), e.Confidence, detail, e.CreatedAt)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range entries {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert match log: %w", err)
		}
	}
	return nil
}

// ListByCycle returns the matches recorded for one cycle in insertion order.
// Detail is returned as decoded JSON.
func (s *MatchLogStore) ListByCycle(ctx context.Context, cycleID string) ([]domain.MatchLogEntry, error) {
	const query = `
		SELECT cycle_id, kind, match_key, origin, alignment, confidence, detail, created_at
		FROM match_log WHERE cycle_id = $1 ORDER BY id`

	rows, err := s.pool.Query(ctx, query, cycleID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list match log %s: %w", cycleID, err)
	}
	defer rows.Close()

	var out []domain.MatchLogEntry
	for rows.Next() {
		var (
			e                 domain.MatchLogEntry
			origin, alignment string
			detail            []byte
		)
		if err := rows.Scan(&e.CycleID, &e.Kind, &e.Key, &origin, &alignment, &e.Confidence, &detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan match log: %w", err)
		}
		e.Origin = domain.MatchOrigin(origin)
		e.Alignment = domain.Alignment(alignment)
		if len(detail) > 0 {
			var v any
			if err := json.Unmarshal(detail, &v); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal match detail: %w", err)
			}
			e.Detail = v
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list match log rows: %w", err)
	}
	return out, nil
}
