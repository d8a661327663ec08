package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given
// connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunityCols = `id, kind, direction, pair_key, title, legs,
	total_cost, spread, spread_bps, confidence, origin, detected_at`

// Insert stores an opportunity. Re-inserting the same ID is a no-op.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	legs, err := json.Marshal(opp.Legs)
	if err != nil {
		return fmt.Errorf("postgres: marshal legs: %w", err)
	}

	const query = `
		INSERT INTO opportunities (` + opportunityCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`

	_, err = s.pool.Exec(ctx, query,
		opp.ID, string(opp.Kind), opp.Direction, opp.PairKey, opp.Title, legs,
		opp.TotalCost, opp.Spread, opp.SpreadBps, opp.Confidence, string(opp.Origin), opp.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// ListRecent returns the newest opportunities first.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + opportunityCols + ` FROM opportunities ORDER BY detected_at DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	defer rows.Close()

	var out []domain.ArbitrageOpportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list opportunities rows: %w", err)
	}
	return out, nil
}

// ListBetween returns opportunities detected in [from, to), oldest first.
func (s *OpportunityStore) ListBetween(ctx context.Context, from, to time.Time) ([]domain.ArbitrageOpportunity, error) {
	query := `SELECT ` + opportunityCols + ` FROM opportunities
		WHERE detected_at >= $1 AND detected_at < $2
		ORDER BY detected_at, id`

	rows, err := s.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities between: %w", err)
	}
	defer rows.Close()

	var out []domain.ArbitrageOpportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list opportunities between rows: %w", err)
	}
	return out, nil
}

// CountSince counts opportunities detected at or after since.
func (s *OpportunityStore) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM opportunities WHERE detected_at >= $1`, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count opportunities: %w", err)
	}
	return n, nil
}

func scanOpportunity(row pgx.Row) (domain.ArbitrageOpportunity, error) {
	var (
		opp          domain.ArbitrageOpportunity
		kind, origin string
		legs         []byte
	)
	err := row.Scan(
		&opp.ID, &kind, &opp.Direction, &opp.PairKey, &opp.Title, &legs,
		&opp.TotalCost, &opp.Spread, &opp.SpreadBps, &opp.Confidence, &origin, &opp.DetectedAt,
	)
	if err != nil {
		return opp, fmt.Errorf("postgres: scan opportunity: %w", err)
	}
	opp.Kind = domain.OpportunityKind(kind)
	opp.Origin = domain.MatchOrigin(origin)
	if err := json.Unmarshal(legs, &opp.Legs); err != nil {
		return opp, fmt.Errorf("postgres: unmarshal legs %s: %w", opp.ID, err)
	}
	return opp, nil
}
