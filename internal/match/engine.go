package match

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Stats summarizes one matching pass.
type Stats struct {
	ARecords         int           `json:"a_records"`
	BRecords         int           `json:"b_records"`
	Malformed        int           `json:"malformed"`
	ManualMapped     int           `json:"manual_mapped"`
	Indexed          int           `json:"indexed"`
	PrunedTokens     int           `json:"pruned_tokens"`
	CandidatesScored int           `json:"candidates_scored"`
	Edges            int           `json:"edges"`
	ManualPairs      int           `json:"manual_pairs"`
	ManualGroups     int           `json:"manual_groups"`
	AutoPairs        int           `json:"auto_pairs"`
	AutoGroups       int           `json:"auto_groups"`
	Duration         time.Duration `json:"duration"`
}

// Result is the outcome of one matching pass.
type Result struct {
	Pairs  []domain.MatchedPair    `json:"pairs"`
	Groups []domain.MatchedGroup   `json:"groups"`
	Scored []domain.MatchCandidate `json:"scored"`
	Stats  Stats                   `json:"stats"`
}

// Engine matches two sides' market snapshots. It keeps no state between
// passes; every call works on the records it is given.
type Engine struct {
	cfg      Config
	ex       *Extractor
	scorer   *Scorer
	resolver *Resolver
	manual   *ManualTable
	logger   *slog.Logger
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithStrategy replaces the greedy assignment.
func WithStrategy(s AssignmentStrategy) EngineOption {
	return func(e *Engine) { e.resolver = NewResolver(s, e.ex) }
}

// NewEngine validates cfg and builds an engine. A nil manual table means no
// curated mappings.
func NewEngine(cfg Config, manual *ManualTable, logger *slog.Logger, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("match: %w", err)
	}
	if manual == nil {
		manual, _ = NewManualTable(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	ex := NewExtractor(cfg.YearMin, cfg.YearMax)
	e := &Engine{
		cfg:      cfg,
		ex:       ex,
		scorer:   NewScorer(cfg, ex),
		resolver: NewResolver(Greedy{}, ex),
		manual:   manual,
		logger:   logger.With(slog.String("component", "match_engine")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Extractor exposes the engine's extractor.
func (e *Engine) Extractor() *Extractor { return e.ex }

// Match runs one pass: manual mappings, index over bSide, candidate
// generation and scoring per aSide item, then assignment.
func (e *Engine) Match(ctx context.Context, aSide, bSide []domain.MarketRecord) (Result, error) {
	start := time.Now()
	var stats Stats
	a, badA := e.sanitize("a", aSide)
	b, badB := e.sanitize("b", bSide)
	stats.ARecords, stats.BRecords, stats.Malformed = len(a), len(b), badA+badB

	titles := make(map[string]string, len(a)+len(b))
	aPlatforms := make(map[domain.Platform]bool)
	bPlatforms := make(map[domain.Platform]bool)
	for _, r := range a {
		titles[r.Key()] = r.MatchTitle()
		aPlatforms[r.Platform] = true
	}
	for _, r := range b {
		titles[r.Key()] = r.MatchTitle()
		bPlatforms[r.Platform] = true
	}
	manualPairs, manualGroups := e.manual.Matches(
		func(p domain.Platform) bool { return aPlatforms[p] },
		func(p domain.Platform) bool { return bPlatforms[p] },
		titles,
	)
	mapped := mappedKeys(manualPairs, manualGroups)
	// A curated market never enters automatic matching, even when its
	// mapping names no platform from this pass.
	for _, side := range [][]domain.MarketRecord{a, b} {
		for _, r := range side {
			if _, ok := e.manual.Lookup(r.Platform, r.NativeID); ok {
				mapped[r.Key()] = true
			}
		}
	}
	stats.ManualMapped = len(mapped)

	a = without(a, mapped)
	ix := BuildIndex(without(b, mapped), e.ex, IndexOptions{
		PruneRatio:     e.cfg.PruneRatio,
		PruneMinCorpus: e.cfg.PruneMinCorpus,
	})
	stats.Indexed, stats.PrunedTokens = ix.Len(), len(ix.Pruned())

	bFeat := make([]features, ix.Len())
	for j := range bFeat {
		n := Normalize(ix.Record(j).MatchTitle())
		bFeat[j] = features{norm: n, tokens: ix.Tokens(j), words: wordsOf(n)}
	}

	perItem := make([][]Edge, len(a))
	scored := make([]int, len(a))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.workers())
	for i := range a {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perItem[i], scored[i] = e.scoreItem(a[i], ix, bFeat)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("match: scoring: %w", err)
	}

	var edges []Edge
	for i := range perItem {
		edges = append(edges, perItem[i]...)
		stats.CandidatesScored += scored[i]
	}
	stats.Edges = len(edges)

	pairs, groups := e.resolver.Resolve(manualPairs, manualGroups, edges)
	for _, p := range pairs {
		if p.Origin == domain.OriginManual {
			stats.ManualPairs++
		} else {
			stats.AutoPairs++
		}
	}
	for _, grp := range groups {
		if grp.Origin == domain.OriginManual {
			stats.ManualGroups++
		} else {
			stats.AutoGroups++
		}
	}
	stats.Duration = time.Since(start)

	e.logger.InfoContext(ctx, "match pass complete",
		slog.Int("a_records", stats.ARecords),
		slog.Int("b_records", stats.BRecords),
		slog.Int("malformed", stats.Malformed),
		slog.Int("pruned_tokens", stats.PrunedTokens),
		slog.Int("candidates_scored", stats.CandidatesScored),
		slog.Int("pairs", len(pairs)),
		slog.Int("groups", len(groups)),
		slog.Duration("duration", stats.Duration),
	)

	return Result{Pairs: pairs, Groups: groups, Scored: candidatesOf(edges), Stats: stats}, nil
}

// scoreItem scores one A record against its top keyword candidates and
// returns the edges at or above the match threshold.
func (e *Engine) scoreItem(rec domain.MarketRecord, ix *Index, bFeat []features) ([]Edge, int) {
	fa := e.ex.features(rec.MatchTitle())
	cands := ix.Candidates(fa.tokens, e.cfg.KeywordScoreThreshold)
	if len(cands) > e.cfg.MaxCandidatesPerItem {
		cands = cands[:e.cfg.MaxCandidatesPerItem]
	}

	var edges []Edge
	for _, cand := range cands {
		other := ix.Record(cand.Ordinal)
		fb := bFeat[cand.Ordinal]
		edge := Edge{A: rec, B: other}

		switch {
		case rec.IsMultiOutcome() && other.IsMultiOutcome():
			edge.Candidate = e.scorer.score(fa, fb)
			if len(e.ex.alignOutcomes(rec, other)) < 2 {
				continue
			}
		case rec.IsMultiOutcome():
			label, ok := e.ex.labelIn(rec, fb)
			if !ok {
				continue
			}
			edge.Label = label
			edge.Candidate = e.scorer.score(fa, e.ex.withoutLabel(fb, label))
		case other.IsMultiOutcome():
			label, ok := e.ex.labelIn(other, fa)
			if !ok {
				continue
			}
			edge.Label = label
			edge.Candidate = e.scorer.score(e.ex.withoutLabel(fa, label), fb)
		default:
			edge.Candidate = e.scorer.score(fa, fb)
		}

		edge.Candidate.A, edge.Candidate.B = rec.Key(), other.Key()
		edge.Candidate.KeywordScore = cand.KeywordScore
		if !edge.Candidate.PassedHardConstraints || edge.Candidate.Score < e.cfg.MatchThreshold {
			continue
		}
		edges = append(edges, edge)
	}
	return edges, len(cands)
}

// sanitize drops malformed and duplicate records, logging each.
func (e *Engine) sanitize(side string, records []domain.MarketRecord) ([]domain.MarketRecord, int) {
	out := make([]domain.MarketRecord, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	bad := 0
	for _, r := range records {
		if err := r.Validate(); err != nil {
			bad++
			e.logger.Warn("skipping malformed record", slog.String("side", side), slog.String("error", err.Error()))
			continue
		}
		if _, dup := seen[r.Key()]; dup {
			bad++
			e.logger.Warn("skipping duplicate record", slog.String("side", side), slog.String("key", r.Key()))
			continue
		}
		seen[r.Key()] = struct{}{}
		out = append(out, r)
	}
	return out, bad
}

func mappedKeys(pairs []domain.MatchedPair, groups []domain.MatchedGroup) map[string]bool {
	keys := make(map[string]bool)
	for _, p := range pairs {
		keys[p.A.Key()], keys[p.B.Key()] = true, true
	}
	for _, g := range groups {
		for _, leg := range g.Legs {
			for _, r := range leg.Refs {
				keys[r.MarketKey()] = true
			}
		}
	}
	return keys
}

func without(records []domain.MarketRecord, keys map[string]bool) []domain.MarketRecord {
	if len(keys) == 0 {
		return records
	}
	out := make([]domain.MarketRecord, 0, len(records))
	for _, r := range records {
		if !keys[r.Key()] {
			out = append(out, r)
		}
	}
	return out
}

func candidatesOf(edges []Edge) []domain.MatchCandidate {
	out := make([]domain.MatchCandidate, len(edges))
	for i, e := range edges {
		out[i] = e.Candidate
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}
