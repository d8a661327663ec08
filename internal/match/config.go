package match

import (
	"fmt"
	"math"
	"runtime"
	"strings"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Weights are the component weights of the pairwise score. They must sum
// to 1.
type Weights struct {
	Entity, Numeric, Vocabulary, String float64
}

func (w Weights) sum() float64 { return w.Entity + w.Numeric + w.Vocabulary + w.String }

// Config tunes the matching engine.
type Config struct {
	MatchThreshold        float64
	KeywordScoreThreshold float64
	// PruneRatio drops tokens found in strictly more than this share of
	// the indexed corpus; PruneMinCorpus disables pruning below that size.
	PruneRatio           float64
	PruneMinCorpus       int
	Weights              Weights
	MaxCandidatesPerItem int
	// Workers bounds scoring concurrency; <= 0 means GOMAXPROCS.
	Workers          int
	YearMin, YearMax int
	NumericTolerance float64
	// LogicalMinGapPct is the smallest relative gap, in percent, between
	// two price thresholds linked as an implication.
	LogicalMinGapPct float64
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		MatchThreshold:        0.5,
		KeywordScoreThreshold: 0.15,
		PruneRatio:            0.20,
		PruneMinCorpus:        20,
		Weights: Weights{
			Entity:     0.40,
			Numeric:    0.30,
			Vocabulary: 0.20,
			String:     0.10,
		},
		MaxCandidatesPerItem: 20,
		Workers:              runtime.GOMAXPROCS(0),
		YearMin:              2012,
		YearMax:              2099,
		NumericTolerance:     0.001,
		LogicalMinGapPct:     10,
	}
}

// Validate checks the configuration. Errors wrap domain.ErrConfig.
func (c Config) Validate() error {
	var errs []string

	for _, w := range []struct {
		name string
		v    float64
	}{
		{"entity", c.Weights.Entity},
		{"numeric", c.Weights.Numeric},
		{"vocabulary", c.Weights.Vocabulary},
		{"string", c.Weights.String},
	} {
		if w.v < 0 || math.IsNaN(w.v) {
			errs = append(errs, fmt.Sprintf("component weight %s is negative", w.name))
		}
	}
	if s := c.Weights.sum(); s == 0 {
		errs = append(errs, "component weights are all zero")
	} else if math.Abs(s-1) > 0.01 {
		errs = append(errs, fmt.Sprintf("component weights sum to %.4f, want 1", s))
	}
	if c.MatchThreshold < 0 || c.MatchThreshold > 1 {
		errs = append(errs, fmt.Sprintf("match_threshold %v outside [0,1]", c.MatchThreshold))
	}
	if c.KeywordScoreThreshold < 0 || c.KeywordScoreThreshold > 1 {
		errs = append(errs, fmt.Sprintf("keyword_score_threshold %v outside [0,1]", c.KeywordScoreThreshold))
	}
	if c.PruneRatio <= 0 || c.PruneRatio > 1 {
		errs = append(errs, fmt.Sprintf("document_frequency_prune_ratio %v outside (0,1]", c.PruneRatio))
	}
	if c.MaxCandidatesPerItem <= 0 {
		errs = append(errs, "max_candidates_scored_per_item must be positive")
	}
	if c.YearMin > c.YearMax {
		errs = append(errs, fmt.Sprintf("year_min %d after year_max %d", c.YearMin, c.YearMax))
	}
	if c.NumericTolerance < 0 {
		errs = append(errs, "numeric_tolerance must not be negative")
	}
	if c.LogicalMinGapPct < 0 {
		errs = append(errs, "logical_min_gap_pct must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrConfig, strings.Join(errs, "; "))
	}
	return nil
}

func (c Config) workers() int {
	if c.Workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return c.Workers
}
