package match

import (
	"sort"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// IndexOptions control document-frequency pruning.
type IndexOptions struct {
	// PruneRatio removes tokens found in strictly more than this share of
	// the corpus.
	PruneRatio float64
	// PruneMinCorpus disables pruning for corpora smaller than this.
	PruneMinCorpus int
}

// Index is an immutable inverted index over one side's market titles.
type Index struct {
	records  []domain.MarketRecord
	tokens   []domain.TokenSet
	postings map[domain.Token][]int
	pruned   []domain.Token
	skipped  int
}

// BuildIndex tokenizes every record and posts its ordinal under each token.
// Records that fail validation or yield no tokens are skipped.
func BuildIndex(records []domain.MarketRecord, ex *Extractor, opts IndexOptions) *Index {
	ix := &Index{postings: make(map[domain.Token][]int)}
	for _, r := range records {
		if r.Validate() != nil {
			ix.skipped++
			continue
		}
		ts := ex.Extract(r.MatchTitle())
		if ts.Len() == 0 {
			ix.skipped++
			continue
		}
		ord := len(ix.records)
		ix.records = append(ix.records, r)
		ix.tokens = append(ix.tokens, ts)
		for t := range ts {
			ix.postings[t] = append(ix.postings[t], ord)
		}
	}

	n := len(ix.records)
	if n == 0 || n < opts.PruneMinCorpus || opts.PruneRatio <= 0 {
		return ix
	}
	for t, list := range ix.postings {
		if float64(len(list))/float64(n) > opts.PruneRatio {
			ix.pruned = append(ix.pruned, t)
			delete(ix.postings, t)
		}
	}
	sort.Slice(ix.pruned, func(i, j int) bool {
		if ix.pruned[i].Kind != ix.pruned[j].Kind {
			return ix.pruned[i].Kind < ix.pruned[j].Kind
		}
		return ix.pruned[i].Value < ix.pruned[j].Value
	})
	return ix
}

// Len returns the number of indexed records.
func (ix *Index) Len() int { return len(ix.records) }

// Record returns the indexed record at ordinal i.
func (ix *Index) Record(i int) domain.MarketRecord { return ix.records[i] }

// Tokens returns the full (unpruned) token set of record i.
func (ix *Index) Tokens(i int) domain.TokenSet { return ix.tokens[i] }

// Postings returns the ordinals of records containing t, nil if t is absent
// or pruned.
func (ix *Index) Postings(t domain.Token) []int { return ix.postings[t] }

// Pruned lists tokens removed for being too common, sorted.
func (ix *Index) Pruned() []domain.Token { return ix.pruned }

// Skipped returns how many input records were not indexed.
func (ix *Index) Skipped() int { return ix.skipped }
