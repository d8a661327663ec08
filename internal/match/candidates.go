package match

import (
	"sort"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// kindWeights rank how much a shared token says about two titles being the
// same proposition.
var kindWeights = map[domain.TokenKind]float64{
	domain.TokenEntity:  3,
	domain.TokenYear:    2,
	domain.TokenPrice:   2,
	domain.TokenNumeric: 1.5,
	domain.TokenWord:    1,
}

// Candidate is an indexed record that shares enough keywords with a query.
type Candidate struct {
	Ordinal      int
	Key          string
	KeywordScore float64
}

// Candidates returns indexed records whose weighted keyword overlap with
// tokens, divided by the total weight of tokens, is at least minScore.
// Results are ordered by score descending, then key ascending.
func (ix *Index) Candidates(tokens domain.TokenSet, minScore float64) []Candidate {
	query := tokens.Sorted()
	var total float64
	for _, t := range query {
		total += kindWeights[t.Kind]
	}
	if total == 0 {
		return nil
	}

	overlap := make(map[int]float64)
	for _, t := range query {
		w := kindWeights[t.Kind]
		for _, ord := range ix.postings[t] {
			overlap[ord] += w
		}
	}

	out := make([]Candidate, 0, len(overlap))
	for ord, w := range overlap {
		score := w / total
		if score < minScore {
			continue
		}
		out = append(out, Candidate{Ordinal: ord, Key: ix.records[ord].Key(), KeywordScore: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].KeywordScore != out[j].KeywordScore {
			return out[i].KeywordScore > out[j].KeywordScore
		}
		return out[i].Key < out[j].Key
	})
	return out
}
