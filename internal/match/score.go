package match

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// features is the per-title view the scorer works on.
type features struct {
	norm   string
	tokens domain.TokenSet
	words  []string
}

func (x *Extractor) features(title string) features {
	n := Normalize(title)
	return features{norm: n, tokens: x.extractNormalized(n), words: wordsOf(n)}
}

// withoutLabel drops an outcome label from a title's features so a binary
// market like "Will Brazil win the World Cup?" can be compared with the
// event title "World Cup Winner".
func (x *Extractor) withoutLabel(f features, label string) features {
	nl := Normalize(label)
	out := features{norm: f.norm, tokens: make(domain.TokenSet, len(f.tokens))}
	if nl != "" {
		out.norm = strings.Join(strings.Fields(removeWord(f.norm, nl)), " ")
	}
	drop := x.extractNormalized(nl)
	for t := range f.tokens {
		if !drop.Has(t) {
			out.tokens.Add(t)
		}
	}
	out.words = wordsOf(out.norm)
	return out
}

// removeWord blanks every occurrence of w in s that is not part of a longer
// ASCII word.
func removeWord(s, w string) string {
	if w == "" {
		return s
	}
	var b strings.Builder
	last := 0
	for from := 0; from <= len(s)-len(w); {
		i := strings.Index(s[from:], w)
		if i < 0 {
			break
		}
		i += from
		end := i + len(w)
		if (i > 0 && isWordByte(s[i-1])) || (end < len(s) && isWordByte(s[end])) {
			from = i + 1
			continue
		}
		b.WriteString(s[last:i])
		b.WriteByte(' ')
		last, from = end, end
	}
	b.WriteString(s[last:])
	return b.String()
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Scorer computes the pairwise similarity of two market titles.
type Scorer struct {
	cfg Config
	ex  *Extractor
}

// NewScorer returns a scorer using cfg's weights, threshold and tolerance.
func NewScorer(cfg Config, ex *Extractor) *Scorer {
	return &Scorer{cfg: cfg, ex: ex}
}

// Score compares the matching titles of a and b.
func (s *Scorer) Score(a, b domain.MarketRecord) domain.MatchCandidate {
	c := s.score(s.ex.features(a.MatchTitle()), s.ex.features(b.MatchTitle()))
	c.A, c.B = a.Key(), b.Key()
	return c
}

func (s *Scorer) score(a, b features) domain.MatchCandidate {
	var c domain.MatchCandidate
	if reason, ok := s.hardConstraints(a.tokens, b.tokens); !ok {
		c.Reason = reason
		return c
	}
	c.PassedHardConstraints = true

	// Components without evidence on either side drop out and the
	// remaining weights are renormalized.
	w := s.cfg.Weights
	var weight, partial float64
	if ea, eb := a.tokens.OfKind(domain.TokenEntity), b.tokens.OfKind(domain.TokenEntity); len(ea)+len(eb) > 0 {
		c.Components.Entity = jaccard(ea, eb)
		weight += w.Entity
		partial += w.Entity * c.Components.Entity
	}
	numKinds := []domain.TokenKind{domain.TokenYear, domain.TokenNumeric, domain.TokenPrice}
	if na, nb := a.tokens.OfKind(numKinds...), b.tokens.OfKind(numKinds...); len(na)+len(nb) > 0 {
		c.Components.Numeric = s.numericAgreement(na, nb)
		weight += w.Numeric
		partial += w.Numeric * c.Components.Numeric
	}
	if va, vb := a.tokens.OfKind(domain.TokenWord), b.tokens.OfKind(domain.TokenWord); len(va)+len(vb) > 0 {
		c.Components.Vocabulary = jaccard(va, vb)
		weight += w.Vocabulary
		partial += w.Vocabulary * c.Components.Vocabulary
	}
	weight += w.String
	if weight == 0 {
		return c
	}

	if (partial+w.String)/weight < s.cfg.MatchThreshold {
		c.Score = partial / weight
		c.Reason = "below threshold before string similarity"
	} else {
		c.Components.String = Similarity(a.norm, b.norm)
		c.Score = math.Min(1, (partial+w.String*c.Components.String)/weight)
	}

	if inv, why := detectInversion(a.words, b.words); inv {
		c.Inverted = true
		c.Reason = why
	}
	return c
}

// hardConstraints rejects pairs whose years or thresholds disagree.
func (s *Scorer) hardConstraints(a, b domain.TokenSet) (string, bool) {
	ya, yb := a.OfKind(domain.TokenYear), b.OfKind(domain.TokenYear)
	if len(ya) > 0 && len(yb) > 0 && !sameTokens(ya, yb) {
		return fmt.Sprintf("year mismatch: %s vs %s", tokenValues(ya), tokenValues(yb)), false
	}

	ta, tb := thresholds(a), thresholds(b)
	for _, unit := range []string{"$", "%"} {
		av, bv := ta[unit], tb[unit]
		if len(av) == 0 || len(bv) == 0 {
			continue
		}
		if !s.covers(av, bv) || !s.covers(bv, av) {
			return fmt.Sprintf("threshold mismatch (%s): %v vs %v", unit, av, bv), false
		}
	}
	return "", true
}

// covers reports whether every value in xs has a counterpart in ys.
func (s *Scorer) covers(xs, ys []float64) bool {
	for _, x := range xs {
		found := false
		for _, y := range ys {
			if s.withinTolerance(x, y) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (s *Scorer) withinTolerance(x, y float64) bool {
	return math.Abs(x-y) <= s.cfg.NumericTolerance*math.Max(math.Abs(x), math.Abs(y))
}

// numericAgreement is shared/union over numeric, year and price tokens,
// where numbers within tolerance of the same kind and unit count as shared.
func (s *Scorer) numericAgreement(a, b []domain.Token) float64 {
	used := make([]bool, len(b))
	shared := 0
	for _, ta := range a {
		for j, tb := range b {
			if !used[j] && s.sameNumber(ta, tb) {
				used[j] = true
				shared++
				break
			}
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}

func (s *Scorer) sameNumber(a, b domain.Token) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a == b {
		return true
	}
	if a.Kind == domain.TokenYear {
		return false
	}
	ua, va, oka := threshold(a)
	ub, vb, okb := threshold(b)
	if oka || okb {
		return oka && okb && ua == ub && s.withinTolerance(va, vb)
	}
	x, errA := strconv.ParseFloat(a.Value, 64)
	y, errB := strconv.ParseFloat(b.Value, 64)
	return errA == nil && errB == nil && s.withinTolerance(x, y)
}

func thresholds(ts domain.TokenSet) map[string][]float64 {
	out := make(map[string][]float64)
	for _, t := range ts.Sorted() {
		if unit, v, ok := threshold(t); ok {
			out[unit] = append(out[unit], v)
		}
	}
	return out
}

func jaccard(a, b []domain.Token) float64 {
	if len(a)+len(b) == 0 {
		return 0
	}
	set := domain.NewTokenSet(a...)
	inter := 0
	for _, t := range b {
		if set.Has(t) {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

func sameTokens(a, b []domain.Token) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func tokenValues(ts []domain.Token) string {
	vals := make([]string, len(ts))
	for i, t := range ts {
		vals[i] = t.Value
	}
	return "[" + strings.Join(vals, ",") + "]"
}
