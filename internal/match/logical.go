package match

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

var deadlineRe = regexp.MustCompile(`\b(?:by|before)\b`)

// reachWords mark an upward threshold without an above/below word, as in
// "Will Bitcoin hit $100k".
var reachWords = map[string]struct{}{
	"reach": {}, "reaches": {}, "reached": {}, "hit": {}, "hits": {}, "top": {}, "tops": {},
}

// implicationView is what the implication finder needs from one title.
type implicationView struct {
	rec      domain.MarketRecord
	entity   string
	prices   []float64
	years    []int
	tokens   []domain.Token
	polar    string
	dir      int
	negated  bool
	deadline bool
}

func (x *Extractor) implicationView(rec domain.MarketRecord) implicationView {
	n := Normalize(rec.MatchTitle())
	words := wordsOf(n)
	v := implicationView{rec: rec, tokens: x.extractNormalized(n).Sorted(), deadline: deadlineRe.MatchString(n)}

	var entities []string
	for _, t := range v.tokens {
		switch t.Kind {
		case domain.TokenEntity:
			entities = append(entities, t.Value)
		case domain.TokenPrice:
			if f, err := strconv.ParseFloat(t.Value, 64); err == nil {
				v.prices = append(v.prices, f)
			}
		case domain.TokenYear:
			if y, err := strconv.Atoi(t.Value); err == nil {
				v.years = append(v.years, y)
			}
		}
	}
	v.entity = strings.Join(entities, "+")

	signs, neg := polarProfile(words)
	const aboveBelow = 1
	switch signs[aboveBelow] {
	case 1, -1:
		v.dir = signs[aboveBelow]
	case 0:
		for _, w := range words {
			if _, ok := reachWords[w]; ok {
				v.dir = 1
				break
			}
		}
	}
	v.negated = neg%2 == 1
	if v.negated {
		v.dir = -v.dir
	}
	signs[aboveBelow] = 0
	v.polar = fmt.Sprint(signs)
	return v
}

// skeleton renders every token except those of kind skip, so two titles
// with equal skeletons differ only in that dimension.
func (v implicationView) skeleton(skip domain.TokenKind) string {
	var b strings.Builder
	for _, t := range v.tokens {
		if t.Kind == skip {
			continue
		}
		b.WriteString(t.String())
		b.WriteByte('|')
	}
	return b.String()
}

// Implications finds binary markets on the same platform where one
// resolving Yes forces the other to resolve Yes. Two kinds are recognized:
//
//   - price thresholds: same entity and wording, thresholds at least
//     minGapPct percent apart, both above or both below a level;
//   - time windows: same entity and wording, "by"/"before" deadlines one or
//     two years apart.
//
// Titles must agree on everything except the varying threshold or year.
func (x *Extractor) Implications(records []domain.MarketRecord, minGapPct float64) []domain.Implication {
	byPrice := make(map[string][]implicationView)
	byYear := make(map[string][]implicationView)
	for _, r := range records {
		if !r.IsBinary() || r.Validate() != nil {
			continue
		}
		v := x.implicationView(r)
		if v.entity == "" {
			continue
		}
		if len(v.prices) == 1 && v.dir != 0 {
			k := fmt.Sprintf("%s\x00%s\x00%s\x00%d", r.Platform, v.skeleton(domain.TokenPrice), v.polar, v.dir)
			byPrice[k] = append(byPrice[k], v)
		}
		if len(v.years) == 1 && v.deadline && !v.negated {
			k := fmt.Sprintf("%s\x00%s\x00%s\x00%d", r.Platform, v.skeleton(domain.TokenYear), v.polar, v.dir)
			byYear[k] = append(byYear[k], v)
		}
	}

	var out []domain.Implication
	for _, k := range sortedKeys(byPrice) {
		group := byPrice[k]
		sort.SliceStable(group, func(i, j int) bool { return group[i].prices[0] < group[j].prices[0] })
		for i := range group {
			for j := i + 1; j < len(group); j++ {
				lo, hi := group[i], group[j]
				if lo.prices[0] <= 0 || (hi.prices[0]/lo.prices[0]-1)*100 < minGapPct {
					continue
				}
				hard, easy := hi, lo
				if lo.dir < 0 {
					hard, easy = lo, hi
				}
				out = append(out, domain.Implication{
					Kind:   domain.ImplicationPriceThreshold,
					Entity: lo.entity,
					Hard:   hard.rec.Ref(),
					Easy:   easy.rec.Ref(),
				})
			}
		}
	}
	for _, k := range sortedKeys(byYear) {
		group := byYear[k]
		sort.SliceStable(group, func(i, j int) bool { return group[i].years[0] < group[j].years[0] })
		for i := 0; i+1 < len(group); i++ {
			early, late := group[i], group[i+1]
			if d := late.years[0] - early.years[0]; d < 1 || d > 2 {
				continue
			}
			out = append(out, domain.Implication{
				Kind:   domain.ImplicationTimeWindow,
				Entity: early.entity,
				Hard:   early.rec.Ref(),
				Easy:   late.rec.Ref(),
			})
		}
	}
	return out
}

func sortedKeys(m map[string][]implicationView) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Implications runs the implication finder with the engine's configured
// threshold gap.
func (e *Engine) Implications(records []domain.MarketRecord) []domain.Implication {
	return e.ex.Implications(records, e.cfg.LogicalMinGapPct)
}
