package match

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Extraction regexes run over normalized text. Each rule blanks out what it
// consumes so later rules never see the same characters twice.
var (
	dollarRe  = regexp.MustCompile(`\$\s?(\d[\d,]*(?:\.\d+)?)(?:\s?(k|m|b|t|bn|thousand|million|billion|trillion)\b)?`)
	amountRe  = regexp.MustCompile(`\b(\d[\d,]*(?:\.\d+)?)(?:(k|m|b|bn)|\s?(thousand|million|billion|trillion|dollars?|usd))\b`)
	percentRe = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s?(?:%|percent\b|pct\b)`)
	yearRe    = regexp.MustCompile(`\b(\d{4})\b`)
	numberRe  = regexp.MustCompile(`\b\d[\d,]*(?:\.\d+)?\b`)
)

var multipliers = map[string]float64{
	"":         1,
	"dollar":   1,
	"dollars":  1,
	"usd":      1,
	"k":        1e3,
	"thousand": 1e3,
	"m":        1e6,
	"million":  1e6,
	"b":        1e9,
	"bn":       1e9,
	"billion":  1e9,
	"t":        1e12,
	"trillion": 1e12,
}

var stopWords = map[string]struct{}{
	"the": {}, "will": {}, "and": {}, "for": {}, "are": {}, "was": {}, "were": {}, "this": {},
	"that": {}, "with": {}, "from": {}, "its": {}, "before": {}, "after": {}, "end": {},
	"than": {}, "what": {}, "which": {}, "who": {}, "does": {}, "did": {}, "has": {}, "have": {},
	"had": {}, "there": {}, "their": {}, "any": {}, "all": {}, "each": {}, "market": {},
	"question": {}, "yes": {}, "happen": {}, "year": {}, "day": {}, "date": {}, "close": {},
	"least": {}, "into": {}, "out": {}, "get": {}, "how": {}, "many": {}, "much": {}, "being": {},
	"been": {}, "can": {}, "could": {}, "would": {}, "should": {}, "next": {}, "between": {},
	"during": {}, "until": {}, "upon": {}, "via": {}, "per": {}, "within": {}, "monday": {},
	"tuesday": {}, "wednesday": {}, "thursday": {}, "friday": {}, "saturday": {}, "sunday": {},
}

// synonyms collapse word variants that carry the same meaning in market
// titles.
var synonyms = map[string]string{
	"hit": "reach", "hits": "reach", "hitting": "reach", "reaches": "reach", "reached": "reach",
	"reaching": "reach", "touch": "reach", "touches": "reach",
	"champion": "winner", "champions": "winner", "winners": "winner",
	"presidential": "president", "presidency": "president",
	"nomination": "nominee", "nominated": "nominee",
	"jan": "january", "feb": "february", "apr": "april", "jun": "june", "jul": "july",
	"aug": "august", "sep": "september", "sept": "september", "oct": "october",
	"nov": "november", "dec": "december",
}

type entityRule struct {
	name string
	re   *regexp.Regexp
}

// Extractor turns titles into typed token sets. It is immutable and safe for
// concurrent use.
type Extractor struct {
	yearMin, yearMax int
	entities         []entityRule
}

// NewExtractor builds an extractor with the default entity table. Four-digit
// numbers in [yearMin, yearMax] are tagged as years.
func NewExtractor(yearMin, yearMax int) *Extractor {
	ex := &Extractor{yearMin: yearMin, yearMax: yearMax}
	for _, e := range defaultEntities {
		quoted := make([]string, len(e.aliases))
		for i, a := range e.aliases {
			quoted[i] = regexp.QuoteMeta(a)
		}
		ex.entities = append(ex.entities, entityRule{
			name: e.name,
			re:   regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`),
		})
	}
	return ex
}

// Extract returns the token set of a display title.
func (x *Extractor) Extract(title string) domain.TokenSet {
	return x.extractNormalized(Normalize(title))
}

func (x *Extractor) extractNormalized(text string) domain.TokenSet {
	out := make(domain.TokenSet)
	if text == "" {
		return out
	}

	for _, e := range x.entities {
		text = consume(e.re, text, func([]string) {
			out.Add(domain.Token{Kind: domain.TokenEntity, Value: e.name})
		})
	}

	text = consume(dollarRe, text, func(m []string) {
		if v, ok := parseAmount(m[1], m[2]); ok {
			out.Add(domain.Token{Kind: domain.TokenPrice, Value: formatNumber(v)})
		}
	})
	text = consume(amountRe, text, func(m []string) {
		suffix := m[2]
		if suffix == "" {
			suffix = m[3]
		}
		if v, ok := parseAmount(m[1], suffix); ok {
			out.Add(domain.Token{Kind: domain.TokenPrice, Value: formatNumber(v)})
		}
	})
	text = consume(percentRe, text, func(m []string) {
		if v, ok := parseAmount(m[1], ""); ok {
			out.Add(domain.Token{Kind: domain.TokenNumeric, Value: formatNumber(v) + "%"})
		}
	})
	text = yearRe.ReplaceAllStringFunc(text, func(s string) string {
		y, err := strconv.Atoi(s)
		if err != nil || y < x.yearMin || y > x.yearMax {
			return s
		}
		out.Add(domain.Token{Kind: domain.TokenYear, Value: s})
		return strings.Repeat(" ", len(s))
	})
	text = consume(numberRe, text, func(m []string) {
		if v, ok := parseAmount(m[0], ""); ok {
			out.Add(domain.Token{Kind: domain.TokenNumeric, Value: formatNumber(v)})
		}
	})

	for _, w := range wordsOf(text) {
		if w, ok := canonicalWord(w); ok {
			out.Add(domain.Token{Kind: domain.TokenWord, Value: w})
		}
	}
	return out
}

// consume calls fn for every match of re and blanks the match out.
func consume(re *regexp.Regexp, text string, fn func(groups []string)) string {
	locs := re.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return text
	}
	b := []byte(text)
	for _, loc := range locs {
		groups := make([]string, len(loc)/2)
		for g := range groups {
			if loc[2*g] >= 0 {
				groups[g] = text[loc[2*g]:loc[2*g+1]]
			}
		}
		fn(groups)
		for i := loc[0]; i < loc[1]; i++ {
			b[i] = ' '
		}
	}
	return string(b)
}

// canonicalWord filters and canonicalizes a free word. Words that only
// express direction or negation are left to the inversion detector.
func canonicalWord(w string) (string, bool) {
	if _, polar := polarity[w]; polar {
		return "", false
	}
	if _, neg := negations[w]; neg {
		return "", false
	}
	if syn, ok := synonyms[w]; ok {
		w = syn
	}
	if len(w) > 4 && strings.HasSuffix(w, "s") &&
		!strings.HasSuffix(w, "ss") && !strings.HasSuffix(w, "us") && !strings.HasSuffix(w, "is") {
		w = strings.TrimSuffix(w, "s")
	}
	if len(w) < 3 || isDigits(w) {
		return "", false
	}
	if _, stop := stopWords[w]; stop {
		return "", false
	}
	return w, true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func parseAmount(num, suffix string) (float64, bool) {
	mult, ok := multipliers[suffix]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v * mult, true
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// threshold returns the unit and value of a price or percentage token.
func threshold(t domain.Token) (unit string, v float64, ok bool) {
	switch {
	case t.Kind == domain.TokenPrice:
		v, err := strconv.ParseFloat(t.Value, 64)
		return "$", v, err == nil
	case t.Kind == domain.TokenNumeric && strings.HasSuffix(t.Value, "%"):
		v, err := strconv.ParseFloat(strings.TrimSuffix(t.Value, "%"), 64)
		return "%", v, err == nil
	}
	return "", 0, false
}
