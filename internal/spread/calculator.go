package spread

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

var (
	one       = decimal.NewFromInt(1)
	bpsFactor = decimal.NewFromInt(10_000)
)

// Config controls which spreads are reported.
type Config struct {
	// MinSpreadBps is the smallest net spread, after fees, worth reporting.
	MinSpreadBps float64
	// FeeBps is charged on each leg's price, per platform.
	FeeBps map[domain.Platform]float64
	// IntraPlatform enables single-market Yes+No and NegRisk checks.
	IntraPlatform      bool
	NegRiskMinOutcomes int
	NegRiskMaxOutcomes int
	// Logical enables hard-No plus easy-Yes checks on implications.
	Logical bool
}

// DefaultConfig returns a 2% minimum spread, the NegRisk outcome bounds
// 3..10 and logical checks on, with no fees.
func DefaultConfig() Config {
	return Config{
		MinSpreadBps:       200,
		FeeBps:             map[domain.Platform]float64{},
		IntraPlatform:      true,
		NegRiskMinOutcomes: 3,
		NegRiskMaxOutcomes: 10,
		Logical:            true,
	}
}

// Calculator prices matched markets into arbitrage opportunities. It is
// stateless apart from its configuration.
type Calculator struct {
	cfg   Config
	now   func() time.Time
	newID func() string
}

// Option customizes a Calculator.
type Option func(*Calculator)

// WithClock overrides the detection timestamp source.
func WithClock(now func() time.Time) Option { return func(c *Calculator) { c.now = now } }

// WithIDs overrides opportunity ID generation.
func WithIDs(newID func() string) Option { return func(c *Calculator) { c.newID = newID } }

// NewCalculator returns a calculator for cfg.
func NewCalculator(cfg Config, opts ...Option) *Calculator {
	c := &Calculator{cfg: cfg, now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type leg struct {
	ref   domain.OutcomeRef
	price decimal.Decimal
}

// Binary checks both directions of a matched pair: buy A's "Yes" with the
// B outcome that pays when A resolves "No", and the reverse. Alignment
// decides which B outcome that is.
func (c *Calculator) Binary(pair domain.MatchedPair, q *Quotes) []domain.ArbitrageOpportunity {
	aYes, aNo, okA := q.BinaryLabels(pair.A.Key())
	bYes, bNo, okB := q.BinaryLabels(pair.B.Key())
	if !okA || !okB {
		return nil
	}
	// B outcomes equivalent to A's Yes and No.
	bSame, bOpp := bYes, bNo
	if pair.Alignment == domain.AlignmentInverted {
		bSame, bOpp = bNo, bYes
	}

	ref := func(m domain.MarketRef, label string) domain.OutcomeRef {
		return domain.OutcomeRef{Platform: m.Platform, NativeID: m.NativeID, OutcomeLabel: label}
	}
	directions := [][2]domain.OutcomeRef{
		{ref(pair.A, aYes), ref(pair.B, bOpp)},
		{ref(pair.A, aNo), ref(pair.B, bSame)},
	}

	var out []domain.ArbitrageOpportunity
	for _, d := range directions {
		legs, ok := c.price(q, d[:])
		if !ok {
			continue
		}
		opp, ok := c.opportunity(domain.OpportunityBinary, pair.Key(), pair.A.Title, legs)
		if !ok {
			continue
		}
		opp.Confidence = pair.Confidence
		opp.Origin = pair.Origin
		out = append(out, opp)
	}
	return out
}

// MultiOutcome buys the cheapest quote of every leg of a matched group.
// Legs must jointly cover every outcome of at least one multi-outcome
// market in the group, otherwise some resolution pays nothing. Manual
// groups made only of binary markets are trusted to be exhaustive.
func (c *Calculator) MultiOutcome(group domain.MatchedGroup, q *Quotes) (domain.ArbitrageOpportunity, bool) {
	if len(group.Legs) < 2 || !covers(group, q) {
		return domain.ArbitrageOpportunity{}, false
	}
	legs := make([]leg, 0, len(group.Legs))
	for _, gl := range group.Legs {
		best, found := leg{}, false
		for _, r := range gl.Refs {
			p, ok := q.Ask(r)
			if !ok {
				continue
			}
			if !found || c.cost(r.Platform, p).LessThan(c.cost(best.ref.Platform, best.price)) {
				best, found = leg{ref: r, price: p}, true
			}
		}
		if !found {
			return domain.ArbitrageOpportunity{}, false
		}
		legs = append(legs, best)
	}
	opp, ok := c.opportunity(domain.OpportunityMultiOutcome, group.Key, group.Title, legs)
	if !ok {
		return opp, false
	}
	opp.Confidence = group.Confidence
	opp.Origin = group.Origin
	return opp, true
}

// IntraBinary checks Yes+No inside one binary market.
func (c *Calculator) IntraBinary(rec domain.MarketRecord, q *Quotes) (domain.ArbitrageOpportunity, bool) {
	yes, no, ok := q.BinaryLabels(rec.Key())
	if !ok {
		return domain.ArbitrageOpportunity{}, false
	}
	legs, ok := c.price(q, []domain.OutcomeRef{
		{Platform: rec.Platform, NativeID: rec.NativeID, OutcomeLabel: yes},
		{Platform: rec.Platform, NativeID: rec.NativeID, OutcomeLabel: no},
	})
	if !ok {
		return domain.ArbitrageOpportunity{}, false
	}
	opp, ok := c.opportunity(domain.OpportunityIntraBinary, rec.Key(), rec.MatchTitle(), legs)
	if ok {
		opp.Confidence = 1
	}
	return opp, ok
}

// NegRisk checks a single-platform multi-outcome market whose outcomes are
// mutually exclusive and exhaustive: buying every outcome pays exactly 1.
func (c *Calculator) NegRisk(rec domain.MarketRecord, q *Quotes) (domain.ArbitrageOpportunity, bool) {
	n := len(rec.Outcomes)
	if n < c.cfg.NegRiskMinOutcomes || n > c.cfg.NegRiskMaxOutcomes {
		return domain.ArbitrageOpportunity{}, false
	}
	refs := make([]domain.OutcomeRef, n)
	for i, o := range rec.Outcomes {
		refs[i] = domain.OutcomeRef{Platform: rec.Platform, NativeID: rec.NativeID, OutcomeLabel: o.Label}
	}
	legs, ok := c.price(q, refs)
	if !ok {
		return domain.ArbitrageOpportunity{}, false
	}
	opp, ok := c.opportunity(domain.OpportunityNegRisk, rec.Key(), rec.MatchTitle(), legs)
	if ok {
		opp.Confidence = 1
	}
	return opp, ok
}

// Logical prices an implication: when Hard resolving Yes forces Easy to
// resolve Yes, Hard's No plus Easy's Yes pays at least 1 in every outcome.
// It is cheap whenever Hard trades at or above Easy.
func (c *Calculator) Logical(imp domain.Implication, q *Quotes) (domain.ArbitrageOpportunity, bool) {
	_, hardNo, okH := q.BinaryLabels(imp.Hard.Key())
	easyYes, _, okE := q.BinaryLabels(imp.Easy.Key())
	if !okH || !okE {
		return domain.ArbitrageOpportunity{}, false
	}
	legs, ok := c.price(q, []domain.OutcomeRef{
		{Platform: imp.Hard.Platform, NativeID: imp.Hard.NativeID, OutcomeLabel: hardNo},
		{Platform: imp.Easy.Platform, NativeID: imp.Easy.NativeID, OutcomeLabel: easyYes},
	})
	if !ok {
		return domain.ArbitrageOpportunity{}, false
	}
	opp, ok := c.opportunity(domain.OpportunityLogical, imp.Key(), imp.Hard.Title, legs)
	if ok {
		opp.Confidence = 1
	}
	return opp, ok
}

// Input is everything one cycle hands to Evaluate.
type Input struct {
	Pairs        []domain.MatchedPair
	Groups       []domain.MatchedGroup
	Implications []domain.Implication
	Records      []domain.MarketRecord
}

// Evaluate runs every applicable check and returns the opportunities
// ordered by spread, widest first.
func (c *Calculator) Evaluate(in Input) []domain.ArbitrageOpportunity {
	q := NewQuotes(in.Records)
	var out []domain.ArbitrageOpportunity
	for _, p := range in.Pairs {
		out = append(out, c.Binary(p, q)...)
	}
	for _, g := range in.Groups {
		if opp, ok := c.MultiOutcome(g, q); ok {
			out = append(out, opp)
		}
	}
	if c.cfg.Logical {
		for _, imp := range in.Implications {
			if opp, ok := c.Logical(imp, q); ok {
				out = append(out, opp)
			}
		}
	}
	if c.cfg.IntraPlatform {
		for _, r := range in.Records {
			var (
				opp domain.ArbitrageOpportunity
				ok  bool
			)
			switch {
			case r.IsBinary():
				opp, ok = c.IntraBinary(r, q)
			case r.IsMultiOutcome():
				opp, ok = c.NegRisk(r, q)
			}
			if ok {
				out = append(out, opp)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Spread != out[j].Spread {
			return out[i].Spread > out[j].Spread
		}
		return out[i].DedupKey() < out[j].DedupKey()
	})
	return out
}

func (c *Calculator) price(q *Quotes, refs []domain.OutcomeRef) ([]leg, bool) {
	legs := make([]leg, len(refs))
	for i, r := range refs {
		p, ok := q.Ask(r)
		if !ok {
			return nil, false
		}
		legs[i] = leg{ref: r, price: p}
	}
	return legs, true
}

func (c *Calculator) feeBps(p domain.Platform) decimal.Decimal {
	return decimal.NewFromFloat(c.cfg.FeeBps[p])
}

// cost is price plus the platform fee on it.
func (c *Calculator) cost(p domain.Platform, price decimal.Decimal) decimal.Decimal {
	return price.Mul(one.Add(c.feeBps(p).Div(bpsFactor)))
}

// opportunity totals the legs and keeps the result when the net spread is
// positive and at least MinSpreadBps.
func (c *Calculator) opportunity(kind domain.OpportunityKind, pairKey, title string, legs []leg) (domain.ArbitrageOpportunity, bool) {
	total := decimal.Zero
	out := make([]domain.OpportunityLeg, len(legs))
	labels := make([]string, len(legs))
	for i, l := range legs {
		total = total.Add(c.cost(l.ref.Platform, l.price))
		out[i] = domain.OpportunityLeg{
			Platform:     l.ref.Platform,
			NativeID:     l.ref.NativeID,
			OutcomeLabel: l.ref.OutcomeLabel,
			Price:        l.price.InexactFloat64(),
			FeeBps:       c.cfg.FeeBps[l.ref.Platform],
		}
		labels[i] = strings.ToLower(fmt.Sprintf("%s_%s", l.ref.Platform, l.ref.OutcomeLabel))
	}
	spread := one.Sub(total)
	bps := spread.Mul(bpsFactor)
	if !spread.IsPositive() || bps.LessThan(decimal.NewFromFloat(c.cfg.MinSpreadBps)) {
		return domain.ArbitrageOpportunity{}, false
	}

	direction := strings.Join(labels, "_")
	if kind == domain.OpportunityNegRisk || kind == domain.OpportunityMultiOutcome {
		direction = "all_outcomes"
	}
	return domain.ArbitrageOpportunity{
		ID:         c.newID(),
		Kind:       kind,
		Direction:  direction,
		PairKey:    pairKey,
		Title:      title,
		Legs:       out,
		TotalCost:  total.InexactFloat64(),
		Spread:     spread.InexactFloat64(),
		SpreadBps:  bps.InexactFloat64(),
		DetectedAt: c.now().UTC(),
	}, true
}

// covers reports whether buying one ref per leg pays out in every
// resolution of the group: some market has each of its outcomes on a
// different leg. Manual groups made only of binary markets are trusted.
func covers(g domain.MatchedGroup, q *Quotes) bool {
	// market key -> normalized outcome label -> leg index
	referenced := make(map[string]map[string]int)
	for i, l := range g.Legs {
		for _, r := range l.Refs {
			if referenced[r.MarketKey()] == nil {
				referenced[r.MarketKey()] = make(map[string]int)
			}
			referenced[r.MarketKey()][strings.ToLower(strings.TrimSpace(r.OutcomeLabel))] = i
		}
	}
	sawMulti := false
	for mk, labels := range referenced {
		outcomes, ok := q.Outcomes(mk)
		if !ok || len(outcomes) < 2 {
			continue
		}
		if len(outcomes) >= 3 {
			sawMulti = true
		}
		legs := make(map[int]bool, len(outcomes))
		for _, o := range outcomes {
			leg, ok := labels[strings.ToLower(strings.TrimSpace(o.Label))]
			if !ok || legs[leg] {
				break
			}
			legs[leg] = true
		}
		if len(legs) == len(outcomes) {
			return true
		}
	}
	return !sawMulti && g.Origin == domain.OriginManual
}
