package spread

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Quotes indexes one cycle's outcome asks by market. It is read-only after
// construction.
type Quotes struct {
	markets map[string][]domain.Outcome
}

// NewQuotes collects the outcomes of every record in the given snapshots.
func NewQuotes(snapshots ...[]domain.MarketRecord) *Quotes {
	q := &Quotes{markets: make(map[string][]domain.Outcome)}
	for _, records := range snapshots {
		for _, r := range records {
			q.markets[r.Key()] = r.Outcomes
		}
	}
	return q
}

// Ask returns the quoted price of one outcome. Unknown, unquoted and
// non-positive prices report false.
func (q *Quotes) Ask(ref domain.OutcomeRef) (decimal.Decimal, bool) {
	for _, o := range q.markets[ref.MarketKey()] {
		if !strings.EqualFold(strings.TrimSpace(o.Label), strings.TrimSpace(ref.OutcomeLabel)) {
			continue
		}
		if o.Price == nil || *o.Price <= 0 {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(*o.Price), true
	}
	return decimal.Zero, false
}

// Outcomes returns the outcome list of a market.
func (q *Quotes) Outcomes(marketKey string) ([]domain.Outcome, bool) {
	o, ok := q.markets[marketKey]
	return o, ok
}

// BinaryLabels returns the labels that play "Yes" and "No" in a binary
// market: the literal labels when present, otherwise the first and second
// outcome.
func (q *Quotes) BinaryLabels(marketKey string) (yes, no string, ok bool) {
	outcomes := q.markets[marketKey]
	if len(outcomes) != 2 {
		return "", "", false
	}
	yes, no = outcomes[0].Label, outcomes[1].Label
	for _, o := range outcomes {
		switch strings.ToLower(strings.TrimSpace(o.Label)) {
		case "yes":
			yes = o.Label
		case "no":
			no = o.Label
		}
	}
	return yes, no, yes != no
}
