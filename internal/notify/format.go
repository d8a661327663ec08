package notify

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

var kindLabels = map[domain.OpportunityKind]string{
	domain.OpportunityBinary:       "Cross-platform binary",
	domain.OpportunityMultiOutcome: "Cross-platform multi-outcome",
	domain.OpportunityIntraBinary:  "Single-market Yes/No",
	domain.OpportunityNegRisk:      "Single-platform multi-outcome",
	domain.OpportunityLogical:      "Logical spread",
}

// FormatOpportunity renders opp as a plain-text title and body.
func FormatOpportunity(opp domain.ArbitrageOpportunity) (title, body string) {
	kind, ok := kindLabels[opp.Kind]
	if !ok {
		kind = string(opp.Kind)
	}
	spreadPct := decimal.NewFromFloat(opp.Spread).Shift(2).StringFixed(2)
	title = fmt.Sprintf("%s spread %s%%", kind, spreadPct)

	var b strings.Builder
	if opp.Title != "" {
		b.WriteString(opp.Title)
		b.WriteByte('\n')
	}
	for _, leg := range opp.Legs {
		fmt.Fprintf(&b, "BUY %s on %s (%s) @ %s",
			leg.OutcomeLabel, leg.Platform, leg.NativeID,
			decimal.NewFromFloat(leg.Price).StringFixed(3))
		if leg.FeeBps > 0 {
			fmt.Fprintf(&b, " +%sbps fee", decimal.NewFromFloat(leg.FeeBps).String())
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Cost %s, spread %s bps, confidence %s",
		decimal.NewFromFloat(opp.TotalCost).StringFixed(4),
		decimal.NewFromFloat(opp.SpreadBps).StringFixed(0),
		decimal.NewFromFloat(opp.Confidence).StringFixed(2))
	if opp.Origin == domain.OriginManual {
		b.WriteString(" (manual mapping)")
	}
	return title, b.String()
}
