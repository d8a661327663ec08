package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat accepts a JSON number, a numeric string, or null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		*f = flexFloat(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIEvent is an event as returned by GET /events. An event groups one or
// more related markets; NegRisk events are mutually exclusive outcomes.
type APIEvent struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Slug      string      `json:"slug"`
	Active    flexBool    `json:"active"`
	Closed    bool        `json:"closed"`
	NegRisk   bool        `json:"negRisk"`
	EndDate   string      `json:"endDate"`
	Liquidity flexFloat   `json:"liquidity"`
	Markets   []APIMarket `json:"markets"`
}

// APIMarket is a market inside an event or from GET /markets.
type APIMarket struct {
	ID             string    `json:"id"`
	Question       string    `json:"question"`
	Title          string    `json:"title"`
	GroupItemTitle string    `json:"groupItemTitle"`
	Slug           string    `json:"slug"`
	Active         flexBool  `json:"active"`
	Closed         bool      `json:"closed"`
	Outcomes       string    `json:"outcomes"`      // JSON-encoded: "[\"Yes\",\"No\"]"
	OutcomePrices  string    `json:"outcomePrices"` // JSON-encoded: "[\"0.5\",\"0.5\"]"
	BestBid        flexFloat `json:"bestBid"`
	BestAsk        flexFloat `json:"bestAsk"`
	Liquidity      flexFloat `json:"liquidity"`
	EndDate        string    `json:"endDate"`
}

// title returns the question, falling back to the title field some
// endpoints use instead.
func (m *APIMarket) title() string {
	if q := strings.TrimSpace(m.Question); q != "" {
		return q
	}
	return strings.TrimSpace(m.Title)
}

func (m *APIMarket) open() bool { return !m.Closed && bool(m.Active) }

// outcomes decodes the JSON-in-string outcome labels and prices. Missing or
// unparsable prices are nil.
func (m *APIMarket) outcomes() []domain.Outcome {
	var labels, prices []string
	_ = json.Unmarshal([]byte(m.Outcomes), &labels)
	_ = json.Unmarshal([]byte(m.OutcomePrices), &prices)
	if len(labels) == 0 {
		labels = []string{"Yes", "No"}
	}
	out := make([]domain.Outcome, len(labels))
	for i, l := range labels {
		out[i] = domain.Outcome{Label: l}
		if i < len(prices) {
			if v, err := strconv.ParseFloat(prices[i], 64); err == nil && v > 0 && v <= 1 {
				out[i].Price = domain.Price(v)
			}
		}
	}
	return out
}

// yesAsk is the best ask for "Yes", or the last outcome price.
func (m *APIMarket) yesAsk() *float64 {
	if v := float64(m.BestAsk); v > 0 && v <= 1 {
		return domain.Price(v)
	}
	if o := m.outcomes(); len(o) > 0 {
		return o[0].Price
	}
	return nil
}

// noAsk is what "No" costs: 1 - best Yes bid, or the last outcome price.
func (m *APIMarket) noAsk() *float64 {
	if v := float64(m.BestBid); v > 0 && v < 1 {
		return domain.Price(1 - v)
	}
	if o := m.outcomes(); len(o) > 1 {
		return o[1].Price
	}
	return nil
}

// ToRecord converts a standalone market. Binary markets get Yes/No asks
// from the book; other markets keep their listed outcome prices.
func (m *APIMarket) ToRecord() domain.MarketRecord {
	rec := domain.MarketRecord{
		Platform: domain.PlatformPolymarket,
		NativeID: m.ID,
		Title:    m.title(),
		Outcomes: m.outcomes(),
	}
	if len(rec.Outcomes) == 2 {
		rec.Outcomes[0].Price = m.yesAsk()
		rec.Outcomes[1].Price = m.noAsk()
	}
	rec.ResolutionDate = parseTime(m.EndDate)
	if m.Liquidity > 0 {
		rec.Liquidity = domain.Price(float64(m.Liquidity))
	}
	return rec
}

// ToRecords converts an event. A NegRisk event with at least minOutcomes
// open markets becomes one multi-outcome record whose outcomes are the
// markets' group titles priced at their Yes asks; anything else yields one
// record per open market.
func (e *APIEvent) ToRecords(minOutcomes int) []domain.MarketRecord {
	open := make([]APIMarket, 0, len(e.Markets))
	for _, m := range e.Markets {
		if m.open() && m.title() != "" {
			open = append(open, m)
		}
	}

	if e.NegRisk && len(open) >= minOutcomes {
		rec := domain.MarketRecord{
			Platform:   domain.PlatformPolymarket,
			NativeID:   "event-" + e.ID,
			Title:      strings.TrimSpace(e.Title),
			EventTitle: strings.TrimSpace(e.Title),
			Outcomes:   make([]domain.Outcome, 0, len(open)),
		}
		for i := range open {
			label := strings.TrimSpace(open[i].GroupItemTitle)
			if label == "" {
				label = open[i].title()
			}
			rec.Outcomes = append(rec.Outcomes, domain.Outcome{Label: label, Price: open[i].yesAsk()})
		}
		rec.ResolutionDate = parseTime(e.EndDate)
		if e.Liquidity > 0 {
			rec.Liquidity = domain.Price(float64(e.Liquidity))
		}
		return []domain.MarketRecord{rec}
	}

	out := make([]domain.MarketRecord, 0, len(open))
	for i := range open {
		rec := open[i].ToRecord()
		if rec.ResolutionDate == nil {
			rec.ResolutionDate = parseTime(e.EndDate)
		}
		out = append(out, rec)
	}
	return out
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
