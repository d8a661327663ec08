package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Platform identifies a prediction-market venue. Unknown venues are carried
// as opaque strings.
type Platform string

const (
	PlatformPolymarket Platform = "polymarket"
	PlatformKalshi     Platform = "kalshi"
	PlatformPredict    Platform = "predict"
	PlatformProbable   Platform = "probable"
	PlatformOpinion    Platform = "opinion"
)

// Outcome is one tradable side of a market. A nil Price means the feed did
// not quote it.
type Outcome struct {
	Label string   `json:"label"`
	Price *float64 `json:"price,omitempty"`
}

// MarketRecord is the normalized listing every platform adapter produces.
// Records are replaced wholesale every cycle and never mutated after
// construction.
type MarketRecord struct {
	Platform       Platform   `json:"platform"`
	NativeID       string     `json:"native_id"`
	Title          string     `json:"title"`
	EventTitle     string     `json:"event_title,omitempty"`
	Outcomes       []Outcome  `json:"outcomes"`
	ResolutionDate *time.Time `json:"resolution_date,omitempty"`
	Liquidity      *float64   `json:"liquidity,omitempty"`
}

// MarketKey builds the cross-platform unique key "platform:native_id".
func MarketKey(p Platform, nativeID string) string {
	return string(p) + ":" + nativeID
}

// Key returns the record's unique key.
func (m MarketRecord) Key() string { return MarketKey(m.Platform, m.NativeID) }

// IsBinary reports whether the market has exactly two outcomes.
func (m MarketRecord) IsBinary() bool { return len(m.Outcomes) == 2 }

// IsMultiOutcome reports whether the market has three or more outcomes.
func (m MarketRecord) IsMultiOutcome() bool { return len(m.Outcomes) >= 3 }

// MatchTitle is the text used for matching: the event title for
// multi-outcome markets that carry one, the market title otherwise.
func (m MarketRecord) MatchTitle() string {
	if m.IsMultiOutcome() && strings.TrimSpace(m.EventTitle) != "" {
		return m.EventTitle
	}
	return m.Title
}

// Outcome returns the outcome whose label equals label, ignoring case.
func (m MarketRecord) Outcome(label string) (Outcome, bool) {
	for _, o := range m.Outcomes {
		if strings.EqualFold(strings.TrimSpace(o.Label), strings.TrimSpace(label)) {
			return o, true
		}
	}
	return Outcome{}, false
}

// Ref returns the lightweight reference used in match results.
func (m MarketRecord) Ref() MarketRef {
	return MarketRef{Platform: m.Platform, NativeID: m.NativeID, Title: m.MatchTitle()}
}

// Validate checks the fields the matcher and spread calculator rely on.
// Failures wrap ErrMalformedRecord.
func (m MarketRecord) Validate() error {
	switch {
	case m.Platform == "":
		return fmt.Errorf("%w: missing platform", ErrMalformedRecord)
	case strings.TrimSpace(m.NativeID) == "":
		return fmt.Errorf("%w: %s: missing native id", ErrMalformedRecord, m.Platform)
	case strings.TrimSpace(m.MatchTitle()) == "":
		return fmt.Errorf("%w: %s: missing title", ErrMalformedRecord, m.Key())
	}
	for i, o := range m.Outcomes {
		if strings.TrimSpace(o.Label) == "" {
			return fmt.Errorf("%w: %s: outcome %d has no label", ErrMalformedRecord, m.Key(), i)
		}
		if o.Price == nil {
			continue
		}
		if p := *o.Price; math.IsNaN(p) || p < 0 || p > 1 {
			return fmt.Errorf("%w: %s: outcome %q price %v outside [0,1]", ErrMalformedRecord, m.Key(), o.Label, p)
		}
	}
	return nil
}

// Price returns a pointer to v, for building outcomes.
func Price(v float64) *float64 { return &v }

// BinaryOutcomes returns the conventional Yes/No pair for a binary market.
func BinaryOutcomes(yes, no *float64) []Outcome {
	return []Outcome{{Label: "Yes", Price: yes}, {Label: "No", Price: no}}
}

// MarketRef points at a market without carrying its quotes.
type MarketRef struct {
	Platform Platform `json:"platform"`
	NativeID string   `json:"native_id"`
	Title    string   `json:"title,omitempty"`
}

// Key returns the referenced market's unique key.
func (r MarketRef) Key() string { return MarketKey(r.Platform, r.NativeID) }

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}
