package kalshi

import (
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// KalshiMarket is a market as returned by GET /markets. Prices arrive in
// cents; newer responses also carry *_dollars strings.
type KalshiMarket struct {
	Ticker         string  `json:"ticker"`
	EventTicker    string  `json:"event_ticker"`
	Title          string  `json:"title"`
	Subtitle       string  `json:"subtitle"`
	YesSubTitle    string  `json:"yes_sub_title"`
	Status         string  `json:"status"` // "open", "active", "closed", "settled"
	YesBid         float64 `json:"yes_bid"`
	YesAsk         float64 `json:"yes_ask"`
	NoBid          float64 `json:"no_bid"`
	NoAsk          float64 `json:"no_ask"`
	YesAskDollars  string  `json:"yes_ask_dollars"`
	NoAskDollars   string  `json:"no_ask_dollars"`
	LastPrice      float64 `json:"last_price"`
	Volume         int64   `json:"volume"`
	Liquidity      float64 `json:"liquidity"` // cents
	CloseTime      string  `json:"close_time"`
	ExpirationTime string  `json:"expiration_time"`
	Category       string  `json:"category"`
}

// KalshiErrorResponse is a Kalshi API error body.
type KalshiErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// marketsPage is one page of GET /markets.
type marketsPage struct {
	Markets []KalshiMarket `json:"markets"`
	Cursor  string         `json:"cursor"`
}

// ToRecord converts a Kalshi market to the normalized record. Unquoted
// sides (0 cents) stay nil.
func (m *KalshiMarket) ToRecord() domain.MarketRecord {
	rec := domain.MarketRecord{
		Platform: domain.PlatformKalshi,
		NativeID: m.Ticker,
		Title:    strings.TrimSpace(m.Title),
		Outcomes: domain.BinaryOutcomes(
			askPrice(m.YesAskDollars, m.YesAsk),
			askPrice(m.NoAskDollars, m.NoAsk),
		),
	}
	// Multi-choice events list one market per choice with the same title;
	// the choice lives in the subtitle.
	if sub := strings.TrimSpace(m.YesSubTitle); sub != "" && !strings.Contains(strings.ToLower(rec.Title), strings.ToLower(sub)) {
		rec.Title += " " + sub
	}
	for _, ts := range []string{m.CloseTime, m.ExpirationTime} {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			rec.ResolutionDate = &t
			break
		}
	}
	if m.Liquidity > 0 {
		rec.Liquidity = domain.Price(m.Liquidity / 100)
	}
	return rec
}

// Open reports whether the market is still trading.
func (m *KalshiMarket) Open() bool {
	switch strings.ToLower(m.Status) {
	case "", "open", "active", "initialized":
		return true
	}
	return false
}

// askPrice prefers the dollar string and falls back to cents. Zero means no
// resting ask.
func askPrice(dollars string, cents float64) *float64 {
	if dollars != "" {
		if v, err := strconv.ParseFloat(dollars, 64); err == nil && v > 0 && v <= 1 {
			return domain.Price(v)
		}
	}
	if cents > 0 && cents <= 100 {
		return domain.Price(cents / 100)
	}
	return nil
}
