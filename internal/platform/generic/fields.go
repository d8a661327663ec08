package generic

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Field-name variants seen across venues, in order of preference.
var (
	envelopeKeys   = []string{"items", "data", "markets", "results", "result"}
	cursorKeys     = []string{"next_cursor", "nextCursor", "cursor", "next"}
	idKeys         = []string{"id", "market_id", "marketId", "ticker", "slug"}
	titleKeys      = []string{"question", "title", "name"}
	eventTitleKeys = []string{"event_title", "eventTitle", "group_title"}
	yesKeys        = []string{"yes_ask", "yesAsk", "best_ask", "bestAsk", "yes_price", "yesPrice", "price"}
	noKeys         = []string{"no_ask", "noAsk", "no_price", "noPrice"}
	labelKeys      = []string{"label", "name", "title", "outcome"}
	outcomePrices  = []string{"ask", "best_ask", "bestAsk", "price"}
	dateKeys       = []string{"end_date", "endDate", "close_time", "closeTime", "resolution_date", "expiration_time"}
	liquidityKeys  = []string{"liquidity", "liquidity_usd", "volume"}
	closedStatuses = map[string]bool{"closed": true, "resolved": true, "settled": true, "finalized": true, "cancelled": true}
)

type object map[string]any

func (o object) str(keys ...string) string {
	for _, k := range keys {
		switch v := o[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func (o object) num(keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := o[k].(type) {
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f, true
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// price reads a quote that may be a fraction or whole cents. Zero and
// out-of-range values are unquoted.
func (o object) price(keys ...string) *float64 {
	v, ok := o.num(keys...)
	if !ok || v <= 0 {
		return nil
	}
	if v > 1 {
		v /= 100
	}
	if v > 1 {
		return nil
	}
	return domain.Price(v)
}

func (o object) closed() bool {
	if b, ok := o["closed"].(bool); ok && b {
		return true
	}
	if b, ok := o["active"].(bool); ok && !b {
		return true
	}
	return closedStatuses[strings.ToLower(o.str("status", "state"))]
}

func (o object) date() *time.Time {
	s := o.str(dateKeys...)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 0 {
		if secs > 1e12 {
			secs /= 1000
		}
		t := time.Unix(secs, 0).UTC()
		return &t
	}
	return nil
}

// toRecord maps one loosely-typed market object. It returns false for
// closed markets and objects without an id.
func toRecord(p domain.Platform, o object) (domain.MarketRecord, bool) {
	id := o.str(idKeys...)
	if id == "" || o.closed() {
		return domain.MarketRecord{}, false
	}
	rec := domain.MarketRecord{
		Platform:       p,
		NativeID:       id,
		Title:          o.str(titleKeys...),
		EventTitle:     o.str(eventTitleKeys...),
		ResolutionDate: o.date(),
	}
	if liq, ok := o.num(liquidityKeys...); ok && liq > 0 {
		rec.Liquidity = domain.Price(liq)
	}

	if raw, ok := o["outcomes"].([]any); ok && len(raw) > 0 {
		for _, item := range raw {
			switch v := item.(type) {
			case map[string]any:
				oc := object(v)
				rec.Outcomes = append(rec.Outcomes, domain.Outcome{Label: oc.str(labelKeys...), Price: oc.price(outcomePrices...)})
			case string:
				rec.Outcomes = append(rec.Outcomes, domain.Outcome{Label: v})
			}
		}
		if len(rec.Outcomes) == 2 && rec.Outcomes[0].Price == nil && rec.Outcomes[1].Price == nil {
			rec.Outcomes[0].Price, rec.Outcomes[1].Price = o.price(yesKeys...), o.price(noKeys...)
		}
		return rec, true
	}

	yes, no := o.price(yesKeys...), o.price(noKeys...)
	rec.Outcomes = domain.BinaryOutcomes(yes, no)
	return rec, true
}

// listOf extracts the market array and the next-page cursor from a
// response that is either a bare array or an object envelope.
func listOf(body []byte) ([]object, string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, "", err
	}

	var (
		items  []any
		cursor string
	)
	switch v := root.(type) {
	case []any:
		items = v
	case map[string]any:
		env := object(v)
		for _, k := range envelopeKeys {
			if list, ok := v[k].([]any); ok {
				items = list
				break
			}
		}
		cursor = env.str(cursorKeys...)
	}

	out := make([]object, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			out = append(out, object(m))
		}
	}
	return out, cursor, nil
}
