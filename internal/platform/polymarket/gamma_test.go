package polymarket

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

const eventsPage = `[
  {
    "id": "100", "title": "Bitcoin above $100k in 2025?", "active": true, "closed": false, "negRisk": false,
    "endDate": "2025-12-31T23:59:00Z",
    "markets": [
      {"id": "m1", "question": "Will Bitcoin reach $100k in 2025?", "active": "true", "closed": false,
       "outcomes": "[\"Yes\", \"No\"]", "outcomePrices": "[\"0.40\", \"0.60\"]",
       "bestBid": 0.41, "bestAsk": 0.42, "liquidity": "15000.5"}
    ]
  },
  {
    "id": "200", "title": "2026 World Cup winner", "active": true, "closed": false, "negRisk": true,
    "markets": [
      {"id": "w1", "question": "Will Brazil win the 2026 World Cup?", "groupItemTitle": "Brazil", "active": true,
       "outcomes": "[\"Yes\", \"No\"]", "outcomePrices": "[\"0.33\", \"0.67\"]", "bestAsk": "0.34"},
      {"id": "w2", "question": "Will France win the 2026 World Cup?", "groupItemTitle": "France", "active": true,
       "outcomes": "[\"Yes\", \"No\"]", "outcomePrices": "[\"0.30\", \"0.70\"]"},
      {"id": "w3", "question": "Will Spain win the 2026 World Cup?", "groupItemTitle": "Spain", "active": true,
       "outcomes": "[\"Yes\", \"No\"]", "outcomePrices": "[\"0.20\", \"0.80\"]"},
      {"id": "w4", "question": "Will Italy win the 2026 World Cup?", "groupItemTitle": "Italy", "active": true, "closed": true}
    ]
  }
]`

func TestFetchMarkets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events" || r.URL.Query().Get("closed") != "false" {
			t.Errorf("unexpected request %s", r.URL)
		}
		if off, _ := strconv.Atoi(r.URL.Query().Get("offset")); off > 0 {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(eventsPage))
	}))
	defer srv.Close()

	g := NewGammaClient(srv.URL, WithRateLimit(1000, 10), WithPaging(2, 5))
	records, err := g.FetchMarkets(context.Background())
	if err != nil {
		t.Fatalf("FetchMarkets: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	btc := records[0]
	if btc.Key() != "polymarket:m1" || !btc.IsBinary() {
		t.Fatalf("unexpected record %+v", btc)
	}
	yes, _ := btc.Outcome("Yes")
	no, _ := btc.Outcome("No")
	if math.Abs(*yes.Price-0.42) > 1e-9 || math.Abs(*no.Price-0.59) > 1e-9 {
		t.Errorf("asks = %v / %v", *yes.Price, *no.Price)
	}
	if btc.Liquidity == nil || *btc.Liquidity != 15000.5 {
		t.Errorf("liquidity = %v", btc.Liquidity)
	}
	if btc.ResolutionDate == nil {
		t.Error("missing resolution date")
	}

	wc := records[1]
	if wc.NativeID != "event-200" || !wc.IsMultiOutcome() || len(wc.Outcomes) != 3 {
		t.Fatalf("unexpected multi-outcome record %+v", wc)
	}
	if wc.MatchTitle() != "2026 World Cup winner" {
		t.Errorf("match title = %q", wc.MatchTitle())
	}
	bra, ok := wc.Outcome("brazil")
	if !ok || *bra.Price != 0.34 {
		t.Errorf("brazil = %+v", bra)
	}
	if fra, _ := wc.Outcome("France"); *fra.Price != 0.30 {
		t.Errorf("france = %v", *fra.Price)
	}
}

func TestSmallNegRiskEventSplits(t *testing.T) {
	e := APIEvent{ID: "1", Title: "Fed decision", NegRisk: true, Markets: []APIMarket{
		{ID: "a", Question: "Fed cuts?", Active: true},
		{ID: "b", Question: "Fed holds?", Active: true},
	}}
	recs := e.ToRecords(3)
	if len(recs) != 2 || !recs[0].IsBinary() {
		t.Fatalf("got %+v", recs)
	}
	if recs[0].Outcomes[0].Price != nil {
		t.Error("unquoted market should have nil price")
	}
}

func TestCheckHTTPStatus(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusUnauthorized, domain.ErrUnauthorized},
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusServiceUnavailable, domain.ErrUpstream},
	}
	for _, tt := range tests {
		if err := checkHTTPStatus(tt.code, []byte("nope")); !errors.Is(err, tt.want) {
			t.Errorf("%d: err = %v", tt.code, err)
		}
	}
}
