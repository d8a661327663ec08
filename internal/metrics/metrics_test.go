package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

func scrape(t *testing.T, m *ScanMetrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	return rec.Body.String()
}

func assertSeries(t *testing.T, body string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(body, w+"\n") {
			t.Errorf("exposition missing %q", w)
		}
	}
}

func TestRecordCycle(t *testing.T) {
	m := New()
	pairs := []domain.MatchedPair{
		{Origin: domain.OriginManual, Confidence: 1},
		{Origin: domain.OriginAutomatic, Confidence: 0.8},
		{Origin: domain.OriginAutomatic, Confidence: 0.7},
	}
	m.RecordCycle(time.Second, nil, pairs, nil, 2)
	m.RecordCycle(time.Second, errors.New("boom"), nil, nil, 0)

	assertSeries(t, scrape(t, m),
		`crossarb_matched_pairs{origin="automatic"} 2`,
		`crossarb_matched_pairs{origin="manual"} 1`,
		`crossarb_matched_groups{origin="manual"} 0`,
		"crossarb_malformed_records_total 2",
		`crossarb_cycles_total{status="error"} 1`,
		`crossarb_cycles_total{status="ok"} 1`,
		"crossarb_match_confidence_count 2",
	)
}

func TestRecordFetch(t *testing.T) {
	m := New()
	m.RecordFetch(domain.PlatformKalshi, 200*time.Millisecond, 42, nil)
	m.RecordFetch(domain.PlatformKalshi, time.Second, 0, errors.New("timeout"))

	assertSeries(t, scrape(t, m),
		`crossarb_markets{platform="kalshi"} 42`,
		`crossarb_fetch_total{platform="kalshi",status="error"} 1`,
		`crossarb_fetch_total{platform="kalshi",status="ok"} 1`,
	)
}

func TestRecordOpportunity(t *testing.T) {
	m := New()
	m.RecordOpportunity(domain.ArbitrageOpportunity{Kind: domain.OpportunityBinary, SpreadBps: 800})
	m.RecordSuppressed()

	assertSeries(t, scrape(t, m),
		`crossarb_opportunities_total{kind="binary"} 1`,
		"crossarb_opportunities_suppressed_total 1",
		`crossarb_opportunity_spread_bps_bucket{kind="binary",le="1000"} 1`,
	)
}
