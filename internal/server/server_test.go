package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/metrics"
	"github.com/alanyoungcy/crossarb/internal/pipeline"
	"github.com/alanyoungcy/crossarb/internal/server/handler"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeScanner struct {
	report *domain.CycleReport
	stats  pipeline.Stats
	runErr error
}

func (f *fakeScanner) LastReport() (domain.CycleReport, bool) {
	if f.report == nil {
		return domain.CycleReport{}, false
	}
	return *f.report, true
}

func (f *fakeScanner) Stats() pipeline.Stats { return f.stats }

func (f *fakeScanner) RunOnce(context.Context) (domain.CycleReport, error) {
	if f.runErr != nil {
		return domain.CycleReport{}, f.runErr
	}
	return *f.report, nil
}

type fakeStore struct {
	opps []domain.ArbitrageOpportunity
	err  error
}

func (s *fakeStore) Insert(context.Context, domain.ArbitrageOpportunity) error { return nil }

func (s *fakeStore) ListRecent(_ context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.opps[:min(limit, len(s.opps))], nil
}

func (s *fakeStore) CountSince(context.Context, time.Time) (int64, error) { return 0, nil }

func (s *fakeStore) ListBetween(context.Context, time.Time, time.Time) ([]domain.ArbitrageOpportunity, error) {
	return nil, nil
}

type fakeArchive struct{ day time.Time }

func (a *fakeArchive) SaveReport(context.Context, domain.CycleReport) (string, error) { return "", nil }

func (a *fakeArchive) ExportOpportunities(context.Context, time.Time, []domain.ArbitrageOpportunity) (string, error) {
	return "", nil
}

func (a *fakeArchive) ListReports(_ context.Context, day time.Time) ([]domain.BlobInfo, error) {
	a.day = day
	return []domain.BlobInfo{{Path: "reports/2026/10/18/c1.json", Size: 10}}, nil
}

func testReport() *domain.CycleReport {
	ref := func(p domain.Platform, id string) domain.MarketRef { return domain.MarketRef{Platform: p, NativeID: id} }
	return &domain.CycleReport{
		CycleID:    "c1",
		StartedAt:  time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 10, 18, 12, 0, 2, 0, time.UTC),
		Pairs: []domain.MatchedPair{
			{A: ref(domain.PlatformPolymarket, "1"), B: ref(domain.PlatformKalshi, "K1"), Origin: domain.OriginManual, Confidence: 1},
			{A: ref(domain.PlatformPolymarket, "2"), B: ref(domain.PlatformKalshi, "K2"), Origin: domain.OriginAutomatic, Confidence: 0.7},
		},
		Opportunities: []domain.ArbitrageOpportunity{
			{ID: "o1", Kind: domain.OpportunityBinary, SpreadBps: 800},
			{ID: "o2", Kind: domain.OpportunityNegRisk, SpreadBps: 300},
		},
	}
}

func newTestHandler(cfg Config, scan handler.ScanRunner, store domain.OpportunityStore, checks map[string]handler.Check) http.Handler {
	logger := discardLogger()
	return NewHandler(cfg, Handlers{
		Health:        handler.NewHealthHandler(checks, logger),
		Status:        handler.NewStatusHandler("full", []domain.Platform{domain.PlatformKalshi}, time.Now()),
		Scan:          handler.NewScanHandler(scan, logger),
		Opportunities: handler.NewOpportunityHandler(store, scan, logger),
		Reports:       handler.NewReportHandler(&fakeArchive{}, logger),
		Metrics:       metrics.New().Handler(),
	}, nil, logger)
}

func do(t *testing.T, h http.Handler, method, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuth(t *testing.T) {
	h := newTestHandler(Config{APIKey: "secret"}, &fakeScanner{report: testReport()}, nil, nil)

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"health is public", "/api/health", nil, http.StatusOK},
		{"metrics is public", "/metrics", nil, http.StatusOK},
		{"missing token", "/api/stats", nil, http.StatusUnauthorized},
		{"wrong token", "/api/stats", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"bearer token", "/api/stats", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"api key header", "/api/stats", map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"query token", "/api/stats?token=secret", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, h, http.MethodGet, tt.path, tt.header); rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHealthDegraded(t *testing.T) {
	checks := map[string]handler.Check{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}
	rec := do(t, newTestHandler(Config{}, nil, nil, checks), http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "degraded" || body.Dependencies["postgres"] != "ok" || body.Dependencies["redis"] != "connection refused" {
		t.Fatalf("body = %+v", body)
	}
}

func TestListMatches(t *testing.T) {
	h := newTestHandler(Config{}, &fakeScanner{report: testReport()}, nil, nil)

	rec := do(t, h, http.MethodGet, "/api/matches?origin=automatic", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		CycleID string               `json:"cycle_id"`
		Pairs   []domain.MatchedPair `json:"pairs"`
		Groups  []domain.MatchedGroup
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.CycleID != "c1" || len(body.Pairs) != 1 || body.Pairs[0].B.NativeID != "K2" {
		t.Fatalf("body = %+v", body)
	}
	if body.Groups == nil {
		t.Fatal("groups should encode as an empty array")
	}
}

func TestListMatchesStates(t *testing.T) {
	if rec := do(t, newTestHandler(Config{}, &fakeScanner{}, nil, nil), http.MethodGet, "/api/matches", nil); rec.Code != http.StatusNotFound {
		t.Errorf("before first cycle: status = %d", rec.Code)
	}
	if rec := do(t, newTestHandler(Config{}, nil, nil, nil), http.MethodGet, "/api/matches", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("without scanner: status = %d", rec.Code)
	}
}

func TestTriggerScan(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, http.StatusOK},
		{"busy", domain.ErrCycleBusy, http.StatusConflict},
		{"lock held", domain.ErrLockHeld, http.StatusConflict},
		{"failure", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(Config{}, &fakeScanner{report: testReport(), runErr: tt.err}, nil, nil)
			if rec := do(t, h, http.MethodPost, "/api/scan/trigger", nil); rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestListRecentOpportunities(t *testing.T) {
	store := &fakeStore{opps: []domain.ArbitrageOpportunity{
		{ID: "s1", Kind: domain.OpportunityBinary},
		{ID: "s2", Kind: domain.OpportunityMultiOutcome},
		{ID: "s3", Kind: domain.OpportunityBinary},
	}}

	tests := []struct {
		name    string
		store   domain.OpportunityStore
		target  string
		source  string
		wantIDs []string
	}{
		{"store", store, "/api/opportunities/recent", "store", []string{"s1", "s2", "s3"}},
		{"store limit", store, "/api/opportunities/recent?limit=2", "store", []string{"s1", "s2"}},
		{"store kind", store, "/api/opportunities/recent?kind=binary", "store", []string{"s1", "s3"}},
		{"last cycle", nil, "/api/opportunities/recent?kind=negrisk", "last_cycle", []string{"o2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(Config{}, &fakeScanner{report: testReport()}, tt.store, nil)
			rec := do(t, h, http.MethodGet, tt.target, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			var body struct {
				Source        string                        `json:"source"`
				Opportunities []domain.ArbitrageOpportunity `json:"opportunities"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Source != tt.source {
				t.Errorf("source = %q", body.Source)
			}
			var ids []string
			for _, o := range body.Opportunities {
				ids = append(ids, o.ID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.wantIDs, ",") {
				t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
			}
		})
	}
}

func TestListRecentStoreError(t *testing.T) {
	h := newTestHandler(Config{}, nil, &fakeStore{err: errors.New("db down")}, nil)
	if rec := do(t, h, http.MethodGet, "/api/opportunities/recent", nil); rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestListReports(t *testing.T) {
	h := newTestHandler(Config{}, nil, nil, nil)
	if rec := do(t, h, http.MethodGet, "/api/reports?date=2026-10-18", nil); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/reports?date=18/10/2026", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date status = %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestHandler(Config{CORSOrigins: []string{"https://dash.example"}, APIKey: "k"}, nil, nil, nil)

	rec := do(t, h, http.MethodOptions, "/api/stats", map[string]string{"Origin": "https://dash.example"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example" {
		t.Fatalf("allow origin = %q", got)
	}

	rec = do(t, h, http.MethodOptions, "/api/stats", map[string]string{"Origin": "https://evil.example"})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func TestRateLimit(t *testing.T) {
	h := newTestHandler(Config{RateLimit: 0.001, Burst: 2}, nil, nil, nil)
	hdr := map[string]string{"X-Forwarded-For": "203.0.113.9"}

	for i := range 2 {
		if rec := do(t, h, http.MethodGet, "/api/health", hdr); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	rec := do(t, h, http.MethodGet, "/api/health", hdr)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/health", map[string]string{"X-Forwarded-For": "198.51.100.1"}); rec.Code != http.StatusOK {
		t.Fatalf("other client status = %d", rec.Code)
	}
}

func TestStatsAndStatus(t *testing.T) {
	scan := &fakeScanner{report: testReport(), stats: pipeline.Stats{Cycles: 3, Opportunities: 5}}
	h := newTestHandler(Config{}, scan, nil, nil)

	rec := do(t, h, http.MethodGet, "/api/stats", nil)
	var stats pipeline.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.Cycles != 3 || stats.Opportunities != 5 {
		t.Fatalf("stats = %+v", stats)
	}

	rec = do(t, h, http.MethodGet, "/api/status", nil)
	if !strings.Contains(rec.Body.String(), `"mode":"full"`) {
		t.Fatalf("status body = %s", rec.Body.String())
	}
}
