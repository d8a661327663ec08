package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/match"
	"github.com/alanyoungcy/crossarb/internal/spread"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSource struct {
	platform domain.Platform
	records  []domain.MarketRecord
	err      error
	block    chan struct{}
}

func (f *fakeSource) Platform() domain.Platform { return f.platform }

func (f *fakeSource) FetchMarkets(ctx context.Context) ([]domain.MarketRecord, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.records, f.err
}

type memSnapshots struct {
	mu    sync.Mutex
	snaps map[domain.Platform]domain.Snapshot
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{snaps: map[domain.Platform]domain.Snapshot{}}
}

func (m *memSnapshots) Put(_ context.Context, s domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[s.Platform] = s
	return nil
}

func (m *memSnapshots) Get(_ context.Context, p domain.Platform) (domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snaps[p]
	if !ok {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	return s, nil
}

// pairMatcher returns the fixture pairs whose two keys appear on opposite
// sides, standing in for the real engine.
type pairMatcher struct {
	mu    sync.Mutex
	calls int
	pairs map[string]domain.MatchedPair
	err   error
}

func (m *pairMatcher) Match(_ context.Context, a, b []domain.MarketRecord) (match.Result, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return match.Result{}, m.err
	}
	var res match.Result
	for _, ra := range a {
		for _, rb := range b {
			// Passes run over sorted platforms, so either side may hold
			// the record the fixture listed first.
			if p, ok := m.pairs[ra.Key()+"|"+rb.Key()]; ok {
				res.Pairs = append(res.Pairs, p)
			} else if p, ok := m.pairs[rb.Key()+"|"+ra.Key()]; ok {
				res.Pairs = append(res.Pairs, p)
			}
		}
	}
	return res, nil
}

type memOpportunities struct {
	mu   sync.Mutex
	opps []domain.ArbitrageOpportunity
}

func (m *memOpportunities) Insert(_ context.Context, o domain.ArbitrageOpportunity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opps = append(m.opps, o)
	return nil
}

func (m *memOpportunities) ListRecent(context.Context, int) ([]domain.ArbitrageOpportunity, error) {
	return m.opps, nil
}

func (m *memOpportunities) CountSince(context.Context, time.Time) (int64, error) {
	return int64(len(m.opps)), nil
}

func (m *memOpportunities) ListBetween(_ context.Context, from, to time.Time) ([]domain.ArbitrageOpportunity, error) {
	var out []domain.ArbitrageOpportunity
	for _, o := range m.opps {
		if !o.DetectedAt.Before(from) && o.DetectedAt.Before(to) {
			out = append(out, o)
		}
	}
	return out, nil
}

type memMatchLog struct{ entries []domain.MatchLogEntry }

func (m *memMatchLog) InsertBatch(_ context.Context, e []domain.MatchLogEntry) error {
	m.entries = append(m.entries, e...)
	return nil
}

func (m *memMatchLog) ListByCycle(context.Context, string) ([]domain.MatchLogEntry, error) {
	return m.entries, nil
}

type memBus struct {
	published map[string]int
	streamed  map[string]int
}

func newMemBus() *memBus { return &memBus{published: map[string]int{}, streamed: map[string]int{}} }

func (b *memBus) Publish(_ context.Context, ch string, _ []byte) error {
	b.published[ch]++
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (b *memBus) StreamAppend(_ context.Context, s string, _ []byte) error {
	b.streamed[s]++
	return nil
}

func (b *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type memHub struct{ topics []string }

func (h *memHub) Broadcast(topic string, _ any) { h.topics = append(h.topics, topic) }

type memArchive struct {
	reports []domain.CycleReport
	exports map[string]int
}

func (a *memArchive) SaveReport(_ context.Context, r domain.CycleReport) (string, error) {
	a.reports = append(a.reports, r)
	return "reports/" + r.CycleID + ".json", nil
}

func (a *memArchive) ExportOpportunities(_ context.Context, day time.Time, opps []domain.ArbitrageOpportunity) (string, error) {
	if a.exports == nil {
		a.exports = map[string]int{}
	}
	p := day.Format(time.DateOnly)
	a.exports[p] = len(opps)
	return p, nil
}

func (a *memArchive) ListReports(context.Context, time.Time) ([]domain.BlobInfo, error) {
	return nil, nil
}

type memAudit struct{ events []string }

func (a *memAudit) Log(_ context.Context, e string, _ map[string]any) error {
	a.events = append(a.events, e)
	return nil
}

func (a *memAudit) List(context.Context, int) ([]domain.AuditEntry, error) { return nil, nil }

type heldLock struct{}

func (heldLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

func binaryRecord(p domain.Platform, id string, yes, no float64) domain.MarketRecord {
	return domain.MarketRecord{
		Platform: p,
		NativeID: id,
		Title:    "Will the Fed cut rates in March 2026?",
		Outcomes: domain.BinaryOutcomes(domain.Price(yes), domain.Price(no)),
	}
}

type fixture struct {
	scanner *Scanner
	matcher *pairMatcher
	store   *memOpportunities
	log     *memMatchLog
	bus     *memBus
	hub     *memHub
	archive *memArchive
	audit   *memAudit
}

func newFixture(t *testing.T, sources []domain.MarketSource, cooldown time.Duration, opts ...ScannerOption) *fixture {
	t.Helper()
	pm := binaryRecord(domain.PlatformPolymarket, "pm-fed", 0.42, 0.60)
	k := binaryRecord(domain.PlatformKalshi, "FED-MAR", 0.52, 0.50)
	f := &fixture{
		matcher: &pairMatcher{pairs: map[string]domain.MatchedPair{
			pm.Key() + "|" + k.Key(): {
				A: pm.Ref(), B: k.Ref(),
				Alignment: domain.AlignmentSame, Confidence: 0.8, Origin: domain.OriginAutomatic,
			},
		}},
		store:   &memOpportunities{},
		log:     &memMatchLog{},
		bus:     newMemBus(),
		hub:     &memHub{},
		archive: &memArchive{},
		audit:   &memAudit{},
	}
	if sources == nil {
		sources = []domain.MarketSource{
			&fakeSource{platform: domain.PlatformPolymarket, records: []domain.MarketRecord{pm}},
			&fakeSource{platform: domain.PlatformKalshi, records: []domain.MarketRecord{k}},
		}
	}
	collector := NewCollector(sources, time.Second, discardLogger())
	calc := spread.NewCalculator(spread.DefaultConfig())
	ids := 0
	opts = append([]ScannerOption{
		WithSinks(Sinks{
			Opportunities: f.store,
			MatchLog:      f.log,
			Audit:         f.audit,
			Bus:           f.bus,
			Hub:           f.hub,
			Archive:       f.archive,
		}),
		WithCycleIDs(func() string { ids++; return "cycle-" + string(rune('0'+ids)) }),
	}, opts...)
	f.scanner = NewScanner(DefaultScanConfig(), collector, f.matcher, calc, spread.NewDeduper(cooldown), discardLogger(), opts...)
	return f
}

func TestRunOnceEmitsOpportunity(t *testing.T) {
	f := newFixture(t, nil, time.Hour)

	report, err := f.scanner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.CycleID != "cycle-1" {
		t.Errorf("cycle id = %q", report.CycleID)
	}
	if len(report.Pairs) != 1 {
		t.Fatalf("pairs = %d, want 1", len(report.Pairs))
	}
	if len(report.Opportunities) != 1 {
		t.Fatalf("opportunities = %d, want 1", len(report.Opportunities))
	}
	opp := report.Opportunities[0]
	if opp.Direction != "polymarket_yes_kalshi_no" {
		t.Errorf("direction = %q", opp.Direction)
	}

	if len(f.store.opps) != 1 {
		t.Errorf("stored = %d", len(f.store.opps))
	}
	if f.bus.published["opportunities"] != 1 || f.bus.streamed["opportunities"] != 1 {
		t.Errorf("bus = %+v / %+v", f.bus.published, f.bus.streamed)
	}
	if len(f.log.entries) != 1 || f.log.entries[0].Kind != "pair" {
		t.Errorf("match log = %+v", f.log.entries)
	}
	if len(f.archive.reports) != 1 {
		t.Errorf("archived reports = %d", len(f.archive.reports))
	}
	if len(f.audit.events) != 1 || f.audit.events[0] != "scan.cycle" {
		t.Errorf("audit = %v", f.audit.events)
	}
	if len(f.hub.topics) != 2 || f.hub.topics[0] != "opportunity" || f.hub.topics[1] != "cycle" {
		t.Errorf("hub topics = %v", f.hub.topics)
	}

	stats := f.scanner.Stats()
	if stats.Cycles != 1 || stats.Opportunities != 1 || stats.MatchedPairs != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.AverageConfidence != 0.8 {
		t.Errorf("average confidence = %v", stats.AverageConfidence)
	}
	if last, ok := f.scanner.LastReport(); !ok || last.CycleID != "cycle-1" {
		t.Errorf("last report = %+v, %v", last.CycleID, ok)
	}
}

func TestRunOnceCooldownSuppressesRepeat(t *testing.T) {
	f := newFixture(t, nil, time.Hour)
	ctx := context.Background()

	if _, err := f.scanner.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	report, err := f.scanner.RunOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Opportunities) != 0 || report.Suppressed != 1 {
		t.Fatalf("second cycle opportunities=%d suppressed=%d", len(report.Opportunities), report.Suppressed)
	}
	if len(f.store.opps) != 1 {
		t.Fatalf("stored = %d, want 1", len(f.store.opps))
	}
	if s := f.scanner.Stats(); s.Suppressed != 1 || s.Cycles != 2 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestRunOnceBusy(t *testing.T) {
	release := make(chan struct{})
	sources := []domain.MarketSource{&fakeSource{platform: domain.PlatformKalshi, block: release}}
	f := newFixture(t, sources, 0)

	done := make(chan error, 1)
	go func() {
		_, err := f.scanner.RunOnce(context.Background())
		done <- err
	}()

	deadline := time.After(2 * time.Second)
	for !f.scanner.busy.Load() {
		select {
		case <-deadline:
			t.Fatal("first cycle never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	_, err := f.scanner.RunOnce(context.Background())
	if !errors.Is(err, domain.ErrCycleBusy) {
		t.Fatalf("err = %v, want ErrCycleBusy", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if s := f.scanner.Stats(); s.SkippedCycles != 1 {
		t.Fatalf("skipped = %d", s.SkippedCycles)
	}
}

func TestRunOnceLockHeld(t *testing.T) {
	f := newFixture(t, nil, 0, WithLock(heldLock{}))
	_, err := f.scanner.RunOnce(context.Background())
	if !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("err = %v, want ErrLockHeld", err)
	}
	if f.matcher.calls != 0 {
		t.Fatal("matcher ran without the lock")
	}
}

func TestRunOnceMatchFailure(t *testing.T) {
	f := newFixture(t, nil, 0)
	boom := errors.New("boom")
	f.matcher.err = boom

	_, err := f.scanner.RunOnce(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if len(f.store.opps) != 0 || len(f.archive.reports) != 0 {
		t.Fatal("sinks ran for a failed cycle")
	}
	if s := f.scanner.Stats(); s.FailedCycles != 1 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestRunOnceSkipsMalformed(t *testing.T) {
	good := binaryRecord(domain.PlatformKalshi, "OK", 0.4, 0.5)
	bad := binaryRecord(domain.PlatformKalshi, "", 0.4, 0.5)
	priced := binaryRecord(domain.PlatformKalshi, "PRICE", 1.4, 0.5)
	sources := []domain.MarketSource{
		&fakeSource{platform: domain.PlatformKalshi, records: []domain.MarketRecord{good, bad, priced, good}},
	}
	f := newFixture(t, sources, 0)

	report, err := f.scanner.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Malformed != 3 {
		t.Fatalf("malformed = %d, want 3", report.Malformed)
	}
	// One platform means no cross-platform pass.
	if f.matcher.calls != 0 {
		t.Fatalf("matcher calls = %d", f.matcher.calls)
	}
	// 0.4 + 0.5 leaves a 10% intra-market spread.
	if len(report.Opportunities) != 1 || report.Opportunities[0].Kind != domain.OpportunityIntraBinary {
		t.Fatalf("opportunities = %+v", report.Opportunities)
	}
}

func TestCollectorFallsBackToCache(t *testing.T) {
	cache := newMemSnapshots()
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	cached := []domain.MarketRecord{binaryRecord(domain.PlatformKalshi, "K", 0.5, 0.5)}
	_ = cache.Put(context.Background(), domain.Snapshot{Platform: domain.PlatformKalshi, Records: cached, FetchedAt: now.Add(-time.Minute)})
	_ = cache.Put(context.Background(), domain.Snapshot{Platform: domain.PlatformOpinion, Records: cached, FetchedAt: now.Add(-time.Hour)})

	fresh := []domain.MarketRecord{binaryRecord(domain.PlatformPolymarket, "P", 0.5, 0.5)}
	sources := []domain.MarketSource{
		&fakeSource{platform: domain.PlatformPolymarket, records: fresh},
		&fakeSource{platform: domain.PlatformKalshi, err: domain.ErrUpstream},
		&fakeSource{platform: domain.PlatformOpinion, err: domain.ErrUpstream},
	}
	c := NewCollector(sources, time.Second, discardLogger(), WithSnapshotCache(cache, 10*time.Minute))
	c.now = func() time.Time { return now }

	snaps, fetches, err := c.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		platform  domain.Platform
		markets   int
		fromCache bool
		failed    bool
	}{
		{domain.PlatformKalshi, 1, true, true},
		{domain.PlatformOpinion, 0, false, true},
		{domain.PlatformPolymarket, 1, false, false},
	}
	if len(fetches) != len(want) {
		t.Fatalf("fetches = %d", len(fetches))
	}
	for i, w := range want {
		f := fetches[i]
		if f.Platform != w.platform || f.Markets != w.markets || f.FromCache != w.fromCache || (f.Error != "") != w.failed {
			t.Errorf("fetch %d = %+v, want %+v", i, f, w)
		}
		if len(snaps[i].Records) != w.markets {
			t.Errorf("snapshot %d records = %d", i, len(snaps[i].Records))
		}
	}

	if got, _ := cache.Get(context.Background(), domain.PlatformPolymarket); len(got.Records) != 1 {
		t.Error("successful fetch was not cached")
	}
}

func TestCollectorTimeout(t *testing.T) {
	slow := &fakeSource{platform: domain.PlatformPredict, block: make(chan struct{})}
	c := NewCollector([]domain.MarketSource{slow}, 20*time.Millisecond, discardLogger())

	_, fetches, err := c.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if fetches[0].Error == "" {
		t.Fatal("timed out fetch should be reported as failed")
	}
}

func TestMergeGroupsAcrossPasses(t *testing.T) {
	ref := func(p domain.Platform, id, label string) domain.OutcomeRef {
		return domain.OutcomeRef{Platform: p, NativeID: id, OutcomeLabel: label}
	}
	kp := domain.MatchedGroup{
		Key: "kalshi:WC|predict:wc", Confidence: 0.9, Origin: domain.OriginAutomatic,
		Legs: []domain.GroupLeg{
			{Label: "Brazil", Refs: []domain.OutcomeRef{ref(domain.PlatformKalshi, "WC", "Brazil"), ref(domain.PlatformPredict, "wc", "Brazil")}},
			{Label: "France", Refs: []domain.OutcomeRef{ref(domain.PlatformKalshi, "WC", "France"), ref(domain.PlatformPredict, "wc", "France")}},
		},
	}
	kr := domain.MatchedGroup{
		Key: "kalshi:WC|probable:9", Confidence: 0.7, Origin: domain.OriginAutomatic,
		Legs: []domain.GroupLeg{
			{Label: "brazil", Refs: []domain.OutcomeRef{ref(domain.PlatformKalshi, "WC", "Brazil"), ref(domain.PlatformProbable, "9", "Brazil")}},
		},
	}
	other := domain.MatchedGroup{Key: "z", Confidence: 1, Origin: domain.OriginManual}

	got := mergeGroups([]domain.MatchedGroup{kr, other, kp})
	if len(got) != 2 {
		t.Fatalf("groups = %d, want 2", len(got))
	}
	m := got[0]
	if m.Key != "kalshi:WC|predict:wc" || m.Confidence != 0.7 || m.Origin != domain.OriginAutomatic {
		t.Fatalf("merged = %+v", m)
	}
	if len(m.Legs) != 2 {
		t.Fatalf("legs = %+v", m.Legs)
	}
	for _, leg := range m.Legs {
		if leg.Label == "brazil" || leg.Label == "Brazil" {
			if len(leg.Refs) != 3 {
				t.Errorf("brazil refs = %+v", leg.Refs)
			}
		}
	}
	if got[1].Key != "z" {
		t.Errorf("unrelated group = %+v", got[1])
	}
}

func TestMergePairsDedup(t *testing.T) {
	p := domain.MatchedPair{
		A: domain.MarketRef{Platform: domain.PlatformKalshi, NativeID: "A"},
		B: domain.MarketRef{Platform: domain.PlatformPolymarket, NativeID: "B"},
	}
	swapped := domain.MatchedPair{A: p.B, B: p.A}
	if got := mergePairs([][]domain.MatchedPair{{p}, {swapped}}); len(got) != 1 {
		t.Fatalf("pairs = %d, want 1", len(got))
	}
}

func TestLinkPairs(t *testing.T) {
	mref := func(p domain.Platform, id string) domain.MarketRef {
		return domain.MarketRef{Platform: p, NativeID: id, Title: "Fed cut in March"}
	}
	pm, k, pr := mref(domain.PlatformPolymarket, "X"), mref(domain.PlatformKalshi, "Y"), mref(domain.PlatformPredict, "Z")
	pair := func(a, b domain.MarketRef, al domain.Alignment, conf float64) domain.MatchedPair {
		return domain.MatchedPair{A: a, B: b, Alignment: al, Confidence: conf, Origin: domain.OriginAutomatic}
	}
	labels := func(string) (string, string, bool) { return "Yes", "No", true }

	tests := []struct {
		name      string
		pairs     []domain.MatchedPair
		wantPairs int
		wantYes   map[string]string
	}{
		{
			name:      "single pair stays a pair",
			pairs:     []domain.MatchedPair{pair(k, pm, domain.AlignmentSame, 0.9)},
			wantPairs: 1,
		},
		{
			name: "three venues become one group",
			pairs: []domain.MatchedPair{
				pair(k, pm, domain.AlignmentSame, 0.9),
				pair(k, pr, domain.AlignmentInverted, 0.8),
				pair(pm, pr, domain.AlignmentInverted, 0.85),
			},
			wantYes: map[string]string{"kalshi:Y": "Yes", "polymarket:X": "Yes", "predict:Z": "No"},
		},
		{
			name: "contradicting alignments keep their pairs",
			pairs: []domain.MatchedPair{
				pair(k, pm, domain.AlignmentSame, 0.9),
				pair(k, pr, domain.AlignmentSame, 0.8),
				pair(pm, pr, domain.AlignmentInverted, 0.85),
			},
			wantPairs: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pairs, groups := linkPairs(tt.pairs, labels)
			if len(pairs) != tt.wantPairs {
				t.Fatalf("pairs = %d, want %d", len(pairs), tt.wantPairs)
			}
			if tt.wantYes == nil {
				if len(groups) != 0 {
					t.Fatalf("groups = %+v", groups)
				}
				return
			}
			if len(groups) != 1 {
				t.Fatalf("groups = %d, want 1", len(groups))
			}
			g := groups[0]
			if g.Key != "linked:kalshi:Y" || g.Confidence != 0.8 || g.Origin != domain.OriginAutomatic {
				t.Errorf("group = %+v", g)
			}
			if len(g.Legs) != 2 || g.Legs[0].Label != "yes" || g.Legs[1].Label != "no" {
				t.Fatalf("legs = %+v", g.Legs)
			}
			for _, r := range g.Legs[0].Refs {
				if tt.wantYes[r.MarketKey()] != r.OutcomeLabel {
					t.Errorf("yes leg %s uses %q, want %q", r.MarketKey(), r.OutcomeLabel, tt.wantYes[r.MarketKey()])
				}
			}
			if len(g.Legs[0].Refs) != 3 || len(g.Legs[1].Refs) != 3 {
				t.Errorf("legs = %+v", g.Legs)
			}
		})
	}
}

func TestRunOnceLinksThreeVenues(t *testing.T) {
	engine, err := match.NewEngine(match.DefaultConfig(), nil, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	sources := []domain.MarketSource{
		&fakeSource{platform: domain.PlatformPolymarket, records: []domain.MarketRecord{binaryRecord(domain.PlatformPolymarket, "X", 0.40, 0.62)}},
		&fakeSource{platform: domain.PlatformKalshi, records: []domain.MarketRecord{binaryRecord(domain.PlatformKalshi, "Y", 0.55, 0.47)}},
		&fakeSource{platform: domain.PlatformPredict, records: []domain.MarketRecord{binaryRecord(domain.PlatformPredict, "Z", 0.58, 0.45)}},
	}
	scanner := NewScanner(DefaultScanConfig(), NewCollector(sources, time.Second, discardLogger()), engine,
		spread.NewCalculator(spread.DefaultConfig()), spread.NewDeduper(time.Hour), discardLogger())

	report, err := scanner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(report.Pairs) != 0 || len(report.Groups) != 1 {
		t.Fatalf("pairs = %+v groups = %+v", report.Pairs, report.Groups)
	}
	if len(report.Opportunities) != 1 {
		t.Fatalf("opportunities = %+v", report.Opportunities)
	}
	opp := report.Opportunities[0]
	if opp.Kind != domain.OpportunityMultiOutcome || math.Abs(opp.Spread-0.15) > 1e-9 {
		t.Fatalf("opportunity = %+v", opp)
	}
	legs := map[domain.Platform]string{}
	for _, l := range opp.Legs {
		legs[l.Platform] = l.OutcomeLabel
	}
	if len(legs) != 2 || legs[domain.PlatformPolymarket] != "Yes" || legs[domain.PlatformPredict] != "No" {
		t.Errorf("legs = %+v", opp.Legs)
	}
}

func TestRunOnceLogicalSpread(t *testing.T) {
	engine, err := match.NewEngine(match.DefaultConfig(), nil, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	hard := binaryRecord(domain.PlatformPolymarket, "btc100", 0.36, 0.66)
	hard.Title = "Will Bitcoin be above $100k in 2025?"
	easy := binaryRecord(domain.PlatformPolymarket, "btc90", 0.30, 0.72)
	easy.Title = "Will Bitcoin be above $90k in 2025?"
	sources := []domain.MarketSource{
		&fakeSource{platform: domain.PlatformPolymarket, records: []domain.MarketRecord{hard, easy}},
		&fakeSource{platform: domain.PlatformKalshi, records: []domain.MarketRecord{binaryRecord(domain.PlatformKalshi, "FED", 0.50, 0.52)}},
	}
	scanner := NewScanner(DefaultScanConfig(), NewCollector(sources, time.Second, discardLogger()), engine,
		spread.NewCalculator(spread.DefaultConfig()), spread.NewDeduper(time.Hour), discardLogger())

	report, err := scanner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(report.Implications) != 1 || report.Implications[0].Hard.NativeID != "btc100" {
		t.Fatalf("implications = %+v", report.Implications)
	}
	if len(report.Opportunities) != 1 {
		t.Fatalf("opportunities = %+v", report.Opportunities)
	}
	opp := report.Opportunities[0]
	if opp.Kind != domain.OpportunityLogical || opp.PairKey != "logical:polymarket:btc100:polymarket:btc90" {
		t.Errorf("opportunity = %+v", opp)
	}
}

func TestExporterExportsPreviousDay(t *testing.T) {
	day := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	store := &memOpportunities{opps: []domain.ArbitrageOpportunity{
		{ID: "a", DetectedAt: day.Add(time.Hour)},
		{ID: "b", DetectedAt: day.Add(23 * time.Hour)},
		{ID: "c", DetectedAt: day.Add(25 * time.Hour)},
	}}
	archive := &memArchive{}
	e := NewExporter(store, archive, discardLogger())
	e.now = func() time.Time { return day.Add(24*time.Hour + 15*time.Minute) }

	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if archive.exports["2026-10-17"] != 2 {
		t.Fatalf("exports = %v", archive.exports)
	}
}

func TestCronNext(t *testing.T) {
	base := time.Date(2026, 10, 18, 10, 7, 30, 0, time.UTC)
	tests := []struct {
		expr string
		want time.Time
	}{
		{"15 0 * * *", time.Date(2026, 10, 19, 0, 15, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2026, 10, 18, 10, 15, 0, 0, time.UTC)},
		{"0 9-17 * * 1-5", time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)},
		{"8,9 10 * * *", time.Date(2026, 10, 18, 10, 8, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		sched, err := parseCron(tt.expr)
		if err != nil {
			t.Fatalf("parseCron(%q): %v", tt.expr, err)
		}
		got, err := sched.next(base)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("%q next = %v, want %v", tt.expr, got, tt.want)
		}
	}

	for _, bad := range []string{"* * *", "60 * * * *", "a * * * *", "*/0 * * * *", "5-1 * * * *"} {
		if _, err := parseCron(bad); err == nil {
			t.Errorf("parseCron(%q) should fail", bad)
		}
	}
}
