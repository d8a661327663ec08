package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/match"
	"github.com/alanyoungcy/crossarb/internal/metrics"
	"github.com/alanyoungcy/crossarb/internal/notify"
	"github.com/alanyoungcy/crossarb/internal/spread"
)

// Matcher runs one matching pass between two sides.
type Matcher interface {
	Match(ctx context.Context, aSide, bSide []domain.MarketRecord) (match.Result, error)
}

// Implier finds same-platform markets where one resolving Yes forces
// another. Matchers that implement it enable logical spread checks.
type Implier interface {
	Implications(records []domain.MarketRecord) []domain.Implication
}

// Broadcaster pushes a payload to live subscribers under a topic.
type Broadcaster interface {
	Broadcast(topic string, payload any)
}

// Sinks receive the output of each cycle. Every field is optional.
type Sinks struct {
	Opportunities domain.OpportunityStore
	MatchLog      domain.MatchLogStore
	Audit         domain.AuditStore
	Bus           domain.SignalBus
	Notifier      *notify.Notifier
	Hub           Broadcaster
	Archive       domain.ReportArchive
}

// ScanConfig holds the scan loop settings.
type ScanConfig struct {
	Interval time.Duration
	// LockKey and LockTTL guard cycles across instances when a LockManager
	// is supplied.
	LockKey string
	LockTTL time.Duration
	// Channel is the pub/sub channel and Stream the durable stream that
	// opportunities are published to.
	Channel string
	Stream  string
}

// DefaultScanConfig returns the defaults used when config leaves fields empty.
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		Interval: 60 * time.Second,
		LockKey:  "scan-cycle",
		LockTTL:  5 * time.Minute,
		Channel:  "opportunities",
		Stream:   "opportunities",
	}
}

// Stats summarizes the scanner since start.
type Stats struct {
	Cycles            int64         `json:"cycles"`
	FailedCycles      int64         `json:"failed_cycles"`
	SkippedCycles     int64         `json:"skipped_cycles"`
	Opportunities     int64         `json:"opportunities"`
	Suppressed        int64         `json:"suppressed"`
	LastCycleID       string        `json:"last_cycle_id,omitempty"`
	LastCycleAt       time.Time     `json:"last_cycle_at,omitzero"`
	LastDuration      time.Duration `json:"last_duration_ns"`
	MatchedPairs      int           `json:"matched_pairs"`
	MatchedGroups     int           `json:"matched_groups"`
	AverageConfidence float64       `json:"average_confidence"`
}

// Scanner drives scan cycles. Cycles never overlap within a process; a
// LockManager extends that across processes.
type Scanner struct {
	cfg       ScanConfig
	collector *Collector
	matcher   Matcher
	calc      *spread.Calculator
	dedup     *spread.Deduper
	sinks     Sinks
	lock      domain.LockManager
	metrics   *metrics.ScanMetrics
	newID     func() string
	logger    *slog.Logger

	busy atomic.Bool

	mu    sync.RWMutex
	last  *domain.CycleReport
	stats Stats
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithLock guards each cycle with a distributed lock.
func WithLock(l domain.LockManager) ScannerOption { return func(s *Scanner) { s.lock = l } }

// WithScanMetrics records cycle and opportunity metrics.
func WithScanMetrics(m *metrics.ScanMetrics) ScannerOption {
	return func(s *Scanner) { s.metrics = m }
}

// WithSinks sets the cycle outputs.
func WithSinks(sinks Sinks) ScannerOption { return func(s *Scanner) { s.sinks = sinks } }

// WithCycleIDs overrides cycle ID generation.
func WithCycleIDs(newID func() string) ScannerOption { return func(s *Scanner) { s.newID = newID } }

// NewScanner creates a Scanner.
func NewScanner(cfg ScanConfig, collector *Collector, matcher Matcher, calc *spread.Calculator, dedup *spread.Deduper, logger *slog.Logger, opts ...ScannerOption) *Scanner {
	def := DefaultScanConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.LockKey == "" {
		cfg.LockKey = def.LockKey
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	if dedup == nil {
		dedup = spread.NewDeduper(0)
	}
	s := &Scanner{
		cfg:       cfg,
		collector: collector,
		matcher:   matcher,
		calc:      calc,
		dedup:     dedup,
		newID:     uuid.NewString,
		logger:    logger.With(slog.String("component", "scanner")),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// LastReport returns the most recent successful cycle.
func (s *Scanner) LastReport() (domain.CycleReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return domain.CycleReport{}, false
	}
	return *s.last, true
}

// Stats returns a copy of the running statistics.
func (s *Scanner) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// RunOnce executes a single cycle. It returns domain.ErrCycleBusy when a
// cycle is already running here, and an error wrapping domain.ErrLockHeld
// when another instance holds the cycle lock.
func (s *Scanner) RunOnce(ctx context.Context) (domain.CycleReport, error) {
	if !s.busy.CompareAndSwap(false, true) {
		s.skipped()
		return domain.CycleReport{}, fmt.Errorf("pipeline: run cycle: %w", domain.ErrCycleBusy)
	}
	defer s.busy.Store(false)

	if s.lock != nil {
		unlock, err := s.lock.Acquire(ctx, s.cfg.LockKey, s.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				s.skipped()
			}
			return domain.CycleReport{}, fmt.Errorf("pipeline: run cycle: %w", err)
		}
		defer unlock()
	}

	report, err := s.cycle(ctx)
	if s.metrics != nil {
		s.metrics.RecordCycle(report.Duration(), err, report.Pairs, report.Groups, report.Malformed)
	}
	s.record(report, err)
	if err != nil {
		return report, err
	}

	s.emit(ctx, report)
	return report, nil
}

// RunLoop runs a cycle immediately and then every interval until ctx is
// cancelled. Cycle errors are logged and do not stop the loop.
func (s *Scanner) RunLoop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scan loop started", slog.Duration("interval", s.cfg.Interval))
	s.runLogged(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scan loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runLogged(ctx)
		}
	}
}

func (s *Scanner) runLogged(ctx context.Context) {
	_, err := s.RunOnce(ctx)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrCycleBusy), errors.Is(err, domain.ErrLockHeld):
		s.logger.InfoContext(ctx, "scan cycle skipped", slog.String("reason", err.Error()))
	case ctx.Err() != nil:
	default:
		s.logger.ErrorContext(ctx, "scan cycle failed", slog.String("error", err.Error()))
		if nerr := s.sinks.Notifier.Notify(ctx, notify.EventCycleFailed, "Scan cycle failed", err.Error()); nerr != nil {
			s.logger.WarnContext(ctx, "cycle failure notification failed", slog.String("error", nerr.Error()))
		}
	}
}

// cycle fetches, matches and prices. Apart from the cooldown tracker it
// changes no state; sinks run afterwards in emit.
func (s *Scanner) cycle(ctx context.Context) (domain.CycleReport, error) {
	report := domain.CycleReport{CycleID: s.newID(), StartedAt: time.Now().UTC()}
	log := s.logger.With(slog.String("cycle_id", report.CycleID))

	snaps, fetches, err := s.collector.Collect(ctx)
	report.Fetches = fetches
	if err != nil {
		report.FinishedAt = time.Now().UTC()
		return report, err
	}

	byPlatform, malformed := s.sanitize(ctx, snaps)
	report.Malformed = malformed

	platforms := make([]domain.Platform, 0, len(byPlatform))
	var all []domain.MarketRecord
	for p, recs := range byPlatform {
		if len(recs) > 0 {
			platforms = append(platforms, p)
		}
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })
	for _, p := range platforms {
		all = append(all, byPlatform[p]...)
	}

	var (
		pairPasses [][]domain.MatchedPair
		groups     []domain.MatchedGroup
	)
	for i := range platforms {
		for j := i + 1; j < len(platforms); j++ {
			res, err := s.matcher.Match(ctx, byPlatform[platforms[i]], byPlatform[platforms[j]])
			if err != nil {
				report.FinishedAt = time.Now().UTC()
				return report, fmt.Errorf("pipeline: match %s/%s: %w", platforms[i], platforms[j], err)
			}
			pairPasses = append(pairPasses, res.Pairs)
			groups = append(groups, res.Groups...)
		}
	}
	quotes := spread.NewQuotes(all)
	pairs, linked := linkPairs(mergePairs(pairPasses), quotes.BinaryLabels)
	report.Pairs = pairs
	report.Groups = append(mergeGroups(groups), linked...)
	sort.SliceStable(report.Groups, func(i, j int) bool { return report.Groups[i].Key < report.Groups[j].Key })

	if im, ok := s.matcher.(Implier); ok {
		for _, p := range platforms {
			report.Implications = append(report.Implications, im.Implications(byPlatform[p])...)
		}
	}

	opps := s.calc.Evaluate(spread.Input{
		Pairs:        report.Pairs,
		Groups:       report.Groups,
		Implications: report.Implications,
		Records:      all,
	})
	s.dedup.Sweep()
	for _, opp := range opps {
		if !s.dedup.Allow(opp.DedupKey()) {
			report.Suppressed++
			if s.metrics != nil {
				s.metrics.RecordSuppressed()
			}
			continue
		}
		report.Opportunities = append(report.Opportunities, opp)
	}
	report.FinishedAt = time.Now().UTC()

	log.InfoContext(ctx, "scan cycle complete",
		slog.Int("platforms", len(platforms)),
		slog.Int("markets", len(all)),
		slog.Int("malformed", report.Malformed),
		slog.Int("pairs", len(report.Pairs)),
		slog.Int("groups", len(report.Groups)),
		slog.Int("implications", len(report.Implications)),
		slog.Int("opportunities", len(report.Opportunities)),
		slog.Int("suppressed", report.Suppressed),
		slog.Duration("duration", report.Duration()),
	)
	return report, nil
}

// sanitize drops malformed records and repeated keys per platform.
func (s *Scanner) sanitize(ctx context.Context, snaps []domain.Snapshot) (map[domain.Platform][]domain.MarketRecord, int) {
	out := make(map[domain.Platform][]domain.MarketRecord, len(snaps))
	seen := make(map[string]bool)
	bad := 0
	for _, snap := range snaps {
		recs := make([]domain.MarketRecord, 0, len(snap.Records))
		for _, r := range snap.Records {
			if r.Platform == "" {
				r.Platform = snap.Platform
			}
			if err := r.Validate(); err != nil {
				bad++
				s.logger.WarnContext(ctx, "skipping malformed record", slog.String("error", err.Error()))
				continue
			}
			if seen[r.Key()] {
				bad++
				s.logger.WarnContext(ctx, "skipping duplicate record", slog.String("key", r.Key()))
				continue
			}
			seen[r.Key()] = true
			recs = append(recs, r)
		}
		out[snap.Platform] = append(out[snap.Platform], recs...)
	}
	return out, bad
}

func (s *Scanner) skipped() {
	s.mu.Lock()
	s.stats.SkippedCycles++
	s.mu.Unlock()
}

func (s *Scanner) record(report domain.CycleReport, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Cycles++
	if err != nil {
		s.stats.FailedCycles++
		return
	}
	s.stats.Opportunities += int64(len(report.Opportunities))
	s.stats.Suppressed += int64(report.Suppressed)
	s.stats.LastCycleID = report.CycleID
	s.stats.LastCycleAt = report.FinishedAt
	s.stats.LastDuration = report.Duration()
	s.stats.MatchedPairs = len(report.Pairs)
	s.stats.MatchedGroups = len(report.Groups)
	s.stats.AverageConfidence = averageConfidence(report)
	s.last = &report
}

func averageConfidence(r domain.CycleReport) float64 {
	n := len(r.Pairs) + len(r.Groups)
	if n == 0 {
		return 0
	}
	var sum float64
	for _, p := range r.Pairs {
		sum += p.Confidence
	}
	for _, g := range r.Groups {
		sum += g.Confidence
	}
	return sum / float64(n)
}

// emit hands a finished cycle to every sink. Sink failures are logged and
// never fail the cycle.
func (s *Scanner) emit(ctx context.Context, report domain.CycleReport) {
	log := s.logger.With(slog.String("cycle_id", report.CycleID))
	warn := func(msg string, err error) {
		log.WarnContext(ctx, msg, slog.String("error", err.Error()))
	}

	for _, f := range report.Fetches {
		if f.Error != "" && !f.FromCache {
			msg := fmt.Sprintf("%s fetch failed: %s", f.Platform, f.Error)
			if err := s.sinks.Notifier.Notify(ctx, notify.EventPlatformDown, "Platform unavailable", msg); err != nil {
				warn("platform notification failed", err)
			}
		}
	}

	for _, opp := range report.Opportunities {
		if s.metrics != nil {
			s.metrics.RecordOpportunity(opp)
		}
		if s.sinks.Opportunities != nil {
			if err := s.sinks.Opportunities.Insert(ctx, opp); err != nil {
				warn("store opportunity failed", err)
			}
		}
		if s.sinks.Bus != nil {
			if err := s.publish(ctx, opp); err != nil {
				warn("publish opportunity failed", err)
			}
		}
		if s.sinks.Hub != nil {
			s.sinks.Hub.Broadcast("opportunity", opp)
		}
		if err := s.sinks.Notifier.NotifyOpportunity(ctx, opp); err != nil {
			warn("opportunity notification failed", err)
		}
	}

	if s.sinks.MatchLog != nil {
		if entries := matchLogEntries(report); len(entries) > 0 {
			if err := s.sinks.MatchLog.InsertBatch(ctx, entries); err != nil {
				warn("match log insert failed", err)
			}
		}
	}

	if s.sinks.Hub != nil {
		s.sinks.Hub.Broadcast("cycle", cycleSummary(report))
	}

	detail := map[string]any{
		"cycle_id":      report.CycleID,
		"pairs":         len(report.Pairs),
		"groups":        len(report.Groups),
		"opportunities": len(report.Opportunities),
		"suppressed":    report.Suppressed,
		"malformed":     report.Malformed,
	}
	if s.sinks.Archive != nil {
		path, err := s.sinks.Archive.SaveReport(ctx, report)
		if err != nil {
			warn("archive report failed", err)
		} else {
			detail["report_path"] = path
		}
	}
	if s.sinks.Audit != nil {
		if err := s.sinks.Audit.Log(ctx, "scan.cycle", detail); err != nil {
			warn("audit log failed", err)
		}
	}
}

func (s *Scanner) publish(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	payload, err := json.Marshal(opp)
	if err != nil {
		return fmt.Errorf("pipeline: marshal opportunity %s: %w", opp.ID, err)
	}
	if s.cfg.Channel != "" {
		if err := s.sinks.Bus.Publish(ctx, s.cfg.Channel, payload); err != nil {
			return err
		}
	}
	if s.cfg.Stream != "" {
		if err := s.sinks.Bus.StreamAppend(ctx, s.cfg.Stream, payload); err != nil {
			return err
		}
	}
	return nil
}

func matchLogEntries(r domain.CycleReport) []domain.MatchLogEntry {
	entries := make([]domain.MatchLogEntry, 0, len(r.Pairs)+len(r.Groups))
	for _, p := range r.Pairs {
		entries = append(entries, domain.MatchLogEntry{
			CycleID:    r.CycleID,
			Kind:       "pair",
			Key:        p.Key(),
			Origin:     p.Origin,
			Alignment:  p.Alignment,
			Confidence: p.Confidence,
			Detail:     p,
			CreatedAt:  r.FinishedAt,
		})
	}
	for _, g := range r.Groups {
		entries = append(entries, domain.MatchLogEntry{
			CycleID:    r.CycleID,
			Kind:       "group",
			Key:        g.Key,
			Origin:     g.Origin,
			Confidence: g.Confidence,
			Detail:     g,
			CreatedAt:  r.FinishedAt,
		})
	}
	return entries
}

// CycleSummary is the compact form of a cycle pushed to live clients.
type CycleSummary struct {
	CycleID       string    `json:"cycle_id"`
	FinishedAt    time.Time `json:"finished_at"`
	DurationMs    int64     `json:"duration_ms"`
	Pairs         int       `json:"pairs"`
	Groups        int       `json:"groups"`
	Opportunities int       `json:"opportunities"`
	Malformed     int       `json:"malformed"`
}

func cycleSummary(r domain.CycleReport) CycleSummary {
	return CycleSummary{
		CycleID:       r.CycleID,
		FinishedAt:    r.FinishedAt,
		DurationMs:    r.Duration().Milliseconds(),
		Pairs:         len(r.Pairs),
		Groups:        len(r.Groups),
		Opportunities: len(r.Opportunities),
		Malformed:     r.Malformed,
	}
}
