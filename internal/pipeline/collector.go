// Package pipeline runs scan cycles: fetch every platform, match the
// listings, price the matches and hand the results to the configured sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/metrics"
)

// Collector fetches all sources concurrently. A source that fails or times
// out falls back to its cached snapshot when one is fresh enough, otherwise
// it contributes nothing to the cycle.
type Collector struct {
	sources  []domain.MarketSource
	cache    domain.SnapshotCache
	metrics  *metrics.ScanMetrics
	timeout  time.Duration
	maxStale time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithSnapshotCache enables caching of good fetches and fallback to them.
// Cached snapshots older than maxStale are ignored; zero means any age.
func WithSnapshotCache(c domain.SnapshotCache, maxStale time.Duration) CollectorOption {
	return func(col *Collector) {
		col.cache = c
		col.maxStale = maxStale
	}
}

// WithCollectorMetrics records each fetch.
func WithCollectorMetrics(m *metrics.ScanMetrics) CollectorOption {
	return func(col *Collector) { col.metrics = m }
}

// NewCollector creates a Collector with a per-source timeout.
func NewCollector(sources []domain.MarketSource, timeout time.Duration, logger *slog.Logger, opts ...CollectorOption) *Collector {
	c := &Collector{
		sources: sources,
		timeout: timeout,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "collector")),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Platforms lists the configured source platforms.
func (c *Collector) Platforms() []domain.Platform {
	out := make([]domain.Platform, len(c.sources))
	for i, s := range c.sources {
		out[i] = s.Platform()
	}
	return out
}

// Collect fetches every source. Results are ordered by platform name. It
// only fails when ctx is cancelled.
func (c *Collector) Collect(ctx context.Context) ([]domain.Snapshot, []domain.PlatformFetch, error) {
	snaps := make([]domain.Snapshot, len(c.sources))
	fetches := make([]domain.PlatformFetch, len(c.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range c.sources {
		g.Go(func() error {
			snaps[i], fetches[i] = c.collectOne(gctx, src)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("pipeline: collect: %w", err)
	}

	order := make([]int, len(snaps))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return snaps[order[a]].Platform < snaps[order[b]].Platform })
	outSnaps := make([]domain.Snapshot, len(order))
	outFetches := make([]domain.PlatformFetch, len(order))
	for i, j := range order {
		outSnaps[i], outFetches[i] = snaps[j], fetches[j]
	}
	return outSnaps, outFetches, nil
}

func (c *Collector) collectOne(ctx context.Context, src domain.MarketSource) (domain.Snapshot, domain.PlatformFetch) {
	p := src.Platform()
	fetch := domain.PlatformFetch{Platform: p}

	fctx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := c.now()
	records, err := src.FetchMarkets(fctx)
	fetch.Duration = c.now().Sub(start)
	if c.metrics != nil {
		c.metrics.RecordFetch(p, fetch.Duration, len(records), err)
	}

	if err == nil {
		snap := domain.Snapshot{Platform: p, Records: records, FetchedAt: c.now().UTC()}
		fetch.Markets = len(records)
		if c.cache != nil {
			if cerr := c.cache.Put(ctx, snap); cerr != nil {
				c.logger.WarnContext(ctx, "snapshot cache put failed",
					slog.String("platform", string(p)),
					slog.String("error", cerr.Error()),
				)
			}
		}
		c.logger.DebugContext(ctx, "platform fetched",
			slog.String("platform", string(p)),
			slog.Int("markets", len(records)),
			slog.Duration("duration", fetch.Duration),
		)
		return snap, fetch
	}

	fetch.Error = err.Error()
	c.logger.WarnContext(ctx, "platform fetch failed",
		slog.String("platform", string(p)),
		slog.String("error", err.Error()),
	)

	if snap, ok := c.fallback(ctx, p); ok {
		fetch.FromCache = true
		fetch.Markets = len(snap.Records)
		return snap, fetch
	}
	return domain.Snapshot{Platform: p}, fetch
}

func (c *Collector) fallback(ctx context.Context, p domain.Platform) (domain.Snapshot, bool) {
	if c.cache == nil || ctx.Err() != nil {
		return domain.Snapshot{}, false
	}
	snap, err := c.cache.Get(ctx, p)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			c.logger.WarnContext(ctx, "snapshot cache get failed",
				slog.String("platform", string(p)),
				slog.String("error", err.Error()),
			)
		}
		return domain.Snapshot{}, false
	}
	if age := c.now().Sub(snap.FetchedAt); c.maxStale > 0 && age > c.maxStale {
		c.logger.InfoContext(ctx, "cached snapshot too old",
			slog.String("platform", string(p)),
			slog.Duration("age", age),
		)
		return domain.Snapshot{}, false
	}
	c.logger.InfoContext(ctx, "using cached snapshot",
		slog.String("platform", string(p)),
		slog.Int("markets", len(snap.Records)),
		slog.Time("fetched_at", snap.FetchedAt),
	)
	return snap, true
}
