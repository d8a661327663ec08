// Package metrics exposes Prometheus metrics for the scanner.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// ScanMetrics collects scan-cycle metrics on a private registry.
type ScanMetrics struct {
	registry *prometheus.Registry

	// Collection
	FetchTotal     *prometheus.CounterVec
	FetchDuration  *prometheus.HistogramVec
	MarketsFetched *prometheus.GaugeVec

	// Matching
	CyclesTotal      *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	MatchedPairs     *prometheus.GaugeVec
	MatchedGroups    *prometheus.GaugeVec
	MalformedRecords prometheus.Counter
	MatchConfidence  prometheus.Histogram

	// Opportunities
	OpportunitiesTotal *prometheus.CounterVec
	OpportunitySpread  *prometheus.HistogramVec
	Suppressed         prometheus.Counter
}

// New creates the scanner metrics and registers them together with the Go
// runtime and process collectors.
func New() *ScanMetrics {
	m := &ScanMetrics{
		registry: prometheus.NewRegistry(),

		FetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossarb_fetch_total",
				Help: "Platform listing fetches by outcome",
			},
			[]string{"platform", "status"},
		),
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crossarb_fetch_duration_seconds",
				Help:    "Platform listing fetch latency",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
			[]string{"platform"},
		),
		MarketsFetched: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crossarb_markets",
				Help: "Markets in the latest snapshot per platform",
			},
			[]string{"platform"},
		),

		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossarb_cycles_total",
				Help: "Scan cycles by outcome",
			},
			[]string{"status"},
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crossarb_cycle_duration_seconds",
				Help:    "End-to-end scan cycle duration",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~400s
			},
		),
		MatchedPairs: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crossarb_matched_pairs",
				Help: "Matched binary pairs in the latest cycle",
			},
			[]string{"origin"},
		),
		MatchedGroups: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crossarb_matched_groups",
				Help: "Matched multi-outcome groups in the latest cycle",
			},
			[]string{"origin"},
		),
		MalformedRecords: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "crossarb_malformed_records_total",
				Help: "Market records skipped as malformed",
			},
		),
		MatchConfidence: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crossarb_match_confidence",
				Help:    "Confidence of accepted automatic matches",
				Buckets: prometheus.LinearBuckets(0.5, 0.05, 11),
			},
		),

		OpportunitiesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossarb_opportunities_total",
				Help: "Opportunities reported by kind",
			},
			[]string{"kind"},
		),
		OpportunitySpread: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crossarb_opportunity_spread_bps",
				Help:    "Net spread of reported opportunities in basis points",
				Buckets: []float64{50, 100, 200, 300, 500, 750, 1000, 1500, 2500, 5000},
			},
			[]string{"kind"},
		),
		Suppressed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "crossarb_opportunities_suppressed_total",
				Help: "Opportunities dropped by the cooldown",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.FetchTotal,
		m.FetchDuration,
		m.MarketsFetched,
		m.CyclesTotal,
		m.CycleDuration,
		m.MatchedPairs,
		m.MatchedGroups,
		m.MalformedRecords,
		m.MatchConfidence,
		m.OpportunitiesTotal,
		m.OpportunitySpread,
		m.Suppressed,
	)
	return m
}

// Registry returns the prometheus registry.
func (m *ScanMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *ScanMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordFetch records one platform fetch.
func (m *ScanMetrics) RecordFetch(p domain.Platform, d time.Duration, markets int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	} else {
		m.MarketsFetched.WithLabelValues(string(p)).Set(float64(markets))
	}
	m.FetchTotal.WithLabelValues(string(p), status).Inc()
	m.FetchDuration.WithLabelValues(string(p)).Observe(d.Seconds())
}

// RecordCycle records a finished scan cycle and its match results.
func (m *ScanMetrics) RecordCycle(d time.Duration, err error, pairs []domain.MatchedPair, groups []domain.MatchedGroup, malformed int) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.CyclesTotal.WithLabelValues(status).Inc()
	m.CycleDuration.Observe(d.Seconds())
	if err != nil {
		return
	}

	counts := map[domain.MatchOrigin]int{domain.OriginManual: 0, domain.OriginAutomatic: 0}
	for _, p := range pairs {
		counts[p.Origin]++
		if p.Origin == domain.OriginAutomatic {
			m.MatchConfidence.Observe(p.Confidence)
		}
	}
	for origin, n := range counts {
		m.MatchedPairs.WithLabelValues(string(origin)).Set(float64(n))
	}

	counts = map[domain.MatchOrigin]int{domain.OriginManual: 0, domain.OriginAutomatic: 0}
	for _, g := range groups {
		counts[g.Origin]++
	}
	for origin, n := range counts {
		m.MatchedGroups.WithLabelValues(string(origin)).Set(float64(n))
	}
	m.MalformedRecords.Add(float64(malformed))
}

// RecordOpportunity records a reported opportunity.
func (m *ScanMetrics) RecordOpportunity(opp domain.ArbitrageOpportunity) {
	m.OpportunitiesTotal.WithLabelValues(string(opp.Kind)).Inc()
	m.OpportunitySpread.WithLabelValues(string(opp.Kind)).Observe(opp.SpreadBps)
}

// RecordSuppressed counts an opportunity dropped by the cooldown.
func (m *ScanMetrics) RecordSuppressed() {
	m.Suppressed.Inc()
}
