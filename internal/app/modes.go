package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/pipeline"
	"github.com/alanyoungcy/crossarb/internal/server"
	"github.com/alanyoungcy/crossarb/internal/server/handler"
	"github.com/alanyoungcy/crossarb/internal/server/ws"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// ScanMode runs the scan loop and the daily export without an HTTP API.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	scanner := a.newScanner(deps, nil)
	return a.newOrchestrator(deps, scanner).Run(ctx)
}

// OnceMode runs a single cycle and writes its report as JSON.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting once mode")

	scanner := a.newScanner(deps, nil)
	report, err := scanner.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("once mode: %w", err)
	}

	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("once mode: write report: %w", err)
	}
	return nil
}

// ServerMode serves the API only. Opportunities published by scanners in
// other processes reach WebSocket clients through the signal bus.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	var bridge *ws.BridgeConfig
	if deps.SignalBus != nil && a.cfg.Scan.Channel != "" {
		bridge = &ws.BridgeConfig{Bus: deps.SignalBus, Channel: a.cfg.Scan.Channel, Topic: ws.TopicOpportunity}
	} else {
		a.logger.WarnContext(ctx, "server mode without redis; websocket clients receive no opportunities")
	}
	hub := a.newHub(bridge)
	a.startHTTPServer(ctx, g, deps, nil, hub)

	return g.Wait()
}

// FullMode runs the scan loop, the export cron and the API in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	// The scanner broadcasts to the hub directly, so no bus bridge.
	hub := a.newHub(nil)
	scanner := a.newScanner(deps, hub)

	g.Go(func() error {
		return a.newOrchestrator(deps, scanner).Run(ctx)
	})
	a.startHTTPServer(ctx, g, deps, scanner, hub)

	return g.Wait()
}

func (a *App) newScanner(deps *Dependencies, hub *ws.Hub) *pipeline.Scanner {
	collectorOpts := []pipeline.CollectorOption{pipeline.WithCollectorMetrics(deps.Metrics)}
	if deps.SnapshotCache != nil {
		collectorOpts = append(collectorOpts, pipeline.WithSnapshotCache(deps.SnapshotCache, a.cfg.Scan.MaxStale.Duration))
	}
	collector := pipeline.NewCollector(deps.Sources, a.cfg.Scan.FetchTimeout.Duration, a.logger, collectorOpts...)

	sinks := pipeline.Sinks{
		Opportunities: deps.OpportunityStore,
		MatchLog:      deps.MatchLogStore,
		Audit:         deps.AuditStore,
		Bus:           deps.SignalBus,
		Notifier:      deps.Notifier,
		Archive:       deps.Archive,
	}
	if hub != nil {
		sinks.Hub = hub
	}

	scanCfg := pipeline.DefaultScanConfig()
	scanCfg.Interval = a.cfg.Scan.Interval.Duration
	scanCfg.LockKey = a.cfg.Scan.LockKey
	scanCfg.LockTTL = a.cfg.Scan.LockTTL.Duration
	scanCfg.Channel = a.cfg.Scan.Channel
	scanCfg.Stream = a.cfg.Scan.Stream

	opts := []pipeline.ScannerOption{
		pipeline.WithScanMetrics(deps.Metrics),
		pipeline.WithSinks(sinks),
	}
	if deps.LockManager != nil {
		opts = append(opts, pipeline.WithLock(deps.LockManager))
	}
	return pipeline.NewScanner(scanCfg, collector, deps.Engine, deps.Calculator, deps.Deduper, a.logger, opts...)
}

// newOrchestrator pairs the scanner with the export cron when both the store
// and the archive are wired.
func (a *App) newOrchestrator(deps *Dependencies, scanner *pipeline.Scanner) *pipeline.Orchestrator {
	var exporter *pipeline.Exporter
	if deps.OpportunityStore != nil && deps.Archive != nil && a.cfg.S3.ExportCron != "" {
		exporter = pipeline.NewExporter(deps.OpportunityStore, deps.Archive, a.logger)
	}
	return pipeline.NewOrchestrator(scanner, exporter, a.cfg.S3.ExportCron, a.logger)
}

func (a *App) newHub(bridge *ws.BridgeConfig) *ws.Hub {
	return ws.NewHub(ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: a.startedAt,
		Bridge:    bridge,
	}, a.logger)
}

// startHTTPServer adds the hub and the HTTP server to g. The server is shut
// down gracefully when ctx is cancelled. scanner is nil in API-only mode.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, scanner *pipeline.Scanner, hub *ws.Hub) {
	var runner handler.ScanRunner
	if scanner != nil {
		runner = scanner
	}

	platforms := make([]domain.Platform, 0, len(a.cfg.EnabledPlatforms()))
	for _, p := range a.cfg.EnabledPlatforms() {
		platforms = append(platforms, domain.Platform(p))
	}

	srv := server.NewServer(server.Config{
		Host:        a.cfg.Server.Host,
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		Burst:       a.cfg.Server.Burst,
	}, server.Handlers{
		Health:        handler.NewHealthHandler(deps.Checks, a.logger),
		Status:        handler.NewStatusHandler(a.cfg.Mode, platforms, a.startedAt),
		Scan:          handler.NewScanHandler(runner, a.logger),
		Opportunities: handler.NewOpportunityHandler(deps.OpportunityStore, runner, a.logger),
		Reports:       handler.NewReportHandler(deps.Archive, a.logger),
		Metrics:       deps.Metrics.Handler(),
	}, hub, a.logger)

	g.Go(func() error {
		err := hub.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening", slog.String("addr", srv.Addr()))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
