package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Orchestrator runs the scan loop and, when configured, the daily export
// cron side by side.
type Orchestrator struct {
	scanner    *Scanner
	exporter   *Exporter
	exportCron string
	logger     *slog.Logger
}

// NewOrchestrator creates an Orchestrator. exporter may be nil.
func NewOrchestrator(scanner *Scanner, exporter *Exporter, exportCron string, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		scanner:    scanner,
		exporter:   exporter,
		exportCron: exportCron,
		logger:     logger.With(slog.String("component", "orchestrator")),
	}
}

// Run blocks until ctx is cancelled or a loop fails. A cancelled context is
// a clean shutdown and returns nil.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Bool("export", o.exporter != nil && o.exportCron != ""),
		slog.String("export_cron", o.exportCron),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := o.scanner.RunLoop(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("scan loop: %w", err)
	})

	if o.exporter != nil && o.exportCron != "" {
		g.Go(func() error {
			err := o.exporter.RunCron(ctx, o.exportCron)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("exporter: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}
