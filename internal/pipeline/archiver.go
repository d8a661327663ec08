package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Exporter copies each finished UTC day of opportunities from the database
// to cold storage as one JSONL object.
type Exporter struct {
	store   domain.OpportunityStore
	archive domain.ReportArchive
	now     func() time.Time
	logger  *slog.Logger
}

// NewExporter creates an Exporter.
func NewExporter(store domain.OpportunityStore, archive domain.ReportArchive, logger *slog.Logger) *Exporter {
	return &Exporter{
		store:   store,
		archive: archive,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "exporter")),
	}
}

// ExportDay exports the opportunities detected on day (UTC) and returns the
// object path, or "" when there was nothing to export.
func (e *Exporter) ExportDay(ctx context.Context, day time.Time) (string, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	opps, err := e.store.ListBetween(ctx, from, to)
	if err != nil {
		return "", fmt.Errorf("pipeline: export %s: %w", from.Format(time.DateOnly), err)
	}
	path, err := e.archive.ExportOpportunities(ctx, from, opps)
	if err != nil {
		return "", fmt.Errorf("pipeline: export %s: %w", from.Format(time.DateOnly), err)
	}
	e.logger.InfoContext(ctx, "opportunities exported",
		slog.String("day", from.Format(time.DateOnly)),
		slog.Int("count", len(opps)),
		slog.String("path", path),
	)
	return path, nil
}

// Run exports the previous UTC day.
func (e *Exporter) Run(ctx context.Context) error {
	_, err := e.ExportDay(ctx, e.now().UTC().AddDate(0, 0, -1))
	return err
}

// RunCron runs the exporter on a 5-field cron schedule, evaluated in UTC,
// until ctx is cancelled. Fields accept "*", lists ("1,15"), ranges
// ("1-5") and steps ("*/15").
//
// Example: "15 0 * * *" runs at 00:15 every day.
func (e *Exporter) RunCron(ctx context.Context, cronExpr string) error {
	sched, err := parseCron(cronExpr)
	if err != nil {
		return fmt.Errorf("pipeline: parsing cron expression %q: %w", cronExpr, err)
	}
	e.logger.Info("exporter cron started", slog.String("cron", cronExpr))

	for {
		next, err := sched.next(e.now().UTC())
		if err != nil {
			return fmt.Errorf("pipeline: cron %q: %w", cronExpr, err)
		}

		wait := time.Until(next)
		e.logger.Debug("exporter waiting for next cron trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			e.logger.Info("exporter cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := e.Run(ctx); err != nil {
				e.logger.Error("export run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// cronField matches one field of a cron expression.
type cronField struct {
	wildcard bool
	values   map[int]bool
}

func (f cronField) matches(v int) bool {
	return f.wildcard || f.values[v]
}

// parseCronField parses one field whose values lie in [lo, hi].
func parseCronField(field string, lo, hi int) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true}, nil
	}

	values := make(map[int]bool)
	for _, part := range strings.Split(field, ",") {
		part = strings.TrimSpace(part)
		step := 1
		if base, s, ok := strings.Cut(part, "/"); ok {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return cronField{}, fmt.Errorf("invalid step %q", part)
			}
			part, step = base, n
		}

		start, end := lo, hi
		switch {
		case part == "*":
		case strings.Contains(part, "-"):
			a, b, _ := strings.Cut(part, "-")
			var err1, err2 error
			start, err1 = strconv.Atoi(a)
			end, err2 = strconv.Atoi(b)
			if err1 != nil || err2 != nil {
				return cronField{}, fmt.Errorf("invalid range %q", part)
			}
		default:
			v, err := strconv.Atoi(part)
			if err != nil {
				return cronField{}, fmt.Errorf("invalid value %q: %w", part, err)
			}
			start, end = v, v
		}
		if start < lo || end > hi || start > end {
			return cronField{}, fmt.Errorf("value %q outside %d-%d", part, lo, hi)
		}
		for v := start; v <= end; v += step {
			values[v] = true
		}
	}
	return cronField{values: values}, nil
}

// cronSchedule holds the five parsed fields.
type cronSchedule struct {
	minute, hour, dayOfMonth, month, dayOfWeek cronField
}

func (c cronSchedule) matchesTime(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.dayOfMonth.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dayOfWeek.matches(int(t.Weekday()))
}

func parseCron(expr string) (cronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return cronSchedule{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}
	bounds := [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}
	names := [5]string{"minute", "hour", "day-of-month", "month", "day-of-week"}

	var parsed [5]cronField
	for i, f := range fields {
		cf, err := parseCronField(f, bounds[i][0], bounds[i][1])
		if err != nil {
			return cronSchedule{}, fmt.Errorf("parsing %s field: %w", names[i], err)
		}
		parsed[i] = cf
	}
	return cronSchedule{
		minute:     parsed[0],
		hour:       parsed[1],
		dayOfMonth: parsed[2],
		month:      parsed[3],
		dayOfWeek:  parsed[4],
	}, nil
}

// next returns the first matching minute after after, searching up to a
// year ahead.
func (c cronSchedule) next(after time.Time) (time.Time, error) {
	candidate := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(366 * 24 * time.Hour)
	for candidate.Before(limit) {
		if c.matchesTime(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no matching time within one year")
}
