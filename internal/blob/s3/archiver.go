package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

const exportPartSize int64 = 8 * 1024 * 1024

// ReportArchiver implements domain.ReportArchive on top of the blob
// interfaces. Reports land at reports/YYYY/MM/DD/<cycle>.json and daily
// opportunity exports at exports/opportunities/YYYY-MM-DD.jsonl.
type ReportArchiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	audit  domain.AuditStore
}

// NewReportArchiver creates a ReportArchiver. reader and audit may be nil;
// without a reader ListReports returns nothing.
func NewReportArchiver(writer domain.BlobWriter, reader domain.BlobReader, audit domain.AuditStore) *ReportArchiver {
	return &ReportArchiver{writer: writer, reader: reader, audit: audit}
}

// SaveReport uploads one cycle report as indented JSON and returns its path.
func (a *ReportArchiver) SaveReport(ctx context.Context, report domain.CycleReport) (string, error) {
	if report.CycleID == "" {
		return "", fmt.Errorf("s3blob: save report: missing cycle id")
	}
	buf, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal report %s: %w", report.CycleID, err)
	}

	p := reportPath(report.StartedAt, report.CycleID)
	if err := a.writer.Put(ctx, p, bytes.NewReader(buf), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: save report %s: %w", report.CycleID, err)
	}
	return p, nil
}

// ExportOpportunities streams opps as JSONL to the export for day. An empty
// slice uploads nothing and returns an empty path.
func (a *ReportArchiver) ExportOpportunities(ctx context.Context, day time.Time, opps []domain.ArbitrageOpportunity) (string, error) {
	if len(opps) == 0 {
		return "", nil
	}

	p := exportPath(day)
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(writeJSONL(pw, opps))
	}()

	if err := a.writer.PutMultipart(ctx, p, pr, exportPartSize); err != nil {
		pr.CloseWithError(err)
		return "", fmt.Errorf("s3blob: export opportunities %s: %w", day.Format(time.DateOnly), err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.opportunities", map[string]any{
			"path":  p,
			"count": len(opps),
			"day":   day.UTC().Format(time.DateOnly),
		}); err != nil {
			return p, fmt.Errorf("s3blob: export opportunities audit log: %w", err)
		}
	}
	return p, nil
}

// ListReports lists the reports stored for day.
func (a *ReportArchiver) ListReports(ctx context.Context, day time.Time) ([]domain.BlobInfo, error) {
	if a.reader == nil {
		return nil, nil
	}
	infos, err := a.reader.List(ctx, reportDir(day)+"/")
	if err != nil {
		return nil, fmt.Errorf("s3blob: list reports: %w", err)
	}
	return infos, nil
}

// reportDir returns the day partition, e.g. reports/2026/10/18.
func reportDir(t time.Time) string {
	return path.Join("reports", t.UTC().Format("2006/01/02"))
}

func reportPath(t time.Time, cycleID string) string {
	return path.Join(reportDir(t), cycleID+".json")
}

// exportPath returns e.g. exports/opportunities/2026-10-18.jsonl.
func exportPath(day time.Time) string {
	return path.Join("exports", "opportunities", day.UTC().Format(time.DateOnly)+".jsonl")
}

func contentTypeFor(p string) string {
	switch path.Ext(p) {
	case ".json":
		return "application/json"
	case ".jsonl":
		return "application/x-ndjson"
	default:
		return "application/octet-stream"
	}
}

// writeJSONL encodes each record as one compact line.
func writeJSONL[T any](w io.Writer, records []T) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return nil
}
