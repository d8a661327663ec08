package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

type memBlob struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	failPut error
}

func newMemBlob() *memBlob {
	return &memBlob{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memBlob) Put(_ context.Context, p string, data io.Reader, contentType string) error {
	if m.failPut != nil {
		return m.failPut
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[p] = b
	m.types[p] = contentType
	return nil
}

func (m *memBlob) PutMultipart(ctx context.Context, p string, data io.Reader, _ int64) error {
	return m.Put(ctx, p, data, contentTypeFor(p))
}

func (m *memBlob) Get(_ context.Context, p string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[p]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlob) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BlobInfo
	for p, b := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(b))})
		}
	}
	return out, nil
}

type memAudit struct {
	events []string
}

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, int) ([]domain.AuditEntry, error) { return nil, nil }

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in     string
		useSSL bool
		want   string
	}{
		{"https://s3.example.com", false, "https://s3.example.com"},
		{"http://localhost:9000", true, "http://localhost:9000"},
		{"localhost:9000", false, "http://localhost:9000"},
		{"e2.idrive.com", true, "https://e2.idrive.com"},
	}
	for _, tt := range tests {
		if got := normaliseEndpoint(tt.in, tt.useSSL); got != tt.want {
			t.Errorf("normaliseEndpoint(%q, %v) = %q, want %q", tt.in, tt.useSSL, got, tt.want)
		}
	}
}

func TestObjectKeyPrefix(t *testing.T) {
	c := &Client{prefix: cleanPrefix("/crossarb/prod/")}
	if got := c.objectKey("/reports/a.json"); got != "crossarb/prod/reports/a.json" {
		t.Fatalf("objectKey = %q", got)
	}
	if got := c.logicalPath("crossarb/prod/reports/a.json"); got != "reports/a.json" {
		t.Fatalf("logicalPath = %q", got)
	}

	bare := &Client{}
	if got := bare.objectKey("reports/a.json"); got != "reports/a.json" {
		t.Fatalf("objectKey without prefix = %q", got)
	}
}

func TestSaveReport(t *testing.T) {
	blob := newMemBlob()
	a := NewReportArchiver(blob, blob, nil)

	started := time.Date(2026, 10, 18, 23, 59, 0, 0, time.FixedZone("X", -3*3600))
	report := domain.CycleReport{CycleID: "c1", StartedAt: started, FinishedAt: started.Add(time.Second)}

	p, err := a.SaveReport(context.Background(), report)
	if err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	// Partitioned by UTC day.
	if p != "reports/2026/10/19/c1.json" {
		t.Fatalf("path = %q", p)
	}
	if blob.types[p] != "application/json" {
		t.Errorf("content type = %q", blob.types[p])
	}
	var got domain.CycleReport
	if err := json.Unmarshal(blob.objects[p], &got); err != nil {
		t.Fatalf("stored report: %v", err)
	}
	if got.CycleID != "c1" {
		t.Errorf("cycle id = %q", got.CycleID)
	}

	infos, err := a.ListReports(context.Background(), started)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(infos) != 1 || infos[0].Path != p {
		t.Fatalf("ListReports = %+v", infos)
	}
}

func TestSaveReportErrors(t *testing.T) {
	blob := newMemBlob()
	a := NewReportArchiver(blob, nil, nil)
	if _, err := a.SaveReport(context.Background(), domain.CycleReport{}); err == nil {
		t.Fatal("expected error for missing cycle id")
	}

	boom := errors.New("boom")
	blob.failPut = boom
	_, err := a.SaveReport(context.Background(), domain.CycleReport{CycleID: "x"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapping boom", err)
	}
}

func TestExportOpportunities(t *testing.T) {
	blob := newMemBlob()
	audit := &memAudit{}
	a := NewReportArchiver(blob, blob, audit)
	day := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	p, err := a.ExportOpportunities(context.Background(), day, nil)
	if err != nil || p != "" {
		t.Fatalf("empty export = %q, %v", p, err)
	}
	if len(blob.objects) != 0 {
		t.Fatal("empty export uploaded an object")
	}

	opps := []domain.ArbitrageOpportunity{
		{ID: "1", Kind: domain.OpportunityBinary, Title: "A & B"},
		{ID: "2", Kind: domain.OpportunityMultiOutcome},
	}
	p, err = a.ExportOpportunities(context.Background(), day, opps)
	if err != nil {
		t.Fatalf("ExportOpportunities: %v", err)
	}
	if p != "exports/opportunities/2026-10-18.jsonl" {
		t.Fatalf("path = %q", p)
	}
	if blob.types[p] != "application/x-ndjson" {
		t.Errorf("content type = %q", blob.types[p])
	}

	var lines int
	sc := bufio.NewScanner(bytes.NewReader(blob.objects[p]))
	for sc.Scan() {
		var o domain.ArbitrageOpportunity
		if err := json.Unmarshal(sc.Bytes(), &o); err != nil {
			t.Fatalf("line %d: %v", lines, err)
		}
		lines++
	}
	if lines != 2 {
		t.Fatalf("lines = %d, want 2", lines)
	}
	if !strings.Contains(string(blob.objects[p]), "A & B") {
		t.Error("html escaping should be disabled")
	}
	if len(audit.events) != 1 || audit.events[0] != "archive.opportunities" {
		t.Errorf("audit events = %v", audit.events)
	}
}
