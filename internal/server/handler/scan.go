package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/pipeline"
)

// ScanRunner is the part of the scanner the API reads from.
type ScanRunner interface {
	LastReport() (domain.CycleReport, bool)
	Stats() pipeline.Stats
	RunOnce(ctx context.Context) (domain.CycleReport, error)
}

// ScanHandler serves the latest cycle's matches and the scanner statistics.
// With a nil runner (API-only mode) every endpoint answers 503.
type ScanHandler struct {
	scan   ScanRunner
	logger *slog.Logger
}

// NewScanHandler creates a ScanHandler.
func NewScanHandler(scan ScanRunner, logger *slog.Logger) *ScanHandler {
	return &ScanHandler{scan: scan, logger: logHandler(logger, "scan")}
}

type matchesResponse struct {
	CycleID    string                `json:"cycle_id"`
	FinishedAt string                `json:"finished_at"`
	Pairs      []domain.MatchedPair  `json:"pairs"`
	Groups     []domain.MatchedGroup `json:"groups"`
}

func (h *ScanHandler) available(w http.ResponseWriter) bool {
	if h.scan == nil {
		writeError(w, http.StatusServiceUnavailable, "scanner is not running in this process")
		return false
	}
	return true
}

// ListMatches returns the pairs and groups of the last completed cycle.
// ?origin=manual|automatic filters by origin.
// GET /api/matches
func (h *ScanHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	report, ok := h.scan.LastReport()
	if !ok {
		writeError(w, http.StatusNotFound, "no completed scan cycle yet")
		return
	}

	origin := domain.MatchOrigin(r.URL.Query().Get("origin"))
	resp := matchesResponse{
		CycleID:    report.CycleID,
		FinishedAt: report.FinishedAt.Format(time.RFC3339),
		Pairs:      []domain.MatchedPair{},
		Groups:     []domain.MatchedGroup{},
	}
	for _, p := range report.Pairs {
		if origin == "" || p.Origin == origin {
			resp.Pairs = append(resp.Pairs, p)
		}
	}
	for _, g := range report.Groups {
		if origin == "" || g.Origin == origin {
			resp.Groups = append(resp.Groups, g)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetStats returns the scanner statistics.
// GET /api/stats
func (h *ScanHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	writeJSON(w, http.StatusOK, h.scan.Stats())
}

// TriggerScan runs a cycle now and returns its summary. 409 means a cycle
// is already running here or on another instance.
// POST /api/scan/trigger
func (h *ScanHandler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	report, err := h.scan.RunOnce(r.Context())
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrCycleBusy), errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusConflict, "a scan cycle is already running")
		return
	default:
		h.logger.ErrorContext(r.Context(), "triggered scan failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "scan cycle failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cycle_id":      report.CycleID,
		"pairs":         len(report.Pairs),
		"groups":        len(report.Groups),
		"opportunities": len(report.Opportunities),
		"suppressed":    report.Suppressed,
		"malformed":     report.Malformed,
		"duration_ms":   report.Duration().Milliseconds(),
	})
}
