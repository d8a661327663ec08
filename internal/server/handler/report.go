package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// ReportHandler lists archived cycle reports.
type ReportHandler struct {
	archive domain.ReportArchive
	now     func() time.Time
	logger  *slog.Logger
}

// NewReportHandler creates a ReportHandler. A nil archive answers 501.
func NewReportHandler(archive domain.ReportArchive, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{archive: archive, now: time.Now, logger: logHandler(logger, "report")}
}

// ListReports lists the reports archived on ?date=YYYY-MM-DD (UTC, default
// today).
// GET /api/reports
func (h *ReportHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusNotImplemented, "report archive not configured")
		return
	}
	day := h.now().UTC()
	if v := r.URL.Query().Get("date"); v != "" {
		t, err := time.ParseInLocation(time.DateOnly, v, time.UTC)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = t
	}

	infos, err := h.archive.ListReports(r.Context(), day)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list reports failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":    day.Format(time.DateOnly),
		"reports": infos,
	})
}
