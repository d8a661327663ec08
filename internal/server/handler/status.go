package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// StatusHandler reports the process mode and configured platforms.
type StatusHandler struct {
	mode      string
	platforms []domain.Platform
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, platforms []domain.Platform, startedAt time.Time) *StatusHandler {
	return &StatusHandler{mode: mode, platforms: platforms, startedAt: startedAt}
}

// GetStatus returns the mode, platforms and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	platforms := h.platforms
	if platforms == nil {
		platforms = []domain.Platform{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"platforms":      platforms,
		"started_at":     h.startedAt.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}
