package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// OpportunityHandler serves recently detected opportunities, from the store
// when one is configured and otherwise from the last cycle.
type OpportunityHandler struct {
	store  domain.OpportunityStore
	scan   ScanRunner
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler. Either source may be
// nil but not both.
func NewOpportunityHandler(store domain.OpportunityStore, scan ScanRunner, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{store: store, scan: scan, logger: logHandler(logger, "opportunity")}
}

type listOpportunitiesResponse struct {
	Source        string                        `json:"source"`
	Opportunities []domain.ArbitrageOpportunity `json:"opportunities"`
}

// ListRecent returns the newest opportunities, widest spread first within a
// cycle.
// GET /api/opportunities/recent?limit=20&kind=binary
func (h *OpportunityHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 20, 200)
	kind := domain.OpportunityKind(r.URL.Query().Get("kind"))

	var (
		opps   []domain.ArbitrageOpportunity
		source string
	)
	switch {
	case h.store != nil:
		source = "store"
		var err error
		opps, err = h.store.ListRecent(r.Context(), limit)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "list opportunities failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to list opportunities")
			return
		}
	case h.scan != nil:
		source = "last_cycle"
		if report, ok := h.scan.LastReport(); ok {
			opps = report.Opportunities
		}
	default:
		writeError(w, http.StatusServiceUnavailable, "no opportunity source configured")
		return
	}

	out := make([]domain.ArbitrageOpportunity, 0, min(len(opps), limit))
	for _, o := range opps {
		if kind != "" && o.Kind != kind {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, o)
	}
	writeJSON(w, http.StatusOK, listOpportunitiesResponse{Source: source, Opportunities: out})
}
