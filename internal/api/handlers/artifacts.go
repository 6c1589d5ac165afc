package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"sitescore/internal/core"
	"sitescore/internal/db"
	"sitescore/internal/report"
	"sitescore/internal/types"
)

const defaultReportListLimit = 20

// ArtifactReader reads stored artifacts.
type ArtifactReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// ReportLister lists recent ledger rows.
type ReportLister interface {
	ListRecent(ctx context.Context, limit int) ([]types.ReportRecord, error)
}

// ArtifactHandler serves rendered PDFs and the report ledger.
type ArtifactHandler struct {
	store  ArtifactReader
	ledger ReportLister
	logger *slog.Logger
}

// NewArtifactHandler creates an ArtifactHandler. A nil ledger disables
// GET /reports.
func NewArtifactHandler(store ArtifactReader, ledger ReportLister, logger *slog.Logger) *ArtifactHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArtifactHandler{store: store, ledger: ledger, logger: logger}
}

// RegisterRoutes mounts the artifact endpoints.
func (h *ArtifactHandler) RegisterRoutes(r chi.Router) {
	r.Get(report.StaticPrefix+report.PDFPrefix+"{name}", h.HandleGetPDF)
	r.Get("/reports", h.HandleListReports)
}

// HandleGetPDF handles GET /static/pdfs/{name}.
func (h *ArtifactHandler) HandleGetPDF(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	key, err := report.KeyFromName(name)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	data, err := h.store.Get(r.Context(), key)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", `inline; filename="`+name+`"`)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		types.LoggerFromContext(r.Context(), h.logger).WarnContext(r.Context(), "pdf write aborted",
			"key", key, "error", err)
	}
}

// HandleListReports handles GET /reports?limit=N.
func (h *ArtifactHandler) HandleListReports(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundLedger,
			"report ledger is not configured", nil))
		return
	}

	limit := defaultReportListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > db.MaxListLimit {
			core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationFailed,
				"limit must be an integer between 1 and "+strconv.Itoa(db.MaxListLimit), nil,
				map[string]any{"limit": raw}))
			return
		}
		limit = n
	}

	records, err := h.ledger.ListRecent(r.Context(), limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, types.NewListResponse(records))
}
