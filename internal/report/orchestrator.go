// Package report assembles a full site assessment, has it summarized by the
// LLM gateway and publishes the summary as a PDF artifact.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"sitescore/internal/external"
	"sitescore/internal/storage"
	"sitescore/internal/types"
)

// Artifact layout.
const (
	// PDFPrefix is the blob-store prefix for rendered reports.
	PDFPrefix = "pdfs/"
	// StaticPrefix is the URL prefix blob keys are served under.
	StaticPrefix = "/static/"

	pdfContentType = "application/pdf"
)

// Evaluator produces the four feasibility verdicts for a coordinate.
type Evaluator interface {
	Solar(ctx context.Context, coord types.Coordinate, year, month int) *types.Verdict
	Wind(ctx context.Context, coord types.Coordinate) *types.Verdict
	Water(ctx context.Context, coord types.Coordinate) *types.Verdict
	Green(ctx context.Context, coord types.Coordinate) *types.Verdict
}

// PDFRenderer converts Markdown to PDF bytes.
type PDFRenderer interface {
	Render(markdown string) ([]byte, error)
}

// Ledger records generated reports. Optional.
type Ledger interface {
	Create(ctx context.Context, rec *types.ReportRecord) error
}

// Recorder receives report events. Optional.
type Recorder interface {
	RecordCount(ctx context.Context, metric string, value float64, dims map[string]string)
}

// Assessment is the aggregate of all four evaluations.
type Assessment struct {
	Latitude  float64        `json:"latitude"`
	Longitude float64        `json:"longitude"`
	Solar     *types.Verdict `json:"solar"`
	Wind      *types.Verdict `json:"wind"`
	Water     *types.Verdict `json:"water"`
	Green     *types.Verdict `json:"green"`
}

// Result is the response of a full assessment.
type Result struct {
	Data        Assessment `json:"data"`
	SummaryLink string     `json:"summary_link"`
}

// OrchestratorConfig assembles an Orchestrator.
type OrchestratorConfig struct {
	Evaluator  Evaluator
	Summarizer external.Summarizer
	Renderer   PDFRenderer
	Store      storage.BlobStore
	Ledger     Ledger
	Recorder   Recorder
	Logger     *slog.Logger

	// SolarYear and SolarMonth select the solar prediction.
	SolarYear  int
	SolarMonth int

	NewID func() uuid.UUID
	Now   func() time.Time
}

// Orchestrator runs a full assessment for one coordinate.
type Orchestrator struct {
	cfg    OrchestratorConfig
	logger *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.NewID == nil {
		cfg.NewID = uuid.New
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{cfg: cfg, logger: logger}
}

// Assess runs the four evaluators in sequence. Evaluator failures are carried
// inside their verdicts.
func (o *Orchestrator) Assess(ctx context.Context, coord types.Coordinate) Assessment {
	return Assessment{
		Latitude:  coord.Lat,
		Longitude: coord.Lon,
		Solar:     o.cfg.Evaluator.Solar(ctx, coord, o.cfg.SolarYear, o.cfg.SolarMonth),
		Wind:      o.cfg.Evaluator.Wind(ctx, coord),
		Water:     o.cfg.Evaluator.Water(ctx, coord),
		Green:     o.cfg.Evaluator.Green(ctx, coord),
	}
}

// Run assesses coord, summarizes the assessment, renders and stores the PDF
// and returns the data with a link to the artifact.
func (o *Orchestrator) Run(ctx context.Context, coord types.Coordinate) (*Result, error) {
	logger := types.LoggerFromContext(ctx, o.logger)
	data := o.Assess(ctx, coord)

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "serializing assessment failed: "+err.Error(), err)
	}

	began := time.Now()
	summary, err := o.cfg.Summarizer.Summarize(ctx, BuildPrompt(payload))
	if err != nil {
		return nil, stageError(types.ErrCodeUpstreamLLM, "summarize", err)
	}
	logger.InfoContext(ctx, "assessment summarized",
		"summary_chars", len(summary),
		"duration_ms", time.Since(began).Milliseconds(),
	)

	pdf, err := o.cfg.Renderer.Render(summary)
	if err != nil {
		return nil, stageError(types.ErrCodeInternalRender, "render", err)
	}

	name := "summary_" + strings.ReplaceAll(o.cfg.NewID().String(), "-", "") + ".pdf"
	key := PDFPrefix + name
	if err := o.cfg.Store.Put(ctx, key, pdf, pdfContentType); err != nil {
		return nil, stageError(types.ErrCodeInternalStorage, "store", err)
	}
	link := StaticPrefix + key
	logger.InfoContext(ctx, "report stored", "key", key, "bytes", len(pdf))

	if o.cfg.Ledger != nil {
		rec := &types.ReportRecord{
			ID:         o.cfg.NewID().String(),
			Lat:        coord.Lat,
			Lon:        coord.Lon,
			Link:       link,
			StorageKey: key,
			CreatedAt:  o.cfg.Now().UTC(),
		}
		if err := o.cfg.Ledger.Create(ctx, rec); err != nil {
			// The artifact is already published; expiry falls back to blob listing.
			logger.ErrorContext(ctx, "failed to record report", "key", key, "error", err)
		}
	}
	if o.cfg.Recorder != nil {
		o.cfg.Recorder.RecordCount(ctx, types.MetricReportGenerated, 1, nil)
	}

	return &Result{Data: data, SummaryLink: link}, nil
}

// stageError keeps a typed failure as is and tags it with the stage; other
// errors are wrapped under code with the cause in the message.
func stageError(code types.ErrorCode, stage string, err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.WithDetails(map[string]any{"stage": stage})
	}
	return types.NewAppErrorWithDetails(code, stage+" failed: "+err.Error(), err, map[string]any{"stage": stage})
}

// KeyFromName maps a served artifact name to its blob key.
func KeyFromName(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || !strings.HasSuffix(name, ".pdf") {
		return "", types.NewAppError(types.ErrCodeNotFoundArtifact, "report not found", nil)
	}
	key := PDFPrefix + name
	if err := storage.ValidateKey(key); err != nil {
		return "", types.NewAppError(types.ErrCodeNotFoundArtifact, "report not found", nil)
	}
	return key, nil
}
