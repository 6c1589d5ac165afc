package report

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitescore/internal/external"
	"sitescore/internal/storage"
	"sitescore/internal/types"
)

var testSite = types.Coordinate{Lat: 23.1, Lon: 72.5}

type fakeEvaluator struct {
	mu    sync.Mutex
	order []string
	year  int
	month int
}

func (f *fakeEvaluator) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, name)
}

func (f *fakeEvaluator) Solar(_ context.Context, _ types.Coordinate, year, month int) *types.Verdict {
	f.record("solar")
	f.year, f.month = year, month
	return &types.Verdict{Metrics: map[string]any{"value": "5.8 kWh/m²", "result": "excellent"}}
}

func (f *fakeEvaluator) Wind(context.Context, types.Coordinate) *types.Verdict {
	f.record("wind")
	return types.NewVerdict(types.StatusError, "Failed to fetch wind data")
}

func (f *fakeEvaluator) Water(context.Context, types.Coordinate) *types.Verdict {
	f.record("water")
	return &types.Verdict{Metrics: map[string]any{"water_harvesting_score": "0.476"}}
}

func (f *fakeEvaluator) Green(context.Context, types.Coordinate) *types.Verdict {
	f.record("green")
	return types.NewVerdict(types.StatusSuccess, "ok").With("is_feasible", true)
}

type fakeSummarizer struct {
	prompt string
	reply  string
	err    error
}

func (f *fakeSummarizer) Summarize(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.reply, f.err
}

type fakeRenderer struct {
	got string
	err error
}

func (f *fakeRenderer) Render(markdown string) ([]byte, error) {
	f.got = markdown
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.3 fake"), nil
}

type fakeLedger struct {
	records []*types.ReportRecord
	err     error
}

func (f *fakeLedger) Create(_ context.Context, rec *types.ReportRecord) error {
	f.records = append(f.records, rec)
	return f.err
}

type failingStore struct{ storage.BlobStore }

func (failingStore) Put(context.Context, string, []byte, string) error {
	return types.NewAppError(types.ErrCodeInternalStorage, "disk full", nil)
}

type harness struct {
	eval     *fakeEvaluator
	llm      *fakeSummarizer
	renderer *fakeRenderer
	store    *storage.FileStore
	ledger   *fakeLedger
	orch     *Orchestrator
}

var fixedID = uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	h := &harness{
		eval:     &fakeEvaluator{},
		llm:      &fakeSummarizer{reply: "# Report\n\nAll good."},
		renderer: &fakeRenderer{},
		store:    store,
		ledger:   &fakeLedger{},
	}
	h.orch = h.build(store)
	return h
}

func (h *harness) build(store storage.BlobStore) *Orchestrator {
	return NewOrchestrator(OrchestratorConfig{
		Evaluator:  h.eval,
		Summarizer: h.llm,
		Renderer:   h.renderer,
		Store:      store,
		Ledger:     h.ledger,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		SolarYear:  2025,
		SolarMonth: 1,
		NewID:      func() uuid.UUID { return fixedID },
		Now:        func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
}

func TestRunPublishesReport(t *testing.T) {
	h := newHarness(t)

	res, err := h.orch.Run(context.Background(), testSite)
	require.NoError(t, err)

	assert.Equal(t, []string{"solar", "wind", "water", "green"}, h.eval.order)
	assert.Equal(t, 2025, h.eval.year)
	assert.Equal(t, 1, h.eval.month)

	const name = "summary_0f8fad5bd9cb469fa16570867728950e.pdf"
	assert.Equal(t, "/static/pdfs/"+name, res.SummaryLink)
	assert.Equal(t, 23.1, res.Data.Latitude)
	assert.Equal(t, types.StatusError, res.Data.Wind.Status)

	stored, err := h.store.Get(context.Background(), "pdfs/"+name)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.3 fake", string(stored))
	assert.Equal(t, "# Report\n\nAll good.", h.renderer.got)

	require.Len(t, h.ledger.records, 1)
	rec := h.ledger.records[0]
	assert.Equal(t, "pdfs/"+name, rec.StorageKey)
	assert.Equal(t, res.SummaryLink, rec.Link)
	assert.Equal(t, 72.5, rec.Lon)
}

func TestRunPromptCarriesAssessment(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.Run(context.Background(), testSite)
	require.NoError(t, err)

	_, payload, found := strings.Cut(h.llm.prompt, "### Input JSON:")
	require.True(t, found)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(payload), &got))
	assert.Equal(t, 23.1, got["latitude"])
	wind := got["wind"].(map[string]any)
	assert.Equal(t, "error", wind["status"])
	assert.Equal(t, "Failed to fetch wind data", wind["message"])
	solar := got["solar"].(map[string]any)
	assert.Equal(t, "5.8 kWh/m²", solar["value"])
}

func TestRunSummarizerFailure(t *testing.T) {
	h := newHarness(t)
	h.llm.err = types.NewAppError(types.ErrCodeUpstreamLLM, "gemini returned 500", nil)

	_, err := h.orch.Run(context.Background(), testSite)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamLLM, appErr.Code)
	assert.Equal(t, "summarize", appErr.Details["stage"])
	assert.Empty(t, h.ledger.records)

	h.llm.err = errors.New("connection reset")
	_, err = h.orch.Run(context.Background(), testSite)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamLLM, appErr.Code)
	assert.Contains(t, appErr.Message, "connection reset")
}

func TestRunRenderFailure(t *testing.T) {
	h := newHarness(t)
	h.renderer.err = errors.New("font missing")

	_, err := h.orch.Run(context.Background(), testSite)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalRender, appErr.Code)
	assert.Equal(t, 500, appErr.HTTPStatus())
	assert.Contains(t, appErr.Message, "font missing")
}

func TestRunStoreFailure(t *testing.T) {
	h := newHarness(t)
	orch := h.build(failingStore{h.store})

	_, err := orch.Run(context.Background(), testSite)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalStorage, appErr.Code)
	assert.Equal(t, "store", appErr.Details["stage"])
	assert.Empty(t, h.ledger.records)
}

func TestRunLedgerFailureStillReturnsLink(t *testing.T) {
	h := newHarness(t)
	h.ledger.err = errors.New("db down")

	res, err := h.orch.Run(context.Background(), testSite)
	require.NoError(t, err)
	assert.NotEmpty(t, res.SummaryLink)
}

func TestKeyFromName(t *testing.T) {
	key, err := KeyFromName("summary_abc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "pdfs/summary_abc.pdf", key)

	for _, bad := range []string{"", "../secret.pdf", "a/b.pdf", "notes.txt", `..\x.pdf`} {
		_, err := KeyFromName(bad)
		assert.Error(t, err, bad)
	}
}

const geminiStyleReply = `# Sustainability Assessment Report

**Location**: Latitude 23.1°, Longitude 72.5°

## Detailed Analysis

| Category | Key metric | Verdict |
|:---------|-----------:|:--------|
| Solar | 5.8 kWh/m² | ✅ Excellent potential → install |
| Wind | 2.0 m/s | ❌ Wind speed too low for a wind farm |
| Water | 0.476 | ⚠️ Moderate – consider storage |
| Green | 25.00% coverage | Green project feasible |

## Recommendations

- Prioritise a ground-mounted array (≥ 1 MW).
`

func TestRunRendersRealisticSummary(t *testing.T) {
	h := newHarness(t)
	h.llm.reply = geminiStyleReply
	orch := NewOrchestrator(OrchestratorConfig{
		Evaluator:  h.eval,
		Summarizer: h.llm,
		Renderer:   NewRenderer(),
		Store:      h.store,
		Ledger:     h.ledger,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		SolarYear:  2025,
		SolarMonth: 1,
		NewID:      func() uuid.UUID { return fixedID },
	})

	res, err := orch.Run(context.Background(), testSite)
	require.NoError(t, err)

	key, err := KeyFromName(strings.TrimPrefix(res.SummaryLink, StaticPrefix+PDFPrefix))
	require.NoError(t, err)
	stored, err := h.store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(stored), "%PDF-"), "stored artifact should be a PDF")
	require.Len(t, h.ledger.records, 1)
}

func TestRunRendersLocalStubSummary(t *testing.T) {
	h := newHarness(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := NewOrchestrator(OrchestratorConfig{
		Evaluator:  h.eval,
		Summarizer: external.NewStubSummarizer(logger),
		Renderer:   NewRenderer(),
		Store:      h.store,
		Logger:     logger,
		SolarYear:  2025,
		SolarMonth: 1,
	})

	res, err := orch.Run(context.Background(), testSite)
	require.NoError(t, err)

	key, err := KeyFromName(strings.TrimPrefix(res.SummaryLink, StaticPrefix+PDFPrefix))
	require.NoError(t, err)
	stored, err := h.store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(stored), "%PDF-"))
}
