package external

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	"sitescore/internal/types"
)

// StubImagery stands in for Earth Engine in local runs. Every query reports
// the platform as unavailable, so dependent scores degrade the same way they
// would during an outage.
type StubImagery struct {
	logger *slog.Logger
}

var _ ImagerySource = (*StubImagery)(nil)

// NewStubImagery creates a StubImagery.
func NewStubImagery(logger *slog.Logger) *StubImagery {
	return &StubImagery{logger: logger}
}

func (s *StubImagery) unavailable(ctx context.Context, kind string) error {
	s.logger.InfoContext(ctx, "stub imagery query", "kind", kind)
	return types.NewAppErrorWithDetails(types.ErrCodeUpstreamImagery,
		"imagery platform is not configured", nil, map[string]any{"source": "earth_engine"})
}

func (s *StubImagery) SoilTexture(ctx context.Context, _ types.Coordinate) (float64, bool, error) {
	return 0, false, s.unavailable(ctx, "soil")
}

func (s *StubImagery) Slope(ctx context.Context, _ types.Coordinate) (float64, bool, error) {
	return 0, false, s.unavailable(ctx, "slope")
}

func (s *StubImagery) Coverage(ctx context.Context, _ types.Coordinate) (*Coverage, error) {
	return nil, s.unavailable(ctx, "coverage")
}

// StubSummarizer returns a minimal Markdown report embedding the input data,
// for local runs without an LLM key.
type StubSummarizer struct {
	logger *slog.Logger
}

var _ Summarizer = (*StubSummarizer)(nil)

// NewStubSummarizer creates a StubSummarizer.
func NewStubSummarizer(logger *slog.Logger) *StubSummarizer {
	return &StubSummarizer{logger: logger}
}

// PromptDataMarker separates the instructions of a summarization prompt from
// the serialized assessment that follows it.
const PromptDataMarker = "### Input JSON:"

// Summarize implements Summarizer.
func (s *StubSummarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	s.logger.InfoContext(ctx, "stub summarize", "prompt_chars", len(prompt))

	data := prompt
	if _, after, found := strings.Cut(prompt, PromptDataMarker); found {
		data = after
	}

	var sb strings.Builder
	sb.WriteString("# Sustainability Assessment Report\n\n")
	sb.WriteString("Summarization is disabled in this environment. The assessment data follows.\n\n")
	writeSectionTable(&sb, strings.TrimSpace(data))
	sb.WriteString("```\n")
	sb.WriteString(strings.TrimSpace(data))
	sb.WriteString("\n```\n")
	return sb.String(), nil
}

// writeSectionTable lists the top-level fields of a JSON object as a two
// column table. Data that is not an object is skipped.
func writeSectionTable(sb *strings.Builder, data string) {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal([]byte(data), &sections); err != nil || len(sections) == 0 {
		return
	}
	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	sort.Strings(names)

	sb.WriteString("| Section | Data |\n|---|---|\n")
	for _, name := range names {
		cell := strings.ReplaceAll(string(sections[name]), "|", "\\|")
		sb.WriteString("| " + name + " | " + cell + " |\n")
	}
	sb.WriteString("\n")
}
