package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sitescore/internal/types"
)

const (
	geminiBase         = "https://generativelanguage.googleapis.com"
	defaultGeminiModel = "gemini-1.5-pro"
)

// GeminiConfig configures the GeminiClient.
type GeminiConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Logger  *slog.Logger
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// GeminiClient implements Summarizer with the generateContent method.
type GeminiClient struct {
	base    *BaseClient
	baseURL string
	apiKey  string
	model   string
	logger  *slog.Logger
}

var _ Summarizer = (*GeminiClient)(nil)

// NewGeminiClient creates a GeminiClient on top of base.
func NewGeminiClient(base *BaseClient, cfg GeminiConfig) *GeminiClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = geminiBase
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &GeminiClient{
		base:    base,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		logger:  cfg.Logger,
	}
}

// Summarize sends prompt as a single user turn and returns the concatenated
// text of the first candidate.
func (c *GeminiClient) Summarize(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode Gemini request", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create Gemini request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// The key must stay out of the URL: transport errors echo it.
	req.Header.Set("x-goog-api-key", c.apiKey)

	began := time.Now()
	var resp geminiResponse
	if err := c.base.doJSON(req, &resp); err != nil {
		c.logger.ErrorContext(ctx, "Gemini generateContent failed", "model", c.model, "error", err)
		return "", err
	}

	if len(resp.Candidates) == 0 {
		reason := "no candidates returned"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			reason = "prompt blocked: " + resp.PromptFeedback.BlockReason
		}
		return "", types.NewAppError(types.ErrCodeUpstreamLLM, "Gemini returned no summary: "+reason, nil)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return "", types.NewAppError(types.ErrCodeUpstreamLLM, "Gemini returned an empty summary", nil)
	}

	c.logger.InfoContext(ctx, "Gemini summary generated",
		"model", c.model,
		"chars", len(text),
		"finish_reason", resp.Candidates[0].FinishReason,
		"duration_ms", time.Since(began).Milliseconds(),
	)
	return text, nil
}
