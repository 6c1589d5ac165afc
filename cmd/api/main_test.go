package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"sitescore/internal/config"
	"sitescore/internal/telemetry"
)

const testPDFName = "summary_0f8fad5bd9cb469fa16570867728950e.pdf"

// buildTestApp wires the full dependency graph in local mode: file storage
// under a temp dir, stub imagery and summarizer, no ledger, log-only metrics.
func buildTestApp(t *testing.T) *app {
	t.Helper()
	setTestEnv(t)

	cfg, err := config.LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := buildApp(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	return a
}

func TestHealthEndpoint(t *testing.T) {
	a := buildTestApp(t)

	rec := httptest.NewRecorder()
	a.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health: got status %d; body: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Status     string                    `json:"status"`
		Components map[string]map[string]any `json:"components"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if _, ok := resp.Components["storage"]; !ok {
		t.Errorf("storage probe missing from %v", resp.Components)
	}
	if _, ok := resp.Components["ledger"]; ok {
		t.Error("ledger probe registered without DATABASE_URL")
	}
}

func TestHealthEndpoint_StorageProbeFails(t *testing.T) {
	a := buildTestApp(t)
	if err := os.RemoveAll(os.Getenv("STORAGE_DIR")); err != nil {
		t.Fatalf("remove storage dir: %v", err)
	}

	rec := httptest.NewRecorder()
	a.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("GET /health: got status %d, want 503; body: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Components map[string]struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"components"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if got := resp.Components["storage"]; got.Status != "unhealthy" || got.Message == "" {
		t.Errorf("storage = %+v, want unhealthy with a message", got)
	}
}

func TestRootEndpoint(t *testing.T) {
	a := buildTestApp(t)

	rec := httptest.NewRecorder()
	a.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Welcome to the Solar Energy API") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestReportsDisabledWithoutLedger(t *testing.T) {
	a := buildTestApp(t)

	rec := httptest.NewRecorder()
	a.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /reports: got %d, want 404", rec.Code)
	}
}

func TestStaticPDFServedFromStore(t *testing.T) {
	a := buildTestApp(t)
	if err := a.store.Put(context.Background(), "pdfs/"+testPDFName, []byte("%PDF-1.3"), "application/pdf"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rec := httptest.NewRecorder()
	a.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/pdfs/"+testPDFName, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("got %d; body: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "%PDF-1.3" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestInvalidCoordinateRejected(t *testing.T) {
	a := buildTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/check_green", strings.NewReader(`{"latitude": 95, "longitude": 0}`))
	rec := httptest.NewRecorder()
	a.srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("got %d, want 400", rec.Code)
	}
}

func TestBuildAppUsesLogCollectorLocally(t *testing.T) {
	a := buildTestApp(t)
	if _, ok := a.metrics.(*telemetry.LogCollector); !ok {
		t.Errorf("metrics = %T, want *telemetry.LogCollector", a.metrics)
	}
	if a.janitor.Enabled() {
		t.Error("janitor should be disabled with zero retention")
	}
}

func TestLambdaHandler_JSON(t *testing.T) {
	a := buildTestApp(t)
	handler := newLambdaHandler(a.srv.Handler())

	ev := events.APIGatewayV2HTTPRequest{RawPath: "/"}
	ev.RequestContext.HTTP.Method = http.MethodGet
	ev.RequestContext.HTTP.SourceIP = "203.0.113.7"

	resp, err := handler(context.Background(), ev)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if resp.StatusCode != http.StatusOK || resp.IsBase64Encoded {
		t.Fatalf("resp = %d base64=%v", resp.StatusCode, resp.IsBase64Encoded)
	}
	if !strings.Contains(resp.Body, "Welcome") {
		t.Errorf("body = %s", resp.Body)
	}
	if resp.Headers["X-Request-Id"] == "" {
		t.Error("request id header not propagated")
	}
}

func TestLambdaHandler_Base64Bodies(t *testing.T) {
	a := buildTestApp(t)
	if err := a.store.Put(context.Background(), "pdfs/"+testPDFName, []byte("%PDF-1.3"), "application/pdf"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	handler := newLambdaHandler(a.srv.Handler())

	ev := events.APIGatewayV2HTTPRequest{RawPath: "/static/pdfs/" + testPDFName}
	ev.RequestContext.HTTP.Method = http.MethodGet
	resp, err := handler(context.Background(), ev)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !resp.IsBase64Encoded {
		t.Fatal("PDF response should be base64 encoded")
	}
	body, _ := base64.StdEncoding.DecodeString(resp.Body)
	if string(body) != "%PDF-1.3" {
		t.Errorf("body = %q", body)
	}

	post := events.APIGatewayV2HTTPRequest{
		RawPath:         "/check_wind_farm",
		Body:            base64.StdEncoding.EncodeToString([]byte(`{"latitude": 1}`)),
		IsBase64Encoded: true,
		Headers:         map[string]string{"content-type": "application/json"},
	}
	post.RequestContext.HTTP.Method = http.MethodPost
	resp, err = handler(context.Background(), post)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing longitude: got %d, want 400", resp.StatusCode)
	}
}

func TestLambdaHandler_BadBase64(t *testing.T) {
	handler := newLambdaHandler(http.NotFoundHandler())
	ev := events.APIGatewayV2HTTPRequest{RawPath: "/", Body: "!!", IsBase64Encoded: true}
	ev.RequestContext.HTTP.Method = http.MethodPost
	if _, err := handler(context.Background(), ev); err == nil {
		t.Error("expected error for undecodable body")
	}
}

func TestIsLambdaEnvironment(t *testing.T) {
	os.Unsetenv("AWS_LAMBDA_RUNTIME_API")
	os.Unsetenv("_LAMBDA_SERVER_PORT")

	if isLambdaEnvironment() {
		t.Error("isLambdaEnvironment: expected false when no Lambda env vars are set")
	}

	t.Setenv("AWS_LAMBDA_RUNTIME_API", "localhost:8080")
	if !isLambdaEnvironment() {
		t.Error("isLambdaEnvironment: expected true when AWS_LAMBDA_RUNTIME_API is set")
	}
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "unknown"} {
		t.Run(level, func(t *testing.T) {
			if newLogger(level) == nil {
				t.Fatalf("newLogger(%q) returned nil", level)
			}
		})
	}
}

// setTestEnv sets the environment for a self-contained local boot.
func setTestEnv(t *testing.T) {
	t.Helper()

	t.Setenv("APP_ENV", "local")
	t.Setenv("PORT", "8080")
	t.Setenv("STORAGE_BACKEND", "local")
	t.Setenv("STORAGE_DIR", t.TempDir())
	t.Setenv("DATABASE_URL", "")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("EARTH_ENGINE_PROJECT", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("ARTIFACT_RETENTION", "0s")
	t.Setenv("MODEL_RETENTION", "0s")
}
