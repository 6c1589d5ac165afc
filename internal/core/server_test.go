package core

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"sitescore/internal/config"
)

// mockMetricsCollector implements MetricsCollector for testing.
type mockMetricsCollector struct {
	mu    sync.Mutex
	calls []metricsCall
}

type metricsCall struct {
	method, endpoint, status string
	duration                 time.Duration
}

func (m *mockMetricsCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, metricsCall{method, endpoint, status, duration})
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := NewServer(&config.Config{Environment: "local"}, testLogger())
	if err != nil {
		t.Fatalf("NewServer returned unexpected error: %v", err)
	}
	return srv
}

func TestNewServer_Success(t *testing.T) {
	cfg := &config.Config{Environment: "local"}
	logger := slog.Default()

	srv, err := NewServer(cfg, logger)
	if err != nil {
		t.Fatalf("NewServer returned unexpected error: %v", err)
	}
	if srv.Config != cfg {
		t.Error("Config field not set correctly")
	}
	if srv.Logger != logger {
		t.Error("Logger field not set correctly")
	}
	if srv.Validator == nil {
		t.Error("Validator should be initialized")
	}
	if srv.Router() == nil {
		t.Error("router should be initialized")
	}
}

func TestNewServer_NilConfig(t *testing.T) {
	if _, err := NewServer(nil, slog.Default()); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestNewServer_NilLogger(t *testing.T) {
	if _, err := NewServer(&config.Config{}, nil); err == nil {
		t.Fatal("expected error for nil logger")
	}
}

func TestServer_HandlerServesRegistrars(t *testing.T) {
	srv := newTestServer(t)
	srv.RouteRegistrars = []RouteRegistrar{
		func(r chi.Router) {
			r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
				JSON(w, r, http.StatusOK, map[string]string{"message": "pong"})
			})
		},
	}
	srv.MountRoutes()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); body != `{"message":"pong"}` {
		t.Errorf("body = %s", body)
	}
}

func TestServer_Shutdown_RunsEveryCloser(t *testing.T) {
	srv := newTestServer(t)

	var order []string
	srv.Closers = []func(context.Context) error{
		func(context.Context) error { order = append(order, "db"); return errors.New("pool busy") },
		func(context.Context) error { order = append(order, "metrics"); return nil },
	}

	err := srv.Shutdown(context.Background())
	if err == nil {
		t.Fatal("expected the first closer error")
	}
	if len(order) != 2 || order[0] != "db" || order[1] != "metrics" {
		t.Errorf("closers ran as %v, want [db metrics]", order)
	}
}

func TestServer_Shutdown_NoClosers(t *testing.T) {
	if err := newTestServer(t).Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
}
