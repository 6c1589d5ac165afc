package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func namedProbe(name string, fn func(ctx context.Context) error) HealthProbe {
	return HealthProbeFunc{ProbeName: name, Fn: fn}
}

func healthy(context.Context) error { return nil }

func checkHealth(t *testing.T, probes ...HealthProbe) (int, healthResponse) {
	t.Helper()
	srv := newTestServer(t)
	srv.Config.Build.Version = "1.4.0"
	srv.HealthProbes = probes

	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode health body: %v (%q)", err, rec.Body.String())
	}
	return rec.Code, resp
}

func TestHandleHealth_StorageAndLedger(t *testing.T) {
	tests := []struct {
		name       string
		storageErr error
		ledgerErr  error
		wantCode   int
		wantStatus string
	}{
		{"both reachable", nil, nil, http.StatusOK, "healthy"},
		{"bucket missing", errors.New("storage ping: NoSuchBucket"), nil, http.StatusServiceUnavailable, "unhealthy"},
		{"ledger down", nil, errors.New("dial tcp 10.0.0.5:5432: connection refused"), http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := checkHealth(t,
				namedProbe("storage", func(context.Context) error { return tt.storageErr }),
				namedProbe("ledger", func(context.Context) error { return tt.ledgerErr }),
			)

			if code != tt.wantCode || resp.Status != tt.wantStatus {
				t.Fatalf("got %d %q, want %d %q", code, resp.Status, tt.wantCode, tt.wantStatus)
			}
			if resp.Version != "1.4.0" {
				t.Errorf("version = %q", resp.Version)
			}
			for name, wantErr := range map[string]error{"storage": tt.storageErr, "ledger": tt.ledgerErr} {
				got, ok := resp.Components[name]
				if !ok {
					t.Fatalf("component %q missing from %v", name, resp.Components)
				}
				switch {
				case wantErr == nil && got.Status != "healthy":
					t.Errorf("%s = %+v, want healthy", name, got)
				case wantErr != nil && (got.Status != "unhealthy" || got.Message != wantErr.Error()):
					t.Errorf("%s = %+v, want unhealthy with %q", name, got, wantErr)
				}
			}
		})
	}
}

func TestHandleHealth_NoProbes(t *testing.T) {
	code, resp := checkHealth(t)
	if code != http.StatusOK || resp.Status != "healthy" {
		t.Errorf("got %d %q", code, resp.Status)
	}
	if resp.Components != nil {
		t.Errorf("components should be omitted, got %v", resp.Components)
	}
}

// Each probe waits for the other to start, so a sequential runner would block
// until the deadline.
func TestHandleHealth_ProbesRunConcurrently(t *testing.T) {
	storageStarted := make(chan struct{})
	ledgerStarted := make(chan struct{})
	rendezvous := func(mine, other chan struct{}) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			close(mine)
			select {
			case <-other:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	start := time.Now()
	code, resp := checkHealth(t,
		namedProbe("storage", rendezvous(storageStarted, ledgerStarted)),
		namedProbe("ledger", rendezvous(ledgerStarted, storageStarted)),
	)

	if code != http.StatusOK {
		t.Fatalf("got %d %+v", code, resp.Components)
	}
	if elapsed := time.Since(start); elapsed > healthCheckTimeout/2 {
		t.Errorf("probes took %v", elapsed)
	}
}

func TestHandleHealth_StuckProbeTimesOut(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	start := time.Now()
	code, resp := checkHealth(t,
		namedProbe("storage", healthy),
		namedProbe("ledger", func(context.Context) error {
			<-release
			return nil
		}),
	)

	if code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", code)
	}
	if got := resp.Components["ledger"]; got.Message != "health check timed out" {
		t.Errorf("ledger = %+v", got)
	}
	if got := resp.Components["storage"]; got.Status != "healthy" {
		t.Errorf("storage = %+v", got)
	}
	if elapsed := time.Since(start); elapsed > healthCheckTimeout+time.Second {
		t.Errorf("handler ignored its deadline: %v", elapsed)
	}
}

func TestHandleHealth_ProbePanicIsReported(t *testing.T) {
	code, resp := checkHealth(t,
		namedProbe("storage", func(context.Context) error { panic("nil bucket client") }),
	)

	if code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", code)
	}
	got := resp.Components["storage"]
	if got.Status != "unhealthy" || got.Message != "probe panicked: nil bucket client" {
		t.Errorf("storage = %+v", got)
	}
}

func TestHandleHealth_NilConfigOmitsVersion(t *testing.T) {
	srv := &Server{HealthProbes: []HealthProbe{namedProbe("storage", healthy)}}
	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "version") {
		t.Errorf("version should be omitted: %s", rec.Body.String())
	}
}

func TestHealthProbeFunc(t *testing.T) {
	var p HealthProbe = HealthProbeFunc{ProbeName: "ledger", Fn: func(context.Context) error {
		return errors.New("pool closed")
	}}
	if p.Name() != "ledger" {
		t.Errorf("Name = %q", p.Name())
	}
	if err := p.Check(context.Background()); err == nil || err.Error() != "pool closed" {
		t.Errorf("Check = %v", err)
	}
}
