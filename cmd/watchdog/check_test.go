package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazz-dev/watchdog/internal/config"
	"github.com/hazz-dev/watchdog/internal/storage"
)

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	st, err := storage.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func testConfig() *config.Config {
	return &config.Config{
		Probe: config.ProbeConfig{
			Interval:     config.Duration{Duration: time.Minute},
			Timeout:      config.Duration{Duration: 2 * time.Second},
			MaxRedirects: config.DefaultMaxRedirects,
		},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestExecuteCheck_AllUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx := context.Background()
	st := newTestStore(t)
	target, _, err := st.UpsertTarget(ctx, srv.URL)
	if err != nil {
		t.Fatalf("UpsertTarget: %v", err)
	}

	var buf bytes.Buffer
	logger := quietLogger()
	if err := executeCheck(ctx, &buf, st, newExecutor(testConfig(), st, logger), logger); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "URL") {
		t.Errorf("expected header row, got:\n%s", output)
	}
	if !strings.Contains(output, target.URL) || !strings.Contains(output, "ok") {
		t.Errorf("expected %s ok in output, got:\n%s", target.URL, output)
	}

	results, err := st.ResultsSince(ctx, target.ID, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ResultsSince: %v", err)
	}
	if len(results) != 1 || !results[0].Success {
		t.Errorf("results = %+v, want one success", results)
	}
}

func TestExecuteCheck_FailureReturnsError(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	ctx := context.Background()
	st := newTestStore(t)
	for _, u := range []string{up.URL, down.URL} {
		if _, _, err := st.UpsertTarget(ctx, u); err != nil {
			t.Fatalf("UpsertTarget: %v", err)
		}
	}

	var buf bytes.Buffer
	logger := quietLogger()
	err := executeCheck(ctx, &buf, st, newExecutor(testConfig(), st, logger), logger)
	if err == nil {
		t.Fatal("expected error when a target fails")
	}
	if !strings.Contains(err.Error(), "1 of 2") {
		t.Errorf("error = %q, want count of failures", err)
	}
	if !strings.Contains(buf.String(), "unexpected status code: 503") {
		t.Errorf("expected failure reason in output, got:\n%s", buf.String())
	}
}

func TestExecuteCheck_NoTargets(t *testing.T) {
	st := newTestStore(t)
	var buf bytes.Buffer
	logger := quietLogger()
	if err := executeCheck(context.Background(), &buf, st, newExecutor(testConfig(), st, logger), logger); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "No targets registered") {
		t.Errorf("expected hint, got:\n%s", buf.String())
	}
}

func TestSeedTargets_Idempotent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	urls := []string{"https://a.example", "https://b.example"}

	for i := 0; i < 2; i++ {
		if err := seedTargets(ctx, st, urls, quietLogger()); err != nil {
			t.Fatalf("seedTargets #%d: %v", i, err)
		}
	}

	targets, err := st.ListTargets(ctx)
	if err != nil {
		t.Fatalf("ListTargets: %v", err)
	}
	if len(targets) != 2 {
		t.Errorf("targets = %d, want 2", len(targets))
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		lc      config.LogConfig
		want    string
		wantErr bool
	}{
		{"text", config.LogConfig{Level: "info", Format: "text"}, "msg=hello", false},
		{"json", config.LogConfig{Level: "info", Format: "json"}, `"msg":"hello"`, false},
		{"bad level", config.LogConfig{Level: "loud", Format: "text"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := newLogger(&buf, tt.lc)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			logger.Info("hello")
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output %q does not contain %q", buf.String(), tt.want)
			}
		})
	}
}

func TestNewLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, config.LogConfig{Level: "warn", Format: "text"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %q", buf.String())
	}
}
