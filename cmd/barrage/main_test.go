package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/torosent/barrage/internal/capacity"
	"github.com/torosent/barrage/internal/config"
	"github.com/torosent/barrage/internal/logging"
	"github.com/torosent/barrage/internal/mission"
)

func countingServer(t *testing.T, status func(n int64) int) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(status(n))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestRunEndToEndJSON(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	srv, hits := countingServer(t, func(int64) int { return http.StatusOK })

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"--settle-delay", "0s",
		"--output", "json",
		srv.URL, "100", "0", "4",
	}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run() error = %v, stderr:\n%s", err, stderr.String())
	}

	doc := stdout.String()
	if !gjson.Valid(doc) {
		t.Fatalf("stdout is not a JSON report:\n%s", doc)
	}
	if got := gjson.Get(doc, "workers").Int(); got != 4 {
		t.Errorf("workers = %d, want 4", got)
	}
	if got := gjson.Get(doc, "success").Int() + gjson.Get(doc, "failed").Int(); got != 100 {
		t.Errorf("success+failed = %d, want 100", got)
	}
	if got := gjson.Get(doc, "undelivered").Int(); got != 0 {
		t.Errorf("undelivered = %d, want 0", got)
	}
	if gjson.Get(doc, "run_id").String() == "" {
		t.Errorf("run_id missing from report")
	}
	if got := hits.Load(); got != 100 {
		t.Errorf("server saw %d requests, want 100", got)
	}
}

func TestRunCountsNon2xxAsFailures(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	srv, _ := countingServer(t, func(n int64) int {
		if n%2 == 0 {
			return http.StatusInternalServerError
		}
		return http.StatusOK
	})

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"--settle-delay", "0s",
		"--output", "yaml",
		srv.URL, "10", "0", "2",
	}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.Contains(stdout.String(), "failed: 5") {
		t.Errorf("expected 5 failures in report:\n%s", stdout.String())
	}
}

func TestRunTextOutputShowsBannersAndRating(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	srv, _ := countingServer(t, func(int64) int { return http.StatusNoContent })

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"--settle-delay", "0s",
		srv.URL, "10", "0", "3",
	}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	out := stdout.String()
	for _, want := range []string{"System Analysis", "Requests/Worker:   3", "Undelivered:       1", "Load Test Results", "Rating:"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if !strings.Contains(stderr.String(), "remainder will not be sent") {
		t.Errorf("expected undelivered advisory in logs:\n%s", stderr.String())
	}
}

func TestRunThresholdFailure(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	srv, _ := countingServer(t, func(int64) int { return http.StatusOK })

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"--settle-delay", "0s",
		"--quiet",
		"--threshold", "http_requests:count > 1000",
		srv.URL, "4", "0", "2",
	}, &stdout, &stderr)
	if !errors.Is(err, errThresholdsFailed) {
		t.Fatalf("run() error = %v, want errThresholdsFailed", err)
	}
	if !strings.Contains(stdout.String(), "1 of 1 thresholds failed") {
		t.Errorf("expected threshold summary in output:\n%s", stdout.String())
	}
}

func TestRunUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no arguments", nil},
		{"bad scheme", []string{"ftp://example.test", "10", "0"}},
		{"zero total", []string{"http://example.test", "0", "0"}},
		{"non-numeric delay", []string{"http://example.test", "10", "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(context.Background(), tt.args, &stdout, &stderr)
			if err == nil {
				t.Fatal("run() error = nil, want usage error")
			}
			var verr config.ValidationError
			if !errors.Is(err, config.ErrUsage) && !errors.As(err, &verr) {
				t.Errorf("run() error = %v, want usage or validation error", err)
			}
			if !strings.Contains(stderr.String(), "Usage:") {
				t.Errorf("expected usage on stderr, got %q", stderr.String())
			}
		})
	}
}

func TestRunHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"--help"}, &stdout, &stderr); err != nil {
		t.Fatalf("run(--help) error = %v", err)
	}
	if !strings.Contains(stdout.String(), "Usage:") {
		t.Errorf("expected usage on stdout, got %q", stdout.String())
	}
}

func TestRunInterruptedPrintsPartialReport(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		cancel()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	err := run(ctx, []string{
		"--settle-delay", "0s",
		"--output", "json",
		srv.URL, "5", "60000", "1",
	}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run() error = %v, want nil for an interrupted run", err)
	}
	if !gjson.Get(stdout.String(), "cancelled").Bool() {
		t.Errorf("expected cancelled report, got:\n%s", stdout.String())
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server saw %d requests, want 1", got)
	}
}

func TestLogAdvisories(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(&buf, "info", logging.FormatJSON)
	if err != nil {
		t.Fatal(err)
	}

	m := mission.Config{TotalRequests: 2, RequestedWorkers: 10, ActualWorkers: 3, Clamped: true}
	logAdvisories(logger, m, capacity.Profile{MaxSafeWorkers: 3})

	out := buf.String()
	if !strings.Contains(out, "clamping") {
		t.Errorf("expected clamp advisory, got %s", out)
	}
	if !strings.Contains(out, "no requests will be sent") {
		t.Errorf("expected zero quota advisory, got %s", out)
	}
	if strings.Contains(out, "remainder") {
		t.Errorf("zero quota should not also report a remainder: %s", out)
	}
	if !strings.Contains(out, `"level":"WARN"`) {
		t.Errorf("advisories should be logged at warn: %s", out)
	}
}

func TestHooksForNilView(t *testing.T) {
	hooks := hooksFor(nil)
	if hooks.OnReadyProgress != nil || hooks.OnLiveStats != nil {
		t.Errorf("hooksFor(nil) should leave hooks unset")
	}
}
