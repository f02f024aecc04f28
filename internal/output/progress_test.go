package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/torosent/barrage/internal/metrics"
)

func TestProgressReporterShowsReadyThenStats(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewProgressReporter(10*time.Millisecond, &buf)
	reporter.Start()

	reporter.ReadyProgress(3, 4)
	time.Sleep(40 * time.Millisecond)
	reporter.Update(metrics.Aggregate{
		TotalSuccess:  40,
		TotalFailed:   10,
		Completed:     50,
		TotalRequests: 100,
		CurrentRPS:    25,
		ActiveWorkers: 4,
		Workers:       4,
	})
	reporter.Stop()

	output := buf.String()
	if !strings.Contains(output, "Workers ready: 3/4") {
		t.Errorf("expected ready progress in output, got %q", output)
	}
	if !strings.Contains(output, "Success: 40") || !strings.Contains(output, "Failed: 10") {
		t.Errorf("expected totals in output, got %q", output)
	}
	if !strings.Contains(output, " 50.0%") {
		t.Errorf("expected progress percentage in output, got %q", output)
	}
}

func TestProgressReporterStopIsIdempotent(t *testing.T) {
	reporter := NewProgressReporter(time.Millisecond, nil)
	reporter.Start()
	reporter.Start()
	reporter.Stop()
	reporter.Stop()
}

func TestStatusLineIncludesMemory(t *testing.T) {
	line := StatusLine(metrics.Aggregate{TotalRequests: 10, MemoryBytes: 3 << 20})
	if !strings.Contains(line, "Memory: 3.00 MiB") {
		t.Errorf("StatusLine() = %q, want memory readout", line)
	}

	line = StatusLine(metrics.Aggregate{TotalRequests: 10})
	if strings.Contains(line, "Memory") {
		t.Errorf("StatusLine() = %q, want no memory without a sample", line)
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		fraction float64
		want     string
	}{
		{0, "[----------]   0.0%"},
		{0.5, "[#####-----]  50.0%"},
		{1, "[##########] 100.0%"},
		{1.7, "[##########] 100.0%"},
		{-1, "[----------]   0.0%"},
	}
	for _, tt := range tests {
		if got := ProgressBar(tt.fraction, 10); got != tt.want {
			t.Errorf("ProgressBar(%v) = %q, want %q", tt.fraction, got, tt.want)
		}
	}
}
