package dashboard

import (
	"strings"
	"testing"
	"time"

	"github.com/torosent/barrage/internal/metrics"
	"github.com/torosent/barrage/internal/mission"
)

func testMission() mission.Config {
	return mission.Config{
		RunID:         "run",
		TargetURL:     "http://example.test",
		TotalRequests: 10,
		Delay:         5 * time.Millisecond,
		ActualWorkers: 3,
	}
}

func TestAppendHistoryKeepsWindow(t *testing.T) {
	var history []float64
	for i := 0; i < historySize+10; i++ {
		history = appendHistory(history, float64(i))
	}
	if len(history) != historySize {
		t.Fatalf("len(history) = %d, want %d", len(history), historySize)
	}
	if history[0] != 10 || history[historySize-1] != float64(historySize+9) {
		t.Errorf("history window = [%v .. %v], want oldest values dropped", history[0], history[historySize-1])
	}
}

func TestMissionTextShowsUndelivered(t *testing.T) {
	text := missionText(testMission())
	if !strings.Contains(text, "Requests/Worker: 3") {
		t.Errorf("missionText() = %q, want per-worker quota", text)
	}
	if !strings.Contains(text, "Undelivered: 1") {
		t.Errorf("missionText() = %q, want undelivered remainder", text)
	}

	m := testMission()
	m.TotalRequests = 9
	if text := missionText(m); strings.Contains(text, "Undelivered") {
		t.Errorf("missionText() = %q, want no remainder line", text)
	}
}

func TestSystemText(t *testing.T) {
	tests := []struct {
		name string
		agg  metrics.Aggregate
		want string
	}{
		{"no sample", metrics.Aggregate{ActiveWorkers: 2, Workers: 3}, "Active: 2/3\nMemory: n/a"},
		{"with sample", metrics.Aggregate{ActiveWorkers: 0, Workers: 3, MemoryBytes: 2 << 20}, "Active: 0/3\nMemory: 2.00 MiB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := systemText(tt.agg); got != tt.want {
				t.Errorf("systemText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUpdateRefreshesWidgets(t *testing.T) {
	d := newDashboard(testMission(), nil)

	d.ReadyProgress(2, 3)
	if d.systemPara.Text != "Ready: 2/3" {
		t.Errorf("systemPara = %q after ready progress", d.systemPara.Text)
	}

	d.Update(metrics.Aggregate{
		TotalSuccess:  4,
		TotalFailed:   1,
		Completed:     5,
		TotalRequests: 10,
		CurrentRPS:    7,
		PeakRPS:       9,
		ETASeconds:    1,
		ActiveWorkers: 3,
		Workers:       3,
	})

	if d.progress.Percent != 50 {
		t.Errorf("progress.Percent = %d, want 50", d.progress.Percent)
	}
	if !strings.Contains(d.rpsSparkline.Title, "Peak: 9 RPS") {
		t.Errorf("sparkline title = %q", d.rpsSparkline.Title)
	}
	if got := d.rpsSparkline.Sparklines[0].Data; len(got) != 1 || got[0] != 7 {
		t.Errorf("sparkline data = %v, want [7]", got)
	}
	if !strings.Contains(d.totalsPara.Text, "Rate:      80.0%") {
		t.Errorf("totalsPara = %q", d.totalsPara.Text)
	}
	if !strings.Contains(d.ratePara.Text, "ETA:     1s") {
		t.Errorf("ratePara = %q", d.ratePara.Text)
	}
}
