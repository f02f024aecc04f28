package metrics

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Snapshot is a worker's cumulative request counts at a point in time.
// A newer snapshot replaces the previous one for the same worker.
type Snapshot struct {
	WorkerID int
	Success  int64
	Failed   int64
}

// Aggregate is the live view of a run, recomputed on every tick.
type Aggregate struct {
	TotalSuccess   int64  `json:"total_success" yaml:"total_success"`
	TotalFailed    int64  `json:"total_failed" yaml:"total_failed"`
	Completed      int64  `json:"completed" yaml:"completed"`
	TotalRequests  int    `json:"total_requests" yaml:"total_requests"`
	RuntimeSeconds int64  `json:"runtime_seconds" yaml:"runtime_seconds"`
	CurrentRPS     int64  `json:"current_rps" yaml:"current_rps"`
	PeakRPS        int64  `json:"peak_rps" yaml:"peak_rps"`
	ETASeconds     int64  `json:"eta_seconds" yaml:"eta_seconds"`
	ActiveWorkers  int    `json:"active_workers" yaml:"active_workers"`
	Workers        int    `json:"workers" yaml:"workers"`
	MemoryBytes    uint64 `json:"memory_bytes,omitempty" yaml:"memory_bytes,omitempty"`
}

// Progress returns the completed fraction of the requested total, capped at 1.
func (a Aggregate) Progress() float64 {
	if a.TotalRequests <= 0 {
		return 0
	}
	p := float64(a.Completed) / float64(a.TotalRequests)
	if p > 1 {
		return 1
	}
	return p
}

// SuccessRate returns the percentage of completed requests that succeeded.
func (a Aggregate) SuccessRate() float64 {
	if a.Completed == 0 {
		return 0
	}
	return float64(a.TotalSuccess) * 100 / float64(a.Completed)
}

// Aggregator merges per-worker snapshots into a single view.
// It is owned by one goroutine and is not safe for concurrent use.
type Aggregator struct {
	totalRequests int
	workers       int
	latest        map[int]Snapshot
	latency       *hdrhistogram.Histogram
	start         time.Time
	peak          int64
}

// NewAggregator creates an aggregator for a run of totalRequests spread over workers.
func NewAggregator(totalRequests, workers int) *Aggregator {
	return &Aggregator{
		totalRequests: totalRequests,
		workers:       workers,
		latest:        make(map[int]Snapshot, workers),
		latency:       NewLatencyHistogram(),
	}
}

// Start marks the moment dispatch began.
func (a *Aggregator) Start(t time.Time) {
	a.start = t
}

// Started reports when dispatch began; zero until Start is called.
func (a *Aggregator) Started() time.Time {
	return a.start
}

// Merge replaces the stored snapshot for s.WorkerID. Counters only grow, so a
// snapshot older than the stored one is ignored.
func (a *Aggregator) Merge(s Snapshot) {
	if prev, ok := a.latest[s.WorkerID]; ok && (s.Success < prev.Success || s.Failed < prev.Failed) {
		return
	}
	a.latest[s.WorkerID] = s
}

// MergeLatency folds a worker's exported latency histogram into the run histogram.
func (a *Aggregator) MergeLatency(s *hdrhistogram.Snapshot) {
	if s == nil {
		return
	}
	a.latency.Merge(hdrhistogram.Import(s))
}

// Totals sums the latest snapshot of every known worker.
func (a *Aggregator) Totals() (success, failed int64) {
	for _, s := range a.latest {
		success += s.Success
		failed += s.Failed
	}
	return success, failed
}

// PeakRPS is the highest CurrentRPS observed so far.
func (a *Aggregator) PeakRPS() int64 {
	return a.peak
}

// Tick recomputes the aggregate at now. completedWorkers is the number of
// workers that have reported completion.
func (a *Aggregator) Tick(now time.Time, completedWorkers int) Aggregate {
	success, failed := a.Totals()
	completed := success + failed

	runtime := a.runtimeSeconds(now)
	var rps int64
	if runtime > 0 {
		rps = completed / runtime
	}
	if rps > a.peak {
		a.peak = rps
	}

	var eta int64
	if rps > 0 {
		eta = (int64(a.totalRequests) - completed) / rps
	}

	return Aggregate{
		TotalSuccess:   success,
		TotalFailed:    failed,
		Completed:      completed,
		TotalRequests:  a.totalRequests,
		RuntimeSeconds: runtime,
		CurrentRPS:     rps,
		PeakRPS:        a.peak,
		ETASeconds:     eta,
		ActiveWorkers:  a.workers - completedWorkers,
		Workers:        a.workers,
	}
}

// Summary builds the final counters, rates and latency percentiles at now.
func (a *Aggregator) Summary(now time.Time) Summary {
	success, failed := a.Totals()
	completed := success + failed

	s := Summary{
		TotalRequests:  a.totalRequests,
		Workers:        a.workers,
		Success:        success,
		Failed:         failed,
		Completed:      completed,
		RuntimeSeconds: a.runtimeSeconds(now),
		PeakRPS:        a.peak,
		Latency:        latencyStats(a.latency),
	}
	if !a.start.IsZero() {
		s.Duration = now.Sub(a.start)
		s.DurationMs = toMillis(s.Duration)
	}
	if s.RuntimeSeconds > 0 {
		s.AverageRPS = completed / s.RuntimeSeconds
	}
	if completed > 0 {
		s.SuccessRate = float64(success) * 100 / float64(completed)
	}
	return s
}

func (a *Aggregator) runtimeSeconds(now time.Time) int64 {
	if a.start.IsZero() || now.Before(a.start) {
		return 0
	}
	return int64(now.Sub(a.start) / time.Second)
}
