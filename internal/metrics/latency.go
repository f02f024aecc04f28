package metrics

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// NewLatencyHistogram tracks latencies from 1µs up to 60s with 3 significant figures.
func NewLatencyHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(1, 60_000_000, 3)
}

// RecordLatency records d in microseconds, clamped to the trackable range.
func RecordLatency(h *hdrhistogram.Histogram, d time.Duration) {
	if h == nil || d <= 0 {
		return
	}
	us := d.Microseconds()
	if us < h.LowestTrackableValue() {
		us = h.LowestTrackableValue()
	}
	if us > h.HighestTrackableValue() {
		us = h.HighestTrackableValue()
	}
	_ = h.RecordValue(us)
}

// LatencyStats summarizes a latency histogram.
type LatencyStats struct {
	Min  time.Duration `json:"-" yaml:"-"`
	Max  time.Duration `json:"-" yaml:"-"`
	Mean time.Duration `json:"-" yaml:"-"`
	P50  time.Duration `json:"-" yaml:"-"`
	P90  time.Duration `json:"-" yaml:"-"`
	P95  time.Duration `json:"-" yaml:"-"`
	P99  time.Duration `json:"-" yaml:"-"`

	// JSON-friendly millisecond fields.
	MinMs  float64 `json:"min_ms" yaml:"min_ms"`
	MaxMs  float64 `json:"max_ms" yaml:"max_ms"`
	MeanMs float64 `json:"mean_ms" yaml:"mean_ms"`
	P50Ms  float64 `json:"p50_ms" yaml:"p50_ms"`
	P90Ms  float64 `json:"p90_ms" yaml:"p90_ms"`
	P95Ms  float64 `json:"p95_ms" yaml:"p95_ms"`
	P99Ms  float64 `json:"p99_ms" yaml:"p99_ms"`
}

func latencyStats(h *hdrhistogram.Histogram) LatencyStats {
	if h == nil || h.TotalCount() == 0 {
		return LatencyStats{}
	}
	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
	s := LatencyStats{
		Min:  us(h.Min()),
		Max:  us(h.Max()),
		Mean: time.Duration(h.Mean() * float64(time.Microsecond)),
		P50:  us(h.ValueAtQuantile(50)),
		P90:  us(h.ValueAtQuantile(90)),
		P95:  us(h.ValueAtQuantile(95)),
		P99:  us(h.ValueAtQuantile(99)),
	}
	s.MinMs = toMillis(s.Min)
	s.MaxMs = toMillis(s.Max)
	s.MeanMs = toMillis(s.Mean)
	s.P50Ms = toMillis(s.P50)
	s.P90Ms = toMillis(s.P90)
	s.P95Ms = toMillis(s.P95)
	s.P99Ms = toMillis(s.P99)
	return s
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
