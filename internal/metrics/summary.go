package metrics

import "time"

// Summary is the final report of a run.
type Summary struct {
	RunID          string        `json:"run_id" yaml:"run_id"`
	Target         string        `json:"target" yaml:"target"`
	TotalRequests  int           `json:"total_requests" yaml:"total_requests"`
	Dispatched     int           `json:"dispatched" yaml:"dispatched"`
	Undelivered    int           `json:"undelivered" yaml:"undelivered"`
	Workers        int           `json:"workers" yaml:"workers"`
	Success        int64         `json:"success" yaml:"success"`
	Failed         int64         `json:"failed" yaml:"failed"`
	Completed      int64         `json:"completed" yaml:"completed"`
	Duration       time.Duration `json:"-" yaml:"-"`
	DurationMs     float64       `json:"duration_ms" yaml:"duration_ms"`
	RuntimeSeconds int64         `json:"runtime_seconds" yaml:"runtime_seconds"`
	AverageRPS     int64         `json:"average_rps" yaml:"average_rps"`
	PeakRPS        int64         `json:"peak_rps" yaml:"peak_rps"`
	SuccessRate    float64       `json:"success_rate" yaml:"success_rate"`
	Latency        LatencyStats  `json:"latency" yaml:"latency"`
	Cancelled      bool          `json:"cancelled,omitempty" yaml:"cancelled,omitempty"`
}

// FailureRate returns failed/completed as a fraction in [0,1].
func (s Summary) FailureRate() float64 {
	if s.Completed == 0 {
		return 0
	}
	return float64(s.Failed) / float64(s.Completed)
}
