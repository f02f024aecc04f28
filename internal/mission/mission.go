// Package mission turns validated user input and a capacity decision into the
// immutable run configuration and the per-worker assignments derived from it.
package mission

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/torosent/barrage/internal/capacity"
)

// Config is the immutable description of one run.
type Config struct {
	RunID            string        `json:"run_id" yaml:"run_id"`
	TargetURL        string        `json:"target" yaml:"target"`
	TotalRequests    int           `json:"total_requests" yaml:"total_requests"`
	Delay            time.Duration `json:"delay" yaml:"delay"`
	RequestedWorkers int           `json:"requested_workers" yaml:"requested_workers"`
	ActualWorkers    int           `json:"actual_workers" yaml:"actual_workers"`
	// Clamped is set when the requested worker count exceeded the safe maximum.
	Clamped bool `json:"clamped" yaml:"clamped"`
	// Floored is set when the profile allowed no workers and one was used anyway.
	Floored bool `json:"floored,omitempty" yaml:"floored,omitempty"`
}

// Assignment is the slice of work handed to a single worker.
type Assignment struct {
	WorkerID     int
	TargetURL    string
	RequestQuota int
	Delay        time.Duration
}

// New builds a run configuration, resolving the worker count against the profile.
func New(target string, totalRequests int, delay time.Duration, requestedWorkers int, profile capacity.Profile) (Config, error) {
	if totalRequests <= 0 {
		return Config{}, fmt.Errorf("total requests must be > 0, got %d", totalRequests)
	}
	if delay < 0 {
		return Config{}, fmt.Errorf("delay must be >= 0, got %s", delay)
	}

	actual, clamped := capacity.Resolve(requestedWorkers, profile)
	cfg := Config{
		RunID:            ulid.Make().String(),
		TargetURL:        target,
		TotalRequests:    totalRequests,
		Delay:            delay,
		RequestedWorkers: requestedWorkers,
		ActualWorkers:    actual,
		Clamped:          clamped,
	}
	if cfg.ActualWorkers < 1 {
		cfg.ActualWorkers = 1
		cfg.Floored = true
	}
	return cfg, nil
}

// RequestQuota is the number of requests each worker dispatches.
func (c Config) RequestQuota() int {
	if c.ActualWorkers <= 0 {
		return 0
	}
	return c.TotalRequests / c.ActualWorkers
}

// Dispatched is the number of requests the run will actually issue.
func (c Config) Dispatched() int {
	return c.RequestQuota() * c.ActualWorkers
}

// Undelivered is the division remainder that no worker is assigned.
func (c Config) Undelivered() int {
	return c.TotalRequests - c.Dispatched()
}

// Assignments returns one assignment per worker. Worker ids start at 1.
func (c Config) Assignments() []Assignment {
	quota := c.RequestQuota()
	out := make([]Assignment, c.ActualWorkers)
	for i := range out {
		out[i] = Assignment{
			WorkerID:     i + 1,
			TargetURL:    c.TargetURL,
			RequestQuota: quota,
			Delay:        c.Delay,
		}
	}
	return out
}
