package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/torosent/barrage/internal/metrics"
)

const (
	// DefaultSettleDelay separates the ready barrier from the start broadcast.
	DefaultSettleDelay = 3 * time.Second
	// DefaultTickInterval is the live statistics cadence.
	DefaultTickInterval = 50 * time.Millisecond
	// DefaultMemoryInterval bounds how often the memory sampler is consulted.
	DefaultMemoryInterval = time.Second
)

// Hooks receive run events on the runner goroutine. Nil hooks are skipped.
// Hooks must not block for long; the event loop waits for them.
type Hooks struct {
	OnReadyProgress   func(ready, total int)
	OnStart           func(workers int)
	OnLiveStats       func(metrics.Aggregate)
	OnMissionComplete func(metrics.Summary)
}

func (h Hooks) readyProgress(ready, total int) {
	if h.OnReadyProgress != nil {
		h.OnReadyProgress(ready, total)
	}
}

func (h Hooks) start(workers int) {
	if h.OnStart != nil {
		h.OnStart(workers)
	}
}

func (h Hooks) liveStats(a metrics.Aggregate) {
	if h.OnLiveStats != nil {
		h.OnLiveStats(a)
	}
}

func (h Hooks) missionComplete(s metrics.Summary) {
	if h.OnMissionComplete != nil {
		h.OnMissionComplete(s)
	}
}

// MemorySampler reports the resident memory of the process.
type MemorySampler func(ctx context.Context) (uint64, error)

// Options configure the Runner.
type Options struct {
	SettleDelay    time.Duration // pause between all-ready and start (zero means none)
	TickInterval   time.Duration // live statistics cadence
	MemoryInterval time.Duration // minimum spacing between memory samples
	MemorySampler  MemorySampler // optional; live stats omit memory when nil
	EventBuffer    int           // capacity of the worker event channel
	Hooks          Hooks
	Logger         *slog.Logger
}

func (o *Options) normalize(workers int) {
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
	if o.MemoryInterval <= 0 {
		o.MemoryInterval = DefaultMemoryInterval
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = workers
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
}
