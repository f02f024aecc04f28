package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/torosent/barrage/internal/metrics"
)

const progressBarWidth = 30

// ProgressReporter displays real-time progress updates. It is fed by the
// runner hooks and redraws a single line on its own ticker.
type ProgressReporter struct {
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32

	mu         sync.Mutex
	ready      int
	readyTotal int
	latest     metrics.Aggregate
	running    bool
	dirty      bool
}

// NewProgressReporter creates a progress reporter that redraws at the given interval.
func NewProgressReporter(interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &ProgressReporter{
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return
	}
	go p.run()
}

// Stop halts progress updates and flushes the last line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

// ReadyProgress records how many workers have reported ready.
func (p *ProgressReporter) ReadyProgress(ready, total int) {
	p.mu.Lock()
	p.ready, p.readyTotal = ready, total
	p.dirty = true
	p.mu.Unlock()
}

// Update records the latest aggregate.
func (p *ProgressReporter) Update(agg metrics.Aggregate) {
	p.mu.Lock()
	p.latest = agg
	p.running = true
	p.dirty = true
	p.mu.Unlock()
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			p.draw()
		case <-p.done:
			p.draw()
			return
		}
	}
}

func (p *ProgressReporter) draw() {
	p.mu.Lock()
	if !p.dirty {
		p.mu.Unlock()
		return
	}
	p.dirty = false
	line := p.line()
	p.mu.Unlock()
	fmt.Fprint(p.writer, "\r\x1b[K"+line)
}

// line renders the current state. Callers hold p.mu.
func (p *ProgressReporter) line() string {
	if !p.running {
		return fmt.Sprintf("Workers ready: %d/%d", p.ready, p.readyTotal)
	}
	return StatusLine(p.latest)
}

// StatusLine renders one aggregate as a single status line.
func StatusLine(agg metrics.Aggregate) string {
	line := fmt.Sprintf("%s | Success: %d | Failed: %d | RPS: %d | Runtime: %ds | ETA: %ds | Workers: %d/%d",
		ProgressBar(agg.Progress(), progressBarWidth),
		agg.TotalSuccess, agg.TotalFailed, agg.CurrentRPS,
		agg.RuntimeSeconds, agg.ETASeconds,
		agg.ActiveWorkers, agg.Workers)
	if agg.MemoryBytes > 0 {
		line += " | Memory: " + FormatBytes(agg.MemoryBytes)
	}
	return line
}

// ProgressBar renders fraction (clamped to [0,1]) as a bar of width cells.
func ProgressBar(fraction float64, width int) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	filled := int(fraction * float64(width))
	return fmt.Sprintf("[%s%s] %5.1f%%",
		strings.Repeat("#", filled),
		strings.Repeat("-", width-filled),
		fraction*100)
}
