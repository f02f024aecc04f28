// Package worker implements the sequential request dispatch loop run by every
// member of the worker pool.
package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/torosent/barrage/internal/metrics"
	"github.com/torosent/barrage/internal/mission"
)

// StatsEvery is the iteration interval between cumulative stats messages.
const StatsEvery = 10

// Requester abstracts executing a single request.
// Implementations return an error for failed requests.
type Requester interface {
	Do(ctx context.Context) error
}

// RequesterFunc adapts a function to the Requester interface.
type RequesterFunc func(ctx context.Context) error

func (f RequesterFunc) Do(ctx context.Context) error { return f(ctx) }

// State is the worker's position in its lifecycle.
type State int32

const (
	StateWaiting State = iota
	StateRunning
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// ErrNoRequester is returned by Run when the worker has nothing to dispatch with.
var ErrNoRequester = errors.New("worker: requester is nil")

// Worker issues a fixed quota of requests one after another.
type Worker struct {
	id        int
	quota     int
	delay     time.Duration
	requester Requester
	latency   *hdrhistogram.Histogram
	state     atomic.Int32

	success int64
	failed  int64
}

// New creates a worker for the assignment.
func New(a mission.Assignment, requester Requester) *Worker {
	return &Worker{
		id:        a.WorkerID,
		quota:     a.RequestQuota,
		delay:     a.Delay,
		requester: requester,
		latency:   metrics.NewLatencyHistogram(),
	}
}

// ID returns the worker id.
func (w *Worker) ID() int { return w.id }

// State returns the current lifecycle state. Safe for concurrent use.
func (w *Worker) State() State { return State(w.state.Load()) }

// Run announces readiness, waits for start to be closed, dispatches the quota
// and announces completion. It returns ctx.Err() when cancelled.
func (w *Worker) Run(ctx context.Context, start <-chan struct{}, events chan<- Message) error {
	if w.requester == nil {
		return ErrNoRequester
	}
	if err := send(ctx, events, Ready{WorkerID: w.id}); err != nil {
		return err
	}

	select {
	case <-start:
	case <-ctx.Done():
		return ctx.Err()
	}
	w.state.Store(int32(StateRunning))

	for i := 0; i < w.quota; i++ {
		begin := time.Now()
		err := w.requester.Do(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.RecordLatency(w.latency, time.Since(begin))
		if err != nil {
			w.failed++
		} else {
			w.success++
		}

		last := i == w.quota-1
		if i%StatsEvery == 0 || last {
			msg := Stats{WorkerID: w.id, Success: w.success, Failed: w.failed}
			if err := send(ctx, events, msg); err != nil {
				return err
			}
		}
		if !last && w.delay > 0 {
			if err := sleep(ctx, w.delay); err != nil {
				return err
			}
		}
	}

	w.state.Store(int32(StateCompleted))
	return send(ctx, events, Complete{WorkerID: w.id, Latency: w.latency.Export()})
}

func send(ctx context.Context, events chan<- Message, msg Message) error {
	select {
	case events <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
