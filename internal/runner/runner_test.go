package runner_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/torosent/barrage/internal/capacity"
	"github.com/torosent/barrage/internal/metrics"
	"github.com/torosent/barrage/internal/mission"
	"github.com/torosent/barrage/internal/runner"
	"github.com/torosent/barrage/internal/worker"
)

var testProfile = capacity.Profile{OptimalWorkers: 8, MaxSafeWorkers: 100}

func newMission(t *testing.T, total, workers int, delay time.Duration) mission.Config {
	t.Helper()
	cfg, err := mission.New("http://example.test", total, delay, workers, testProfile)
	if err != nil {
		t.Fatalf("mission.New: %v", err)
	}
	return cfg
}

// hookRecorder captures hook invocations; hooks run on the runner goroutine
// but the test reads them from its own.
type hookRecorder struct {
	mu        sync.Mutex
	ready     [][2]int
	starts    int
	live      []metrics.Aggregate
	completes []metrics.Summary
}

func (h *hookRecorder) hooks() runner.Hooks {
	return runner.Hooks{
		OnReadyProgress: func(ready, total int) {
			h.mu.Lock()
			h.ready = append(h.ready, [2]int{ready, total})
			h.mu.Unlock()
		},
		OnStart: func(int) {
			h.mu.Lock()
			h.starts++
			h.mu.Unlock()
		},
		OnLiveStats: func(a metrics.Aggregate) {
			h.mu.Lock()
			h.live = append(h.live, a)
			h.mu.Unlock()
		},
		OnMissionComplete: func(s metrics.Summary) {
			h.mu.Lock()
			h.completes = append(h.completes, s)
			h.mu.Unlock()
		},
	}
}

func (h *hookRecorder) startCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.starts
}

func workerFactory(req worker.Requester) runner.Factory {
	return func(a mission.Assignment) (runner.Worker, error) {
		return worker.New(a, req), nil
	}
}

func TestRunnerCompletesAllWorkers(t *testing.T) {
	var calls atomic.Int64
	req := worker.RequesterFunc(func(ctx context.Context) error {
		if calls.Add(1)%5 == 0 {
			return errors.New("boom")
		}
		return nil
	})

	rec := &hookRecorder{}
	cfg := newMission(t, 100, 4, 0)
	r := runner.New(cfg, workerFactory(req), runner.Options{
		TickInterval: 5 * time.Millisecond,
		Hooks:        rec.hooks(),
	})

	summary, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if calls.Load() != 100 {
		t.Fatalf("requests = %d, want 100", calls.Load())
	}
	if summary.Completed != 100 || summary.Success != 80 || summary.Failed != 20 {
		t.Fatalf("summary counts = %d/%d/%d", summary.Completed, summary.Success, summary.Failed)
	}
	if summary.Dispatched != 100 || summary.Undelivered != 0 {
		t.Fatalf("dispatched=%d undelivered=%d", summary.Dispatched, summary.Undelivered)
	}
	if summary.RunID != cfg.RunID || summary.Target != cfg.TargetURL {
		t.Fatalf("summary identity = %q %q", summary.RunID, summary.Target)
	}
	if summary.Cancelled {
		t.Fatal("summary marked cancelled")
	}
	if summary.Latency.Max <= 0 {
		t.Fatalf("latency not merged: %+v", summary.Latency)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.completes) != 1 {
		t.Fatalf("OnMissionComplete called %d times, want 1", len(rec.completes))
	}
	if rec.starts != 1 {
		t.Fatalf("OnStart called %d times, want 1", rec.starts)
	}
	if len(rec.ready) != 4 || rec.ready[3] != [2]int{4, 4} {
		t.Fatalf("ready progress = %v", rec.ready)
	}
}

func TestRunnerLeavesRemainderUndelivered(t *testing.T) {
	var calls atomic.Int64
	req := worker.RequesterFunc(func(context.Context) error {
		calls.Add(1)
		return nil
	})

	r := runner.New(newMission(t, 10, 3, 0), workerFactory(req), runner.Options{})
	summary, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if calls.Load() != 9 {
		t.Fatalf("requests = %d, want 9", calls.Load())
	}
	if summary.Dispatched != 9 || summary.Undelivered != 1 || summary.TotalRequests != 10 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestRunnerZeroQuotaCompletes(t *testing.T) {
	var calls atomic.Int64
	req := worker.RequesterFunc(func(context.Context) error {
		calls.Add(1)
		return nil
	})

	rec := &hookRecorder{}
	r := runner.New(newMission(t, 2, 4, 0), workerFactory(req), runner.Options{Hooks: rec.hooks()})
	summary, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if calls.Load() != 0 || summary.Completed != 0 || summary.Undelivered != 2 {
		t.Fatalf("calls=%d summary=%+v", calls.Load(), summary)
	}
	if len(rec.completes) != 1 {
		t.Fatalf("OnMissionComplete called %d times, want 1", len(rec.completes))
	}
}

// scriptedWorker sends a fixed message sequence, optionally repeating Ready
// and Complete.
type scriptedWorker struct {
	id        int
	gate      <-chan struct{}
	readies   int
	completes int
	success   int64
	err       error
}

func (w *scriptedWorker) Run(ctx context.Context, start <-chan struct{}, events chan<- worker.Message) error {
	if w.gate != nil {
		select {
		case <-w.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for i := 0; i < max(1, w.readies); i++ {
		if err := emit(ctx, events, worker.Ready{WorkerID: w.id}); err != nil {
			return err
		}
	}
	select {
	case <-start:
	case <-ctx.Done():
		return ctx.Err()
	}
	if w.err != nil {
		return w.err
	}
	if err := emit(ctx, events, worker.Stats{WorkerID: w.id, Success: w.success}); err != nil {
		return err
	}
	for i := 0; i < max(1, w.completes); i++ {
		if err := emit(ctx, events, worker.Complete{WorkerID: w.id}); err != nil {
			return err
		}
	}
	return nil
}

func emit(ctx context.Context, events chan<- worker.Message, msg worker.Message) error {
	select {
	case events <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestRunnerIgnoresDuplicateMessages(t *testing.T) {
	rec := &hookRecorder{}
	factory := func(a mission.Assignment) (runner.Worker, error) {
		return &scriptedWorker{id: a.WorkerID, readies: 3, completes: 3, success: int64(a.RequestQuota)}, nil
	}

	r := runner.New(newMission(t, 20, 2, 0), factory, runner.Options{Hooks: rec.hooks()})
	summary, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Success != 20 {
		t.Fatalf("success = %d, want 20", summary.Success)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.ready) != 2 {
		t.Fatalf("ready progress = %v, want two distinct arrivals", rec.ready)
	}
	if rec.starts != 1 || len(rec.completes) != 1 {
		t.Fatalf("starts=%d completes=%d", rec.starts, len(rec.completes))
	}
}

func TestRunnerStartsOnlyAfterAllReady(t *testing.T) {
	gate := make(chan struct{})
	rec := &hookRecorder{}
	factory := func(a mission.Assignment) (runner.Worker, error) {
		w := &scriptedWorker{id: a.WorkerID, success: int64(a.RequestQuota)}
		if a.WorkerID == 3 {
			w.gate = gate
		}
		return w, nil
	}

	r := runner.New(newMission(t, 30, 3, 0), factory, runner.Options{Hooks: rec.hooks()})
	type result struct {
		summary metrics.Summary
		err     error
	}
	done := make(chan result, 1)
	go func() {
		s, err := r.Run(context.Background())
		done <- result{s, err}
	}()

	time.Sleep(50 * time.Millisecond)
	if rec.startCount() != 0 {
		t.Fatal("start broadcast before every worker was ready")
	}
	close(gate)

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("Run() error = %v", res.err)
		}
		if res.summary.Success != 30 {
			t.Fatalf("success = %d, want 30", res.summary.Success)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}
	if rec.startCount() != 1 {
		t.Fatalf("OnStart called %d times, want 1", rec.startCount())
	}
}

func TestRunnerWaitsSettleDelay(t *testing.T) {
	var allReady, started time.Time
	hooks := runner.Hooks{
		OnReadyProgress: func(ready, total int) {
			if ready == total {
				allReady = time.Now()
			}
		},
		OnStart: func(int) { started = time.Now() },
	}
	factory := func(a mission.Assignment) (runner.Worker, error) {
		return &scriptedWorker{id: a.WorkerID}, nil
	}

	r := runner.New(newMission(t, 4, 2, 0), factory, runner.Options{
		SettleDelay: 60 * time.Millisecond,
		Hooks:       hooks,
	})
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if gap := started.Sub(allReady); gap < 60*time.Millisecond {
		t.Fatalf("start followed readiness after %v, want >= 60ms", gap)
	}
}

func TestRunnerPublishesLiveStats(t *testing.T) {
	req := worker.RequesterFunc(func(context.Context) error { return nil })
	rec := &hookRecorder{}
	var samples atomic.Int64
	sampler := func(context.Context) (uint64, error) {
		samples.Add(1)
		return 42 << 20, nil
	}

	r := runner.New(newMission(t, 40, 2, 2*time.Millisecond), workerFactory(req), runner.Options{
		TickInterval:  5 * time.Millisecond,
		MemorySampler: sampler,
		Hooks:         rec.hooks(),
	})
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.live) == 0 {
		t.Fatal("no live stats published")
	}
	var prev int64
	for i, a := range rec.live {
		if a.Completed < prev {
			t.Fatalf("tick %d: completed went from %d to %d", i, prev, a.Completed)
		}
		prev = a.Completed
		if a.TotalRequests != 40 || a.Workers != 2 {
			t.Fatalf("tick %d: %+v", i, a)
		}
		if a.MemoryBytes != 42<<20 {
			t.Fatalf("tick %d: memory = %d", i, a.MemoryBytes)
		}
	}
	if samples.Load() != 1 {
		t.Fatalf("memory sampled %d times, want 1 within the sampling interval", samples.Load())
	}
}

func TestRunnerCancellation(t *testing.T) {
	req := worker.RequesterFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	rec := &hookRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	hooks := rec.hooks()
	hooks.OnStart = func(int) {
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
	}

	r := runner.New(newMission(t, 100, 4, 0), workerFactory(req), runner.Options{Hooks: hooks})
	summary, err := r.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if !summary.Cancelled {
		t.Fatal("summary not marked cancelled")
	}
	if summary.Completed != 0 {
		t.Fatalf("completed = %d, want 0", summary.Completed)
	}
	if len(rec.completes) != 0 {
		t.Fatal("OnMissionComplete called for a cancelled run")
	}
}

func TestRunnerWorkerFailure(t *testing.T) {
	boom := errors.New("boom")
	factory := func(a mission.Assignment) (runner.Worker, error) {
		w := &scriptedWorker{id: a.WorkerID, success: 1}
		if a.WorkerID == 2 {
			w.err = boom
		}
		return w, nil
	}

	r := runner.New(newMission(t, 30, 3, 0), factory, runner.Options{})
	summary, err := r.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want boom", err)
	}
	if !summary.Cancelled {
		t.Fatal("failed run not marked cancelled")
	}
}

func TestRunnerFactoryError(t *testing.T) {
	boom := errors.New("no client")
	factory := func(a mission.Assignment) (runner.Worker, error) {
		if a.WorkerID == 2 {
			return nil, boom
		}
		return &scriptedWorker{id: a.WorkerID}, nil
	}

	r := runner.New(newMission(t, 30, 3, 0), factory, runner.Options{})
	if _, err := r.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want factory error", err)
	}
}
