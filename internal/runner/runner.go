package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/torosent/barrage/internal/metrics"
	"github.com/torosent/barrage/internal/mission"
	"github.com/torosent/barrage/internal/worker"
)

// Worker is a pool member driven by the runner.
type Worker interface {
	Run(ctx context.Context, start <-chan struct{}, events chan<- worker.Message) error
}

// Factory builds the worker for an assignment.
type Factory func(a mission.Assignment) (Worker, error)

// ErrWorkersExited is returned when every worker returned before the
// completion barrier tripped.
var ErrWorkersExited = errors.New("runner: workers exited before completion")

// Runner coordinates the worker pool through the ready and completion barriers.
type Runner struct {
	mission mission.Config
	factory Factory
	opt     Options
}

func New(m mission.Config, factory Factory, opt Options) *Runner {
	opt.normalize(m.ActualWorkers)
	return &Runner{mission: m, factory: factory, opt: opt}
}

// Run spawns the workers and blocks until every worker completed, a worker
// failed or ctx is cancelled. The summary is partial and marked cancelled in
// the last case.
func (r *Runner) Run(ctx context.Context) (metrics.Summary, error) {
	assignments := r.mission.Assignments()
	workers := make([]Worker, len(assignments))
	for i, a := range assignments {
		w, err := r.factory(a)
		if err != nil {
			return metrics.Summary{}, fmt.Errorf("worker %d: %w", a.WorkerID, err)
		}
		workers[i] = w
	}

	st := newState(r.mission)
	events := make(chan worker.Message, r.opt.EventBuffer)
	start := make(chan struct{})

	group, groupCtx := errgroup.WithContext(ctx)
	for i, w := range workers {
		id := assignments[i].WorkerID
		group.Go(func() error {
			err := w.Run(groupCtx, start, events)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("worker %d: %w", id, err)
			}
			return nil
		})
	}
	done := make(chan error, 1)
	go func() { done <- group.Wait() }()

	loop := &eventLoop{runner: r, state: st, start: start}
	defer loop.stopTicker()

	for {
		select {
		case msg := <-events:
			if loop.dispatch(msg) {
				return loop.finish(events, done)
			}

		case <-loop.settle:
			loop.settle = nil
			loop.begin()
			if st.finished() {
				return loop.finish(events, done)
			}

		case now := <-loop.tick:
			loop.sample(ctx, now)

		case err := <-done:
			// Completion messages may still be buffered behind the exit.
			for {
				select {
				case msg := <-events:
					if loop.dispatch(msg) {
						return loop.finalize(), err
					}
					continue
				default:
				}
				break
			}
			loop.stopTicker()
			if err != nil {
				return loop.partial(), err
			}
			if ctx.Err() != nil {
				return loop.partial(), ctx.Err()
			}
			return loop.partial(), ErrWorkersExited

		case <-ctx.Done():
			loop.stopTicker()
			err := wait(events, done)
			r.opt.Logger.Warn("run cancelled",
				"ready", st.ready.count(),
				"completed", st.complete.count(),
			)
			if err != nil {
				return loop.partial(), err
			}
			return loop.partial(), ctx.Err()
		}
	}
}

// eventLoop holds the timers of a single Run.
type eventLoop struct {
	runner     *Runner
	state      *state
	start      chan struct{}
	settle     <-chan time.Time
	ticker     *time.Ticker
	tick       <-chan time.Time
	memory     uint64
	lastSample time.Time
}

// dispatch applies one worker message and reports whether the run is finished.
func (l *eventLoop) dispatch(msg worker.Message) bool {
	r := l.runner
	st := l.state
	switch st.handle(msg) {
	case outcomeReady:
		r.opt.Hooks.readyProgress(st.ready.count(), st.workers)
	case outcomeAllReady:
		r.opt.Hooks.readyProgress(st.ready.count(), st.workers)
		r.opt.Logger.Info("all workers ready", "workers", st.workers, "settle", r.opt.SettleDelay)
		l.armSettle()
	case outcomeComplete:
		r.opt.Logger.Debug("worker completed", "worker_id", msg.Sender())
	case outcomeAllComplete:
		return st.finished()
	}
	return false
}

func (l *eventLoop) armSettle() {
	if l.runner.opt.SettleDelay <= 0 {
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		l.settle = ch
		return
	}
	l.settle = time.After(l.runner.opt.SettleDelay)
}

// begin broadcasts the start signal. It runs at most once per Run since the
// ready barrier trips once.
func (l *eventLoop) begin() {
	r := l.runner
	l.state.agg.Start(time.Now())
	l.state.markRunning()
	close(l.start)
	l.ticker = time.NewTicker(r.opt.TickInterval)
	l.tick = l.ticker.C
	r.opt.Logger.Info("dispatch started", "workers", l.state.workers)
	r.opt.Hooks.start(l.state.workers)
}

func (l *eventLoop) stopTicker() {
	if l.ticker != nil {
		l.ticker.Stop()
		l.ticker = nil
		l.tick = nil
	}
}

func (l *eventLoop) sample(ctx context.Context, now time.Time) {
	r := l.runner
	agg := l.state.agg.Tick(now, l.state.complete.count())
	if r.opt.MemorySampler != nil && now.Sub(l.lastSample) >= r.opt.MemoryInterval {
		l.lastSample = now
		if mem, err := r.opt.MemorySampler(ctx); err == nil {
			l.memory = mem
		}
	}
	agg.MemoryBytes = l.memory
	r.opt.Hooks.liveStats(agg)
}

// finish finalizes a completed run and waits for the workers to return.
func (l *eventLoop) finish(events <-chan worker.Message, done <-chan error) (metrics.Summary, error) {
	summary := l.finalize()
	return summary, wait(events, done)
}

// wait discards late messages until every worker has returned.
func wait(events <-chan worker.Message, done <-chan error) error {
	for {
		select {
		case <-events:
		case err := <-done:
			return err
		}
	}
}

func (l *eventLoop) finalize() metrics.Summary {
	l.stopTicker()
	summary := l.summary()
	l.runner.opt.Logger.Info("mission complete",
		"success", summary.Success,
		"failed", summary.Failed,
		"average_rps", summary.AverageRPS,
		"peak_rps", summary.PeakRPS,
	)
	l.runner.opt.Hooks.missionComplete(summary)
	return summary
}

func (l *eventLoop) partial() metrics.Summary {
	s := l.summary()
	s.Cancelled = true
	return s
}

func (l *eventLoop) summary() metrics.Summary {
	m := l.runner.mission
	s := l.state.agg.Summary(time.Now())
	s.RunID = m.RunID
	s.Target = m.TargetURL
	s.Dispatched = m.Dispatched()
	s.Undelivered = m.Undelivered()
	return s
}
