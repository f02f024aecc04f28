package runner

import (
	"github.com/torosent/barrage/internal/metrics"
	"github.com/torosent/barrage/internal/mission"
	"github.com/torosent/barrage/internal/worker"
)

// Lifecycle is a worker's state as observed by the runner.
type Lifecycle int

const (
	LifecycleInitializing Lifecycle = iota
	LifecycleReady
	LifecycleRunning
	LifecycleCompleted
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleInitializing:
		return "initializing"
	case LifecycleReady:
		return "ready"
	case LifecycleRunning:
		return "running"
	case LifecycleCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// barrier counts distinct ids and trips once when all of them arrived.
type barrier struct {
	want    int
	seen    map[int]struct{}
	tripped bool
}

func newBarrier(want int) *barrier {
	return &barrier{want: want, seen: make(map[int]struct{}, want)}
}

// arrive records id. added is false for a duplicate; tripped is true only for
// the arrival that completed the set.
func (b *barrier) arrive(id int) (added, tripped bool) {
	if _, ok := b.seen[id]; ok {
		return false, false
	}
	b.seen[id] = struct{}{}
	if !b.tripped && len(b.seen) >= b.want {
		b.tripped = true
		return true, true
	}
	return true, false
}

func (b *barrier) count() int { return len(b.seen) }

func (b *barrier) done() bool { return b.tripped }

type outcome int

const (
	outcomeNone outcome = iota
	outcomeReady
	outcomeAllReady
	outcomeComplete
	outcomeAllComplete
)

// state is owned by the runner goroutine.
type state struct {
	workers   int
	lifecycle map[int]Lifecycle
	ready     *barrier
	complete  *barrier
	agg       *metrics.Aggregator
	started   bool
}

func newState(m mission.Config) *state {
	s := &state{
		workers:   m.ActualWorkers,
		lifecycle: make(map[int]Lifecycle, m.ActualWorkers),
		ready:     newBarrier(m.ActualWorkers),
		complete:  newBarrier(m.ActualWorkers),
		agg:       metrics.NewAggregator(m.TotalRequests, m.ActualWorkers),
	}
	for _, a := range m.Assignments() {
		s.lifecycle[a.WorkerID] = LifecycleInitializing
	}
	return s
}

// advance moves id forward to next. Unknown ids and backward moves are refused.
func (s *state) advance(id int, next Lifecycle) bool {
	cur, ok := s.lifecycle[id]
	if !ok || next <= cur {
		return false
	}
	s.lifecycle[id] = next
	return true
}

// markRunning moves every ready worker to running.
func (s *state) markRunning() {
	for id, l := range s.lifecycle {
		if l < LifecycleRunning {
			s.lifecycle[id] = LifecycleRunning
		}
	}
	s.started = true
}

// handle applies msg and reports what changed.
func (s *state) handle(msg worker.Message) outcome {
	id := msg.Sender()
	if _, ok := s.lifecycle[id]; !ok {
		return outcomeNone
	}

	switch m := msg.(type) {
	case worker.Ready:
		if s.started {
			return outcomeNone
		}
		added, tripped := s.ready.arrive(id)
		if !added {
			return outcomeNone
		}
		s.advance(id, LifecycleReady)
		if tripped {
			return outcomeAllReady
		}
		return outcomeReady

	case worker.Stats:
		if s.lifecycle[id] == LifecycleCompleted {
			return outcomeNone
		}
		s.agg.Merge(m.Snapshot())
		return outcomeNone

	case worker.Complete:
		added, tripped := s.complete.arrive(id)
		if !added {
			return outcomeNone
		}
		s.lifecycle[id] = LifecycleCompleted
		s.agg.MergeLatency(m.Latency)
		if tripped {
			return outcomeAllComplete
		}
		return outcomeComplete
	}
	return outcomeNone
}

// finished reports whether the run can be finalized.
func (s *state) finished() bool {
	return s.started && s.complete.done()
}
