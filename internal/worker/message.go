package worker

import (
	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/torosent/barrage/internal/metrics"
)

// Message is a notification sent from a worker to the orchestrator.
// The set of messages is closed: Ready, Stats and Complete.
type Message interface {
	Sender() int
	message()
}

// Ready reports that a worker has finished initialization.
type Ready struct {
	WorkerID int
}

// Stats carries a worker's cumulative counts.
type Stats struct {
	WorkerID int
	Success  int64
	Failed   int64
}

// Complete reports that a worker exhausted its quota. Latency is the worker's
// exported histogram and may be nil.
type Complete struct {
	WorkerID int
	Latency  *hdrhistogram.Snapshot
}

func (m Ready) Sender() int    { return m.WorkerID }
func (m Stats) Sender() int    { return m.WorkerID }
func (m Complete) Sender() int { return m.WorkerID }

func (Ready) message()    {}
func (Stats) message()    {}
func (Complete) message() {}

// Snapshot converts the message into an aggregator snapshot.
func (m Stats) Snapshot() metrics.Snapshot {
	return metrics.Snapshot{WorkerID: m.WorkerID, Success: m.Success, Failed: m.Failed}
}
