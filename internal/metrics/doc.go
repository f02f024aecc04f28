// Package metrics turns scattered per-worker counters into a single live view.
//
// Workers report cumulative [Snapshot] values. The [Aggregator] keeps only the
// latest snapshot per worker, so re-delivering a snapshot never double counts:
//
//	agg := metrics.NewAggregator(totalRequests, workers)
//	agg.Start(time.Now())
//
//	agg.Merge(metrics.Snapshot{WorkerID: 1, Success: 40, Failed: 2})
//	live := agg.Tick(time.Now(), completedWorkers)
//
// # Live statistics
//
// [Aggregate] carries totals, the current and peak requests per second, the
// estimated time remaining and the number of workers still running. Rates are
// whole requests per second computed from whole elapsed seconds.
//
// # Latency
//
// Each worker records request latency into its own HDR histogram created with
// [NewLatencyHistogram]. When a worker completes, its exported histogram is
// folded into the run with [Aggregator.MergeLatency] and reported in the final
// [Summary].
//
// # Thread Safety
//
// An Aggregator belongs to the goroutine that drives the run. Workers never
// touch it directly; they send snapshots over a channel instead.
package metrics
