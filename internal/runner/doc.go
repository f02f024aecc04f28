// Package runner coordinates a fixed pool of workers through a two-phase run.
//
// Every worker announces readiness once it is initialized. When all workers
// are ready the runner waits for the settle delay, then closes the shared
// start channel exactly once. While requests are in flight the runner merges
// the workers' cumulative stats and publishes a live [metrics.Aggregate] on
// every tick. When every worker reported completion the ticker stops and a
// single [metrics.Summary] is produced.
//
// # Basic Usage
//
//	cfg, _ := mission.New(target, 10000, 0, 8, profile)
//	r := runner.New(cfg, func(a mission.Assignment) (runner.Worker, error) {
//		return worker.New(a, requester), nil
//	}, runner.Options{
//		SettleDelay: 3 * time.Second,
//		Hooks: runner.Hooks{
//			OnLiveStats: reporter.Update,
//		},
//	})
//	summary, err := r.Run(ctx)
//
// # Message Handling
//
// Messages are deduplicated per worker id. A second Ready or Complete from
// the same worker is ignored, stats snapshots replace the previous snapshot
// for their worker, and messages from unknown ids are dropped.
//
// # Cancellation
//
// Cancelling ctx stops all workers. Run then returns a partial summary with
// Cancelled set and the context error; OnMissionComplete is not called.
package runner
