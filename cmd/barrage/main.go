package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/torosent/barrage/internal/capacity"
	"github.com/torosent/barrage/internal/config"
	"github.com/torosent/barrage/internal/dashboard"
	"github.com/torosent/barrage/internal/httpclient"
	"github.com/torosent/barrage/internal/logging"
	"github.com/torosent/barrage/internal/metrics"
	"github.com/torosent/barrage/internal/mission"
	"github.com/torosent/barrage/internal/output"
	"github.com/torosent/barrage/internal/runner"
	"github.com/torosent/barrage/internal/threshold"
	"github.com/torosent/barrage/internal/tracing"
	"github.com/torosent/barrage/internal/worker"
)

const (
	progressInterval    = 100 * time.Millisecond
	failureLogInterval  = time.Second
	tracingFlushTimeout = 5 * time.Second
)

// errThresholdsFailed is returned when at least one threshold did not pass.
var errThresholdsFailed = errors.New("thresholds failed")

// liveView is a push-fed display of a running mission.
type liveView interface {
	Start()
	Stop()
	ReadyProgress(ready, total int)
	Update(agg metrics.Aggregate)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := config.NewLoaderWithOutput(stdout).Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		if errors.Is(err, config.ErrUsage) {
			config.PrintUsage(stderr)
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		config.PrintUsage(stderr)
		return err
	}

	base, err := logging.New(stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	profile, err := capacity.Detect(ctx)
	if err != nil {
		return fmt.Errorf("detect capacity: %w", err)
	}
	m, err := mission.New(cfg.TargetURL, cfg.Total, cfg.Delay, cfg.Workers, profile)
	if err != nil {
		return err
	}
	logger := logging.ForRun(base, m.RunID)
	logAdvisories(logger, m, profile)

	text := cfg.Output == config.OutputText
	if text && !cfg.Quiet {
		output.PrintProfile(stdout, profile)
		output.PrintMission(stdout, m)
	}

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer shutdownTracing(tp, logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	view, err := newLiveView(cfg, m, stdout, cancel)
	if err != nil {
		return err
	}

	failureLevel := slog.LevelDebug
	if cfg.LogErrors {
		failureLevel = slog.LevelWarn
	}
	failures := worker.NewFailureLogger(logger, failureLevel, failureLogInterval)

	opts := runner.Options{
		SettleDelay:    cfg.SettleDelay,
		TickInterval:   cfg.RefreshInterval,
		MemoryInterval: runner.DefaultMemoryInterval,
		MemorySampler:  capacity.ProcessMemory,
		Hooks:          hooksFor(view),
		Logger:         logger,
	}

	if view != nil {
		view.Start()
	}
	summary, runErr := runner.New(m, newFactory(cfg, tp, failures), opts).Run(runCtx)
	if view != nil {
		view.Stop()
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	if err := printReport(stdout, cfg.Output, summary); err != nil {
		return err
	}
	if runErr != nil {
		return nil
	}
	return checkThresholds(stdout, logger, cfg, summary)
}

func logAdvisories(logger *slog.Logger, m mission.Config, p capacity.Profile) {
	if m.Clamped {
		logger.Warn("requested workers exceed safe maximum, clamping",
			"requested", m.RequestedWorkers,
			"workers", m.ActualWorkers,
			"max_safe_workers", p.MaxSafeWorkers,
		)
	}
	if m.Floored {
		logger.Warn("host reports no spare capacity, running a single worker",
			"free_memory", p.FreeMemory,
		)
	}
	if m.RequestQuota() == 0 {
		logger.Warn("total requests is less than worker count, no requests will be sent",
			"total", m.TotalRequests,
			"workers", m.ActualWorkers,
		)
	} else if u := m.Undelivered(); u > 0 {
		logger.Warn("total requests not divisible by workers, remainder will not be sent",
			"undelivered", u,
			"dispatched", m.Dispatched(),
		)
	}
}

func newLiveView(cfg *config.Config, m mission.Config, stdout io.Writer, shutdown func()) (liveView, error) {
	switch {
	case cfg.Dashboard:
		d, err := dashboard.New(m, shutdown)
		if err != nil {
			return nil, err
		}
		return d, nil
	case cfg.Output == config.OutputText && !cfg.Quiet:
		return output.NewProgressReporter(progressInterval, stdout), nil
	default:
		return nil, nil
	}
}

func hooksFor(view liveView) runner.Hooks {
	if view == nil {
		return runner.Hooks{}
	}
	return runner.Hooks{
		OnReadyProgress: view.ReadyProgress,
		OnLiveStats:     view.Update,
	}
}

// newFactory builds one HTTP client and requester per worker so that
// connection pools are never shared.
func newFactory(cfg *config.Config, tp *tracing.Provider, failures *worker.FailureLogger) runner.Factory {
	clientOpts := httpclient.OptionsFromConfig(cfg)
	tracer := tp.Tracer()
	propagate := tp.ShouldPropagate()
	return func(a mission.Assignment) (runner.Worker, error) {
		builder, err := httpclient.NewRequestBuilder(a.TargetURL, a.WorkerID)
		if err != nil {
			return nil, err
		}
		requester := httpclient.NewRequester(
			httpclient.NewClient(clientOpts),
			builder,
			httpclient.WithTracer(tracer, propagate),
		)
		return worker.New(a, worker.WithLogging(requester, a.WorkerID, failures)), nil
	}
}

func printReport(w io.Writer, format config.OutputFormat, s metrics.Summary) error {
	switch format {
	case config.OutputJSON:
		return output.PrintJSONReport(w, s)
	case config.OutputYAML:
		return output.PrintYAMLReport(w, s)
	default:
		output.PrintReport(w, s)
		return nil
	}
}

func checkThresholds(w io.Writer, logger *slog.Logger, cfg *config.Config, s metrics.Summary) error {
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}
	results := threshold.NewEvaluator(thresholds).Evaluate(s)

	var failed int
	if cfg.Output == config.OutputText {
		failed = output.PrintThresholds(w, results)
	} else {
		for _, r := range results {
			if !r.Pass {
				failed++
				logger.Warn("threshold failed", "threshold", r.Threshold.Raw, "actual", r.Actual)
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errThresholdsFailed, failed, len(results))
	}
	return nil
}

func shutdownTracing(tp *tracing.Provider, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), tracingFlushTimeout)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		logger.Warn("tracing shutdown failed", "error", err)
	}
}
