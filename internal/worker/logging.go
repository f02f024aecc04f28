package worker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// FailureLogger logs failed requests from every worker, at most once per interval.
// Failures that fall inside the interval are counted and reported with the next line.
type FailureLogger struct {
	logger    *slog.Logger
	level     slog.Level
	sometimes *rate.Sometimes
	pending   atomic.Int64
}

// NewFailureLogger returns a logger shared by all workers of a run.
func NewFailureLogger(logger *slog.Logger, level slog.Level, interval time.Duration) *FailureLogger {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	sometimes := &rate.Sometimes{Interval: interval}
	if interval <= 0 {
		sometimes = &rate.Sometimes{Every: 1}
	}
	return &FailureLogger{
		logger:    logger,
		level:     level,
		sometimes: sometimes,
	}
}

// LogFailure records a failure and emits a log line if the interval allows it.
func (f *FailureLogger) LogFailure(ctx context.Context, workerID int, err error) {
	if f == nil || err == nil {
		return
	}
	f.pending.Add(1)
	f.sometimes.Do(func() {
		f.logger.Log(ctx, f.level, "request failed",
			"worker_id", workerID,
			"error", err,
			"failures", f.pending.Swap(0),
		)
	})
}

type loggingRequester struct {
	inner    Requester
	workerID int
	logger   *FailureLogger
}

// WithLogging wraps a Requester to log its failures.
func WithLogging(req Requester, workerID int, logger *FailureLogger) Requester {
	if logger == nil {
		return req
	}
	return &loggingRequester{inner: req, workerID: workerID, logger: logger}
}

func (l *loggingRequester) Do(ctx context.Context) error {
	err := l.inner.Do(ctx)
	if err != nil && ctx.Err() == nil {
		l.logger.LogFailure(ctx, l.workerID, err)
	}
	return err
}
