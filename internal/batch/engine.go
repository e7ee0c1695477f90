package batch

import (
	"context"
	"log/slog"
	"time"

	"github.com/memohai/relay/internal/pipeline"
)

// Engine partitions batches and dispatches their events through an Invoker.
type Engine struct {
	invoker        pipeline.Invoker
	logger         *slog.Logger
	maxConcurrency int
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxConcurrency caps the number of partitions dispatched at once.
// Zero or a negative value leaves fan-out unbounded.
func WithMaxConcurrency(n int) Option {
	return func(e *Engine) {
		if n < 0 {
			n = 0
		}
		e.maxConcurrency = n
	}
}

// NewEngine creates an Engine dispatching through invoker.
func NewEngine(log *slog.Logger, invoker pipeline.Invoker, opts ...Option) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		invoker: invoker,
		logger:  log.With(slog.String("component", "batch")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxConcurrency returns the partition concurrency cap, 0 when unbounded.
func (e *Engine) MaxConcurrency() int {
	return e.maxConcurrency
}

// Process flattens, partitions and dispatches a batch.
func (e *Engine) Process(ctx context.Context, b Batch, pipelineName string, auth AuthContext) Report {
	started := time.Now()
	partitions := Partition(b.Events())
	e.logger.Info("dispatch batch",
		slog.String("pipeline", pipelineName),
		slog.String("provider", auth.Provider()),
		slog.Int("entries", len(b.Entries)),
		slog.Int("events", b.Len()),
		slog.Int("partitions", len(partitions)),
	)
	report := e.RunBatch(ctx, partitions, pipelineName, auth)
	e.logger.Info("batch dispatched",
		slog.String("pipeline", pipelineName),
		slog.Int("succeeded", len(report.SuccessfulInvocations)),
		slog.Int("failed", len(report.FailedInvocations)),
		slog.Duration("latency", time.Since(started)),
	)
	return report
}
