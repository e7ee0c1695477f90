package batch

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Service runs batches through the Engine against the default pipeline and
// records every report in History.
type Service struct {
	engine   *Engine
	history  *History
	pipeline string
	logger   *slog.Logger
}

// NewService creates a Service. pipelineName is used when a caller does not
// name a pipeline explicitly.
func NewService(log *slog.Logger, engine *Engine, history *History, pipelineName string) *Service {
	if log == nil {
		log = slog.Default()
	}
	if history == nil {
		history = NewHistory(0)
	}
	return &Service{
		engine:   engine,
		history:  history,
		pipeline: strings.TrimSpace(pipelineName),
		logger:   log.With(slog.String("service", "batch")),
	}
}

// History returns the report history.
func (s *Service) History() *History {
	return s.history
}

// Relay dispatches b to the default pipeline.
func (s *Service) Relay(ctx context.Context, b Batch, auth AuthContext) Record {
	return s.RelayTo(ctx, s.pipeline, b, auth)
}

// RelayTo dispatches b to pipelineName, falling back to the default pipeline
// when the name is blank.
func (s *Service) RelayTo(ctx context.Context, pipelineName string, b Batch, auth AuthContext) Record {
	pipelineName = strings.TrimSpace(pipelineName)
	if pipelineName == "" {
		pipelineName = s.pipeline
	}
	received := time.Now().UTC()
	events := b.Events()
	partitions := Partition(events)
	report := s.engine.RunBatch(ctx, partitions, pipelineName, auth)
	rec := s.history.Add(Record{
		Provider:   auth.Provider(),
		Pipeline:   pipelineName,
		Events:     len(events),
		Partitions: len(partitions),
		ReceivedAt: received,
		Duration:   time.Since(received).String(),
		Report:     report,
	})
	if len(report.FailedInvocations) > 0 {
		s.logger.Warn("batch completed with failures",
			slog.String("batch_id", rec.ID),
			slog.String("provider", rec.Provider),
			slog.Int("succeeded", len(report.SuccessfulInvocations)),
			slog.Int("failed", len(report.FailedInvocations)),
		)
	} else {
		s.logger.Info("batch completed",
			slog.String("batch_id", rec.ID),
			slog.String("provider", rec.Provider),
			slog.Int("events", rec.Events),
			slog.Int("partitions", rec.Partitions),
		)
	}
	return rec
}
