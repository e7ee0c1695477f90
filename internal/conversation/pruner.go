package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner deletes conversation states idle for longer than ttl on a cron schedule.
type Pruner struct {
	store    StateStore
	ttl      time.Duration
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger
	now      func() time.Time
}

func NewPruner(log *slog.Logger, store StateStore, ttl time.Duration, schedule string) *Pruner {
	if log == nil {
		log = slog.Default()
	}
	return &Pruner{
		store:    store,
		ttl:      ttl,
		schedule: schedule,
		cron:     cron.New(),
		logger:   log.With(slog.String("component", "state_pruner")),
		now:      time.Now,
	}
}

// Start registers the prune job and starts the scheduler.
func (p *Pruner) Start() error {
	if p.ttl <= 0 {
		return fmt.Errorf("prune ttl must be positive")
	}
	if _, err := p.cron.AddFunc(p.schedule, func() {
		if _, err := p.PruneOnce(context.Background()); err != nil {
			p.logger.Error("prune failed", slog.Any("error", err))
		}
	}); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", p.schedule, err)
	}
	p.cron.Start()
	p.logger.Info("state pruner started", slog.String("schedule", p.schedule), slog.Duration("ttl", p.ttl))
	return nil
}

// Stop halts the scheduler and waits for a running job or ctx.
func (p *Pruner) Stop(ctx context.Context) error {
	done := p.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PruneOnce deletes states updated before now - ttl.
func (p *Pruner) PruneOnce(ctx context.Context) (int64, error) {
	cutoff := p.now().UTC().Add(-p.ttl)
	n, err := p.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.logger.Info("pruned stale states", slog.Int64("deleted", n), slog.Time("cutoff", cutoff))
	}
	return n, nil
}
