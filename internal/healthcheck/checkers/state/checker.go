package statechecker

import (
	"context"
	"log/slog"
	"time"

	"github.com/memohai/relay/internal/healthcheck"
)

const (
	checkTypeStateStore = "state.store"
	defaultPingTimeout  = 3 * time.Second
)

// Pinger is implemented by state stores backed by a remote database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker verifies the conversation state store is reachable.
type Checker struct {
	logger  *slog.Logger
	store   any
	timeout time.Duration
}

// NewChecker creates a state store checker. Stores that do not implement
// Pinger are reported as in-process and always healthy.
func NewChecker(log *slog.Logger, store any) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		logger:  log.With(slog.String("checker", "healthcheck_state")),
		store:   store,
		timeout: defaultPingTimeout,
	}
}

func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	item := healthcheck.CheckResult{
		ID:     checkTypeStateStore,
		Type:   checkTypeStateStore,
		Status: healthcheck.StatusOK,
	}
	if c.store == nil {
		item.Status = healthcheck.StatusError
		item.Summary = "Conversation state store is not configured."
		return []healthcheck.CheckResult{item}
	}
	pinger, ok := c.store.(Pinger)
	if !ok {
		item.Subtitle = "memory"
		item.Summary = "Conversation state is kept in process memory."
		return []healthcheck.CheckResult{item}
	}

	item.Subtitle = "postgres"
	pingCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	started := time.Now()
	if err := pinger.Ping(pingCtx); err != nil {
		c.logger.Warn("state store ping failed", slog.Any("error", err))
		item.Status = healthcheck.StatusError
		item.Summary = "Conversation state store is unreachable."
		item.Detail = err.Error()
		return []healthcheck.CheckResult{item}
	}
	item.Summary = "Conversation state store is reachable."
	item.Metadata = map[string]any{"latency_ms": time.Since(started).Milliseconds()}
	return []healthcheck.CheckResult{item}
}
