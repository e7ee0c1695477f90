package channelchecker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memohai/relay/internal/channel"
	"github.com/memohai/relay/internal/healthcheck"
)

const checkTypeChannelWebhook = "channel.webhook"

// DescriptorLister lists the registered channel descriptors.
type DescriptorLister interface {
	ListDescriptors() []channel.Descriptor
}

// Checker reports which channel webhooks are mounted.
type Checker struct {
	logger   *slog.Logger
	channels DescriptorLister
}

// NewChecker creates a channel health checker.
func NewChecker(log *slog.Logger, channels DescriptorLister) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		logger:   log.With(slog.String("checker", "healthcheck_channel")),
		channels: channels,
	}
}

// ListChecks returns one item per registered channel, or a warning when none is enabled.
func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	if err := ctx.Err(); err != nil {
		return []healthcheck.CheckResult{}
	}
	if c.channels == nil {
		c.logger.Warn("channel healthcheck dependency is unavailable")
		return []healthcheck.CheckResult{unavailable("channel registry is nil")}
	}
	descs := c.channels.ListDescriptors()
	if len(descs) == 0 {
		return []healthcheck.CheckResult{{
			ID:      checkTypeChannelWebhook + ".none",
			Type:    checkTypeChannelWebhook,
			Status:  healthcheck.StatusWarn,
			Summary: "No channel is enabled.",
		}}
	}
	checks := make([]healthcheck.CheckResult, 0, len(descs))
	for _, desc := range descs {
		channelType := strings.TrimSpace(desc.Type.String())
		if channelType == "" {
			channelType = "unknown"
		}
		item := healthcheck.CheckResult{
			ID:       checkTypeChannelWebhook + "." + channelType,
			Type:     checkTypeChannelWebhook,
			Subtitle: desc.DisplayName,
			Status:   healthcheck.StatusOK,
			Summary:  fmt.Sprintf("Channel %s accepts webhooks.", channelType),
			Metadata: map[string]any{
				"webhook_path": desc.WebhookPath,
				"signed":       desc.Capabilities.Signed,
			},
		}
		if strings.TrimSpace(desc.WebhookPath) == "" {
			item.Status = healthcheck.StatusError
			item.Summary = fmt.Sprintf("Channel %s has no webhook path.", channelType)
		}
		checks = append(checks, item)
	}
	return checks
}

func unavailable(detail string) healthcheck.CheckResult {
	return healthcheck.CheckResult{
		ID:      checkTypeChannelWebhook + ".service",
		Type:    checkTypeChannelWebhook,
		Status:  healthcheck.StatusWarn,
		Summary: "Channel checker service is not available.",
		Detail:  detail,
	}
}
