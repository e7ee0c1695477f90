package dispatchchecker

import (
	"context"
	"fmt"

	"github.com/memohai/relay/internal/batch"
	"github.com/memohai/relay/internal/healthcheck"
)

const checkTypeDispatch = "batch.dispatch"

// RecordLister lists recent batch records, newest first.
type RecordLister interface {
	List() []batch.Record
}

// Checker summarizes failed invocations across the recent batch history.
type Checker struct {
	history RecordLister
	// warnRatio is the failed/total ratio at which the check turns to warn.
	warnRatio float64
}

func NewChecker(history RecordLister, warnRatio float64) *Checker {
	if warnRatio <= 0 || warnRatio > 1 {
		warnRatio = 0.5
	}
	return &Checker{history: history, warnRatio: warnRatio}
}

func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	item := healthcheck.CheckResult{
		ID:     checkTypeDispatch,
		Type:   checkTypeDispatch,
		Status: healthcheck.StatusUnknown,
	}
	if c.history == nil {
		item.Summary = "Batch history is not available."
		return []healthcheck.CheckResult{item}
	}
	records := c.history.List()
	var succeeded, failed int
	for _, rec := range records {
		succeeded += len(rec.Report.SuccessfulInvocations)
		failed += len(rec.Report.FailedInvocations)
	}
	item.Metadata = map[string]any{
		"batches":   len(records),
		"succeeded": succeeded,
		"failed":    failed,
	}
	total := succeeded + failed
	if total == 0 {
		item.Summary = "No events dispatched yet."
		return []healthcheck.CheckResult{item}
	}
	item.Status = healthcheck.StatusOK
	item.Summary = fmt.Sprintf("%d of %d recent invocations failed.", failed, total)
	if float64(failed)/float64(total) >= c.warnRatio {
		item.Status = healthcheck.StatusWarn
		if len(records) > 0 && len(records[0].Report.FailedInvocations) > 0 {
			item.Detail = records[0].Report.FailedInvocations[0].Error
		}
	}
	return []healthcheck.CheckResult{item}
}
