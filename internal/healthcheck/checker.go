package healthcheck

import (
	"context"
	"sort"
)

const (
	// StatusOK indicates check passed.
	StatusOK = "ok"
	// StatusWarn indicates check completed with warning.
	StatusWarn = "warn"
	// StatusError indicates check failed.
	StatusError = "error"
	// StatusUnknown indicates check result is not yet known.
	StatusUnknown = "unknown"
)

// CheckResult is one runtime check item produced by a checker.
type CheckResult struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Subtitle string         `json:"subtitle,omitempty"`
	Status   string         `json:"status"`
	Summary  string         `json:"summary"`
	Detail   string         `json:"detail,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Checker evaluates one or more runtime checks of the relay.
type Checker interface {
	ListChecks(ctx context.Context) []CheckResult
}

// Summary is the combined outcome of all checkers.
type Summary struct {
	Status string        `json:"status"`
	Checks []CheckResult `json:"checks"`
}

var statusRank = map[string]int{
	StatusOK:      0,
	StatusUnknown: 1,
	StatusWarn:    2,
	StatusError:   3,
}

// Run evaluates every checker and reports the worst status seen.
func Run(ctx context.Context, checkers ...Checker) Summary {
	summary := Summary{Status: StatusOK, Checks: []CheckResult{}}
	for _, checker := range checkers {
		if checker == nil {
			continue
		}
		summary.Checks = append(summary.Checks, checker.ListChecks(ctx)...)
	}
	sort.SliceStable(summary.Checks, func(i, j int) bool {
		return summary.Checks[i].ID < summary.Checks[j].ID
	})
	for _, item := range summary.Checks {
		if statusRank[item.Status] > statusRank[summary.Status] {
			summary.Status = item.Status
		}
	}
	return summary
}
