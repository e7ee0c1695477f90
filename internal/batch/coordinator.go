package batch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunBatch starts one sequential runner per partition and waits for all of
// them. At most MaxConcurrency runners are active at once when a cap is set.
// No result is released before every partition has finished.
func (e *Engine) RunBatch(ctx context.Context, partitions map[Key][]Event, pipelineName string, auth AuthContext) Report {
	keys := Keys(partitions)
	slots := make([][]Result, len(keys))

	var g errgroup.Group
	if e.maxConcurrency > 0 {
		g.SetLimit(e.maxConcurrency)
	}
	for i, key := range keys {
		events := partitions[key]
		g.Go(func() error {
			slots[i] = e.RunSequentially(ctx, events, pipelineName, auth)
			return nil
		})
	}
	// Runners never return errors.
	_ = g.Wait()

	return merge(slots)
}

func merge(slots [][]Result) Report {
	report := Report{
		SuccessfulInvocations: []Result{},
		FailedInvocations:     []Result{},
	}
	for _, results := range slots {
		for _, res := range results {
			if res.OK() {
				report.SuccessfulInvocations = append(report.SuccessfulInvocations, res)
			} else {
				report.FailedInvocations = append(report.FailedInvocations, res)
			}
		}
	}
	return report
}
