package batch

import "context"

// RunSequentially dispatches the events of one partition in order. Dispatch
// N+1 starts only once the result of dispatch N is known, and a failure does
// not stop the remaining events.
func (e *Engine) RunSequentially(ctx context.Context, events []Event, pipelineName string, auth AuthContext) []Result {
	results := make([]Result, 0, len(events))
	for cursor := 0; cursor < len(events); cursor++ {
		results = append(results, e.Dispatch(ctx, events[cursor], pipelineName, auth))
	}
	return results
}
