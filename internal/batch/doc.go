// Package batch dispatches the events of one webhook delivery to a per-event
// pipeline.
//
// A delivery may coalesce the messages of many conversations. Events are
// partitioned by conversation key (sender and recipient). Each partition is
// driven by a single sequential runner so that turns of one conversation are
// dispatched strictly in timestamp order, while different partitions run
// concurrently. The coordinator joins every runner before returning, and every
// event yields exactly one Result: dispatch failures are recorded in the
// Report instead of being returned as errors.
//
//	engine := batch.NewEngine(logger, invoker, batch.WithMaxConcurrency(32))
//	report := engine.Process(ctx, b, "conversation", auth)
package batch
