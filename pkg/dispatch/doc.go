// Package dispatch sends planned translation batches to a provider in
// parallel.
//
// One goroutine is started per batch; each acquires a permit from a weighted
// semaphore before calling the provider, so no more than MaxConcurrency calls
// are outstanding at any time, across every language pair and every run
// sharing the Dispatcher. Batches are independent and complete in any order;
// outcomes are returned aligned with the input batches.
//
// Example usage:
//
//	d, err := dispatch.New(translator, dispatch.DefaultConfig())
//	outcomes, err := d.Run(ctx, batches)
//
// Failure handling:
//   - default: the first failed batch fails the run; in-flight siblings are
//     not cancelled, batches still waiting for a permit are skipped
//   - AllowPartial: every batch is attempted and failures are reported per
//     outcome
package dispatch
