// Package sdk instruments multi-step decision pipelines.
//
// A Client buffers run and step lifecycle events and ships them in
// batches to an xray server from a single background goroutine. The
// instrumentation path is synchronous, non-blocking, and fail-open: a
// full buffer evicts, a failed flush drops, a missing configuration
// disables the SDK outright. None of it ever surfaces as an error,
// delay, or panic inside the instrumented application.
//
// Basic usage:
//
//	client, err := sdk.New(sdk.WithBaseURL("http://localhost:8080"))
//	if err != nil {
//		return err
//	}
//	defer client.Close(context.Background())
//
//	ctx, run := client.StartRun(ctx, "product-categorization", nil)
//	defer run.End()
//
//	step := run.StartStep(trace.StepFilter, "filter_by_price", candidates)
//	kept := filterByPrice(candidates)
//	step.Explain("dropped items above the price ceiling")
//	step.End(kept)
//
// Or with the scope guard, which closes the step on every exit path:
//
//	err := run.Step(trace.StepRank, "rank_candidates", kept,
//		func(step *sdk.Step) (any, error) {
//			return rank(kept)
//		})
package sdk
