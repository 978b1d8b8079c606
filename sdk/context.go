package sdk

import (
	"context"

	"github.com/mohit-nagaraj/xray-logger/pkg/trace"
)

// runKey is the context key for the active run.
type runKeyType struct{}

var runKey = runKeyType{}

// ContextWithRun attaches the run to the context. Each concurrent
// pipeline invocation carries its own run; correlation state is never
// ambient process-wide.
func ContextWithRun(ctx context.Context, run *Run) context.Context {
	return context.WithValue(ctx, runKey, run)
}

// RunFromContext retrieves the active run, if any. No-op runs attached by
// a disabled client are reported like real ones so instrumented code
// behaves identically either way.
func RunFromContext(ctx context.Context) (*Run, bool) {
	run, ok := ctx.Value(runKey).(*Run)
	return run, ok
}

// StartStep opens a step under the run carried by ctx. When ctx carries
// no run the step is dropped silently (a diagnostics counter is
// incremented) and a no-op step is returned; instrumented code never
// sees an error.
func StartStep(ctx context.Context, client *Client, stepType trace.StepType, name string, input any) *Step {
	run, ok := RunFromContext(ctx)
	if !ok {
		if client != nil {
			client.dropContext("no_run")
		}
		return &Step{noop: true}
	}
	return run.StartStep(stepType, name, input)
}
