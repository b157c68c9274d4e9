// Package workflow provides the programming model for writing durable workflows.
//
// Workflows are deterministic functions that orchestrate activities, timers and
// signals. Every decision a workflow makes is recorded in the history of its run.
// When a worker picks the run up again it re-executes the workflow from the
// start, feeding it the recorded results, until the code catches up with the
// history and continues live.
//
// # Writing Workflows
//
// A workflow is a regular Go function that takes a workflow.Context as its first parameter:
//
//	func MyWorkflow(ctx workflow.Context, name string) (string, error) {
//		ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
//			StartToCloseTimeout: 10 * time.Second,
//		})
//		var result string
//		err := workflow.ExecuteActivity(ctx, MyActivity, name).Get(ctx, &result)
//		if err != nil {
//			return "", err
//		}
//		return result, nil
//	}
//
// # Determinism
//
// Replay only works if the workflow produces the same commands for the same
// history. Inside a workflow:
//   - Use workflow.Now, workflow.Random and workflow.NewRandom instead of time.Now and math/rand
//   - Use workflow.Sleep or workflow.NewTimer instead of time.Sleep
//   - Use workflow.Go, workflow.Channel and workflow.Selector instead of
//     goroutines, native channels and select
//   - Perform I/O in activities, or record it with workflow.SideEffect
//
// A run whose code diverges from its history fails with a *NonDeterminismError.
// Use workflow.GetVersion to change workflow code while old runs are still open.
//
// # Coroutines
//
// workflow.Go starts a coroutine. Coroutines of one execution never run in
// parallel: exactly one runs at a time and control moves only at blocking
// workflow calls, in a deterministic order.
//
//	ch := workflow.NewChannel(ctx)
//	workflow.Go(ctx, func(ctx workflow.Context) {
//		ch.Send(ctx, "ping")
//	})
//	var msg string
//	ch.Receive(ctx, &msg)
//
// # Selectors
//
// A Selector waits for the first of several channels and futures:
//
//	timer := workflow.NewTimer(ctx, time.Hour)
//	s := workflow.NewSelector(ctx)
//	s.AddFuture(timer, func(f workflow.Future) { timedOut = true })
//	s.AddReceive(workflow.GetSignalChannel(ctx, "approve"), func(c workflow.ReceiveChannel, more bool) {
//		c.Receive(ctx, &approval)
//	})
//	s.Select(ctx)
//
// # Continue-As-New
//
// Long running workflows keep their history bounded by returning
// workflow.NewContinueAsNewError, which closes the run and starts a new one of
// the same workflow id with fresh history.
package workflow
