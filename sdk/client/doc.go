// Package client provides the client for interacting with workflow executions.
//
// The client package allows you to start workflow executions, wait for results,
// and signal, cancel or inspect running workflows.
//
// # Creating a Client
//
// A client needs the chronicle event log holding run histories. Processes that
// share a database or a NATS cluster share the same runs:
//
//	db, err := sql.Open("sqlite3", "durablereplay.db")
//	if err != nil {
//		log.Fatal(err)
//	}
//	events, err := eventlog.NewSqlite(db)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	c, err := client.NewClient(&client.Options{
//		EventLog: events,
//		Logger:   slog.Default(),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Without a TaskQueue the client uses an in-process queue, so workers must be
// created from the same client.
//
// # Executing Workflows
//
// Use ExecuteWorkflow to start a workflow execution:
//
//	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{ID: "order-42"}, MyWorkflow, "input1", "input2")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	var result string
//	if err := run.Get(ctx, &result); err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println("Result:", result)
//
// # Workflow Results
//
// WorkflowRun.Get blocks until the run closes or the context is canceled. A run
// that continued as new is followed to its successor. A failed or canceled run
// returns a *WorkflowExecutionError.
//
// # Signals and Cancellation
//
// SignalWorkflow and CancelWorkflow record the request in the run's history
// before a worker delivers it, so neither is lost when workers restart. An empty
// run id addresses the current run of the workflow id.
package client
