// Package worker runs workflow and activity code for one task list.
//
// A worker shares the history store and task queue of the client it is built
// from. It takes three kinds of tasks: workflow tasks replay a run's history
// and append the commands the code produces, activity tasks call a registered
// activity and record its outcome, and timer tasks record that a timer fired.
//
//	w, err := worker.NewWorker(c, worker.Options{TaskList: "orders"})
//	if err != nil {
//		return err
//	}
//	if err := w.RegisterWorkflow(OrderWorkflow); err != nil {
//		return err
//	}
//	if err := w.RegisterActivity(ChargeCard); err != nil {
//		return err
//	}
//	return w.Run(ctx) // until ctx is canceled
//
// Registration is closed once Run starts; later calls return ErrRegistryFrozen.
//
// # Scaling
//
// Several workers may poll one task list when the client uses a shared event
// log and the NATS task queue. Appends to one run are serialized by the event
// log's version check, so a losing worker reloads the history and retries.
//
// # Replaying Histories
//
// WorkflowReplayer runs a recorded history through the registered code without
// a task queue, reporting ErrNonDeterministic when the code no longer produces
// the recorded commands. Keep exported histories next to the workflow tests:
//
//	r := worker.NewWorkflowReplayer(worker.ReplayerOptions{})
//	r.RegisterWorkflow(OrderWorkflow)
//	if err := r.ReplayWorkflowHistoryFromFile("testdata/order.yaml"); err != nil {
//		t.Fatal(err)
//	}
//
// WriteHistoryFile and ReadHistoryFile produce and parse those YAML files.
package worker
