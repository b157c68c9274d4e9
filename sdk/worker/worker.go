// Copyright 2025 Nguyen Nhat Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package worker

import (
	"io"

	"github.com/ngnhng/durablereplay/api"
	"github.com/ngnhng/durablereplay/sdk/client"
	"github.com/ngnhng/durablereplay/sdk/internal"
)

// Worker is the interface for the worker runtime that executes workflows and activities.
//
// A worker polls its task list, replays workflow histories to produce the next
// decisions, executes activities and fires timers. Workers must register
// workflows and activities before starting.
//
// Example:
//
//	w, err := worker.NewWorker(c, worker.Options{TaskList: "orders"})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Register workflows and activities
//	w.RegisterWorkflow(MyWorkflow)
//	w.RegisterActivity(MyActivity)
//
//	// Run the worker
//	if err := w.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
type Worker = internal.Worker

// Registry combines workflow and activity registration interfaces.
type Registry interface {
	WorkflowRegistry
	ActivityRegistry
}

// WorkflowRegistry provides methods for registering workflow functions.
//
// Workflows must be registered before the worker starts. The workflow function
// signature should be: func(workflow.Context, ...args) (result, error)
type WorkflowRegistry = internal.WorkflowRegistry

// ActivityRegistry provides methods for registering activity functions.
//
// Activities must be registered before the worker starts. The activity function
// signature should be: func(context.Context, ...args) (result, error)
type ActivityRegistry = internal.ActivityRegistry

type (
	// Options contains configuration for creating a new Worker.
	Options = internal.WorkerOptions

	RegisterWorkflowOptions = internal.RegisterWorkflowOptions
	RegisterActivityOptions = internal.RegisterActivityOptions
)

// NewWorker creates a new Worker that takes its history store and task queue from c.
func NewWorker(c client.Client, options Options) (Worker, error) {
	return internal.NewWorker(c, options)
}

type (
	// WorkflowReplayer checks recorded histories against the current workflow code.
	WorkflowReplayer = internal.WorkflowReplayer

	ReplayerOptions = internal.WorkflowReplayerOptions
)

func NewWorkflowReplayer(options ReplayerOptions) *WorkflowReplayer {
	return internal.NewWorkflowReplayer(options)
}

// WriteHistoryFile exports a history, for example from client.GetWorkflowHistory,
// as a YAML file the replayer can read back.
func WriteHistoryFile(w io.Writer, history []api.HistoryEvent) error {
	return internal.WriteHistoryFile(w, history)
}

func ReadHistoryFile(r io.Reader) ([]api.HistoryEvent, error) {
	return internal.ReadHistoryFile(r)
}
