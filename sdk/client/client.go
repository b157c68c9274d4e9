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

package client

import (
	"log/slog"

	"github.com/ngnhng/durablereplay/api/serde"
	"github.com/ngnhng/durablereplay/sdk/internal"
)

// Client is the interface for interacting with workflow executions.
//
// Use Client to start workflow executions, signal or cancel them and retrieve
// their results and histories. A client writes run histories to a chronicle
// event log and hands tasks to workers through a task queue.
//
// Example:
//
//	c, err := client.NewClient(&client.Options{
//		EventLog:  events,
//		TaskQueue: conn, // from ConnectNATS
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{TaskList: "orders"}, MyWorkflow, arg1, arg2)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	var result MyResult
//	if err := run.Get(ctx, &result); err != nil {
//		log.Fatal(err)
//	}
type Client = internal.Client

type (
	// Options contains configuration for creating a new Client.
	Options = internal.ClientOptions

	// StartWorkflowOptions configures a new workflow execution.
	StartWorkflowOptions = internal.StartWorkflowOptions

	// WorkflowRun is a handle to a workflow run. Get waits for the result,
	// following continue-as-new to the last run.
	WorkflowRun = internal.WorkflowRun
)

// NewClient creates a new Client with the provided Options.
//
// Returns an error if:
//   - Options is nil
//   - Options.EventLog is nil
//   - The history repositories cannot be created on the event log
func NewClient(options *Options) (Client, error) {
	return internal.NewClient(options)
}

// TaskQueue routes workflow, activity and timer tasks to the workers of a task list.
type TaskQueue = internal.TaskQueue

// NewMemoryTaskQueue returns an in-process task queue for clients and workers
// living in one process.
func NewMemoryTaskQueue() *internal.MemoryTaskQueue {
	return internal.NewMemoryTaskQueue()
}

type (
	// NATSConn is a NATS connection serving as a JetStream TaskQueue, with one
	// work-queue stream per task kind.
	NATSConn = internal.Conn

	// NATSConfig supplies the connection settings of ConnectNATS.
	NATSConfig = internal.Config
)

// ConnectNATS connects to NATS. namespace prefixes the task streams, so
// deployments sharing a cluster do not see each other's tasks.
func ConnectNATS(cfg NATSConfig, namespace string, codec serde.BinarySerde, logger *slog.Logger) (*NATSConn, error) {
	return internal.Connect(cfg, namespace, codec, logger)
}
