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

package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ngnhng/durablereplay/api"
	"github.com/ngnhng/durablereplay/api/serde"
)

type WorkflowReplayerOptions struct {
	// Codec must match the codec the history was written with for payloads to decode.
	Codec                    serde.Codec
	Logger                   *slog.Logger
	DeadlockDetectionTimeout time.Duration
}

// WorkflowReplayer runs recorded histories through the registered workflow code
// to check that the code still produces the recorded commands.
type WorkflowReplayer struct {
	registry *registry
	opts     executorOptions
}

func NewWorkflowReplayer(options WorkflowReplayerOptions) *WorkflowReplayer {
	reg := newRegistry()
	return &WorkflowReplayer{
		registry: reg,
		opts: executorOptions{
			registry:        reg,
			converter:       serde.NewDataConverter(options.Codec),
			logger:          defaultLogger(options.Logger),
			deadlockTimeout: options.DeadlockDetectionTimeout,
		},
	}
}

func (r *WorkflowReplayer) RegisterWorkflow(fn any, options ...RegisterWorkflowOptions) error {
	var name string
	for _, o := range options {
		name = o.Name
	}
	return r.registry.registerWorkflow(fn, name)
}

// ReplayWorkflowHistory returns a *NonDeterminismError when the code diverges
// from history, or the failure that replaying the code produced.
func (r *WorkflowReplayer) ReplayWorkflowHistory(history []api.HistoryEvent) error {
	if len(history) == 0 {
		return fmt.Errorf("replay: empty history")
	}
	dec, err := newWorkflowExecutor(r.opts).execute(history)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	return dec.Failure
}

// ReplayWorkflowHistoryFromFile replays a history file written by WriteHistoryFile.
func (r *WorkflowReplayer) ReplayWorkflowHistoryFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	history, err := ReadHistoryFile(f)
	if err != nil {
		return fmt.Errorf("read history file %s: %w", path, err)
	}
	return r.ReplayWorkflowHistory(history)
}

// ReplayWorkflowExecution loads a stored run through c and replays it.
func (r *WorkflowReplayer) ReplayWorkflowExecution(ctx context.Context, c Client, workflowID, runID string) error {
	history, err := c.GetWorkflowHistory(ctx, workflowID, runID)
	if err != nil {
		return err
	}
	return r.ReplayWorkflowHistory(history)
}
