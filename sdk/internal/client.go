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
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/DeluxeOwl/chronicle/event"
	"github.com/gofrs/uuid/v5"
	"github.com/ngnhng/durablereplay/api"
	"github.com/ngnhng/durablereplay/api/serde"
)

const defaultResultPollInterval = 50 * time.Millisecond

var _ Client = (*clientImpl)(nil)

type (
	Client interface {
		// ExecuteWorkflow starts a new run of workflow and returns a handle to it.
		ExecuteWorkflow(ctx context.Context, options StartWorkflowOptions, workflow any, args ...any) (WorkflowRun, error)
		// GetWorkflow returns a handle to a run. An empty runID means the current run.
		GetWorkflow(ctx context.Context, workflowID, runID string) WorkflowRun
		SignalWorkflow(ctx context.Context, workflowID, runID, signalName string, arg any) error
		CancelWorkflow(ctx context.Context, workflowID, runID, reason string) error
		GetWorkflowHistory(ctx context.Context, workflowID, runID string) ([]api.HistoryEvent, error)

		// Accessors to underlying components, not exposed for public consumption
		getStore() *historyStore
		getQueue() TaskQueue
		getConverter() serde.DataConverter
		getLogger() *slog.Logger
	}

	ClientOptions struct {
		// EventLog stores run histories. Required.
		EventLog event.Log
		// TaskQueue routes tasks to workers. Defaults to an in-process queue.
		TaskQueue TaskQueue
		// Codec encodes history events and payloads. Defaults to msgpack.
		Codec  serde.Codec
		Logger *slog.Logger
		// ResultPollInterval is how often WorkflowRun.Get checks for completion.
		ResultPollInterval time.Duration
	}

	StartWorkflowOptions struct {
		// ID is the workflow id. A random id is generated when empty.
		ID       string
		TaskList string
	}

	// WorkflowRun is a handle to a started run.
	WorkflowRun interface {
		GetID() string
		GetRunID() string
		// Get blocks until the run, or the last run continued from it, closes and
		// decodes its result into valuePtr.
		Get(ctx context.Context, valuePtr any) error
	}

	// WorkflowExecutionError is returned by WorkflowRun.Get when the run failed or was canceled.
	WorkflowExecutionError struct {
		WorkflowID string
		RunID      string
		Cause      error
	}
)

func (e *WorkflowExecutionError) Error() string {
	return fmt.Sprintf("workflow %s (run %s) failed: %v", e.WorkflowID, e.RunID, e.Cause)
}

func (e *WorkflowExecutionError) Unwrap() error { return e.Cause }

type clientImpl struct {
	store        *historyStore
	queue        TaskQueue
	converter    serde.DataConverter
	logger       *slog.Logger
	pollInterval time.Duration
}

func NewClient(options *ClientOptions) (Client, error) {
	if options == nil || options.EventLog == nil {
		return nil, fmt.Errorf("client options must include an event log")
	}
	codec := options.Codec
	if codec == nil {
		codec = &serde.MsgpackSerde{}
	}
	store, err := newHistoryStore(options.EventLog, codec)
	if err != nil {
		return nil, err
	}
	queue := options.TaskQueue
	if queue == nil {
		queue = NewMemoryTaskQueue()
	}
	poll := options.ResultPollInterval
	if poll <= 0 {
		poll = defaultResultPollInterval
	}
	return &clientImpl{
		store:        store,
		queue:        queue,
		converter:    serde.NewDataConverter(codec),
		logger:       defaultLogger(options.Logger),
		pollInterval: poll,
	}, nil
}

func (c *clientImpl) ExecuteWorkflow(ctx context.Context, options StartWorkflowOptions, workflow any, args ...any) (WorkflowRun, error) {
	name, err := functionName(workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to extract workflow function name: %w", err)
	}
	input, err := c.converter.ToPayloads(args...)
	if err != nil {
		return nil, err
	}
	workflowID := options.ID
	if workflowID == "" {
		workflowID = newID()
	}
	taskList := options.TaskList
	if taskList == "" {
		taskList = api.DefaultTaskList
	}
	started := &api.WorkflowExecutionStarted{
		WorkflowID:   api.WorkflowID(workflowID),
		RunID:        api.RunID(newID()),
		WorkflowType: name,
		TaskList:     taskList,
		Input:        input,
		StartedAt:    time.Now().UTC(),
	}
	if err := startRun(ctx, c.store, c.queue, started); err != nil {
		return nil, err
	}
	c.logger.Debug("workflow started",
		"workflow_id", started.WorkflowID, "run_id", started.RunID, "workflow_type", name)
	return &workflowRunHandle{c: c, workflowID: workflowID, runID: string(started.RunID)}, nil
}

func (c *clientImpl) GetWorkflow(_ context.Context, workflowID, runID string) WorkflowRun {
	return &workflowRunHandle{c: c, workflowID: workflowID, runID: runID}
}

func (c *clientImpl) SignalWorkflow(ctx context.Context, workflowID, runID, signalName string, arg any) error {
	payload, err := c.converter.ToPayload(arg)
	if err != nil {
		return err
	}
	return c.deliver(ctx, workflowID, runID, &api.SignalReceived{Name: signalName, Payload: payload})
}

func (c *clientImpl) CancelWorkflow(ctx context.Context, workflowID, runID, reason string) error {
	return c.deliver(ctx, workflowID, runID, &api.WorkflowCancelRequested{Reason: reason})
}

// deliver persists an input on the run before scheduling the workflow task that consumes it.
func (c *clientImpl) deliver(ctx context.Context, workflowID, runID string, in api.Input) error {
	key, err := c.store.resolve(ctx, api.ExecutionKey{WorkflowID: api.WorkflowID(workflowID), RunID: api.RunID(runID)})
	if err != nil {
		return err
	}
	appended, err := c.store.appendInput(ctx, key, in, nil)
	if err != nil {
		return err
	}
	if !appended {
		return fmt.Errorf("%w: %s", ErrWorkflowClosed, key)
	}
	run, err := c.store.load(ctx, key)
	if err != nil {
		return err
	}
	return scheduleWorkflowTask(ctx, c.queue, run)
}

func (c *clientImpl) GetWorkflowHistory(ctx context.Context, workflowID, runID string) ([]api.HistoryEvent, error) {
	key, err := c.store.resolve(ctx, api.ExecutionKey{WorkflowID: api.WorkflowID(workflowID), RunID: api.RunID(runID)})
	if err != nil {
		return nil, err
	}
	run, err := c.store.load(ctx, key)
	if err != nil {
		return nil, err
	}
	return slices.Clone(run.history), nil
}

func (c *clientImpl) getStore() *historyStore           { return c.store }
func (c *clientImpl) getQueue() TaskQueue               { return c.queue }
func (c *clientImpl) getConverter() serde.DataConverter { return c.converter }
func (c *clientImpl) getLogger() *slog.Logger           { return c.logger }

type workflowRunHandle struct {
	c          *clientImpl
	workflowID string
	runID      string
}

func (h *workflowRunHandle) GetID() string    { return h.workflowID }
func (h *workflowRunHandle) GetRunID() string { return h.runID }

func (h *workflowRunHandle) Get(ctx context.Context, valuePtr any) error {
	key, err := h.c.store.resolve(ctx, api.ExecutionKey{WorkflowID: api.WorkflowID(h.workflowID), RunID: api.RunID(h.runID)})
	if err != nil {
		return err
	}

	ticker := time.NewTicker(h.c.pollInterval)
	defer ticker.Stop()
	for {
		run, err := h.c.store.load(ctx, key)
		if err != nil && !errors.Is(err, ErrWorkflowNotFound) {
			return err
		}
		if err == nil && run.closed {
			switch t := run.terminal.(type) {
			case *api.WorkflowCompleted:
				if valuePtr == nil {
					return nil
				}
				return h.c.converter.FromPayload(t.Result, valuePtr)
			case *api.WorkflowFailed:
				failure := t.Failure
				return &WorkflowExecutionError{WorkflowID: h.workflowID, RunID: string(key.RunID), Cause: failureToError(&failure)}
			case *api.WorkflowCanceled:
				return &WorkflowExecutionError{WorkflowID: h.workflowID, RunID: string(key.RunID), Cause: NewCanceledError("workflow canceled")}
			case *api.WorkflowContinuedAsNew:
				key.RunID = t.NewRunID
				continue
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// startRun persists a new run and schedules its first workflow task.
func startRun(ctx context.Context, store *historyStore, queue TaskQueue, started *api.WorkflowExecutionStarted) error {
	if err := store.create(ctx, started); err != nil {
		return err
	}
	return queue.Enqueue(ctx, started.TaskList, &api.WorkflowTask{
		Execution: api.ExecutionKey{WorkflowID: started.WorkflowID, RunID: started.RunID},
		TaskList:  started.TaskList,
	})
}

func scheduleWorkflowTask(ctx context.Context, queue TaskQueue, run *workflowRun) error {
	if !run.needsWorkflowTask() {
		return nil
	}
	return queue.Enqueue(ctx, run.taskList, &api.WorkflowTask{Execution: run.id, TaskList: run.taskList})
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}
