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
	"sync"
	"time"

	"github.com/ngnhng/durablereplay/api"
	"github.com/ngnhng/durablereplay/api/serde"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxConcurrentWorkflowTasks = 16
	defaultMaxConcurrentActivities    = 64
	defaultRedeliveryDelay            = time.Second
)

type (
	WorkerOptions struct {
		// TaskList the worker polls. Defaults to api.DefaultTaskList.
		TaskList                   string
		MaxConcurrentWorkflowTasks int
		MaxConcurrentActivities    int
		// DeadlockDetectionTimeout bounds how long a coroutine may run without
		// reaching a blocking point.
		DeadlockDetectionTimeout time.Duration
		Logger                   *slog.Logger
	}

	RegisterWorkflowOptions struct {
		// Name overrides the function name the workflow is started by.
		Name string
	}

	RegisterActivityOptions struct {
		// Name overrides the function name the activity is scheduled by.
		Name string
	}

	WorkflowRegistry interface {
		RegisterWorkflow(w any, options ...RegisterWorkflowOptions) error
	}

	ActivityRegistry interface {
		RegisterActivity(a any, options ...RegisterActivityOptions) error
	}

	Worker interface {
		WorkflowRegistry
		ActivityRegistry
		// Run polls the task list until ctx is done.
		Run(ctx context.Context) error
	}
)

var _ Worker = (*workerImpl)(nil)

type workerImpl struct {
	store     *historyStore
	queue     TaskQueue
	converter serde.DataConverter
	registry  *registry
	opts      WorkerOptions
	logger    *slog.Logger

	mu      sync.Mutex
	running map[string]context.CancelCauseFunc
}

func NewWorker(c Client, opts WorkerOptions) (*workerImpl, error) {
	if c == nil {
		return nil, fmt.Errorf("worker requires a client")
	}
	if opts.TaskList == "" {
		opts.TaskList = api.DefaultTaskList
	}
	if opts.MaxConcurrentWorkflowTasks <= 0 {
		opts.MaxConcurrentWorkflowTasks = defaultMaxConcurrentWorkflowTasks
	}
	if opts.MaxConcurrentActivities <= 0 {
		opts.MaxConcurrentActivities = defaultMaxConcurrentActivities
	}
	logger := opts.Logger
	if logger == nil {
		logger = c.getLogger()
	}
	return &workerImpl{
		store:     c.getStore(),
		queue:     c.getQueue(),
		converter: c.getConverter(),
		registry:  newRegistry(),
		opts:      opts,
		logger:    defaultLogger(logger).With(slog.String("task_list", opts.TaskList)),
		running:   make(map[string]context.CancelCauseFunc),
	}, nil
}

func (w *workerImpl) RegisterWorkflow(fn any, options ...RegisterWorkflowOptions) error {
	var name string
	for _, o := range options {
		name = o.Name
	}
	return w.registry.registerWorkflow(fn, name)
}

func (w *workerImpl) RegisterActivity(fn any, options ...RegisterActivityOptions) error {
	var name string
	for _, o := range options {
		name = o.Name
	}
	return w.registry.registerActivity(fn, name)
}

// Run freezes the registry and processes tasks until ctx is done. Workflow and
// timer tasks share one concurrency limit, activities have their own.
func (w *workerImpl) Run(ctx context.Context) error {
	w.registry.freeze()

	var decisionKinds TaskKind
	if w.registry.workflows.size() > 0 {
		decisionKinds = TaskKindWorkflow | TaskKindTimer
	}
	activitiesEnabled := w.registry.activities.size() > 0
	if decisionKinds == 0 && !activitiesEnabled {
		return fmt.Errorf("worker has no registered workflows or activities")
	}

	g, gCtx := errgroup.WithContext(ctx)
	if decisionKinds != 0 {
		g.Go(func() error {
			return w.runProcessingLoop(gCtx, decisionKinds, w.opts.MaxConcurrentWorkflowTasks)
		})
	}
	if activitiesEnabled {
		g.Go(func() error {
			return w.runProcessingLoop(gCtx, TaskKindActivity, w.opts.MaxConcurrentActivities)
		})
	}
	w.logger.Info("worker started")
	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (w *workerImpl) runProcessingLoop(ctx context.Context, kinds TaskKind, limit int) error {
	tasks, err := w.queue.Receive(ctx, w.opts.TaskList, kinds)
	if err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for token := range tasks {
		g.Go(func() error {
			w.process(gCtx, token)
			return nil
		})
	}
	return g.Wait()
}

// process settles a token. Failures are logged and the task is handed back
// for redelivery; they never stop the worker.
func (w *workerImpl) process(ctx context.Context, token *TaskToken) {
	var err error
	switch task := token.Task.(type) {
	case *api.WorkflowTask:
		err = w.processWorkflowTask(ctx, task)
	case *api.TimerTask:
		err = w.processTimerTask(ctx, token, task)
	case *api.ActivityTask:
		err = w.processActivityTask(ctx, token, task)
	default:
		// poison pill
		w.logger.Warn("received unsupported task, terminating it", slog.String("task", fmt.Sprintf("%T", task)))
		_ = token.Term(ctx)
		return
	}

	switch {
	case err == nil:
		if ackErr := token.Ack(ctx); ackErr != nil {
			w.logger.Warn("failed to ack task", slog.Any("error", ackErr))
		}
	case errors.Is(err, errTaskDeferred):
	case errors.Is(err, ErrWorkflowNotFound):
		w.logger.Error("task refers to an unknown run, terminating it",
			slog.String("execution", token.Task.TaskKey().String()), slog.Any("error", err))
		_ = token.Term(ctx)
	default:
		if ctx.Err() != nil {
			// Shutting down; the queue redelivers once the ack deadline passes.
			return
		}
		w.logger.Error("task failed, sending NAK",
			slog.String("execution", token.Task.TaskKey().String()), slog.Any("error", err))
		if nakErr := token.Nak(ctx, defaultRedeliveryDelay); nakErr != nil {
			w.logger.Warn("failed to nak task", slog.Any("error", nakErr))
		}
	}
}

// errTaskDeferred marks a task already handed back to the queue with a delay.
var errTaskDeferred = errors.New("task deferred")

func (w *workerImpl) deferUntil(ctx context.Context, token *TaskToken, until time.Time) error {
	if err := token.Nak(ctx, time.Until(until)); err != nil {
		return err
	}
	return errTaskDeferred
}

// deliver records an input produced by the worker and schedules the workflow
// task that consumes it. guard drops inputs that are no longer expected.
func (w *workerImpl) deliver(ctx context.Context, key api.ExecutionKey, taskList string, in api.Input, guard func(run *workflowRun) bool) error {
	appended, err := w.store.appendInput(ctx, key, in, guard)
	if err != nil || !appended {
		return err
	}
	return w.queue.Enqueue(ctx, taskList, &api.WorkflowTask{Execution: key, TaskList: taskList})
}

func runningKey(key api.ExecutionKey, seq int64) string {
	return fmt.Sprintf("%s#%d", key, seq)
}

func (w *workerImpl) trackRunning(key api.ExecutionKey, seq int64, cancel context.CancelCauseFunc) (untrack func()) {
	k := runningKey(key, seq)
	w.mu.Lock()
	w.running[k] = cancel
	w.mu.Unlock()
	return func() {
		w.mu.Lock()
		delete(w.running, k)
		w.mu.Unlock()
	}
}

// cancelRunning interrupts an activity attempt executing in this worker.
func (w *workerImpl) cancelRunning(key api.ExecutionKey, seq int64) bool {
	w.mu.Lock()
	cancel, ok := w.running[runningKey(key, seq)]
	w.mu.Unlock()
	if ok {
		cancel(NewCanceledError("activity canceled"))
	}
	return ok
}
