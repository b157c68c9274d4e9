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
	"time"

	"github.com/ngnhng/durablereplay/api"
)

// processWorkflowTask runs one decision step: the run's history is replayed and
// the commands produced for the pending inputs are recorded after a
// WorkflowTaskCompleted boundary. The side effects of those commands are
// dispatched only once they are persisted.
func (w *workerImpl) processWorkflowTask(ctx context.Context, task *api.WorkflowTask) error {
	var dec *decision
	run, err := w.store.update(ctx, task.Execution, func(run *workflowRun) error {
		dec = nil
		if !run.needsWorkflowTask() {
			return nil
		}
		if _, err := w.registry.workflow(run.workflowType); err != nil {
			return err
		}
		executor := newWorkflowExecutor(executorOptions{
			registry:        w.registry,
			converter:       w.converter,
			logger:          w.logger,
			deadlockTimeout: w.opts.DeadlockDetectionTimeout,
		})
		d, err := executor.execute(run.history)
		if err != nil {
			return fmt.Errorf("interpret history of %s: %w", run.id, err)
		}
		dec = d
		events := make([]api.HistoryEvent, 0, len(d.Commands)+1)
		events = append(events, &api.WorkflowTaskCompleted{CompletedAt: time.Now().UTC()})
		for _, cmd := range d.Commands {
			events = append(events, cmd)
		}
		return run.record(events...)
	})
	if err != nil {
		return err
	}
	if dec == nil {
		w.logger.Debug("workflow task has nothing to do", slog.String("execution", task.Execution.String()))
		return nil
	}
	if dec.Failure != nil {
		w.logger.Error("workflow task closed the run with a failure",
			slog.String("execution", run.id.String()), slog.Any("error", dec.Failure))
	}
	return w.dispatchCommands(ctx, run, dec.Commands)
}

func (w *workerImpl) dispatchCommands(ctx context.Context, run *workflowRun, commands []api.Command) error {
	var errs []error
	for _, cmd := range commands {
		switch c := cmd.(type) {
		case *api.ActivityScheduled:
			now := time.Now().UTC()
			taskList := c.Parameters.TaskList
			if taskList == "" {
				taskList = run.taskList
			}
			errs = append(errs, w.queue.Enqueue(ctx, taskList, &api.ActivityTask{
				Execution:        run.id,
				WorkflowType:     run.workflowType,
				ScheduledSeq:     c.Seq,
				ActivityType:     c.ActivityType,
				Input:            c.Input,
				Parameters:       c.Parameters,
				Attempt:          1,
				ScheduledAt:      now,
				FirstScheduledAt: now,
			}))
		case *api.TimerStarted:
			fireAt, ok := run.timerFireAt(c.Seq)
			if !ok {
				continue
			}
			errs = append(errs, w.queue.Enqueue(ctx, run.taskList, &api.TimerTask{
				Execution:  run.id,
				TaskList:   run.taskList,
				StartedSeq: c.Seq,
				FireAt:     fireAt,
			}))
		case *api.ActivityCancelRequested:
			if w.cancelRunning(run.id, c.ScheduledSeq) {
				continue
			}
			// Not running here: the attempt is queued or owned by another worker,
			// whose late result is dropped.
			errs = append(errs, w.deliver(ctx, run.id, run.taskList,
				&api.ActivityCanceled{ScheduledSeq: c.ScheduledSeq}, activityPendingGuard(c.ScheduledSeq)))
		case *api.WorkflowContinuedAsNew:
			errs = append(errs, startRun(ctx, w.store, w.queue, &api.WorkflowExecutionStarted{
				WorkflowID:         run.id.WorkflowID,
				RunID:              c.NewRunID,
				WorkflowType:       c.WorkflowType,
				TaskList:           c.TaskList,
				Input:              c.Input,
				ContinuedFromRunID: run.id.RunID,
				StartedAt:          time.Now().UTC(),
			}))
			w.logger.Info("workflow continued as new",
				slog.String("workflow_id", string(run.id.WorkflowID)),
				slog.String("run_id", string(run.id.RunID)),
				slog.String("new_run_id", string(c.NewRunID)))
		}
	}
	return errors.Join(errs...)
}

// processTimerTask holds a timer back until it is due, then records it fired.
func (w *workerImpl) processTimerTask(ctx context.Context, token *TaskToken, task *api.TimerTask) error {
	if now := time.Now(); now.Before(task.FireAt) {
		return w.deferUntil(ctx, token, task.FireAt)
	}
	return w.deliver(ctx, task.Execution, task.TaskList,
		&api.TimerFired{StartedSeq: task.StartedSeq, FiredAt: time.Now().UTC()},
		func(run *workflowRun) bool { return run.timerPending(task.StartedSeq) })
}

func activityPendingGuard(seq int64) func(run *workflowRun) bool {
	return func(run *workflowRun) bool { return run.activityPending(seq) }
}
