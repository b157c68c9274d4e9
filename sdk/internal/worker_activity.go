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
	"math"
	"reflect"
	"runtime/debug"
	"slices"
	"time"

	"github.com/ngnhng/durablereplay/api"
)

// activityTouchInterval is how often a running attempt extends its task lease.
const activityTouchInterval = 10 * time.Second

// processActivityTask executes one attempt of a scheduled activity and records
// its outcome on the run, or enqueues the next attempt when the retry policy
// allows it. Attempts for activities the run no longer waits on are dropped.
func (w *workerImpl) processActivityTask(ctx context.Context, token *TaskToken, task *api.ActivityTask) error {
	now := time.Now()
	if now.Before(task.NotBefore) {
		return w.deferUntil(ctx, token, task.NotBefore)
	}

	run, err := w.store.load(ctx, task.Execution)
	if err != nil {
		return err
	}
	if run.closed || !run.activityPending(task.ScheduledSeq) {
		w.logger.Debug("dropping activity task the run no longer waits on",
			slog.String("execution", task.Execution.String()),
			slog.Int64("scheduled_seq", task.ScheduledSeq))
		return nil
	}

	p := task.Parameters
	if p.ScheduleToStartTimeout > 0 && now.Sub(task.ScheduledAt) > p.ScheduleToStartTimeout {
		return w.recordActivity(ctx, run, task, NewTimeoutError(TimeoutScheduleToStart))
	}
	var closeBy time.Time
	if p.ScheduleToCloseTimeout > 0 {
		closeBy = task.FirstScheduledAt.Add(p.ScheduleToCloseTimeout)
		if !now.Before(closeBy) {
			return w.recordActivity(ctx, run, task, NewTimeoutError(TimeoutScheduleToClose))
		}
	}

	result, err := w.executeActivity(ctx, token, task, closeBy)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		payload, encErr := w.converter.ToPayload(result)
		if encErr == nil {
			return w.deliver(ctx, run.id, run.taskList,
				&api.ActivityCompleted{ScheduledSeq: task.ScheduledSeq, Result: payload, Attempt: task.Attempt},
				activityPendingGuard(task.ScheduledSeq))
		}
		err = NewApplicationError(fmt.Sprintf("encode activity result: %v", encErr), "EncodingError", true, encErr)
	}

	w.logger.Warn("activity execution failed",
		slog.String("activity", task.ActivityType),
		slog.Int("attempt", int(task.Attempt)),
		slog.Any("error", err))
	if w.evaluateRetryDecision(task, err) {
		nextDelay := w.calculateRetryDelay(task)
		next := *task
		next.Attempt++
		next.NotBefore = time.Now().Add(nextDelay).UTC()
		next.ScheduledAt = next.NotBefore
		w.logger.Info("activity will retry",
			slog.String("activity", task.ActivityType),
			slog.Int("attempt", int(task.Attempt)),
			slog.Duration("next_delay", nextDelay))
		return w.queue.Enqueue(ctx, w.opts.TaskList, &next)
	}
	return w.recordActivity(ctx, run, task, err)
}

// recordActivity records the final failure of an activity.
func (w *workerImpl) recordActivity(ctx context.Context, run *workflowRun, task *api.ActivityTask, err error) error {
	var (
		in         api.Input
		timeoutErr *TimeoutError
	)
	switch {
	case errors.As(err, &timeoutErr):
		in = &api.ActivityTimedOut{ScheduledSeq: task.ScheduledSeq, TimeoutKind: string(timeoutErr.Kind), Attempt: task.Attempt}
	case IsCanceledError(err):
		in = &api.ActivityCanceled{ScheduledSeq: task.ScheduledSeq}
	default:
		in = &api.ActivityFailed{ScheduledSeq: task.ScheduledSeq, Failure: errorToFailure(err), Attempt: task.Attempt}
	}
	return w.deliver(ctx, run.id, run.taskList, in, activityPendingGuard(task.ScheduledSeq))
}

// executeActivity runs the activity function under the attempt's deadline and
// heartbeat watchdog. A timeout or a cancellation request replaces whatever the
// function returned.
func (w *workerImpl) executeActivity(ctx context.Context, token *TaskToken, task *api.ActivityTask, closeBy time.Time) (any, error) {
	fn, err := w.registry.activity(task.ActivityType)
	if err != nil {
		return nil, err
	}

	p := task.Parameters
	started := time.Now()
	actx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	deadline, deadlineKind := closeBy, TimeoutScheduleToClose
	if p.StartToCloseTimeout > 0 {
		if d := started.Add(p.StartToCloseTimeout); deadline.IsZero() || d.Before(deadline) {
			deadline, deadlineKind = d, TimeoutStartToClose
		}
	}
	if !deadline.IsZero() {
		var cancelDeadline context.CancelFunc
		actx, cancelDeadline = context.WithDeadlineCause(actx, deadline, NewTimeoutError(deadlineKind))
		defer cancelDeadline()
	}

	env := &activityEnv{
		info: ActivityInfo{
			WorkflowExecution: task.Execution,
			WorkflowType:      task.WorkflowType,
			ActivityType:      task.ActivityType,
			TaskList:          w.opts.TaskList,
			ScheduledSeq:      task.ScheduledSeq,
			Attempt:           task.Attempt,
			ScheduledAt:       task.ScheduledAt,
			StartedAt:         started,
			Deadline:          deadline,
			HeartbeatTimeout:  p.HeartbeatTimeout,
		},
		logger: w.logger.With(
			slog.String("workflow_id", string(task.Execution.WorkflowID)),
			slog.String("activity", task.ActivityType),
			slog.Int("attempt", int(task.Attempt)),
		),
	}
	actx = withActivityEnv(actx, env)

	untrack := w.trackRunning(task.Execution, task.ScheduledSeq, cancel)
	defer untrack()
	stop := w.watchActivity(actx, token, env, cancel)
	defer stop()

	result, err := w.executeActivityFunc(actx, fn, task.Input)
	if cause := context.Cause(actx); cause != nil && ctx.Err() == nil {
		var timeoutErr *TimeoutError
		if errors.As(cause, &timeoutErr) || IsCanceledError(cause) {
			return nil, cause
		}
	}
	return result, err
}

// watchActivity keeps the task lease alive while the attempt runs and times the
// attempt out once it misses its heartbeat deadline.
func (w *workerImpl) watchActivity(ctx context.Context, token *TaskToken, env *activityEnv, cancel context.CancelCauseFunc) (stop func()) {
	interval := activityTouchInterval
	if hb := env.info.HeartbeatTimeout; hb > 0 {
		interval = min(interval, max(hb/4, time.Millisecond))
	}
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		lastTouch := time.Now()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if hb := env.info.HeartbeatTimeout; hb > 0 && env.sinceHeartbeat(now) > hb {
					cancel(NewTimeoutError(TimeoutHeartbeat))
					return
				}
				if now.Sub(lastTouch) >= activityTouchInterval {
					lastTouch = now
					if err := token.Touch(ctx); err != nil {
						env.logger.Warn("failed to extend activity task lease", slog.Any("error", err))
					}
				}
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

func (w *workerImpl) executeActivityFunc(ctx context.Context, fn any, input []api.Payload) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()

	fnv := reflect.ValueOf(fn)
	args, err := decodeArguments(fnv.Type(), len(input), func(i int, ptr any) error {
		return w.converter.FromPayload(&input[i], ptr)
	})
	if err != nil {
		return nil, NewApplicationError(err.Error(), "InvalidArgument", true, nil)
	}
	return splitResults(fnv.Call(append([]reflect.Value{reflect.ValueOf(ctx)}, args...)))
}

// evaluateRetryDecision determines if an activity should be retried based on retry policy
func (w *workerImpl) evaluateRetryDecision(task *api.ActivityTask, err error) bool {
	// No retry policy means no retries
	policy := task.Parameters.RetryPolicy
	if policy == nil {
		return false
	}
	if IsCanceledError(err) {
		return false
	}
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) && timeoutErr.Kind == TimeoutScheduleToClose {
		return false
	}

	if policy.MaximumAttempts > 0 && task.Attempt >= policy.MaximumAttempts {
		w.logger.Info("max attempts reached for activity", slog.String("activity", task.ActivityType), slog.Int("max_attempts", int(policy.MaximumAttempts)))
		return false
	}

	failure := errorToFailure(err)
	if failure.NonRetryable || slices.Contains(policy.NonRetryableErrorTypes, failure.Type) {
		w.logger.Info("non-retryable error for activity", slog.String("activity", task.ActivityType), slog.String("type", failure.Type))
		return false
	}

	// Check if schedule-to-close timeout would be exceeded
	if timeout := task.Parameters.ScheduleToCloseTimeout; timeout > 0 {
		elapsed := time.Since(task.FirstScheduledAt)
		if elapsed+w.calculateRetryDelay(task) > timeout {
			w.logger.Info("schedule-to-close timeout would be exceeded for activity", slog.String("activity", task.ActivityType))
			return false
		}
	}
	return true
}

// calculateRetryDelay calculates the backoff delay for the next retry attempt
func (w *workerImpl) calculateRetryDelay(task *api.ActivityTask) time.Duration {
	policy := task.Parameters.RetryPolicy
	if policy == nil {
		return time.Second
	}

	initialInterval := policy.InitialInterval
	if initialInterval <= 0 {
		initialInterval = time.Second
	}
	backoffCoefficient := policy.BackoffCoefficient
	if backoffCoefficient < 1 {
		backoffCoefficient = 2.0
	}
	maxInterval := policy.MaximumInterval
	if maxInterval <= 0 {
		maxInterval = 100 * initialInterval
	}

	// initialInterval * (backoffCoefficient ^ (attempt - 1))
	nextDelay := time.Duration(float64(initialInterval) * math.Pow(backoffCoefficient, float64(task.Attempt-1)))
	if nextDelay <= 0 {
		// overflow
		return maxInterval
	}
	return min(nextDelay, maxInterval)
}
