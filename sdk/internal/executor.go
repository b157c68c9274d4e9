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
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/ngnhng/durablereplay/api"
	"github.com/ngnhng/durablereplay/api/serde"
)

// WorkflowInfo describes the running workflow execution.
type WorkflowInfo struct {
	WorkflowID         api.WorkflowID
	RunID              api.RunID
	WorkflowType       string
	TaskList           string
	ContinuedFromRunID api.RunID
	StartedAt          time.Time
}

// Execution returns the identity of the run.
func (i *WorkflowInfo) Execution() api.ExecutionKey {
	return api.ExecutionKey{WorkflowID: i.WorkflowID, RunID: i.RunID}
}

type executorOptions struct {
	registry        *registry
	converter       serde.DataConverter
	logger          *slog.Logger
	deadlockTimeout time.Duration
}

// decision is the outcome of running a workflow task.
type decision struct {
	// Commands produced by the trailing step, in emission order.
	Commands []api.Command
	// Failure is set when the task failed fatally (non-determinism, panic or a
	// runtime misuse). Commands then holds the WorkflowFailed that closes the run.
	Failure error
}

// workflowExecutor rebuilds a workflow execution from its history. Every
// completed step is replayed and checked against the commands it recorded; the
// inputs after the last step are then run live.
type workflowExecutor struct {
	executorOptions

	info  WorkflowInfo
	input []api.Payload
	d     *dispatcher
	types *serde.TypeConverter
	root  *cancelCtx

	seq       int64
	replaying bool
	markers   map[int64]*api.MarkerRecorded
	versions  map[string]Version
	expected  []api.Command
	produced  []api.Command

	activities map[int64]*activityState
	timers     map[int64]*timerState
	settled    map[int64]bool
	signals    map[string]*channelImpl

	started         bool
	cancelRequested bool
	closed          bool
	// returned is set once execute is done. Workflow code still running after
	// that belongs to a leaked coroutine and must not touch the decision.
	returned atomic.Bool
	// failure is a workflow code failure (panic, deadlock) that closed the run.
	failure error
}

type (
	activityState struct {
		activityType    string
		future          *futureImpl
		removeCancel    func()
		waitForCancel   bool
		cancelRequested bool
	}

	timerState struct {
		future       *futureImpl
		removeCancel func()
	}
)

func newWorkflowExecutor(opts executorOptions) *workflowExecutor {
	if opts.converter == nil {
		opts.converter = serde.NewDataConverter(nil)
	}
	opts.logger = defaultLogger(opts.logger)
	return &workflowExecutor{
		executorOptions: opts,
		d:               newDispatcher(opts.deadlockTimeout),
		types:           serde.NewTypeConverter(&serde.MsgpackSerde{}),
		versions:        make(map[string]Version),
		activities:      make(map[int64]*activityState),
		timers:          make(map[int64]*timerState),
		settled:         make(map[int64]bool),
		signals:         make(map[string]*channelImpl),
	}
}

// execute runs history through workflow code. An error is returned only when the
// history cannot be interpreted at all; workflow and determinism failures are
// reported through the decision.
func (e *workflowExecutor) execute(history []api.HistoryEvent) (*decision, error) {
	steps, pending, err := splitSteps(history)
	if err != nil {
		return nil, err
	}
	defer e.close()

	e.markers = indexMarkers(history)
	e.replaying = true
	for _, step := range steps {
		e.expected, e.produced = step.commands, nil
		if err := e.runStep(step.inputs); err != nil {
			return e.fatal(history, err), nil
		}
		if len(e.produced) < len(e.expected) {
			return e.fatal(history, mismatch(e.expected[len(e.produced)], nil)), nil
		}
	}
	e.replaying = false
	e.expected, e.produced = nil, nil

	if e.closed || len(pending) == 0 {
		return &decision{}, nil
	}
	if err := e.runStep(pending); err != nil {
		return e.fatal(history, err), nil
	}
	return &decision{Commands: e.produced, Failure: e.failure}, nil
}

// runStep applies inputs one logical instant each, then runs workflow code until
// every coroutine is blocked. Only non-determinism is returned; workflow code
// failures close the run with WorkflowFailed.
func (e *workflowExecutor) runStep(inputs []api.Input) (err error) {
	defer func() {
		if r := recover(); r != nil {
			nde, ok := r.(*NonDeterminismError)
			if !ok {
				panic(r)
			}
			err = nde
		}
	}()

	for _, in := range inputs {
		e.d.tick()
		if err := e.apply(in); err != nil {
			return err
		}
	}
	if err := e.d.runUntilBlocked(); err != nil {
		var nde *NonDeterminismError
		if errors.As(err, &nde) {
			return nde
		}
		e.logger.Error("workflow task failed",
			slog.String("workflow_id", string(e.info.WorkflowID)),
			slog.String("run_id", string(e.info.RunID)),
			slog.Any("error", err))
		e.failure = err
		if !e.closed {
			e.emit(&api.WorkflowFailed{Seq: e.nextSeq(), Failure: errorToFailure(err)})
		}
	}
	return nil
}

func (e *workflowExecutor) fatal(history []api.HistoryEvent, err error) *decision {
	seq := max(maxSeq(history), e.seq) + 1
	e.logger.Error("workflow execution failed fatally",
		slog.String("workflow_id", string(e.info.WorkflowID)),
		slog.String("run_id", string(e.info.RunID)),
		slog.Any("error", err))
	return &decision{
		Commands: []api.Command{&api.WorkflowFailed{Seq: seq, Failure: errorToFailure(err)}},
		Failure:  err,
	}
}

func (e *workflowExecutor) close() {
	e.returned.Store(true)
	if leaked := e.d.close(); len(leaked) > 0 {
		e.logger.Warn("workflow coroutines leaked",
			slog.String("workflow_id", string(e.info.WorkflowID)),
			slog.String("run_id", string(e.info.RunID)),
			slog.Any("coroutines", leaked))
	}
}

func (e *workflowExecutor) checkLive() {
	if e.returned.Load() {
		panic(&ProgrammingError{Message: "workflow call made after the workflow task returned"})
	}
}

func (e *workflowExecutor) nextSeq() int64 {
	e.checkLive()
	e.seq++
	return e.seq
}

// emit records a command. While replaying, the command must match the next one
// recorded for the step; the recorded command is returned so that values chosen
// when it was first produced are reused.
func (e *workflowExecutor) emit(cmd api.Command) api.Command {
	e.checkLive()
	if e.closed {
		return cmd
	}
	if e.replaying {
		var recorded api.Command
		if idx := len(e.produced); idx < len(e.expected) {
			recorded = e.expected[idx]
		}
		if recorded == nil || !sameCommand(recorded, cmd) {
			panic(mismatch(recorded, cmd))
		}
		cmd = recorded
	}
	e.produced = append(e.produced, cmd)
	if api.IsTerminal(cmd) {
		e.closed = true
	}
	return cmd
}

func (e *workflowExecutor) apply(in api.Input) error {
	switch ev := in.(type) {
	case *api.WorkflowExecutionStarted:
		return e.start(ev)
	case *api.ActivityCompleted:
		return e.resolveActivity(ev.ScheduledSeq, ev.Result, nil)
	case *api.ActivityFailed:
		failure := ev.Failure
		return e.resolveActivity(ev.ScheduledSeq, nil, failureToError(&failure))
	case *api.ActivityTimedOut:
		return e.resolveActivity(ev.ScheduledSeq, nil, NewTimeoutError(TimeoutKind(ev.TimeoutKind)))
	case *api.ActivityCanceled:
		return e.resolveActivity(ev.ScheduledSeq, nil, NewCanceledError("activity canceled"))
	case *api.TimerFired:
		return e.fireTimer(ev.StartedSeq)
	case *api.SignalReceived:
		e.signalChannel(ev.Name).SendAsync(ev.Payload)
		return nil
	case *api.WorkflowCancelRequested:
		if e.cancelRequested || e.root == nil {
			return nil
		}
		e.cancelRequested = true
		e.root.cancel(NewCanceledError(ev.Reason))
		return nil
	}
	return fmt.Errorf("unsupported input %T", in)
}

func (e *workflowExecutor) start(ev *api.WorkflowExecutionStarted) error {
	if e.started {
		return &NonDeterminismError{Message: "history starts the execution twice"}
	}
	e.started = true
	e.info = WorkflowInfo{
		WorkflowID:         ev.WorkflowID,
		RunID:              ev.RunID,
		WorkflowType:       ev.WorkflowType,
		TaskList:           ev.TaskList,
		ContinuedFromRunID: ev.ContinuedFromRunID,
		StartedAt:          ev.StartedAt,
	}
	e.input = ev.Input
	e.root = newCancelCtx(&backgroundCtx{executor: e})
	e.d.spawn(e.root, "root", e.runWorkflow)
	return nil
}

func (e *workflowExecutor) runWorkflow(ctx Context) {
	fn, err := e.registry.workflow(e.info.WorkflowType)
	if err != nil {
		e.complete(nil, err)
		return
	}
	fnv := reflect.ValueOf(fn)
	args, err := decodeArguments(fnv.Type(), len(e.input), func(i int, ptr any) error {
		return e.converter.FromPayload(&e.input[i], ptr)
	})
	if err != nil {
		e.complete(nil, NewApplicationError(err.Error(), "InvalidArgument", true, nil))
		return
	}
	out := fnv.Call(append([]reflect.Value{reflect.ValueOf(ctx)}, args...))
	e.complete(splitResults(out))
}

// complete turns the return of the workflow function into its terminal command.
func (e *workflowExecutor) complete(result any, err error) {
	var continueAsNew *ContinueAsNewError
	switch {
	case err == nil:
		payload, encErr := e.converter.ToPayload(result)
		if encErr != nil {
			e.emit(&api.WorkflowFailed{Seq: e.nextSeq(), Failure: errorToFailure(fmt.Errorf("encode workflow result: %w", encErr))})
			return
		}
		e.emit(&api.WorkflowCompleted{Seq: e.nextSeq(), Result: payload})
	case errors.As(err, &continueAsNew):
		taskList := continueAsNew.TaskList
		if taskList == "" {
			taskList = e.info.TaskList
		}
		e.emit(&api.WorkflowContinuedAsNew{
			Seq:          e.nextSeq(),
			NewRunID:     api.RunID(uuid.Must(uuid.NewV7()).String()),
			WorkflowType: continueAsNew.WorkflowType,
			TaskList:     taskList,
			Input:        continueAsNew.Input,
		})
	case e.cancelRequested && IsCanceledError(err):
		e.emit(&api.WorkflowCanceled{Seq: e.nextSeq()})
	default:
		e.emit(&api.WorkflowFailed{Seq: e.nextSeq(), Failure: errorToFailure(err)})
	}
}

func (e *workflowExecutor) newFuture() *futureImpl {
	return &futureImpl{d: e.d, types: e.types, converter: e.converter}
}

func (e *workflowExecutor) resolveActivity(seq int64, result *api.Payload, cause error) error {
	st, ok := e.activities[seq]
	if !ok {
		if e.settled[seq] {
			return nil
		}
		return &NonDeterminismError{Seq: seq, Message: fmt.Sprintf("history resolves activity #%d that the workflow never scheduled", seq)}
	}
	delete(e.activities, seq)
	e.settled[seq] = true
	st.removeCancel()
	if cause != nil {
		st.future.SetError(&ActivityError{ActivityType: st.activityType, ScheduledSeq: seq, Cause: cause})
		return nil
	}
	if result == nil {
		st.future.SetValue(nil)
		return nil
	}
	st.future.SetValue(result)
	return nil
}

func (e *workflowExecutor) fireTimer(seq int64) error {
	st, ok := e.timers[seq]
	if !ok {
		if e.settled[seq] {
			return nil
		}
		return &NonDeterminismError{Seq: seq, Message: fmt.Sprintf("history fires timer #%d that the workflow never started", seq)}
	}
	delete(e.timers, seq)
	e.settled[seq] = true
	st.removeCancel()
	st.future.SetValue(nil)
	return nil
}

func (e *workflowExecutor) signalChannel(name string) *channelImpl {
	ch, ok := e.signals[name]
	if !ok {
		ch = newUnboundedChannel(e.d, name, e.types, e.converter)
		e.signals[name] = ch
	}
	return ch
}
