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

package api

import (
	"time"

	"github.com/DeluxeOwl/chronicle/event"
)

// HistoryEvent is an entry of a run's append-only history.
//
// Events fall in three classes: inputs (facts delivered to the workflow),
// the WorkflowTaskCompleted boundary that closes a decision step, and commands
// (decisions emitted by workflow code). Commands carry a sequence number that is
// allocated in emission order and must be reproduced exactly on replay.
type HistoryEvent interface {
	event.Any

	isHistoryEvent()
}

// Command is a HistoryEvent produced by workflow code.
type Command interface {
	HistoryEvent

	CommandSeq() int64
	// CommandName is the identifying name compared on replay in addition to kind and Seq.
	CommandName() string
}

// Input is a HistoryEvent delivered to workflow code.
type Input interface {
	HistoryEvent

	isInput()
}

// Payload is an encoded value. Encoding names the converter that produced Data.
type Payload struct {
	Encoding string `json:"encoding"`
	Data     []byte `json:"data,omitempty"`
}

// Failure is the persisted form of an error.
type Failure struct {
	Kind         string   `json:"kind"`
	Type         string   `json:"type,omitempty"`
	Message      string   `json:"message"`
	NonRetryable bool     `json:"non_retryable,omitempty"`
	TimeoutKind  string   `json:"timeout_kind,omitempty"`
	Stack        string   `json:"stack,omitempty"`
	ActivityType string   `json:"activity_type,omitempty"`
	Seq          int64    `json:"seq,omitempty"`
	Cause        *Failure `json:"cause,omitempty"`
}

// RetryPolicy is the persisted retry policy of an activity.
type RetryPolicy struct {
	InitialInterval        time.Duration `json:"initial_interval"`
	BackoffCoefficient     float64       `json:"backoff_coefficient"`
	MaximumInterval        time.Duration `json:"maximum_interval"`
	MaximumAttempts        int32         `json:"maximum_attempts"`
	NonRetryableErrorTypes []string      `json:"non_retryable_error_types,omitempty"`
}

// ActivityParameters are the scheduling attributes of an activity.
type ActivityParameters struct {
	TaskList               string        `json:"task_list"`
	ScheduleToCloseTimeout time.Duration `json:"schedule_to_close_timeout"`
	ScheduleToStartTimeout time.Duration `json:"schedule_to_start_timeout"`
	StartToCloseTimeout    time.Duration `json:"start_to_close_timeout"`
	HeartbeatTimeout       time.Duration `json:"heartbeat_timeout"`
	WaitForCancellation    bool          `json:"wait_for_cancellation"`
	RetryPolicy            *RetryPolicy  `json:"retry_policy,omitempty"`
}

var (
	_ Input = (*WorkflowExecutionStarted)(nil)
	_ Input = (*ActivityCompleted)(nil)
	_ Input = (*ActivityFailed)(nil)
	_ Input = (*ActivityTimedOut)(nil)
	_ Input = (*ActivityCanceled)(nil)
	_ Input = (*TimerFired)(nil)
	_ Input = (*SignalReceived)(nil)
	_ Input = (*WorkflowCancelRequested)(nil)

	_ HistoryEvent = (*WorkflowTaskCompleted)(nil)

	_ Command = (*ActivityScheduled)(nil)
	_ Command = (*ActivityCancelRequested)(nil)
	_ Command = (*TimerStarted)(nil)
	_ Command = (*TimerCanceled)(nil)
	_ Command = (*MarkerRecorded)(nil)
	_ Command = (*WorkflowCompleted)(nil)
	_ Command = (*WorkflowFailed)(nil)
	_ Command = (*WorkflowCanceled)(nil)
	_ Command = (*WorkflowContinuedAsNew)(nil)
)

// HistoryEventFuncs lists constructors for every history event, used to register
// event names with the event log deserializer.
func HistoryEventFuncs() event.FuncsFor[HistoryEvent] {
	return event.FuncsFor[HistoryEvent]{
		func() HistoryEvent { return new(WorkflowExecutionStarted) },
		func() HistoryEvent { return new(ActivityCompleted) },
		func() HistoryEvent { return new(ActivityFailed) },
		func() HistoryEvent { return new(ActivityTimedOut) },
		func() HistoryEvent { return new(ActivityCanceled) },
		func() HistoryEvent { return new(TimerFired) },
		func() HistoryEvent { return new(SignalReceived) },
		func() HistoryEvent { return new(WorkflowCancelRequested) },
		func() HistoryEvent { return new(WorkflowTaskCompleted) },
		func() HistoryEvent { return new(ActivityScheduled) },
		func() HistoryEvent { return new(ActivityCancelRequested) },
		func() HistoryEvent { return new(TimerStarted) },
		func() HistoryEvent { return new(TimerCanceled) },
		func() HistoryEvent { return new(MarkerRecorded) },
		func() HistoryEvent { return new(WorkflowCompleted) },
		func() HistoryEvent { return new(WorkflowFailed) },
		func() HistoryEvent { return new(WorkflowCanceled) },
		func() HistoryEvent { return new(WorkflowContinuedAsNew) },
	}
}

// -- Inputs --

type WorkflowExecutionStarted struct {
	WorkflowID         WorkflowID `json:"workflow_id"`
	RunID              RunID      `json:"run_id"`
	WorkflowType       string     `json:"workflow_type"`
	TaskList           string     `json:"task_list"`
	Input              []Payload  `json:"input"`
	ContinuedFromRunID RunID      `json:"continued_from_run_id,omitempty"`
	StartedAt          time.Time  `json:"started_at"`
}

func (*WorkflowExecutionStarted) EventName() string { return "workflow/execution_started" }
func (*WorkflowExecutionStarted) isHistoryEvent()   {}
func (*WorkflowExecutionStarted) isInput()          {}

type ActivityCompleted struct {
	ScheduledSeq int64    `json:"scheduled_seq"`
	Result       *Payload `json:"result,omitempty"`
	Attempt      int32    `json:"attempt"`
}

func (*ActivityCompleted) EventName() string { return "activity/completed" }
func (*ActivityCompleted) isHistoryEvent()   {}
func (*ActivityCompleted) isInput()          {}

type ActivityFailed struct {
	ScheduledSeq int64   `json:"scheduled_seq"`
	Failure      Failure `json:"failure"`
	Attempt      int32   `json:"attempt"`
}

func (*ActivityFailed) EventName() string { return "activity/failed" }
func (*ActivityFailed) isHistoryEvent()   {}
func (*ActivityFailed) isInput()          {}

type ActivityTimedOut struct {
	ScheduledSeq int64  `json:"scheduled_seq"`
	TimeoutKind  string `json:"timeout_kind"`
	Attempt      int32  `json:"attempt"`
}

func (*ActivityTimedOut) EventName() string { return "activity/timed_out" }
func (*ActivityTimedOut) isHistoryEvent()   {}
func (*ActivityTimedOut) isInput()          {}

type ActivityCanceled struct {
	ScheduledSeq int64 `json:"scheduled_seq"`
}

func (*ActivityCanceled) EventName() string { return "activity/canceled" }
func (*ActivityCanceled) isHistoryEvent()   {}
func (*ActivityCanceled) isInput()          {}

type TimerFired struct {
	StartedSeq int64     `json:"started_seq"`
	FiredAt    time.Time `json:"fired_at"`
}

func (*TimerFired) EventName() string { return "timer/fired" }
func (*TimerFired) isHistoryEvent()   {}
func (*TimerFired) isInput()          {}

type SignalReceived struct {
	Name    string   `json:"name"`
	Payload *Payload `json:"payload,omitempty"`
}

func (*SignalReceived) EventName() string { return "signal/received" }
func (*SignalReceived) isHistoryEvent()   {}
func (*SignalReceived) isInput()          {}

type WorkflowCancelRequested struct {
	Reason string `json:"reason,omitempty"`
}

func (*WorkflowCancelRequested) EventName() string { return "workflow/cancel_requested" }
func (*WorkflowCancelRequested) isHistoryEvent()   {}
func (*WorkflowCancelRequested) isInput()          {}

// -- Boundary --

// WorkflowTaskCompleted closes a decision step. Commands recorded after it were
// produced by the step whose inputs precede it.
type WorkflowTaskCompleted struct {
	CompletedAt time.Time `json:"completed_at"`
}

func (*WorkflowTaskCompleted) EventName() string { return "workflow/task_completed" }
func (*WorkflowTaskCompleted) isHistoryEvent()   {}

// -- Commands --

type ActivityScheduled struct {
	Seq          int64              `json:"seq"`
	ActivityType string             `json:"activity_type"`
	Input        []Payload          `json:"input"`
	Parameters   ActivityParameters `json:"parameters"`
}

func (*ActivityScheduled) EventName() string     { return "activity/scheduled" }
func (*ActivityScheduled) isHistoryEvent()       {}
func (e *ActivityScheduled) CommandSeq() int64   { return e.Seq }
func (e *ActivityScheduled) CommandName() string { return e.ActivityType }

type ActivityCancelRequested struct {
	Seq          int64 `json:"seq"`
	ScheduledSeq int64 `json:"scheduled_seq"`
}

func (*ActivityCancelRequested) EventName() string     { return "activity/cancel_requested" }
func (*ActivityCancelRequested) isHistoryEvent()       {}
func (e *ActivityCancelRequested) CommandSeq() int64   { return e.Seq }
func (e *ActivityCancelRequested) CommandName() string { return "" }

type TimerStarted struct {
	Seq      int64         `json:"seq"`
	Duration time.Duration `json:"duration"`
}

func (*TimerStarted) EventName() string     { return "timer/started" }
func (*TimerStarted) isHistoryEvent()       {}
func (e *TimerStarted) CommandSeq() int64   { return e.Seq }
func (e *TimerStarted) CommandName() string { return "" }

type TimerCanceled struct {
	Seq        int64 `json:"seq"`
	StartedSeq int64 `json:"started_seq"`
}

func (*TimerCanceled) EventName() string     { return "timer/canceled" }
func (*TimerCanceled) isHistoryEvent()       {}
func (e *TimerCanceled) CommandSeq() int64   { return e.Seq }
func (e *TimerCanceled) CommandName() string { return "" }

// Marker names.
const (
	MarkerNow        = "now"
	MarkerRandom     = "random"
	MarkerSideEffect = "side_effect"
	MarkerVersion    = "version"
)

// MarkerRecorded stores a value observed once by workflow code (clock, random seed,
// side effect, version) so that replay returns the recorded value.
type MarkerRecorded struct {
	Seq  int64    `json:"seq"`
	Name string   `json:"name"`
	Key  string   `json:"key,omitempty"`
	Data *Payload `json:"data,omitempty"`
}

func (*MarkerRecorded) EventName() string     { return "marker/recorded" }
func (*MarkerRecorded) isHistoryEvent()       {}
func (e *MarkerRecorded) CommandSeq() int64   { return e.Seq }
func (e *MarkerRecorded) CommandName() string { return e.Name + ":" + e.Key }

type WorkflowCompleted struct {
	Seq    int64    `json:"seq"`
	Result *Payload `json:"result,omitempty"`
}

func (*WorkflowCompleted) EventName() string     { return "workflow/completed" }
func (*WorkflowCompleted) isHistoryEvent()       {}
func (e *WorkflowCompleted) CommandSeq() int64   { return e.Seq }
func (e *WorkflowCompleted) CommandName() string { return "" }

type WorkflowFailed struct {
	Seq     int64   `json:"seq"`
	Failure Failure `json:"failure"`
}

func (*WorkflowFailed) EventName() string     { return "workflow/failed" }
func (*WorkflowFailed) isHistoryEvent()       {}
func (e *WorkflowFailed) CommandSeq() int64   { return e.Seq }
func (e *WorkflowFailed) CommandName() string { return "" }

type WorkflowCanceled struct {
	Seq int64 `json:"seq"`
}

func (*WorkflowCanceled) EventName() string     { return "workflow/canceled" }
func (*WorkflowCanceled) isHistoryEvent()       {}
func (e *WorkflowCanceled) CommandSeq() int64   { return e.Seq }
func (e *WorkflowCanceled) CommandName() string { return "" }

// WorkflowContinuedAsNew closes the run and names its successor. The successor
// starts with the carried input and an empty history.
type WorkflowContinuedAsNew struct {
	Seq          int64     `json:"seq"`
	NewRunID     RunID     `json:"new_run_id"`
	WorkflowType string    `json:"workflow_type"`
	TaskList     string    `json:"task_list"`
	Input        []Payload `json:"input"`
}

func (*WorkflowContinuedAsNew) EventName() string     { return "workflow/continued_as_new" }
func (*WorkflowContinuedAsNew) isHistoryEvent()       {}
func (e *WorkflowContinuedAsNew) CommandSeq() int64   { return e.Seq }
func (e *WorkflowContinuedAsNew) CommandName() string { return e.WorkflowType }

// IsTerminal reports whether e closes a run.
func IsTerminal(e HistoryEvent) bool {
	switch e.(type) {
	case *WorkflowCompleted, *WorkflowFailed, *WorkflowCanceled, *WorkflowContinuedAsNew:
		return true
	}
	return false
}

// -- Run index --

// RunEvent is an event of the per-workflow run index, which tracks the chain of
// runs sharing a workflow id.
type RunEvent interface {
	event.Any

	isRunEvent()
}

func RunEventFuncs() event.FuncsFor[RunEvent] {
	return event.FuncsFor[RunEvent]{
		func() RunEvent { return new(RunStarted) },
	}
}

type RunStarted struct {
	WorkflowID         WorkflowID `json:"workflow_id"`
	RunID              RunID      `json:"run_id"`
	WorkflowType       string     `json:"workflow_type"`
	TaskList           string     `json:"task_list"`
	ContinuedFromRunID RunID      `json:"continued_from_run_id,omitempty"`
	StartedAt          time.Time  `json:"started_at"`
}

func (*RunStarted) EventName() string { return "run/started" }
func (*RunStarted) isRunEvent()       {}
