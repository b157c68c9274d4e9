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
	"fmt"
	"time"

	"github.com/DeluxeOwl/chronicle/aggregate"
	"github.com/DeluxeOwl/chronicle/event"
	"github.com/ngnhng/durablereplay/api"
)

var (
	_ aggregate.Root[api.ExecutionKey, api.HistoryEvent] = (*workflowRun)(nil)
	_ aggregate.Root[runIndexID, api.RunEvent]           = (*runIndex)(nil)
)

// workflowRun is the event-sourced history of one run. Besides the raw history
// it tracks what the worker must still act on: inputs not yet consumed by a
// workflow task, activities in flight and timers not yet fired.
type workflowRun struct {
	aggregate.Base

	id           api.ExecutionKey
	workflowType string
	taskList     string
	history      []api.HistoryEvent
	closed       bool
	terminal     api.Command

	// pendingInputs counts inputs recorded after the last task boundary.
	pendingInputs   int
	lastCompletedAt time.Time
	activities      map[int64]*api.ActivityScheduled
	timers          map[int64]time.Time
}

func newWorkflowRun() *workflowRun {
	return &workflowRun{
		activities: make(map[int64]*api.ActivityScheduled),
		timers:     make(map[int64]time.Time),
	}
}

func (r *workflowRun) ID() api.ExecutionKey { return r.id }

func (r *workflowRun) EventFuncs() event.FuncsFor[api.HistoryEvent] {
	return api.HistoryEventFuncs()
}

func (r *workflowRun) Apply(evt api.HistoryEvent) error {
	if len(r.history) == 0 {
		started, ok := evt.(*api.WorkflowExecutionStarted)
		if !ok {
			return fmt.Errorf("run history must begin with %s, got %s", (*api.WorkflowExecutionStarted)(nil).EventName(), evt.EventName())
		}
		r.id = api.ExecutionKey{WorkflowID: started.WorkflowID, RunID: started.RunID}
		r.workflowType = started.WorkflowType
		r.taskList = started.TaskList
	} else if r.closed {
		return fmt.Errorf("%w: %s", ErrWorkflowClosed, r.id)
	}
	r.history = append(r.history, evt)

	switch e := evt.(type) {
	case api.Input:
		r.pendingInputs++
		switch in := e.(type) {
		case *api.ActivityCompleted:
			delete(r.activities, in.ScheduledSeq)
		case *api.ActivityFailed:
			delete(r.activities, in.ScheduledSeq)
		case *api.ActivityTimedOut:
			delete(r.activities, in.ScheduledSeq)
		case *api.ActivityCanceled:
			delete(r.activities, in.ScheduledSeq)
		case *api.TimerFired:
			delete(r.timers, in.StartedSeq)
		}
	case *api.WorkflowTaskCompleted:
		r.pendingInputs = 0
		r.lastCompletedAt = e.CompletedAt
	case *api.ActivityScheduled:
		r.activities[e.Seq] = e
	case *api.TimerStarted:
		r.timers[e.Seq] = r.lastCompletedAt.Add(e.Duration)
	case *api.TimerCanceled:
		delete(r.timers, e.StartedSeq)
	case api.Command:
		if api.IsTerminal(e) {
			r.closed = true
			r.terminal = e
		}
	}
	return nil
}

func (r *workflowRun) record(events ...api.HistoryEvent) error {
	return aggregate.RecordEvents(r, events...)
}

// needsWorkflowTask reports whether inputs are waiting for a decision step.
func (r *workflowRun) needsWorkflowTask() bool {
	return !r.closed && r.pendingInputs > 0
}

func (r *workflowRun) activityPending(seq int64) bool {
	_, ok := r.activities[seq]
	return ok
}

func (r *workflowRun) timerPending(seq int64) bool {
	_, ok := r.timers[seq]
	return ok
}

// timerFireAt returns when a pending timer is due. Timers are measured from the
// boundary of the step that started them.
func (r *workflowRun) timerFireAt(seq int64) (time.Time, bool) {
	at, ok := r.timers[seq]
	return at, ok
}

// runIndexID names the log of runs sharing a workflow id.
type runIndexID api.WorkflowID

func (id runIndexID) String() string { return "runs/" + string(id) }

// runIndex is the event-sourced chain of runs of one workflow id. The latest
// entry is the current run.
type runIndex struct {
	aggregate.Base

	id   runIndexID
	runs []*api.RunStarted
}

func newRunIndex() *runIndex { return &runIndex{} }

func (x *runIndex) ID() runIndexID { return x.id }

func (x *runIndex) EventFuncs() event.FuncsFor[api.RunEvent] {
	return api.RunEventFuncs()
}

func (x *runIndex) Apply(evt api.RunEvent) error {
	switch e := evt.(type) {
	case *api.RunStarted:
		x.id = runIndexID(e.WorkflowID)
		x.runs = append(x.runs, e)
	default:
		return fmt.Errorf("unexpected run index event %T", evt)
	}
	return nil
}

func (x *runIndex) current() (*api.RunStarted, bool) {
	if len(x.runs) == 0 {
		return nil, false
	}
	return x.runs[len(x.runs)-1], true
}
