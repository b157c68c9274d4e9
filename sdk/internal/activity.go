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
	"github.com/ngnhng/durablereplay/api"
)

// ExecuteActivity schedules an activity and returns a Future for its result
// without blocking. activity is a registered function or its registered name.
// The options attached with WithActivityOptions apply; cancelling ctx requests
// cancellation of the activity.
func ExecuteActivity(ctx Context, activity any, args ...any) Future {
	e := getExecutor(ctx)
	f := e.newFuture()

	name, err := functionName(activity)
	if err != nil {
		f.SetError(err)
		return f
	}
	opts := GetActivityOptions(ctx)
	if err := opts.validate(); err != nil {
		f.SetError(err)
		return f
	}
	if err := ctx.Err(); err != nil {
		f.SetError(err)
		return f
	}
	input, err := e.converter.ToPayloads(args...)
	if err != nil {
		f.SetError(err)
		return f
	}

	seq := e.nextSeq()
	e.emit(&api.ActivityScheduled{
		Seq:          seq,
		ActivityType: name,
		Input:        input,
		Parameters:   opts.toParameters(e.info.TaskList),
	})
	st := &activityState{activityType: name, future: f, waitForCancel: opts.WaitForCancellation}
	e.activities[seq] = st
	st.removeCancel = onCancel(ctx, func() { e.cancelActivity(seq) })
	return f
}

// cancelActivity records the cancellation request. Unless the activity waits for
// cancellation, its future resolves with a CanceledError right away and a late
// result is dropped.
func (e *workflowExecutor) cancelActivity(seq int64) {
	st, ok := e.activities[seq]
	if !ok || st.cancelRequested {
		return
	}
	st.cancelRequested = true
	e.emit(&api.ActivityCancelRequested{Seq: e.nextSeq(), ScheduledSeq: seq})
	if st.waitForCancel {
		return
	}
	delete(e.activities, seq)
	e.settled[seq] = true
	st.future.SetError(&ActivityError{
		ActivityType: st.activityType,
		ScheduledSeq: seq,
		Cause:        NewCanceledError("activity canceled"),
	})
}
