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
	"time"

	"github.com/ngnhng/durablereplay/api"
)

// NewTimer returns a Future that becomes ready after d of workflow time. A
// non-positive duration is ready at once and records nothing. Cancelling ctx
// cancels the timer and fails the future with a CanceledError.
func NewTimer(ctx Context, d time.Duration) Future {
	e := getExecutor(ctx)
	f := e.newFuture()
	if err := ctx.Err(); err != nil {
		f.SetError(err)
		return f
	}
	if d <= 0 {
		f.SetValue(nil)
		return f
	}

	seq := e.nextSeq()
	e.emit(&api.TimerStarted{Seq: seq, Duration: d})
	st := &timerState{future: f}
	e.timers[seq] = st
	st.removeCancel = onCancel(ctx, func() { e.cancelTimer(seq) })
	return f
}

// Sleep blocks the coroutine for d of workflow time.
func Sleep(ctx Context, d time.Duration) error {
	return NewTimer(ctx, d).Get(ctx, nil)
}

func (e *workflowExecutor) cancelTimer(seq int64) {
	st, ok := e.timers[seq]
	if !ok {
		return
	}
	delete(e.timers, seq)
	e.settled[seq] = true
	e.emit(&api.TimerCanceled{Seq: e.nextSeq(), StartedSeq: seq})
	st.future.SetError(NewCanceledError("timer canceled"))
}
