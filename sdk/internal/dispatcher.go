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
	"runtime"
	"runtime/debug"
	"slices"
	"sync/atomic"
	"time"
)

const defaultDeadlockDetectionTimeout = time.Second

type (
	// dispatcher runs the coroutines of one workflow execution. Coroutines are
	// goroutines, but control is handed over explicitly so exactly one of them
	// (or the dispatcher itself) runs at any instant.
	dispatcher struct {
		coroutines []*coroutineState
		ready      []*coroutineState
		current    *coroutineState
		sequence   int
		// epoch is the logical instant. It advances every time a coroutine is
		// resumed and every time an input is applied from history.
		epoch           int64
		running         bool
		closed          bool
		deadlockTimeout time.Duration
	}

	coroutineState struct {
		name string
		id   int
		d    *dispatcher
		fn   func(ctx Context)
		ctx  Context

		resume  chan struct{}
		yielded chan struct{}

		started  bool
		queued   bool
		finished bool
		stuck    bool
		panicErr error
		// closing is also read by a stuck coroutine once it unblocks.
		closing atomic.Bool
	}

	// waitQueue holds coroutines parked on a primitive until its state changes.
	waitQueue struct {
		waiters []*coroutineState
	}
)

func newDispatcher(deadlockTimeout time.Duration) *dispatcher {
	if deadlockTimeout <= 0 {
		deadlockTimeout = defaultDeadlockDetectionTimeout
	}
	return &dispatcher{deadlockTimeout: deadlockTimeout}
}

// spawn creates a coroutine and queues it. It does not start running until the
// next runUntilBlocked reaches it.
func (d *dispatcher) spawn(ctx Context, name string, fn func(ctx Context)) *coroutineState {
	d.sequence++
	if name == "" {
		name = fmt.Sprintf("coroutine-%d", d.sequence)
	}
	cs := &coroutineState{
		name:    name,
		id:      d.sequence,
		d:       d,
		fn:      fn,
		ctx:     ctx,
		resume:  make(chan struct{}),
		yielded: make(chan struct{}, 1),
	}
	d.coroutines = append(d.coroutines, cs)
	d.wake(cs)
	return cs
}

// wake appends cs to the ready queue unless it is already queued or done.
func (d *dispatcher) wake(cs *coroutineState) {
	if d.closed || cs.finished || cs.queued {
		return
	}
	cs.queued = true
	d.ready = append(d.ready, cs)
}

// tick advances the logical instant; called before each input is applied.
func (d *dispatcher) tick() { d.epoch++ }

// runUntilBlocked resumes ready coroutines in queue order until none is ready.
// A panic in workflow code or a coroutine that never yields aborts the run.
func (d *dispatcher) runUntilBlocked() error {
	if d.closed {
		return &ProgrammingError{Message: "dispatcher is closed"}
	}
	if d.running {
		return &ProgrammingError{Message: "dispatcher re-entered from a coroutine"}
	}
	d.running = true
	defer func() { d.running = false }()

	for len(d.ready) > 0 {
		cs := d.ready[0]
		d.ready[0] = nil
		d.ready = d.ready[1:]
		cs.queued = false
		if cs.finished {
			continue
		}

		d.epoch++
		d.current = cs
		err := d.resume(cs)
		d.current = nil
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *dispatcher) resume(cs *coroutineState) error {
	if !cs.started {
		cs.started = true
		go cs.call()
	} else {
		cs.resume <- struct{}{}
	}

	timer := time.NewTimer(d.deadlockTimeout)
	defer timer.Stop()
	select {
	case <-cs.yielded:
	case <-timer.C:
		cs.stuck = true
		return &ProgrammingError{Message: fmt.Sprintf(
			"coroutine %q did not yield within %v, it is likely blocked on a native Go primitive",
			cs.name, d.deadlockTimeout)}
	}
	if cs.panicErr != nil {
		return cs.panicErr
	}
	return nil
}

// close unwinds every live coroutine. Deferred functions in workflow code run,
// but any blocking call they make exits immediately. It returns the names of
// the coroutines left blocked outside the dispatcher; each one exits at its
// next workflow call once it unblocks.
func (d *dispatcher) close() []string {
	if d.closed {
		return nil
	}
	d.closed = true
	d.ready = nil
	var leaked []string
	for _, cs := range d.coroutines {
		if !cs.started {
			continue
		}
		if cs.stuck {
			cs.closing.Store(true)
			leaked = append(leaked, cs.name)
			continue
		}
		if cs.finished {
			continue
		}
		cs.closing.Store(true)
		cs.resume <- struct{}{}
		select {
		case <-cs.yielded:
		case <-time.After(d.deadlockTimeout):
			cs.stuck = true
			leaked = append(leaked, cs.name)
		}
	}
	return leaked
}

// currentState returns the running coroutine. Blocking primitives use it to
// park themselves; calling one from outside a coroutine is a programming error.
func (d *dispatcher) currentState() *coroutineState {
	if d.current == nil {
		panic(&ProgrammingError{Message: "blocking workflow call made outside of a workflow coroutine"})
	}
	return d.current
}

func (s *coroutineState) call() {
	defer func() {
		if r := recover(); r != nil {
			s.panicErr = recoveredError(r)
		}
		s.finished = true
		s.yielded <- struct{}{}
	}()
	s.fn(s.ctx)
}

// recoveredError keeps runtime errors raised by the workflow runtime itself and
// wraps anything else as a PanicError.
func recoveredError(r any) error {
	switch err := r.(type) {
	case *NonDeterminismError:
		return err
	case *ProgrammingError:
		return err
	}
	return &PanicError{Value: r, Stack: string(debug.Stack())}
}

// yield hands control back to the dispatcher and blocks until resumed.
func (s *coroutineState) yield() {
	if s.closing.Load() {
		runtime.Goexit()
	}
	s.yielded <- struct{}{}
	<-s.resume
	if s.closing.Load() {
		runtime.Goexit()
	}
}

// park suspends the coroutine until one of the queues wakes it.
func (s *coroutineState) park(queues ...*waitQueue) {
	for _, q := range queues {
		q.add(s)
	}
	s.yield()
	for _, q := range queues {
		q.remove(s)
	}
}

// yieldNow requeues the coroutine behind every ready one.
func (s *coroutineState) yieldNow() {
	s.d.wake(s)
	s.yield()
}

func (q *waitQueue) add(cs *coroutineState) {
	if slices.Contains(q.waiters, cs) {
		return
	}
	q.waiters = append(q.waiters, cs)
}

func (q *waitQueue) remove(cs *coroutineState) {
	q.waiters = slices.DeleteFunc(q.waiters, func(w *coroutineState) bool { return w == cs })
}

func (q *waitQueue) wakeAll() {
	waiters := q.waiters
	q.waiters = nil
	for _, cs := range waiters {
		cs.d.wake(cs)
	}
}

func (q *waitQueue) len() int { return len(q.waiters) }
