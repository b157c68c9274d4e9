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

import "fmt"

// Selector waits on several channels and futures at once, like a native select.
type Selector interface {
	AddReceive(c ReceiveChannel, fn func(c ReceiveChannel, more bool)) Selector
	AddSend(c SendChannel, v any, fn func()) Selector
	AddFuture(f Future, fn func(f Future)) Selector
	AddDefault(fn func())
	// Select blocks until one case is ready and runs exactly one callback. Among
	// ready cases the one that became ready first wins; cases that became ready
	// at the same instant are chosen by registration order.
	Select(ctx Context)
	// HasPending reports whether a case (other than default) is ready now.
	HasPending() bool
}

type (
	selectorImpl struct {
		name      string
		cases     []*selectCase
		defaultFn func()
	}

	selectCase struct {
		recv      *channelImpl
		recvFn    func(c ReceiveChannel, more bool)
		send      *channelImpl
		sendValue any
		sendFn    func()
		future    *futureImpl
		futureFn  func(f Future)
		// fired is set once a future case has run; it never fires again.
		fired bool
	}
)

var _ Selector = (*selectorImpl)(nil)

// NewSelector returns an empty Selector.
func NewSelector(ctx Context) Selector {
	getExecutor(ctx)
	return &selectorImpl{}
}

// NewNamedSelector returns an empty Selector carrying name in error messages.
func NewNamedSelector(ctx Context, name string) Selector {
	getExecutor(ctx)
	return &selectorImpl{name: name}
}

func (s *selectorImpl) AddReceive(c ReceiveChannel, fn func(c ReceiveChannel, more bool)) Selector {
	s.cases = append(s.cases, &selectCase{recv: asChannelImpl(c), recvFn: fn})
	return s
}

func (s *selectorImpl) AddSend(c SendChannel, v any, fn func()) Selector {
	s.cases = append(s.cases, &selectCase{send: asChannelImpl(c), sendValue: v, sendFn: fn})
	return s
}

func (s *selectorImpl) AddFuture(f Future, fn func(f Future)) Selector {
	impl, ok := f.(*futureImpl)
	if !ok {
		panic(&ProgrammingError{Message: fmt.Sprintf("selector %q: unsupported future %T", s.name, f)})
	}
	s.cases = append(s.cases, &selectCase{future: impl, futureFn: fn})
	return s
}

func (s *selectorImpl) AddDefault(fn func()) { s.defaultFn = fn }

func (s *selectorImpl) HasPending() bool {
	_, ok := s.pick()
	return ok
}

func (s *selectorImpl) Select(_ Context) {
	for {
		if sc, ok := s.pick(); ok {
			s.run(sc)
			return
		}
		if s.defaultFn != nil {
			s.defaultFn()
			return
		}
		if len(s.cases) == 0 {
			panic(&ProgrammingError{Message: fmt.Sprintf("selector %q has no cases", s.name)})
		}
		var (
			d         *dispatcher
			receiving []*channelImpl
		)
		queues := make([]*waitQueue, 0, len(s.cases))
		for _, sc := range s.cases {
			switch {
			case sc.recv != nil:
				d = sc.recv.d
				queues = append(queues, &sc.recv.recvQueue)
				receiving = append(receiving, sc.recv)
			case sc.send != nil:
				d = sc.send.d
				queues = append(queues, &sc.send.sendQueue)
			case sc.future != nil && !sc.fired:
				d = sc.future.d
				queues = append(queues, &sc.future.waiters)
			}
		}
		if d == nil {
			panic(&ProgrammingError{Message: fmt.Sprintf("selector %q has no case left to wait on", s.name)})
		}
		cs := d.currentState()
		for _, c := range receiving {
			c.addReceiver()
		}
		cs.park(queues...)
		for _, c := range receiving {
			c.receivers--
		}
	}
}

// pick returns the ready case with the smallest readiness instant. Send cases
// count as ready since the beginning of the execution. A value handed to this
// selector by an unbuffered send stays on the channel if another case wins.
func (s *selectorImpl) pick() (*selectCase, bool) {
	var (
		best   *selectCase
		bestAt int64
	)
	for _, sc := range s.cases {
		at, ok := sc.readyAt()
		if !ok {
			continue
		}
		if best == nil || at < bestAt {
			best, bestAt = sc, at
		}
	}
	return best, best != nil
}

func (sc *selectCase) readyAt() (int64, bool) {
	switch {
	case sc.recv != nil:
		return sc.recv.readySince()
	case sc.send != nil:
		if !sc.send.canSend() {
			return 0, false
		}
		return 0, true
	case sc.future != nil:
		if sc.fired || !sc.future.ready {
			return 0, false
		}
		return sc.future.settledAt, true
	}
	return 0, false
}

func (s *selectorImpl) run(sc *selectCase) {
	switch {
	case sc.recv != nil:
		if sc.recvFn != nil {
			sc.recvFn(sc.recv, !sc.recv.closed || sc.recv.Len() > 0 || len(sc.recv.blockedSends) > 0)
		}
	case sc.send != nil:
		sc.send.SendAsync(sc.sendValue)
		if sc.sendFn != nil {
			sc.sendFn()
		}
	case sc.future != nil:
		sc.fired = true
		if sc.futureFn != nil {
			sc.futureFn(sc.future)
		}
	}
}

func asChannelImpl(c any) *channelImpl {
	impl, ok := c.(*channelImpl)
	if !ok {
		panic(&ProgrammingError{Message: fmt.Sprintf("unsupported channel %T", c)})
	}
	return impl
}
