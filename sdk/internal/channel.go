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
	"reflect"

	"github.com/ngnhng/durablereplay/api"
	"github.com/ngnhng/durablereplay/api/serde"
)

type (
	// SendChannel is the sending half of a workflow Channel.
	SendChannel interface {
		Name() string
		// Send blocks the calling coroutine until the value is buffered or taken by a receiver.
		Send(ctx Context, v any)
		// SendAsync sends without blocking and reports whether the value was accepted.
		SendAsync(v any) (ok bool)
		Close()
	}

	// ReceiveChannel is the receiving half of a workflow Channel.
	ReceiveChannel interface {
		Name() string
		// Receive blocks until a value is available. more is false once the
		// channel is closed and drained.
		Receive(ctx Context, valuePtr any) (more bool)
		ReceiveAsync(valuePtr any) (ok bool)
		ReceiveWithMoreFlag(valuePtr any) (ok bool, more bool)
		Len() int
	}

	// Channel is a deterministic replacement for a native Go channel. It may only
	// be used from workflow coroutines.
	Channel interface {
		SendChannel
		ReceiveChannel
	}

	channelImpl struct {
		d         *dispatcher
		converter serde.DataConverter
		types     *serde.TypeConverter
		name      string
		size      int
		unbounded bool

		buffer       []bufferedValue
		blockedSends []*sendRequest
		// receivers counts coroutines parked to receive, in Receive or in a
		// selector, which an unbuffered SendAsync may hand a value to.
		receivers int
		closed    bool
		closedAt  int64

		recvQueue waitQueue
		sendQueue waitQueue
	}

	// bufferedValue remembers the instant a value was sent. Selectors order
	// receive cases by the arrival of each channel's head value.
	bufferedValue struct {
		value any
		at    int64
	}

	sendRequest struct {
		value    any
		at       int64
		accepted bool
		waiter   waitQueue
	}
)

var _ Channel = (*channelImpl)(nil)

func newChannel(d *dispatcher, name string, size int, types *serde.TypeConverter) *channelImpl {
	return &channelImpl{d: d, name: name, size: size, types: types}
}

func newUnboundedChannel(d *dispatcher, name string, types *serde.TypeConverter, converter serde.DataConverter) *channelImpl {
	return &channelImpl{d: d, name: name, unbounded: true, types: types, converter: converter}
}

func (c *channelImpl) Name() string { return c.name }

func (c *channelImpl) Len() int { return len(c.buffer) }

func (c *channelImpl) Send(_ Context, v any) {
	if c.closed {
		panic(&ProgrammingError{Message: fmt.Sprintf("send on closed channel %q", c.name)})
	}
	if c.hasRoom() {
		c.buffer = append(c.buffer, bufferedValue{value: v, at: c.d.epoch})
		c.changed()
		return
	}
	cs := c.d.currentState()
	req := &sendRequest{value: v, at: c.d.epoch}
	c.blockedSends = append(c.blockedSends, req)
	c.changed()
	for !req.accepted {
		if c.closed {
			panic(&ProgrammingError{Message: fmt.Sprintf("send on closed channel %q", c.name)})
		}
		cs.park(&req.waiter)
	}
}

func (c *channelImpl) SendAsync(v any) bool {
	if c.closed {
		panic(&ProgrammingError{Message: fmt.Sprintf("send on closed channel %q", c.name)})
	}
	switch {
	case c.hasRoom():
		c.buffer = append(c.buffer, bufferedValue{value: v, at: c.d.epoch})
	case c.size == 0 && c.receivers > len(c.blockedSends):
		c.blockedSends = append(c.blockedSends, &sendRequest{value: v, at: c.d.epoch})
	default:
		return false
	}
	c.changed()
	return true
}

func (c *channelImpl) Close() {
	if c.closed {
		return
	}
	c.closed, c.closedAt = true, c.d.epoch
	for _, req := range c.blockedSends {
		req.waiter.wakeAll()
	}
	c.changed()
}

func (c *channelImpl) Receive(_ Context, valuePtr any) (more bool) {
	for {
		if v, ok := c.take(); ok {
			c.assign(v, valuePtr)
			return true
		}
		if c.closed {
			c.assign(nil, valuePtr)
			return false
		}
		cs := c.d.currentState()
		c.addReceiver()
		cs.park(&c.recvQueue)
		c.receivers--
	}
}

// addReceiver registers a parked receiver. Selectors waiting to send on an
// unbuffered channel are woken since their case may now be ready.
func (c *channelImpl) addReceiver() {
	c.receivers++
	c.sendQueue.wakeAll()
}

func (c *channelImpl) ReceiveAsync(valuePtr any) bool {
	ok, _ := c.ReceiveWithMoreFlag(valuePtr)
	return ok
}

func (c *channelImpl) ReceiveWithMoreFlag(valuePtr any) (ok bool, more bool) {
	if v, ok := c.take(); ok {
		c.assign(v, valuePtr)
		return true, true
	}
	return false, !c.closed
}

func (c *channelImpl) hasRoom() bool {
	return c.unbounded || len(c.buffer) < c.size
}

// readySince returns the instant the channel's next receive became possible:
// the arrival of the head value, or the close once drained.
func (c *channelImpl) readySince() (int64, bool) {
	switch {
	case len(c.buffer) > 0:
		return c.buffer[0].at, true
	case len(c.blockedSends) > 0:
		return c.blockedSends[0].at, true
	case c.closed:
		return c.closedAt, true
	}
	return 0, false
}

func (c *channelImpl) canSend() bool {
	return !c.closed && (c.hasRoom() || (c.size == 0 && c.receivers > len(c.blockedSends)))
}

// take dequeues the next value. A blocked sender is accepted either directly
// (unbuffered) or into the slot the dequeue freed.
func (c *channelImpl) take() (any, bool) {
	var (
		v     any
		found bool
	)
	if len(c.buffer) > 0 {
		v, found = c.buffer[0].value, true
		c.buffer[0] = bufferedValue{}
		c.buffer = c.buffer[1:]
		if len(c.blockedSends) > 0 && c.hasRoom() {
			req := c.accept()
			c.buffer = append(c.buffer, bufferedValue{value: req.value, at: req.at})
		}
	} else if len(c.blockedSends) > 0 {
		v, found = c.accept().value, true
	}
	if found {
		c.changed()
	}
	return v, found
}

func (c *channelImpl) accept() *sendRequest {
	req := c.blockedSends[0]
	c.blockedSends[0] = nil
	c.blockedSends = c.blockedSends[1:]
	req.accepted = true
	req.waiter.wakeAll()
	return req
}

// changed wakes everything waiting on the channel.
func (c *channelImpl) changed() {
	c.recvQueue.wakeAll()
	c.sendQueue.wakeAll()
}

func (c *channelImpl) assign(v any, valuePtr any) {
	if valuePtr == nil {
		return
	}
	if err := assignValue(v, valuePtr, c.types, c.converter); err != nil {
		panic(&ProgrammingError{Message: fmt.Sprintf("channel %q: %v", c.name, err)})
	}
}

// assignValue stores v into the pointer valuePtr. Encoded payloads are decoded,
// other values are assigned, converted or re-encoded into the target type.
func assignValue(v any, valuePtr any, types *serde.TypeConverter, converter serde.DataConverter) error {
	rv := reflect.ValueOf(valuePtr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("value pointer must be a non-nil pointer, got %T", valuePtr)
	}
	target := rv.Elem()
	if p, ok := v.(*api.Payload); ok && converter != nil {
		if _, wantsPayload := valuePtr.(**api.Payload); !wantsPayload {
			return converter.FromPayload(p, valuePtr)
		}
	}
	if v == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}
	val := reflect.ValueOf(v)
	switch {
	case val.Type().AssignableTo(target.Type()):
		target.Set(val)
		return nil
	case types != nil:
		converted, err := types.ConvertToType(v, target.Type())
		if err != nil {
			return fmt.Errorf("cannot assign %T to %s: %w", v, target.Type(), err)
		}
		target.Set(converted)
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", v, target.Type())
}
