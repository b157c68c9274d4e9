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

// Go starts fn in a new workflow coroutine. It runs after the current one blocks.
func Go(ctx Context, fn func(ctx Context)) {
	getExecutor(ctx).d.spawn(ctx, "", fn)
}

// GoNamed is Go with a coroutine name used in deadlock reports.
func GoNamed(ctx Context, name string, fn func(ctx Context)) {
	getExecutor(ctx).d.spawn(ctx, name, fn)
}

// Yield lets every other ready coroutine run before the caller continues.
func Yield(ctx Context) {
	getExecutor(ctx).d.currentState().yieldNow()
}

func NewChannel(ctx Context) Channel {
	return NewNamedBufferedChannel(ctx, "", 0)
}

func NewNamedChannel(ctx Context, name string) Channel {
	return NewNamedBufferedChannel(ctx, name, 0)
}

func NewBufferedChannel(ctx Context, size int) Channel {
	return NewNamedBufferedChannel(ctx, "", size)
}

func NewNamedBufferedChannel(ctx Context, name string, size int) Channel {
	if size < 0 {
		panic(&ProgrammingError{Message: "negative channel size"})
	}
	e := getExecutor(ctx)
	ch := newChannel(e.d, name, size, e.types)
	ch.converter = e.converter
	return ch
}

// GetSignalChannel returns the channel fed by signals named name. Signals that
// arrive before anyone reads are buffered.
func GetSignalChannel(ctx Context, name string) ReceiveChannel {
	return getExecutor(ctx).signalChannel(name)
}

func GetInfo(ctx Context) *WorkflowInfo {
	info := getExecutor(ctx).info
	return &info
}

// IsReplaying reports whether the workflow is re-executing recorded history.
func IsReplaying(ctx Context) bool {
	return getExecutor(ctx).replaying
}
