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

package workflow

import "github.com/ngnhng/durablereplay/sdk/internal"

// Future represents the result of an asynchronous operation (activity or timer).
//
// A Future is returned by workflow.ExecuteActivity and provides methods to retrieve
// the result. Futures enable parallel execution by allowing you to start multiple
// activities and then wait for their results later.
//
// Example usage:
//
//	// Start multiple activities in parallel
//	future1 := workflow.ExecuteActivity(ctx, Activity1, arg1)
//	future2 := workflow.ExecuteActivity(ctx, Activity2, arg2)
//
//	// Wait for results
//	var result1 string
//	if err := future1.Get(ctx, &result1); err != nil {
//		return err
//	}
//
//	var result2 int
//	if err := future2.Get(ctx, &result2); err != nil {
//		return err
//	}
//
// Get suspends the calling coroutine until the Future is ready.
type Future = internal.Future

// Settable completes a Future created by NewFuture.
type Settable = internal.Settable

// NewFuture returns a Future and the Settable that completes it.
func NewFuture(ctx Context) (Future, Settable) {
	return internal.NewFuture(ctx)
}

// Selector waits on several channels and futures at once. Among the cases that
// are ready, Select runs the callback of the one that became ready first; ties
// go to the case added first.
type Selector = internal.Selector

func NewSelector(ctx Context) Selector {
	return internal.NewSelector(ctx)
}

func NewNamedSelector(ctx Context, name string) Selector {
	return internal.NewNamedSelector(ctx, name)
}

// Channel is a deterministic channel between workflow coroutines.
type Channel = internal.Channel

type (
	SendChannel    = internal.SendChannel
	ReceiveChannel = internal.ReceiveChannel
)

// NewChannel returns an unbuffered Channel: Send blocks until a receiver takes the value.
func NewChannel(ctx Context) Channel {
	return internal.NewChannel(ctx)
}

func NewNamedChannel(ctx Context, name string) Channel {
	return internal.NewNamedChannel(ctx, name)
}

// NewBufferedChannel returns a Channel holding up to size values before Send blocks.
func NewBufferedChannel(ctx Context, size int) Channel {
	return internal.NewBufferedChannel(ctx, size)
}

func NewNamedBufferedChannel(ctx Context, name string, size int) Channel {
	return internal.NewNamedBufferedChannel(ctx, name, size)
}

// GetSignalChannel returns the channel signals named signalName are delivered on.
func GetSignalChannel(ctx Context, signalName string) ReceiveChannel {
	return internal.GetSignalChannel(ctx, signalName)
}
