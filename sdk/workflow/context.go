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

import (
	"log/slog"

	"github.com/ngnhng/durablereplay/sdk/internal"
)

// Context is the workflow execution context.
//
// Context is not a context.Context: it is owned by the workflow runtime, and every
// blocking operation (Future.Get, Channel.Receive, Selector.Select, Sleep) must be
// given the Context of the calling coroutine so the runtime can suspend it.
//
// Important: Workflow code must be deterministic. Do not:
//   - Perform I/O operations directly
//   - Use math/rand or time.Now (use NewRandom and Now)
//   - Use goroutines, native channels or sync primitives (use Go, Channel, Selector)
//
// Use activities for all non-deterministic operations.
type Context = internal.Context

// CancelFunc cancels a Context created by WithCancel.
type CancelFunc = internal.CancelFunc

// Info describes the running workflow execution.
type Info = internal.WorkflowInfo

// WithCancel returns a copy of parent with a new Done channel. Canceling it
// requests cancellation of the activities and timers started under it.
func WithCancel(parent Context) (Context, CancelFunc) {
	return internal.WithCancel(parent)
}

// WithValue returns a copy of parent in which key is associated with val.
func WithValue(parent Context, key, val any) Context {
	return internal.WithValue(parent, key, val)
}

// GetInfo returns information about the current workflow execution.
func GetInfo(ctx Context) *Info {
	return internal.GetInfo(ctx)
}

// GetLogger returns a logger that drops records while the workflow replays.
func GetLogger(ctx Context) *slog.Logger {
	return internal.GetLogger(ctx)
}

// IsReplaying reports whether the workflow is re-executing recorded history.
func IsReplaying(ctx Context) bool {
	return internal.IsReplaying(ctx)
}
