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
	"math/rand/v2"
	"time"

	"github.com/ngnhng/durablereplay/sdk/internal"
)

type (
	// Version is a workflow code version returned by GetVersion.
	Version = internal.Version

	// EncodedValue holds a value recorded by SideEffect.
	EncodedValue = internal.EncodedValue
)

// DefaultVersion is the version of code paths that existed before GetVersion was introduced.
const DefaultVersion = internal.DefaultVersion

// Go starts a workflow coroutine. Coroutines of one execution run one at a time
// and switch only at blocking workflow calls.
func Go(ctx Context, fn func(ctx Context)) {
	internal.Go(ctx, fn)
}

// GoNamed is Go with a name shown in deadlock reports.
func GoNamed(ctx Context, name string, fn func(ctx Context)) {
	internal.GoNamed(ctx, name, fn)
}

// Yield lets the other ready coroutines run before returning.
func Yield(ctx Context) {
	internal.Yield(ctx)
}

// Now returns the workflow clock. The first execution records the value, replay
// returns the recorded one.
func Now(ctx Context) time.Time {
	return internal.Now(ctx)
}

// Random returns a random number. The first execution records it, replay
// returns the recorded one.
func Random(ctx Context) uint64 {
	return internal.Random(ctx)
}

// NewRandom returns a random source seeded once per call site and replayed with
// the same seed.
func NewRandom(ctx Context) *rand.Rand {
	return internal.NewRandom(ctx)
}

// NewTimer returns a Future that becomes ready after d. Canceling ctx cancels the timer.
func NewTimer(ctx Context, d time.Duration) Future {
	return internal.NewTimer(ctx, d)
}

// Sleep suspends the coroutine for d. It returns a *CanceledError if ctx is
// canceled first.
func Sleep(ctx Context, d time.Duration) error {
	return internal.Sleep(ctx, d)
}

// SideEffect runs fn once and records its result. Replay returns the recorded
// result without running fn.
func SideEffect(ctx Context, fn func(ctx Context) any) EncodedValue {
	return internal.SideEffect(ctx, fn)
}

// GetVersion returns the version of the code path identified by changeID. New
// executions get maxSupported; replays get the version that was recorded.
func GetVersion(ctx Context, changeID string, minSupported, maxSupported Version) Version {
	return internal.GetVersion(ctx, changeID, minSupported, maxSupported)
}

// NewContinueAsNewError returns the error a workflow returns to close the
// current run and start wf again with args as a new run of the same workflow id.
func NewContinueAsNewError(ctx Context, wf any, args ...any) error {
	return internal.NewContinueAsNewError(ctx, wf, args...)
}
