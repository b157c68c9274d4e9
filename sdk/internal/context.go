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
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ngnhng/durablereplay/api"
)

// Context is the workflow counterpart of context.Context. Done returns a
// workflow Channel so that cancellation can be awaited from a Selector.
type Context interface {
	Done() Channel
	Err() error
	Value(key any) any
}

type CancelFunc func()

type contextKey string

const (
	executorContextKey contextKey = "executor"
	cancelContextKey   contextKey = "cancel"
	activityOptionsKey contextKey = "activity-options"
)

type (
	backgroundCtx struct {
		executor *workflowExecutor
	}

	valueCtx struct {
		Context
		key, val any
	}

	cancelCtx struct {
		Context
		done      *channelImpl
		err       error
		parent    *cancelCtx
		children  []*cancelCtx
		callbacks []*cancelCallback
	}

	cancelCallback struct {
		fn      func()
		removed bool
	}
)

func (*backgroundCtx) Done() Channel { return nil }
func (*backgroundCtx) Err() error    { return nil }
func (c *backgroundCtx) Value(key any) any {
	if key == executorContextKey {
		return c.executor
	}
	return nil
}

func (c *valueCtx) Value(key any) any {
	if c.key == key {
		return c.val
	}
	return c.Context.Value(key)
}

func (c *cancelCtx) Done() Channel { return c.done }
func (c *cancelCtx) Err() error    { return c.err }
func (c *cancelCtx) Value(key any) any {
	if key == cancelContextKey {
		return c
	}
	return c.Context.Value(key)
}

func (c *cancelCtx) cancel(err error) {
	if c.err != nil {
		return
	}
	c.err = err
	c.done.Close()
	if c.parent != nil {
		c.parent.removeChild(c)
		c.parent = nil
	}
	children := c.children
	c.children = nil
	for _, child := range children {
		child.cancel(err)
	}
	callbacks := c.callbacks
	c.callbacks = nil
	for _, cb := range callbacks {
		if !cb.removed {
			cb.fn()
		}
	}
}

// WithValue returns a copy of parent in which the value associated with key is val.
func WithValue(parent Context, key any, val any) Context {
	if parent == nil {
		panic(&ProgrammingError{Message: "cannot create context from nil parent"})
	}
	return &valueCtx{Context: parent, key: key, val: val}
}

// WithCancel returns a copy of parent with a new Done channel, closed when the
// returned CancelFunc is called or when the parent is canceled.
func WithCancel(parent Context) (Context, CancelFunc) {
	c := newCancelCtx(parent)
	return c, func() { c.cancel(NewCanceledError("context canceled")) }
}

func newCancelCtx(parent Context) *cancelCtx {
	e := getExecutor(parent)
	c := &cancelCtx{Context: parent, done: newChannel(e.d, "done", 0, e.types)}
	if p := parentCancelCtx(parent); p != nil {
		if p.err != nil {
			c.cancel(p.err)
		} else {
			c.parent = p
			p.children = append(p.children, c)
		}
	}
	return c
}

func (c *cancelCtx) removeChild(child *cancelCtx) {
	if i := slices.Index(c.children, child); i >= 0 {
		c.children = slices.Delete(c.children, i, i+1)
	}
}

func (c *cancelCtx) removeCallback(cb *cancelCallback) {
	cb.removed = true
	if i := slices.Index(c.callbacks, cb); i >= 0 {
		c.callbacks = slices.Delete(c.callbacks, i, i+1)
	}
}

func parentCancelCtx(ctx Context) *cancelCtx {
	c, _ := ctx.Value(cancelContextKey).(*cancelCtx)
	return c
}

// onCancel registers fn to run when ctx is canceled. If ctx is already canceled
// fn runs immediately. The returned func unregisters fn.
func onCancel(ctx Context, fn func()) func() {
	c := parentCancelCtx(ctx)
	if c == nil {
		return func() {}
	}
	if c.err != nil {
		fn()
		return func() {}
	}
	cb := &cancelCallback{fn: fn}
	c.callbacks = append(c.callbacks, cb)
	return func() { c.removeCallback(cb) }
}

func getExecutor(ctx Context) *workflowExecutor {
	if ctx == nil {
		panic(&ProgrammingError{Message: "nil workflow context"})
	}
	e, ok := ctx.Value(executorContextKey).(*workflowExecutor)
	if !ok || e == nil {
		panic(&ProgrammingError{Message: "context is not a workflow context"})
	}
	return e
}

// ActivityOptions configures how an activity is scheduled and executed.
type ActivityOptions struct {
	// TaskList the activity task is dispatched to. Defaults to the workflow's task list.
	TaskList string

	// ScheduleToCloseTimeout bounds the whole activity including retries.
	// Either this or StartToCloseTimeout is required.
	ScheduleToCloseTimeout time.Duration

	// ScheduleToStartTimeout bounds the time an attempt waits in the task list.
	ScheduleToStartTimeout time.Duration

	// StartToCloseTimeout bounds a single attempt.
	StartToCloseTimeout time.Duration

	// HeartbeatTimeout fails an attempt that has not heartbeated within the interval.
	HeartbeatTimeout time.Duration

	// WaitForCancellation makes a canceled activity resolve only once the worker
	// confirms the cancellation instead of immediately.
	WaitForCancellation bool

	RetryPolicy *RetryPolicy
}

type RetryPolicy struct {
	// Backoff interval for the first retry. Default 1s.
	InitialInterval time.Duration

	// Multiplier applied to the interval after each retry. Default 2.0.
	BackoffCoefficient float64

	// Cap of the interval. Default is 100x of initial interval.
	MaximumInterval time.Duration

	// Maximum number of attempts; 0 means unlimited, bounded by ScheduleToCloseTimeout.
	MaximumAttempts int32

	// Error types (ApplicationError.Type or the error message) that stop retries.
	NonRetryableErrorTypes []string
}

func WithActivityOptions(ctx Context, opts ActivityOptions) Context {
	return WithValue(ctx, activityOptionsKey, opts)
}

// GetActivityOptions returns the options attached to ctx, if any.
func GetActivityOptions(ctx Context) ActivityOptions {
	opts, _ := ctx.Value(activityOptionsKey).(ActivityOptions)
	return opts
}

var errInvalidActivityOptions = errors.New("invalid activity options")

func (o ActivityOptions) validate() error {
	if o.StartToCloseTimeout <= 0 && o.ScheduleToCloseTimeout <= 0 {
		return fmt.Errorf("%w: StartToCloseTimeout or ScheduleToCloseTimeout is required", errInvalidActivityOptions)
	}
	if o.StartToCloseTimeout < 0 || o.ScheduleToCloseTimeout < 0 || o.ScheduleToStartTimeout < 0 || o.HeartbeatTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", errInvalidActivityOptions)
	}
	if p := o.RetryPolicy; p != nil {
		if p.BackoffCoefficient != 0 && p.BackoffCoefficient < 1 {
			return fmt.Errorf("%w: BackoffCoefficient must be 1 or larger", errInvalidActivityOptions)
		}
		if p.MaximumAttempts < 0 {
			return fmt.Errorf("%w: MaximumAttempts must not be negative", errInvalidActivityOptions)
		}
	}
	return nil
}

func (o ActivityOptions) toParameters(defaultTaskList string) api.ActivityParameters {
	params := api.ActivityParameters{
		TaskList:               o.TaskList,
		ScheduleToCloseTimeout: o.ScheduleToCloseTimeout,
		ScheduleToStartTimeout: o.ScheduleToStartTimeout,
		StartToCloseTimeout:    o.StartToCloseTimeout,
		HeartbeatTimeout:       o.HeartbeatTimeout,
		WaitForCancellation:    o.WaitForCancellation,
	}
	if params.TaskList == "" {
		params.TaskList = defaultTaskList
	}
	if p := o.RetryPolicy; p != nil {
		params.RetryPolicy = &api.RetryPolicy{
			InitialInterval:        p.InitialInterval,
			BackoffCoefficient:     p.BackoffCoefficient,
			MaximumInterval:        p.MaximumInterval,
			MaximumAttempts:        p.MaximumAttempts,
			NonRetryableErrorTypes: p.NonRetryableErrorTypes,
		}
	}
	return params
}
