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
)

var (
	ErrCanceled              = errors.New("canceled")
	ErrNonDeterministic      = errors.New("non-deterministic workflow")
	ErrWorkflowNotRegistered = errors.New("workflow not registered")
	ErrActivityNotRegistered = errors.New("activity not registered")
	ErrRegistryFrozen        = errors.New("registry is frozen once the worker runs")
	ErrWorkflowNotFound      = errors.New("workflow not found")
	ErrWorkflowClosed        = errors.New("workflow execution already closed")
	ErrWorkflowRunning       = errors.New("workflow already running")
)

// TimeoutKind names the activity timeout that fired.
type TimeoutKind string

const (
	TimeoutScheduleToStart TimeoutKind = "ScheduleToStart"
	TimeoutScheduleToClose TimeoutKind = "ScheduleToClose"
	TimeoutStartToClose    TimeoutKind = "StartToClose"
	TimeoutHeartbeat       TimeoutKind = "Heartbeat"
)

type (
	// ApplicationError is an error raised by workflow or activity code. Type is
	// matched against RetryPolicy.NonRetryableErrorTypes.
	ApplicationError struct {
		Type         string
		Message      string
		NonRetryable bool
		Cause        error
	}

	// ActivityError wraps the failure of a scheduled activity as observed by the workflow.
	ActivityError struct {
		ActivityType string
		ScheduledSeq int64
		Cause        error
	}

	TimeoutError struct {
		Kind TimeoutKind
	}

	CanceledError struct {
		Reason string
	}

	// NonDeterminismError reports that workflow code diverged from its recorded history.
	NonDeterminismError struct {
		Seq      int64
		Recorded string
		Produced string
		Message  string
	}

	// ProgrammingError reports misuse of the workflow runtime, such as a blocking
	// call outside a workflow coroutine or a coroutine blocked on a native primitive.
	ProgrammingError struct {
		Message string
	}

	PanicError struct {
		Value any
		Stack string
	}
)

func NewApplicationError(message, errType string, nonRetryable bool, cause error) *ApplicationError {
	return &ApplicationError{Type: errType, Message: message, NonRetryable: nonRetryable, Cause: cause}
}

func (e *ApplicationError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	return e.Message
}

func (e *ApplicationError) Unwrap() error { return e.Cause }

func (e *ActivityError) Error() string {
	return fmt.Sprintf("activity %s (seq %d) failed: %v", e.ActivityType, e.ScheduledSeq, e.Cause)
}

func (e *ActivityError) Unwrap() error { return e.Cause }

func NewTimeoutError(kind TimeoutKind) *TimeoutError { return &TimeoutError{Kind: kind} }

func (e *TimeoutError) Error() string { return fmt.Sprintf("activity %s timeout", e.Kind) }

func NewCanceledError(reason string) *CanceledError { return &CanceledError{Reason: reason} }

func (e *CanceledError) Error() string {
	if e.Reason == "" {
		return "canceled"
	}
	return "canceled: " + e.Reason
}

func (e *CanceledError) Is(target error) bool { return target == ErrCanceled }

func (e *NonDeterminismError) Error() string { return "non-deterministic workflow: " + e.detail() }

func (e *NonDeterminismError) detail() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("at seq %d history has %s, code produced %s", e.Seq, e.Recorded, e.Produced)
}

func (e *NonDeterminismError) Is(target error) bool { return target == ErrNonDeterministic }

func (e *ProgrammingError) Error() string { return "workflow programming error: " + e.Message }

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v\nStack: %s", e.Value, e.Stack)
}

// IsCanceledError reports whether err is, or wraps, a cancellation.
func IsCanceledError(err error) bool {
	return errors.Is(err, ErrCanceled)
}
