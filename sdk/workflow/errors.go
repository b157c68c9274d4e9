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

var (
	// ErrCanceled matches every cancellation error with errors.Is.
	ErrCanceled = internal.ErrCanceled

	// ErrNonDeterministic matches every NonDeterminismError with errors.Is.
	ErrNonDeterministic = internal.ErrNonDeterministic

	// ErrActivityNotRegistered is returned when an activity is not registered with the worker
	ErrActivityNotRegistered = internal.ErrActivityNotRegistered

	// ErrWorkflowNotRegistered is returned when a workflow is not registered with the worker
	ErrWorkflowNotRegistered = internal.ErrWorkflowNotRegistered
)

type (
	// ApplicationError is an error returned by workflow or activity code.
	// Type is matched against RetryPolicy.NonRetryableErrorTypes.
	ApplicationError = internal.ApplicationError

	// ActivityError is the error of an activity Future. Cause holds the
	// activity's own failure, timeout or cancellation.
	ActivityError = internal.ActivityError

	// TimeoutError reports which activity timeout fired.
	TimeoutError = internal.TimeoutError

	TimeoutKind = internal.TimeoutKind

	CanceledError = internal.CanceledError

	// NonDeterminismError reports that workflow code no longer produces the
	// commands recorded in its history.
	NonDeterminismError = internal.NonDeterminismError

	// ProgrammingError reports misuse of the workflow runtime.
	ProgrammingError = internal.ProgrammingError

	// PanicError represents a panic that occurred in workflow or activity code
	PanicError = internal.PanicError

	ContinueAsNewError = internal.ContinueAsNewError
)

const (
	TimeoutScheduleToStart = internal.TimeoutScheduleToStart
	TimeoutScheduleToClose = internal.TimeoutScheduleToClose
	TimeoutStartToClose    = internal.TimeoutStartToClose
	TimeoutHeartbeat       = internal.TimeoutHeartbeat
)

// NewApplicationError creates an ApplicationError of the given type.
func NewApplicationError(message, errType string, cause error) *ApplicationError {
	return internal.NewApplicationError(message, errType, false, cause)
}

// NewNonRetryableApplicationError creates an ApplicationError that is never retried.
func NewNonRetryableApplicationError(message, errType string, cause error) *ApplicationError {
	return internal.NewApplicationError(message, errType, true, cause)
}

// IsCanceledError reports whether err is, or wraps, a cancellation.
func IsCanceledError(err error) bool {
	return internal.IsCanceledError(err)
}

// IsContinueAsNewError reports whether err asks to continue as new.
func IsContinueAsNewError(err error) bool {
	return internal.IsContinueAsNewError(err)
}
