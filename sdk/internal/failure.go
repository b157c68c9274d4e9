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

	"github.com/ngnhng/durablereplay/api"
)

const (
	failureApplication    = "application"
	failureActivity       = "activity"
	failureTimeout        = "timeout"
	failureCanceled       = "canceled"
	failurePanic          = "panic"
	failureNonDeterminism = "nondeterminism"
	failureProgramming    = "programming"
)

// errorToFailure converts an error chain into its persisted form.
func errorToFailure(err error) api.Failure {
	if err == nil {
		return api.Failure{}
	}
	var (
		appErr     *ApplicationError
		actErr     *ActivityError
		timeoutErr *TimeoutError
		canceled   *CanceledError
		panicErr   *PanicError
		ndErr      *NonDeterminismError
		progErr    *ProgrammingError
	)
	switch {
	case errors.As(err, &actErr):
		f := api.Failure{
			Kind:         failureActivity,
			Message:      err.Error(),
			ActivityType: actErr.ActivityType,
			Seq:          actErr.ScheduledSeq,
		}
		if actErr.Cause != nil {
			cause := errorToFailure(actErr.Cause)
			f.Cause = &cause
		}
		return f
	case errors.As(err, &appErr):
		f := api.Failure{
			Kind:         failureApplication,
			Type:         appErr.Type,
			Message:      appErr.Message,
			NonRetryable: appErr.NonRetryable,
		}
		if appErr.Cause != nil {
			cause := errorToFailure(appErr.Cause)
			f.Cause = &cause
		}
		return f
	case errors.As(err, &timeoutErr):
		return api.Failure{Kind: failureTimeout, Message: err.Error(), TimeoutKind: string(timeoutErr.Kind)}
	case errors.As(err, &canceled):
		return api.Failure{Kind: failureCanceled, Message: canceled.Reason}
	case errors.As(err, &panicErr):
		return api.Failure{Kind: failurePanic, Message: fmt.Sprint(panicErr.Value), Stack: panicErr.Stack, NonRetryable: true}
	case errors.As(err, &ndErr):
		return api.Failure{Kind: failureNonDeterminism, Message: ndErr.detail(), Seq: ndErr.Seq, NonRetryable: true}
	case errors.As(err, &progErr):
		return api.Failure{Kind: failureProgramming, Message: progErr.Message, NonRetryable: true}
	}
	return api.Failure{Kind: failureApplication, Type: fmt.Sprintf("%T", err), Message: err.Error()}
}

// failureToError is the inverse of errorToFailure. Errors of foreign types come
// back as *ApplicationError carrying the original type name.
func failureToError(f *api.Failure) error {
	if f == nil || f.Kind == "" {
		return nil
	}
	switch f.Kind {
	case failureActivity:
		return &ActivityError{ActivityType: f.ActivityType, ScheduledSeq: f.Seq, Cause: failureToError(f.Cause)}
	case failureTimeout:
		return NewTimeoutError(TimeoutKind(f.TimeoutKind))
	case failureCanceled:
		return NewCanceledError(f.Message)
	case failurePanic:
		return &PanicError{Value: f.Message, Stack: f.Stack}
	case failureNonDeterminism:
		return &NonDeterminismError{Seq: f.Seq, Message: f.Message}
	case failureProgramming:
		return &ProgrammingError{Message: f.Message}
	}
	return &ApplicationError{
		Type:         f.Type,
		Message:      f.Message,
		NonRetryable: f.NonRetryable,
		Cause:        failureToError(f.Cause),
	}
}
