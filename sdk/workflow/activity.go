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

// ActivityOptions configures activity execution.
//
// Options are attached to a Context with WithActivityOptions and apply to every
// activity scheduled through that Context. At least one of StartToCloseTimeout
// or ScheduleToCloseTimeout must be set.
//
// Example:
//
//	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
//		ScheduleToCloseTimeout: 5 * time.Minute,
//		StartToCloseTimeout:    30 * time.Second,
//		RetryPolicy: &workflow.RetryPolicy{
//			InitialInterval:    time.Second,
//			BackoffCoefficient: 2.0,
//			MaximumAttempts:    3,
//		},
//	})
type ActivityOptions = internal.ActivityOptions

// RetryPolicy defines how activities are retried on failure.
//
// Retries use exponential backoff with configurable parameters. Activities are
// retried automatically unless:
//   - MaximumAttempts is reached
//   - The error type is in NonRetryableErrorTypes, or the error is non-retryable
//   - The activity was canceled or ran out of its ScheduleToClose budget
//
// Example:
//
//	RetryPolicy: &workflow.RetryPolicy{
//		InitialInterval:    time.Second,      // First retry after 1s
//		BackoffCoefficient: 2.0,              // Double delay each retry
//		MaximumInterval:    30 * time.Second, // Cap delay at 30s
//		MaximumAttempts:    5,                // Give up after 5 attempts
//		NonRetryableErrorTypes: []string{
//			"InvalidInput", // ApplicationError.Type of validation errors
//		},
//	}
type RetryPolicy = internal.RetryPolicy

// WithActivityOptions returns a copy of ctx carrying opts.
func WithActivityOptions(ctx Context, opts ActivityOptions) Context {
	return internal.WithActivityOptions(ctx, opts)
}

// GetActivityOptions returns the options attached to ctx.
func GetActivityOptions(ctx Context) ActivityOptions {
	return internal.GetActivityOptions(ctx)
}

// ExecuteActivity schedules the execution of an activity function.
//
// The activity is a function registered with a worker, or its registered name.
// args are encoded with the client's data converter. ExecuteActivity never
// blocks: the returned Future resolves once the activity completes, fails, times
// out or is canceled. Canceling ctx requests cancellation of the activity.
func ExecuteActivity(ctx Context, activity any, args ...any) Future {
	return internal.ExecuteActivity(ctx, activity, args...)
}
