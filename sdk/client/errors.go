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

package client

import "github.com/ngnhng/durablereplay/sdk/internal"

var (
	// ErrWorkflowNotFound is returned when no run matches the workflow and run id
	ErrWorkflowNotFound = internal.ErrWorkflowNotFound

	// ErrWorkflowRunning is returned when attempting to start a workflow whose current run is still open
	ErrWorkflowRunning = internal.ErrWorkflowRunning

	// ErrWorkflowClosed is returned when signaling or canceling a closed run
	ErrWorkflowClosed = internal.ErrWorkflowClosed
)

// WorkflowExecutionError is returned by WorkflowRun.Get when the run failed or
// was canceled. Cause holds the workflow's error.
type WorkflowExecutionError = internal.WorkflowExecutionError
