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

package api

import (
	"fmt"
	"strings"
)

type (
	WorkflowID string
	RunID      string
)

func (w WorkflowID) String() string { return string(w) }
func (r RunID) String() string      { return string(r) }

// ExecutionKey identifies a single run of a workflow. Every run owns its own history log.
type ExecutionKey struct {
	WorkflowID WorkflowID `json:"workflow_id"`
	RunID      RunID      `json:"run_id"`
}

// String returns the history log id of the run: "<workflowID>/<runID>".
//
// A valid NATS subject token can contain a-z, A-Z, 0-9, _, - and /, so the key
// maps directly onto a subject suffix.
func (k ExecutionKey) String() string {
	return fmt.Sprintf("%s/%s", k.WorkflowID, k.RunID)
}

// ParseExecutionKey is the inverse of ExecutionKey.String.
func ParseExecutionKey(s string) (ExecutionKey, error) {
	wf, run, ok := strings.Cut(s, "/")
	if !ok || wf == "" || run == "" {
		return ExecutionKey{}, fmt.Errorf("invalid execution key %q", s)
	}
	return ExecutionKey{WorkflowID: WorkflowID(wf), RunID: RunID(run)}, nil
}
