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

	"github.com/ngnhng/durablereplay/api"
)

// ContinueAsNewError is returned by a workflow to close its run and start a
// successor run of the same workflow id with an empty history.
type ContinueAsNewError struct {
	WorkflowType string
	TaskList     string
	Input        []api.Payload
}

func (e *ContinueAsNewError) Error() string {
	return "continue as new: " + e.WorkflowType
}

// NewContinueAsNewError returns the error a workflow returns to continue as new
// with wf (a registered workflow function or name) and args.
func NewContinueAsNewError(ctx Context, wf any, args ...any) error {
	e := getExecutor(ctx)
	name, err := functionName(wf)
	if err != nil {
		return err
	}
	input, err := e.converter.ToPayloads(args...)
	if err != nil {
		return err
	}
	return &ContinueAsNewError{WorkflowType: name, TaskList: e.info.TaskList, Input: input}
}

// IsContinueAsNewError reports whether err requests continue-as-new.
func IsContinueAsNewError(err error) bool {
	var target *ContinueAsNewError
	return errors.As(err, &target)
}
