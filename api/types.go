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

import "time"

// DefaultTaskList is used when neither the start options nor the activity options name one.
const DefaultTaskList = "default"

type (
	Task interface {
		isTask()
		TaskKey() ExecutionKey
	}

	// WorkflowTask asks a worker to run a decision step for the run. It carries no
	// state: the worker rebuilds everything from the run's history.
	WorkflowTask struct {
		Execution ExecutionKey `json:"execution"`
		TaskList  string       `json:"task_list"`
	}

	// ActivityTask asks a worker to execute one attempt of a scheduled activity.
	ActivityTask struct {
		Execution    ExecutionKey       `json:"execution"`
		WorkflowType string             `json:"workflow_type"`
		ScheduledSeq int64              `json:"scheduled_seq"`
		ActivityType string             `json:"activity_type"`
		Input        []Payload          `json:"input"`
		Parameters   ActivityParameters `json:"parameters"`
		Attempt      int32              `json:"attempt"`
		ScheduledAt  time.Time          `json:"scheduled_at"`
		// FirstScheduledAt is the schedule time of attempt 1; ScheduleToClose spans all attempts.
		FirstScheduledAt time.Time `json:"first_scheduled_at"`
		// NotBefore delays a retry attempt until its backoff elapsed.
		NotBefore time.Time `json:"not_before,omitzero"`
	}

	// TimerTask fires a started timer once FireAt is reached. Workers hold it back
	// until then, so a pending timer survives a worker restart.
	TimerTask struct {
		Execution  ExecutionKey `json:"execution"`
		TaskList   string       `json:"task_list"`
		StartedSeq int64        `json:"started_seq"`
		FireAt     time.Time    `json:"fire_at"`
	}
)

func (t *WorkflowTask) isTask()               {}
func (t *WorkflowTask) TaskKey() ExecutionKey { return t.Execution }
func (t *ActivityTask) isTask()               {}
func (t *ActivityTask) TaskKey() ExecutionKey { return t.Execution }
func (t *TimerTask) isTask()                  {}
func (t *TimerTask) TaskKey() ExecutionKey    { return t.Execution }
