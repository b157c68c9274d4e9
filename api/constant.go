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

// HistoryStream is the default JetStream stream of the NATS history store.
const HistoryStream = "WORKFLOW_HISTORY"

// TaskSubjectRoot is the first subject token of every task message:
// [<namespace>.]tasks.<kind>.<task list>.
const TaskSubjectRoot = "tasks"

// Headers stamped on task messages.
const (
	TaskKindHeader    = "Durablereplay-Task-Kind"
	TaskAttemptHeader = "Durablereplay-Task-Attempt"
)

// TaskRoute names the JetStream objects carrying one kind of task.
type TaskRoute struct {
	Stream   string // work-queue stream, prefixed by the namespace
	Token    string // subject token after TaskSubjectRoot
	Consumer string // durable consumer, suffixed by the task list
}

var (
	WorkflowTaskRoute = TaskRoute{Stream: "WORKFLOW_TASKS", Token: "workflow", Consumer: "worker-workflow-tasks"}
	ActivityTaskRoute = TaskRoute{Stream: "ACTIVITY_TASKS", Token: "activity", Consumer: "worker-activity-tasks"}
	TimerTaskRoute    = TaskRoute{Stream: "TIMER_TASKS", Token: "timer", Consumer: "worker-timer-tasks"}
)
