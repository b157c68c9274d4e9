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
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ngnhng/durablereplay/api"
)

// ActivityInfo describes the activity attempt being executed.
type ActivityInfo struct {
	WorkflowExecution api.ExecutionKey
	WorkflowType      string
	ActivityType      string
	TaskList          string
	ScheduledSeq      int64
	Attempt           int32
	ScheduledAt       time.Time
	StartedAt         time.Time
	// Deadline is the earliest of the attempt's StartToClose and ScheduleToClose bounds.
	Deadline         time.Time
	HeartbeatTimeout time.Duration
}

type activityEnvKey struct{}

type activityEnv struct {
	info          ActivityInfo
	logger        *slog.Logger
	lastHeartbeat atomic.Int64
}

func withActivityEnv(ctx context.Context, env *activityEnv) context.Context {
	env.lastHeartbeat.Store(time.Now().UnixNano())
	return context.WithValue(ctx, activityEnvKey{}, env)
}

func getActivityEnv(ctx context.Context) *activityEnv {
	env, ok := ctx.Value(activityEnvKey{}).(*activityEnv)
	if !ok {
		panic(&ProgrammingError{Message: "context is not an activity context"})
	}
	return env
}

// GetActivityInfo returns the attempt being executed. It panics outside an activity.
func GetActivityInfo(ctx context.Context) ActivityInfo {
	return getActivityEnv(ctx).info
}

// GetActivityLogger returns a logger tagged with the activity attempt.
func GetActivityLogger(ctx context.Context) *slog.Logger {
	return getActivityEnv(ctx).logger
}

// RecordHeartbeat reports liveness of a long running activity. An activity with
// a HeartbeatTimeout that stops heartbeating is timed out.
func RecordHeartbeat(ctx context.Context) {
	getActivityEnv(ctx).lastHeartbeat.Store(time.Now().UnixNano())
}

func (env *activityEnv) sinceHeartbeat(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, env.lastHeartbeat.Load()))
}
