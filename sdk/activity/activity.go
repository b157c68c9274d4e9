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

package activity

import (
	"context"
	"log/slog"

	"github.com/ngnhng/durablereplay/sdk/internal"
)

// Info describes the activity attempt being executed.
type Info = internal.ActivityInfo

// GetInfo returns the attempt being executed. It panics when ctx is not an activity context.
func GetInfo(ctx context.Context) Info {
	return internal.GetActivityInfo(ctx)
}

// GetLogger returns a logger tagged with the workflow, activity and attempt.
func GetLogger(ctx context.Context) *slog.Logger {
	return internal.GetActivityLogger(ctx)
}

// RecordHeartbeat reports that the activity is still making progress.
func RecordHeartbeat(ctx context.Context) {
	internal.RecordHeartbeat(ctx)
}
