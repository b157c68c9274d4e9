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
)

func defaultLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

// GetLogger returns a logger tagged with the execution that drops records while
// the workflow replays, so each line is logged once per execution.
func GetLogger(ctx Context) *slog.Logger {
	e := getExecutor(ctx)
	return slog.New(&replayHandler{next: e.logger.Handler(), executor: e}).With(
		slog.String("workflow_id", string(e.info.WorkflowID)),
		slog.String("run_id", string(e.info.RunID)),
		slog.String("workflow_type", e.info.WorkflowType),
	)
}

type replayHandler struct {
	next     slog.Handler
	executor *workflowExecutor
}

func (h *replayHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return !h.executor.replaying && h.next.Enabled(ctx, level)
}

func (h *replayHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.executor.replaying {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *replayHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &replayHandler{next: h.next.WithAttrs(attrs), executor: h.executor}
}

func (h *replayHandler) WithGroup(name string) slog.Handler {
	return &replayHandler{next: h.next.WithGroup(name), executor: h.executor}
}
