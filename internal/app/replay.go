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

package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ngnhng/durablereplay/examples/scenarios"
	"github.com/ngnhng/durablereplay/sdk/worker"
)

// replayRegistry registers workflows on a replayer and ignores activities,
// which replay never runs.
type replayRegistry struct {
	*worker.WorkflowReplayer
}

func (replayRegistry) RegisterActivity(any, ...worker.RegisterActivityOptions) error { return nil }

// NewReplayer returns a replayer knowing the workflows of examples.
func NewReplayer(opts worker.ReplayerOptions, examples ...scenarios.Example) (*worker.WorkflowReplayer, error) {
	r := worker.NewWorkflowReplayer(opts)
	reg := replayRegistry{r}
	for _, ex := range examples {
		if err := ex.Register(reg); err != nil {
			return nil, fmt.Errorf("register example %s: %w", ex.Name(), err)
		}
	}
	return r, nil
}

// ReplayFile replays a history file against the current workflow code.
func ReplayFile(path string, opts worker.ReplayerOptions, examples ...scenarios.Example) error {
	r, err := NewReplayer(opts, examples...)
	if err != nil {
		return err
	}
	if err := r.ReplayWorkflowHistoryFromFile(path); err != nil {
		return fmt.Errorf("replay %s: %w", path, err)
	}
	slog.Info("history replayed deterministically", "path", path)
	return nil
}

// ExportHistory writes the history of a run to w. An empty runID selects the
// current run.
func (m *Manager) ExportHistory(ctx context.Context, w io.Writer, workflowID, runID string) error {
	history, err := m.client.GetWorkflowHistory(ctx, workflowID, runID)
	if err != nil {
		return err
	}
	return worker.WriteHistoryFile(w, history)
}

// ExportHistoryFile is ExportHistory into a new file at path.
func (m *Manager) ExportHistoryFile(ctx context.Context, path, workflowID, runID string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := m.ExportHistory(ctx, f, workflowID, runID); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReplayExecution replays a stored run against the registered workflows.
func (m *Manager) ReplayExecution(ctx context.Context, workflowID, runID string, examples ...scenarios.Example) error {
	r, err := NewReplayer(worker.ReplayerOptions{
		Codec:                    m.codec,
		Logger:                   m.logger,
		DeadlockDetectionTimeout: m.cfg.Worker.DeadlockDetectionTimeout,
	}, examples...)
	if err != nil {
		return err
	}
	return r.ReplayWorkflowExecution(ctx, m.client, workflowID, runID)
}
