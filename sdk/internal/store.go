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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/DeluxeOwl/chronicle"
	"github.com/DeluxeOwl/chronicle/aggregate"
	"github.com/DeluxeOwl/chronicle/event"
	"github.com/DeluxeOwl/chronicle/version"
	"github.com/avast/retry-go/v4"
	"github.com/ngnhng/durablereplay/api"
	"github.com/ngnhng/durablereplay/api/serde"
)

const (
	defaultConflictRetryAttempts = 5
	defaultConflictRetryDelay    = 10 * time.Millisecond
)

// historyStore persists run histories and the run index on a chronicle event log.
// Writers of the same run are serialized in process by a keyed lock and across
// processes by the log's optimistic version check.
type historyStore struct {
	log   event.Log
	runs  *aggregate.ESRepo[api.ExecutionKey, api.HistoryEvent, *workflowRun]
	index *aggregate.ESRepo[runIndexID, api.RunEvent, *runIndex]
	locks keyedMutex
}

func newHistoryStore(log event.Log, codec serde.BinarySerde) (*historyStore, error) {
	if log == nil {
		return nil, errors.New("history store: nil event log")
	}
	if codec == nil {
		codec = &serde.MsgpackSerde{}
	}
	runs, err := chronicle.NewEventSourcedRepository(
		log,
		newWorkflowRun,
		nil,
		aggregate.EventSerializer(codec),
	)
	if err != nil {
		return nil, fmt.Errorf("history store: %w", err)
	}
	index, err := chronicle.NewEventSourcedRepository(
		log,
		newRunIndex,
		nil,
		aggregate.EventSerializer(codec),
	)
	if err != nil {
		return nil, fmt.Errorf("history store: %w", err)
	}
	return &historyStore{log: log, runs: runs, index: index}, nil
}

// errNoHistory reports a log id without events. Chronicle's repositories fail
// such a Get with an untyped error, so absence is checked on the log first.
var errNoHistory = errors.New("no history")

// getRoot loads the aggregate stored under id, or fails with errNoHistory.
// Logs are append-only, so a log seen non-empty stays non-empty for the Get.
func getRoot[TID aggregate.ID, E event.Any, R aggregate.Root[TID, E]](
	ctx context.Context,
	log event.Log,
	repo *aggregate.ESRepo[TID, E, R],
	id TID,
) (R, error) {
	var zero R
	found, err := hasEvents(ctx, log, event.LogID(id.String()))
	if err != nil {
		return zero, err
	}
	if !found {
		return zero, errNoHistory
	}
	return repo.Get(ctx, id)
}

func hasEvents(ctx context.Context, log event.Log, id event.LogID) (bool, error) {
	for _, err := range log.ReadEvents(ctx, id, version.SelectFromBeginning) {
		if err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

func (s *historyStore) load(ctx context.Context, key api.ExecutionKey) (*workflowRun, error) {
	run, err := getRoot(ctx, s.log, s.runs, key)
	if err != nil {
		if errors.Is(err, errNoHistory) {
			return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, key)
		}
		return nil, fmt.Errorf("load run %s: %w", key, err)
	}
	return run, nil
}

// update loads the run, lets fn record events on it and saves them. The whole
// read-modify-write is retried when another writer appended first. fn must not
// have side effects beyond the run since it may run more than once.
func (s *historyStore) update(ctx context.Context, key api.ExecutionKey, fn func(run *workflowRun) error) (*workflowRun, error) {
	unlock := s.locks.lock(key.String())
	defer unlock()

	var run *workflowRun
	err := retry.Do(
		func() error {
			var err error
			if run, err = s.load(ctx, key); err != nil {
				return err
			}
			if err := fn(run); err != nil {
				return err
			}
			if _, _, err := s.runs.Save(ctx, run); err != nil {
				return fmt.Errorf("save run %s: %w", key, err)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(defaultConflictRetryAttempts),
		retry.Delay(defaultConflictRetryDelay),
		retry.RetryIf(isConflict),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// appendInput records an input on an open run. guard, when set, may veto the
// append by returning false (for example for a late activity result).
func (s *historyStore) appendInput(ctx context.Context, key api.ExecutionKey, in api.Input, guard func(run *workflowRun) bool) (bool, error) {
	appended := false
	_, err := s.update(ctx, key, func(run *workflowRun) error {
		appended = false
		if run.closed || (guard != nil && !guard(run)) {
			return nil
		}
		appended = true
		return run.record(in)
	})
	return appended, err
}

// create starts a run. It fails with ErrWorkflowRunning when the current run of
// the workflow id is still open, unless the new run continues it.
func (s *historyStore) create(ctx context.Context, started *api.WorkflowExecutionStarted) error {
	unlock := s.locks.lock(string(started.WorkflowID))
	defer unlock()

	idx, err := getRoot(ctx, s.log, s.index, runIndexID(started.WorkflowID))
	switch {
	case errors.Is(err, errNoHistory):
		idx = newRunIndex()
	case err != nil:
		return fmt.Errorf("load run index %s: %w", started.WorkflowID, err)
	default:
		if cur, ok := idx.current(); ok {
			if cur.RunID == started.RunID {
				return nil
			}
			if cur.RunID != started.ContinuedFromRunID {
				run, err := s.load(ctx, api.ExecutionKey{WorkflowID: started.WorkflowID, RunID: cur.RunID})
				if err != nil {
					return err
				}
				if !run.closed {
					return fmt.Errorf("%w: %s", ErrWorkflowRunning, run.id)
				}
			}
		}
	}

	run := newWorkflowRun()
	if err := run.record(started); err != nil {
		return err
	}
	if _, _, err := s.runs.Save(ctx, run); err != nil {
		if isConflict(err) {
			return fmt.Errorf("%w: %s", ErrWorkflowRunning, run.id)
		}
		return fmt.Errorf("save run %s: %w", run.id, err)
	}
	if err := aggregate.RecordEvent(idx, api.RunEvent(&api.RunStarted{
		WorkflowID:         started.WorkflowID,
		RunID:              started.RunID,
		WorkflowType:       started.WorkflowType,
		TaskList:           started.TaskList,
		ContinuedFromRunID: started.ContinuedFromRunID,
		StartedAt:          started.StartedAt,
	})); err != nil {
		return err
	}
	if _, _, err := s.index.Save(ctx, idx); err != nil {
		return fmt.Errorf("save run index %s: %w", started.WorkflowID, err)
	}
	return nil
}

// currentRun resolves the latest run of a workflow id.
func (s *historyStore) currentRun(ctx context.Context, workflowID api.WorkflowID) (api.RunID, error) {
	idx, err := getRoot(ctx, s.log, s.index, runIndexID(workflowID))
	if err != nil {
		if errors.Is(err, errNoHistory) {
			return "", fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
		}
		return "", fmt.Errorf("load run index %s: %w", workflowID, err)
	}
	cur, ok := idx.current()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
	}
	return cur.RunID, nil
}

// resolve fills in the current run when key has no run id.
func (s *historyStore) resolve(ctx context.Context, key api.ExecutionKey) (api.ExecutionKey, error) {
	if key.RunID != "" {
		return key, nil
	}
	runID, err := s.currentRun(ctx, key.WorkflowID)
	if err != nil {
		return key, err
	}
	key.RunID = runID
	return key, nil
}

func isConflict(err error) bool {
	var conflict *version.ConflictError
	return errors.As(err, &conflict)
}

// keyedMutex hands out one mutex per key and drops it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
