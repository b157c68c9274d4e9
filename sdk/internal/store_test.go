package internal

import (
	"testing"
	"time"

	"github.com/DeluxeOwl/chronicle/eventlog"
	"github.com/stretchr/testify/require"

	"github.com/ngnhng/durablereplay/api"
)

func newTestStore(t *testing.T) *historyStore {
	t.Helper()
	s, err := newHistoryStore(eventlog.NewMemory(), nil)
	require.NoError(t, err)
	return s
}

func startedEvent(workflowID, runID string) *api.WorkflowExecutionStarted {
	return &api.WorkflowExecutionStarted{
		WorkflowID:   api.WorkflowID(workflowID),
		RunID:        api.RunID(runID),
		WorkflowType: "order",
		TaskList:     testTaskList,
		StartedAt:    time.Unix(1700000000, 0).UTC(),
	}
}

func TestHistoryStore_UnknownWorkflow(t *testing.T) {
	ctx := testContext(t)
	s := newTestStore(t)

	_, err := s.load(ctx, api.ExecutionKey{WorkflowID: "order-1", RunID: "run-1"})
	require.ErrorIs(t, err, ErrWorkflowNotFound)

	_, err = s.currentRun(ctx, "order-1")
	require.ErrorIs(t, err, ErrWorkflowNotFound)

	_, err = s.appendInput(ctx, api.ExecutionKey{WorkflowID: "order-1", RunID: "run-1"},
		&api.SignalReceived{Name: "shipped"}, nil)
	require.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestHistoryStore_CreateAndResolve(t *testing.T) {
	ctx := testContext(t)
	s := newTestStore(t)

	require.NoError(t, s.create(ctx, startedEvent("order-1", "run-1")))
	// the same start again is a no-op
	require.NoError(t, s.create(ctx, startedEvent("order-1", "run-1")))

	key, err := s.resolve(ctx, api.ExecutionKey{WorkflowID: "order-1"})
	require.NoError(t, err)
	require.Equal(t, api.RunID("run-1"), key.RunID)

	run, err := s.load(ctx, key)
	require.NoError(t, err)
	require.False(t, run.closed)

	err = s.create(ctx, startedEvent("order-1", "run-2"))
	require.ErrorIs(t, err, ErrWorkflowRunning)

	require.NoError(t, s.create(ctx, startedEvent("order-2", "run-1")))
	runID, err := s.currentRun(ctx, "order-2")
	require.NoError(t, err)
	require.Equal(t, api.RunID("run-1"), runID)
}
