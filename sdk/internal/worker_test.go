package internal

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DeluxeOwl/chronicle/eventlog"
	"github.com/stretchr/testify/require"

	"github.com/ngnhng/durablereplay/api"
)

const testTaskList = "test"

func startWorker(t *testing.T, register func(w Worker)) Client {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	queue := NewMemoryTaskQueue()
	c, err := NewClient(&ClientOptions{
		EventLog:           eventlog.NewMemory(),
		TaskQueue:          queue,
		Logger:             logger,
		ResultPollInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	w, err := NewWorker(c, WorkerOptions{TaskList: testTaskList, Logger: logger})
	require.NoError(t, err)
	register(w)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
		_ = queue.Close()
	})
	return c
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func greetActivity(_ context.Context, name string) (string, error) {
	return "hi " + name, nil
}

func TestWorker_ActivityAndTimer(t *testing.T) {
	wf := func(ctx Context, name string) (string, error) {
		if err := Sleep(ctx, 10*time.Millisecond); err != nil {
			return "", err
		}
		return greetActivityWorkflow(ctx, name)
	}
	c := startWorker(t, func(w Worker) {
		require.NoError(t, w.RegisterWorkflow(wf, RegisterWorkflowOptions{Name: "greeter"}))
		require.NoError(t, w.RegisterActivity(greetActivity, RegisterActivityOptions{Name: "greet"}))
	})
	ctx := testContext(t)

	run, err := c.ExecuteWorkflow(ctx, StartWorkflowOptions{ID: "greet-1", TaskList: testTaskList}, "greeter", "bob")
	require.NoError(t, err)
	var got string
	require.NoError(t, run.Get(ctx, &got))
	require.Equal(t, "hi bob", got)

	history, err := c.GetWorkflowHistory(ctx, "greet-1", run.GetRunID())
	require.NoError(t, err)
	require.True(t, api.IsTerminal(history[len(history)-1]))

	r := NewWorkflowReplayer(WorkflowReplayerOptions{})
	require.NoError(t, r.RegisterWorkflow(wf, RegisterWorkflowOptions{Name: "greeter"}))
	require.NoError(t, r.ReplayWorkflowExecution(ctx, c, "greet-1", ""))
}

func TestWorker_ActivityRetry(t *testing.T) {
	var attempts atomic.Int32
	flaky := func(ctx context.Context) (int32, error) {
		attempts.Add(1)
		info := GetActivityInfo(ctx)
		if info.Attempt < 2 {
			return 0, errors.New("transient")
		}
		return info.Attempt, nil
	}
	wf := func(ctx Context) (int32, error) {
		ctx = WithActivityOptions(ctx, ActivityOptions{
			StartToCloseTimeout: time.Second,
			RetryPolicy:         &RetryPolicy{InitialInterval: 10 * time.Millisecond, MaximumAttempts: 3},
		})
		var attempt int32
		err := ExecuteActivity(ctx, "flaky").Get(ctx, &attempt)
		return attempt, err
	}
	c := startWorker(t, func(w Worker) {
		require.NoError(t, w.RegisterWorkflow(wf, RegisterWorkflowOptions{Name: "retrying"}))
		require.NoError(t, w.RegisterActivity(flaky, RegisterActivityOptions{Name: "flaky"}))
	})
	ctx := testContext(t)

	run, err := c.ExecuteWorkflow(ctx, StartWorkflowOptions{TaskList: testTaskList}, "retrying")
	require.NoError(t, err)
	var got int32
	require.NoError(t, run.Get(ctx, &got))
	require.Equal(t, int32(2), got)
	require.Equal(t, int32(2), attempts.Load())
}

func TestWorker_NonRetryableActivityFailure(t *testing.T) {
	declined := func(context.Context) error {
		return NewApplicationError("card declined", "CardDeclined", false, nil)
	}
	wf := func(ctx Context) error {
		ctx = WithActivityOptions(ctx, ActivityOptions{
			StartToCloseTimeout: time.Second,
			RetryPolicy: &RetryPolicy{
				InitialInterval:        10 * time.Millisecond,
				NonRetryableErrorTypes: []string{"CardDeclined"},
			},
		})
		return ExecuteActivity(ctx, "declined").Get(ctx, nil)
	}
	c := startWorker(t, func(w Worker) {
		require.NoError(t, w.RegisterWorkflow(wf, RegisterWorkflowOptions{Name: "charge"}))
		require.NoError(t, w.RegisterActivity(declined, RegisterActivityOptions{Name: "declined"}))
	})
	ctx := testContext(t)

	run, err := c.ExecuteWorkflow(ctx, StartWorkflowOptions{TaskList: testTaskList}, "charge")
	require.NoError(t, err)
	err = run.Get(ctx, nil)

	var execErr *WorkflowExecutionError
	require.ErrorAs(t, err, &execErr)
	var actErr *ActivityError
	require.ErrorAs(t, err, &actErr)
	require.Equal(t, "declined", actErr.ActivityType)
	var appErr *ApplicationError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "CardDeclined", appErr.Type)
}

func TestWorker_SignalAndCancel(t *testing.T) {
	wf := func(ctx Context) (string, error) {
		var msg string
		GetSignalChannel(ctx, "greeting").Receive(ctx, &msg)
		if err := Sleep(ctx, time.Hour); err != nil {
			return msg, err
		}
		return msg, nil
	}
	c := startWorker(t, func(w Worker) {
		require.NoError(t, w.RegisterWorkflow(wf, RegisterWorkflowOptions{Name: "waiter"}))
	})
	ctx := testContext(t)

	run, err := c.ExecuteWorkflow(ctx, StartWorkflowOptions{ID: "waiter-1", TaskList: testTaskList}, "waiter")
	require.NoError(t, err)
	require.NoError(t, c.SignalWorkflow(ctx, "waiter-1", "", "greeting", "hello"))

	require.Eventually(t, func() bool {
		history, err := c.GetWorkflowHistory(ctx, "waiter-1", "")
		if err != nil {
			return false
		}
		for _, ev := range history {
			if _, ok := ev.(*api.TimerStarted); ok {
				return true
			}
		}
		return false
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, c.CancelWorkflow(ctx, "waiter-1", "", "no longer needed"))
	err = run.Get(ctx, nil)
	require.ErrorIs(t, err, ErrCanceled)

	require.ErrorIs(t, c.SignalWorkflow(ctx, "waiter-1", "", "greeting", "late"), ErrWorkflowClosed)
}

func TestWorker_ContinueAsNew(t *testing.T) {
	counter := func(ctx Context, n int) (int, error) {
		if n < 3 {
			return 0, NewContinueAsNewError(ctx, "counter", n+1)
		}
		return n, nil
	}
	c := startWorker(t, func(w Worker) {
		require.NoError(t, w.RegisterWorkflow(counter, RegisterWorkflowOptions{Name: "counter"}))
	})
	ctx := testContext(t)

	run, err := c.ExecuteWorkflow(ctx, StartWorkflowOptions{ID: "counter-1", TaskList: testTaskList}, "counter", 1)
	require.NoError(t, err)
	var got int
	require.NoError(t, run.Get(ctx, &got))
	require.Equal(t, 3, got)

	first, err := c.GetWorkflowHistory(ctx, "counter-1", run.GetRunID())
	require.NoError(t, err)
	require.IsType(t, &api.WorkflowContinuedAsNew{}, first[len(first)-1])

	current, err := c.GetWorkflowHistory(ctx, "counter-1", "")
	require.NoError(t, err)
	startedEv, ok := current[0].(*api.WorkflowExecutionStarted)
	require.True(t, ok)
	require.NotEqual(t, api.RunID(run.GetRunID()), startedEv.RunID)
	require.NotEmpty(t, startedEv.ContinuedFromRunID)
}

func TestWorker_RequiresRegistrations(t *testing.T) {
	c, err := NewClient(&ClientOptions{EventLog: eventlog.NewMemory()})
	require.NoError(t, err)
	w, err := NewWorker(c, WorkerOptions{Logger: slog.New(slog.DiscardHandler)})
	require.NoError(t, err)

	require.Error(t, w.Run(context.Background()))
	require.ErrorIs(t, w.RegisterWorkflow(sleeper), ErrRegistryFrozen)
}

func TestNewClient_RequiresEventLog(t *testing.T) {
	_, err := NewClient(&ClientOptions{})
	require.Error(t, err)
	_, err = NewClient(nil)
	require.Error(t, err)
}
