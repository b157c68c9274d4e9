package internal

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ngnhng/durablereplay/api"
	"github.com/ngnhng/durablereplay/api/serde"
)

var testConverter = serde.NewDataConverter(nil)

func testExecutor(t *testing.T, deadlock time.Duration, workflows map[string]any) *workflowExecutor {
	t.Helper()
	reg := newRegistry()
	for name, fn := range workflows {
		require.NoError(t, reg.registerWorkflow(fn, name))
	}
	return newWorkflowExecutor(executorOptions{
		registry:        reg,
		converter:       testConverter,
		logger:          slog.New(slog.DiscardHandler),
		deadlockTimeout: deadlock,
	})
}

func runHistory(t *testing.T, workflows map[string]any, history ...api.HistoryEvent) *decision {
	t.Helper()
	d, err := testExecutor(t, time.Second, workflows).execute(history)
	require.NoError(t, err)
	return d
}

func started(t *testing.T, workflowType string, args ...any) *api.WorkflowExecutionStarted {
	t.Helper()
	input, err := testConverter.ToPayloads(args...)
	require.NoError(t, err)
	return &api.WorkflowExecutionStarted{
		WorkflowID:   "wf-1",
		RunID:        "run-1",
		WorkflowType: workflowType,
		TaskList:     "test",
		Input:        input,
		StartedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func encode(t *testing.T, v any) *api.Payload {
	t.Helper()
	p, err := testConverter.ToPayload(v)
	require.NoError(t, err)
	return p
}

// recordStep closes the task that produced d and appends its commands.
func recordStep(history []api.HistoryEvent, d *decision) []api.HistoryEvent {
	history = append(history, &api.WorkflowTaskCompleted{})
	for _, c := range d.Commands {
		history = append(history, c)
	}
	return history
}

func requireCompleted(t *testing.T, d *decision, valuePtr any) {
	t.Helper()
	require.NoError(t, d.Failure)
	require.NotEmpty(t, d.Commands)
	last := d.Commands[len(d.Commands)-1]
	completed, ok := last.(*api.WorkflowCompleted)
	require.Truef(t, ok, "last command is %s", last.EventName())
	require.NoError(t, testConverter.FromPayload(completed.Result, valuePtr))
}

func requireFailed(t *testing.T, d *decision) *api.WorkflowFailed {
	t.Helper()
	require.NotEmpty(t, d.Commands)
	last := d.Commands[len(d.Commands)-1]
	failed, ok := last.(*api.WorkflowFailed)
	require.Truef(t, ok, "last command is %s", last.EventName())
	return failed
}

func sleeper(ctx Context) (string, error) {
	if err := Sleep(ctx, time.Minute); err != nil {
		return "", err
	}
	return "woke", nil
}

func TestExecutor_CompletesWithResult(t *testing.T) {
	greet := func(ctx Context, name string) (string, error) {
		return "hello " + name, nil
	}
	d := runHistory(t, map[string]any{"greet": greet}, started(t, "greet", "world"))

	var got string
	requireCompleted(t, d, &got)
	require.Equal(t, "hello world", got)
	require.Equal(t, int64(1), d.Commands[0].CommandSeq())
}

func TestExecutor_UnregisteredWorkflowFails(t *testing.T) {
	d := runHistory(t, nil, started(t, "missing"))

	failed := requireFailed(t, d)
	require.Contains(t, failed.Failure.Message, "missing")
}

func TestExecutor_TimerStepAndReplay(t *testing.T) {
	workflows := map[string]any{"sleeper": sleeper}
	history := []api.HistoryEvent{started(t, "sleeper")}

	d := runHistory(t, workflows, history...)
	require.NoError(t, d.Failure)
	require.Len(t, d.Commands, 1)
	timer, ok := d.Commands[0].(*api.TimerStarted)
	require.True(t, ok)
	require.Equal(t, int64(1), timer.Seq)
	require.Equal(t, time.Minute, timer.Duration)

	history = recordStep(history, d)
	history = append(history, &api.TimerFired{StartedSeq: 1})
	d = runHistory(t, workflows, history...)
	var got string
	requireCompleted(t, d, &got)
	require.Equal(t, "woke", got)
	require.Equal(t, int64(2), d.Commands[0].CommandSeq())

	// a closed run replays without producing anything new
	history = recordStep(history, d)
	d = runHistory(t, workflows, history...)
	require.NoError(t, d.Failure)
	require.Empty(t, d.Commands)
}

func TestExecutor_PendingStepWithoutNewInputsIsIdle(t *testing.T) {
	workflows := map[string]any{"sleeper": sleeper}
	history := []api.HistoryEvent{started(t, "sleeper")}
	history = recordStep(history, runHistory(t, workflows, history...))

	d := runHistory(t, workflows, history...)
	require.NoError(t, d.Failure)
	require.Empty(t, d.Commands)
}

func TestExecutor_MissingTimerFiredIsNonDeterministic(t *testing.T) {
	history := []api.HistoryEvent{
		started(t, "sleeper"),
		&api.WorkflowTaskCompleted{},
		&api.TimerStarted{Seq: 1, Duration: time.Minute},
		&api.WorkflowTaskCompleted{},
		&api.WorkflowCompleted{Seq: 2, Result: encode(t, "woke")},
	}
	d := runHistory(t, map[string]any{"sleeper": sleeper}, history...)

	require.ErrorIs(t, d.Failure, ErrNonDeterministic)
	require.Len(t, d.Commands, 1)
	failed := requireFailed(t, d)
	require.Equal(t, int64(3), failed.Seq)
	require.Equal(t, failureNonDeterminism, failed.Failure.Kind)
	require.True(t, failed.Failure.NonRetryable)
}

func TestExecutor_CommandMismatchIsNonDeterministic(t *testing.T) {
	history := []api.HistoryEvent{
		started(t, "sleeper"),
		&api.WorkflowTaskCompleted{},
		&api.ActivityScheduled{Seq: 1, ActivityType: "charge"},
	}
	d := runHistory(t, map[string]any{"sleeper": sleeper}, history...)

	var nde *NonDeterminismError
	require.ErrorAs(t, d.Failure, &nde)
	require.Equal(t, int64(1), nde.Seq)
	require.Equal(t, "activity/scheduled#1(charge)", nde.Recorded)
	require.Equal(t, "timer/started#1", nde.Produced)
}

func TestExecutor_UnknownActivityResultIsNonDeterministic(t *testing.T) {
	waiter := func(ctx Context) error {
		GetSignalChannel(ctx, "never").Receive(ctx, nil)
		return nil
	}
	history := []api.HistoryEvent{
		started(t, "waiter"),
		&api.WorkflowTaskCompleted{},
		&api.ActivityCompleted{ScheduledSeq: 7, Attempt: 1},
	}
	d := runHistory(t, map[string]any{"waiter": waiter}, history...)

	var nde *NonDeterminismError
	require.ErrorAs(t, d.Failure, &nde)
	require.Equal(t, int64(7), nde.Seq)
	require.Equal(t, int64(1), requireFailed(t, d).Seq)
}

func greetActivityWorkflow(ctx Context, name string) (string, error) {
	ctx = WithActivityOptions(ctx, ActivityOptions{StartToCloseTimeout: time.Minute})
	var out string
	if err := ExecuteActivity(ctx, "greet", name).Get(ctx, &out); err != nil {
		return "", err
	}
	return out, nil
}

func TestExecutor_ActivityResult(t *testing.T) {
	workflows := map[string]any{"greeter": greetActivityWorkflow}
	history := []api.HistoryEvent{started(t, "greeter", "bob")}

	d := runHistory(t, workflows, history...)
	require.NoError(t, d.Failure)
	require.Len(t, d.Commands, 1)
	scheduled, ok := d.Commands[0].(*api.ActivityScheduled)
	require.True(t, ok)
	require.Equal(t, "greet", scheduled.ActivityType)
	require.Equal(t, "test", scheduled.Parameters.TaskList)
	require.Equal(t, time.Minute, scheduled.Parameters.StartToCloseTimeout)
	var arg string
	require.NoError(t, testConverter.FromPayload(&scheduled.Input[0], &arg))
	require.Equal(t, "bob", arg)

	history = recordStep(history, d)
	history = append(history, &api.ActivityCompleted{ScheduledSeq: 1, Result: encode(t, "hi bob"), Attempt: 1})
	d = runHistory(t, workflows, history...)
	var got string
	requireCompleted(t, d, &got)
	require.Equal(t, "hi bob", got)
}

func TestExecutor_ActivityFailure(t *testing.T) {
	workflows := map[string]any{"greeter": greetActivityWorkflow}
	history := []api.HistoryEvent{started(t, "greeter", "bob")}
	history = recordStep(history, runHistory(t, workflows, history...))
	history = append(history, &api.ActivityFailed{
		ScheduledSeq: 1,
		Attempt:      3,
		Failure:      api.Failure{Kind: failureApplication, Type: "CardDeclined", Message: "declined", NonRetryable: true},
	})

	d := runHistory(t, workflows, history...)
	require.NoError(t, d.Failure)
	failed := requireFailed(t, d)
	require.Equal(t, failureActivity, failed.Failure.Kind)
	require.Equal(t, "greet", failed.Failure.ActivityType)
	require.Equal(t, int64(1), failed.Failure.Seq)
	require.NotNil(t, failed.Failure.Cause)
	require.Equal(t, "CardDeclined", failed.Failure.Cause.Type)
}

func TestExecutor_InvalidActivityOptions(t *testing.T) {
	wf := func(ctx Context) error {
		return ExecuteActivity(ctx, "greet").Get(ctx, nil)
	}
	d := runHistory(t, map[string]any{"wf": wf}, started(t, "wf"))

	require.Len(t, d.Commands, 1)
	require.Contains(t, requireFailed(t, d).Failure.Message, "StartToCloseTimeout")
}

func TestExecutor_ContinueAsNew(t *testing.T) {
	counter := func(ctx Context, n int) (int, error) {
		if n < 3 {
			return 0, NewContinueAsNewError(ctx, "counter", n+1)
		}
		return n, nil
	}
	workflows := map[string]any{"counter": counter}

	d := runHistory(t, workflows, started(t, "counter", 1))
	require.NoError(t, d.Failure)
	require.Len(t, d.Commands, 1)
	next, ok := d.Commands[0].(*api.WorkflowContinuedAsNew)
	require.True(t, ok)
	require.True(t, api.IsTerminal(next))
	require.Equal(t, "counter", next.WorkflowType)
	require.Equal(t, "test", next.TaskList)
	require.NotEmpty(t, next.NewRunID)
	require.NotEqual(t, api.RunID("run-1"), next.NewRunID)
	var n int
	require.NoError(t, testConverter.FromPayload(&next.Input[0], &n))
	require.Equal(t, 2, n)

	d = runHistory(t, workflows, started(t, "counter", 3))
	var got int
	requireCompleted(t, d, &got)
	require.Equal(t, 3, got)
}

func TestExecutor_SignalCancelsTimer(t *testing.T) {
	wf := func(ctx Context) (string, error) {
		timerCtx, cancel := WithCancel(ctx)
		timer := NewTimer(timerCtx, time.Hour)
		var outcome string
		NewSelector(ctx).
			AddReceive(GetSignalChannel(ctx, "approve"), func(c ReceiveChannel, more bool) {
				c.ReceiveAsync(&outcome)
				cancel()
			}).
			AddFuture(timer, func(f Future) { outcome = "expired" }).
			Select(ctx)
		return outcome, nil
	}
	workflows := map[string]any{"approval": wf}
	history := []api.HistoryEvent{started(t, "approval")}
	history = recordStep(history, runHistory(t, workflows, history...))
	history = append(history, &api.SignalReceived{Name: "approve", Payload: encode(t, "yes")})

	d := runHistory(t, workflows, history...)
	var got string
	requireCompleted(t, d, &got)
	require.Equal(t, "yes", got)
	require.Len(t, d.Commands, 2)
	canceled, ok := d.Commands[0].(*api.TimerCanceled)
	require.True(t, ok)
	require.Equal(t, int64(2), canceled.Seq)
	require.Equal(t, int64(1), canceled.StartedSeq)
}

func TestExecutor_SelectorPrefersEarliestInput(t *testing.T) {
	wf := func(ctx Context) (string, error) {
		var winner string
		NewSelector(ctx).
			AddFuture(NewTimer(ctx, time.Hour), func(Future) { winner = "timer" }).
			AddReceive(GetSignalChannel(ctx, "wake"), func(ReceiveChannel, bool) { winner = "signal" }).
			Select(ctx)
		return winner, nil
	}
	base := []api.HistoryEvent{
		started(t, "race"),
		&api.WorkflowTaskCompleted{},
		&api.TimerStarted{Seq: 1, Duration: time.Hour},
	}
	tests := []struct {
		name   string
		inputs []api.HistoryEvent
		want   string
	}{
		{
			name:   "timer first",
			inputs: []api.HistoryEvent{&api.TimerFired{StartedSeq: 1}, &api.SignalReceived{Name: "wake"}},
			want:   "timer",
		},
		{
			name:   "signal first",
			inputs: []api.HistoryEvent{&api.SignalReceived{Name: "wake"}, &api.TimerFired{StartedSeq: 1}},
			want:   "signal",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history := append(append([]api.HistoryEvent{}, base...), tt.inputs...)
			d := runHistory(t, map[string]any{"race": wf}, history...)
			var got string
			requireCompleted(t, d, &got)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestExecutor_CancelRequest(t *testing.T) {
	wf := func(ctx Context) error {
		return Sleep(ctx, time.Hour)
	}
	workflows := map[string]any{"wf": wf}
	history := []api.HistoryEvent{started(t, "wf")}
	history = recordStep(history, runHistory(t, workflows, history...))
	history = append(history, &api.WorkflowCancelRequested{Reason: "user"})

	d := runHistory(t, workflows, history...)
	require.NoError(t, d.Failure)
	require.Len(t, d.Commands, 2)
	require.IsType(t, &api.TimerCanceled{}, d.Commands[0])
	require.IsType(t, &api.WorkflowCanceled{}, d.Commands[1])
	require.Equal(t, int64(3), d.Commands[1].CommandSeq())
}

type observed struct {
	Now     time.Time
	Random  uint64
	Seeded  int64
	Version Version
	Token   string
}

func TestExecutor_MarkersReplayRecordedValues(t *testing.T) {
	var (
		sideEffects int
		seen        []observed
	)
	wf := func(ctx Context) error {
		var o observed
		o.Now = Now(ctx)
		o.Random = Random(ctx)
		o.Seeded = NewRandom(ctx).Int64()
		o.Version = GetVersion(ctx, "new-step", DefaultVersion, 2)
		token := SideEffect(ctx, func(Context) any {
			sideEffects++
			return fmt.Sprintf("token-%d", sideEffects)
		})
		if err := token.Get(&o.Token); err != nil {
			return err
		}
		seen = append(seen, o)
		return nil
	}
	workflows := map[string]any{"markers": wf}
	history := []api.HistoryEvent{started(t, "markers")}

	d := runHistory(t, workflows, history...)
	require.NoError(t, d.Failure)
	require.Len(t, d.Commands, 6)
	wantMarkers := []struct{ name, key string }{
		{api.MarkerNow, ""},
		{api.MarkerRandom, ""},
		{api.MarkerRandom, "seed"},
		{api.MarkerVersion, "new-step"},
		{api.MarkerSideEffect, ""},
	}
	for i, want := range wantMarkers {
		marker, ok := d.Commands[i].(*api.MarkerRecorded)
		require.Truef(t, ok, "command %d is %s", i, d.Commands[i].EventName())
		require.Equal(t, int64(i+1), marker.Seq)
		require.Equal(t, want.name, marker.Name)
		require.Equal(t, want.key, marker.Key)
	}
	require.IsType(t, &api.WorkflowCompleted{}, d.Commands[5])

	history = recordStep(history, d)
	d = runHistory(t, workflows, history...)
	require.NoError(t, d.Failure)
	require.Empty(t, d.Commands)

	require.Len(t, seen, 2)
	require.Equal(t, seen[0], seen[1])
	require.Equal(t, Version(2), seen[0].Version)
	require.Equal(t, "token-1", seen[0].Token)
	require.Equal(t, 1, sideEffects)
}

func TestExecutor_GetVersionOnHistoryBeforeChange(t *testing.T) {
	var got Version
	wf := func(ctx Context) (string, error) {
		got = GetVersion(ctx, "skip-sleep", DefaultVersion, 1)
		if got == DefaultVersion {
			if err := Sleep(ctx, time.Minute); err != nil {
				return "", err
			}
		}
		return "done", nil
	}
	workflows := map[string]any{"versioned": wf}
	old := []api.HistoryEvent{
		started(t, "versioned"),
		&api.WorkflowTaskCompleted{},
		&api.TimerStarted{Seq: 1, Duration: time.Minute},
		&api.TimerFired{StartedSeq: 1},
		&api.WorkflowTaskCompleted{},
		&api.WorkflowCompleted{Seq: 2, Result: encode(t, "done")},
	}

	d := runHistory(t, workflows, old...)
	require.NoError(t, d.Failure)
	require.Empty(t, d.Commands)
	require.Equal(t, DefaultVersion, got)

	d = runHistory(t, workflows, started(t, "versioned"))
	require.Equal(t, Version(1), got)
	require.Len(t, d.Commands, 2)
	marker, ok := d.Commands[0].(*api.MarkerRecorded)
	require.True(t, ok)
	require.Equal(t, api.MarkerVersion, marker.Name)
	require.Equal(t, "skip-sleep", marker.Key)
}

func TestExecutor_PanicFailsWorkflow(t *testing.T) {
	wf := func(ctx Context) error {
		panic("boom")
	}
	d := runHistory(t, map[string]any{"wf": wf}, started(t, "wf"))

	var panicErr *PanicError
	require.ErrorAs(t, d.Failure, &panicErr)
	require.Equal(t, "boom", panicErr.Value)
	failed := requireFailed(t, d)
	require.Equal(t, failurePanic, failed.Failure.Kind)
	require.Equal(t, "boom", failed.Failure.Message)
}

func TestExecutor_DeadlockDetection(t *testing.T) {
	block := make(chan struct{})
	wf := func(ctx Context) error {
		<-block
		return nil
	}
	d, err := testExecutor(t, 50*time.Millisecond, map[string]any{"stuck": wf}).execute([]api.HistoryEvent{started(t, "stuck")})
	require.NoError(t, err)

	var progErr *ProgrammingError
	require.ErrorAs(t, d.Failure, &progErr)
	require.Contains(t, progErr.Message, "did not yield")
	require.Equal(t, failureProgramming, requireFailed(t, d).Failure.Kind)
}

func TestExecutor_LeakedCoroutineCannotEmit(t *testing.T) {
	block := make(chan struct{})
	exited := make(chan struct{})
	wf := func(ctx Context) error {
		defer close(exited)
		<-block
		return Sleep(ctx, time.Minute)
	}
	e := testExecutor(t, 50*time.Millisecond, map[string]any{"stuck": wf})
	d, err := e.execute([]api.HistoryEvent{started(t, "stuck")})
	require.NoError(t, err)
	require.Len(t, d.Commands, 1)
	seq := e.seq

	close(block)
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "leaked coroutine did not exit")
	}
	require.Len(t, d.Commands, 1)
	require.Len(t, e.produced, 1)
	require.Equal(t, seq, e.seq)
	require.Panics(t, func() { e.nextSeq() })
}

func TestExecutor_MalformedHistory(t *testing.T) {
	_, err := testExecutor(t, time.Second, nil).execute([]api.HistoryEvent{
		&api.TimerStarted{Seq: 1, Duration: time.Second},
	})
	require.ErrorContains(t, err, "malformed history")
}
