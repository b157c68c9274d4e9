package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ngnhng/durablereplay/api"
)

func TestSelector_ReadinessOrder(t *testing.T) {
	wf := func(ctx Context) ([]string, error) {
		a, b := NewBufferedChannel(ctx, 1), NewBufferedChannel(ctx, 1)
		var picks []string
		pick := func() {
			var v string
			NewSelector(ctx).
				AddReceive(a, func(c ReceiveChannel, _ bool) { c.ReceiveAsync(&v) }).
				AddReceive(b, func(c ReceiveChannel, _ bool) { c.ReceiveAsync(&v) }).
				Select(ctx)
			picks = append(picks, v)
		}

		// ready at the same instant: registration order decides
		b.SendAsync("b1")
		a.SendAsync("a1")
		pick()
		pick()

		// b became ready first
		b.SendAsync("b2")
		Yield(ctx)
		a.SendAsync("a2")
		pick()
		pick()
		return picks, nil
	}
	d := runHistory(t, map[string]any{"wf": wf}, started(t, "wf"))

	var got []string
	requireCompleted(t, d, &got)
	require.Equal(t, []string{"a1", "b1", "b2", "a2"}, got)
}

func TestSelector_SignalsInArrivalOrder(t *testing.T) {
	wf := func(ctx Context) ([]string, error) {
		a, b := GetSignalChannel(ctx, "a"), GetSignalChannel(ctx, "b")
		var picks []string
		for range 3 {
			var v string
			NewSelector(ctx).
				AddReceive(a, func(c ReceiveChannel, _ bool) { c.ReceiveAsync(&v) }).
				AddReceive(b, func(c ReceiveChannel, _ bool) { c.ReceiveAsync(&v) }).
				Select(ctx)
			picks = append(picks, v)
		}
		return picks, nil
	}
	d := runHistory(t, map[string]any{"wf": wf},
		started(t, "wf"),
		&api.SignalReceived{Name: "a", Payload: encode(t, "a1")},
		&api.SignalReceived{Name: "b", Payload: encode(t, "b1")},
		&api.SignalReceived{Name: "a", Payload: encode(t, "a2")},
	)

	var got []string
	requireCompleted(t, d, &got)
	require.Equal(t, []string{"a1", "b1", "a2"}, got)
}

func TestSelector_UnbufferedSendMeetsSelectReceive(t *testing.T) {
	receive := func(ctx Context, ch Channel) string {
		got := "timer"
		NewSelector(ctx).
			AddReceive(ch, func(c ReceiveChannel, _ bool) { c.Receive(ctx, &got) }).
			AddFuture(NewTimer(ctx, time.Hour), func(Future) {}).
			Select(ctx)
		return got
	}
	send := func(ctx Context, ch Channel) {
		NewSelector(ctx).
			AddSend(ch, "x", func() {}).
			AddFuture(NewTimer(ctx, time.Hour), func(Future) {}).
			Select(ctx)
	}

	tests := []struct {
		name string
		wf   func(ctx Context) (string, error)
	}{
		{
			name: "receiver parks first",
			wf: func(ctx Context) (string, error) {
				ch := NewChannel(ctx)
				Go(ctx, func(ctx Context) { send(ctx, ch) })
				return receive(ctx, ch), nil
			},
		},
		{
			name: "sender parks first",
			wf: func(ctx Context) (string, error) {
				ch := NewChannel(ctx)
				done, settable := NewFuture(ctx)
				Go(ctx, func(ctx Context) { settable.SetValue(receive(ctx, ch)) })
				send(ctx, ch)
				var got string
				err := done.Get(ctx, &got)
				return got, err
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := runHistory(t, map[string]any{"wf": tt.wf}, started(t, "wf"))
			var got string
			requireCompleted(t, d, &got)
			require.Equal(t, "x", got)
		})
	}
}

func TestSelector_DefaultAndFutureFiresOnce(t *testing.T) {
	type result struct {
		Pending []bool
		Chosen  []string
	}
	wf := func(ctx Context) (result, error) {
		var r result
		f, s := NewFuture(ctx)
		sel := NewSelector(ctx)
		sel.AddFuture(f, func(Future) { r.Chosen = append(r.Chosen, "future") })
		sel.AddDefault(func() { r.Chosen = append(r.Chosen, "default") })

		r.Pending = append(r.Pending, sel.HasPending())
		sel.Select(ctx)
		s.SetValue("x")
		r.Pending = append(r.Pending, sel.HasPending())
		sel.Select(ctx)
		sel.Select(ctx)
		return r, nil
	}
	d := runHistory(t, map[string]any{"wf": wf}, started(t, "wf"))

	var got result
	requireCompleted(t, d, &got)
	require.Equal(t, []bool{false, true}, got.Pending)
	require.Equal(t, []string{"default", "future", "default"}, got.Chosen)
}

func TestSelector_SendCase(t *testing.T) {
	wf := func(ctx Context) (int, error) {
		ch := NewBufferedChannel(ctx, 1)
		sent := false
		NewSelector(ctx).
			AddSend(ch, 42, func() { sent = true }).
			Select(ctx)
		var v int
		if !sent || !ch.ReceiveAsync(&v) {
			return 0, nil
		}
		return v, nil
	}
	d := runHistory(t, map[string]any{"wf": wf}, started(t, "wf"))

	var got int
	requireCompleted(t, d, &got)
	require.Equal(t, 42, got)
}

func TestSelector_WithoutCasesFailsWorkflow(t *testing.T) {
	wf := func(ctx Context) error {
		NewSelector(ctx).Select(ctx)
		return nil
	}
	d := runHistory(t, map[string]any{"wf": wf}, started(t, "wf"))

	var progErr *ProgrammingError
	require.ErrorAs(t, d.Failure, &progErr)
	require.Contains(t, progErr.Message, "no cases")
}

func TestFuture_UnresolvedBlocksWithoutCommands(t *testing.T) {
	wf := func(ctx Context) (string, error) {
		f, _ := NewFuture(ctx)
		var v string
		err := f.Get(ctx, &v)
		return v, err
	}
	d := runHistory(t, map[string]any{"wf": wf}, started(t, "wf"))

	require.NoError(t, d.Failure)
	require.Empty(t, d.Commands)
}

func TestFuture_ChainAndSetFromCoroutine(t *testing.T) {
	wf := func(ctx Context) (string, error) {
		source, settable := NewFuture(ctx)
		chained, link := NewFuture(ctx)
		link.Chain(source)
		Go(ctx, func(ctx Context) { settable.SetValue("ready") })
		var v string
		if err := chained.Get(ctx, &v); err != nil {
			return "", err
		}
		if !source.IsReady() {
			return "", nil
		}
		return v, nil
	}
	d := runHistory(t, map[string]any{"wf": wf}, started(t, "wf"))

	var got string
	requireCompleted(t, d, &got)
	require.Equal(t, "ready", got)
}

func TestFuture_SetTwiceFailsWorkflow(t *testing.T) {
	wf := func(ctx Context) error {
		_, s := NewFuture(ctx)
		s.SetValue(1)
		s.SetValue(2)
		return nil
	}
	d := runHistory(t, map[string]any{"wf": wf}, started(t, "wf"))

	var progErr *ProgrammingError
	require.ErrorAs(t, d.Failure, &progErr)
	require.Equal(t, "future already completed", progErr.Message)
}
