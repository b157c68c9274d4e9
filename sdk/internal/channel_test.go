package internal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChannel_UnbufferedHandoff(t *testing.T) {
	wf := func(ctx Context) (int, error) {
		ch := NewChannel(ctx)
		if ch.SendAsync(1) {
			return 0, errors.New("unbuffered send accepted without a receiver")
		}
		Go(ctx, func(ctx Context) {
			for i := 1; i <= 3; i++ {
				ch.Send(ctx, i)
			}
			ch.Close()
		})
		sum := 0
		for {
			var v int
			if !ch.Receive(ctx, &v) {
				break
			}
			sum += v
		}
		return sum, nil
	}
	d := runHistory(t, map[string]any{"wf": wf}, started(t, "wf"))

	var got int
	requireCompleted(t, d, &got)
	require.Equal(t, 6, got)
}

type bufferedResult struct {
	Accepted []bool
	Len      int
	Values   []int
	More     bool
}

func TestChannel_BufferedCapacity(t *testing.T) {
	wf := func(ctx Context) (bufferedResult, error) {
		ch := NewBufferedChannel(ctx, 2)
		var r bufferedResult
		for i := 1; i <= 3; i++ {
			r.Accepted = append(r.Accepted, ch.SendAsync(i))
		}
		r.Len = ch.Len()
		ch.Close()
		for {
			var v int
			ok, more := ch.ReceiveWithMoreFlag(&v)
			if !ok {
				r.More = more
				break
			}
			r.Values = append(r.Values, v)
		}
		return r, nil
	}
	d := runHistory(t, map[string]any{"wf": wf}, started(t, "wf"))

	var got bufferedResult
	requireCompleted(t, d, &got)
	require.Equal(t, []bool{true, true, false}, got.Accepted)
	require.Equal(t, 2, got.Len)
	require.Equal(t, []int{1, 2}, got.Values)
	require.False(t, got.More)
}

func TestChannel_BlockedSenderResumesInOrder(t *testing.T) {
	wf := func(ctx Context) ([]string, error) {
		ch := NewBufferedChannel(ctx, 1)
		var events []string
		Go(ctx, func(ctx Context) {
			ch.Send(ctx, "a")
			ch.Send(ctx, "b")
			events = append(events, "sent")
		})
		Yield(ctx)
		events = append(events, "buffer full")
		for range 2 {
			var v string
			ch.Receive(ctx, &v)
			events = append(events, v)
		}
		return events, nil
	}
	d := runHistory(t, map[string]any{"wf": wf}, started(t, "wf"))

	var got []string
	requireCompleted(t, d, &got)
	require.Equal(t, []string{"buffer full", "a", "b"}, got)
}

func TestChannel_SendOnClosedFailsWorkflow(t *testing.T) {
	wf := func(ctx Context) error {
		ch := NewBufferedChannel(ctx, 1)
		ch.Close()
		ch.Send(ctx, 1)
		return nil
	}
	d := runHistory(t, map[string]any{"wf": wf}, started(t, "wf"))

	var progErr *ProgrammingError
	require.ErrorAs(t, d.Failure, &progErr)
	require.Contains(t, progErr.Message, "send on closed channel")
	require.Equal(t, failureProgramming, requireFailed(t, d).Failure.Kind)
}
