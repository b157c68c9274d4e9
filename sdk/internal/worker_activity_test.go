package internal

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ngnhng/durablereplay/api"
)

func TestCalculateRetryDelay(t *testing.T) {
	w := &workerImpl{logger: slog.New(slog.DiscardHandler)}
	policy := &api.RetryPolicy{InitialInterval: time.Second, BackoffCoefficient: 2, MaximumInterval: 5 * time.Second}

	tests := []struct {
		name    string
		policy  *api.RetryPolicy
		attempt int32
		want    time.Duration
	}{
		{"first retry", policy, 1, time.Second},
		{"second retry", policy, 2, 2 * time.Second},
		{"third retry", policy, 3, 4 * time.Second},
		{"capped", policy, 4, 5 * time.Second},
		{"overflow is capped", policy, 80, 5 * time.Second},
		{"no policy", nil, 3, time.Second},
		{"defaults", &api.RetryPolicy{}, 3, 4 * time.Second},
		{"default cap", &api.RetryPolicy{InitialInterval: time.Millisecond}, 20, 100 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := &api.ActivityTask{Attempt: tt.attempt, Parameters: api.ActivityParameters{RetryPolicy: tt.policy}}
			require.Equal(t, tt.want, w.calculateRetryDelay(task))
		})
	}
}

func TestEvaluateRetryDecision(t *testing.T) {
	w := &workerImpl{logger: slog.New(slog.DiscardHandler)}
	retryable := errors.New("transient")

	tests := []struct {
		name  string
		task  api.ActivityTask
		err   error
		retry bool
	}{
		{
			name:  "no policy",
			task:  api.ActivityTask{Attempt: 1},
			err:   retryable,
			retry: false,
		},
		{
			name:  "retryable error",
			task:  api.ActivityTask{Attempt: 1, Parameters: api.ActivityParameters{RetryPolicy: &api.RetryPolicy{MaximumAttempts: 3}}},
			err:   retryable,
			retry: true,
		},
		{
			name:  "attempts exhausted",
			task:  api.ActivityTask{Attempt: 3, Parameters: api.ActivityParameters{RetryPolicy: &api.RetryPolicy{MaximumAttempts: 3}}},
			err:   retryable,
			retry: false,
		},
		{
			name:  "unlimited attempts",
			task:  api.ActivityTask{Attempt: 50, Parameters: api.ActivityParameters{RetryPolicy: &api.RetryPolicy{}}},
			err:   retryable,
			retry: true,
		},
		{
			name:  "non-retryable application error",
			task:  api.ActivityTask{Attempt: 1, Parameters: api.ActivityParameters{RetryPolicy: &api.RetryPolicy{}}},
			err:   NewApplicationError("bad input", "InvalidArgument", true, nil),
			retry: false,
		},
		{
			name: "non-retryable error type",
			task: api.ActivityTask{Attempt: 1, Parameters: api.ActivityParameters{RetryPolicy: &api.RetryPolicy{
				NonRetryableErrorTypes: []string{"CardDeclined"},
			}}},
			err:   NewApplicationError("declined", "CardDeclined", false, nil),
			retry: false,
		},
		{
			name:  "canceled",
			task:  api.ActivityTask{Attempt: 1, Parameters: api.ActivityParameters{RetryPolicy: &api.RetryPolicy{}}},
			err:   NewCanceledError("activity canceled"),
			retry: false,
		},
		{
			name:  "schedule to close timeout",
			task:  api.ActivityTask{Attempt: 1, Parameters: api.ActivityParameters{RetryPolicy: &api.RetryPolicy{}}},
			err:   NewTimeoutError(TimeoutScheduleToClose),
			retry: false,
		},
		{
			name:  "start to close timeout",
			task:  api.ActivityTask{Attempt: 1, Parameters: api.ActivityParameters{RetryPolicy: &api.RetryPolicy{}}},
			err:   NewTimeoutError(TimeoutStartToClose),
			retry: true,
		},
		{
			name: "retry would exceed schedule to close",
			task: api.ActivityTask{
				Attempt:          2,
				FirstScheduledAt: time.Now().Add(-4 * time.Second),
				Parameters: api.ActivityParameters{
					ScheduleToCloseTimeout: 5 * time.Second,
					RetryPolicy:            &api.RetryPolicy{InitialInterval: time.Second},
				},
			},
			err:   retryable,
			retry: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.retry, w.evaluateRetryDecision(&tt.task, tt.err))
		})
	}
}
