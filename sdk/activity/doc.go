// Package activity gives activity code access to its attempt.
//
// An activity is a plain function taking a context.Context first:
//
//	func ChargeCard(ctx context.Context, orderID string, amount int64) (string, error)
//
// The context is canceled when the attempt exceeds StartToCloseTimeout or the
// workflow cancels the activity. GetInfo reports the run, activity type and
// attempt number; GetLogger returns a logger tagged with them. Activities with
// a HeartbeatTimeout call RecordHeartbeat from long loops.
//
// A returned error is retried according to the RetryPolicy of the scheduling
// workflow. A non-retryable workflow.ApplicationError, or one whose Type is in
// RetryPolicy.NonRetryableErrorTypes, fails the activity at once. Attempts may
// run more than once, so activities should be idempotent.
package activity
