// Package retry runs adapter calls with exponential backoff and jitter.
//
// Only transient typed errors (network, server_error, rate_limit,
// session_closed) are retried. A rate_limit error carrying a RetryAfter hint
// is waited out in-line when the hint is short enough; otherwise the error is
// returned at once so the caller can give up on the run.
//
//	items, err := retry.DoWithResult(ctx, func() ([]*content.Item, error) {
//	    return client.FetchActiveStories(ctx)
//	}, retry.DefaultConfig())
package retry
