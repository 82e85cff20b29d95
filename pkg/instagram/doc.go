// Package instagram is the content source: a client for the Instagram
// private API that logs in, lists the account's posts and live stories, and
// pages through its followers.
//
// Upstream media is normalized into content.Item at this edge. Every API
// call first waits on the injected rate limiter and runs under the retry
// policy; HTTP failures come back as typed errors from pkg/errors, with a
// 429 turned into a rate_limit error carrying the Retry-After hint.
//
//	ig := instagram.NewClient(instagram.Config{SessionFile: "ig_session.json"},
//	    instagram.WithLimiter(ratelimit.NewHuman(ratelimit.Moderate)))
//	if err := ig.Authenticate(ctx, user, pass); err != nil {
//	    return err
//	}
//	stories, err := ig.FetchActiveStories(ctx)
package instagram
