// Package ratelimit paces requests against the content source.
//
// Human combines two limits: a jittered minimum spacing between consecutive
// requests and an hourly request budget backed by golang.org/x/time/rate.
// Four profiles are predefined (conservative, moderate, aggressive,
// analytics); the Instagram client receives its own limiter at construction,
// there is no package level instance.
//
//	limiter := ratelimit.NewHuman(ratelimit.Moderate)
//	if err := limiter.Wait(ctx); err != nil {
//	    return err
//	}
package ratelimit
