package ratelimit

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow reports whether a request may go out right now and records it if so
	Allow() bool
	// Wait blocks until the next request may go out
	Wait(ctx context.Context) error
	// Reset forgets all recorded requests
	Reset()
}

// Profile describes how a human-like client paces its requests
type Profile struct {
	Name     string
	MinDelay time.Duration
	MaxDelay time.Duration
	PerHour  int
}

var (
	// Conservative is the safest pace, recommended for new accounts
	Conservative = Profile{Name: "conservative", MinDelay: 3 * time.Second, MaxDelay: 7 * time.Second, PerHour: 40}
	// Moderate is the default pace
	Moderate = Profile{Name: "moderate", MinDelay: 2 * time.Second, MaxDelay: 5 * time.Second, PerHour: 60}
	// Aggressive is for testing only
	Aggressive = Profile{Name: "aggressive", MinDelay: 1 * time.Second, MaxDelay: 3 * time.Second, PerHour: 80}
	// Analytics suits follower list paging
	Analytics = Profile{Name: "analytics", MinDelay: 700 * time.Millisecond, MaxDelay: 1500 * time.Millisecond, PerHour: 100}
)

// ProfileByName looks up one of the predefined profiles
func ProfileByName(name string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "conservative":
		return Conservative, nil
	case "moderate", "":
		return Moderate, nil
	case "aggressive":
		return Aggressive, nil
	case "analytics":
		return Analytics, nil
	default:
		return Profile{}, fmt.Errorf("unknown rate profile: %s", name)
	}
}

// Human spaces requests by a jittered delay and caps them with an hourly budget
type Human struct {
	profile Profile
	budget  *rate.Limiter

	mu        sync.Mutex
	last      time.Time
	lastDelay time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	rng   *rand.Rand
}

// Option customizes a Human limiter
type Option func(*Human)

// WithClock replaces the time source and the sleeper, for tests
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(h *Human) {
		h.now = now
		h.sleep = sleep
	}
}

// WithSeed makes the jitter deterministic
func WithSeed(seed int64) Option {
	return func(h *Human) {
		h.rng = rand.New(rand.NewSource(seed))
	}
}

// NewHuman creates a limiter for the given profile.
// Delays below half a second are raised and MaxDelay never undercuts MinDelay.
func NewHuman(p Profile, opts ...Option) *Human {
	if p.MinDelay < 500*time.Millisecond {
		p.MinDelay = 500 * time.Millisecond
	}
	if p.MaxDelay < p.MinDelay {
		p.MaxDelay = p.MinDelay
	}
	if p.PerHour < 1 {
		p.PerHour = 1
	}

	h := &Human{
		profile: p,
		budget:  rate.NewLimiter(rate.Every(time.Hour/time.Duration(p.PerHour)), p.PerHour),
		now:     time.Now,
		sleep:   sleepCtx,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Profile returns the effective pacing profile
func (h *Human) Profile() Profile {
	return h.profile
}

// Allow checks if a request can proceed without waiting
func (h *Human) Allow() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	if !h.last.IsZero() && now.Sub(h.last) < h.profile.MinDelay {
		return false
	}
	if !h.budget.AllowN(now, 1) {
		return false
	}
	h.last = now
	h.lastDelay = 0
	return true
}

// Wait blocks until the hourly budget has room and the jittered spacing has elapsed
func (h *Human) Wait(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	reservation := h.budget.ReserveN(now, 1)
	if !reservation.OK() {
		return fmt.Errorf("rate budget of %d/hour cannot serve a request", h.profile.PerHour)
	}
	budgetDelay := reservation.DelayFrom(now)

	var spacing time.Duration
	if !h.last.IsZero() {
		if needed := h.profile.MinDelay - now.Sub(h.last); needed > 0 {
			spacing = needed + h.jitter()
		}
	}

	delay := budgetDelay
	if spacing > delay {
		delay = spacing
	}

	if delay > 0 {
		if err := h.sleep(ctx, delay); err != nil {
			reservation.CancelAt(now)
			return err
		}
	}

	h.last = h.now()
	h.lastDelay = delay
	return nil
}

// LastDelay reports how long the most recent Wait slept
func (h *Human) LastDelay() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastDelay
}

// Reset forgets the request history and refills the hourly budget
func (h *Human) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.last = time.Time{}
	h.lastDelay = 0
	h.budget = rate.NewLimiter(rate.Every(time.Hour/time.Duration(h.profile.PerHour)), h.profile.PerHour)
}

func (h *Human) jitter() time.Duration {
	span := h.profile.MaxDelay - h.profile.MinDelay
	if span <= 0 {
		return 0
	}
	return time.Duration(h.rng.Int63n(int64(span)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Unlimited never waits; useful for tests and local fakes
type Unlimited struct{}

func (Unlimited) Allow() bool { return true }
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (Unlimited) Reset() {}
