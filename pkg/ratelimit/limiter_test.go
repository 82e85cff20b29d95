package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func TestProfileByName(t *testing.T) {
	tests := []struct {
		name    string
		want    Profile
		wantErr bool
	}{
		{"conservative", Conservative, false},
		{"Moderate", Moderate, false},
		{"", Moderate, false},
		{"aggressive", Aggressive, false},
		{"analytics", Analytics, false},
		{"turbo", Profile{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ProfileByName(tt.name)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.want, p)
		})
	}

	assert.Equal(t, 40, Conservative.PerHour)
	assert.Equal(t, 3*time.Second, Conservative.MinDelay)
	assert.Equal(t, 100, Analytics.PerHour)
}

func TestHumanSpacingWithJitter(t *testing.T) {
	clock := newFakeClock()
	h := NewHuman(Moderate, WithClock(clock.Now, clock.Sleep), WithSeed(7))
	ctx := context.Background()

	require.NoError(t, h.Wait(ctx))
	assert.Empty(t, clock.sleeps, "first request goes out immediately")

	for i := 0; i < 5; i++ {
		require.NoError(t, h.Wait(ctx))
		delay := h.LastDelay()
		assert.GreaterOrEqual(t, delay, Moderate.MinDelay)
		assert.Less(t, delay, Moderate.MaxDelay)
	}
	assert.Len(t, clock.sleeps, 5)
}

func TestHumanNoSleepAfterIdle(t *testing.T) {
	clock := newFakeClock()
	h := NewHuman(Moderate, WithClock(clock.Now, clock.Sleep))
	ctx := context.Background()

	require.NoError(t, h.Wait(ctx))
	clock.now = clock.now.Add(10 * time.Second)
	require.NoError(t, h.Wait(ctx))

	assert.Empty(t, clock.sleeps)
	assert.Zero(t, h.LastDelay())
}

func TestHumanHourlyBudget(t *testing.T) {
	clock := newFakeClock()
	p := Profile{Name: "tiny", MinDelay: 500 * time.Millisecond, MaxDelay: 500 * time.Millisecond, PerHour: 2}
	h := NewHuman(p, WithClock(clock.Now, clock.Sleep))
	ctx := context.Background()

	require.NoError(t, h.Wait(ctx))
	require.NoError(t, h.Wait(ctx))
	require.NoError(t, h.Wait(ctx))

	require.Len(t, clock.sleeps, 2)
	assert.Equal(t, 500*time.Millisecond, clock.sleeps[0])
	assert.Greater(t, clock.sleeps[1], 29*time.Minute, "third request waits for the budget to refill")
}

func TestHumanAllow(t *testing.T) {
	clock := newFakeClock()
	h := NewHuman(Aggressive, WithClock(clock.Now, clock.Sleep))

	assert.True(t, h.Allow())
	assert.False(t, h.Allow(), "spacing not yet elapsed")

	clock.now = clock.now.Add(2 * time.Second)
	assert.True(t, h.Allow())

	h.Reset()
	assert.True(t, h.Allow())
}

func TestHumanWaitCancelled(t *testing.T) {
	clock := newFakeClock()
	h := NewHuman(Moderate, WithClock(clock.Now, clock.Sleep))

	require.NoError(t, h.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewHumanClampsProfile(t *testing.T) {
	h := NewHuman(Profile{MinDelay: 100 * time.Millisecond, MaxDelay: 0, PerHour: 0})

	p := h.Profile()
	assert.Equal(t, 500*time.Millisecond, p.MinDelay)
	assert.Equal(t, 500*time.Millisecond, p.MaxDelay)
	assert.Equal(t, 1, p.PerHour)
}

func TestUnlimited(t *testing.T) {
	var l Limiter = Unlimited{}
	assert.True(t, l.Allow())
	assert.NoError(t, l.Wait(context.Background()))
}
