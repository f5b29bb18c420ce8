package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func newTestLimiter(limit Limit, clock *fakeClock) *Limiter {
	l := NewLimiter(limit)
	l.now = clock.Now
	l.sleep = clock.Sleep
	return l
}

func TestLimiterDelaysRequestBeyondQuota(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	window := 10 * time.Second
	l := newTestLimiter(Limit{Requests: 3, Window: window}, clock)

	for i := 0; i < 3; i++ {
		waited, err := l.Wait(context.Background())
		require.NoError(t, err)
		assert.Zero(t, waited, "request %d should not wait", i+1)
	}

	waited, err := l.Wait(context.Background())
	require.NoError(t, err)
	assert.Greater(t, waited, time.Duration(0))
	assert.LessOrEqual(t, waited, window)
}

func TestLimiterWaitsOnlyUntilOldestEntryExpires(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := newTestLimiter(Limit{Requests: 2, Window: time.Minute}, clock)

	_, _ = l.Wait(context.Background())
	clock.now = clock.now.Add(20 * time.Second)
	_, _ = l.Wait(context.Background())

	waited, err := l.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40*time.Second, waited)
	assert.Equal(t, 2, l.InFlight())
}

func TestLimiterUnlimitedWhenNotConfigured(t *testing.T) {
	var l *Limiter
	waited, err := l.Wait(context.Background())
	require.NoError(t, err)
	assert.Zero(t, waited)

	l = NewLimiter(Limit{})
	for i := 0; i < 100; i++ {
		_, err := l.Wait(context.Background())
		require.NoError(t, err)
	}
}

func TestLimiterNeverAdmitsMoreThanQuotaConcurrently(t *testing.T) {
	l := NewLimiter(Limit{Requests: 5, Window: time.Hour})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.reserve() == 0 {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, admitted)
	assert.Equal(t, 5, l.InFlight())
}

func TestLimiterWaitHonoursContext(t *testing.T) {
	l := NewLimiter(Limit{Requests: 1, Window: time.Hour})
	_, err := l.Wait(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
