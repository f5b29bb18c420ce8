package client

import (
	"context"
	"sync"
	"time"
)

// Limit is a sliding window quota: at most Requests sends within any
// trailing Window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Limiter keeps a log of send timestamps for one platform. It is shared by
// every task targeting that platform in the process.
type Limiter struct {
	mu    sync.Mutex
	limit Limit
	log   []time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewLimiter(limit Limit) *Limiter {
	return &Limiter{
		limit: limit,
		now:   time.Now,
		sleep: sleepContext,
	}
}

func (l *Limiter) Limit() Limit {
	return l.limit
}

// Wait blocks the calling goroutine until a slot is free in the window and
// records the send. Pruning, the capacity check and the append happen under
// one lock so two callers cannot both claim the last slot.
func (l *Limiter) Wait(ctx context.Context) (time.Duration, error) {
	if l == nil || l.limit.Requests <= 0 || l.limit.Window <= 0 {
		return 0, nil
	}

	var waited time.Duration
	for {
		delay := l.reserve()
		if delay == 0 {
			return waited, nil
		}
		if err := l.sleep(ctx, delay); err != nil {
			return waited, err
		}
		waited += delay
	}
}

// reserve either records a send and returns 0, or returns how long until
// the oldest entry leaves the window.
func (l *Limiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.limit.Window)
	i := 0
	for i < len(l.log) && !l.log[i].After(cutoff) {
		i++
	}
	l.log = l.log[i:]

	if len(l.log) < l.limit.Requests {
		l.log = append(l.log, now)
		return 0
	}

	delay := l.limit.Window - now.Sub(l.log[0])
	if delay <= 0 {
		delay = time.Millisecond
	}
	return delay
}

// InFlight returns the number of sends currently inside the window.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.limit.Window)
	n := 0
	for _, t := range l.log {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
