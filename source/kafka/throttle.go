package kafka

import (
	"context"
	"sync"
	"time"
)

// Throttle is a token bucket capping how many messages enter the pipeline
// per refill window, so a backlogged topic cannot flood the transform and
// retry machinery after a restart.
type Throttle struct {
	capacity int64
	refill   int64

	mu     sync.Mutex
	tokens int64
	cond   *sync.Cond
	closed bool
}

func NewThrottle(capacity int64, tick time.Duration) *Throttle {
	t := &Throttle{
		capacity: capacity,
		refill:   capacity / 10,
		tokens:   capacity,
	}
	if t.refill == 0 {
		t.refill = 1
	}
	t.cond = sync.NewCond(&t.mu)

	go func() {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for range ticker.C {
			t.mu.Lock()
			if t.closed {
				t.mu.Unlock()
				return
			}
			t.tokens += t.refill
			if t.tokens > t.capacity {
				t.tokens = t.capacity
			}
			t.mu.Unlock()
			t.cond.Broadcast()
		}
	}()
	return t
}

// Acquire blocks until a token is available or the context ends.
func (t *Throttle) Acquire(ctx context.Context) error {
	stop := context.AfterFunc(ctx, t.cond.Broadcast)
	defer stop()

	t.mu.Lock()
	defer t.mu.Unlock()
	for t.tokens == 0 && ctx.Err() == nil && !t.closed {
		t.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.closed {
		return context.Canceled
	}
	t.tokens--
	return nil
}

func (t *Throttle) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.cond.Broadcast()
}
