// Package retry owns the transformation retry state machine: per-message
// attempt counters, backoff-delayed re-invocation through a bounded worker
// pool, and the decision between another attempt and the dead-letter sink.
package retry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"mtbridge/internal/logging"
	"mtbridge/internal/message"
)

var (
	// ErrShuttingDown is returned once Close has begun; no new retries are
	// accepted after that point.
	ErrShuttingDown = errors.New("retry scheduler is shutting down")

	// ErrShutdownTimeout reports that in-flight retries were force-cancelled
	// after the grace period elapsed.
	ErrShutdownTimeout = errors.New("retry scheduler shutdown grace period elapsed")
)

// Policy is the configured retry behaviour.
type Policy struct {
	Enabled     bool
	MaxAttempts int
	Backoff     Backoff
	Retryable   []message.Status
}

func (p Policy) retryable(s message.Status) bool {
	for _, candidate := range p.Retryable {
		if candidate == s {
			return true
		}
	}
	return false
}

// Job carries everything needed to re-run the transform→evaluate cycle for
// one message.
type Job struct {
	MessageID        string
	CorrelationID    string
	TransformationID string
	Input            string
	Kind             message.Kind
	InputQueue       string
	OutputQueue      string
}

// Executor runs one deferred attempt. The attempt number is 1-based and was
// assigned when the retry was scheduled. Implementations evaluate the
// outcome themselves (schedule again, or dead-letter); the scheduler only
// defers and bounds the work.
type Executor func(ctx context.Context, job Job, attempt int)

// Scheduler tracks attempts per message id and executes deferred retries.
// Retries for the same message are strictly sequential: the next one is
// scheduled only after the previous attempt's outcome is known. Different
// message ids interleave freely; the per-key state is a sync.Map with
// atomic counters, so no global lock serializes unrelated messages.
type Scheduler struct {
	policy Policy
	exec   Executor
	sem    *semaphore.Weighted

	attempts sync.Map // message id → *int64
	timers   sync.Map // message id → *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewScheduler builds a scheduler whose deferred work runs on a pool of at
// most workers goroutines.
func NewScheduler(policy Policy, workers int, exec Executor) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		policy: policy,
		exec:   exec,
		sem:    semaphore.NewWeighted(int64(workers)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// ShouldRetry reports whether a failed record is eligible for another
// attempt under the configured policy.
func (s *Scheduler) ShouldRetry(rec *message.Record) bool {
	if !s.policy.Enabled {
		return false
	}
	if !s.policy.retryable(rec.Status) {
		return false
	}
	return rec.Attempts < s.policy.MaxAttempts
}

// GetAttempt returns the current attempt count for a message id, 0 when none
// is in flight.
func (s *Scheduler) GetAttempt(messageID string) int {
	if p, ok := s.attempts.Load(messageID); ok {
		return int(atomic.LoadInt64(p.(*int64)))
	}
	return 0
}

// Forget discards retry bookkeeping for a message id once its record reached
// a terminal state.
func (s *Scheduler) Forget(messageID string) {
	s.attempts.Delete(messageID)
}

// ScheduleRetry increments the message's attempt counter (the first call for
// an id initializes it to 1), computes the backoff delay and arms a timer
// that hands the job to the worker pool.
func (s *Scheduler) ScheduleRetry(job Job) error {
	if s.closed.Load() {
		return ErrShuttingDown
	}

	attempt := s.bump(job.MessageID)
	delay := s.policy.Backoff.Next(attempt)

	s.wg.Add(1)
	timer := time.AfterFunc(delay, func() { s.run(job, attempt) })
	s.timers.Store(job.MessageID, timer)

	// Close may have raced past the check above; make sure a timer armed
	// after the shutdown sweep cannot fire.
	if s.closed.Load() {
		if timer.Stop() {
			s.timers.Delete(job.MessageID)
			s.wg.Done()
		}
		return ErrShuttingDown
	}

	logging.L().Debug("retry scheduled",
		"message_id", job.MessageID, "attempt", attempt, "delay", delay)
	return nil
}

func (s *Scheduler) bump(messageID string) int {
	p, _ := s.attempts.LoadOrStore(messageID, new(int64))
	return int(atomic.AddInt64(p.(*int64), 1))
}

func (s *Scheduler) run(job Job, attempt int) {
	defer s.wg.Done()
	s.timers.Delete(job.MessageID)

	if err := s.sem.Acquire(s.ctx, 1); err != nil {
		return
	}
	defer s.sem.Release(1)
	if s.ctx.Err() != nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logging.L().Error("retry executor panicked",
				"message_id", job.MessageID, "attempt", attempt, "panic", r)
		}
	}()
	s.exec(s.ctx, job, attempt)
}

// Close stops accepting new retries, cancels timers that have not fired,
// lets in-flight work finish within the grace period, then force-cancels
// whatever remains. A cancelled retry never resurrects afterwards.
func (s *Scheduler) Close(grace time.Duration) error {
	if s.closed.Swap(true) {
		return nil
	}

	s.timers.Range(func(key, value any) bool {
		if value.(*time.Timer).Stop() {
			s.wg.Done()
		}
		s.timers.Delete(key)
		return true
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-time.After(grace):
		s.cancel()
		<-done
		return ErrShutdownTimeout
	}
}
