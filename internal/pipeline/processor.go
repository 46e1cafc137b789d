// Package pipeline orchestrates the transform → publish → persist cycle and
// wires the retry scheduler's deferred attempts back into it.
package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"mtbridge/internal/logging"
	"mtbridge/internal/message"
	"mtbridge/internal/retry"
	"mtbridge/internal/telemetry"
	"mtbridge/internal/transform"
)

// Publisher is the queue capability the processor emits to.
type Publisher interface {
	Publish(ctx context.Context, queue string, payload []byte, headers map[string]string) error
}

// RecordStore persists transformation records. Optional collaborator: a nil
// store disables auditing.
type RecordStore interface {
	Store(ctx context.Context, rec *message.Record) error
}

// Message headers attached to every publish.
const (
	HeaderCorrelationID    = "correlation-id"
	HeaderAttempts         = "attempts"
	HeaderTransformationID = "transformation-id"
)

// Config is the processor's policy surface.
type Config struct {
	DeadLetterQueue string
	// StoreRetryAttempts persists the record each time a retry is scheduled,
	// not only at terminal states.
	StoreRetryAttempts bool
	Workers            int
	ShutdownGrace      time.Duration
	Retry              retry.Policy
}

// Inbound is one message entering the pipeline. TransformationID is empty
// for first deliveries and carried forward on retries so the whole lineage
// persists under one record.
type Inbound struct {
	MessageID        string
	CorrelationID    string
	TransformationID string
	Payload          string
	Kind             message.Kind
	InputQueue       string
	OutputQueue      string
}

// Processor runs the full cycle for inbound messages. It owns the retry
// scheduler; retry state never leaks outside this pair.
type Processor struct {
	cfg       Config
	engine    *transform.Engine
	publisher Publisher
	records   RecordStore
	metrics   *telemetry.Metrics
	scheduler *retry.Scheduler
}

func NewProcessor(cfg Config, engine *transform.Engine, publisher Publisher, records RecordStore, metrics *telemetry.Metrics) *Processor {
	p := &Processor{
		cfg:       cfg,
		engine:    engine,
		publisher: publisher,
		records:   records,
		metrics:   metrics,
	}
	p.scheduler = retry.NewScheduler(cfg.Retry, cfg.Workers, p.executeRetry)
	return p
}

// Scheduler exposes attempt lookups for callers building diagnostics.
func (p *Processor) Scheduler() *retry.Scheduler { return p.scheduler }

// Close drains the retry scheduler within the configured grace period.
func (p *Processor) Close() error {
	return p.scheduler.Close(p.cfg.ShutdownGrace)
}

// Process transforms one message and routes the outcome: publish + persist
// on success, retry or dead-letter on failure. The returned record always
// carries a definite status; an error is returned only for hard persistence
// failures after the outcome was already decided.
func (p *Processor) Process(ctx context.Context, in Inbound) (*message.Record, error) {
	started := time.Now()
	res := p.engine.Transform(in.Payload, in.Kind)
	transformTook := time.Since(started)

	rec := message.NewRecord(in.Kind, in.MessageID, in.CorrelationID)
	if in.TransformationID != "" {
		rec.TransformationID = in.TransformationID
	}
	rec.InputMessage = in.Payload
	rec.OutputMessage = res.Output
	rec.InputQueue = in.InputQueue
	rec.OutputQueue = in.OutputQueue
	rec.Status = res.Status
	rec.ErrorMessage = res.Error
	rec.Warnings = res.Warnings
	rec.Confidence = res.Confidence
	rec.Durations.Transform = transformTook
	rec.Attempts = p.scheduler.GetAttempt(in.MessageID)
	rec.MaxAttempts = p.cfg.Retry.MaxAttempts

	p.metrics.ObserveTransformation(string(in.Kind), string(res.Status))
	p.metrics.ObserveStage("transform", transformTook)

	if res.Status == message.StatusSuccess || res.Status == message.StatusPartialSuccess {
		return p.finishSuccess(ctx, in, rec)
	}
	return p.evaluateFailure(ctx, in, rec)
}

// finishSuccess publishes before persisting; a crash between the two is an
// accepted failure window.
func (p *Processor) finishSuccess(ctx context.Context, in Inbound, rec *message.Record) (*message.Record, error) {
	publishStart := time.Now()
	err := p.publisher.Publish(ctx, in.OutputQueue, []byte(rec.OutputMessage), p.headers(rec))
	rec.Durations.Publish = time.Since(publishStart)
	if err != nil {
		// Fire-and-forget: record the failure, do not retry the publish.
		rec.Warnings = append(rec.Warnings, fmt.Sprintf("publish failed: %v", err))
		logging.L().Error("publish failed",
			"queue", in.OutputQueue, "message_id", in.MessageID, "error", err)
	}

	if storeErr := p.persist(ctx, rec); storeErr != nil {
		logging.L().Error("persist failed after publish",
			"transformation_id", rec.TransformationID, "error", storeErr)
		p.scheduler.Forget(in.MessageID)
		return rec, storeErr
	}
	p.scheduler.Forget(in.MessageID)
	return rec, nil
}

func (p *Processor) evaluateFailure(ctx context.Context, in Inbound, rec *message.Record) (*message.Record, error) {
	if p.scheduler.ShouldRetry(rec) {
		job := retry.Job{
			MessageID:        in.MessageID,
			CorrelationID:    rec.CorrelationID,
			TransformationID: rec.TransformationID,
			Input:            in.Payload,
			Kind:             in.Kind,
			InputQueue:       in.InputQueue,
			OutputQueue:      in.OutputQueue,
		}
		if err := p.scheduler.ScheduleRetry(job); err != nil {
			// Shutdown raced the failure; dead-letter rather than drop.
			return p.deadLetter(ctx, in, rec)
		}
		rec.Status = message.StatusRetry
		rec.Attempts = p.scheduler.GetAttempt(in.MessageID)
		p.metrics.RetryScheduled()

		// The record is persisted mid-retry only when configured; the
		// terminal persist always happens.
		if p.cfg.StoreRetryAttempts {
			if err := p.persist(ctx, rec); err != nil {
				logging.L().Error("persist retry attempt failed",
					"transformation_id", rec.TransformationID, "error", err)
			}
		}
		return rec, nil
	}
	return p.deadLetter(ctx, in, rec)
}

func (p *Processor) deadLetter(ctx context.Context, in Inbound, rec *message.Record) (*message.Record, error) {
	rec.Status = message.StatusDeadLetter
	p.metrics.DeadLettered()

	if p.cfg.DeadLetterQueue != "" {
		publishStart := time.Now()
		err := p.publisher.Publish(ctx, p.cfg.DeadLetterQueue, []byte(in.Payload), p.headers(rec))
		rec.Durations.Publish = time.Since(publishStart)
		if err != nil {
			rec.Warnings = append(rec.Warnings, fmt.Sprintf("dead-letter publish failed: %v", err))
			logging.L().Error("dead-letter publish failed",
				"queue", p.cfg.DeadLetterQueue, "message_id", in.MessageID, "error", err)
		}
	}

	err := p.persist(ctx, rec)
	p.scheduler.Forget(in.MessageID)
	if err != nil {
		logging.L().Error("persist dead-letter record failed",
			"transformation_id", rec.TransformationID, "error", err)
		return rec, err
	}
	logging.L().Warn("message dead-lettered",
		"message_id", in.MessageID, "attempts", rec.Attempts, "status_error", rec.ErrorMessage)
	return rec, nil
}

// executeRetry is the scheduler's deferred entry point: re-run the full
// cycle. Errors here were already evaluated against the retry policy inside
// Process, so they are logged, never rethrown into the worker pool.
func (p *Processor) executeRetry(ctx context.Context, job retry.Job, attempt int) {
	in := Inbound{
		MessageID:        job.MessageID,
		CorrelationID:    job.CorrelationID,
		TransformationID: job.TransformationID,
		Payload:          job.Input,
		Kind:             job.Kind,
		InputQueue:       job.InputQueue,
		OutputQueue:      job.OutputQueue,
	}
	if _, err := p.Process(ctx, in); err != nil {
		logging.L().Error("deferred attempt finished with storage error",
			"message_id", job.MessageID, "attempt", attempt, "error", err)
	}
}

func (p *Processor) headers(rec *message.Record) map[string]string {
	return map[string]string{
		HeaderCorrelationID:    rec.CorrelationID,
		HeaderAttempts:         strconv.Itoa(rec.Attempts),
		HeaderTransformationID: rec.TransformationID,
	}
}

func (p *Processor) persist(ctx context.Context, rec *message.Record) error {
	if p.records == nil {
		return nil
	}
	storeStart := time.Now()
	err := p.records.Store(ctx, rec)
	rec.Durations.Store = time.Since(storeStart)
	p.metrics.ObserveStage("store", rec.Durations.Store)
	return err
}
