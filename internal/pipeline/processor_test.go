package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtbridge/internal/message"
	"mtbridge/internal/retry"
	"mtbridge/internal/transform"
)

type publishCall struct {
	queue   string
	payload string
	headers map[string]string
}

type capturePublisher struct {
	mu    sync.Mutex
	calls []publishCall
	err   error
}

func (p *capturePublisher) Publish(_ context.Context, queue string, payload []byte, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, publishCall{queue: queue, payload: string(payload), headers: headers})
	return p.err
}

func (p *capturePublisher) published() []publishCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishCall{}, p.calls...)
}

type captureStore struct {
	mu      sync.Mutex
	records []message.Record
}

func (s *captureStore) Store(_ context.Context, rec *message.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *rec)
	return nil
}

func (s *captureStore) stored() []message.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]message.Record{}, s.records...)
}

func (s *captureStore) lastStatus() (message.Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return "", false
	}
	return s.records[len(s.records)-1].Status, true
}

func testConfig() Config {
	return Config{
		DeadLetterQueue: "dead-letter",
		Workers:         2,
		ShutdownGrace:   time.Second,
		Retry: retry.Policy{
			Enabled:     true,
			MaxAttempts: 2,
			Backoff:     retry.Backoff{Initial: time.Millisecond, Max: 5 * time.Millisecond, Multiplier: 2},
			Retryable:   []message.Status{message.StatusFailed, message.StatusTimeout},
		},
	}
}

func newTestProcessor(cfg Config) (*Processor, *capturePublisher, *captureStore) {
	pub := &capturePublisher{}
	st := &captureStore{}
	p := NewProcessor(cfg, transform.NewEngine(), pub, st, nil)
	return p, pub, st
}

const validMT103 = "{4:\n:20:REF123\n:21:RELREF9\n:32A:260830USD1,00\n:52A:BANKUS33\n:58A:BANKDEFF\n-}"

func successInbound() Inbound {
	return Inbound{
		MessageID:     "msg-1",
		CorrelationID: "corr-1",
		Payload:       validMT103,
		Kind:          message.KindMT103ToMT202,
		InputQueue:    "in",
		OutputQueue:   "out",
	}
}

func TestProcess_SuccessPublishesThenPersists(t *testing.T) {
	p, pub, st := newTestProcessor(testConfig())
	defer p.Close()

	rec, err := p.Process(context.Background(), successInbound())
	require.NoError(t, err)
	require.Equal(t, message.StatusSuccess, rec.Status)

	calls := pub.published()
	require.Len(t, calls, 1)
	assert.Equal(t, "out", calls[0].queue)
	assert.Equal(t, rec.OutputMessage, calls[0].payload)
	assert.Equal(t, "corr-1", calls[0].headers[HeaderCorrelationID])
	assert.Equal(t, "0", calls[0].headers[HeaderAttempts])
	assert.Equal(t, rec.TransformationID, calls[0].headers[HeaderTransformationID])

	records := st.stored()
	require.Len(t, records, 1)
	assert.Equal(t, message.StatusSuccess, records[0].Status)
	assert.Equal(t, rec.TransformationID, records[0].TransformationID)
	assert.Greater(t, records[0].Durations.Transform, time.Duration(0))
}

func TestProcess_PublishFailureIsWarningNotRetry(t *testing.T) {
	p, pub, st := newTestProcessor(testConfig())
	defer p.Close()
	pub.err = errors.New("broker down")

	rec, err := p.Process(context.Background(), successInbound())
	require.NoError(t, err)

	assert.Equal(t, message.StatusSuccess, rec.Status)
	require.NotEmpty(t, rec.Warnings)
	assert.Contains(t, rec.Warnings[len(rec.Warnings)-1], "publish failed")
	require.Len(t, st.stored(), 1, "the record is still persisted")
}

func TestProcess_RetryableFailureSchedules(t *testing.T) {
	cfg := testConfig()
	// Long delay keeps the deferred attempt from firing inside this test.
	cfg.Retry.Backoff = retry.Backoff{Initial: time.Hour, Max: time.Hour, Multiplier: 1}
	p, _, st := newTestProcessor(cfg)
	defer p.Close()

	in := successInbound()
	in.Kind = message.Kind("unsupported-kind")

	rec, err := p.Process(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, message.StatusRetry, rec.Status)
	assert.Equal(t, 1, rec.Attempts)
	assert.Len(t, st.stored(), 0, "mid-retry persistence is off by default")
}

func TestProcess_ExhaustedRetriesDeadLetter(t *testing.T) {
	p, pub, st := newTestProcessor(testConfig())
	defer p.Close()

	in := successInbound()
	in.Kind = message.Kind("unsupported-kind")

	rec, err := p.Process(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, message.StatusRetry, rec.Status)

	require.Eventually(t, func() bool {
		status, ok := st.lastStatus()
		return ok && status == message.StatusDeadLetter
	}, 3*time.Second, 5*time.Millisecond, "deferred attempts must exhaust into the dead letter queue")

	records := st.stored()
	final := records[len(records)-1]
	assert.Equal(t, 2, final.Attempts)
	assert.Equal(t, rec.TransformationID, final.TransformationID, "retries keep one record lineage")

	calls := pub.published()
	require.NotEmpty(t, calls)
	last := calls[len(calls)-1]
	assert.Equal(t, "dead-letter", last.queue)
	assert.Equal(t, in.Payload, last.payload, "the original input goes to the dead letter queue")
}

func TestProcess_StoreRetryAttempts(t *testing.T) {
	cfg := testConfig()
	cfg.StoreRetryAttempts = true
	p, _, st := newTestProcessor(cfg)
	defer p.Close()

	in := successInbound()
	in.Kind = message.Kind("unsupported-kind")

	_, err := p.Process(context.Background(), in)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, ok := st.lastStatus()
		return ok && status == message.StatusDeadLetter
	}, 3*time.Second, 5*time.Millisecond)

	records := st.stored()
	require.Len(t, records, 3, "two scheduled retries plus the terminal write")
	assert.Equal(t, message.StatusRetry, records[0].Status)
	assert.Equal(t, message.StatusRetry, records[1].Status)
	assert.Equal(t, message.StatusDeadLetter, records[2].Status)
}

func TestProcess_NonRetryableGoesStraightToDeadLetter(t *testing.T) {
	p, pub, st := newTestProcessor(testConfig())
	defer p.Close()

	in := successInbound()
	in.Payload = "{4:\n:20:REF123\n-}" // missing 32A → VALIDATION_ERROR

	rec, err := p.Process(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, message.StatusDeadLetter, rec.Status)
	assert.Equal(t, "missing required field :32A:", rec.ErrorMessage)

	require.Len(t, st.stored(), 1)
	calls := pub.published()
	require.Len(t, calls, 1)
	assert.Equal(t, "dead-letter", calls[0].queue)
}

func TestProcess_RetryDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Retry.Enabled = false
	p, _, st := newTestProcessor(cfg)
	defer p.Close()

	in := successInbound()
	in.Kind = message.Kind("unsupported-kind")

	rec, err := p.Process(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, message.StatusDeadLetter, rec.Status)
	require.Len(t, st.stored(), 1)
}

func TestProcess_NoDeadLetterQueueSkipsPublish(t *testing.T) {
	cfg := testConfig()
	cfg.DeadLetterQueue = ""
	cfg.Retry.Enabled = false
	p, pub, st := newTestProcessor(cfg)
	defer p.Close()

	in := successInbound()
	in.Kind = message.Kind("unsupported-kind")

	rec, err := p.Process(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, message.StatusDeadLetter, rec.Status)
	assert.Empty(t, pub.published(), "no queue configured means no publish")
	require.Len(t, st.stored(), 1, "the record is persisted regardless")
}
