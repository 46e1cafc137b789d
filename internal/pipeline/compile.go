package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mtbridge/internal/config"
	"mtbridge/internal/envelope"
	"mtbridge/internal/kms"
	"mtbridge/internal/logging"
	"mtbridge/internal/message"
	"mtbridge/internal/objstore"
	"mtbridge/internal/retry"
	"mtbridge/internal/spec"
	"mtbridge/internal/store"
	"mtbridge/internal/telemetry"
	"mtbridge/internal/transform"
	"mtbridge/sink"
	"mtbridge/sink/kafka"
	"mtbridge/sink/stdout"
	srckafka "mtbridge/source/kafka"
)

// Headers a source message may carry to steer routing.
const (
	headerMessageID   = "message-id"
	headerCorrelation = "correlation-id"
	headerKind        = "transformation-kind"
	headerOutputQueue = "output-queue"
)

// Runtime is a fully wired pipeline: source (optional), processor, sinks and
// storage. Close releases them in reverse dependency order.
type Runtime struct {
	Processor *Processor

	routing spec.RoutingSection
	source  srckafka.Adapter
	sinks   []sink.Adapter
	objects objstore.Driver
}

// Compile loads a pipeline file and wires every component it names.
func Compile(path string, metrics *telemetry.Metrics) (*Runtime, error) {
	cfg, srcConfPath, err := config.LoadPipelineSpec(path)
	if err != nil {
		return nil, err
	}
	return build(cfg, srcConfPath, metrics)
}

func build(cfg spec.File, srcConfPath string, metrics *telemetry.Metrics) (*Runtime, error) {
	rt := &Runtime{routing: cfg.Routing}

	for _, name := range cfg.Sinks {
		drv, err := sink.NewAdapter(name)
		if err != nil {
			return nil, err
		}
		switch name {
		case "kafka":
			ks := cfg.KafkaSink()
			err = drv.Configure(kafka.Config{Brokers: ks.Brokers, Acks: ks.Acks, Version: ks.Version})
		case "stdout":
			ss := cfg.StdoutSink()
			err = drv.Configure(stdout.Config{PrintPayload: ss.PrintPayload, PayloadMaxLen: ss.PayloadMaxLen})
		default:
			err = fmt.Errorf("no config block for sink %q", name)
		}
		if err != nil {
			return nil, err
		}
		rt.sinks = append(rt.sinks, drv)
	}
	if len(rt.sinks) == 0 {
		return nil, fmt.Errorf("pipeline needs at least one sink")
	}

	records, err := rt.buildRecordStore(cfg)
	if err != nil {
		return nil, err
	}

	deadLetterQueue := cfg.Routing.DeadLetterQueue
	if cfg.Retry.DeadLetterOnFailure != nil && !*cfg.Retry.DeadLetterOnFailure {
		deadLetterQueue = ""
	}

	pcfg := Config{
		DeadLetterQueue:    deadLetterQueue,
		StoreRetryAttempts: cfg.Retry.StoreRetryAttempts,
		Workers:            cfg.Workers,
		ShutdownGrace:      time.Duration(cfg.Retry.ShutdownGraceMS) * time.Millisecond,
		Retry: retry.Policy{
			Enabled:     *cfg.Retry.Enabled,
			MaxAttempts: cfg.Retry.MaxAttempts,
			Backoff: retry.Backoff{
				Initial:    time.Duration(cfg.Retry.InitialIntervalMS) * time.Millisecond,
				Max:        time.Duration(cfg.Retry.MaxIntervalMS) * time.Millisecond,
				Multiplier: cfg.Retry.Multiplier,
				Jitter:     cfg.Retry.Jitter,
			},
			Retryable: parseStatuses(cfg.Retry.RetryableStatuses),
		},
	}
	rt.Processor = NewProcessor(pcfg, transform.NewEngine(), multiPublisher(rt.sinks), records, metrics)

	if cfg.Source.Kind != "" {
		if cfg.Source.Kind != "kafka" {
			return nil, fmt.Errorf("unsupported source %q", cfg.Source.Kind)
		}
		kc, err := config.LoadKafkaConfig(srcConfPath)
		if err != nil {
			return nil, err
		}
		src, err := srckafka.NewAdapter(cfg.Source.Driver)
		if err != nil {
			return nil, err
		}
		if err := src.Configure(kc); err != nil {
			return nil, err
		}
		rt.source = src
	}
	return rt, nil
}

func (rt *Runtime) buildRecordStore(cfg spec.File) (RecordStore, error) {
	objects, err := objstore.NewDriver(cfg.Storage.Driver)
	if err != nil {
		return nil, err
	}
	switch cfg.Storage.Driver {
	case "redis":
		err = objects.Configure(objstore.RedisConfig{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
	default:
		err = objects.Configure(nil)
	}
	if err != nil {
		return nil, err
	}
	rt.objects = objects

	enc, err := buildEncryptor(cfg.Encryption)
	if err != nil {
		return nil, err
	}
	return store.New(objects, enc), nil
}

// buildEncryptor returns nil when encryption is disabled; the record store
// then persists plaintext. The nil is checked explicitly, not hidden behind
// a no-op implementation.
func buildEncryptor(e spec.EncryptionSection) (store.Encryptor, error) {
	if e.Enabled != nil && !*e.Enabled {
		logging.L().Warn("payload encryption disabled; records will be stored in plaintext")
		return nil, nil
	}
	switch e.Mode {
	case "kms":
		if e.KMSEndpoint != "" {
			return envelope.NewKMS(kms.NewClient(e.KMSEndpoint), e.KMSKeyID), nil
		}
		logging.L().Warn("no kms endpoint configured; using in-process RSA key service")
		svc, err := kms.NewRSAService(e.KMSKeyID)
		if err != nil {
			return nil, err
		}
		return envelope.NewKMS(svc, e.KMSKeyID), nil
	default:
		kek, err := localKEK(e.LocalKEK)
		if err != nil {
			return nil, err
		}
		return envelope.NewLocal(kek)
	}
}

func localKEK(encoded string) ([]byte, error) {
	if encoded != "" {
		kek, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode local_kek: %w", err)
		}
		return kek, nil
	}
	logging.L().Warn("no local_kek configured; generating an ephemeral key, stored records will not survive a restart")
	kek := make([]byte, 32)
	if _, err := rand.Read(kek); err != nil {
		return nil, fmt.Errorf("generate local KEK: %w", err)
	}
	return kek, nil
}

func parseStatuses(names []string) []message.Status {
	out := make([]message.Status, 0, len(names))
	for _, name := range names {
		out = append(out, message.Status(name))
	}
	return out
}

// Start begins consuming from the source, when one is configured.
func (rt *Runtime) Start(ctx context.Context) error {
	if rt.source == nil {
		return nil
	}
	go func() {
		if err := rt.source.Run(ctx, rt.handleInbound); err != nil && ctx.Err() == nil {
			logging.L().Error("source stopped", "error", err)
		}
	}()
	return nil
}

func (rt *Runtime) handleInbound(ctx context.Context, in srckafka.Inbound) error {
	messageID := string(in.Headers[headerMessageID])
	if messageID == "" {
		messageID = string(in.Key)
	}
	if messageID == "" {
		messageID = uuid.NewString()
	}
	kind := message.Kind(in.Headers[headerKind])
	if kind == "" {
		kind = message.Kind(rt.routing.DefaultKind)
	}
	outputQueue := string(in.Headers[headerOutputQueue])
	if outputQueue == "" {
		outputQueue = rt.routing.OutputQueue
	}

	_, err := rt.Processor.Process(ctx, Inbound{
		MessageID:     messageID,
		CorrelationID: string(in.Headers[headerCorrelation]),
		Payload:       string(in.Value),
		Kind:          kind,
		InputQueue:    in.Topic,
		OutputQueue:   outputQueue,
	})
	return err
}

// Close drains the processor, then releases source, sinks and storage.
func (rt *Runtime) Close() error {
	var firstErr error
	if rt.source != nil {
		if err := rt.source.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if rt.Processor != nil {
		if err := rt.Processor.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, s := range rt.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if rt.objects != nil {
		if err := rt.objects.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// multiPublisher fans a publish out to every configured sink.
type multiPublisher []sink.Adapter

func (m multiPublisher) Publish(ctx context.Context, queue string, payload []byte, headers map[string]string) error {
	for _, s := range m {
		if err := s.Publish(ctx, queue, payload, headers); err != nil {
			return err
		}
	}
	return nil
}
