package kafka

import (
	"context"
	"time"
)

// Inbound is one consumed message, transport details flattened so the
// pipeline never touches sarama types.
type Inbound struct {
	Topic     string
	Key       []byte
	Value     []byte
	Headers   map[string][]byte
	Timestamp time.Time
}

// EmitFunc hands a consumed message to the pipeline. The driver treats a
// returned error as fatal for the consume loop.
type EmitFunc func(context.Context, Inbound) error

type Adapter interface {
	Configure(Config) error
	Run(context.Context, EmitFunc) error
	Close() error
}
