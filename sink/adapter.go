// Package sink defines the queue-publisher capability consumed by the
// pipeline, plus the driver registry.
package sink

import (
	"context"
	"fmt"
)

// Adapter is the common behaviour every publisher exposes. Publishing is
// fire-and-forget from the pipeline's perspective: a failed publish is
// recorded as a diagnostic, never retried by the sink itself.
type Adapter interface {
	Configure(any) error // driver-specific config ⇒ struct
	Publish(ctx context.Context, queue string, payload []byte, headers map[string]string) error
	Close() error // idempotent
}

/*──────── registry ───────*/

type factory = func() Adapter

var reg = map[string]factory{}

func Register(name string, f factory) { reg[name] = f }

func NewAdapter(name string) (Adapter, error) {
	if f, ok := reg[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("unknown sink %q", name)
}
