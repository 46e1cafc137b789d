package engine

import (
	"context"

	"mtbridge/internal/pipeline"
)

type Config struct {
	MetricsPort int
	PipelineYml string
}

type Engine struct {
	runtime *pipeline.Runtime
}

// Runtime exposes the compiled pipeline, mainly for embedding callers that
// feed messages in directly instead of through the Kafka source.
func (e *Engine) Runtime() *pipeline.Runtime { return e.runtime }

// Run blocks until the context ends, then drains the pipeline within its
// shutdown grace period.
func (e *Engine) Run(ctx context.Context) error {
	<-ctx.Done()
	return e.runtime.Close()
}
