package engine

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"mtbridge/internal/pipeline"
	"mtbridge/internal/telemetry"
)

func Bootstrap(ctx context.Context, cfg Config) (*Engine, error) {
	metrics := telemetry.New(prometheus.DefaultRegisterer)

	// 1. pipeline
	rt, err := pipeline.Compile(cfg.PipelineYml, metrics)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if err := rt.Start(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}

	// 2. metrics
	telemetry.Expose(cfg.MetricsPort)

	return &Engine{runtime: rt}, nil
}
