package stdout

import (
	"context"
	"fmt"

	"mtbridge/sink"
)

type Config struct {
	PrintPayload  bool `yaml:"print_payload"`
	PayloadMaxLen int  `yaml:"payload_max_len"`
}

// driver is the development sink: it prints what would have been published.
type driver struct {
	cfg Config
}

func (d *driver) Configure(c any) error {
	cfg, ok := c.(Config)
	if !ok {
		return fmt.Errorf("stdout-sink: want Config")
	}
	d.cfg = cfg
	return nil
}

func (d *driver) Publish(_ context.Context, queue string, payload []byte, headers map[string]string) error {
	if d.cfg.PrintPayload {
		shown := payload
		if d.cfg.PayloadMaxLen > 0 && len(shown) > d.cfg.PayloadMaxLen {
			shown = shown[:d.cfg.PayloadMaxLen]
		}
		fmt.Printf("[sink] %s corr=%s %q\n", queue, headers["correlation-id"], shown)
		return nil
	}
	fmt.Printf("[sink] %s corr=%s %d bytes\n", queue, headers["correlation-id"], len(payload))
	return nil
}

func (d *driver) Close() error { return nil }

func init() { sink.Register("stdout", func() sink.Adapter { return &driver{} }) }
