package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtbridge/internal/message"
)

func writePipelineFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestCompile_EndToEnd(t *testing.T) {
	kek := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x01}, 32))
	path := writePipelineFile(t, fmt.Sprintf(`schema_version: v1
routing:
  default_kind: mt103-to-mt202
  output_queue: out
  dead_letter_queue: dlq
encryption:
  enabled: true
  mode: local
  local_kek: %q
storage:
  driver: memory
sinks: [stdout]
`, kek))

	rt, err := Compile(path, nil)
	require.NoError(t, err)
	defer rt.Close()

	require.NotNil(t, rt.Processor)
	assert.Nil(t, rt.source, "no source section means no consumer")

	rec, err := rt.Processor.Process(context.Background(), Inbound{
		MessageID:   "m1",
		Payload:     validMT103,
		Kind:        message.KindMT103ToMT202,
		InputQueue:  "in",
		OutputQueue: "out",
	})
	require.NoError(t, err)
	assert.Equal(t, message.StatusSuccess, rec.Status)
}

func TestCompile_UnknownSink(t *testing.T) {
	path := writePipelineFile(t, "sinks: [carrier-pigeon]\n")
	_, err := Compile(path, nil)
	require.Error(t, err)
}

func TestCompile_NoSinks(t *testing.T) {
	path := writePipelineFile(t, "workers: 2\n")
	_, err := Compile(path, nil)
	require.Error(t, err)
}

func TestCompile_BadLocalKEK(t *testing.T) {
	path := writePipelineFile(t, `sinks: [stdout]
encryption:
  mode: local
  local_kek: "%%% not base64 %%%"
`)
	_, err := Compile(path, nil)
	require.Error(t, err)
}

func TestCompile_DeadLetterDisabledClearsQueue(t *testing.T) {
	path := writePipelineFile(t, `sinks: [stdout]
routing:
  dead_letter_queue: dlq
retry:
  dead_letter_on_failure: false
`)
	rt, err := Compile(path, nil)
	require.NoError(t, err)
	defer rt.Close()

	assert.Empty(t, rt.Processor.cfg.DeadLetterQueue)
}
