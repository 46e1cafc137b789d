package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"mtbridge/internal/spec"
)

const SupportedSchema = "v1"

// LoadPipelineSpec parses a pipeline YAML, validates schema_version, applies
// defaults, and returns the parsed spec and an absolute path to the source
// config (if set).
func LoadPipelineSpec(path string) (spec.File, string, error) {
	var cfg spec.File
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, "", err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, "", err
	}
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = SupportedSchema
	}
	if cfg.SchemaVersion != SupportedSchema {
		return cfg, "", fmt.Errorf("pipeline schema_version %q not supported (want %q)", cfg.SchemaVersion, SupportedSchema)
	}
	applyDefaults(&cfg)
	confPath := cfg.Source.Config
	if confPath != "" && !filepath.IsAbs(confPath) {
		confPath = filepath.Join(filepath.Dir(path), confPath)
	}
	return cfg, confPath, nil
}

func applyDefaults(cfg *spec.File) {
	if cfg.Workers == 0 {
		cfg.Workers = 4
	}
	if cfg.Routing.DefaultKind == "" {
		cfg.Routing.DefaultKind = "mt103-to-mt202"
	}

	r := &cfg.Retry
	if r.Enabled == nil {
		r.Enabled = boolPtr(true)
	}
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 3
	}
	if r.InitialIntervalMS == 0 {
		r.InitialIntervalMS = 1000
	}
	if r.MaxIntervalMS == 0 {
		r.MaxIntervalMS = 30_000
	}
	if r.Multiplier == 0 {
		r.Multiplier = 2.0
	}
	if len(r.RetryableStatuses) == 0 {
		r.RetryableStatuses = []string{"FAILED", "TIMEOUT"}
	}
	if r.DeadLetterOnFailure == nil {
		r.DeadLetterOnFailure = boolPtr(true)
	}
	if r.ShutdownGraceMS == 0 {
		r.ShutdownGraceMS = 5000
	}

	e := &cfg.Encryption
	if e.Enabled == nil {
		e.Enabled = boolPtr(true)
	}
	if e.Mode == "" {
		e.Mode = "local"
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "memory"
	}
}

func boolPtr(b bool) *bool { return &b }
