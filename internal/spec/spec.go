// Package spec declares the pipeline configuration file schema.
package spec

type KafkaSink struct {
	Brokers []string `yaml:"brokers"`
	Acks    int16    `yaml:"required_acks"`
	Version string   `yaml:"version"`
}

type StdoutSink struct {
	PrintPayload  bool `yaml:"print_payload"`
	PayloadMaxLen int  `yaml:"payload_max_len"`
}

type sinkConfigs struct {
	Kafka  KafkaSink  `yaml:"kafka"`
	Stdout StdoutSink `yaml:"stdout"`
}

type RoutingSection struct {
	DefaultKind     string `yaml:"default_kind"`
	InputQueue      string `yaml:"input_queue"`
	OutputQueue     string `yaml:"output_queue"`
	DeadLetterQueue string `yaml:"dead_letter_queue"`
}

type RetrySection struct {
	Enabled             *bool    `yaml:"enabled"`
	MaxAttempts         int      `yaml:"max_attempts"`
	InitialIntervalMS   int      `yaml:"initial_interval_ms"`
	MaxIntervalMS       int      `yaml:"max_interval_ms"`
	Multiplier          float64  `yaml:"multiplier"`
	Jitter              bool     `yaml:"jitter"`
	RetryableStatuses   []string `yaml:"retryable_statuses"`
	DeadLetterOnFailure *bool    `yaml:"dead_letter_on_failure"`
	StoreRetryAttempts  bool     `yaml:"store_retry_attempts"`
	ShutdownGraceMS     int      `yaml:"shutdown_grace_ms"`
}

type EncryptionSection struct {
	Enabled *bool  `yaml:"enabled"`
	Mode    string `yaml:"mode"` // "local" or "kms"
	// LocalKEK is the base64 key-encryption key for local mode. Development
	// only; leave empty to have bootstrap generate an ephemeral one.
	LocalKEK    string `yaml:"local_kek"`
	KMSEndpoint string `yaml:"kms_endpoint"`
	KMSKeyID    string `yaml:"kms_key_id"`
}

type RedisSection struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type StorageSection struct {
	Driver string       `yaml:"driver"` // "memory" or "redis"
	Redis  RedisSection `yaml:"redis"`
}

type File struct {
	SchemaVersion string `yaml:"schema_version"`

	Source struct {
		Kind   string `yaml:"kind"`
		Driver string `yaml:"driver"`
		Config string `yaml:"config"`
	} `yaml:"source"`

	Routing    RoutingSection    `yaml:"routing"`
	Retry      RetrySection      `yaml:"retry"`
	Encryption EncryptionSection `yaml:"encryption"`
	Storage    StorageSection    `yaml:"storage"`

	Sinks       []string    `yaml:"sinks"`
	SinkConfigs sinkConfigs `yaml:"sink_configs"`

	Workers int `yaml:"workers"`
}

func (f *File) KafkaSink() KafkaSink   { return f.SinkConfigs.Kafka }
func (f *File) StdoutSink() StdoutSink { return f.SinkConfigs.Stdout }
