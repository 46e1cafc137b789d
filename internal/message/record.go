// Package message holds the transformation record model shared across the
// pipeline: status and kind enumerations, the per-payload encryption bundle,
// and the audit record persisted for every transformation lineage.
package message

import (
	"time"

	"github.com/google/uuid"
)

// Status is the transformation state machine. RETRY is the in-flight state;
// SUCCESS, PARTIAL_SUCCESS and DEAD_LETTER are terminal.
type Status string

const (
	StatusRetry           Status = "RETRY"
	StatusSuccess         Status = "SUCCESS"
	StatusPartialSuccess  Status = "PARTIAL_SUCCESS"
	StatusFailed          Status = "FAILED"
	StatusParseError      Status = "PARSE_ERROR"
	StatusValidationError Status = "VALIDATION_ERROR"
	StatusTimeout         Status = "TIMEOUT"
	StatusDeadLetter      Status = "DEAD_LETTER"
)

// Terminal reports whether no further processing happens for the record.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusPartialSuccess, StatusDeadLetter:
		return true
	}
	return false
}

// Failure reports whether the status is evaluated against the retry policy.
func (s Status) Failure() bool {
	switch s {
	case StatusFailed, StatusParseError, StatusValidationError, StatusTimeout:
		return true
	}
	return false
}

// Kind selects the field mapper that runs for a message.
type Kind string

const (
	KindMT103ToMT202 Kind = "mt103-to-mt202"
	KindMT202ToMT103 Kind = "mt202-to-mt103"
	KindEnrich       Kind = "enrich"
	KindNormalize    Kind = "normalize"
)

// Known reports whether the kind has a registered mapper. The engine rejects
// unknown kinds explicitly rather than guessing.
func (k Kind) Known() bool {
	switch k {
	case KindMT103ToMT202, KindMT202ToMT103, KindEnrich, KindNormalize:
		return true
	}
	return false
}

// EncryptedData is the envelope-encryption bundle for one payload. It is
// immutable once created; KeyID records which wrapping key produced
// WrappedKey so rotation stays traceable.
type EncryptedData struct {
	Ciphertext []byte `json:"ciphertext"`
	WrappedKey []byte `json:"wrapped_key"`
	IV         []byte `json:"iv"`
	Algorithm  string `json:"algorithm"`
	KeyID      string `json:"key_id"`
}

// Complete reports whether every field required for decryption is present.
func (e EncryptedData) Complete() bool {
	return len(e.Ciphertext) > 0 && len(e.WrappedKey) > 0 && len(e.IV) > 0 &&
		e.Algorithm != "" && e.KeyID != ""
}

// Durations breaks down processing time per stage, in nanoseconds on the wire.
type Durations struct {
	Parse     time.Duration `json:"parse_ns"`
	Transform time.Duration `json:"transform_ns"`
	Validate  time.Duration `json:"validate_ns"`
	Encrypt   time.Duration `json:"encrypt_ns"`
	Publish   time.Duration `json:"publish_ns"`
	Store     time.Duration `json:"store_ns"`
}

// Record is one transformation attempt lineage. It is created on the first
// transform of a message, mutated in place across retries, and persisted a
// final time when it reaches a terminal status.
//
// Invariant: either the plaintext payloads are set and the bundles are nil
// (not yet persisted), or the bundles are set and the plaintext is cleared
// (after persistence). Never a mix.
type Record struct {
	TransformationID string `json:"transformation_id"`
	InputMessageID   string `json:"input_message_id"`
	OutputMessageID  string `json:"output_message_id"`
	CorrelationID    string `json:"correlation_id"`

	InputMessage  string `json:"input_message,omitempty"`
	OutputMessage string `json:"output_message,omitempty"`

	EncryptedInput  *EncryptedData `json:"encrypted_input,omitempty"`
	EncryptedOutput *EncryptedData `json:"encrypted_output,omitempty"`
	Encrypted       bool           `json:"encrypted"`

	Kind   Kind   `json:"kind"`
	Status Status `json:"status"`

	InputQueue  string `json:"input_queue"`
	OutputQueue string `json:"output_queue"`

	ErrorMessage string    `json:"error_message,omitempty"`
	Warnings     []string  `json:"warnings,omitempty"`
	Confidence   float64   `json:"confidence"`
	Durations    Durations `json:"durations"`

	Attempts    int `json:"attempts"`
	MaxAttempts int `json:"max_attempts"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRecord builds a record with fresh identifiers. The correlation id is
// carried from the inbound message when present so downstream systems can
// join the lineage.
func NewRecord(kind Kind, inputMessageID, correlationID string) *Record {
	if inputMessageID == "" {
		inputMessageID = uuid.NewString()
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	now := time.Now().UTC()
	return &Record{
		TransformationID: uuid.NewString(),
		InputMessageID:   inputMessageID,
		OutputMessageID:  uuid.NewString(),
		CorrelationID:    correlationID,
		Kind:             kind,
		Status:           StatusRetry,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
