// Package kms abstracts the external key management service consumed by the
// envelope encryptor. The service wraps and unwraps data-encryption keys
// under a key-encryption key it never releases.
package kms

import (
	"context"
	"errors"
)

// ErrUnavailable marks transient key-service failures (network, 5xx). Callers
// distinguish it from integrity failures, which surface as tamper detection.
var ErrUnavailable = errors.New("key service unavailable")

// Service is the wrap/unwrap capability of the key management service.
// Implementations must be safe for concurrent use.
type Service interface {
	// Wrap encrypts a raw data-encryption key under the named wrapping key
	// and returns the wrapped bytes plus the versioned id of the key that
	// performed the wrap.
	Wrap(ctx context.Context, keyID string, dek []byte) (wrapped []byte, versionedKeyID string, err error)

	// Unwrap recovers the raw data-encryption key. keyID is the versioned id
	// recorded at wrap time so rotated keys stay resolvable.
	Unwrap(ctx context.Context, keyID string, wrapped []byte) ([]byte, error)
}
