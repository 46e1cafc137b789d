// Package envelope implements envelope encryption for message payloads:
// each payload is sealed with a fresh AES-256-GCM data-encryption key, and
// the key itself is wrapped under a key-encryption key that either lives in
// the external key service (RSA-OAEP-SHA256) or, in development, locally
// (AES-256-GCM).
package envelope

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"mtbridge/internal/kms"
	"mtbridge/internal/message"
)

var (
	// ErrInvalidInput marks empty plaintext or an incomplete bundle.
	ErrInvalidInput = errors.New("invalid encryption input")

	// ErrTamperDetected marks an authentication failure on decrypt: the
	// ciphertext, IV or wrapped key no longer match what was sealed.
	ErrTamperDetected = errors.New("payload integrity check failed")
)

// Algorithm names the payload cipher recorded in every bundle.
const Algorithm = "AES-256-GCM"

// LocalKeyID identifies bundles whose DEK was wrapped with the local KEK.
const LocalKeyID = "local-key"

const (
	dekSize = 32
	ivSize  = 12
)

// Encryptor seals and opens payloads. Exactly one wrapping mode is active:
// a kms.Service with a named wrapping key, or a locally held 32-byte KEK.
type Encryptor struct {
	svc   kms.Service
	keyID string
	kek   []byte
}

// NewLocal builds an encryptor that wraps DEKs with a locally held
// AES-256-GCM key. Development and test use only.
func NewLocal(kek []byte) (*Encryptor, error) {
	if len(kek) != dekSize {
		return nil, fmt.Errorf("%w: local KEK must be %d bytes, got %d", ErrInvalidInput, dekSize, len(kek))
	}
	return &Encryptor{kek: kek}, nil
}

// NewKMS builds an encryptor that wraps DEKs via the external key service.
// The KEK never leaves the service.
func NewKMS(svc kms.Service, keyID string) *Encryptor {
	return &Encryptor{svc: svc, keyID: keyID}
}

// Encrypt seals plaintext under a fresh DEK and IV. Two calls with identical
// plaintext never produce identical ciphertext, wrapped key or IV.
func (e *Encryptor) Encrypt(ctx context.Context, plaintext string) (message.EncryptedData, error) {
	if plaintext == "" {
		return message.EncryptedData{}, fmt.Errorf("%w: empty plaintext", ErrInvalidInput)
	}

	dek := make([]byte, dekSize)
	if _, err := rand.Read(dek); err != nil {
		return message.EncryptedData{}, fmt.Errorf("generate data key: %w", err)
	}
	defer zero(dek)

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return message.EncryptedData{}, fmt.Errorf("generate iv: %w", err)
	}

	gcm, err := newGCM(dek)
	if err != nil {
		return message.EncryptedData{}, err
	}
	ciphertext := gcm.Seal(nil, iv, []byte(plaintext), nil)

	wrapped, keyID, err := e.wrap(ctx, dek)
	if err != nil {
		return message.EncryptedData{}, err
	}

	return message.EncryptedData{
		Ciphertext: ciphertext,
		WrappedKey: wrapped,
		IV:         iv,
		Algorithm:  Algorithm,
		KeyID:      keyID,
	}, nil
}

// Decrypt unwraps the bundle's DEK and opens the ciphertext. Authentication
// failures surface as ErrTamperDetected, never as garbage plaintext.
func (e *Encryptor) Decrypt(ctx context.Context, data message.EncryptedData) (string, error) {
	if !data.Complete() {
		return "", fmt.Errorf("%w: bundle is missing required fields", ErrInvalidInput)
	}

	dek, err := e.unwrap(ctx, data)
	if err != nil {
		return "", err
	}
	defer zero(dek)

	gcm, err := newGCM(dek)
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, data.IV, data.Ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTamperDetected, err)
	}
	return string(plaintext), nil
}

func (e *Encryptor) wrap(ctx context.Context, dek []byte) ([]byte, string, error) {
	if e.svc != nil {
		wrapped, keyID, err := e.svc.Wrap(ctx, e.keyID, dek)
		if err != nil {
			return nil, "", fmt.Errorf("wrap data key: %w", err)
		}
		return wrapped, keyID, nil
	}

	// Local mode: fresh IV, stored as a 12-byte prefix before the wrapped
	// key ciphertext.
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, "", fmt.Errorf("generate wrap iv: %w", err)
	}
	gcm, err := newGCM(e.kek)
	if err != nil {
		return nil, "", err
	}
	wrapped := append(iv, gcm.Seal(nil, iv, dek, nil)...)
	return wrapped, LocalKeyID, nil
}

func (e *Encryptor) unwrap(ctx context.Context, data message.EncryptedData) ([]byte, error) {
	if data.KeyID == LocalKeyID {
		if e.kek == nil {
			return nil, fmt.Errorf("%w: bundle was wrapped locally but no local KEK is configured", ErrInvalidInput)
		}
		if len(data.WrappedKey) <= ivSize {
			return nil, fmt.Errorf("%w: wrapped key too short", ErrInvalidInput)
		}
		gcm, err := newGCM(e.kek)
		if err != nil {
			return nil, err
		}
		dek, err := gcm.Open(nil, data.WrappedKey[:ivSize], data.WrappedKey[ivSize:], nil)
		if err != nil {
			return nil, fmt.Errorf("%w: wrapped key %v", ErrTamperDetected, err)
		}
		return dek, nil
	}

	if e.svc == nil {
		return nil, fmt.Errorf("%w: bundle was wrapped by %q but no key service is configured", ErrInvalidInput, data.KeyID)
	}
	dek, err := e.svc.Unwrap(ctx, data.KeyID, data.WrappedKey)
	if err != nil {
		if errors.Is(err, kms.ErrUnavailable) {
			return nil, fmt.Errorf("unwrap data key: %w", err)
		}
		// The service could be reached but refused the blob: the wrapped
		// key does not decrypt under the recorded KEK.
		return nil, fmt.Errorf("%w: %v", ErrTamperDetected, err)
	}
	return dek, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return gcm, nil
}

// zero overwrites key material as soon as it is no longer needed.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
