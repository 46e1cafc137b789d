package kms

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// RSAService is an in-process key service for development and tests. It wraps
// with RSA-OAEP over SHA-256, the same scheme the external service exposes,
// so the envelope code paths are identical in both modes.
type RSAService struct {
	keyID string
	key   *rsa.PrivateKey
}

func NewRSAService(keyID string) (*RSAService, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate wrapping key: %w", err)
	}
	return &RSAService{keyID: keyID, key: key}, nil
}

func (s *RSAService) Wrap(_ context.Context, keyID string, dek []byte) ([]byte, string, error) {
	if keyID == "" {
		keyID = s.keyID
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, &s.key.PublicKey, dek, nil)
	if err != nil {
		return nil, "", fmt.Errorf("wrap data key: %w", err)
	}
	return wrapped, keyID + "/v1", nil
}

func (s *RSAService) Unwrap(_ context.Context, _ string, wrapped []byte) ([]byte, error) {
	dek, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, s.key, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("unwrap data key: %w", err)
	}
	return dek, nil
}
