// Package store persists transformation records in an object store,
// encrypting both payloads on first write and decrypting them on read.
// Records on disk never carry plaintext.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mtbridge/internal/message"
	"mtbridge/internal/objstore"
)

// KeyPrefix derives the storage key from the transformation id.
const KeyPrefix = "transformation-"

// Encryptor is the envelope capability the store depends on. Kept small so
// tests can swap in fakes.
type Encryptor interface {
	Encrypt(ctx context.Context, plaintext string) (message.EncryptedData, error)
	Decrypt(ctx context.Context, data message.EncryptedData) (string, error)
}

// RecordStore is the encrypted record store. A nil encryptor disables payload
// encryption (the encryption_enabled=false configuration); records are then
// persisted as-is.
type RecordStore struct {
	objects objstore.Driver
	enc     Encryptor
}

func New(objects objstore.Driver, enc Encryptor) *RecordStore {
	return &RecordStore{objects: objects, enc: enc}
}

// Store encrypts the record's payloads (once; re-storing an encrypted
// record leaves its ciphertext untouched), clears the plaintext fields and
// writes the serialized record. Storage I/O errors propagate; retrying is
// the scheduler's concern, at the transformation level.
func (s *RecordStore) Store(ctx context.Context, rec *message.Record) error {
	if !rec.Encrypted && s.enc != nil {
		encryptStart := time.Now()
		if err := s.encryptPayloads(ctx, rec); err != nil {
			return err
		}
		rec.Durations.Encrypt = time.Since(encryptStart)
	}
	if rec.Encrypted {
		// Plaintext may have been repopulated by Retrieve; it never goes
		// back to storage.
		rec.InputMessage = ""
		rec.OutputMessage = ""
	}
	rec.UpdatedAt = time.Now().UTC()

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", rec.TransformationID, err)
	}
	if err := s.objects.Put(ctx, KeyPrefix+rec.TransformationID, raw); err != nil {
		return fmt.Errorf("store record %s: %w", rec.TransformationID, err)
	}
	return nil
}

func (s *RecordStore) encryptPayloads(ctx context.Context, rec *message.Record) error {
	if rec.InputMessage != "" {
		bundle, err := s.enc.Encrypt(ctx, rec.InputMessage)
		if err != nil {
			return fmt.Errorf("encrypt input payload: %w", err)
		}
		rec.EncryptedInput = &bundle
	}
	if rec.OutputMessage != "" {
		bundle, err := s.enc.Encrypt(ctx, rec.OutputMessage)
		if err != nil {
			return fmt.Errorf("encrypt output payload: %w", err)
		}
		rec.EncryptedOutput = &bundle
	}
	rec.InputMessage = ""
	rec.OutputMessage = ""
	rec.Encrypted = true
	return nil
}

// Retrieve loads a record and, when encrypted, decrypts both payloads into
// the returned value. objstore.ErrNotFound passes through unwrapped.
func (s *RecordStore) Retrieve(ctx context.Context, id string) (*message.Record, error) {
	raw, err := s.objects.Get(ctx, KeyPrefix+id)
	if err != nil {
		return nil, err
	}
	return s.decode(ctx, raw)
}

// List returns up to limit records, payloads decrypted. limit <= 0 means all.
func (s *RecordStore) List(ctx context.Context, limit int) ([]*message.Record, error) {
	keys, err := s.objects.List(ctx, KeyPrefix)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	records := make([]*message.Record, 0, len(keys))
	for _, key := range keys {
		raw, err := s.objects.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		rec, err := s.decode(ctx, raw)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Delete removes the record if present and reports whether one existed.
func (s *RecordStore) Delete(ctx context.Context, id string) (bool, error) {
	return s.objects.Delete(ctx, KeyPrefix+id)
}

func (s *RecordStore) decode(ctx context.Context, raw []byte) (*message.Record, error) {
	var rec message.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	if !rec.Encrypted || s.enc == nil {
		return &rec, nil
	}
	if rec.EncryptedInput != nil {
		plaintext, err := s.enc.Decrypt(ctx, *rec.EncryptedInput)
		if err != nil {
			return nil, fmt.Errorf("decrypt input payload: %w", err)
		}
		rec.InputMessage = plaintext
	}
	if rec.EncryptedOutput != nil {
		plaintext, err := s.enc.Decrypt(ctx, *rec.EncryptedOutput)
		if err != nil {
			return nil, fmt.Errorf("decrypt output payload: %w", err)
		}
		rec.OutputMessage = plaintext
	}
	return &rec, nil
}
