package store

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtbridge/internal/envelope"
	"mtbridge/internal/message"
	"mtbridge/internal/objstore"
)

func newTestStore(t *testing.T) (*RecordStore, *objstore.Memory) {
	t.Helper()
	enc, err := envelope.NewLocal(bytes.Repeat([]byte{0x11}, 32))
	require.NoError(t, err)
	objects := objstore.NewMemory()
	return New(objects, enc), objects
}

func newTestRecord() *message.Record {
	rec := message.NewRecord(message.KindMT103ToMT202, "msg-1", "corr-1")
	rec.InputMessage = "{4:\n:20:REF123\n:32A:260830USD1,00\n-}"
	rec.OutputMessage = "{4:\n:20:REF123\n:21:NONREF\n:32A:260830USD1,00\n-}"
	rec.Status = message.StatusSuccess
	return rec
}

func TestStore_EncryptsAndClearsPlaintext(t *testing.T) {
	s, objects := newTestStore(t)
	ctx := context.Background()
	rec := newTestRecord()

	require.NoError(t, s.Store(ctx, rec))

	assert.True(t, rec.Encrypted)
	assert.Empty(t, rec.InputMessage)
	assert.Empty(t, rec.OutputMessage)
	require.NotNil(t, rec.EncryptedInput)
	require.NotNil(t, rec.EncryptedOutput)
	assert.True(t, rec.EncryptedInput.Complete())
	assert.True(t, rec.EncryptedOutput.Complete())

	raw, err := objects.Get(ctx, KeyPrefix+rec.TransformationID)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "REF123", "plaintext must never reach storage")
}

func TestStore_SecondWriteKeepsCiphertext(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	rec := newTestRecord()

	require.NoError(t, s.Store(ctx, rec))
	firstInput := append([]byte{}, rec.EncryptedInput.Ciphertext...)
	firstOutput := append([]byte{}, rec.EncryptedOutput.Ciphertext...)

	rec.Status = message.StatusPartialSuccess
	require.NoError(t, s.Store(ctx, rec))

	assert.Equal(t, firstInput, rec.EncryptedInput.Ciphertext)
	assert.Equal(t, firstOutput, rec.EncryptedOutput.Ciphertext)
}

func TestRetrieve_DecryptsPayloads(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	rec := newTestRecord()
	input, output := rec.InputMessage, rec.OutputMessage

	require.NoError(t, s.Store(ctx, rec))

	got, err := s.Retrieve(ctx, rec.TransformationID)
	require.NoError(t, err)
	assert.Equal(t, input, got.InputMessage)
	assert.Equal(t, output, got.OutputMessage)
	assert.Equal(t, rec.TransformationID, got.TransformationID)
	assert.Equal(t, message.StatusSuccess, got.Status)
}

func TestRetrieve_Missing(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Retrieve(context.Background(), "absent")
	require.ErrorIs(t, err, objstore.ErrNotFound)
}

func TestList_Limit(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Store(ctx, newTestRecord()))
	}

	records, err := s.List(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestDelete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	rec := newTestRecord()
	require.NoError(t, s.Store(ctx, rec))

	existed, err := s.Delete(ctx, rec.TransformationID)
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = s.Delete(ctx, rec.TransformationID)
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestStore_NilEncryptorKeepsPlaintext(t *testing.T) {
	objects := objstore.NewMemory()
	s := New(objects, nil)
	ctx := context.Background()
	rec := newTestRecord()
	input := rec.InputMessage

	require.NoError(t, s.Store(ctx, rec))
	assert.False(t, rec.Encrypted)
	assert.Equal(t, input, rec.InputMessage)

	got, err := s.Retrieve(ctx, rec.TransformationID)
	require.NoError(t, err)
	assert.Equal(t, input, got.InputMessage)
}
