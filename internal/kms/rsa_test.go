package kms

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRSAService_WrapUnwrap(t *testing.T) {
	svc, err := NewRSAService("dev-key")
	require.NoError(t, err)

	dek := bytes.Repeat([]byte{0x07}, 32)
	wrapped, keyID, err := svc.Wrap(context.Background(), "", dek)
	require.NoError(t, err)
	assert.Equal(t, "dev-key/v1", keyID)
	assert.NotEqual(t, dek, wrapped)

	got, err := svc.Unwrap(context.Background(), keyID, wrapped)
	require.NoError(t, err)
	assert.Equal(t, dek, got)
}

func TestRSAService_UnwrapGarbage(t *testing.T) {
	svc, err := NewRSAService("dev-key")
	require.NoError(t, err)

	_, err = svc.Unwrap(context.Background(), "dev-key/v1", []byte("not a wrapped key"))
	require.Error(t, err)
}

func TestRSAService_KeysAreIndependent(t *testing.T) {
	a, err := NewRSAService("a")
	require.NoError(t, err)
	b, err := NewRSAService("b")
	require.NoError(t, err)

	wrapped, _, err := a.Wrap(context.Background(), "a", bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)

	_, err = b.Unwrap(context.Background(), "a/v1", wrapped)
	require.Error(t, err, "a key wrapped by one service must not unwrap under another")
}
