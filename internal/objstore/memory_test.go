package objstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_PutGetCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	value := []byte("hello")
	require.NoError(t, m.Put(ctx, "k", value))
	value[0] = 'X'

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got, "stored value must not alias the caller's slice")

	got[0] = 'Y'
	again, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), again)
}

func TestMemory_GetMissing(t *testing.T) {
	m := NewMemory()
	_, err := m.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_ListPrefixSorted(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for _, key := range []string{"rec-b", "rec-a", "other-1", "rec-c"} {
		require.NoError(t, m.Put(ctx, key, []byte("x")))
	}

	keys, err := m.List(ctx, "rec-")
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-a", "rec-b", "rec-c"}, keys)
}

func TestMemory_Delete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "k", []byte("x")))

	existed, err := m.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = m.Delete(ctx, "k")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestRegistry(t *testing.T) {
	d, err := NewDriver("memory")
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, d)

	_, err = NewDriver("does-not-exist")
	require.Error(t, err)
}
