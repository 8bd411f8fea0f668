package keyregistry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryStoreGetDelete(t *testing.T) {
	r := NewRegistry()
	_, _, err := r.Get(1)
	require.Error(t, err, "unknown key-id must error")

	r.Store(1, []byte("secret"), 2)
	key, alg, err := r.Get(1)
	require.NoError(t, err)
	require.Equal(t, []byte("secret"), key)
	require.Equal(t, uint16(2), alg)

	key, alg, ok := r.Lookup(1)
	require.True(t, ok)
	require.Equal(t, []byte("secret"), key)
	require.Equal(t, uint16(2), alg)

	r.Delete(1)
	_, _, ok = r.Lookup(1)
	require.False(t, ok)
}

func TestRegistryStoreCopiesKeyBytes(t *testing.T) {
	r := NewRegistry()
	key := []byte("secret")
	r.Store(1, key, 2)
	key[0] = 'X'

	stored, _, err := r.Get(1)
	require.NoError(t, err)
	require.Equal(t, []byte("secret"), stored, "Store must copy, not alias, the key bytes")
}

func TestRegistrySnapshotOrderedByKeyIDAndHidesBytes(t *testing.T) {
	r := NewRegistry()
	r.Store(30, []byte("c"), 1)
	r.Store(10, []byte("a"), 1)
	r.Store(20, []byte("b"), 2)

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	require.Equal(t, []uint32{10, 20, 30}, []uint32{snap[0].KeyID, snap[1].KeyID, snap[2].KeyID})
	for _, e := range snap {
		require.Nil(t, e.Key, "a snapshot entry must never carry raw key bytes")
	}
}
