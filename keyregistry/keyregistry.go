// Package keyregistry implements the process-wide key-id to key-bytes
// map the session-auth HMAC pipeline consults, per spec.md §6's key
// provisioning interface.
package keyregistry

import (
	"fmt"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Entry describes one provisioned key.
type Entry struct {
	KeyID     uint32
	Key       []byte
	Algorithm uint16
}

// Registry is a read-mostly, concurrency-safe key-id to key map, mirroring
// spec.md §5's characterization of the key registry as "process-wide and
// read-mostly".
type Registry struct {
	mu      sync.RWMutex
	entries map[uint32]Entry
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[uint32]Entry)}
}

// Store provisions or replaces a key, per spec.md §6's
// `registry.store(key_id, key_bytes, algorithm_id)`.
func (r *Registry) Store(keyID uint32, key []byte, algorithm uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[keyID] = Entry{KeyID: keyID, Key: append([]byte(nil), key...), Algorithm: algorithm}
}

// Get looks up a key, per spec.md §6's `registry.get(key_id) -> (bytes,
// algorithm)`.
func (r *Registry) Get(keyID uint32) ([]byte, uint16, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[keyID]
	if !ok {
		return nil, 0, fmt.Errorf("keyregistry: unknown key-id %d", keyID)
	}
	return e.Key, e.Algorithm, nil
}

// Lookup implements sessionauth.KeyLookup.
func (r *Registry) Lookup(keyID uint32) ([]byte, uint16, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[keyID]
	if !ok {
		return nil, 0, false
	}
	return e.Key, e.Algorithm, true
}

// Delete removes a key, per spec.md §6's `registry.delete(key_id)`.
func (r *Registry) Delete(keyID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, keyID)
}

// Snapshot returns every provisioned key-id and algorithm, ordered by
// key-id, for admin inspection. Key bytes are never exposed through a
// snapshot.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := maps.Keys(r.entries)
	slices.Sort(ids)
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		e := r.entries[id]
		out = append(out, Entry{KeyID: e.KeyID, Algorithm: e.Algorithm})
	}
	return out
}
