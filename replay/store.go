// Package replay enforces single-use semantics for payment nonces. The store
// is the gate's only serialization point: two concurrent requests carrying
// the same nonce observe exactly one successful insert.
package replay

import (
	"sync"
	"time"
)

// DefaultRetention is how long consumed nonces are remembered. It must
// exceed the largest configured authorization validity window plus clock
// skew; 24 hours covers any sane deployment.
const DefaultRetention = 24 * time.Hour

// Store records consumed payment nonces. Implementations must be safe for
// concurrent use; TryInsert must be atomic against concurrent callers.
//
// A process-local MemoryStore suffices for single-instance deployments.
// Multi-node deployments need a shared backend with an atomic
// set-if-absent primitive.
type Store interface {
	// TryInsert atomically records the key. Returns true if the key was
	// inserted, false if it was already present.
	TryInsert(key string) bool

	// Remove deletes the key, releasing it for a later retry. Used to roll
	// back the replay lock when settlement fails transiently.
	Remove(key string)

	// Has reports whether the key is currently recorded.
	Has(key string) bool
}

// MemoryStore is a mutex-guarded in-memory Store with lazy expiry.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]time.Time
	retention time.Duration
	now       func() time.Time
}

// NewMemoryStore creates a MemoryStore with the given retention window.
// Non-positive retention falls back to DefaultRetention.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryStore{
		entries:   make(map[string]time.Time),
		retention: retention,
		now:       time.Now,
	}
}

// TryInsert implements Store.
func (s *MemoryStore) TryInsert(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if inserted, ok := s.entries[key]; ok {
		if now.Sub(inserted) < s.retention {
			return false
		}
		// Expired entry; the nonce's validity window is long past, so
		// reclaiming the slot cannot enable a replay.
	}

	s.entries[key] = now
	s.pruneLocked(now)
	return true
}

// Remove implements Store.
func (s *MemoryStore) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Has implements Store.
func (s *MemoryStore) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted, ok := s.entries[key]
	if !ok {
		return false
	}
	return s.now().Sub(inserted) < s.retention
}

// Len returns the number of live entries, counting expired ones not yet
// pruned.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// pruneLocked drops expired entries. Must be called with the lock held.
func (s *MemoryStore) pruneLocked(now time.Time) {
	for key, inserted := range s.entries {
		if now.Sub(inserted) >= s.retention {
			delete(s.entries, key)
		}
	}
}

var _ Store = (*MemoryStore)(nil)
