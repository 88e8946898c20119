package stores

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements the KV interface with mutex-guarded in-process
// maps. It provides no cross-process guarantee and resets on restart; it is
// the explicit degraded mode for single-node deployments and the default
// backing for tests. Selecting it is a constructor decision, never an
// implicit fallback triggered by store errors.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	recency map[string]map[string]time.Time

	// now is swappable for TTL tests.
	now func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt *time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		recency: make(map[string]map[string]time.Time),
		now:     time.Now,
	}
}

func (s *MemoryStore) expired(e memoryEntry) bool {
	return e.expiresAt != nil && !s.now().Before(*e.expiresAt)
}

// SetNX atomically stores value under key only if the key is absent or expired.
func (s *MemoryStore) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && !s.expired(e) {
		return false, nil
	}

	s.entries[key] = memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: expiryFrom(s.now(), ttl),
	}
	return true, nil
}

// Get returns the value under key, or ErrKeyNotFound if absent or expired.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok || s.expired(e) {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), e.value...), nil
}

// Set unconditionally stores value under key with the given TTL.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: expiryFrom(s.now(), ttl),
	}
	return nil
}

// UpsertRecency inserts or updates member's score within the named index set.
func (s *MemoryStore) UpsertRecency(_ context.Context, set, member string, score time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.recency[set]
	if !ok {
		members = make(map[string]time.Time)
		s.recency[set] = members
	}
	members[member] = score
	return nil
}

// RecentMembers returns up to limit members of the named index set, most
// recent score first.
func (s *MemoryStore) RecentMembers(_ context.Context, set string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := s.recency[set]
	out := make([]string, 0, len(members))
	for member := range members {
		out = append(out, member)
	}

	sort.Slice(out, func(i, j int) bool {
		return members[out[i]].After(members[out[j]])
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// HealthCheck always succeeds for the in-process store.
func (s *MemoryStore) HealthCheck(_ context.Context) error {
	return nil
}

// Close releases nothing; the store lives and dies with the process.
func (s *MemoryStore) Close() error {
	return nil
}
