package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/paygate-labs/x402-gateway-go/types"
)

// MemoryStore is the default in-process deduplication store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	ttl     time.Duration

	now func() time.Time
}

type memoryEntry struct {
	result    *types.SettleResult
	done      chan struct{}
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory store with the given result TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// CheckAndMark returns a cached result, reports an in-flight settlement, or
// marks the key in-flight for the caller.
func (s *MemoryStore) CheckAndMark(ctx context.Context, key string) (*types.SettleResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]

	// Drop expired completed entries
	if ok && entry.result != nil && s.now().After(entry.expiresAt) {
		delete(s.entries, key)
		ok = false
	}

	if ok {
		if entry.result != nil {
			return entry.result, false, nil
		}
		return nil, true, nil
	}

	// Mark in-flight
	s.entries[key] = &memoryEntry{done: make(chan struct{})}
	return nil, false, nil
}

// WaitForResult blocks until the in-flight settlement completes or the
// context is done.
func (s *MemoryStore) WaitForResult(ctx context.Context, key string) (*types.SettleResult, error) {
	s.mu.Lock()
	entry, ok := s.entries[key]
	s.mu.Unlock()

	if !ok {
		return nil, ErrNoSettlement
	}

	select {
	case <-entry.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The first attempt failed and cleared the entry
	entry, ok = s.entries[key]
	if !ok || entry.result == nil {
		return nil, ErrNoSettlement
	}
	return entry.result, nil
}

// Complete caches the captured result and releases waiters.
func (s *MemoryStore) Complete(ctx context.Context, key string, result types.SettleResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		entry = &memoryEntry{done: make(chan struct{})}
		s.entries[key] = entry
	}

	entry.result = &result
	entry.expiresAt = s.now().Add(s.ttl)
	close(entry.done)
	return nil
}

// Fail clears the in-flight marker so the proof can be retried.
func (s *MemoryStore) Fail(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil
	}

	delete(s.entries, key)
	close(entry.done)
	return nil
}
