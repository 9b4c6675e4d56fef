package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/flashgate/flashgate/internal/clock"
)

// MemoryStore is an in-memory implementation of Store backed by a map.
// Values are kept as strings so counter semantics match a Redis backend
// (INCR on a string value). It uses a Clock for expiration checks,
// enabling virtual-time testing. Thread-safe for concurrent use.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memItem
	clock clock.Clock
}

type memItem struct {
	value     string
	expiresAt time.Time // zero value means no expiration
}

// NewMemoryStore creates a new in-memory store using the given clock.
func NewMemoryStore(c clock.Clock) *MemoryStore {
	return &MemoryStore{
		items: make(map[string]memItem),
		clock: c,
	}
}

// live reports whether item is present and unexpired at now.
func (s *MemoryStore) live(item memItem, ok bool) bool {
	return ok && (item.expiresAt.IsZero() || s.clock.Now().Before(item.expiresAt))
}

func (s *MemoryStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !s.live(item, ok) {
		// Key doesn't exist or expired — initialize to 0 with the TTL.
		item = memItem{value: "0"}
		if ttl > 0 {
			item.expiresAt = s.clock.Now().Add(ttl)
		}
	}

	current, err := strconv.ParseInt(item.value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("value at %q is not an integer: %w", key, err)
	}

	current++
	item.value = strconv.FormatInt(current, 10)
	s.items[key] = item
	return current, nil
}

func (s *MemoryStore) GetCount(ctx context.Context, key string) (int64, bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return 0, false, err
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("value at %q is not an integer: %w", key, err)
	}
	return n, true, nil
}

func (s *MemoryStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if item, ok := s.items[key]; s.live(item, ok) {
		return item.value, nil
	}

	item := memItem{value: value}
	if ttl > 0 {
		item.expiresAt = s.clock.Now().Add(ttl)
	}
	s.items[key] = item
	return value, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item := memItem{value: value}
	if ttl > 0 {
		item.expiresAt = s.clock.Now().Add(ttl)
	}
	s.items[key] = item
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !s.live(item, ok) {
		return "", false, nil
	}
	return item.value, true, nil
}

// Cleanup removes all expired items. Call periodically for long-running sessions.
func (s *MemoryStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	for key, item := range s.items {
		if !item.expiresAt.IsZero() && !now.Before(item.expiresAt) {
			delete(s.items, key)
		}
	}
}

// Len returns the number of items (including expired ones not yet cleaned up).
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Close implements Store. The memory backend holds no external resources.
func (s *MemoryStore) Close() error {
	return nil
}
