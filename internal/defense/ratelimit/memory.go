package ratelimit

import (
	"context"
	"sync"
	"time"
)

// defaultCleanupInterval is how often the in-memory store prunes expired
// entries when no interval is configured.
const defaultCleanupInterval = 5 * time.Minute

// MemoryStore is the in-process Store backend.  All mutations happen under a
// single mutex, which makes Increment atomic per key.  Suitable for
// single-instance deployments and for tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry

	stopCleanup chan struct{}
	stopOnce    sync.Once

	// now is swapped in tests to drive window expiry deterministically.
	now func() time.Time
}

// MemoryStoreOption customises a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithClock overrides the store's time source.  Test hook.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates an in-memory store and starts a background pruning
// goroutine.  Pass cleanupInterval <= 0 to use the default; call Close to
// stop the goroutine.
func NewMemoryStore(cleanupInterval time.Duration, opts ...MemoryStoreOption) *MemoryStore {
	if cleanupInterval <= 0 {
		cleanupInterval = defaultCleanupInterval
	}
	s := &MemoryStore{
		entries:     make(map[string]Entry),
		stopCleanup: make(chan struct{}),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.cleanupLoop(cleanupInterval)
	return s
}

// Increment implements Store.
func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (Entry, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	e = advance(e, ok, now, window)
	s.entries[key] = e
	return e, nil
}

// Get implements Store.  Entries whose window and block have both lapsed are
// pruned on access.
func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	if expired(e, now) {
		delete(s.entries, key)
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Set implements Store.  The ttl argument is ignored; the in-memory backend
// expires entries from their own timestamps.
func (s *MemoryStore) Set(_ context.Context, key string, entry Entry, _ time.Duration) error {
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

// Close stops the cleanup goroutine.  Idempotent.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
	return nil
}

// Len returns the number of live entries.  Monitoring/test helper.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.prune()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) prune() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.entries {
		if expired(e, now) {
			delete(s.entries, key)
		}
	}
}

// expired reports whether an entry carries no live state: its window has
// lapsed and any block has lapsed with it.
func expired(e Entry, now time.Time) bool {
	if e.Blocked && now.Before(e.BlockUntil) {
		return false
	}
	return !now.Before(e.ResetAt)
}
