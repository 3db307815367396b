// Package ratelimit implements fixed-window request rate limiting with
// escalating blocks, checked across three identity tiers (client IP,
// authenticated user, endpoint path).  Counter state lives behind the Store
// interface so deployments can choose the in-memory backend or a shared
// Redis backend without touching the limiter.
package ratelimit

import (
	"context"
	"time"
)

// Entry is the counter state for one identifier within the current window.
type Entry struct {
	// Count is the number of requests observed in the current window.
	Count int `json:"count"`

	// ResetAt is when the current window ends; a request at or after this
	// instant starts a fresh window with Count=1.
	ResetAt time.Time `json:"reset_at"`

	// Blocked marks the identifier as blocked for repeated violations.
	Blocked bool `json:"blocked"`

	// BlockUntil is when the block expires.  Once passed, the entry is
	// treated as if newly created.
	BlockUntil time.Time `json:"block_until,omitempty"`
}

// Store is the pluggable counter storage behind the limiter.
//
// Increment must be atomic per key on the in-memory backend.  A remote
// backend may accept a small read-modify-write race window, but it must
// never fail open: on a backend error Increment returns a conservative
// synthetic entry (already over any plausible limit) together with the
// error, so a dead store throttles traffic instead of unleashing it.
type Store interface {
	// Increment records one request for key, creating the entry or starting
	// a fresh window as needed, and returns the updated entry.
	Increment(ctx context.Context, key string, window time.Duration) (Entry, error)

	// Get returns the current entry for key; ok is false when none exists.
	Get(ctx context.Context, key string) (entry Entry, ok bool, err error)

	// Set overwrites the entry for key.  Used by the limiter to persist
	// escalating blocks.
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error

	// Close releases background resources (cleanup tickers, connections).
	Close() error
}

// advance applies the window rules shared by every backend: a blocked entry
// stays frozen until its block expires, an expired block or window starts a
// fresh window, and otherwise the count increments in place.
func advance(e Entry, exists bool, now time.Time, window time.Duration) Entry {
	if exists && e.Blocked {
		if now.Before(e.BlockUntil) {
			// Frozen: checks keep failing until the block lapses.
			return e
		}
		// Block expired: entry behaves as newly created.
		exists = false
	}
	if !exists || !now.Before(e.ResetAt) {
		return Entry{Count: 1, ResetAt: now.Add(window)}
	}
	e.Count++
	return e
}
