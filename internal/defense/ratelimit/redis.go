package ratelimit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gatewarden/gatewarden/internal/infrastructure/monitoring/logging"
	"github.com/gatewarden/gatewarden/pkg/errors"
)

// failClosedBlock is how long the synthetic entry returned on a backend
// failure keeps the caller throttled.  Short on purpose: a Redis blip should
// slow traffic down, not lock everyone out for an hour.
const failClosedBlock = 30 * time.Second

// RedisStore is the shared Store backend for multi-instance deployments.
// Entries are JSON values under a key prefix, expired by Redis TTLs.
//
// The read-modify-write in Increment is not atomic across instances; two
// concurrent requests for the same identifier can each observe the same
// count.  That race loses at most one increment per collision, which is an
// accepted trade for keeping the entry structure (block state included) in a
// single value.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	logger logging.Logger
	now    func() time.Time
}

// RedisStoreOption customises a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithRedisClock overrides the store's time source.  Test hook.
func WithRedisClock(now func() time.Time) RedisStoreOption {
	return func(s *RedisStore) { s.now = now }
}

// NewRedisStore creates a Redis-backed store.  The prefix namespaces this
// limiter's keys ("ratelimit:" when empty).
func NewRedisStore(rdb redis.UniversalClient, prefix string, log logging.Logger, opts ...RedisStoreOption) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	s := &RedisStore{
		rdb:    rdb,
		prefix: prefix,
		logger: log.Named("ratelimit.redis"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Increment implements Store.  On any backend error it fails closed: the
// returned entry is blocked for failClosedBlock so the limiter denies the
// request instead of admitting unlimited traffic through a dead store.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (Entry, error) {
	now := s.now()

	e, ok, err := s.Get(ctx, key)
	if err != nil {
		return s.failClosed(now, err), err
	}

	e = advance(e, ok, now, window)

	if err := s.Set(ctx, key, e, entryTTL(e, now, window)); err != nil {
		return s.failClosed(now, err), err
	}
	return e, nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, errors.Wrap(err, errors.ErrCodeStoreUnavailable, "rate limit store read failed")
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		// A corrupt value is unrecoverable; drop it and start fresh.
		s.logger.Warn("discarding corrupt rate limit entry", logging.String("key", key), logging.Err(err))
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "rate limit entry marshal failed")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := s.rdb.Set(ctx, s.prefix+key, raw, ttl).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeStoreUnavailable, "rate limit store write failed")
	}
	return nil
}

// Close implements Store.  The underlying client is owned by the caller.
func (s *RedisStore) Close() error { return nil }

func (s *RedisStore) failClosed(now time.Time, cause error) Entry {
	s.logger.Error("rate limit store unavailable, failing closed", logging.Err(cause))
	return Entry{
		Count:      1,
		ResetAt:    now.Add(failClosedBlock),
		Blocked:    true,
		BlockUntil: now.Add(failClosedBlock),
	}
}

// entryTTL keeps the Redis value alive for as long as it carries state:
// until the window resets, or until a longer-lived block lapses.
func entryTTL(e Entry, now time.Time, window time.Duration) time.Duration {
	ttl := e.ResetAt.Sub(now)
	if e.Blocked {
		if until := e.BlockUntil.Sub(now); until > ttl {
			ttl = until
		}
	}
	if ttl < window {
		ttl = window
	}
	return ttl
}
