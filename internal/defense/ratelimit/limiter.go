package ratelimit

import (
	"context"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gatewarden/gatewarden/internal/infrastructure/monitoring/logging"
)

// Escalating-block parameters: one minute of block time per request over the
// limit, capped at an hour.
const (
	blockPerViolation = time.Minute
	maxBlockDuration  = time.Hour
)

// TierConfig is the limit for one identity tier.
type TierConfig struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

// Config holds the three tier limits, checked in the fixed order
// IP → user → endpoint.  A zero MaxRequests disables that tier.
type Config struct {
	IP       TierConfig `mapstructure:"ip"`
	User     TierConfig `mapstructure:"user"`
	Endpoint TierConfig `mapstructure:"endpoint"`
}

// DefaultConfig returns the limits applied when nothing is configured.
func DefaultConfig() Config {
	return Config{
		IP:       TierConfig{MaxRequests: 100, Window: time.Minute},
		User:     TierConfig{MaxRequests: 60, Window: time.Minute},
		Endpoint: TierConfig{MaxRequests: 1000, Window: time.Minute},
	}
}

// Result is the outcome of a limiter check.
type Result struct {
	Allowed bool

	// Tier names the tier that denied the request ("ip", "user",
	// "endpoint"); empty when allowed.
	Tier string

	// Limit and Remaining describe the tightest tier consulted, for the
	// X-RateLimit-* response headers.
	Limit     int
	Remaining int
	ResetAt   time.Time

	// RetryAfter is the whole number of seconds the caller should wait,
	// rounded up.  Positive only on denial.
	RetryAfter int
}

// Limiter evaluates fixed-window limits with escalating blocks across the
// three identity tiers.  Safe for concurrent use; the tier configuration can
// be swapped at runtime (config hot-reload).
type Limiter struct {
	store  Store
	logger logging.Logger

	mu  sync.RWMutex
	cfg Config

	now func() time.Time
}

// LimiterOption customises a Limiter.
type LimiterOption func(*Limiter)

// WithLimiterClock overrides the limiter's time source.  Test hook.
func WithLimiterClock(now func() time.Time) LimiterOption {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter creates a limiter over the given store.
func NewLimiter(store Store, cfg Config, log logging.Logger, opts ...LimiterOption) *Limiter {
	l := &Limiter{
		store:  store,
		cfg:    cfg,
		logger: log.Named("ratelimit"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// UpdateConfig swaps the tier limits.  In-flight checks finish under the old
// configuration.
func (l *Limiter) UpdateConfig(cfg Config) {
	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()
	l.logger.Info("rate limit configuration updated",
		logging.Int("ip_max", cfg.IP.MaxRequests),
		logging.Int("user_max", cfg.User.MaxRequests),
		logging.Int("endpoint_max", cfg.Endpoint.MaxRequests),
	)
}

// ConfigSnapshot returns the current tier limits.
func (l *Limiter) ConfigSnapshot() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// Check evaluates a single identifier against one tier's limit.
//
// The algorithm is a fixed window with escalating blocks: a fresh window
// starts whenever the previous one has lapsed; exceeding the limit blocks
// the identifier for one minute per excess request, capped at an hour; a
// blocked identifier is denied until the block lapses, at which point it is
// treated as new.
func (l *Limiter) Check(ctx context.Context, key string, tier TierConfig) Result {
	now := l.now()

	entry, err := l.store.Increment(ctx, key, tier.Window)
	if err != nil {
		// Store down: the backend already returned a conservative synthetic
		// entry; deny with its retry hint.
		return deniedResult(entry, tier, now)
	}

	if entry.Blocked && now.Before(entry.BlockUntil) {
		return deniedResult(entry, tier, now)
	}

	if entry.Count > tier.MaxRequests {
		violations := entry.Count - tier.MaxRequests
		blockFor := time.Duration(violations) * blockPerViolation
		if blockFor > maxBlockDuration {
			blockFor = maxBlockDuration
		}
		entry.Blocked = true
		entry.BlockUntil = now.Add(blockFor)
		if err := l.store.Set(ctx, key, entry, entryTTL(entry, now, tier.Window)); err != nil {
			l.logger.Error("failed to persist rate limit block", logging.String("key", key), logging.Err(err))
		}
		l.logger.Warn("identifier blocked for rate limit violations",
			logging.String("key", key),
			logging.Int("violations", violations),
			logging.Duration("block_for", blockFor),
		)
		return deniedResult(entry, tier, now)
	}

	return Result{
		Allowed:   true,
		Limit:     tier.MaxRequests,
		Remaining: tier.MaxRequests - entry.Count,
		ResetAt:   entry.ResetAt,
	}
}

// CheckRequest runs the multi-tier check for an HTTP request: IP, then user,
// then endpoint.  The first tier to deny short-circuits the chain; all three
// must pass for an overall allow.  The returned Result's Tier names the
// denying tier.
func (l *Limiter) CheckRequest(ctx context.Context, r *http.Request) Result {
	l.mu.RLock()
	cfg := l.cfg
	l.mu.RUnlock()

	checks := []struct {
		tier string
		key  string
		cfg  TierConfig
	}{
		{"ip", ClientIP(r), cfg.IP},
		{"user", UserIdentifier(r), cfg.User},
		{"endpoint", EndpointIdentifier(r), cfg.Endpoint},
	}

	var last Result
	for _, c := range checks {
		if c.cfg.MaxRequests <= 0 {
			continue
		}
		res := l.Check(ctx, c.key, c.cfg)
		if !res.Allowed {
			res.Tier = c.tier
			return res
		}
		last = res
	}
	if last.Limit == 0 {
		// Every tier disabled.
		return Result{Allowed: true}
	}
	return last
}

func deniedResult(e Entry, tier TierConfig, now time.Time) Result {
	retry := int(math.Ceil(e.BlockUntil.Sub(now).Seconds()))
	if retry < 1 {
		retry = 1
	}
	return Result{
		Allowed:    false,
		Limit:      tier.MaxRequests,
		Remaining:  0,
		ResetAt:    e.ResetAt,
		RetryAfter: retry,
	}
}
