// Package breaker implements per-service circuit breaking for calls to
// unreliable third-party APIs (payments, deliveries, messaging).  Each named
// service gets one Breaker instance, owned by the Manager and shared across
// concurrent requests; callers never hold breaker state themselves.
package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gatewarden/gatewarden/internal/infrastructure/monitoring/logging"
	"github.com/gatewarden/gatewarden/pkg/errors"
)

// State is the breaker's position in its lifecycle.
type State string

const (
	// StateClosed is normal operation: calls pass through, failures count.
	StateClosed State = "CLOSED"
	// StateOpen rejects calls immediately until the cooldown lapses.
	StateOpen State = "OPEN"
	// StateHalfOpen lets trial calls through; enough successes close the
	// breaker, any failure reopens it.
	StateHalfOpen State = "HALF_OPEN"
)

// Config holds the breaker thresholds.
type Config struct {
	// FailureThreshold is how many failures since the last success trip the
	// breaker open.
	FailureThreshold int `mapstructure:"failure_threshold"`

	// SuccessThreshold is how many half-open successes close the breaker.
	SuccessThreshold int `mapstructure:"success_threshold"`

	// Timeout is the open-state cooldown before a trial call is admitted.
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          time.Minute,
	}
}

func (c *Config) applyDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Minute
	}
}

// Stats is a point-in-time snapshot of a breaker.
type Stats struct {
	Service          string     `json:"service"`
	State            State      `json:"state"`
	Failures         int        `json:"failures"`
	Successes        int        `json:"successes"`
	LastFailureTime  *time.Time `json:"last_failure_time,omitempty"`
	NextAttemptTime  *time.Time `json:"next_attempt_time,omitempty"`
	TotalRequests    int64      `json:"total_requests"`
	RejectedRequests int64      `json:"rejected_requests"`
}

// Breaker is the state machine protecting one named service.  All methods
// are safe for concurrent use; state transitions happen under a mutex so
// concurrent requests observe a consistent state.
type Breaker struct {
	service string
	cfg     Config
	logger  logging.Logger

	mu              sync.Mutex
	state           State
	failures        int
	successes       int
	lastFailureTime time.Time
	nextAttemptTime time.Time

	// Lifetime counters: survive Reset by design so operational history is
	// not erased by a manual intervention.
	totalRequests    int64
	rejectedRequests int64

	now func() time.Time
}

// Option customises a Breaker.
type Option func(*Breaker)

// WithClock overrides the breaker's time source.  Test hook.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// New creates a breaker for the named service.
func New(service string, cfg Config, log logging.Logger, opts ...Option) *Breaker {
	cfg.applyDefaults()
	b := &Breaker{
		service: service,
		cfg:     cfg,
		logger:  log.Named("breaker").With(logging.String("service", service)),
		state:   StateClosed,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Execute runs fn under the breaker's protection.  While OPEN and before the
// cooldown lapses the call is rejected without invoking fn; once the
// cooldown has lapsed the next call transitions to HALF_OPEN and runs as a
// trial.  The breaker records exactly one success or failure per Execute.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	err := fn(ctx)
	b.afterCall(err)
	if err != nil {
		return errors.Wrap(err, errors.CodeUnknown, fmt.Sprintf("%s call failed", b.service))
	}
	return nil
}

// beforeCall admits or rejects the call and performs the OPEN → HALF_OPEN
// transition.
func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalRequests++

	if b.state == StateOpen {
		if b.now().Before(b.nextAttemptTime) {
			b.rejectedRequests++
			retry := int(b.nextAttemptTime.Sub(b.now()).Seconds()) + 1
			return errors.New(errors.ErrCodeBreakerOpen,
				fmt.Sprintf("circuit breaker for %s is OPEN", b.service)).
				WithRetryAfter(retry)
		}
		b.transition(StateHalfOpen)
	}
	return nil
}

// afterCall records the outcome of an admitted call.
func (b *Breaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.onFailure()
		return
	}
	b.onSuccess()
}

func (b *Breaker) onFailure() {
	b.failures++
	b.lastFailureTime = b.now()

	switch b.state {
	case StateHalfOpen:
		// One bad trial reopens immediately; partial successes are discarded.
		b.successes = 0
		b.nextAttemptTime = b.now().Add(b.cfg.Timeout)
		b.transition(StateOpen)
	case StateClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.nextAttemptTime = b.now().Add(b.cfg.Timeout)
			b.transition(StateOpen)
		}
	}
}

func (b *Breaker) onSuccess() {
	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.failures = 0
			b.successes = 0
			b.transition(StateClosed)
		}
	case StateClosed:
		// Only failures since the last success count toward the threshold.
		b.failures = 0
	}
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.logger.Warn("circuit breaker state change",
		logging.String("from", string(from)),
		logging.String("to", string(to)),
		logging.Int("failures", b.failures),
	)
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns a snapshot of the breaker.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		Service:          b.service,
		State:            b.state,
		Failures:         b.failures,
		Successes:        b.successes,
		TotalRequests:    b.totalRequests,
		RejectedRequests: b.rejectedRequests,
	}
	if !b.lastFailureTime.IsZero() {
		t := b.lastFailureTime
		s.LastFailureTime = &t
	}
	if !b.nextAttemptTime.IsZero() {
		t := b.nextAttemptTime
		s.NextAttemptTime = &t
	}
	return s
}

// Reset forces the breaker back to CLOSED and clears the failure/success
// counters.  The lifetime TotalRequests/RejectedRequests counters are
// preserved.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.successes = 0
	b.lastFailureTime = time.Time{}
	b.nextAttemptTime = time.Time{}
	b.transition(StateClosed)
}
