package breaker

import (
	"fmt"
	"sync"

	"github.com/gatewarden/gatewarden/internal/infrastructure/monitoring/logging"
	"github.com/gatewarden/gatewarden/pkg/errors"
)

// Manager owns the per-service breakers and creates them lazily on first
// use, so callers can protect a new upstream without registration.
type Manager struct {
	defaults Config
	logger   logging.Logger
	opts     []Option

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewManager creates a manager whose breakers inherit the given defaults.
// Options (such as a test clock) are passed through to every breaker it
// creates.
func NewManager(defaults Config, log logging.Logger, opts ...Option) *Manager {
	defaults.applyDefaults()
	return &Manager{
		defaults: defaults,
		logger:   log,
		opts:     opts,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for the named service, creating it with the
// manager defaults on first use.
func (m *Manager) Get(service string) *Breaker {
	m.mu.RLock()
	b, ok := m.breakers[service]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok = m.breakers[service]; ok {
		return b
	}
	b = New(service, m.defaults, m.logger, m.opts...)
	m.breakers[service] = b
	return b
}

// Configure installs a breaker with service-specific thresholds, replacing
// any existing breaker for that service.
func (m *Manager) Configure(service string, cfg Config) *Breaker {
	b := New(service, cfg, m.logger, m.opts...)
	m.mu.Lock()
	m.breakers[service] = b
	m.mu.Unlock()
	return b
}

// Stats returns snapshots of every known breaker, keyed by service name.
func (m *Manager) Stats() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Stats, len(m.breakers))
	for name, b := range m.breakers {
		out[name] = b.Stats()
	}
	return out
}

// Reset forces the named breaker back to CLOSED.  Unknown services are an
// error so operators notice typos instead of silently no-opping.
func (m *Manager) Reset(service string) error {
	m.mu.RLock()
	b, ok := m.breakers[service]
	m.mu.RUnlock()
	if !ok {
		return errors.New(errors.ErrCodeBreakerNotFound,
			fmt.Sprintf("no circuit breaker registered for %s", service))
	}
	b.Reset()
	return nil
}

// ResetAll forces every breaker back to CLOSED.
func (m *Manager) ResetAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.breakers {
		b.Reset()
	}
}
