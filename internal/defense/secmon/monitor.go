package secmon

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gatewarden/gatewarden/internal/defense/ratelimit"
	"github.com/gatewarden/gatewarden/internal/infrastructure/monitoring/logging"
)

const (
	// autoBlockThreshold is how many violations of one type trip a block.
	autoBlockThreshold = 5
	// blockPerViolation scales the block duration with the violation count.
	blockPerViolation = 5 * time.Minute
	// maxBlockDuration caps automatic blocks.
	maxBlockDuration = 24 * time.Hour
	// criticalBlockDuration is the fixed block applied to critical requests.
	criticalBlockDuration = time.Hour

	cleanupInterval = time.Minute
	// counterPruneChance approximates counter expiry: each cleanup tick has
	// this chance of wiping the violation counters wholesale.  Cheap and
	// imprecise on purpose; blocks themselves expire exactly.
	counterPruneChance = 0.1
)

// attackTools are user-agent substrings of well-known scanners.
var attackTools = []string{
	"sqlmap", "nikto", "nmap", "masscan", "acunetix",
	"nessus", "burp", "metasploit", "havij", "loader",
}

type bodyPattern struct {
	name string
	re   *regexp.Regexp
}

var suspiciousBodyPatterns = []bodyPattern{
	{"UNION_SELECT", regexp.MustCompile(`(?i)union[\s/*]+select`)},
	{"BASE64_PAYLOAD", regexp.MustCompile(`(?i)base64`)},
	{"EVAL_CALL", regexp.MustCompile(`(?i)eval\s*\(`)},
	{"SCRIPT_INJECTION", regexp.MustCompile(`(?i)<\s*script|onerror\s*=`)},
	{"PATH_TRAVERSAL", regexp.MustCompile(`\.\./|\.\.\\`)},
}

var suspiciousURLPatterns = []bodyPattern{
	{"SUSPICIOUS_URL", regexp.MustCompile(`(?i)\.\./|<\s*script|union[\s/*+%]+select|/etc/passwd|\bexec\b`)},
}

// IPBlockEntry describes one blocked IP.
type IPBlockEntry struct {
	IP         string    `json:"ip"`
	Reason     string    `json:"reason"`
	BlockedAt  time.Time `json:"blocked_at"`
	BlockUntil time.Time `json:"block_until"`
	Violations int       `json:"violations"`
}

// Monitor tracks blocked IPs and per-IP violation counters, and publishes
// security events to the configured sink.  One instance per process,
// injected into the middleware chain.
type Monitor struct {
	sink   EventSink
	logger logging.Logger

	mu         sync.RWMutex
	blocked    map[string]IPBlockEntry
	violations map[string]int // keyed ip:violationType

	stop chan struct{}
	once sync.Once
	now  func() time.Time
	rand func() float64
}

// MonitorOption customises a Monitor.
type MonitorOption func(*Monitor)

// WithClock overrides the monitor's time source.  Test hook.
func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

// WithRand overrides the probabilistic-prune dice roll.  Test hook.
func WithRand(f func() float64) MonitorOption {
	return func(m *Monitor) { m.rand = f }
}

// NewMonitor creates a monitor and starts its cleanup loop.
func NewMonitor(sink EventSink, log logging.Logger, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		sink:       sink,
		logger:     log.Named("secmon"),
		blocked:    make(map[string]IPBlockEntry),
		violations: make(map[string]int),
		stop:       make(chan struct{}),
		now:        time.Now,
		rand:       rand.Float64,
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.cleanupLoop()
	return m
}

// Close stops the cleanup loop.  Safe to call more than once.
func (m *Monitor) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}

func (m *Monitor) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stop:
			return
		}
	}
}

func (m *Monitor) cleanup() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	for ip, entry := range m.blocked {
		if !now.Before(entry.BlockUntil) {
			delete(m.blocked, ip)
		}
	}
	if m.rand() < counterPruneChance {
		m.violations = make(map[string]int)
	}
}

// IsBlocked reports whether the IP is currently blocked.  Expired entries
// are pruned on access.
func (m *Monitor) IsBlocked(ip string) (IPBlockEntry, bool) {
	m.mu.RLock()
	entry, ok := m.blocked[ip]
	m.mu.RUnlock()
	if !ok {
		return IPBlockEntry{}, false
	}
	if !m.now().Before(entry.BlockUntil) {
		m.mu.Lock()
		delete(m.blocked, ip)
		m.mu.Unlock()
		return IPBlockEntry{}, false
	}
	return entry, true
}

// BlockIP blocks an IP for the given duration.  Repeat blocks of the same
// IP compound: the violation count carries over and increments.
func (m *Monitor) BlockIP(ctx context.Context, ip, reason string, duration time.Duration, violations int) {
	now := m.now()

	m.mu.Lock()
	if prev, ok := m.blocked[ip]; ok && violations <= prev.Violations {
		violations = prev.Violations + 1
	}
	entry := IPBlockEntry{
		IP:         ip,
		Reason:     reason,
		BlockedAt:  now,
		BlockUntil: now.Add(duration),
		Violations: violations,
	}
	m.blocked[ip] = entry
	m.mu.Unlock()

	m.logger.Warn("ip blocked",
		logging.String("ip", ip),
		logging.String("reason", reason),
		logging.Duration("duration", duration),
		logging.Int("violations", violations),
	)

	e := NewEvent(EventIPBlocked, SeverityHigh)
	e.IPAddress = ip
	e.Blocked = true
	e.Details = map[string]any{
		"reason":      reason,
		"duration":    duration.String(),
		"violations":  violations,
		"block_until": entry.BlockUntil,
	}
	m.record(ctx, e)
}

// UnblockIP removes a block.  Returns false when the IP was not blocked.
func (m *Monitor) UnblockIP(ctx context.Context, ip string) bool {
	m.mu.Lock()
	_, ok := m.blocked[ip]
	if ok {
		delete(m.blocked, ip)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	e := NewEvent(EventIPUnblocked, SeverityLow)
	e.IPAddress = ip
	m.record(ctx, e)
	return true
}

// GetBlockedIPs returns a snapshot of all live blocks.
func (m *Monitor) GetBlockedIPs() []IPBlockEntry {
	now := m.now()
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]IPBlockEntry, 0, len(m.blocked))
	for _, entry := range m.blocked {
		if now.Before(entry.BlockUntil) {
			out = append(out, entry)
		}
	}
	return out
}

// RecordViolation increments the IP's counter for one violation type and
// auto-blocks once the counter reaches the threshold.  The block duration
// scales with the count: five minutes per violation, capped at 24 hours.
func (m *Monitor) RecordViolation(ctx context.Context, ip, violationType string) {
	key := ip + ":" + violationType

	m.mu.Lock()
	m.violations[key]++
	count := m.violations[key]
	m.mu.Unlock()

	if count < autoBlockThreshold {
		return
	}

	duration := time.Duration(count) * blockPerViolation
	if duration > maxBlockDuration {
		duration = maxBlockDuration
	}
	m.BlockIP(ctx, ip, fmt.Sprintf("repeated %s violations", violationType), duration, count)
}

// Analysis is the outcome of analyzing one request.
type Analysis struct {
	Severity Severity
	Patterns []string
}

// AnalyzeRequest computes a severity for the request from its IP history,
// user agent, body and URL.  Each matched pattern increments the IP's
// violation counter for that pattern type; any match also emits a
// SUSPICIOUS_REQUEST event.  Analysis never blocks by itself — the caller
// decides what to do with a critical verdict.
func (m *Monitor) AnalyzeRequest(ctx context.Context, r *http.Request, body []byte) Analysis {
	ip := ratelimit.ClientIP(r)
	severity := SeverityLow
	var patterns []string

	if _, blocked := m.IsBlocked(ip); blocked {
		severity = Escalate(severity, SeverityCritical)
		patterns = append(patterns, "BLOCKED_IP_REPEAT")
	}

	ua := strings.ToLower(r.UserAgent())
	for _, tool := range attackTools {
		if strings.Contains(ua, tool) {
			severity = Escalate(severity, SeverityMedium)
			patterns = append(patterns, "ATTACK_TOOL_UA")
			break
		}
	}
	if n := len(r.UserAgent()); n > 0 && (n < 10 || n > 1000) {
		severity = Escalate(severity, SeverityMedium)
		patterns = append(patterns, "ABNORMAL_UA")
	}

	if len(body) > 0 {
		text := string(body)
		for _, p := range suspiciousBodyPatterns {
			if p.re.MatchString(text) {
				severity = Escalate(severity, SeverityHigh)
				patterns = append(patterns, p.name)
			}
		}
	}

	fullURL := r.URL.RequestURI()
	for _, p := range suspiciousURLPatterns {
		if p.re.MatchString(fullURL) {
			severity = Escalate(severity, SeverityHigh)
			patterns = append(patterns, p.name)
		}
	}

	if len(patterns) > 0 {
		for _, name := range patterns {
			m.RecordViolation(ctx, ip, name)
		}

		e := NewEvent(EventSuspiciousRequest, severity)
		e.IPAddress = ip
		e.UserAgent = r.UserAgent()
		e.Endpoint = r.URL.Path
		e.Method = r.Method
		e.Details = map[string]any{"patterns": patterns}
		m.record(ctx, e)
	}

	return Analysis{Severity: severity, Patterns: patterns}
}

// Report publishes an externally produced event (bot verdicts, validation
// failures, rate-limit denials) through the monitor's sink.
func (m *Monitor) Report(ctx context.Context, e SecurityEvent) {
	m.record(ctx, e)
}

// record delivers to the sink; sink failures never reach the request path.
func (m *Monitor) record(ctx context.Context, e SecurityEvent) {
	if m.sink == nil {
		return
	}
	if err := m.sink.Record(ctx, e); err != nil {
		m.logger.Error("failed to record security event",
			logging.String("event_type", e.EventType),
			logging.Err(err),
		)
	}
}
