// Package botdetect scores form submissions for automation.  Heuristics are
// weighted and summed into a 0..1 confidence; no single signal decides the
// verdict on its own, except the honeypot which carries enough weight to
// cross the blocking threshold by itself.
package botdetect

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gatewarden/gatewarden/internal/defense/ratelimit"
	"github.com/gatewarden/gatewarden/internal/infrastructure/monitoring/logging"
)

const (
	weightHoneypot       = 0.9
	weightTiming         = 0.7
	weightUAEmpty        = 0.9
	weightUASignature    = 0.8
	weightUATooShort     = 0.7
	weightUATooLong      = 0.6
	weightDuplicate      = 0.8
	weightMissingReferer = 0.3

	// Submissions faster than this are not human.
	minFormFillTime = 3 * time.Second
	// Submissions older than this are stale replays.
	maxFormAge = time.Hour

	isBotThreshold       = 0.5
	shouldBlockThreshold = 0.7

	defaultFingerprintWindow = 60 * time.Second
	fingerprintSweepInterval = 30 * time.Second
)

// honeypotFields are form fields hidden from humans; bots fill them.
var honeypotFields = []string{"website", "url", "homepage", "company_name", "fax", "alternative_email"}

// "javascript" is stripped before matching so the bare "java" token only
// catches Java HTTP clients, not browser UAs advertising script support.
var (
	botUAPattern    = regexp.MustCompile(`(?i)bot|crawler|spider|scraper|curl|wget|python|java|go-http|axios|fetch`)
	javascriptToken = regexp.MustCompile(`(?i)javascript`)
)

// Result is the detector's verdict on a single submission.
type Result struct {
	IsBot       bool     `json:"is_bot"`
	ShouldBlock bool     `json:"should_block"`
	Confidence  float64  `json:"confidence"`
	Reasons     []string `json:"reasons"`
}

// Detector holds the recent-submission fingerprint map.  Everything else is
// stateless per call.
type Detector struct {
	window time.Duration
	logger logging.Logger

	mu    sync.Mutex
	seen  map[uint64]time.Time
	stop  chan struct{}
	once  sync.Once
	now   func() time.Time
}

// Option customises a Detector.
type Option func(*Detector)

// WithClock overrides the detector's time source.  Test hook.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// WithFingerprintWindow overrides the duplicate-submission window.
func WithFingerprintWindow(w time.Duration) Option {
	return func(d *Detector) { d.window = w }
}

// NewDetector creates a detector and starts its fingerprint sweeper.
func NewDetector(log logging.Logger, opts ...Option) *Detector {
	d := &Detector{
		window: defaultFingerprintWindow,
		logger: log.Named("botdetect"),
		seen:   make(map[uint64]time.Time),
		stop:   make(chan struct{}),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	go d.sweep()
	return d
}

// Close stops the fingerprint sweeper.  Safe to call more than once.
func (d *Detector) Close() error {
	d.once.Do(func() { close(d.stop) })
	return nil
}

func (d *Detector) sweep() {
	ticker := time.NewTicker(fingerprintSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.pruneFingerprints()
		case <-d.stop:
			return
		}
	}
}

func (d *Detector) pruneFingerprints() {
	now := d.now()
	d.mu.Lock()
	for fp, at := range d.seen {
		if now.Sub(at) > d.window {
			delete(d.seen, fp)
		}
	}
	d.mu.Unlock()
}

// Analyze scores one submission.  form is the parsed request body;
// formLoadTime is the client-reported render timestamp and may be zero when
// the client did not supply one (the timing heuristic is then skipped).
func (d *Detector) Analyze(r *http.Request, form map[string]any, formLoadTime time.Time) Result {
	var (
		confidence float64
		reasons    []string
	)

	for _, field := range honeypotFields {
		v, ok := form[field]
		if !ok {
			continue
		}
		if s := strings.TrimSpace(fmt.Sprint(v)); v != nil && s != "" {
			reasons = append(reasons, fmt.Sprintf("Honeypot field '%s' was filled", field))
			confidence += weightHoneypot
			break
		}
	}

	if !formLoadTime.IsZero() {
		elapsed := d.now().Sub(formLoadTime)
		switch {
		case elapsed < minFormFillTime:
			reasons = append(reasons, fmt.Sprintf("Form submitted too quickly (%s)", elapsed))
			confidence += weightTiming
		case elapsed > maxFormAge:
			reasons = append(reasons, fmt.Sprintf("Form submission too old (%s)", elapsed))
			confidence += weightTiming
		}
	}

	if reason, weight, ok := analyzeUserAgent(r.UserAgent()); ok {
		reasons = append(reasons, reason)
		confidence += weight
	}

	if d.isDuplicate(r, form) {
		reasons = append(reasons, "Duplicate submission within the deduplication window")
		confidence += weightDuplicate
	}

	if r.Method == http.MethodPost && r.Header.Get("referer") == "" {
		reasons = append(reasons, "Missing referer header on POST request")
		confidence += weightMissingReferer
	}

	if confidence > 1 {
		confidence = 1
	}

	res := Result{
		IsBot:       confidence > isBotThreshold,
		ShouldBlock: confidence > shouldBlockThreshold,
		Confidence:  confidence,
		Reasons:     reasons,
	}
	if res.IsBot {
		d.logger.Warn("bot suspected",
			logging.String("ip", ratelimit.ClientIP(r)),
			logging.Float64("confidence", confidence),
			logging.Any("reasons", reasons),
		)
	}
	return res
}

// analyzeUserAgent applies the UA rules in order and returns the first
// match.  Only one UA rule contributes to the total.
func analyzeUserAgent(ua string) (string, float64, bool) {
	switch {
	case ua == "":
		return "User-Agent header is empty", weightUAEmpty, true
	case botUAPattern.MatchString(javascriptToken.ReplaceAllString(ua, "")):
		return "User-Agent matches a known automation signature", weightUASignature, true
	case len(ua) < 20:
		return "User-Agent is abnormally short", weightUATooShort, true
	case len(ua) > 500:
		return "User-Agent is abnormally long", weightUATooLong, true
	}
	return "", 0, false
}

// isDuplicate checks the submission fingerprint against the recent map and
// records it.  Every fingerprint is recorded, duplicate or not, so the next
// identical submission inside the window is caught.
func (d *Detector) isDuplicate(r *http.Request, form map[string]any) bool {
	fp := fingerprint(r, form)
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	at, seen := d.seen[fp]
	d.seen[fp] = now
	return seen && now.Sub(at) <= d.window
}

// fingerprint derives a dedup key from the client identity and body.  A
// rolling multiplicative hash is plenty here; collisions only cause a rare
// false duplicate flag worth 0.8, never a block on their own.
func fingerprint(r *http.Request, form map[string]any) uint64 {
	body, err := json.Marshal(form)
	if err != nil {
		body = nil
	}
	var b strings.Builder
	b.WriteString(ratelimit.ClientIP(r))
	b.WriteByte('|')
	b.WriteString(r.UserAgent())
	b.WriteByte('|')
	b.WriteString(r.Header.Get("accept-language"))
	b.WriteByte('|')
	b.Write(body)

	var h uint64
	for _, c := range []byte(b.String()) {
		h = h*31 + uint64(c)
	}
	return h
}
