package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gatewarden/gatewarden/internal/defense/botdetect"
	"github.com/gatewarden/gatewarden/internal/defense/guard"
	"github.com/gatewarden/gatewarden/internal/defense/inputcheck"
	"github.com/gatewarden/gatewarden/internal/defense/ratelimit"
	"github.com/gatewarden/gatewarden/internal/defense/secmon"
	"github.com/gatewarden/gatewarden/internal/infrastructure/monitoring/logging"
	"github.com/gatewarden/gatewarden/internal/infrastructure/monitoring/prometheus"
	"github.com/gatewarden/gatewarden/internal/interfaces/http/respond"
	"github.com/gatewarden/gatewarden/pkg/errors"
)

// criticalBlockDuration is the block applied when request analysis reaches
// critical severity.
const criticalBlockDuration = time.Hour

// formLoadTimeField carries the client-side form render timestamp used for
// submission-timing analysis.  Accepted as RFC 3339 or Unix milliseconds.
const formLoadTimeField = "form_load_time"

// DefenseChain wires the defense components into one middleware.  The order
// is fixed: IP block check, resource ceilings, rate limiting, body read,
// request analysis, bot detection, input validation.  The first check to
// deny a request short-circuits everything after it.
type DefenseChain struct {
	guard    *guard.Guard
	monitor  *secmon.Monitor
	limiter  *ratelimit.Limiter
	detector *botdetect.Detector
	validate inputcheck.Options
	metrics  *prometheus.Metrics
	logger   logging.Logger
}

// NewDefenseChain assembles the chain.  All components are required except
// metrics, which may be nil in tests.
func NewDefenseChain(
	g *guard.Guard,
	monitor *secmon.Monitor,
	limiter *ratelimit.Limiter,
	detector *botdetect.Detector,
	validate inputcheck.Options,
	metrics *prometheus.Metrics,
	log logging.Logger,
) *DefenseChain {
	return &DefenseChain{
		guard:    g,
		monitor:  monitor,
		limiter:  limiter,
		detector: detector,
		validate: validate,
		metrics:  metrics,
		logger:   log.Named("defense"),
	}
}

// Handler returns the chain as net/http middleware.
func (c *DefenseChain) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ip := ratelimit.ClientIP(r)

		if entry, blocked := c.monitor.IsBlocked(ip); blocked {
			retry := int(time.Until(entry.BlockUntil).Seconds()) + 1
			respond.Error(w, errors.New(errors.ErrCodeIPBlocked, "access denied").WithRetryAfter(retry))
			return
		}

		if err := c.guard.CheckRequest(r); err != nil {
			c.countGuardDenial(err)
			respond.Error(w, err)
			return
		}

		if res := c.limiter.CheckRequest(ctx, r); !res.Allowed {
			c.denyRateLimited(ctx, w, r, ip, res)
			return
		}

		form, raw, err := c.readBody(r)
		if err != nil {
			c.countGuardDenial(err)
			respond.Error(w, err)
			return
		}

		analysis := c.monitor.AnalyzeRequest(ctx, r, raw)
		if analysis.Severity == secmon.SeverityCritical {
			c.monitor.BlockIP(ctx, ip, "critical request pattern: "+strings.Join(analysis.Patterns, ","),
				criticalBlockDuration, 1)
			respond.Error(w, errors.New(errors.ErrCodeCriticalRequest, "access denied"))
			return
		}

		if form != nil {
			if !c.checkBot(ctx, w, r, ip, form) {
				return
			}
			sanitized, ok := c.checkInput(ctx, w, r, ip, form)
			if !ok {
				return
			}
			// Downstream sees the sanitized body.
			raw = sanitized
		}
		if raw != nil {
			r.Body = io.NopCloser(bytes.NewReader(raw))
			r.ContentLength = int64(len(raw))
		}

		next.ServeHTTP(w, r)
	})
}

// readBody consumes a JSON body within the route's size ceiling and returns
// both the decoded object (when the body is a JSON object) and the raw
// bytes.  Non-JSON and bodyless requests pass through untouched.
func (c *DefenseChain) readBody(r *http.Request) (map[string]any, []byte, error) {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return nil, nil, nil
	}
	if r.Body == nil || r.ContentLength == 0 {
		return nil, nil, nil
	}

	limit := c.guard.BodyLimit(r.URL.Path)
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "application/json") {
		// Pass through with a hard size cap; nothing downstream of the
		// gateway parses non-JSON payloads.
		raw, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
		if err != nil {
			return nil, nil, errors.Wrap(err, errors.ErrCodeBodyNotJSON, "failed to read request body")
		}
		if int64(len(raw)) > limit {
			return nil, nil, errors.New(errors.ErrCodeBodyTooLarge, "request body exceeds the size limit")
		}
		return nil, raw, nil
	}

	var body any
	if err := guard.ReadBodyWithLimit(r, limit, &body); err != nil {
		return nil, nil, err
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to re-encode request body")
	}
	form, _ := body.(map[string]any)
	return form, raw, nil
}

func (c *DefenseChain) denyRateLimited(ctx context.Context, w http.ResponseWriter, r *http.Request, ip string, res ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

	if c.metrics != nil {
		c.metrics.RateLimitDenials.WithLabelValues(res.Tier).Inc()
	}

	e := secmon.NewEvent(secmon.EventRateLimited, secmon.SeverityMedium)
	e.IPAddress = ip
	e.UserAgent = r.UserAgent()
	e.Endpoint = r.URL.Path
	e.Method = r.Method
	e.Details = map[string]any{"tier": res.Tier, "retry_after": res.RetryAfter}
	c.monitor.Report(ctx, e)

	respond.Error(w, errors.RateLimit("rate limit exceeded, slow down", res.RetryAfter))
}

// checkBot runs bot analysis on the decoded form.  Returns false when the
// request was denied and a response already written.
func (c *DefenseChain) checkBot(ctx context.Context, w http.ResponseWriter, r *http.Request, ip string, form map[string]any) bool {
	verdict := c.detector.Analyze(r, form, parseFormLoadTime(form))
	if c.metrics != nil {
		c.metrics.ObserveBotVerdict(verdict.IsBot, verdict.ShouldBlock)
	}
	if !verdict.IsBot {
		return true
	}

	e := secmon.NewEvent(secmon.EventBotDetected, secmon.SeverityMedium)
	e.IPAddress = ip
	e.UserAgent = r.UserAgent()
	e.Endpoint = r.URL.Path
	e.Method = r.Method
	e.Blocked = verdict.ShouldBlock
	e.Details = map[string]any{
		"confidence": verdict.Confidence,
		"reasons":    verdict.Reasons,
	}
	c.monitor.Report(ctx, e)

	if !verdict.ShouldBlock {
		c.logger.Info("suspected bot allowed through",
			logging.String("ip", ip),
			logging.Float64("confidence", verdict.Confidence),
		)
		return true
	}

	c.monitor.RecordViolation(ctx, ip, "BOT_DETECTED")
	respond.Error(w, errors.New(errors.ErrCodeBotDetected, "automated traffic is not allowed"))
	return false
}

// checkInput validates and sanitizes the form.  Returns the re-encoded
// sanitized body, or ok=false when validation failed and a response was
// written.
func (c *DefenseChain) checkInput(ctx context.Context, w http.ResponseWriter, r *http.Request, ip string, form map[string]any) ([]byte, bool) {
	result := inputcheck.Validate(form, c.validate)
	if result.Valid {
		raw, err := json.Marshal(result.Sanitized)
		if err != nil {
			respond.Error(w, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode sanitized body"))
			return nil, false
		}
		return raw, true
	}

	c.monitor.RecordViolation(ctx, ip, "INVALID_INPUT")
	e := secmon.NewEvent(secmon.EventInvalidInput, secmon.SeverityMedium)
	e.IPAddress = ip
	e.Endpoint = r.URL.Path
	e.Method = r.Method
	e.Details = map[string]any{"errors": result.Errors}
	c.monitor.Report(ctx, e)

	respond.ValidationError(w, result.Errors)
	return nil, false
}

func (c *DefenseChain) countGuardDenial(err error) {
	if c.metrics == nil {
		return
	}
	var check string
	switch errors.GetCode(err) {
	case errors.ErrCodeURLTooLong:
		check = "url"
	case errors.ErrCodeHeadersTooBig:
		check = "headers"
	case errors.ErrCodeBodyTooLarge:
		check = "body"
	case errors.ErrCodeBodyNotJSON:
		check = "json"
	default:
		check = "other"
	}
	c.metrics.GuardDenials.WithLabelValues(check).Inc()
}

// parseFormLoadTime extracts the form render timestamp, accepting RFC 3339
// strings or Unix-millisecond numbers.  Zero when absent or unparseable,
// which disables timing analysis for the request.
func parseFormLoadTime(form map[string]any) time.Time {
	v, ok := form[formLoadTimeField]
	if !ok {
		return time.Time{}
	}
	switch t := v.(type) {
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed
		}
	case float64:
		if t > 0 {
			return time.UnixMilli(int64(t))
		}
	}
	return time.Time{}
}
