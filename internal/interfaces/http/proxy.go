package http

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/gatewarden/gatewarden/internal/defense/breaker"
	"github.com/gatewarden/gatewarden/internal/infrastructure/monitoring/logging"
	"github.com/gatewarden/gatewarden/internal/infrastructure/monitoring/prometheus"
	"github.com/gatewarden/gatewarden/internal/interfaces/http/respond"
	"github.com/gatewarden/gatewarden/pkg/errors"
)

// upstreamService names the breaker guarding the proxied backend.
const upstreamService = "upstream"

// UpstreamProxy forwards vetted traffic to the protected backend behind a
// circuit breaker.  Backend 5xx responses and transport failures count as
// breaker failures; an open breaker rejects without dialing the backend.
type UpstreamProxy struct {
	proxy    *httputil.ReverseProxy
	breakers *breaker.Manager
	metrics  *prometheus.Metrics
	logger   logging.Logger
}

// NewUpstreamProxy creates the proxy for the given backend URL.
func NewUpstreamProxy(target string, breakers *breaker.Manager, metrics *prometheus.Metrics, log logging.Logger) (*UpstreamProxy, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBadRequest, "invalid upstream URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New(errors.ErrCodeBadRequest,
			fmt.Sprintf("upstream URL scheme %q is not supported", u.Scheme))
	}

	log = log.Named("proxy")
	p := httputil.NewSingleHostReverseProxy(u)
	p.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Error("upstream request failed",
			logging.String("path", r.URL.Path),
			logging.Err(err),
		)
		// The wrapper inspects the recorded status; 502 marks a failure.
		w.WriteHeader(http.StatusBadGateway)
	}

	return &UpstreamProxy{proxy: p, breakers: breakers, metrics: metrics, logger: log}, nil
}

// statusRecorder captures the status the proxy wrote so the breaker can
// judge the outcome.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// ServeHTTP forwards the request through the breaker.
func (p *UpstreamProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	br := p.breakers.Get(upstreamService)

	rec := &statusRecorder{ResponseWriter: w}
	err := br.Execute(r.Context(), func(_ context.Context) error {
		p.proxy.ServeHTTP(rec, r)
		if rec.status >= http.StatusInternalServerError {
			return errors.New(errors.ErrCodeExternalService,
				fmt.Sprintf("upstream returned status %d", rec.status))
		}
		return nil
	})

	if p.metrics != nil {
		p.metrics.SetBreakerState(upstreamService, string(br.State()))
	}

	if err != nil && errors.IsCode(err, errors.ErrCodeBreakerOpen) {
		if p.metrics != nil {
			p.metrics.BreakerRejects.WithLabelValues(upstreamService).Inc()
		}
		respond.Error(w, err)
		return
	}
	// Other failures already produced a response via the proxy itself.
}
