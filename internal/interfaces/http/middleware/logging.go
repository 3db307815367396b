package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gatewarden/gatewarden/internal/defense/ratelimit"
	"github.com/gatewarden/gatewarden/internal/infrastructure/monitoring/logging"
	"github.com/gatewarden/gatewarden/internal/infrastructure/monitoring/prometheus"
)

// slowRequestThreshold promotes a request log line to a warning.
const slowRequestThreshold = time.Second

// skipLogPaths are high-frequency probe endpoints not worth a log line each.
var skipLogPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

type wrappedResponseWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *wrappedResponseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *wrappedResponseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

// RequestLogger logs one line per request and records request metrics.
// Metrics may be nil in tests.
func RequestLogger(log logging.Logger, metrics *prometheus.Metrics) func(http.Handler) http.Handler {
	log = log.Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipLogPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := &wrappedResponseWriter{ResponseWriter: w}
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)

			if ww.status == 0 {
				ww.status = http.StatusOK
			}
			if metrics != nil {
				metrics.ObserveRequest(r.Method, r.URL.Path, ww.status, elapsed)
			}

			fields := []logging.Field{
				logging.String("request_id", chimw.GetReqID(r.Context())),
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.String("ip", ratelimit.ClientIP(r)),
				logging.Int("status", ww.status),
				logging.Int64("bytes", ww.written),
				logging.Duration("elapsed", elapsed),
			}
			switch {
			case ww.status >= http.StatusInternalServerError:
				log.Error("request failed", fields...)
			case elapsed > slowRequestThreshold:
				log.Warn("slow request", fields...)
			default:
				log.Info("request completed", fields...)
			}
		})
	}
}
