// Package http assembles the gateway's HTTP surface: the defense chain in
// front of the proxied upstream, plus health, metrics and admin endpoints.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gatewarden/gatewarden/internal/infrastructure/monitoring/logging"
	"github.com/gatewarden/gatewarden/internal/infrastructure/monitoring/prometheus"
	"github.com/gatewarden/gatewarden/internal/interfaces/http/handlers"
	"github.com/gatewarden/gatewarden/internal/interfaces/http/middleware"
)

// RouterConfig carries everything the router mounts.
type RouterConfig struct {
	Logger  logging.Logger
	Metrics *prometheus.Metrics

	Policy *middleware.HeaderPolicy
	Chain  *middleware.DefenseChain

	Health *handlers.HealthHandler
	Admin  *handlers.AdminHandler // nil disables the admin API

	// Upstream receives traffic that survives the defense chain.
	Upstream http.Handler
}

// NewRouter builds the chi router.  Operational endpoints sit outside the
// defense chain so probes and scrapes are never rate limited; everything
// else flows through the chain into the upstream.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(cfg.Logger, cfg.Metrics))
	r.Use(chimw.Recoverer)
	r.Use(cfg.Policy.Handler)

	r.Get("/healthz", cfg.Health.Liveness)
	r.Get("/readyz", cfg.Health.Readiness)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}
	if cfg.Admin != nil {
		r.Mount("/admin/v1", cfg.Admin.Routes())
	}

	r.Handle("/*", cfg.Chain.Handler(cfg.Upstream))

	return r
}
