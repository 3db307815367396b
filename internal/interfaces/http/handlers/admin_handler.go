package handlers

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gatewarden/gatewarden/internal/defense/breaker"
	"github.com/gatewarden/gatewarden/internal/defense/ratelimit"
	"github.com/gatewarden/gatewarden/internal/defense/secmon"
	"github.com/gatewarden/gatewarden/internal/infrastructure/monitoring/logging"
	"github.com/gatewarden/gatewarden/internal/interfaces/http/respond"
	"github.com/gatewarden/gatewarden/pkg/errors"
)

// EventStore reads back archived security events.  Nil when no archive
// database is configured.
type EventStore interface {
	RecentEvents(ctx context.Context, limit int) ([]secmon.SecurityEvent, error)
}

// AdminHandler serves the operator API: block-list management, breaker
// inspection and reset, rate-limit configuration, and the event archive.
type AdminHandler struct {
	token    string
	monitor  *secmon.Monitor
	breakers *breaker.Manager
	limiter  *ratelimit.Limiter
	events   EventStore
	logger   logging.Logger
}

// NewAdminHandler creates the handler.  The token guards every route.
func NewAdminHandler(
	token string,
	monitor *secmon.Monitor,
	breakers *breaker.Manager,
	limiter *ratelimit.Limiter,
	events EventStore,
	log logging.Logger,
) *AdminHandler {
	return &AdminHandler{
		token:    token,
		monitor:  monitor,
		breakers: breakers,
		limiter:  limiter,
		events:   events,
		logger:   log.Named("admin"),
	}
}

// Routes mounts the admin API on a chi router.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.requireToken)

	r.Get("/blocked-ips", h.listBlockedIPs)
	r.Delete("/blocked-ips/{ip}", h.unblockIP)
	r.Get("/breakers", h.listBreakers)
	r.Post("/breakers/{service}/reset", h.resetBreaker)
	r.Get("/ratelimit/config", h.getRateLimitConfig)
	r.Put("/ratelimit/config", h.updateRateLimitConfig)
	r.Get("/events", h.recentEvents)
	return r
}

// requireToken checks the bearer token with a constant-time compare.
func (h *AdminHandler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) != 1 {
			h.logger.Warn("admin request rejected",
				logging.String("path", r.URL.Path),
				logging.String("ip", ratelimit.ClientIP(r)),
			)
			respond.Error(w, errors.Unauthorized("invalid or missing admin token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *AdminHandler) listBlockedIPs(w http.ResponseWriter, _ *http.Request) {
	blocked := h.monitor.GetBlockedIPs()
	respond.JSON(w, http.StatusOK, map[string]any{
		"count":       len(blocked),
		"blocked_ips": blocked,
	})
}

func (h *AdminHandler) unblockIP(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	if !h.monitor.UnblockIP(r.Context(), ip) {
		respond.Error(w, errors.NotFound(fmt.Sprintf("ip %s is not blocked", ip)))
		return
	}
	h.logger.Info("ip unblocked by operator", logging.String("ip", ip))
	respond.JSON(w, http.StatusOK, map[string]string{"status": "unblocked", "ip": ip})
}

func (h *AdminHandler) listBreakers(w http.ResponseWriter, _ *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]any{"breakers": h.breakers.Stats()})
}

func (h *AdminHandler) resetBreaker(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	if err := h.breakers.Reset(service); err != nil {
		respond.Error(w, err)
		return
	}
	h.logger.Info("breaker reset by operator", logging.String("service", service))
	respond.JSON(w, http.StatusOK, map[string]string{"status": "reset", "service": service})
}

// tierPayload is the wire shape of one tier limit; windows travel as
// duration strings ("30s", "1m").
type tierPayload struct {
	MaxRequests int    `json:"max_requests"`
	Window      string `json:"window"`
}

type rateLimitPayload struct {
	IP       tierPayload `json:"ip"`
	User     tierPayload `json:"user"`
	Endpoint tierPayload `json:"endpoint"`
}

func tierToPayload(t ratelimit.TierConfig) tierPayload {
	return tierPayload{MaxRequests: t.MaxRequests, Window: t.Window.String()}
}

func (p tierPayload) toConfig(name string) (ratelimit.TierConfig, error) {
	if p.MaxRequests < 0 {
		return ratelimit.TierConfig{}, errors.InvalidParam(fmt.Sprintf("%s.max_requests must not be negative", name))
	}
	if p.MaxRequests == 0 {
		return ratelimit.TierConfig{}, nil
	}
	window, err := time.ParseDuration(p.Window)
	if err != nil || window <= 0 {
		return ratelimit.TierConfig{}, errors.InvalidParam(fmt.Sprintf("%s.window must be a positive duration", name))
	}
	return ratelimit.TierConfig{MaxRequests: p.MaxRequests, Window: window}, nil
}

func (h *AdminHandler) getRateLimitConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := h.limiter.ConfigSnapshot()
	respond.JSON(w, http.StatusOK, rateLimitPayload{
		IP:       tierToPayload(cfg.IP),
		User:     tierToPayload(cfg.User),
		Endpoint: tierToPayload(cfg.Endpoint),
	})
}

func (h *AdminHandler) updateRateLimitConfig(w http.ResponseWriter, r *http.Request) {
	var payload rateLimitPayload
	if err := decodeJSON(r, &payload); err != nil {
		respond.Error(w, err)
		return
	}

	var cfg ratelimit.Config
	var err error
	if cfg.IP, err = payload.IP.toConfig("ip"); err != nil {
		respond.Error(w, err)
		return
	}
	if cfg.User, err = payload.User.toConfig("user"); err != nil {
		respond.Error(w, err)
		return
	}
	if cfg.Endpoint, err = payload.Endpoint.toConfig("endpoint"); err != nil {
		respond.Error(w, err)
		return
	}

	h.limiter.UpdateConfig(cfg)
	respond.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *AdminHandler) recentEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		respond.Error(w, errors.NotFound("event archive is not configured"))
		return
	}

	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respond.Error(w, errors.InvalidParam("limit must be a positive integer"))
			return
		}
		limit = n
	}

	events, err := h.events.RecentEvents(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to read event archive", logging.Err(err))
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"count": len(events), "events": events})
}
