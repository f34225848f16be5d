// Package httpapi is the HTTP boundary: routing, request decoding, rate
// limit checks and the mapping from error class to status code.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"crmgate.io/internal/crm"
	"crmgate.io/internal/obs"
	"crmgate.io/internal/ratelimit"
	"crmgate.io/internal/session"
	"crmgate.io/internal/token"
	"crmgate.io/internal/user"
)

// ReadyProbe pings the database for the readiness endpoint.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Limits bundles the per-endpoint rate limiters.
type Limits struct {
	LoginIP      ratelimit.Limiter
	LoginUser    ratelimit.Limiter
	RefreshIP    ratelimit.Limiter
	ExchangeUser ratelimit.Limiter
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	sessions *session.Service
	crm      *crm.Service
	users    *user.Service
	codec    *token.Codec
	limits   Limits

	cookieSecure bool
}

// Option customizes API construction.
type Option func(*API)

// WithInsecureCookies drops the Secure cookie attribute for local development.
func WithInsecureCookies() Option {
	return func(a *API) { a.cookieSecure = false }
}

func New(rp ReadyProbe, sessions *session.Service, crmSvc *crm.Service, users *user.Service,
	codec *token.Codec, limits Limits, version string, opts ...Option) *API {
	a := &API{
		mux:          http.NewServeMux(),
		readyProbe:   rp,
		version:      version,
		sessions:     sessions,
		crm:          crmSvc,
		users:        users,
		codec:        codec,
		limits:       limits,
		cookieSecure: true,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/web/login", a.handleWebLogin)
	a.mux.HandleFunc("/v1/web/refresh", a.handleWebRefresh)
	a.mux.HandleFunc("/v1/web/logout", a.handleWebLogout)

	a.mux.HandleFunc("/v1/crm/token", a.handleCRMExchange)
	a.mux.HandleFunc("/v1/crm/refresh", a.handleCRMRefresh)

	a.mux.HandleFunc("/v1/users", a.handleUsers)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = SecurityHeaders(h)
	h = Logging(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "crmgate-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
