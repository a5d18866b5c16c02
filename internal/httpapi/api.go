package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"camguard.dev/internal/access"
	"camguard.dev/internal/auth"
	"camguard.dev/internal/monitor"
	"camguard.dev/internal/obs"
	"camguard.dev/internal/provision"
	"camguard.dev/internal/stream"
	"camguard.dev/internal/tenancy"
)

// Check is one readiness dependency.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// ReadyProbe runs every check; the first failure makes the service not ready.
type ReadyProbe struct {
	Checks []Check
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	for _, c := range rp.Checks {
		if c.Fn == nil {
			continue
		}
		if err := c.Fn(ctx); err != nil {
			return errors.New(c.Name + ": " + err.Error())
		}
	}
	return nil
}

// Deps are the services the HTTP layer exposes.
type Deps struct {
	Sessions  *auth.Sessions
	Roles     *access.Resolver
	Guard     access.Guard
	Tenants   *tenancy.Resolver
	Domains   *tenancy.Manager
	Monitor   *monitor.Service
	Provision *provision.Service
	Stream    *stream.Stream
	Ready     ReadyProbe
	Version   string
}

// Option tunes the middleware chain.
type Option func(*API)

func WithRateLimit(burst int, perSecond float64) Option {
	return func(a *API) { a.rateBurst, a.ratePerSec = burst, perSecond }
}

func WithCORSOrigins(origins ...string) Option {
	return func(a *API) { a.corsOrigins = origins }
}

func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBody = n
		}
	}
}

// WithClock overrides the time reported by /v1/info.
func WithClock(fn func() time.Time) Option {
	return func(a *API) {
		if fn != nil {
			a.now = fn
		}
	}
}

// API is the HTTP layer.
type API struct {
	mux  *http.ServeMux
	deps Deps

	limiter     *RateLimiter
	rateBurst   int
	ratePerSec  float64
	corsOrigins []string
	maxBody     int64
	now         func() time.Time
}

func New(deps Deps, opts ...Option) *API {
	if deps.Guard == (access.Guard{}) {
		deps.Guard = access.NewGuard()
	}
	a := &API{
		mux:        http.NewServeMux(),
		deps:       deps,
		rateBurst:  50,
		ratePerSec: 25,
		maxBody:    1 << 20,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.limiter = NewRateLimiter(a.rateBurst, a.ratePerSec)
	a.routes()
	return a
}

func (a *API) routes() {
	// health/ready/info
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	// tenant detection and session
	a.mux.HandleFunc("GET /v1/tenant", a.handleTenant)
	a.mux.HandleFunc("POST /v1/auth/sign-in", a.handleSignIn)
	a.mux.Handle("POST /v1/auth/sign-out", a.withAuth(http.HandlerFunc(a.handleSignOut)))
	a.mux.Handle("GET /v1/auth/session", a.withAuth(http.HandlerFunc(a.handleSession)))
	a.mux.HandleFunc("GET /v1/navigation", a.handleNavigation)

	// super admin
	admin := func(h http.HandlerFunc) http.Handler { return a.withAuth(a.requireRole(access.RoleSuperAdmin, h)) }
	a.mux.Handle("GET /v1/admin/tenants", admin(a.listTenants))
	a.mux.Handle("POST /v1/admin/tenants", admin(a.createTenant))
	a.mux.Handle("GET /v1/admin/tenants/{id}", admin(a.getTenant))
	a.mux.Handle("PATCH /v1/admin/tenants/{id}", admin(a.updateTenant))
	a.mux.Handle("DELETE /v1/admin/tenants/{id}", admin(a.deleteTenant))
	a.mux.Handle("GET /v1/admin/overview", admin(a.platformOverview))
	a.mux.Handle("GET /v1/admin/licenses", admin(a.listLicenses))
	a.mux.Handle("GET /v1/admin/ip-authorizations", admin(a.listIPAuthorizations))
	a.mux.Handle("GET /v1/admin/sessions", admin(a.listSessions))

	// partner admin
	partner := func(h http.HandlerFunc) http.Handler { return a.withAuth(a.requireRole(access.RolePartnerAdmin, h)) }
	a.mux.Handle("GET /v1/partner/overview", partner(a.partnerOverview))
	a.mux.Handle("GET /v1/partner/clients", partner(a.partnerClients))
	a.mux.Handle("DELETE /v1/partner/clients/{id}", partner(a.deletePartnerClient))
	a.mux.Handle("GET /v1/partner/cameras", partner(a.partnerCameras))
	a.mux.Handle("GET /v1/partner/alerts", partner(a.partnerAlerts))
	a.mux.Handle("POST /v1/partner/alerts/{id}/ack", partner(a.ackPartnerAlert))
	a.mux.Handle("GET /v1/partner/alerts/stream", partner(a.partnerAlertStream))
	a.mux.Handle("GET /v1/partner/stats", partner(a.partnerStats))
	a.mux.Handle("GET /v1/partner/domains", partner(a.listDomains))
	a.mux.Handle("POST /v1/partner/domains", partner(a.addDomain))
	a.mux.Handle("POST /v1/partner/domains/{id}/primary", partner(a.setPrimaryDomain))
	a.mux.Handle("POST /v1/partner/domains/{id}/active", partner(a.setDomainActive))
	a.mux.Handle("GET /v1/partner/branding", partner(a.getBranding))
	a.mux.Handle("PUT /v1/partner/branding", partner(a.putBranding))

	// client user
	client := func(h http.HandlerFunc) http.Handler { return a.withAuth(a.requireRole(access.RoleClientUser, h)) }
	a.mux.Handle("GET /v1/client/overview", client(a.clientOverview))
	a.mux.Handle("GET /v1/client/cameras", client(a.clientCameras))
	a.mux.Handle("GET /v1/client/alerts", client(a.clientAlerts))
	a.mux.Handle("POST /v1/client/alerts/{id}/ack", client(a.ackClientAlert))
	a.mux.Handle("GET /v1/client/alerts/stream", client(a.clientAlertStream))

	// provisioning
	a.mux.Handle("POST /v1/functions/create-user", a.withAuth(http.HandlerFunc(a.handleCreateUser)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
}

// Handler returns the mux wrapped in the middleware chain, outermost first:
// request id, logging, metrics, security headers, CORS, rate limit, body cap.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, a.maxBody)
	h = a.limiter.Middleware(h)
	h = CORS(h, a.corsOrigins)
	h = SecurityHeaders(h)
	h = obs.Instrument(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

// Limiter exposes the rate limiter so the caller can schedule sweeps.
func (a *API) Limiter() *RateLimiter { return a.limiter }

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "camguard-api",
		"version": a.deps.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.deps.Ready.Check(ctx); err != nil {
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

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "camguard-api",
		"time":    a.now().UTC().Format(time.RFC3339),
		"version": a.deps.Version,
	})
}
