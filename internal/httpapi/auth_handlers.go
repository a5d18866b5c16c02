package httpapi

import (
	"net/http"
	"strings"
	"time"

	"camguard.dev/internal/access"
	"camguard.dev/internal/audit"
	"camguard.dev/internal/auth"
)

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Next     string `json:"next,omitempty"`
}

type sessionView struct {
	UserID          string             `json:"user_id"`
	Email           string             `json:"email"`
	SessionID       string             `json:"session_id"`
	Assignments     access.Assignments `json:"assignments"`
	PrimaryRole     access.Role        `json:"primary_role,omitempty"`
	EffectiveTenant string             `json:"effective_tenant,omitempty"`
	Home            string             `json:"home"`
}

type signInResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	Redirect  string      `json:"redirect"`
	Session   sessionView `json:"session"`
}

func newSessionView(ident auth.Identity, as access.Assignments) sessionView {
	role, _ := as.PrimaryRole()
	if as == nil {
		as = access.Assignments{}
	}
	return sessionView{
		UserID:          ident.UserID,
		Email:           ident.Email,
		SessionID:       ident.SessionID,
		Assignments:     as,
		PrimaryRole:     role,
		EffectiveTenant: as.EffectiveTenant(),
		Home:            access.HomePath(role),
	}
}

func (a *API) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if a.deps.Sessions == nil || a.deps.Roles == nil {
		writeError(w, r, http.StatusServiceUnavailable, "authentication is not configured")
		return
	}
	var req signInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	session, token, err := a.deps.Sessions.SignIn(r.Context(), req.Email, req.Password, auth.ClientMeta{
		IPAddress:  clientIP(r),
		DeviceInfo: r.UserAgent(),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	assignments, err := a.deps.Roles.Refresh(r.Context(), session.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	ident := auth.Identity{UserID: session.UserID, Email: strings.ToLower(strings.TrimSpace(req.Email)), SessionID: session.ID}
	_ = audit.LogEvent(auth.ContextWithIdentity(r.Context(), ident), "auth.sign_in", map[string]any{
		"session_id": session.ID,
	})
	writeJSON(w, http.StatusOK, signInResponse{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
		Redirect:  a.deps.Guard.AfterLogin(req.Next, assignments),
		Session:   newSessionView(ident, assignments),
	})
}

func (a *API) handleSignOut(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())
	if err := a.deps.Sessions.SignOut(r.Context(), ident.SessionID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.sign_out", map[string]any{"session_id": ident.SessionID})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())
	c, _ := callerFrom(r.Context())
	writeJSON(w, http.StatusOK, newSessionView(ident, c.Assignments))
}

// handleNavigation evaluates the route guard for ?path=. The bearer token is
// optional: without one the visitor is unauthenticated.
func (a *API) handleNavigation(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" || !strings.HasPrefix(path, "/") {
		writeError(w, r, http.StatusBadRequest, "path must be an absolute application path")
		return
	}
	var snap access.Snapshot
	if token, err := extractBearerToken(r.Header.Get(authHeader)); err == nil {
		caller, _, err := a.authenticate(r.Context(), token)
		switch {
		case err == nil:
			snap = access.Snapshot{Authenticated: true, Assignments: caller.Assignments}
		case isAuthFailure(err):
			// Treated as signed out.
		default:
			writeServiceError(w, r, err)
			return
		}
	}
	decision := a.deps.Guard.Evaluate(access.Request{
		Path:           path,
		RequiredRole:   access.RequiredRoleFor(path),
		RequiredTenant: strings.TrimSpace(r.URL.Query().Get("tenant")),
		Session:        snap,
	})
	writeJSON(w, http.StatusOK, decision)
}

func isAuthFailure(err error) bool {
	code, _ := statusFor(err)
	return code == http.StatusUnauthorized
}
