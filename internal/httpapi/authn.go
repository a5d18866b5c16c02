package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"camguard.dev/internal/access"
	"camguard.dev/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

type callerKey struct{}

func contextWithCaller(ctx context.Context, c access.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

func callerFrom(ctx context.Context) (access.Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(access.Caller)
	return c, ok
}

// withAuth resolves the bearer token to a session and the session's user to
// its role assignments. Event streams may pass the token as access_token,
// since browsers cannot set headers on EventSource.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil && strings.HasSuffix(r.URL.Path, "/stream") {
			if q := strings.TrimSpace(r.URL.Query().Get("access_token")); q != "" {
				token, err = q, nil
			}
		}
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		caller, ident, err := a.authenticate(r.Context(), token)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		ctx := auth.ContextWithIdentity(r.Context(), ident)
		ctx = contextWithCaller(ctx, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) authenticate(ctx context.Context, token string) (access.Caller, auth.Identity, error) {
	if a.deps.Sessions == nil || a.deps.Roles == nil {
		return access.Caller{}, auth.Identity{}, errors.New("authentication is not configured")
	}
	ident, err := a.deps.Sessions.Authenticate(ctx, token)
	if err != nil {
		return access.Caller{}, auth.Identity{}, err
	}
	assignments, err := a.deps.Roles.Load(ctx, ident.UserID)
	if err != nil {
		return access.Caller{}, auth.Identity{}, err
	}
	return access.Caller{UserID: ident.UserID, Email: ident.Email, Assignments: assignments}, ident, nil
}

// requireRole rejects callers without role in any tenant. Tenant selection
// happens later, in the services.
func (a *API) requireRole(role access.Role, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := callerFrom(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		if !c.Is(role) {
			writeError(w, r, http.StatusForbidden, string(role)+" role required")
			return
		}
		next(w, r)
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
