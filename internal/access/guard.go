package access

import (
	"net/url"
	"strings"

	"camguard.dev/internal/obs"
)

// Outcome is the result of evaluating a navigation.
type Outcome string

const (
	OutcomePending         Outcome = "pending"
	OutcomeUnauthenticated Outcome = "unauthenticated"
	OutcomeForbidden       Outcome = "forbidden"
	OutcomeAllow           Outcome = "allow"
)

const (
	DefaultLoginPath        = "/login"
	DefaultUnauthorizedPath = "/unauthorized"
)

// Snapshot is what is known about the session when a navigation happens.
type Snapshot struct {
	Loading       bool
	Authenticated bool
	Assignments   Assignments
}

// Request describes one navigation to a guarded path.
type Request struct {
	Path           string
	RequiredRole   Role
	RequiredTenant string
	Session        Snapshot
}

// Decision tells the caller whether to render, wait or redirect.
type Decision struct {
	Outcome  Outcome `json:"outcome"`
	Location string  `json:"location,omitempty"`
}

// Guard gates navigation to the role-scoped areas of the application.
type Guard struct {
	LoginPath        string
	UnauthorizedPath string
}

// NewGuard returns a Guard using the default login and unauthorized paths.
func NewGuard() Guard {
	return Guard{LoginPath: DefaultLoginPath, UnauthorizedPath: DefaultUnauthorizedPath}
}

// Evaluate decides a single navigation. Nothing is cached between calls.
func (g Guard) Evaluate(req Request) Decision {
	d := g.evaluate(req)
	obs.ObserveGuardDecision(string(req.RequiredRole), string(d.Outcome))
	return d
}

func (g Guard) evaluate(req Request) Decision {
	if req.Session.Loading {
		return Decision{Outcome: OutcomePending}
	}
	if !req.Session.Authenticated {
		return Decision{Outcome: OutcomeUnauthenticated, Location: g.loginLocation(req.Path)}
	}
	if req.RequiredRole != "" && !req.Session.Assignments.HasRole(req.RequiredRole, req.RequiredTenant) {
		return Decision{Outcome: OutcomeForbidden, Location: g.unauthorizedPath()}
	}
	return Decision{Outcome: OutcomeAllow}
}

// Navigate evaluates path with the role its subtree requires.
func (g Guard) Navigate(path string, snap Snapshot) Decision {
	return g.Evaluate(Request{Path: path, RequiredRole: RequiredRoleFor(path), Session: snap})
}

// AfterLogin returns where to send a user who just signed in: the preserved
// path when it is a safe local path, otherwise the home of the primary role.
func (g Guard) AfterLogin(next string, as Assignments) string {
	if g.safeNext(next) {
		return next
	}
	role, _ := as.PrimaryRole()
	return HomePath(role)
}

// RequiredRoleFor maps a path to the role that owns its subtree, or "" for
// paths any visitor may open.
func RequiredRoleFor(path string) Role {
	switch {
	case underPrefix(path, "/admin"):
		return RoleSuperAdmin
	case underPrefix(path, "/partner"):
		return RolePartnerAdmin
	case underPrefix(path, "/client"):
		return RoleClientUser
	}
	return ""
}

// HomePath is the landing page of role.
func HomePath(role Role) string {
	switch role {
	case RoleSuperAdmin:
		return "/admin/dashboard"
	case RolePartnerAdmin:
		return "/partner/dashboard"
	case RoleClientUser:
		return "/client/dashboard"
	}
	return DefaultUnauthorizedPath
}

func (g Guard) loginLocation(path string) string {
	login := g.LoginPath
	if login == "" {
		login = DefaultLoginPath
	}
	if path == "" || !g.safeNext(path) {
		return login
	}
	return login + "?next=" + url.QueryEscape(path)
}

func (g Guard) unauthorizedPath() string {
	if g.UnauthorizedPath == "" {
		return DefaultUnauthorizedPath
	}
	return g.UnauthorizedPath
}

// safeNext accepts only same-origin absolute paths that do not loop back to
// the login page.
func (g Guard) safeNext(next string) bool {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return false
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return false
	}
	login := g.LoginPath
	if login == "" {
		login = DefaultLoginPath
	}
	return !underPrefix(u.Path, login)
}

func underPrefix(path, prefix string) bool {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
