package access

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role is one of the three application roles.
type Role string

const (
	RoleSuperAdmin   Role = "super_admin"
	RolePartnerAdmin Role = "partner_admin"
	RoleClientUser   Role = "client_user"
)

var (
	ErrInvalidRole     = errors.New("access: invalid role")
	ErrInvalidScope    = errors.New("access: invalid role scope")
	ErrNoTenant        = errors.New("access: no tenant assigned")
	ErrAmbiguousTenant = errors.New("access: tenant selection required")
	ErrTenantForbidden = errors.New("access: tenant not assigned to caller")
)

// ParseRole normalises and validates a role name.
func ParseRole(raw string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
	}
	return r, nil
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RolePartnerAdmin, RoleClientUser:
		return true
	}
	return false
}

// TenantScoped reports whether assignments of r must name a tenant.
func (r Role) TenantScoped() bool {
	return r == RolePartnerAdmin || r == RoleClientUser
}

// Assignment binds a user to a role, optionally inside a tenant.
// An empty TenantID means platform-wide.
type Assignment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	TenantID  string    `json:"tenant_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate enforces the scope rule: super_admin is tenant-less, every other role
// carries a tenant.
func (a Assignment) Validate() error {
	if !a.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, a.Role)
	}
	if a.Role == RoleSuperAdmin && a.TenantID != "" {
		return fmt.Errorf("%w: super_admin cannot be bound to a tenant", ErrInvalidScope)
	}
	if a.Role.TenantScoped() && a.TenantID == "" {
		return fmt.Errorf("%w: %s requires a tenant", ErrInvalidScope, a.Role)
	}
	return nil
}

// Assignments is the full set of role bindings of one user, in store order.
type Assignments []Assignment

// HasRole reports whether any assignment grants role. super_admin matches
// regardless of tenantID; for other roles an empty tenantID matches any tenant.
func (as Assignments) HasRole(role Role, tenantID string) bool {
	for _, a := range as {
		if a.Role != role {
			continue
		}
		if role == RoleSuperAdmin || tenantID == "" || a.TenantID == tenantID {
			return true
		}
	}
	return false
}

// EffectiveTenant returns the tenant of the first partner_admin or client_user
// assignment, or "" when there is none.
func (as Assignments) EffectiveTenant() string {
	for _, a := range as {
		if a.Role.TenantScoped() {
			return a.TenantID
		}
	}
	return ""
}

// PrimaryRole picks super_admin, then partner_admin, then client_user, falling
// back to the first assignment's role. ok is false only for an empty set.
func (as Assignments) PrimaryRole() (Role, bool) {
	if len(as) == 0 {
		return "", false
	}
	for _, want := range []Role{RoleSuperAdmin, RolePartnerAdmin, RoleClientUser} {
		for _, a := range as {
			if a.Role == want {
				return want, true
			}
		}
	}
	return as[0].Role, true
}

// Tenants lists every distinct tenant held through a tenant-scoped role, in
// first-seen order.
func (as Assignments) Tenants() []string {
	seen := make(map[string]struct{}, len(as))
	var out []string
	for _, a := range as {
		if !a.Role.TenantScoped() || a.TenantID == "" {
			continue
		}
		if _, ok := seen[a.TenantID]; ok {
			continue
		}
		seen[a.TenantID] = struct{}{}
		out = append(out, a.TenantID)
	}
	return out
}

// TenantsFor lists the tenants in which role is held.
func (as Assignments) TenantsFor(role Role) []string {
	var filtered Assignments
	for _, a := range as {
		if a.Role == role {
			filtered = append(filtered, a)
		}
	}
	return filtered.Tenants()
}

// SelectTenant picks the tenant to operate in for role. requested is only
// honoured when role is held in that tenant. With no request the caller must
// hold role in exactly one tenant.
func (as Assignments) SelectTenant(role Role, requested string) (string, error) {
	tenants := as.TenantsFor(role)
	requested = strings.TrimSpace(requested)
	if requested != "" {
		for _, t := range tenants {
			if t == requested {
				return t, nil
			}
		}
		return "", ErrTenantForbidden
	}
	switch len(tenants) {
	case 0:
		return "", ErrNoTenant
	case 1:
		return tenants[0], nil
	default:
		return "", ErrAmbiguousTenant
	}
}

// Caller is an authenticated user together with the role bindings resolved for
// the current request.
type Caller struct {
	UserID      string
	Email       string
	Assignments Assignments
}

// Is reports whether the caller holds role in any tenant.
func (c Caller) Is(role Role) bool {
	return c.Assignments.HasRole(role, "")
}
