package provision

import (
	"context"
	"errors"
	"time"

	"camguard.dev/internal/access"
	"camguard.dev/internal/audit"
	"camguard.dev/internal/auth"
	"camguard.dev/internal/monitor"
)

var (
	ErrForbidden    = errors.New("provision: caller may not create this user")
	ErrInvalidInput = errors.New("provision: invalid input")
	ErrConflict     = errors.New("provision: user already exists")
	ErrNotFound     = errors.New("provision: tenant not found")
	ErrUnavailable  = errors.New("provision: store unavailable")
)

// ClientData describes the client row created alongside a client_user.
type ClientData struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// Request asks for a new user.
type Request struct {
	Email      string               `json:"email"`
	FullName   string               `json:"fullName"`
	Role       string               `json:"role"`
	Password   string               `json:"password,omitempty"`
	TenantID   string               `json:"tenantId,omitempty"`
	Tenant     *monitor.TenantInput `json:"tenant,omitempty"`
	ClientData *ClientData          `json:"clientData,omitempty"`
}

// CreatedUser is the public view of a provisioned user.
type CreatedUser struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	FullName  string      `json:"full_name"`
	Role      access.Role `json:"role"`
	TenantID  string      `json:"tenant_id,omitempty"`
	ClientID  string      `json:"client_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Response is returned on success. Password is the initial password, shown
// once.
type Response struct {
	Success  bool        `json:"success"`
	User     CreatedUser `json:"user"`
	Password string      `json:"password"`
	Message  string      `json:"message"`
}

// Profile mirrors the user for display purposes.
type Profile struct {
	ID       string
	Email    string
	FullName string
	Role     access.Role
	TenantID string
}

// Plan is every row a provisioning writes. Stores apply it atomically.
type Plan struct {
	User       auth.User
	NewTenant  *monitor.Tenant
	Assignment access.Assignment
	Profile    Profile
	Client     *monitor.Client
	Audit      audit.Entry
}

// Store applies a plan in one transaction: either every row is written or
// none is. A duplicate email is ErrConflict, an unknown tenant ErrNotFound.
type Store interface {
	Provision(ctx context.Context, p Plan) error
}

// Publisher announces provisioned users.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}
