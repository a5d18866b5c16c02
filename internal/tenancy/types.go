package tenancy

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("tenancy: not found")
	ErrConflict     = errors.New("tenancy: conflict")
	ErrInvalidInput = errors.New("tenancy: invalid input")
	// ErrUnavailable wraps store failures; the request may be retried.
	ErrUnavailable = errors.New("tenancy: data temporarily unavailable")
)

// Domain is a hostname through which a tenant's white-labelled deployment is
// reached. Either Domain or Subdomain is set, possibly both.
type Domain struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	Domain     string    `json:"domain,omitempty"`
	Subdomain  string    `json:"subdomain,omitempty"`
	IsPrimary  bool      `json:"is_primary"`
	SSLEnabled bool      `json:"ssl_enabled"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Host is the hostname used to reach d, preferring the custom domain.
func (d Domain) Host() string {
	if d.Domain != "" {
		return d.Domain
	}
	return d.Subdomain
}

// Branding is the per-tenant look of the application.
type Branding struct {
	TenantID       string    `json:"tenant_id"`
	LogoURL        string    `json:"logo_url,omitempty"`
	PrimaryColor   string    `json:"primary_color,omitempty"`
	SecondaryColor string    `json:"secondary_color,omitempty"`
	AccentColor    string    `json:"accent_color,omitempty"`
	CompanyName    string    `json:"company_name,omitempty"`
	EmailFromName  string    `json:"email_from_name,omitempty"`
	FaviconURL     string    `json:"favicon_url,omitempty"`
	CustomCSS      string    `json:"custom_css,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Detection is the outcome of mapping a host to a tenant. The zero value means
// "no tenant, serve the platform defaults".
type Detection struct {
	TenantID string    `json:"tenant_id,omitempty"`
	Domain   *Domain   `json:"domain,omitempty"`
	Branding *Branding `json:"branding,omitempty"`
}

// Found reports whether a tenant was detected.
func (d Detection) Found() bool { return d.TenantID != "" }

// DomainInput is the payload for registering a domain.
type DomainInput struct {
	Domain     string `json:"domain"`
	Subdomain  string `json:"subdomain"`
	SSLEnabled bool   `json:"ssl_enabled"`
}

// Store persists domains and branding.
type Store interface {
	// FindActiveDomainByHost matches host against domain or subdomain of
	// active rows. No match is ErrNotFound.
	FindActiveDomainByHost(ctx context.Context, host string) (Domain, error)
	FindBranding(ctx context.Context, tenantID string) (Branding, error)
	ListDomains(ctx context.Context, tenantID string) ([]Domain, error)
	// AddDomain inserts d, marking it primary when the tenant has no other
	// domain.
	AddDomain(ctx context.Context, d Domain) (Domain, error)
	// SetPrimaryDomain makes domainID the only primary domain of tenantID in
	// one atomic step. An unknown domain is ErrNotFound and changes nothing.
	SetPrimaryDomain(ctx context.Context, tenantID, domainID string) error
	SetDomainActive(ctx context.Context, tenantID, domainID string, active bool) (Domain, error)
	UpsertBranding(ctx context.Context, b Branding) (Branding, error)
}

// DetectionCache memoises host lookups.
type DetectionCache interface {
	Get(ctx context.Context, host string) (Detection, bool, error)
	Set(ctx context.Context, host string, d Detection) error
	Delete(ctx context.Context, hosts ...string) error
}
