package tenancy

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"camguard.dev/internal/audit"
	"camguard.dev/internal/ids"
)

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

const maxCustomCSS = 64 << 10

// Manager administers the domains and branding of a tenant. Callers pass a
// tenant they have already authorised.
type Manager struct {
	store    Store
	resolver *Resolver
	audit    *audit.Recorder
	now      func() time.Time
}

// NewManager builds a Manager. resolver and rec may be nil.
func NewManager(store Store, resolver *Resolver, rec *audit.Recorder) *Manager {
	return &Manager{store: store, resolver: resolver, audit: rec, now: time.Now}
}

// ListDomains returns the tenant's domains.
func (m *Manager) ListDomains(ctx context.Context, tenantID string) ([]Domain, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrInvalidInput)
	}
	domains, err := m.store.ListDomains(ctx, tenantID)
	if err != nil {
		return nil, storeErr("list domains", err)
	}
	if domains == nil {
		domains = []Domain{}
	}
	return domains, nil
}

// AddDomain registers a hostname for the tenant. The first domain of a tenant
// becomes its primary.
func (m *Manager) AddDomain(ctx context.Context, tenantID string, in DomainInput) (Domain, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return Domain{}, fmt.Errorf("%w: tenant id is required", ErrInvalidInput)
	}
	d := Domain{
		ID:         ids.New(),
		TenantID:   tenantID,
		Domain:     NormalizeHost(in.Domain),
		Subdomain:  NormalizeHost(in.Subdomain),
		SSLEnabled: in.SSLEnabled,
		IsActive:   true,
	}
	if d.Domain == "" && d.Subdomain == "" {
		return Domain{}, fmt.Errorf("%w: domain or subdomain is required", ErrInvalidInput)
	}
	for _, h := range []string{d.Domain, d.Subdomain} {
		if h == "" {
			continue
		}
		if err := validateHostname(h); err != nil {
			return Domain{}, err
		}
	}

	created, err := m.store.AddDomain(ctx, d)
	if err != nil {
		return Domain{}, storeErr("add domain", err)
	}
	m.resolver.forget(ctx, created.Domain, created.Subdomain)
	m.record(ctx, "ADD_DOMAIN", tenantID, created.ID, map[string]any{"host": created.Host(), "is_primary": created.IsPrimary})
	return created, nil
}

// SetPrimaryDomain makes domainID the tenant's only primary domain.
func (m *Manager) SetPrimaryDomain(ctx context.Context, tenantID, domainID string) error {
	tenantID, domainID = strings.TrimSpace(tenantID), strings.TrimSpace(domainID)
	if tenantID == "" || domainID == "" {
		return fmt.Errorf("%w: tenant id and domain id are required", ErrInvalidInput)
	}
	if err := m.store.SetPrimaryDomain(ctx, tenantID, domainID); err != nil {
		return storeErr("set primary domain", err)
	}
	m.forgetTenant(ctx, tenantID)
	m.record(ctx, "SET_PRIMARY_DOMAIN", tenantID, domainID, nil)
	return nil
}

// SetDomainActive enables or disables a domain.
func (m *Manager) SetDomainActive(ctx context.Context, tenantID, domainID string, active bool) (Domain, error) {
	tenantID, domainID = strings.TrimSpace(tenantID), strings.TrimSpace(domainID)
	if tenantID == "" || domainID == "" {
		return Domain{}, fmt.Errorf("%w: tenant id and domain id are required", ErrInvalidInput)
	}
	d, err := m.store.SetDomainActive(ctx, tenantID, domainID, active)
	if err != nil {
		return Domain{}, storeErr("set domain active", err)
	}
	m.resolver.forget(ctx, d.Domain, d.Subdomain)
	m.record(ctx, "SET_DOMAIN_ACTIVE", tenantID, domainID, map[string]any{"is_active": active})
	return d, nil
}

// TenantURL returns the https URL of the tenant's primary active domain, or
// "" when it has none.
func (m *Manager) TenantURL(ctx context.Context, tenantID string) (string, error) {
	domains, err := m.ListDomains(ctx, tenantID)
	if err != nil {
		return "", err
	}
	for _, d := range domains {
		if d.IsPrimary && d.IsActive && d.Host() != "" {
			return "https://" + d.Host(), nil
		}
	}
	return "", nil
}

// Branding returns the tenant's branding, or nil when none was saved.
func (m *Manager) Branding(ctx context.Context, tenantID string) (*Branding, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrInvalidInput)
	}
	b, err := m.store.FindBranding(ctx, tenantID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("find branding", err)
	}
	return &b, nil
}

// UpdateBranding creates or replaces the tenant's branding.
func (m *Manager) UpdateBranding(ctx context.Context, tenantID string, b Branding) (Branding, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return Branding{}, fmt.Errorf("%w: tenant id is required", ErrInvalidInput)
	}
	b.TenantID = tenantID
	if err := normalizeBranding(&b); err != nil {
		return Branding{}, err
	}
	b.UpdatedAt = m.now().UTC()

	saved, err := m.store.UpsertBranding(ctx, b)
	if err != nil {
		return Branding{}, storeErr("upsert branding", err)
	}
	m.forgetTenant(ctx, tenantID)
	m.record(ctx, "UPDATE_BRANDING", tenantID, tenantID, nil)
	return saved, nil
}

func normalizeBranding(b *Branding) error {
	for _, c := range []*string{&b.PrimaryColor, &b.SecondaryColor, &b.AccentColor} {
		*c = strings.TrimSpace(*c)
		if *c != "" && !hexColor.MatchString(*c) {
			return fmt.Errorf("%w: colour %q is not a hex value", ErrInvalidInput, *c)
		}
	}
	for _, u := range []*string{&b.LogoURL, &b.FaviconURL} {
		*u = strings.TrimSpace(*u)
		if *u == "" {
			continue
		}
		parsed, err := url.Parse(*u)
		if err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") || parsed.Host == "" {
			return fmt.Errorf("%w: %q is not an http(s) URL", ErrInvalidInput, *u)
		}
	}
	b.CompanyName = strings.TrimSpace(b.CompanyName)
	b.EmailFromName = strings.TrimSpace(b.EmailFromName)
	if len(b.CustomCSS) > maxCustomCSS {
		return fmt.Errorf("%w: custom css too large", ErrInvalidInput)
	}
	return nil
}

// CachedHosts returns the hosts of tenantID whose detections may be cached.
// It is nil when detection caching is off or the lookup fails.
func (m *Manager) CachedHosts(ctx context.Context, tenantID string) []string {
	if m.resolver == nil || m.resolver.cache == nil {
		return nil
	}
	domains, err := m.store.ListDomains(ctx, tenantID)
	if err != nil {
		return nil
	}
	hosts := make([]string, 0, 2*len(domains))
	for _, d := range domains {
		hosts = append(hosts, d.Domain, d.Subdomain)
	}
	return hosts
}

// Forget drops cached detections for hosts.
func (m *Manager) Forget(ctx context.Context, hosts ...string) {
	m.resolver.forget(ctx, hosts...)
}

func (m *Manager) forgetTenant(ctx context.Context, tenantID string) {
	m.Forget(ctx, m.CachedHosts(ctx, tenantID)...)
}

// storeErr passes domain errors through and marks everything else retryable.
func storeErr(op string, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrInvalidInput) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

func (m *Manager) record(ctx context.Context, action, tenantID, resourceID string, meta map[string]any) {
	if m.audit == nil {
		return
	}
	_ = m.audit.Record(ctx, audit.Entry{
		Action:       action,
		TenantID:     tenantID,
		ResourceType: "tenant_domain",
		ResourceID:   resourceID,
		Metadata:     meta,
	})
}
