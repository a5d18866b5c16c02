package memory

import (
	"context"
	"time"

	"camguard.dev/internal/tenancy"
)

func (s *Store) FindActiveDomainByHost(_ context.Context, host string) (tenancy.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.domains {
		if d.IsActive && (d.Domain == host || d.Subdomain == host) {
			return d, nil
		}
	}
	return tenancy.Domain{}, tenancy.ErrNotFound
}

func (s *Store) FindBranding(_ context.Context, tenantID string) (tenancy.Branding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.branding[tenantID]
	if !ok {
		return tenancy.Branding{}, tenancy.ErrNotFound
	}
	return b, nil
}

func (s *Store) ListDomains(_ context.Context, tenantID string) ([]tenancy.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []tenancy.Domain
	for _, d := range s.domains {
		if d.TenantID == tenantID {
			out = append(out, d)
		}
	}
	sortByCreatedDesc(out, func(d tenancy.Domain) time.Time { return d.CreatedAt })
	return out, nil
}

func (s *Store) AddDomain(_ context.Context, d tenancy.Domain) (tenancy.Domain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[d.TenantID]; !ok {
		return tenancy.Domain{}, tenancy.ErrNotFound
	}
	d.IsPrimary = true
	for _, existing := range s.domains {
		if (d.Domain != "" && existing.Domain == d.Domain) || (d.Subdomain != "" && existing.Subdomain == d.Subdomain) {
			return tenancy.Domain{}, tenancy.ErrConflict
		}
		if existing.TenantID == d.TenantID {
			d.IsPrimary = false
		}
	}
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	s.domains[d.ID] = d
	return d, nil
}

func (s *Store) SetPrimaryDomain(_ context.Context, tenantID, domainID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.domains[domainID]
	if !ok || target.TenantID != tenantID {
		return tenancy.ErrNotFound
	}
	for id, d := range s.domains {
		if d.TenantID == tenantID {
			d.IsPrimary = id == domainID
			s.domains[id] = d
		}
	}
	return nil
}

func (s *Store) SetDomainActive(_ context.Context, tenantID, domainID string, active bool) (tenancy.Domain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.domains[domainID]
	if !ok || d.TenantID != tenantID {
		return tenancy.Domain{}, tenancy.ErrNotFound
	}
	d.IsActive = active
	d.UpdatedAt = time.Now().UTC()
	s.domains[domainID] = d
	return d, nil
}

func (s *Store) UpsertBranding(_ context.Context, b tenancy.Branding) (tenancy.Branding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[b.TenantID]; !ok {
		return tenancy.Branding{}, tenancy.ErrNotFound
	}
	s.branding[b.TenantID] = b
	return b, nil
}
