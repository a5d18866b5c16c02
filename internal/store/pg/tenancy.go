package pg

import (
	"context"
	"database/sql"
	"errors"

	"camguard.dev/internal/tenancy"
)

const domainColumns = `id, tenant_id, domain, subdomain, is_primary, ssl_enabled, is_active, created_at, updated_at`

func scanDomain(row rowScanner) (tenancy.Domain, error) {
	var (
		d                 tenancy.Domain
		domain, subdomain sql.NullString
	)
	if err := row.Scan(&d.ID, &d.TenantID, &domain, &subdomain, &d.IsPrimary, &d.SSLEnabled, &d.IsActive,
		&d.CreatedAt, &d.UpdatedAt); err != nil {
		return tenancy.Domain{}, err
	}
	d.Domain, d.Subdomain = domain.String, subdomain.String
	return d, nil
}

func (s *Store) FindActiveDomainByHost(ctx context.Context, host string) (tenancy.Domain, error) {
	if s.db == nil {
		return tenancy.Domain{}, errNoDB
	}
	d, err := scanDomain(s.db.QueryRowContext(ctx, `
		select `+domainColumns+`
		from tenant_domains
		where is_active and (domain = $1 or subdomain = $1)
		order by is_primary desc
		limit 1
	`, host))
	if err != nil {
		return tenancy.Domain{}, mapErr(err, tenancy.ErrNotFound, tenancy.ErrConflict)
	}
	return d, nil
}

func (s *Store) ListDomains(ctx context.Context, tenantID string) ([]tenancy.Domain, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+domainColumns+`
		from tenant_domains
		where tenant_id = $1
		order by created_at desc
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []tenancy.Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// AddDomain marks the row primary when the tenant has no domain yet. The
// partial unique index on primary rows rejects a concurrent second primary.
func (s *Store) AddDomain(ctx context.Context, d tenancy.Domain) (tenancy.Domain, error) {
	if s.db == nil {
		return tenancy.Domain{}, errNoDB
	}
	out, err := scanDomain(s.db.QueryRowContext(ctx, `
		insert into tenant_domains (id, tenant_id, domain, subdomain, is_primary, ssl_enabled, is_active)
		values ($1, $2, $3, $4, not exists (select 1 from tenant_domains where tenant_id = $2), $5, $6)
		returning `+domainColumns,
		d.ID, d.TenantID, nullIfEmpty(d.Domain), nullIfEmpty(d.Subdomain), d.SSLEnabled, d.IsActive))
	if err != nil {
		return tenancy.Domain{}, mapErr(err, tenancy.ErrNotFound, tenancy.ErrConflict)
	}
	return out, nil
}

// SetPrimaryDomain flips the primary flag for the whole tenant in one
// transaction: it locks the target row, clears the other primaries and sets
// the target. Readers never observe zero or two primaries, and a failure in
// either update rolls back both.
func (s *Store) SetPrimaryDomain(ctx context.Context, tenantID, domainID string) error {
	if s.db == nil {
		return errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx, `
		select 1 from tenant_domains where tenant_id = $1 and id = $2 for update
	`, tenantID, domainID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return tenancy.ErrNotFound
	}
	if err != nil {
		return err
	}
	// Clear first: the partial unique index is checked per row.
	if _, err := tx.ExecContext(ctx, `
		update tenant_domains set is_primary = false, updated_at = now()
		where tenant_id = $1 and is_primary and id <> $2
	`, tenantID, domainID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		update tenant_domains set is_primary = true, updated_at = now()
		where tenant_id = $1 and id = $2
	`, tenantID, domainID); err != nil {
		return mapErr(err, tenancy.ErrNotFound, tenancy.ErrConflict)
	}
	return tx.Commit()
}

func (s *Store) SetDomainActive(ctx context.Context, tenantID, domainID string, active bool) (tenancy.Domain, error) {
	if s.db == nil {
		return tenancy.Domain{}, errNoDB
	}
	d, err := scanDomain(s.db.QueryRowContext(ctx, `
		update tenant_domains set is_active = $3, updated_at = now()
		where tenant_id = $1 and id = $2
		returning `+domainColumns,
		tenantID, domainID, active))
	if err != nil {
		return tenancy.Domain{}, mapErr(err, tenancy.ErrNotFound, tenancy.ErrConflict)
	}
	return d, nil
}

const brandingColumns = `tenant_id, logo_url, primary_color, secondary_color, accent_color, company_name, email_from_name, favicon_url, custom_css, updated_at`

func scanBranding(row rowScanner) (tenancy.Branding, error) {
	var (
		b    tenancy.Branding
		cols [8]sql.NullString
	)
	if err := row.Scan(&b.TenantID, &cols[0], &cols[1], &cols[2], &cols[3], &cols[4], &cols[5], &cols[6], &cols[7], &b.UpdatedAt); err != nil {
		return tenancy.Branding{}, err
	}
	b.LogoURL = cols[0].String
	b.PrimaryColor = cols[1].String
	b.SecondaryColor = cols[2].String
	b.AccentColor = cols[3].String
	b.CompanyName = cols[4].String
	b.EmailFromName = cols[5].String
	b.FaviconURL = cols[6].String
	b.CustomCSS = cols[7].String
	return b, nil
}

func (s *Store) FindBranding(ctx context.Context, tenantID string) (tenancy.Branding, error) {
	if s.db == nil {
		return tenancy.Branding{}, errNoDB
	}
	b, err := scanBranding(s.db.QueryRowContext(ctx, `select `+brandingColumns+` from tenant_branding where tenant_id = $1`, tenantID))
	if err != nil {
		return tenancy.Branding{}, mapErr(err, tenancy.ErrNotFound, tenancy.ErrConflict)
	}
	return b, nil
}

func (s *Store) UpsertBranding(ctx context.Context, b tenancy.Branding) (tenancy.Branding, error) {
	if s.db == nil {
		return tenancy.Branding{}, errNoDB
	}
	out, err := scanBranding(s.db.QueryRowContext(ctx, `
		insert into tenant_branding (tenant_id, logo_url, primary_color, secondary_color, accent_color, company_name, email_from_name, favicon_url, custom_css, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		on conflict (tenant_id) do update set
			logo_url = excluded.logo_url,
			primary_color = excluded.primary_color,
			secondary_color = excluded.secondary_color,
			accent_color = excluded.accent_color,
			company_name = excluded.company_name,
			email_from_name = excluded.email_from_name,
			favicon_url = excluded.favicon_url,
			custom_css = excluded.custom_css,
			updated_at = excluded.updated_at
		returning `+brandingColumns,
		b.TenantID, nullIfEmpty(b.LogoURL), nullIfEmpty(b.PrimaryColor), nullIfEmpty(b.SecondaryColor),
		nullIfEmpty(b.AccentColor), nullIfEmpty(b.CompanyName), nullIfEmpty(b.EmailFromName),
		nullIfEmpty(b.FaviconURL), nullIfEmpty(b.CustomCSS), b.UpdatedAt))
	if err != nil {
		return tenancy.Branding{}, mapErr(err, tenancy.ErrNotFound, tenancy.ErrConflict)
	}
	return out, nil
}
