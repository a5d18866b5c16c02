package pg

import (
	"context"
	"database/sql"

	"camguard.dev/internal/provision"
)

// Provision writes every row of p in one transaction. A duplicate email or
// tenant id is provision.ErrConflict; a missing tenant is provision.ErrNotFound.
func (s *Store) Provision(ctx context.Context, p provision.Plan) error {
	if s.db == nil {
		return errNoDB
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	fail := func(err error) error { return mapErr(err, provision.ErrNotFound, provision.ErrConflict) }

	if p.NewTenant != nil {
		if _, err := scanTenant(insertTenant(ctx, tx, *p.NewTenant)); err != nil {
			return fail(err)
		}
	}

	u := p.User
	if _, err := tx.ExecContext(ctx, `
		insert into users (id, email, full_name, password_hash, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.Email, u.FullName, u.PasswordHash, u.CreatedAt, u.UpdatedAt); err != nil {
		return fail(err)
	}

	a := p.Assignment
	if _, err := tx.ExecContext(ctx, `
		insert into user_roles (id, user_id, role, tenant_id, created_at)
		values ($1, $2, $3, $4, $5)
	`, a.ID, a.UserID, string(a.Role), nullIfEmpty(a.TenantID), a.CreatedAt); err != nil {
		return fail(err)
	}

	pr := p.Profile
	if _, err := tx.ExecContext(ctx, `
		insert into profiles (id, email, full_name, role, tenant_id, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, pr.ID, pr.Email, pr.FullName, string(pr.Role), nullIfEmpty(pr.TenantID), u.CreatedAt); err != nil {
		return fail(err)
	}

	if c := p.Client; c != nil {
		if _, err := tx.ExecContext(ctx, `
			insert into clients (id, tenant_id, user_id, name, email, phone, type, address, plan, status, created_at, updated_at)
			values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, c.ID, c.TenantID, nullIfEmpty(c.UserID), c.Name, nullIfEmpty(c.Email), nullIfEmpty(c.Phone), c.Type,
			nullIfEmpty(c.Address), nullIfEmpty(c.Plan), c.Status, c.CreatedAt, c.UpdatedAt); err != nil {
			return fail(err)
		}
	}

	if p.Audit.ID != "" {
		if err := insertAudit(ctx, tx, p.Audit); err != nil {
			return err
		}
	}
	return tx.Commit()
}
