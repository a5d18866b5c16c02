package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"camguard.dev/internal/access"
	"camguard.dev/internal/audit"
	"camguard.dev/internal/auth"
)

func (s *Store) ListAssignments(ctx context.Context, userID string) ([]access.Assignment, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, role, tenant_id, created_at
		from user_roles
		where user_id = $1
		order by created_at, id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []access.Assignment
	for rows.Next() {
		var (
			a        access.Assignment
			role     string
			tenantID sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.UserID, &role, &tenantID, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Role = access.Role(role)
		a.TenantID = tenantID.String
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	var u auth.User
	err := s.db.QueryRowContext(ctx, `
		select id, email, full_name, password_hash, created_at, updated_at
		from users
		where email = $1
	`, strings.ToLower(strings.TrimSpace(email))).Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return auth.User{}, mapErr(err, auth.ErrNotFound, auth.ErrAlreadyExists)
	}
	return u, nil
}

const sessionColumns = `id, user_id, tenant_id, client_id, ip_address, device_info, is_active, last_activity, created_at, expires_at`

func scanSession(row rowScanner) (auth.Session, error) {
	var (
		sess                  auth.Session
		tenantID, clientID    sql.NullString
		ipAddress, deviceInfo sql.NullString
	)
	if err := row.Scan(&sess.ID, &sess.UserID, &tenantID, &clientID, &ipAddress, &deviceInfo,
		&sess.IsActive, &sess.LastActivity, &sess.CreatedAt, &sess.ExpiresAt); err != nil {
		return auth.Session{}, err
	}
	sess.TenantID = tenantID.String
	sess.ClientID = clientID.String
	sess.IPAddress = ipAddress.String
	sess.DeviceInfo = deviceInfo.String
	return sess, nil
}

func (s *Store) CreateSession(ctx context.Context, sess auth.Session) (auth.Session, error) {
	if s.db == nil {
		return auth.Session{}, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `
		insert into sessions (id, user_id, tenant_id, client_id, ip_address, device_info, is_active, last_activity, created_at, expires_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		returning `+sessionColumns,
		sess.ID, sess.UserID, nullIfEmpty(sess.TenantID), nullIfEmpty(sess.ClientID),
		nullIfEmpty(sess.IPAddress), nullIfEmpty(sess.DeviceInfo), sess.IsActive,
		sess.LastActivity, sess.CreatedAt, sess.ExpiresAt)
	out, err := scanSession(row)
	if err != nil {
		return auth.Session{}, mapErr(err, auth.ErrNotFound, auth.ErrAlreadyExists)
	}
	return out, nil
}

func (s *Store) FindSession(ctx context.Context, id string) (auth.Session, error) {
	if s.db == nil {
		return auth.Session{}, errNoDB
	}
	sess, err := scanSession(s.db.QueryRowContext(ctx, `select `+sessionColumns+` from sessions where id = $1`, id))
	if err != nil {
		return auth.Session{}, mapErr(err, auth.ErrNotFound, auth.ErrAlreadyExists)
	}
	return sess, nil
}

func (s *Store) DeactivateSession(ctx context.Context, id string) error {
	return s.execOne(ctx, auth.ErrNotFound, `update sessions set is_active = false where id = $1`, id)
}

func (s *Store) TouchSession(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx, auth.ErrNotFound, `update sessions set last_activity = $2 where id = $1`, id, at)
}

func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) error {
	if s.db == nil {
		return errNoDB
	}
	return insertAudit(ctx, s.db, e)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertAudit(ctx context.Context, db execer, e audit.Entry) error {
	meta := []byte("{}")
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		meta = raw
	}
	_, err := db.ExecContext(ctx, `
		insert into audit_logs (id, user_id, tenant_id, action, resource_type, resource_id, metadata, ip_address, user_agent, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, nullIfEmpty(e.UserID), nullIfEmpty(e.TenantID), e.Action, e.ResourceType,
		nullIfEmpty(e.ResourceID), meta, nullIfEmpty(e.IPAddress), nullIfEmpty(e.UserAgent), e.CreatedAt)
	return err
}
