package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"camguard.dev/internal/auth"
	"camguard.dev/internal/monitor"
)

// ---- tenants ----

const tenantColumns = `id, name, email, phone, address, status, plan, created_at, updated_at`

func scanTenant(row rowScanner) (monitor.Tenant, error) {
	var (
		t                     monitor.Tenant
		email, phone, address sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Name, &email, &phone, &address, &t.Status, &t.Plan, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return monitor.Tenant{}, err
	}
	t.Email, t.Phone, t.Address = email.String, phone.String, address.String
	return t, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]monitor.Tenant, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `select `+tenantColumns+` from tenants order by created_at desc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []monitor.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (s *Store) GetTenant(ctx context.Context, id string) (monitor.Tenant, error) {
	if s.db == nil {
		return monitor.Tenant{}, errNoDB
	}
	t, err := scanTenant(s.db.QueryRowContext(ctx, `select `+tenantColumns+` from tenants where id = $1`, id))
	if err != nil {
		return monitor.Tenant{}, mapErr(err, monitor.ErrNotFound, monitor.ErrConflict)
	}
	return t, nil
}

func (s *Store) CreateTenant(ctx context.Context, t monitor.Tenant) (monitor.Tenant, error) {
	if s.db == nil {
		return monitor.Tenant{}, errNoDB
	}
	out, err := scanTenant(insertTenant(ctx, s.db, t))
	if err != nil {
		return monitor.Tenant{}, mapErr(err, monitor.ErrNotFound, monitor.ErrConflict)
	}
	return out, nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertTenant(ctx context.Context, db rowQuerier, t monitor.Tenant) *sql.Row {
	return db.QueryRowContext(ctx, `
		insert into tenants (id, name, email, phone, address, status, plan, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning `+tenantColumns,
		t.ID, t.Name, nullIfEmpty(t.Email), nullIfEmpty(t.Phone), nullIfEmpty(t.Address),
		t.Status, t.Plan, t.CreatedAt, t.UpdatedAt)
}

// UpdateTenant writes only the fields present in p.
func (s *Store) UpdateTenant(ctx context.Context, id string, p monitor.TenantPatch, at time.Time) (monitor.Tenant, error) {
	if s.db == nil {
		return monitor.Tenant{}, errNoDB
	}
	sets := []string{"updated_at = $2"}
	args := []any{id, at}
	add := func(column string, v *string, nullable bool) {
		if v == nil {
			return
		}
		if nullable {
			args = append(args, nullIfEmpty(*v))
		} else {
			args = append(args, *v)
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("name", p.Name, false)
	add("email", p.Email, true)
	add("phone", p.Phone, true)
	add("address", p.Address, true)
	add("plan", p.Plan, false)
	add("status", p.Status, false)

	query := `update tenants set ` + strings.Join(sets, ", ") + ` where id = $1 returning ` + tenantColumns
	t, err := scanTenant(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return monitor.Tenant{}, mapErr(err, monitor.ErrNotFound, monitor.ErrConflict)
	}
	return t, nil
}

// DeleteTenant relies on the schema's cascading foreign keys.
func (s *Store) DeleteTenant(ctx context.Context, id string) error {
	return s.execOne(ctx, monitor.ErrNotFound, `delete from tenants where id = $1`, id)
}

// ---- platform listings ----

func (s *Store) ListLicenses(ctx context.Context) ([]monitor.License, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, tenant_id, license_type, max_cameras, max_cloud_storage_gb, ai_features, expires_at, is_active, created_at
		from licenses
		order by created_at desc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types := pgtype.NewMap()
	var result []monitor.License
	for rows.Next() {
		var l monitor.License
		if err := rows.Scan(&l.ID, &l.TenantID, &l.LicenseType, &l.MaxCameras, &l.MaxCloudStorageGB,
			types.SQLScanner(&l.AIFeatures), &l.ExpiresAt, &l.IsActive, &l.CreatedAt); err != nil {
			return nil, err
		}
		if l.AIFeatures == nil {
			l.AIFeatures = []string{}
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func (s *Store) ListIPAuthorizations(ctx context.Context) ([]monitor.IPAuthorization, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, tenant_id, ip_address, domain, description, is_active, created_at
		from ip_authorizations
		order by created_at desc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []monitor.IPAuthorization
	for rows.Next() {
		var (
			ip                  monitor.IPAuthorization
			domain, description sql.NullString
		)
		if err := rows.Scan(&ip.ID, &ip.TenantID, &ip.IPAddress, &domain, &description, &ip.IsActive, &ip.CreatedAt); err != nil {
			return nil, err
		}
		ip.Domain, ip.Description = domain.String, description.String
		result = append(result, ip)
	}
	return result, rows.Err()
}

func (s *Store) ListActiveSessions(ctx context.Context) ([]auth.Session, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+sessionColumns+`
		from sessions
		where is_active
		order by last_activity desc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []auth.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sess)
	}
	return result, rows.Err()
}

// ---- clients ----

const clientColumns = `id, tenant_id, user_id, name, email, phone, type, address, plan, status, created_at, updated_at`

func scanClient(row rowScanner) (monitor.Client, error) {
	var (
		c                                   monitor.Client
		userID, email, phone, address, plan sql.NullString
	)
	if err := row.Scan(&c.ID, &c.TenantID, &userID, &c.Name, &email, &phone, &c.Type, &address, &plan,
		&c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return monitor.Client{}, err
	}
	c.UserID, c.Email, c.Phone = userID.String, email.String, phone.String
	c.Address, c.Plan = address.String, plan.String
	return c, nil
}

func (s *Store) ListClients(ctx context.Context, tenantID string) ([]monitor.Client, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+clientColumns+`
		from clients
		where tenant_id = $1
		order by created_at desc
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []monitor.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) FindClientByUser(ctx context.Context, tenantID, userID string) (monitor.Client, error) {
	if s.db == nil {
		return monitor.Client{}, errNoDB
	}
	c, err := scanClient(s.db.QueryRowContext(ctx, `
		select `+clientColumns+`
		from clients
		where tenant_id = $1 and user_id = $2
	`, tenantID, userID))
	if err != nil {
		return monitor.Client{}, mapErr(err, monitor.ErrNotFound, monitor.ErrConflict)
	}
	return c, nil
}

func (s *Store) DeleteClient(ctx context.Context, tenantID, clientID string) error {
	return s.execOne(ctx, monitor.ErrNotFound, `delete from clients where tenant_id = $1 and id = $2`, tenantID, clientID)
}

// ---- cameras ----

const cameraColumns = `id, tenant_id, client_id, name, location, rtsp_url, status, is_recording, created_at, updated_at`

func scanCamera(row rowScanner) (monitor.Camera, error) {
	var (
		c                 monitor.Camera
		location, rtspURL sql.NullString
	)
	if err := row.Scan(&c.ID, &c.TenantID, &c.ClientID, &c.Name, &location, &rtspURL, &c.Status,
		&c.IsRecording, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return monitor.Camera{}, err
	}
	c.Location, c.RTSPURL = location.String, rtspURL.String
	return c, nil
}

func (s *Store) GetCamera(ctx context.Context, tenantID, cameraID string) (monitor.Camera, error) {
	if s.db == nil {
		return monitor.Camera{}, errNoDB
	}
	c, err := scanCamera(s.db.QueryRowContext(ctx, `
		select `+cameraColumns+` from cameras where tenant_id = $1 and id = $2
	`, tenantID, cameraID))
	if err != nil {
		return monitor.Camera{}, mapErr(err, monitor.ErrNotFound, monitor.ErrConflict)
	}
	return c, nil
}

func (s *Store) ListCameras(ctx context.Context, f monitor.CameraFilter) ([]monitor.Camera, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	query := `select ` + cameraColumns + ` from cameras where tenant_id = $1`
	args := []any{f.TenantID}
	if f.ClientID != "" {
		query += ` and client_id = $2`
		args = append(args, f.ClientID)
	}
	query += ` order by created_at desc`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []monitor.Camera
	for rows.Next() {
		c, err := scanCamera(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// ---- alerts ----

const alertColumns = `id, tenant_id, client_id, camera_id, type, severity, message, metadata, is_acknowledged, acknowledged_by, acknowledged_at, created_at`

func scanAlert(row rowScanner) (monitor.Alert, error) {
	var (
		a       monitor.Alert
		meta    []byte
		ackBy   sql.NullString
		ackedAt sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.TenantID, &a.ClientID, &a.CameraID, &a.Type, &a.Severity, &a.Message,
		&meta, &a.IsAcknowledged, &ackBy, &ackedAt, &a.CreatedAt); err != nil {
		return monitor.Alert{}, err
	}
	if len(meta) > 0 && string(meta) != "{}" {
		a.Metadata = json.RawMessage(meta)
	}
	a.AcknowledgedBy = ackBy.String
	if ackedAt.Valid {
		at := ackedAt.Time
		a.AcknowledgedAt = &at
	}
	return a, nil
}

func (s *Store) ListAlerts(ctx context.Context, f monitor.AlertFilter) ([]monitor.Alert, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	query := `select ` + alertColumns + ` from alerts where tenant_id = $1`
	args := []any{f.TenantID}
	if f.ClientID != "" {
		args = append(args, f.ClientID)
		query += fmt.Sprintf(` and client_id = $%d`, len(args))
	}
	query += ` order by created_at desc`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` limit $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []monitor.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *Store) GetAlert(ctx context.Context, tenantID, alertID string) (monitor.Alert, error) {
	if s.db == nil {
		return monitor.Alert{}, errNoDB
	}
	a, err := scanAlert(s.db.QueryRowContext(ctx, `
		select `+alertColumns+` from alerts where tenant_id = $1 and id = $2
	`, tenantID, alertID))
	if err != nil {
		return monitor.Alert{}, mapErr(err, monitor.ErrNotFound, monitor.ErrConflict)
	}
	return a, nil
}

func (s *Store) InsertAlert(ctx context.Context, a monitor.Alert) (monitor.Alert, error) {
	if s.db == nil {
		return monitor.Alert{}, errNoDB
	}
	meta := []byte(a.Metadata)
	if len(meta) == 0 {
		meta = []byte("{}")
	}
	out, err := scanAlert(s.db.QueryRowContext(ctx, `
		insert into alerts (id, tenant_id, client_id, camera_id, type, severity, message, metadata, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning `+alertColumns,
		a.ID, a.TenantID, a.ClientID, a.CameraID, a.Type, a.Severity, a.Message, meta, a.CreatedAt))
	if err != nil {
		return monitor.Alert{}, mapErr(err, monitor.ErrNotFound, monitor.ErrConflict)
	}
	return out, nil
}

// AcknowledgeAlert sets the acknowledgement once. A second call returns the
// stored row with changed=false; the first acknowledger is kept.
func (s *Store) AcknowledgeAlert(ctx context.Context, tenantID, alertID, userID string, at time.Time) (monitor.Alert, bool, error) {
	if s.db == nil {
		return monitor.Alert{}, false, errNoDB
	}
	a, err := scanAlert(s.db.QueryRowContext(ctx, `
		update alerts
		set is_acknowledged = true, acknowledged_by = $3, acknowledged_at = $4
		where tenant_id = $1 and id = $2 and not is_acknowledged
		returning `+alertColumns,
		tenantID, alertID, nullIfEmpty(userID), at))
	if err == nil {
		return a, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return monitor.Alert{}, false, mapErr(err, monitor.ErrNotFound, monitor.ErrConflict)
	}
	// Either absent or already acknowledged.
	a, err = s.GetAlert(ctx, tenantID, alertID)
	if err != nil {
		return monitor.Alert{}, false, err
	}
	return a, false, nil
}

func (s *Store) TenantStats(ctx context.Context, tenantID string) (monitor.TenantStats, error) {
	if s.db == nil {
		return monitor.TenantStats{}, errNoDB
	}
	var st monitor.TenantStats
	err := s.db.QueryRowContext(ctx, `
		select tenant_id, active_clients, total_cameras, online_cameras, monthly_alerts, monthly_revenue::float8, last_updated
		from tenant_stats
		where tenant_id = $1
	`, tenantID).Scan(&st.TenantID, &st.ActiveClients, &st.TotalCameras, &st.OnlineCameras,
		&st.MonthlyAlerts, &st.MonthlyRevenue, &st.LastUpdated)
	if err != nil {
		return monitor.TenantStats{}, mapErr(err, monitor.ErrNotFound, monitor.ErrConflict)
	}
	return st, nil
}
