package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"camguard.dev/internal/access"
	"camguard.dev/internal/audit"
	"camguard.dev/internal/auth"
	"camguard.dev/internal/ids"
	"camguard.dev/internal/obs"
)

const (
	defaultAlertLimit  = 50
	maxAlertLimit      = 200
	partnerRecentLimit = 10
	clientRecentLimit  = 5
)

// Service is the only path to monitoring data. Every method checks the
// caller's role and derives the tenant from the caller's own assignments.
type Service struct {
	store  Store
	events Publisher
	fanout AlertFanout
	audit  *audit.Recorder
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sends domain events through p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithFanout pushes alert changes to live subscribers.
func WithFanout(f AlertFanout) Option {
	return func(s *Service) { s.fanout = f }
}

// WithAudit records administrative changes.
func WithAudit(r *audit.Recorder) Option {
	return func(s *Service) { s.audit = r }
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService wires the data access layer over store.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("monitor: store is required")
	}
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ---- platform ----

func requireSuperAdmin(c access.Caller) error {
	if !c.Is(access.RoleSuperAdmin) {
		return fmt.Errorf("%w: super_admin required", ErrForbidden)
	}
	return nil
}

// ListTenants returns every tenant.
func (s *Service) ListTenants(ctx context.Context, c access.Caller) ([]Tenant, error) {
	if err := requireSuperAdmin(c); err != nil {
		return nil, err
	}
	out, err := s.store.ListTenants(ctx)
	return out, storeErr("list tenants", err)
}

// GetTenant returns one tenant.
func (s *Service) GetTenant(ctx context.Context, c access.Caller, id string) (Tenant, error) {
	if err := requireSuperAdmin(c); err != nil {
		return Tenant{}, err
	}
	t, err := s.store.GetTenant(ctx, strings.TrimSpace(id))
	return t, storeErr("get tenant", err)
}

// CreateTenant registers a new tenant.
func (s *Service) CreateTenant(ctx context.Context, c access.Caller, in TenantInput) (Tenant, error) {
	if err := requireSuperAdmin(c); err != nil {
		return Tenant{}, err
	}
	t, err := NewTenant(in, s.now().UTC())
	if err != nil {
		return Tenant{}, err
	}
	created, err := s.store.CreateTenant(ctx, t)
	if err != nil {
		return Tenant{}, storeErr("create tenant", err)
	}
	s.record(ctx, c, "CREATE_TENANT", "tenant", created.ID, created.ID, map[string]any{"name": created.Name})
	return created, nil
}

// NewTenant validates in and builds a tenant row with defaults applied.
func NewTenant(in TenantInput, now time.Time) (Tenant, error) {
	t := Tenant{
		ID:        ids.New(),
		Name:      strings.TrimSpace(in.Name),
		Email:     strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:     strings.TrimSpace(in.Phone),
		Address:   strings.TrimSpace(in.Address),
		Status:    strings.TrimSpace(in.Status),
		Plan:      strings.TrimSpace(in.Plan),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if t.Status == "" {
		t.Status = TenantActive
	}
	if t.Plan == "" {
		t.Plan = PlanBasic
	}
	if err := validateTenant(t.Name, t.Email, t.Status, t.Plan); err != nil {
		return Tenant{}, err
	}
	return t, nil
}

// UpdateTenant changes status, plan or contact data of a tenant.
func (s *Service) UpdateTenant(ctx context.Context, c access.Caller, id string, patch TenantPatch) (Tenant, error) {
	if err := requireSuperAdmin(c); err != nil {
		return Tenant{}, err
	}
	id = strings.TrimSpace(id)
	current, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return Tenant{}, storeErr("get tenant", err)
	}
	merged := current
	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	apply(&merged.Name, patch.Name)
	apply(&merged.Email, patch.Email)
	apply(&merged.Phone, patch.Phone)
	apply(&merged.Address, patch.Address)
	apply(&merged.Plan, patch.Plan)
	apply(&merged.Status, patch.Status)
	merged.Email = strings.ToLower(merged.Email)
	if err := validateTenant(merged.Name, merged.Email, merged.Status, merged.Plan); err != nil {
		return Tenant{}, err
	}
	clean := TenantPatch{
		Name: &merged.Name, Email: &merged.Email, Phone: &merged.Phone,
		Address: &merged.Address, Plan: &merged.Plan, Status: &merged.Status,
	}
	updated, err := s.store.UpdateTenant(ctx, id, clean, s.now().UTC())
	if err != nil {
		return Tenant{}, storeErr("update tenant", err)
	}
	meta := map[string]any{}
	if current.Status != updated.Status {
		meta["status"] = updated.Status
	}
	if current.Plan != updated.Plan {
		meta["plan"] = updated.Plan
	}
	s.record(ctx, c, "UPDATE_TENANT", "tenant", id, id, meta)
	return updated, nil
}

// DeleteTenant removes a tenant and, through the schema, everything under it.
func (s *Service) DeleteTenant(ctx context.Context, c access.Caller, id string) error {
	if err := requireSuperAdmin(c); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: tenant id is required", ErrInvalidInput)
	}
	if err := s.store.DeleteTenant(ctx, id); err != nil {
		return storeErr("delete tenant", err)
	}
	s.record(ctx, c, "DELETE_TENANT", "tenant", id, "", nil)
	s.publish(ctx, "tenant.deleted", map[string]any{"tenant_id": id, "deleted_by": c.UserID})
	return nil
}

// ListLicenses returns every license.
func (s *Service) ListLicenses(ctx context.Context, c access.Caller) ([]License, error) {
	if err := requireSuperAdmin(c); err != nil {
		return nil, err
	}
	out, err := s.store.ListLicenses(ctx)
	return out, storeErr("list licenses", err)
}

// ListIPAuthorizations returns every IP authorization.
func (s *Service) ListIPAuthorizations(ctx context.Context, c access.Caller) ([]IPAuthorization, error) {
	if err := requireSuperAdmin(c); err != nil {
		return nil, err
	}
	out, err := s.store.ListIPAuthorizations(ctx)
	return out, storeErr("list ip authorizations", err)
}

// ListActiveSessions returns every live session, most recently active first.
func (s *Service) ListActiveSessions(ctx context.Context, c access.Caller) ([]auth.Session, error) {
	if err := requireSuperAdmin(c); err != nil {
		return nil, err
	}
	out, err := s.store.ListActiveSessions(ctx)
	return out, storeErr("list sessions", err)
}

// PlatformOverview loads the super-admin dashboard, fetching its parts
// concurrently. Any failing part fails the whole overview.
func (s *Service) PlatformOverview(ctx context.Context, c access.Caller) (PlatformOverview, error) {
	if err := requireSuperAdmin(c); err != nil {
		return PlatformOverview{}, err
	}
	var out PlatformOverview
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.Tenants, err = s.store.ListTenants(gctx)
		return storeErr("list tenants", err)
	})
	g.Go(func() (err error) {
		out.Licenses, err = s.store.ListLicenses(gctx)
		return storeErr("list licenses", err)
	})
	g.Go(func() (err error) {
		out.IPAuthorizations, err = s.store.ListIPAuthorizations(gctx)
		return storeErr("list ip authorizations", err)
	})
	g.Go(func() (err error) {
		out.Sessions, err = s.store.ListActiveSessions(gctx)
		return storeErr("list sessions", err)
	})
	if err := g.Wait(); err != nil {
		return PlatformOverview{}, err
	}
	return out, nil
}

// ---- partner ----

// PartnerTenant resolves the tenant a partner_admin caller operates in. hint
// only selects among the caller's own tenants.
func PartnerTenant(c access.Caller, hint string) (string, error) {
	return scopedTenant(c, access.RolePartnerAdmin, hint)
}

func scopedTenant(c access.Caller, role access.Role, hint string) (string, error) {
	if !c.Is(role) {
		return "", fmt.Errorf("%w: %s required", ErrForbidden, role)
	}
	tenant, err := c.Assignments.SelectTenant(role, hint)
	switch {
	case err == nil:
		return tenant, nil
	case errors.Is(err, access.ErrTenantForbidden):
		return "", fmt.Errorf("%w: %w", ErrForbidden, err)
	default:
		obs.Logger().Warn("tenant unresolved for caller",
			zap.String("user_id", c.UserID),
			zap.String("role", string(role)),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: %w", ErrTenantUnresolved, err)
	}
}

// PartnerOverview loads the partner dashboard for the caller's tenant.
func (s *Service) PartnerOverview(ctx context.Context, c access.Caller, hint string) (PartnerOverview, error) {
	tenant, err := PartnerTenant(c, hint)
	if err != nil {
		return PartnerOverview{}, err
	}
	out := PartnerOverview{TenantID: tenant}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.Clients, err = s.store.ListClients(gctx, tenant)
		return storeErr("list clients", err)
	})
	g.Go(func() (err error) {
		out.Cameras, err = s.store.ListCameras(gctx, CameraFilter{TenantID: tenant})
		return storeErr("list cameras", err)
	})
	g.Go(func() (err error) {
		out.Alerts, err = s.store.ListAlerts(gctx, AlertFilter{TenantID: tenant, Limit: partnerRecentLimit})
		return storeErr("list alerts", err)
	})
	g.Go(func() error {
		stats, err := s.stats(gctx, tenant)
		out.Stats = stats
		return err
	})
	if err := g.Wait(); err != nil {
		return PartnerOverview{}, err
	}
	return out, nil
}

// ListClients returns the clients of the caller's tenant.
func (s *Service) ListClients(ctx context.Context, c access.Caller, hint string) ([]Client, error) {
	tenant, err := PartnerTenant(c, hint)
	if err != nil {
		return nil, err
	}
	out, err := s.store.ListClients(ctx, tenant)
	return out, storeErr("list clients", err)
}

// DeleteClient removes a client of the caller's tenant.
func (s *Service) DeleteClient(ctx context.Context, c access.Caller, hint, clientID string) error {
	tenant, err := PartnerTenant(c, hint)
	if err != nil {
		return err
	}
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return fmt.Errorf("%w: client id is required", ErrInvalidInput)
	}
	if err := s.store.DeleteClient(ctx, tenant, clientID); err != nil {
		return storeErr("delete client", err)
	}
	s.record(ctx, c, "DELETE_CLIENT", "client", clientID, tenant, nil)
	return nil
}

// ListCameras returns the cameras of the caller's tenant.
func (s *Service) ListCameras(ctx context.Context, c access.Caller, hint string) ([]Camera, error) {
	tenant, err := PartnerTenant(c, hint)
	if err != nil {
		return nil, err
	}
	out, err := s.store.ListCameras(ctx, CameraFilter{TenantID: tenant})
	return out, storeErr("list cameras", err)
}

// ListAlerts returns the newest alerts of the caller's tenant.
func (s *Service) ListAlerts(ctx context.Context, c access.Caller, hint string, limit int) ([]Alert, error) {
	tenant, err := PartnerTenant(c, hint)
	if err != nil {
		return nil, err
	}
	out, err := s.store.ListAlerts(ctx, AlertFilter{TenantID: tenant, Limit: clampLimit(limit)})
	return out, storeErr("list alerts", err)
}

// TenantStats returns the summary of the caller's tenant, nil when none has
// been computed yet.
func (s *Service) TenantStats(ctx context.Context, c access.Caller, hint string) (*TenantStats, error) {
	tenant, err := PartnerTenant(c, hint)
	if err != nil {
		return nil, err
	}
	return s.stats(ctx, tenant)
}

func (s *Service) stats(ctx context.Context, tenant string) (*TenantStats, error) {
	st, err := s.store.TenantStats(ctx, tenant)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("tenant stats", err)
	}
	return &st, nil
}

// AcknowledgePartnerAlert acknowledges an alert of the caller's tenant.
func (s *Service) AcknowledgePartnerAlert(ctx context.Context, c access.Caller, hint, alertID string) (Alert, error) {
	tenant, err := PartnerTenant(c, hint)
	if err != nil {
		return Alert{}, err
	}
	return s.acknowledge(ctx, c, tenant, "", alertID)
}

// ---- client ----

// ClientScope resolves the tenant and client row a client_user caller is
// bound to.
func (s *Service) ClientScope(ctx context.Context, c access.Caller, hint string) (string, Client, error) {
	tenant, err := scopedTenant(c, access.RoleClientUser, hint)
	if err != nil {
		return "", Client{}, err
	}
	client, err := s.store.FindClientByUser(ctx, tenant, c.UserID)
	if errors.Is(err, ErrNotFound) {
		return "", Client{}, ErrClientUnresolved
	}
	if err != nil {
		return "", Client{}, storeErr("find client", err)
	}
	return tenant, client, nil
}

// ClientOverview loads the client dashboard.
func (s *Service) ClientOverview(ctx context.Context, c access.Caller, hint string) (ClientOverview, error) {
	tenant, client, err := s.ClientScope(ctx, c, hint)
	if err != nil {
		return ClientOverview{}, err
	}
	out := ClientOverview{TenantID: tenant, Client: client}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.Cameras, err = s.store.ListCameras(gctx, CameraFilter{TenantID: tenant, ClientID: client.ID})
		return storeErr("list cameras", err)
	})
	g.Go(func() (err error) {
		out.Alerts, err = s.store.ListAlerts(gctx, AlertFilter{TenantID: tenant, ClientID: client.ID, Limit: clientRecentLimit})
		return storeErr("list alerts", err)
	})
	if err := g.Wait(); err != nil {
		return ClientOverview{}, err
	}
	return out, nil
}

// ListClientCameras returns the cameras owned by the caller's client.
func (s *Service) ListClientCameras(ctx context.Context, c access.Caller, hint string) ([]Camera, error) {
	tenant, client, err := s.ClientScope(ctx, c, hint)
	if err != nil {
		return nil, err
	}
	out, err := s.store.ListCameras(ctx, CameraFilter{TenantID: tenant, ClientID: client.ID})
	return out, storeErr("list cameras", err)
}

// ListClientAlerts returns the newest alerts of the caller's client.
func (s *Service) ListClientAlerts(ctx context.Context, c access.Caller, hint string, limit int) ([]Alert, error) {
	tenant, client, err := s.ClientScope(ctx, c, hint)
	if err != nil {
		return nil, err
	}
	out, err := s.store.ListAlerts(ctx, AlertFilter{TenantID: tenant, ClientID: client.ID, Limit: clampLimit(limit)})
	return out, storeErr("list alerts", err)
}

// AcknowledgeClientAlert acknowledges an alert owned by the caller's client.
func (s *Service) AcknowledgeClientAlert(ctx context.Context, c access.Caller, hint, alertID string) (Alert, error) {
	tenant, client, err := s.ClientScope(ctx, c, hint)
	if err != nil {
		return Alert{}, err
	}
	return s.acknowledge(ctx, c, tenant, client.ID, alertID)
}

func (s *Service) acknowledge(ctx context.Context, c access.Caller, tenant, clientID, alertID string) (Alert, error) {
	alertID = strings.TrimSpace(alertID)
	if alertID == "" {
		return Alert{}, fmt.Errorf("%w: alert id is required", ErrInvalidInput)
	}
	if clientID != "" {
		existing, err := s.store.GetAlert(ctx, tenant, alertID)
		if err != nil {
			return Alert{}, storeErr("get alert", err)
		}
		if existing.ClientID != clientID {
			// Other clients' alerts are indistinguishable from missing ones.
			return Alert{}, ErrNotFound
		}
	}
	a, changed, err := s.store.AcknowledgeAlert(ctx, tenant, alertID, c.UserID, s.now().UTC())
	if err != nil {
		return Alert{}, storeErr("acknowledge alert", err)
	}
	if changed {
		s.fan(AlertEvent{Kind: AlertAcknowledged, Alert: a})
		s.publish(ctx, string(AlertAcknowledged), a)
	}
	return a, nil
}

// ---- ingestion ----

// IngestAlert stores an alert produced by an external detector and pushes it
// to live subscribers. The camera must belong to the given tenant.
func (s *Service) IngestAlert(ctx context.Context, in AlertInput) (Alert, error) {
	in.TenantID = strings.TrimSpace(in.TenantID)
	in.CameraID = strings.TrimSpace(in.CameraID)
	in.Type = strings.TrimSpace(in.Type)
	in.Severity = strings.ToLower(strings.TrimSpace(in.Severity))
	switch {
	case in.TenantID == "" || in.CameraID == "":
		return Alert{}, fmt.Errorf("%w: tenant_id and camera_id are required", ErrInvalidInput)
	case !alertTypes[in.Type]:
		return Alert{}, fmt.Errorf("%w: unknown alert type %q", ErrInvalidInput, in.Type)
	case !alertSeverities[in.Severity]:
		return Alert{}, fmt.Errorf("%w: unknown severity %q", ErrInvalidInput, in.Severity)
	}
	cam, err := s.store.GetCamera(ctx, in.TenantID, in.CameraID)
	if err != nil {
		return Alert{}, storeErr("get camera", err)
	}
	created := in.CreatedAt.UTC()
	if in.CreatedAt.IsZero() {
		created = s.now().UTC()
	}
	a, err := s.store.InsertAlert(ctx, Alert{
		ID:        ids.New(),
		TenantID:  cam.TenantID,
		ClientID:  cam.ClientID,
		CameraID:  cam.ID,
		Type:      in.Type,
		Severity:  in.Severity,
		Message:   strings.TrimSpace(in.Message),
		Metadata:  in.Metadata,
		CreatedAt: created,
	})
	if err != nil {
		return Alert{}, storeErr("insert alert", err)
	}
	s.fan(AlertEvent{Kind: AlertCreated, Alert: a})
	return a, nil
}

// ---- helpers ----

func validateTenant(name, email, status, plan string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return fmt.Errorf("%w: invalid email", ErrInvalidInput)
		}
	}
	switch status {
	case TenantActive, TenantSuspended, TenantInactive:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	switch plan {
	case PlanBasic, PlanPremium, PlanEnterprise:
	default:
		return fmt.Errorf("%w: unknown plan %q", ErrInvalidInput, plan)
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultAlertLimit
	}
	if limit > maxAlertLimit {
		return maxAlertLimit
	}
	return limit
}

func (s *Service) fan(evt AlertEvent) {
	if s.fanout != nil {
		s.fanout.PublishAlert(evt)
	}
}

func (s *Service) publish(ctx context.Context, key string, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, key, payload); err != nil {
		obs.Logger().Warn("event publish failed", zap.String("routing_key", key), zap.Error(err))
	}
}

func (s *Service) record(ctx context.Context, c access.Caller, action, resourceType, resourceID, tenantID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, audit.Entry{
		UserID:       c.UserID,
		TenantID:     tenantID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     meta,
	})
}
