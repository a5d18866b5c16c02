package provision

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"camguard.dev/internal/access"
	"camguard.dev/internal/audit"
	"camguard.dev/internal/auth"
	"camguard.dev/internal/ids"
	"camguard.dev/internal/monitor"
	"camguard.dev/internal/obs"
)

const successMessage = "user created"

// Service creates partner and client users on behalf of administrators.
type Service struct {
	store  Store
	events Publisher
	now    func() time.Time
}

// NewService builds a Service. events may be nil.
func NewService(store Store, events Publisher) (*Service, error) {
	if store == nil {
		return nil, errors.New("provision: store is required")
	}
	return &Service{store: store, events: events, now: time.Now}, nil
}

// CreateUser provisions the user described by req. Only a super_admin may
// create a partner_admin; only a partner_admin may create a client_user, and
// always inside one of its own tenants.
func (s *Service) CreateUser(ctx context.Context, caller access.Caller, req Request) (Response, error) {
	role, err := access.ParseRole(req.Role)
	if err != nil {
		obs.ObserveProvisioning("unknown", "invalid")
		return Response{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	resp, err := s.createUser(ctx, caller, role, req)
	obs.ObserveProvisioning(string(role), resultLabel(err))
	if err != nil {
		obs.Logger().Warn("provisioning rejected",
			zap.String("caller_id", caller.UserID),
			zap.String("role", string(role)),
			zap.Error(err),
		)
		return Response{}, err
	}
	return resp, nil
}

func (s *Service) createUser(ctx context.Context, caller access.Caller, role access.Role, req Request) (Response, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	fullName := strings.TrimSpace(req.FullName)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return Response{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if fullName == "" {
		return Response{}, fmt.Errorf("%w: fullName is required", ErrInvalidInput)
	}

	now := s.now().UTC()
	plan := Plan{}

	var tenantID string
	switch role {
	case access.RolePartnerAdmin:
		if !caller.Is(access.RoleSuperAdmin) {
			return Response{}, fmt.Errorf("%w: only super admins create partners", ErrForbidden)
		}
		if req.ClientData != nil {
			return Response{}, fmt.Errorf("%w: clientData is only valid for client users", ErrInvalidInput)
		}
		switch {
		case req.Tenant != nil && strings.TrimSpace(req.TenantID) != "":
			return Response{}, fmt.Errorf("%w: give either tenant or tenantId", ErrInvalidInput)
		case req.Tenant != nil:
			t, err := monitor.NewTenant(*req.Tenant, now)
			if err != nil {
				return Response{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
			}
			plan.NewTenant = &t
			tenantID = t.ID
		case strings.TrimSpace(req.TenantID) != "":
			tenantID = strings.TrimSpace(req.TenantID)
		default:
			return Response{}, fmt.Errorf("%w: a partner needs a tenant", ErrInvalidInput)
		}
	case access.RoleClientUser:
		if !caller.Is(access.RolePartnerAdmin) {
			return Response{}, fmt.Errorf("%w: only partner admins create clients", ErrForbidden)
		}
		if req.Tenant != nil {
			return Response{}, fmt.Errorf("%w: client users cannot create tenants", ErrInvalidInput)
		}
		t, err := caller.Assignments.SelectTenant(access.RolePartnerAdmin, req.TenantID)
		switch {
		case errors.Is(err, access.ErrTenantForbidden):
			return Response{}, fmt.Errorf("%w: %w", ErrForbidden, err)
		case err != nil:
			return Response{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		tenantID = t
	default:
		return Response{}, fmt.Errorf("%w: role %s cannot be provisioned", ErrForbidden, role)
	}

	password := req.Password
	if password == "" {
		generated, err := GeneratePassword()
		if err != nil {
			return Response{}, fmt.Errorf("generate password: %w", err)
		}
		password = generated
	} else if len(password) < auth.MinPasswordLength {
		return Response{}, fmt.Errorf("%w: password must have at least %d characters", ErrInvalidInput, auth.MinPasswordLength)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	userID := ids.New()
	plan.User = auth.User{ID: userID, Email: email, FullName: fullName, PasswordHash: hash, CreatedAt: now, UpdatedAt: now}
	plan.Assignment = access.Assignment{ID: ids.New(), UserID: userID, Role: role, TenantID: tenantID, CreatedAt: now}
	plan.Profile = Profile{ID: userID, Email: email, FullName: fullName, Role: role, TenantID: tenantID}
	if err := plan.Assignment.Validate(); err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	if req.ClientData != nil {
		c, err := newClient(*req.ClientData, tenantID, userID, email, now)
		if err != nil {
			return Response{}, err
		}
		plan.Client = &c
	}

	plan.Audit = audit.Entry{
		ID:           ids.New(),
		UserID:       caller.UserID,
		TenantID:     tenantID,
		Action:       "CREATE_USER",
		ResourceType: "user",
		ResourceID:   userID,
		Metadata: map[string]any{
			"created_user_email": email,
			"created_user_role":  string(role),
			"created_user_name":  fullName,
		},
		CreatedAt: now,
	}

	if err := s.store.Provision(ctx, plan); err != nil {
		switch {
		case errors.Is(err, ErrConflict), errors.Is(err, ErrNotFound):
			return Response{}, err
		default:
			return Response{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}

	// The audit row is already committed with the plan; this only emits the log line.
	_ = audit.LogEvent(ctx, plan.Audit.Action, plan.Audit.Metadata)

	user := CreatedUser{ID: userID, Email: email, FullName: fullName, Role: role, TenantID: tenantID, CreatedAt: now}
	if plan.Client != nil {
		user.ClientID = plan.Client.ID
	}
	s.publish(ctx, user, caller.UserID)
	return Response{Success: true, User: user, Password: password, Message: successMessage}, nil
}

func newClient(d ClientData, tenantID, userID, email string, now time.Time) (monitor.Client, error) {
	c := monitor.Client{
		ID:        ids.New(),
		TenantID:  tenantID,
		UserID:    userID,
		Name:      strings.TrimSpace(d.Name),
		Email:     email,
		Phone:     strings.TrimSpace(d.Phone),
		Type:      strings.ToLower(strings.TrimSpace(d.Type)),
		Address:   strings.TrimSpace(d.Address),
		Status:    "active",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if c.Name == "" {
		return monitor.Client{}, fmt.Errorf("%w: client name is required", ErrInvalidInput)
	}
	if c.Type != monitor.ClientIndividual && c.Type != monitor.ClientCompany {
		return monitor.Client{}, fmt.Errorf("%w: client type must be pf or pj", ErrInvalidInput)
	}
	return c, nil
}

func (s *Service) publish(ctx context.Context, u CreatedUser, by string) {
	if s.events == nil {
		return
	}
	payload := map[string]any{
		"user_id":    u.ID,
		"email":      u.Email,
		"role":       string(u.Role),
		"tenant_id":  u.TenantID,
		"created_by": by,
	}
	if err := s.events.Publish(ctx, "user.provisioned", payload); err != nil {
		obs.Logger().Warn("event publish failed", zap.String("routing_key", "user.provisioned"), zap.Error(err))
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
