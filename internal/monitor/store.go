package monitor

import (
	"context"
	"time"

	"camguard.dev/internal/auth"
)

// Store is the persistence contract of the monitoring data. Every tenant
// scoped method filters on the tenant it is given.
type Store interface {
	ListTenants(ctx context.Context) ([]Tenant, error)
	GetTenant(ctx context.Context, id string) (Tenant, error)
	CreateTenant(ctx context.Context, t Tenant) (Tenant, error)
	UpdateTenant(ctx context.Context, id string, patch TenantPatch, at time.Time) (Tenant, error)
	DeleteTenant(ctx context.Context, id string) error
	ListLicenses(ctx context.Context) ([]License, error)
	ListIPAuthorizations(ctx context.Context) ([]IPAuthorization, error)
	ListActiveSessions(ctx context.Context) ([]auth.Session, error)

	ListClients(ctx context.Context, tenantID string) ([]Client, error)
	FindClientByUser(ctx context.Context, tenantID, userID string) (Client, error)
	DeleteClient(ctx context.Context, tenantID, clientID string) error
	GetCamera(ctx context.Context, tenantID, cameraID string) (Camera, error)
	ListCameras(ctx context.Context, f CameraFilter) ([]Camera, error)
	ListAlerts(ctx context.Context, f AlertFilter) ([]Alert, error)
	GetAlert(ctx context.Context, tenantID, alertID string) (Alert, error)
	InsertAlert(ctx context.Context, a Alert) (Alert, error)
	// AcknowledgeAlert records the first acknowledgement only. changed is
	// false when the alert had already been acknowledged.
	AcknowledgeAlert(ctx context.Context, tenantID, alertID, userID string, at time.Time) (a Alert, changed bool, err error)
	// TenantStats returns ErrNotFound when no summary has been computed yet.
	TenantStats(ctx context.Context, tenantID string) (TenantStats, error)
}

// Publisher delivers domain events to other systems.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// AlertFanout pushes alert changes to live subscribers.
type AlertFanout interface {
	PublishAlert(evt AlertEvent)
}
