package monitor

import (
	"encoding/json"
	"time"

	"camguard.dev/internal/auth"
)

// Tenant is a reseller account.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	Status    string    `json:"status"`
	Plan      string    `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	TenantActive    = "active"
	TenantSuspended = "suspended"
	TenantInactive  = "inactive"

	PlanBasic      = "basic"
	PlanPremium    = "premium"
	PlanEnterprise = "enterprise"
)

// TenantInput creates a tenant.
type TenantInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Plan    string `json:"plan"`
	Status  string `json:"status"`
}

// TenantPatch updates selected tenant fields; nil fields are left alone.
type TenantPatch struct {
	Name    *string `json:"name,omitempty"`
	Email   *string `json:"email,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Address *string `json:"address,omitempty"`
	Plan    *string `json:"plan,omitempty"`
	Status  *string `json:"status,omitempty"`
}

// Client is an end customer of a tenant.
type Client struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id,omitempty"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Type      string    `json:"type"`
	Address   string    `json:"address,omitempty"`
	Plan      string    `json:"plan,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	ClientIndividual = "pf"
	ClientCompany    = "pj"
)

// Camera is a monitored device.
type Camera struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	ClientID    string    `json:"client_id"`
	Name        string    `json:"name"`
	Location    string    `json:"location,omitempty"`
	RTSPURL     string    `json:"rtsp_url,omitempty"`
	Status      string    `json:"status"`
	IsRecording bool      `json:"is_recording"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Alert is a detection produced outside this service.
type Alert struct {
	ID             string          `json:"id"`
	TenantID       string          `json:"tenant_id"`
	ClientID       string          `json:"client_id"`
	CameraID       string          `json:"camera_id"`
	Type           string          `json:"type"`
	Severity       string          `json:"severity"`
	Message        string          `json:"message"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	IsAcknowledged bool            `json:"is_acknowledged"`
	AcknowledgedBy string          `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time      `json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

var (
	alertTypes      = map[string]bool{"movement": true, "person_detected": true, "intrusion": true, "object_detection": true}
	alertSeverities = map[string]bool{"low": true, "medium": true, "high": true, "critical": true}
)

// AlertInput is an externally produced alert to be stored.
type AlertInput struct {
	TenantID  string          `json:"tenant_id"`
	CameraID  string          `json:"camera_id"`
	Type      string          `json:"type"`
	Severity  string          `json:"severity"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// AlertEventKind names what happened to an alert.
type AlertEventKind string

const (
	AlertCreated      AlertEventKind = "alert.created"
	AlertAcknowledged AlertEventKind = "alert.acknowledged"
)

// AlertEvent is fanned out to live subscribers.
type AlertEvent struct {
	Kind  AlertEventKind `json:"kind"`
	Alert Alert          `json:"alert"`
}

// License caps what a tenant may run.
type License struct {
	ID                string    `json:"id"`
	TenantID          string    `json:"tenant_id"`
	LicenseType       string    `json:"license_type"`
	MaxCameras        int       `json:"max_cameras"`
	MaxCloudStorageGB int       `json:"max_cloud_storage_gb"`
	AIFeatures        []string  `json:"ai_features"`
	ExpiresAt         time.Time `json:"expires_at"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
}

// TenantStats is a precomputed summary, read only.
type TenantStats struct {
	TenantID       string    `json:"tenant_id"`
	ActiveClients  int       `json:"active_clients"`
	TotalCameras   int       `json:"total_cameras"`
	OnlineCameras  int       `json:"online_cameras"`
	MonthlyAlerts  int       `json:"monthly_alerts"`
	MonthlyRevenue float64   `json:"monthly_revenue"`
	LastUpdated    time.Time `json:"last_updated"`
}

// IPAuthorization allows an address to reach a tenant deployment.
type IPAuthorization struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	IPAddress   string    `json:"ip_address"`
	Domain      string    `json:"domain,omitempty"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// CameraFilter scopes a camera listing. TenantID is mandatory.
type CameraFilter struct {
	TenantID string
	ClientID string
}

// AlertFilter scopes an alert listing, newest first. TenantID is mandatory.
type AlertFilter struct {
	TenantID string
	ClientID string
	Limit    int
}

// PlatformOverview is the super-admin dashboard.
type PlatformOverview struct {
	Tenants          []Tenant          `json:"tenants"`
	Licenses         []License         `json:"licenses"`
	IPAuthorizations []IPAuthorization `json:"ip_authorizations"`
	Sessions         []auth.Session    `json:"sessions"`
}

// PartnerOverview is the partner dashboard.
type PartnerOverview struct {
	TenantID string       `json:"tenant_id"`
	Clients  []Client     `json:"clients"`
	Cameras  []Camera     `json:"cameras"`
	Alerts   []Alert      `json:"alerts"`
	Stats    *TenantStats `json:"stats"`
}

// ClientOverview is the client dashboard.
type ClientOverview struct {
	TenantID string   `json:"tenant_id"`
	Client   Client   `json:"client"`
	Cameras  []Camera `json:"cameras"`
	Alerts   []Alert  `json:"alerts"`
}
