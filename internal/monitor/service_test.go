package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"camguard.dev/internal/access"
	"camguard.dev/internal/auth"
)

type fakeStore struct {
	mu       sync.Mutex
	tenants  map[string]Tenant
	clients  []Client
	cameras  []Camera
	alerts   []Alert
	stats    map[string]TenantStats
	failWith error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tenants: map[string]Tenant{
			"tA": {ID: "tA", Name: "Alpha", Status: TenantActive, Plan: PlanBasic},
			"tB": {ID: "tB", Name: "Beta", Status: TenantActive, Plan: PlanPremium},
		},
		clients: []Client{
			{ID: "cA1", TenantID: "tA", UserID: "client-user-a", Name: "Shop A"},
			{ID: "cA2", TenantID: "tA", Name: "Shop A2"},
			{ID: "cB1", TenantID: "tB", Name: "Shop B"},
		},
		cameras: []Camera{
			{ID: "camA1", TenantID: "tA", ClientID: "cA1", Name: "door"},
			{ID: "camA2", TenantID: "tA", ClientID: "cA2", Name: "yard"},
			{ID: "camB1", TenantID: "tB", ClientID: "cB1", Name: "gate"},
		},
		alerts: []Alert{
			{ID: "alA1", TenantID: "tA", ClientID: "cA1", CameraID: "camA1"},
			{ID: "alA2", TenantID: "tA", ClientID: "cA2", CameraID: "camA2"},
			{ID: "alB1", TenantID: "tB", ClientID: "cB1", CameraID: "camB1"},
		},
		stats: map[string]TenantStats{"tA": {TenantID: "tA", TotalCameras: 2}},
	}
}

func (f *fakeStore) ListTenants(context.Context) ([]Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	var out []Tenant
	for _, t := range f.tenants {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeStore) GetTenant(_ context.Context, id string) (Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[id]
	if !ok {
		return Tenant{}, ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) CreateTenant(_ context.Context, t Tenant) (Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tenants[t.ID] = t
	return t, nil
}

func (f *fakeStore) UpdateTenant(_ context.Context, id string, p TenantPatch, at time.Time) (Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[id]
	if !ok {
		return Tenant{}, ErrNotFound
	}
	t.Name, t.Email, t.Phone, t.Address, t.Plan, t.Status = *p.Name, *p.Email, *p.Phone, *p.Address, *p.Plan, *p.Status
	t.UpdatedAt = at
	f.tenants[id] = t
	return t, nil
}

func (f *fakeStore) DeleteTenant(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tenants[id]; !ok {
		return ErrNotFound
	}
	delete(f.tenants, id)
	return nil
}

func (f *fakeStore) ListLicenses(context.Context) ([]License, error) { return []License{{ID: "l1"}}, nil }
func (f *fakeStore) ListIPAuthorizations(context.Context) ([]IPAuthorization, error) {
	return []IPAuthorization{{ID: "ip1"}}, nil
}
func (f *fakeStore) ListActiveSessions(context.Context) ([]auth.Session, error) {
	return []auth.Session{{ID: "s1", IsActive: true}}, nil
}

func (f *fakeStore) ListClients(_ context.Context, tenantID string) ([]Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Client
	for _, c := range f.clients {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) FindClientByUser(_ context.Context, tenantID, userID string) (Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.clients {
		if c.TenantID == tenantID && c.UserID == userID {
			return c, nil
		}
	}
	return Client{}, ErrNotFound
}

func (f *fakeStore) DeleteClient(_ context.Context, tenantID, clientID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.clients {
		if c.TenantID == tenantID && c.ID == clientID {
			f.clients = append(f.clients[:i], f.clients[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeStore) GetCamera(_ context.Context, tenantID, cameraID string) (Camera, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.cameras {
		if c.TenantID == tenantID && c.ID == cameraID {
			return c, nil
		}
	}
	return Camera{}, ErrNotFound
}

func (f *fakeStore) ListCameras(_ context.Context, flt CameraFilter) ([]Camera, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	var out []Camera
	for _, c := range f.cameras {
		if c.TenantID == flt.TenantID && (flt.ClientID == "" || c.ClientID == flt.ClientID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) ListAlerts(_ context.Context, flt AlertFilter) ([]Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Alert
	for _, a := range f.alerts {
		if a.TenantID == flt.TenantID && (flt.ClientID == "" || a.ClientID == flt.ClientID) {
			out = append(out, a)
		}
	}
	if flt.Limit > 0 && len(out) > flt.Limit {
		out = out[:flt.Limit]
	}
	return out, nil
}

func (f *fakeStore) GetAlert(_ context.Context, tenantID, alertID string) (Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.alerts {
		if a.TenantID == tenantID && a.ID == alertID {
			return a, nil
		}
	}
	return Alert{}, ErrNotFound
}

func (f *fakeStore) InsertAlert(_ context.Context, a Alert) (Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
	return a, nil
}

func (f *fakeStore) AcknowledgeAlert(_ context.Context, tenantID, alertID, userID string, at time.Time) (Alert, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, a := range f.alerts {
		if a.TenantID != tenantID || a.ID != alertID {
			continue
		}
		if a.IsAcknowledged {
			return a, false, nil
		}
		a.IsAcknowledged, a.AcknowledgedBy, a.AcknowledgedAt = true, userID, &at
		f.alerts[i] = a
		return a, true, nil
	}
	return Alert{}, false, ErrNotFound
}

func (f *fakeStore) TenantStats(_ context.Context, tenantID string) (TenantStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.stats[tenantID]
	if !ok {
		return TenantStats{}, ErrNotFound
	}
	return st, nil
}

type recordingFanout struct {
	mu     sync.Mutex
	events []AlertEvent
}

func (r *recordingFanout) PublishAlert(evt AlertEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

type publisherFunc func(ctx context.Context, key string, payload any) error

func (f publisherFunc) Publish(ctx context.Context, key string, payload any) error {
	return f(ctx, key, payload)
}

var (
	superAdmin = access.Caller{UserID: "root", Assignments: access.Assignments{{Role: access.RoleSuperAdmin}}}
	partnerA   = access.Caller{UserID: "pa", Assignments: access.Assignments{{Role: access.RolePartnerAdmin, TenantID: "tA"}}}
	clientA    = access.Caller{UserID: "client-user-a", Assignments: access.Assignments{{Role: access.RoleClientUser, TenantID: "tA"}}}
)

func newTestService(t *testing.T, opts ...Option) (*Service, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	svc, err := NewService(store, opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, store
}

func TestPartnerNeverSeesOtherTenant(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cams, err := svc.ListCameras(ctx, partnerA, "")
	if err != nil {
		t.Fatalf("list cameras: %v", err)
	}
	if len(cams) != 2 {
		t.Fatalf("cameras = %d", len(cams))
	}
	for _, c := range cams {
		if c.TenantID != "tA" {
			t.Fatalf("leaked camera %+v", c)
		}
	}

	if _, err := svc.ListCameras(ctx, partnerA, "tB"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("explicit foreign tenant must be forbidden, got %v", err)
	}
}

func TestPartnerWithoutTenantFailsClosed(t *testing.T) {
	svc, _ := newTestService(t)
	broken := access.Caller{UserID: "x", Assignments: access.Assignments{{Role: access.RolePartnerAdmin}}}
	// The malformed assignment still grants the role but carries no tenant.
	if _, err := svc.ListClients(context.Background(), broken, ""); !errors.Is(err, ErrTenantUnresolved) {
		t.Fatalf("expected unresolved tenant, got %v", err)
	}
}

func TestPartnerWithSeveralTenantsMustChoose(t *testing.T) {
	svc, _ := newTestService(t)
	multi := access.Caller{UserID: "pm", Assignments: access.Assignments{
		{Role: access.RolePartnerAdmin, TenantID: "tA"},
		{Role: access.RolePartnerAdmin, TenantID: "tB"},
	}}
	ctx := context.Background()

	_, err := svc.ListClients(ctx, multi, "")
	if !errors.Is(err, ErrTenantUnresolved) || !errors.Is(err, access.ErrAmbiguousTenant) {
		t.Fatalf("expected ambiguity, got %v", err)
	}
	clients, err := svc.ListClients(ctx, multi, "tB")
	if err != nil || len(clients) != 1 || clients[0].TenantID != "tB" {
		t.Fatalf("clients = %+v, %v", clients, err)
	}
}

func TestRoleChecks(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.ListTenants(ctx, partnerA); !errors.Is(err, ErrForbidden) {
		t.Fatalf("partner listing tenants: %v", err)
	}
	if _, err := svc.ListClients(ctx, clientA, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("client listing clients: %v", err)
	}
	if _, err := svc.ClientOverview(ctx, superAdmin, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("super admin as client: %v", err)
	}
	tenants, err := svc.ListTenants(ctx, superAdmin)
	if err != nil || len(tenants) != 2 {
		t.Fatalf("tenants = %d, %v", len(tenants), err)
	}
}

func TestPlatformOverview(t *testing.T) {
	svc, _ := newTestService(t)
	ov, err := svc.PlatformOverview(context.Background(), superAdmin)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if len(ov.Tenants) != 2 || len(ov.Licenses) != 1 || len(ov.IPAuthorizations) != 1 || len(ov.Sessions) != 1 {
		t.Fatalf("overview = %+v", ov)
	}
}

func TestStoreFailureIsRetryable(t *testing.T) {
	svc, store := newTestService(t)
	store.failWith = errors.New("connection refused")

	_, err := svc.PlatformOverview(context.Background(), superAdmin)
	if !Retryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	_, err = svc.PartnerOverview(context.Background(), partnerA, "")
	if !Retryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestPartnerOverview(t *testing.T) {
	svc, _ := newTestService(t)
	ov, err := svc.PartnerOverview(context.Background(), partnerA, "")
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if ov.TenantID != "tA" || len(ov.Clients) != 2 || len(ov.Cameras) != 2 || len(ov.Alerts) != 2 {
		t.Fatalf("overview = %+v", ov)
	}
	if ov.Stats == nil || ov.Stats.TotalCameras != 2 {
		t.Fatalf("stats = %+v", ov.Stats)
	}
}

func TestClientScopedToOwnClient(t *testing.T) {
	svc, _ := newTestService(t)
	ov, err := svc.ClientOverview(context.Background(), clientA, "")
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if ov.Client.ID != "cA1" || len(ov.Cameras) != 1 || ov.Cameras[0].ID != "camA1" {
		t.Fatalf("overview = %+v", ov)
	}
	for _, a := range ov.Alerts {
		if a.ClientID != "cA1" {
			t.Fatalf("leaked alert %+v", a)
		}
	}

	unbound := access.Caller{UserID: "nobody", Assignments: access.Assignments{{Role: access.RoleClientUser, TenantID: "tA"}}}
	if _, err := svc.ListClientCameras(context.Background(), unbound, ""); !errors.Is(err, ErrClientUnresolved) {
		t.Fatalf("unbound client user: %v", err)
	}
}

func TestAcknowledgeIsIdempotent(t *testing.T) {
	fan := &recordingFanout{}
	var published []string
	pub := publisherFunc(func(_ context.Context, key string, _ any) error {
		published = append(published, key)
		return nil
	})
	svc, _ := newTestService(t, WithFanout(fan), WithPublisher(pub))
	ctx := context.Background()

	first, err := svc.AcknowledgePartnerAlert(ctx, partnerA, "", "alA2")
	if err != nil {
		t.Fatalf("ack: %v", err)
	}
	if !first.IsAcknowledged || first.AcknowledgedBy != "pa" || first.AcknowledgedAt == nil {
		t.Fatalf("ack result = %+v", first)
	}
	second, err := svc.AcknowledgePartnerAlert(ctx, partnerA, "", "alA2")
	if err != nil {
		t.Fatalf("second ack: %v", err)
	}
	if !second.AcknowledgedAt.Equal(*first.AcknowledgedAt) {
		t.Fatalf("acknowledgement time changed")
	}
	if len(fan.events) != 1 || len(published) != 1 || published[0] != "alert.acknowledged" {
		t.Fatalf("events = %d, published = %v", len(fan.events), published)
	}

	if _, err := svc.AcknowledgePartnerAlert(ctx, partnerA, "", "alB1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign alert must be not found, got %v", err)
	}
}

func TestClientCannotAcknowledgeSiblingAlert(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.AcknowledgeClientAlert(ctx, clientA, "", "alA2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("sibling alert: %v", err)
	}
	if _, err := svc.AcknowledgeClientAlert(ctx, clientA, "", "alA1"); err != nil {
		t.Fatalf("own alert: %v", err)
	}
}

func TestIngestAlert(t *testing.T) {
	fan := &recordingFanout{}
	svc, store := newTestService(t, WithFanout(fan))
	ctx := context.Background()

	a, err := svc.IngestAlert(ctx, AlertInput{TenantID: "tA", CameraID: "camA2", Type: "intrusion", Severity: "HIGH", Message: " door forced "})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if a.ClientID != "cA2" || a.Severity != "high" || a.Message != "door forced" || a.ID == "" {
		t.Fatalf("alert = %+v", a)
	}
	if len(fan.events) != 1 || fan.events[0].Kind != AlertCreated {
		t.Fatalf("fanout = %+v", fan.events)
	}
	if len(store.alerts) != 4 {
		t.Fatalf("alert not stored")
	}

	if _, err := svc.IngestAlert(ctx, AlertInput{TenantID: "tA", CameraID: "camB1", Type: "intrusion", Severity: "low"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("camera of other tenant: %v", err)
	}
	if _, err := svc.IngestAlert(ctx, AlertInput{TenantID: "tA", CameraID: "camA1", Type: "smoke", Severity: "low"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unknown type: %v", err)
	}
}

func TestTenantLifecycle(t *testing.T) {
	var published []string
	pub := publisherFunc(func(_ context.Context, key string, _ any) error {
		published = append(published, key)
		return nil
	})
	svc, _ := newTestService(t, WithPublisher(pub))
	ctx := context.Background()

	created, err := svc.CreateTenant(ctx, superAdmin, TenantInput{Name: " Gamma ", Email: "OPS@gamma.io"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Name != "Gamma" || created.Email != "ops@gamma.io" || created.Status != TenantActive || created.Plan != PlanBasic {
		t.Fatalf("created = %+v", created)
	}
	if _, err := svc.CreateTenant(ctx, superAdmin, TenantInput{Name: "X", Plan: "gold"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad plan: %v", err)
	}

	suspended := TenantSuspended
	updated, err := svc.UpdateTenant(ctx, superAdmin, created.ID, TenantPatch{Status: &suspended})
	if err != nil || updated.Status != TenantSuspended || updated.Name != "Gamma" {
		t.Fatalf("update = %+v, %v", updated, err)
	}

	if err := svc.DeleteTenant(ctx, superAdmin, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeleteTenant(ctx, superAdmin, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
	if len(published) != 1 || published[0] != "tenant.deleted" {
		t.Fatalf("published = %v", published)
	}
}
