package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"camguard.dev/internal/access"
	"camguard.dev/internal/audit"
	"camguard.dev/internal/auth"
	"camguard.dev/internal/monitor"
	"camguard.dev/internal/provision"
	"camguard.dev/internal/store/memory"
	"camguard.dev/internal/stream"
	"camguard.dev/internal/tenancy"
)

const testPassword = "correct-horse"

type apiClient struct {
	baseURL    string
	client     *http.Client
	t          *testing.T
	store      *memory.Store
	monitor    *monitor.Service
	roles      *access.Resolver
	roleStore  *switchableAssignments
	detections *memDetections
}

// switchableAssignments serves role assignments from the memory store until
// an outage is set.
type switchableAssignments struct {
	*memory.Store
	mu     sync.Mutex
	outage error
}

func (s *switchableAssignments) setOutage(err error) {
	s.mu.Lock()
	s.outage = err
	s.mu.Unlock()
}

func (s *switchableAssignments) ListAssignments(ctx context.Context, userID string) ([]access.Assignment, error) {
	s.mu.Lock()
	err := s.outage
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.Store.ListAssignments(ctx, userID)
}

type memDetections struct {
	mu   sync.Mutex
	data map[string]tenancy.Detection
}

func (c *memDetections) Get(_ context.Context, host string) (tenancy.Detection, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.data[host]
	return d, ok, nil
}

func (c *memDetections) Set(_ context.Context, host string, d tenancy.Detection) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[host] = d
	return nil
}

func (c *memDetections) Delete(_ context.Context, hosts ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range hosts {
		delete(c.data, h)
	}
	return nil
}

func (c *memDetections) has(host string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[host]
	return ok
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	store := memory.New()
	seed(t, store)

	tokens, err := auth.NewTokenIssuer("test-secret")
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	sessions, err := auth.NewSessions(store, store, tokens)
	if err != nil {
		t.Fatalf("NewSessions: %v", err)
	}
	roleStore := &switchableAssignments{Store: store}
	roles, err := access.NewResolver(roleStore)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	sessions.Subscribe(func(c auth.Change) { roles.Invalidate(c.UserID) })

	rec := audit.NewRecorder(store)
	detections := &memDetections{data: map[string]tenancy.Detection{}}
	tenants := tenancy.NewResolver(store, tenancy.WithPlatformHosts("localhost"), tenancy.WithDetectionCache(detections))
	alerts := stream.New()
	mon, err := monitor.NewService(store, monitor.WithFanout(alerts), monitor.WithAudit(rec))
	if err != nil {
		t.Fatalf("monitor.NewService: %v", err)
	}
	prov, err := provision.NewService(store, nil)
	if err != nil {
		t.Fatalf("provision.NewService: %v", err)
	}

	api := New(Deps{
		Sessions:  sessions,
		Roles:     roles,
		Tenants:   tenants,
		Domains:   tenancy.NewManager(store, tenants, rec),
		Monitor:   mon,
		Provision: prov,
		Stream:    alerts,
		Version:   "test",
	}, WithRateLimit(1000, 1000))

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL:    srv.URL,
		client:     srv.Client(),
		t:          t,
		store:      store,
		monitor:    mon,
		roles:      roles,
		roleStore:  roleStore,
		detections: detections,
	}
}

func seed(t *testing.T, s *memory.Store) {
	t.Helper()
	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	now := time.Now().UTC()
	s.SeedTenant(monitor.Tenant{ID: "t1", Name: "Acme", Status: monitor.TenantActive, Plan: monitor.PlanBasic, CreatedAt: now})
	s.SeedTenant(monitor.Tenant{ID: "t2", Name: "Other", Status: monitor.TenantActive, Plan: monitor.PlanBasic, CreatedAt: now})

	s.SeedUser(auth.User{ID: "admin", Email: "admin@example.com", PasswordHash: hash},
		access.Assignment{ID: "r-admin", Role: access.RoleSuperAdmin})
	s.SeedUser(auth.User{ID: "partner", Email: "partner@acme.test", PasswordHash: hash},
		access.Assignment{ID: "r-partner", Role: access.RolePartnerAdmin, TenantID: "t1"})
	s.SeedUser(auth.User{ID: "client", Email: "client@acme.test", PasswordHash: hash},
		access.Assignment{ID: "r-client", Role: access.RoleClientUser, TenantID: "t1"})
	s.SeedUser(auth.User{ID: "sibling", Email: "sibling@acme.test", PasswordHash: hash},
		access.Assignment{ID: "r-sibling", Role: access.RoleClientUser, TenantID: "t1"})

	s.SeedClient(monitor.Client{ID: "c1", TenantID: "t1", UserID: "client", Name: "Shop", Type: monitor.ClientCompany, Status: "active", CreatedAt: now})
	s.SeedClient(monitor.Client{ID: "c2", TenantID: "t1", UserID: "sibling", Name: "Bakery", Type: monitor.ClientCompany, Status: "active", CreatedAt: now})
	s.SeedCamera(monitor.Camera{ID: "cam1", TenantID: "t1", ClientID: "c1", Name: "Door", Status: "online", CreatedAt: now})
	s.SeedCamera(monitor.Camera{ID: "cam2", TenantID: "t1", ClientID: "c2", Name: "Till", Status: "online", CreatedAt: now})
	s.SeedCamera(monitor.Camera{ID: "cam9", TenantID: "t2", ClientID: "c9", Name: "Gate", Status: "online", CreatedAt: now})

	ctx := context.Background()
	for _, a := range []monitor.Alert{
		{ID: "al1", TenantID: "t1", ClientID: "c1", CameraID: "cam1", Type: "intrusion", Severity: "high", Message: "door", CreatedAt: now},
		{ID: "al2", TenantID: "t1", ClientID: "c2", CameraID: "cam2", Type: "movement", Severity: "low", Message: "till", CreatedAt: now.Add(-time.Minute)},
		{ID: "al9", TenantID: "t2", ClientID: "c9", CameraID: "cam9", Type: "movement", Severity: "low", Message: "gate", CreatedAt: now},
	} {
		if _, err := s.InsertAlert(ctx, a); err != nil {
			t.Fatalf("seed alert: %v", err)
		}
	}
}

func (c *apiClient) do(method, path string, body any, token string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) signIn(email string) string {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/v1/auth/sign-in", map[string]any{"email": email, "password": testPassword}, "")
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("sign in %s: status %d", email, resp.StatusCode)
	}
	out := decode[signInResponse](c.t, resp)
	if out.Token == "" {
		c.t.Fatalf("empty token issued")
	}
	return out.Token
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		var body bytes.Buffer
		_, _ = body.ReadFrom(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d: %s", resp.StatusCode, want, body.String())
	}
}

func TestHealthAndUnknownRoute(t *testing.T) {
	api := newTestAPI(t)
	resp := api.do(http.MethodGet, "/healthz", nil, "")
	expectStatus(t, resp, http.StatusOK)
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
	resp.Body.Close()

	resp = api.do(http.MethodGet, "/nope", nil, "")
	expectStatus(t, resp, http.StatusNotFound)
	body := decode[map[string]any](t, resp)
	if body["request_id"] == "" || body["error"] == "" {
		t.Fatalf("error body = %v", body)
	}
}

func TestSignInRedirectsToPreservedPath(t *testing.T) {
	api := newTestAPI(t)
	resp := api.do(http.MethodPost, "/v1/auth/sign-in", map[string]any{
		"email": "Partner@Acme.test", "password": testPassword, "next": "/partner/clients",
	}, "")
	expectStatus(t, resp, http.StatusOK)
	out := decode[signInResponse](t, resp)
	if out.Redirect != "/partner/clients" {
		t.Fatalf("redirect = %q", out.Redirect)
	}
	if out.Session.PrimaryRole != access.RolePartnerAdmin || out.Session.EffectiveTenant != "t1" {
		t.Fatalf("session = %+v", out.Session)
	}

	resp = api.do(http.MethodPost, "/v1/auth/sign-in", map[string]any{
		"email": "partner@acme.test", "password": testPassword, "next": "//evil.example",
	}, "")
	expectStatus(t, resp, http.StatusOK)
	if out := decode[signInResponse](t, resp); out.Redirect != "/partner/dashboard" {
		t.Fatalf("unsafe next must fall back to home, got %q", out.Redirect)
	}
}

func TestSignInRejectsBadPassword(t *testing.T) {
	api := newTestAPI(t)
	resp := api.do(http.MethodPost, "/v1/auth/sign-in", map[string]any{"email": "partner@acme.test", "password": "wrong"}, "")
	expectStatus(t, resp, http.StatusUnauthorized)
	body := decode[map[string]any](t, resp)
	if body["retryable"] != false {
		t.Fatalf("body = %v", body)
	}
}

func TestSignOutRevokesToken(t *testing.T) {
	api := newTestAPI(t)
	token := api.signIn("client@acme.test")

	resp := api.do(http.MethodGet, "/v1/auth/session", nil, token)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = api.do(http.MethodPost, "/v1/auth/sign-out", nil, token)
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	resp = api.do(http.MethodGet, "/v1/auth/session", nil, token)
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()
}

func TestRoleAreasAreGuarded(t *testing.T) {
	api := newTestAPI(t)
	partner := api.signIn("partner@acme.test")
	client := api.signIn("client@acme.test")

	cases := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"anonymous admin", "/v1/admin/tenants", "", http.StatusUnauthorized},
		{"partner on admin", "/v1/admin/tenants", partner, http.StatusForbidden},
		{"client on partner", "/v1/partner/clients", client, http.StatusForbidden},
		{"partner on client", "/v1/client/cameras", partner, http.StatusForbidden},
		{"partner on partner", "/v1/partner/clients", partner, http.StatusOK},
		{"garbage token", "/v1/partner/clients", "not-a-token", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := api.do(http.MethodGet, tc.path, nil, tc.token)
			defer resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestPartnerDataStaysInOwnTenant(t *testing.T) {
	api := newTestAPI(t)
	token := api.signIn("partner@acme.test")

	resp := api.do(http.MethodGet, "/v1/partner/alerts", nil, token)
	expectStatus(t, resp, http.StatusOK)
	alerts := decode[[]monitor.Alert](t, resp)
	if len(alerts) != 2 {
		t.Fatalf("alerts = %+v", alerts)
	}
	for _, a := range alerts {
		if a.TenantID != "t1" {
			t.Fatalf("foreign alert leaked: %+v", a)
		}
	}

	resp = api.do(http.MethodGet, "/v1/partner/alerts?tenant=t2", nil, token)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = api.do(http.MethodGet, "/v1/partner/overview", nil, token)
	expectStatus(t, resp, http.StatusOK)
	overview := decode[monitor.PartnerOverview](t, resp)
	if overview.TenantID != "t1" || len(overview.Cameras) != 2 || len(overview.Clients) != 2 {
		t.Fatalf("overview = %+v", overview)
	}
}

func TestClientAcknowledgesOwnAlertOnly(t *testing.T) {
	api := newTestAPI(t)
	client := api.signIn("client@acme.test")
	partner := api.signIn("partner@acme.test")

	resp := api.do(http.MethodPost, "/v1/client/alerts/al2/ack", nil, client)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = api.do(http.MethodPost, "/v1/client/alerts/al1/ack", nil, client)
	expectStatus(t, resp, http.StatusOK)
	first := decode[monitor.Alert](t, resp)
	if !first.IsAcknowledged || first.AcknowledgedBy != "client" {
		t.Fatalf("ack = %+v", first)
	}

	resp = api.do(http.MethodPost, "/v1/partner/alerts/al1/ack", nil, partner)
	expectStatus(t, resp, http.StatusOK)
	again := decode[monitor.Alert](t, resp)
	if again.AcknowledgedBy != "client" {
		t.Fatalf("second acknowledgement overwrote the first: %+v", again)
	}

	resp = api.do(http.MethodGet, "/v1/client/alerts", nil, client)
	expectStatus(t, resp, http.StatusOK)
	if alerts := decode[[]monitor.Alert](t, resp); len(alerts) != 1 || alerts[0].ID != "al1" {
		t.Fatalf("client alerts = %+v", alerts)
	}
}

func TestAdminManagesTenants(t *testing.T) {
	api := newTestAPI(t)
	admin := api.signIn("admin@example.com")

	resp := api.do(http.MethodPost, "/v1/admin/tenants", map[string]any{"name": "Newco", "email": "ops@newco.test"}, admin)
	expectStatus(t, resp, http.StatusCreated)
	created := decode[monitor.Tenant](t, resp)
	if created.Status != monitor.TenantActive || created.Plan != monitor.PlanBasic {
		t.Fatalf("defaults not applied: %+v", created)
	}

	resp = api.do(http.MethodPatch, "/v1/admin/tenants/"+created.ID, map[string]any{"status": "suspended"}, admin)
	expectStatus(t, resp, http.StatusOK)
	if updated := decode[monitor.Tenant](t, resp); updated.Status != monitor.TenantSuspended || updated.Name != "Newco" {
		t.Fatalf("updated = %+v", updated)
	}

	resp = api.do(http.MethodPatch, "/v1/admin/tenants/"+created.ID, map[string]any{"plan": "gold"}, admin)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = api.do(http.MethodDelete, "/v1/admin/tenants/t2", nil, admin)
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	resp = api.do(http.MethodGet, "/v1/admin/tenants/t2", nil, admin)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = api.do(http.MethodGet, "/v1/admin/overview", nil, admin)
	expectStatus(t, resp, http.StatusOK)
	overview := decode[monitor.PlatformOverview](t, resp)
	if len(overview.Tenants) != 2 || len(overview.Sessions) == 0 {
		t.Fatalf("overview = %+v", overview)
	}

	var deleted bool
	for _, e := range api.store.AuditEntries() {
		if e.Action == "DELETE_TENANT" && e.ResourceID == "t2" && e.UserID == "admin" {
			deleted = true
		}
	}
	if !deleted {
		t.Fatalf("tenant deletion was not audited")
	}
}

func TestNavigationDecisions(t *testing.T) {
	api := newTestAPI(t)
	partner := api.signIn("partner@acme.test")

	nav := func(path, token string) access.Decision {
		t.Helper()
		resp := api.do(http.MethodGet, "/v1/navigation?path="+url.QueryEscape(path), nil, token)
		expectStatus(t, resp, http.StatusOK)
		return decode[access.Decision](t, resp)
	}

	if d := nav("/admin/tenants", ""); d.Outcome != access.OutcomeUnauthenticated || d.Location != "/login?next=%2Fadmin%2Ftenants" {
		t.Fatalf("anonymous = %+v", d)
	}
	if d := nav("/admin/tenants", partner); d.Outcome != access.OutcomeForbidden || d.Location != "/unauthorized" {
		t.Fatalf("partner on admin = %+v", d)
	}
	if d := nav("/partner/dashboard", partner); d.Outcome != access.OutcomeAllow {
		t.Fatalf("partner on partner = %+v", d)
	}
	if d := nav("/partner/dashboard", "expired"); d.Outcome != access.OutcomeUnauthenticated {
		t.Fatalf("bad token = %+v", d)
	}
}

func TestDomainsAndTenantDetection(t *testing.T) {
	api := newTestAPI(t)
	partner := api.signIn("partner@acme.test")

	resp := api.do(http.MethodPost, "/v1/partner/domains", map[string]any{"domain": "Cams.Acme.test"}, partner)
	expectStatus(t, resp, http.StatusCreated)
	first := decode[tenancy.Domain](t, resp)
	if !first.IsPrimary || first.Domain != "cams.acme.test" {
		t.Fatalf("first domain = %+v", first)
	}

	resp = api.do(http.MethodPost, "/v1/partner/domains", map[string]any{"subdomain": "acme.camguard.test"}, partner)
	expectStatus(t, resp, http.StatusCreated)
	second := decode[tenancy.Domain](t, resp)

	resp = api.do(http.MethodPost, "/v1/partner/domains/"+second.ID+"/primary", nil, partner)
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	resp = api.do(http.MethodGet, "/v1/partner/domains", nil, partner)
	expectStatus(t, resp, http.StatusOK)
	list := decode[domainsResponse](t, resp)
	if list.TenantURL != "https://acme.camguard.test" {
		t.Fatalf("tenant url = %q", list.TenantURL)
	}

	resp = api.do(http.MethodPut, "/v1/partner/branding", map[string]any{"primary_color": "#112233", "company_name": "Acme Watch"}, partner)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = api.do(http.MethodGet, "/v1/tenant?host=cams.acme.test", nil, "")
	expectStatus(t, resp, http.StatusOK)
	det := decode[tenantResponse](t, resp)
	if det.Detection.TenantID != "t1" || det.Theme.CompanyName != "Acme Watch" || det.Theme.Variables["--primary"] != "#112233" {
		t.Fatalf("detection = %+v", det)
	}

	resp = api.do(http.MethodGet, "/v1/tenant?host=localhost", nil, "")
	expectStatus(t, resp, http.StatusOK)
	det = decode[tenantResponse](t, resp)
	if det.Detection.Found() || det.Theme.CompanyName != tenancy.DefaultCompanyName {
		t.Fatalf("platform host = %+v", det)
	}
}

func TestCreateUserFunction(t *testing.T) {
	api := newTestAPI(t)
	partner := api.signIn("partner@acme.test")

	resp := api.do(http.MethodPost, "/v1/functions/create-user", map[string]any{
		"email":      "new.client@acme.test",
		"fullName":   "New Client",
		"role":       "client_user",
		"clientData": map[string]any{"name": "Cafe", "type": "pf"},
	}, partner)
	expectStatus(t, resp, http.StatusOK)
	created := decode[provision.Response](t, resp)
	if !created.Success || created.User.TenantID != "t1" || len(created.Password) != 12 {
		t.Fatalf("created = %+v", created)
	}

	login := api.do(http.MethodPost, "/v1/auth/sign-in", map[string]any{"email": "new.client@acme.test", "password": created.Password}, "")
	expectStatus(t, login, http.StatusOK)
	token := decode[signInResponse](t, login).Token
	resp = api.do(http.MethodGet, "/v1/client/overview", nil, token)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = api.do(http.MethodPost, "/v1/functions/create-user", map[string]any{
		"email": "p2@acme.test", "fullName": "P2", "role": "partner_admin", "tenantId": "t1",
	}, partner)
	expectStatus(t, resp, http.StatusForbidden)
	body := decode[map[string]any](t, resp)
	if body["success"] != false || body["error"] == "" {
		t.Fatalf("body = %v", body)
	}

	resp = api.do(http.MethodPost, "/v1/functions/create-user", map[string]any{
		"email": "new.client@acme.test", "fullName": "Dup", "role": "client_user",
	}, partner)
	expectStatus(t, resp, http.StatusConflict)
	resp.Body.Close()
}

func TestClientAlertStream(t *testing.T) {
	api := newTestAPI(t)
	token := api.signIn("client@acme.test")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, api.baseURL+"/v1/client/alerts/stream?access_token="+token, nil)
	resp, err := api.client.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil || !strings.HasPrefix(line, ": stream started") {
		t.Fatalf("first line = %q, %v", line, err)
	}

	// Sibling alert first: it must not reach this subscriber.
	for _, cam := range []string{"cam2", "cam1"} {
		if _, err := api.monitor.IngestAlert(context.Background(), monitor.AlertInput{
			TenantID: "t1", CameraID: cam, Type: "person_detected", Severity: "medium", Message: "seen on " + cam,
		}); err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}

	var event, data string
	for data == "" {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
	if event != string(monitor.AlertCreated) {
		t.Fatalf("event = %q", event)
	}
	var got monitor.Alert
	if err := json.Unmarshal([]byte(data), &got); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if got.CameraID != "cam1" || got.ClientID != "c1" {
		t.Fatalf("streamed alert = %+v", got)
	}
}

func TestReadyReportsFailingCheck(t *testing.T) {
	api := New(Deps{Ready: ReadyProbe{Checks: []Check{{Name: "postgres", Fn: func(context.Context) error { return context.DeadlineExceeded }}}}})
	rr := httptest.NewRecorder()
	api.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable || !strings.Contains(rr.Body.String(), "postgres") {
		t.Fatalf("readyz = %d %s", rr.Code, rr.Body.String())
	}
}

func TestRoleStoreOutageIsRetryable(t *testing.T) {
	api := newTestAPI(t)
	partner := api.signIn("partner@acme.test")
	api.roles.Reset()
	api.roleStore.setOutage(errors.New("dial tcp: connection refused"))

	resp := api.do(http.MethodGet, "/v1/partner/cameras", nil, partner)
	expectStatus(t, resp, http.StatusServiceUnavailable)
	body := decode[map[string]any](t, resp)
	if body["retryable"] != true || body["request_id"] == "" {
		t.Fatalf("error body = %v", body)
	}

	api.roleStore.setOutage(nil)
	resp = api.do(http.MethodGet, "/v1/partner/cameras", nil, partner)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func TestRespondWritesEmptyListAsArray(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/partner/cameras", nil)
	var cameras []monitor.Camera
	respond(rec, req, cameras, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Fatalf("body = %s, want []", got)
	}
}

func TestDeleteTenantDropsCachedDetection(t *testing.T) {
	api := newTestAPI(t)
	admin := api.signIn("admin@example.com")
	partner := api.signIn("partner@acme.test")

	resp := api.do(http.MethodPost, "/v1/partner/domains", map[string]any{"domain": "cams.acme.test"}, partner)
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = api.do(http.MethodGet, "/v1/tenant?host=cams.acme.test", nil, "")
	expectStatus(t, resp, http.StatusOK)
	if det := decode[tenantResponse](t, resp); det.Detection.TenantID != "t1" {
		t.Fatalf("detection = %+v", det.Detection)
	}
	if !api.detections.has("cams.acme.test") {
		t.Fatalf("detection was not cached")
	}

	resp = api.do(http.MethodDelete, "/v1/admin/tenants/t1", nil, admin)
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()
	if api.detections.has("cams.acme.test") {
		t.Fatalf("deleted tenant's host is still cached")
	}

	resp = api.do(http.MethodGet, "/v1/tenant?host=cams.acme.test", nil, "")
	expectStatus(t, resp, http.StatusOK)
	if det := decode[tenantResponse](t, resp); det.Detection.Found() {
		t.Fatalf("deleted tenant still detected: %+v", det.Detection)
	}
	if got := api.roles.State("partner"); got != access.StateUnloaded {
		t.Fatalf("role cache state = %s after tenant delete", got)
	}
}
