// Package memory keeps every table in process memory. It backs development
// runs without a database and the handler tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"camguard.dev/internal/access"
	"camguard.dev/internal/audit"
	"camguard.dev/internal/auth"
	"camguard.dev/internal/monitor"
	"camguard.dev/internal/provision"
	"camguard.dev/internal/tenancy"
)

var (
	_ access.AssignmentStore = (*Store)(nil)
	_ auth.UserStore         = (*Store)(nil)
	_ auth.SessionStore      = (*Store)(nil)
	_ tenancy.Store          = (*Store)(nil)
	_ monitor.Store          = (*Store)(nil)
	_ provision.Store        = (*Store)(nil)
	_ audit.Sink             = (*Store)(nil)
)

// Store is a mutex-guarded set of tables.
type Store struct {
	mu sync.RWMutex

	users       map[string]auth.User
	assignments []access.Assignment
	profiles    map[string]provision.Profile
	sessions    map[string]auth.Session

	tenants  map[string]monitor.Tenant
	clients  map[string]monitor.Client
	cameras  map[string]monitor.Camera
	alerts   map[string]monitor.Alert
	licenses map[string]monitor.License
	ipAuths  map[string]monitor.IPAuthorization
	stats    map[string]monitor.TenantStats

	domains  map[string]tenancy.Domain
	branding map[string]tenancy.Branding

	auditLog []audit.Entry
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:    make(map[string]auth.User),
		profiles: make(map[string]provision.Profile),
		sessions: make(map[string]auth.Session),
		tenants:  make(map[string]monitor.Tenant),
		clients:  make(map[string]monitor.Client),
		cameras:  make(map[string]monitor.Camera),
		alerts:   make(map[string]monitor.Alert),
		licenses: make(map[string]monitor.License),
		ipAuths:  make(map[string]monitor.IPAuthorization),
		stats:    make(map[string]monitor.TenantStats),
		domains:  make(map[string]tenancy.Domain),
		branding: make(map[string]tenancy.Branding),
	}
}

// ---- seeding ----

// SeedUser inserts a user with its role assignments.
func (s *Store) SeedUser(u auth.User, as ...access.Assignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Email = strings.ToLower(u.Email)
	s.users[u.ID] = u
	for _, a := range as {
		a.UserID = u.ID
		s.assignments = append(s.assignments, a)
	}
}

// SeedTenant inserts a tenant.
func (s *Store) SeedTenant(t monitor.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.ID] = t
}

// SeedClient inserts a client.
func (s *Store) SeedClient(c monitor.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ID] = c
}

// SeedCamera inserts a camera.
func (s *Store) SeedCamera(c monitor.Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cameras[c.ID] = c
}

// SeedLicense inserts a license.
func (s *Store) SeedLicense(l monitor.License) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.licenses[l.ID] = l
}

// SeedIPAuthorization inserts an IP authorization.
func (s *Store) SeedIPAuthorization(ip monitor.IPAuthorization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ipAuths[ip.ID] = ip
}

// SeedStats inserts a tenant summary.
func (s *Store) SeedStats(st monitor.TenantStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[st.TenantID] = st
}

// AuditEntries returns a copy of the audit log.
func (s *Store) AuditEntries() []audit.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Entry, len(s.auditLog))
	copy(out, s.auditLog)
	return out
}

// ---- access / auth ----

func (s *Store) ListAssignments(_ context.Context, userID string) ([]access.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []access.Assignment
	for _, a := range s.assignments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(email)
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return auth.User{}, auth.ErrNotFound
}

func (s *Store) CreateSession(_ context.Context, sess auth.Session) (auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[sess.UserID]; !ok {
		return auth.Session{}, auth.ErrNotFound
	}
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *Store) FindSession(_ context.Context, id string) (auth.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return auth.Session{}, auth.ErrNotFound
	}
	return sess, nil
}

func (s *Store) DeactivateSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return auth.ErrNotFound
	}
	sess.IsActive = false
	s.sessions[id] = sess
	return nil
}

func (s *Store) TouchSession(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return auth.ErrNotFound
	}
	sess.LastActivity = at
	s.sessions[id] = sess
	return nil
}

// ---- audit ----

func (s *Store) AppendAudit(_ context.Context, e audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLog = append(s.auditLog, e)
	return nil
}

// ---- provisioning ----

// Provision validates every row before writing any, so a rejected plan
// leaves the store untouched.
func (s *Store) Provision(_ context.Context, p provision.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == p.User.Email {
			return provision.ErrConflict
		}
	}
	tenantID := p.Assignment.TenantID
	if p.NewTenant != nil {
		if _, ok := s.tenants[p.NewTenant.ID]; ok {
			return provision.ErrConflict
		}
	} else if tenantID != "" {
		if _, ok := s.tenants[tenantID]; !ok {
			return provision.ErrNotFound
		}
	}

	if p.NewTenant != nil {
		s.tenants[p.NewTenant.ID] = *p.NewTenant
	}
	s.users[p.User.ID] = p.User
	s.assignments = append(s.assignments, p.Assignment)
	s.profiles[p.Profile.ID] = p.Profile
	if p.Client != nil {
		s.clients[p.Client.ID] = *p.Client
	}
	s.auditLog = append(s.auditLog, p.Audit)
	return nil
}

// ---- helpers ----

func sortByCreatedDesc[T any](items []T, created func(T) time.Time) {
	sort.SliceStable(items, func(i, j int) bool { return created(items[i]).After(created(items[j])) })
}
