package memory

import (
	"context"
	"time"

	"camguard.dev/internal/auth"
	"camguard.dev/internal/monitor"
)

func (s *Store) ListTenants(context.Context) ([]monitor.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]monitor.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, t)
	}
	sortByCreatedDesc(out, func(t monitor.Tenant) time.Time { return t.CreatedAt })
	return out, nil
}

func (s *Store) GetTenant(_ context.Context, id string) (monitor.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return monitor.Tenant{}, monitor.ErrNotFound
	}
	return t, nil
}

func (s *Store) CreateTenant(_ context.Context, t monitor.Tenant) (monitor.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[t.ID]; ok {
		return monitor.Tenant{}, monitor.ErrConflict
	}
	s.tenants[t.ID] = t
	return t, nil
}

func (s *Store) UpdateTenant(_ context.Context, id string, p monitor.TenantPatch, at time.Time) (monitor.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return monitor.Tenant{}, monitor.ErrNotFound
	}
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&t.Name, p.Name)
	set(&t.Email, p.Email)
	set(&t.Phone, p.Phone)
	set(&t.Address, p.Address)
	set(&t.Plan, p.Plan)
	set(&t.Status, p.Status)
	t.UpdatedAt = at
	s.tenants[id] = t
	return t, nil
}

// DeleteTenant removes the tenant and every row hanging off it, mirroring the
// cascading foreign keys of the schema.
func (s *Store) DeleteTenant(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[id]; !ok {
		return monitor.ErrNotFound
	}
	delete(s.tenants, id)
	delete(s.stats, id)
	delete(s.branding, id)
	for k, v := range s.clients {
		if v.TenantID == id {
			delete(s.clients, k)
		}
	}
	for k, v := range s.cameras {
		if v.TenantID == id {
			delete(s.cameras, k)
		}
	}
	for k, v := range s.alerts {
		if v.TenantID == id {
			delete(s.alerts, k)
		}
	}
	for k, v := range s.licenses {
		if v.TenantID == id {
			delete(s.licenses, k)
		}
	}
	for k, v := range s.ipAuths {
		if v.TenantID == id {
			delete(s.ipAuths, k)
		}
	}
	for k, v := range s.domains {
		if v.TenantID == id {
			delete(s.domains, k)
		}
	}
	kept := s.assignments[:0]
	for _, a := range s.assignments {
		if a.TenantID != id {
			kept = append(kept, a)
		}
	}
	s.assignments = kept
	for k, v := range s.sessions {
		if v.TenantID == id {
			v.TenantID = ""
			s.sessions[k] = v
		}
	}
	return nil
}

func (s *Store) ListLicenses(context.Context) ([]monitor.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]monitor.License, 0, len(s.licenses))
	for _, l := range s.licenses {
		out = append(out, l)
	}
	sortByCreatedDesc(out, func(l monitor.License) time.Time { return l.CreatedAt })
	return out, nil
}

func (s *Store) ListIPAuthorizations(context.Context) ([]monitor.IPAuthorization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]monitor.IPAuthorization, 0, len(s.ipAuths))
	for _, ip := range s.ipAuths {
		out = append(out, ip)
	}
	sortByCreatedDesc(out, func(ip monitor.IPAuthorization) time.Time { return ip.CreatedAt })
	return out, nil
}

func (s *Store) ListActiveSessions(context.Context) ([]auth.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []auth.Session
	for _, sess := range s.sessions {
		if sess.IsActive {
			out = append(out, sess)
		}
	}
	sortByCreatedDesc(out, func(sess auth.Session) time.Time { return sess.LastActivity })
	return out, nil
}

func (s *Store) ListClients(_ context.Context, tenantID string) ([]monitor.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []monitor.Client
	for _, c := range s.clients {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	sortByCreatedDesc(out, func(c monitor.Client) time.Time { return c.CreatedAt })
	return out, nil
}

func (s *Store) FindClientByUser(_ context.Context, tenantID, userID string) (monitor.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		if c.TenantID == tenantID && c.UserID == userID && userID != "" {
			return c, nil
		}
	}
	return monitor.Client{}, monitor.ErrNotFound
}

func (s *Store) DeleteClient(_ context.Context, tenantID, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[clientID]
	if !ok || c.TenantID != tenantID {
		return monitor.ErrNotFound
	}
	delete(s.clients, clientID)
	for k, v := range s.cameras {
		if v.ClientID == clientID {
			delete(s.cameras, k)
		}
	}
	for k, v := range s.alerts {
		if v.ClientID == clientID {
			delete(s.alerts, k)
		}
	}
	return nil
}

func (s *Store) GetCamera(_ context.Context, tenantID, cameraID string) (monitor.Camera, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cameras[cameraID]
	if !ok || c.TenantID != tenantID {
		return monitor.Camera{}, monitor.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListCameras(_ context.Context, f monitor.CameraFilter) ([]monitor.Camera, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []monitor.Camera
	for _, c := range s.cameras {
		if c.TenantID != f.TenantID || (f.ClientID != "" && c.ClientID != f.ClientID) {
			continue
		}
		out = append(out, c)
	}
	sortByCreatedDesc(out, func(c monitor.Camera) time.Time { return c.CreatedAt })
	return out, nil
}

func (s *Store) ListAlerts(_ context.Context, f monitor.AlertFilter) ([]monitor.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []monitor.Alert
	for _, a := range s.alerts {
		if a.TenantID != f.TenantID || (f.ClientID != "" && a.ClientID != f.ClientID) {
			continue
		}
		out = append(out, a)
	}
	sortByCreatedDesc(out, func(a monitor.Alert) time.Time { return a.CreatedAt })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) GetAlert(_ context.Context, tenantID, alertID string) (monitor.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[alertID]
	if !ok || a.TenantID != tenantID {
		return monitor.Alert{}, monitor.ErrNotFound
	}
	return a, nil
}

func (s *Store) InsertAlert(_ context.Context, a monitor.Alert) (monitor.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[a.ID]; ok {
		return monitor.Alert{}, monitor.ErrConflict
	}
	s.alerts[a.ID] = a
	return a, nil
}

func (s *Store) AcknowledgeAlert(_ context.Context, tenantID, alertID, userID string, at time.Time) (monitor.Alert, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[alertID]
	if !ok || a.TenantID != tenantID {
		return monitor.Alert{}, false, monitor.ErrNotFound
	}
	if a.IsAcknowledged {
		return a, false, nil
	}
	a.IsAcknowledged = true
	a.AcknowledgedBy = userID
	a.AcknowledgedAt = &at
	s.alerts[alertID] = a
	return a, true, nil
}

func (s *Store) TenantStats(_ context.Context, tenantID string) (monitor.TenantStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stats[tenantID]
	if !ok {
		return monitor.TenantStats{}, monitor.ErrNotFound
	}
	return st, nil
}
