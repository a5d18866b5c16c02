package httpapi

import (
	"net/http"
	"reflect"
	"strings"

	"camguard.dev/internal/monitor"
)

func tenantHint(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("tenant"))
}

// ---- super admin ----

func (a *API) listTenants(w http.ResponseWriter, r *http.Request) {
	c, _ := callerFrom(r.Context())
	out, err := a.deps.Monitor.ListTenants(r.Context(), c)
	respond(w, r, out, err)
}

func (a *API) getTenant(w http.ResponseWriter, r *http.Request) {
	c, _ := callerFrom(r.Context())
	out, err := a.deps.Monitor.GetTenant(r.Context(), c, r.PathValue("id"))
	respond(w, r, out, err)
}

func (a *API) createTenant(w http.ResponseWriter, r *http.Request) {
	var in monitor.TenantInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, _ := callerFrom(r.Context())
	t, err := a.deps.Monitor.CreateTenant(r.Context(), c, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/admin/tenants/"+t.ID)
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) updateTenant(w http.ResponseWriter, r *http.Request) {
	var patch monitor.TenantPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, _ := callerFrom(r.Context())
	out, err := a.deps.Monitor.UpdateTenant(r.Context(), c, r.PathValue("id"), patch)
	respond(w, r, out, err)
}

// deleteTenant removes the tenant, then drops cached host detections and
// role sets that still point at it. Hosts are collected first since the
// delete cascades to the domain rows.
func (a *API) deleteTenant(w http.ResponseWriter, r *http.Request) {
	c, _ := callerFrom(r.Context())
	id := r.PathValue("id")
	var hosts []string
	if a.deps.Domains != nil {
		hosts = a.deps.Domains.CachedHosts(r.Context(), id)
	}
	if err := a.deps.Monitor.DeleteTenant(r.Context(), c, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if a.deps.Domains != nil {
		a.deps.Domains.Forget(r.Context(), hosts...)
	}
	if a.deps.Roles != nil {
		a.deps.Roles.Reset()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) platformOverview(w http.ResponseWriter, r *http.Request) {
	c, _ := callerFrom(r.Context())
	out, err := a.deps.Monitor.PlatformOverview(r.Context(), c)
	respond(w, r, out, err)
}

func (a *API) listLicenses(w http.ResponseWriter, r *http.Request) {
	c, _ := callerFrom(r.Context())
	out, err := a.deps.Monitor.ListLicenses(r.Context(), c)
	respond(w, r, out, err)
}

func (a *API) listIPAuthorizations(w http.ResponseWriter, r *http.Request) {
	c, _ := callerFrom(r.Context())
	out, err := a.deps.Monitor.ListIPAuthorizations(r.Context(), c)
	respond(w, r, out, err)
}

func (a *API) listSessions(w http.ResponseWriter, r *http.Request) {
	c, _ := callerFrom(r.Context())
	out, err := a.deps.Monitor.ListActiveSessions(r.Context(), c)
	respond(w, r, out, err)
}

// ---- partner ----

func (a *API) partnerOverview(w http.ResponseWriter, r *http.Request) {
	c, _ := callerFrom(r.Context())
	out, err := a.deps.Monitor.PartnerOverview(r.Context(), c, tenantHint(r))
	respond(w, r, out, err)
}

func (a *API) partnerClients(w http.ResponseWriter, r *http.Request) {
	c, _ := callerFrom(r.Context())
	out, err := a.deps.Monitor.ListClients(r.Context(), c, tenantHint(r))
	respond(w, r, out, err)
}

func (a *API) deletePartnerClient(w http.ResponseWriter, r *http.Request) {
	c, _ := callerFrom(r.Context())
	if err := a.deps.Monitor.DeleteClient(r.Context(), c, tenantHint(r), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) partnerCameras(w http.ResponseWriter, r *http.Request) {
	c, _ := callerFrom(r.Context())
	out, err := a.deps.Monitor.ListCameras(r.Context(), c, tenantHint(r))
	respond(w, r, out, err)
}

func (a *API) partnerAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"), 50, 200)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, _ := callerFrom(r.Context())
	out, err := a.deps.Monitor.ListAlerts(r.Context(), c, tenantHint(r), limit)
	respond(w, r, out, err)
}

func (a *API) partnerStats(w http.ResponseWriter, r *http.Request) {
	c, _ := callerFrom(r.Context())
	out, err := a.deps.Monitor.TenantStats(r.Context(), c, tenantHint(r))
	respond(w, r, out, err)
}

func (a *API) ackPartnerAlert(w http.ResponseWriter, r *http.Request) {
	c, _ := callerFrom(r.Context())
	out, err := a.deps.Monitor.AcknowledgePartnerAlert(r.Context(), c, tenantHint(r), r.PathValue("id"))
	respond(w, r, out, err)
}

// ---- client ----

func (a *API) clientOverview(w http.ResponseWriter, r *http.Request) {
	c, _ := callerFrom(r.Context())
	out, err := a.deps.Monitor.ClientOverview(r.Context(), c, tenantHint(r))
	respond(w, r, out, err)
}

func (a *API) clientCameras(w http.ResponseWriter, r *http.Request) {
	c, _ := callerFrom(r.Context())
	out, err := a.deps.Monitor.ListClientCameras(r.Context(), c, tenantHint(r))
	respond(w, r, out, err)
}

func (a *API) clientAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"), 50, 200)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, _ := callerFrom(r.Context())
	out, err := a.deps.Monitor.ListClientAlerts(r.Context(), c, tenantHint(r), limit)
	respond(w, r, out, err)
}

func (a *API) ackClientAlert(w http.ResponseWriter, r *http.Request) {
	c, _ := callerFrom(r.Context())
	out, err := a.deps.Monitor.AcknowledgeClientAlert(r.Context(), c, tenantHint(r), r.PathValue("id"))
	respond(w, r, out, err)
}

// respond writes v as 200 or maps err. A nil slice is written as [].
func respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice && rv.IsNil() {
		v = []struct{}{}
	}
	writeJSON(w, http.StatusOK, v)
}
