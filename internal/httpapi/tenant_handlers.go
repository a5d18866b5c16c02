package httpapi

import (
	"net/http"

	"camguard.dev/internal/monitor"
	"camguard.dev/internal/tenancy"
)

type tenantResponse struct {
	Detection tenancy.Detection `json:"detection"`
	Theme     tenancy.Theme     `json:"theme"`
}

// handleTenant detects the tenant serving the request host. ?host= overrides
// the Host header for clients that call the API from another origin.
func (a *API) handleTenant(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")
	if host == "" {
		host = r.Host
	}
	var det tenancy.Detection
	if a.deps.Tenants != nil {
		det = a.deps.Tenants.Detect(r.Context(), host)
	}
	writeJSON(w, http.StatusOK, tenantResponse{Detection: det, Theme: tenancy.ThemeFor(det.Branding)})
}

// partnerTenantOrError picks the partner's tenant and writes the error itself.
func partnerTenantOrError(w http.ResponseWriter, r *http.Request) (string, bool) {
	c, _ := callerFrom(r.Context())
	tenantID, err := monitor.PartnerTenant(c, tenantHint(r))
	if err != nil {
		writeServiceError(w, r, err)
		return "", false
	}
	return tenantID, true
}

type domainsResponse struct {
	Domains   []tenancy.Domain `json:"domains"`
	TenantURL string           `json:"tenant_url"`
}

func (a *API) listDomains(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := partnerTenantOrError(w, r)
	if !ok {
		return
	}
	domains, err := a.deps.Domains.ListDomains(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	tenantURL, err := a.deps.Domains.TenantURL(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domainsResponse{Domains: domains, TenantURL: tenantURL})
}

func (a *API) addDomain(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := partnerTenantOrError(w, r)
	if !ok {
		return
	}
	var in tenancy.DomainInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	d, err := a.deps.Domains.AddDomain(r.Context(), tenantID, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (a *API) setPrimaryDomain(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := partnerTenantOrError(w, r)
	if !ok {
		return
	}
	if err := a.deps.Domains.SetPrimaryDomain(r.Context(), tenantID, r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type domainActiveRequest struct {
	IsActive bool `json:"is_active"`
}

func (a *API) setDomainActive(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := partnerTenantOrError(w, r)
	if !ok {
		return
	}
	var req domainActiveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	d, err := a.deps.Domains.SetDomainActive(r.Context(), tenantID, r.PathValue("id"), req.IsActive)
	respond(w, r, d, err)
}

type brandingResponse struct {
	Branding *tenancy.Branding `json:"branding"`
	Theme    tenancy.Theme     `json:"theme"`
}

func (a *API) getBranding(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := partnerTenantOrError(w, r)
	if !ok {
		return
	}
	b, err := a.deps.Domains.Branding(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, brandingResponse{Branding: b, Theme: tenancy.ThemeFor(b)})
}

func (a *API) putBranding(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := partnerTenantOrError(w, r)
	if !ok {
		return
	}
	var in tenancy.Branding
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	saved, err := a.deps.Domains.UpdateBranding(r.Context(), tenantID, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, brandingResponse{Branding: &saved, Theme: tenancy.ThemeFor(&saved)})
}
