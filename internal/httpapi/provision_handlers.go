package httpapi

import (
	"net/http"

	"camguard.dev/internal/provision"
)

// handleCreateUser serves the provisioning function. Failures keep the
// {success:false, error} envelope its clients expect.
func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if a.deps.Provision == nil {
		writeError(w, r, http.StatusServiceUnavailable, "provisioning is not configured")
		return
	}
	var req provision.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeProvisionError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, _ := callerFrom(r.Context())
	resp, err := a.deps.Provision.CreateUser(r.Context(), c, req)
	if err != nil {
		code, msg := statusFor(err)
		writeProvisionError(w, r, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeProvisionError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	failed := false
	writeJSON(w, code, errorBody{
		Success:   &failed,
		Error:     msg,
		Retryable: code == http.StatusServiceUnavailable,
		RequestID: RequestIDFromContext(r.Context()),
	})
}
