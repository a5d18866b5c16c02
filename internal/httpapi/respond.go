package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"camguard.dev/internal/access"
	"camguard.dev/internal/auth"
	"camguard.dev/internal/monitor"
	"camguard.dev/internal/obs"
	"camguard.dev/internal/provision"
	"camguard.dev/internal/tenancy"
)

type errorBody struct {
	Success   *bool  `json:"success,omitempty"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, errorBody{
		Error:     msg,
		Retryable: code == http.StatusServiceUnavailable || code == http.StatusTooManyRequests,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// statusFor maps domain errors of every package to an HTTP status. Unknown
// errors are 500 and their text is not shown to the client.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, monitor.ErrUnavailable), errors.Is(err, provision.ErrUnavailable),
		errors.Is(err, access.ErrUnavailable), errors.Is(err, auth.ErrUnavailable),
		errors.Is(err, tenancy.ErrUnavailable):
		return http.StatusServiceUnavailable, "data temporarily unavailable, retry later"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid email or password"
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrSessionRevoked):
		return http.StatusUnauthorized, "session expired or revoked"
	case errors.Is(err, monitor.ErrForbidden), errors.Is(err, provision.ErrForbidden),
		errors.Is(err, access.ErrTenantForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, monitor.ErrTenantUnresolved), errors.Is(err, monitor.ErrClientUnresolved),
		errors.Is(err, access.ErrAmbiguousTenant), errors.Is(err, access.ErrNoTenant):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, monitor.ErrNotFound), errors.Is(err, tenancy.ErrNotFound),
		errors.Is(err, provision.ErrNotFound), errors.Is(err, auth.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, monitor.ErrConflict), errors.Is(err, tenancy.ErrConflict),
		errors.Is(err, provision.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, monitor.ErrInvalidInput), errors.Is(err, tenancy.ErrInvalidInput),
		errors.Is(err, provision.ErrInvalidInput), errors.Is(err, auth.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, "internal error"
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := statusFor(err)
	if code >= http.StatusInternalServerError {
		obs.Logger().Error("request failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, r, code, msg)
}

func parseLimit(raw string, def, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < 1 || val > max {
		return 0, errors.New("limit must be between 1 and " + strconv.Itoa(max))
	}
	return val, nil
}
