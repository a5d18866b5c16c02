package monitor

import (
	"errors"
	"fmt"
)

var (
	ErrForbidden        = errors.New("monitor: forbidden")
	ErrTenantUnresolved = errors.New("monitor: tenant could not be resolved for caller")
	ErrClientUnresolved = errors.New("monitor: no client is bound to caller")
	ErrNotFound         = errors.New("monitor: not found")
	ErrConflict         = errors.New("monitor: conflict")
	ErrInvalidInput     = errors.New("monitor: invalid input")
	// ErrUnavailable wraps store failures; the request may be retried.
	ErrUnavailable = errors.New("monitor: data temporarily unavailable")
)

// Retryable reports whether err is a transient failure worth retrying.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// storeErr passes domain errors through and marks everything else retryable.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrInvalidInput) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
