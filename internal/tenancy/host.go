package tenancy

import (
	"fmt"
	"net"
	"strings"
)

// NormalizeHost lower-cases host and strips any port and trailing dot.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	return strings.TrimSuffix(host, ".")
}

func validateHostname(host string) error {
	if len(host) > 253 {
		return fmt.Errorf("%w: hostname too long", ErrInvalidInput)
	}
	labels := strings.Split(host, ".")
	for _, label := range labels {
		if label == "" || len(label) > 63 {
			return fmt.Errorf("%w: invalid hostname %q", ErrInvalidInput, host)
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return fmt.Errorf("%w: invalid hostname %q", ErrInvalidInput, host)
		}
		for _, r := range label {
			if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
				return fmt.Errorf("%w: invalid hostname %q", ErrInvalidInput, host)
			}
		}
	}
	return nil
}
