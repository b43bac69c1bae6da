// Package validation checks and normalizes login configuration values
package validation

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Port bounds. Port 0 asks the kernel for a free port.
const (
	MinPort = 0
	MaxPort = 65535
)

// ValidationError represents an invalid configuration value
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Message)
}

// RequireValue rejects empty or whitespace-only values
func RequireValue(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Message: "value is required"}
	}
	return nil
}

// ValidatePort checks that port can be passed to a TCP listener
func ValidatePort(port int) error {
	if port < MinPort || port > MaxPort {
		return &ValidationError{
			Field:   "port",
			Value:   fmt.Sprint(port),
			Message: fmt.Sprintf("must be between %d and %d", MinPort, MaxPort),
		}
	}
	return nil
}

// ValidateHost checks that host is an IP literal or a plain hostname
func ValidateHost(host string) error {
	if host == "" {
		return &ValidationError{Field: "host", Message: "value is required"}
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	if strings.ContainsAny(host, "/:?#@ ") {
		return &ValidationError{Field: "host", Value: host, Message: "must be an IP address or hostname"}
	}
	return nil
}

// ValidateURL checks that raw is an absolute http(s) URL
func ValidateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return &ValidationError{Field: field, Value: raw, Message: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: field, Value: raw, Message: "scheme must be http or https"}
	}
	if u.Host == "" {
		return &ValidationError{Field: field, Value: raw, Message: "host is missing"}
	}
	return nil
}

// ValidateRedirectURI accepts an empty value (derived later) or an absolute URL
func ValidateRedirectURI(raw string) error {
	if raw == "" {
		return nil
	}
	return ValidateURL("redirect URI", raw)
}

// NormalizeScopes converts the "+"-delimited command line form into a
// space-delimited scope string and collapses repeated separators.
func NormalizeScopes(scopes string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(scopes, "+", " ")), " ")
}
