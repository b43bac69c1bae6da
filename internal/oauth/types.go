// Package oauth implements the authorization code grant against a single provider
package oauth

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Errors returned by ExchangeCode. Each is wrapped in a *RequestError.
var (
	ErrInvalidGrant         = errors.New("invalid grant")
	ErrTokenRequestFailed   = errors.New("token request failed")
	ErrInvalidTokenResponse = errors.New("invalid token response")
	ErrProviderUnavailable  = errors.New("oauth provider unavailable")
)

// Token is the provider's answer to a successful code exchange
type Token struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type,omitempty"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"` // Seconds, as reported by the provider
}

// AuthorizationRequest is the URL the user opens and the state embedded in it
type AuthorizationRequest struct {
	State string
	URL   string
}

// Config holds the client registration and provider endpoints
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       string // Space-delimited
	AuthURL      string
	TokenURL     string
	Timeout      time.Duration
}

// RequestError describes a failed token request.
// Kind is one of the package sentinels; StatusCode and Body are set when the
// provider answered.
type RequestError struct {
	Kind       error
	StatusCode int
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	} else if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *RequestError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
