// Package login runs one interactive authorization code login
package login

import (
	"net"
	"strconv"
	"time"

	"github.com/wrale/oauth2-login/internal/validation"
)

// Default provider settings, used when the command leaves them empty
const (
	DefaultProvider = "Netatmo"
	DefaultAuthURL  = "https://api.netatmo.com/oauth2/authorize"
	DefaultTokenURL = "https://api.netatmo.com/oauth2/token"
	DefaultScopes   = "read_thermostat write_thermostat"
)

// Config is the resolved login configuration. It is built once at startup and
// passed by value; nothing re-derives it afterwards.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string // Derived from Host and the bound port when empty
	Scopes       string // Space-delimited

	Host string
	Port int

	Provider string
	AuthURL  string
	TokenURL string

	CallbackTimeout time.Duration // Zero waits indefinitely
	ExchangeTimeout time.Duration
	VerifyState     bool
}

// Validate checks the configuration before any network activity
func (c Config) Validate() error {
	if err := validation.RequireValue("client ID", c.ClientID); err != nil {
		return err
	}
	if err := validation.RequireValue("client secret", c.ClientSecret); err != nil {
		return err
	}
	if err := validation.ValidateRedirectURI(c.RedirectURI); err != nil {
		return err
	}
	if err := validation.ValidateHost(c.Host); err != nil {
		return err
	}
	if err := validation.ValidatePort(c.Port); err != nil {
		return err
	}
	if err := validation.ValidateURL("authorization URL", c.AuthURL); err != nil {
		return err
	}
	if err := validation.ValidateURL("token URL", c.TokenURL); err != nil {
		return err
	}
	return nil
}

// BindAddress returns the host:port the callback listener binds
func (c Config) BindAddress() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ResolveRedirectURI returns explicit verbatim, or http://host:port otherwise
func ResolveRedirectURI(explicit, host string, port int) string {
	if explicit != "" {
		return explicit
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}
