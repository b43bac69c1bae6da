package main

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"

	"github.com/wrale/oauth2-login/internal/login"
	"github.com/wrale/oauth2-login/internal/validation"
)

const envPrefix = "OAUTH_LOGIN"

// Config holds command configuration. Environment variables provide the
// defaults and flags override them.
type Config struct {
	ClientID        string        `envconfig:"CLIENT_ID"`
	ClientSecret    string        `envconfig:"CLIENT_SECRET"`
	RedirectURI     string        `envconfig:"REDIRECT_URI"`
	Scopes          string        `envconfig:"SCOPES" default:"read_thermostat+write_thermostat"`
	Port            int           `envconfig:"PORT" default:"9090"`
	Host            string        `envconfig:"HOST" default:"127.0.0.1"`
	Provider        string        `envconfig:"PROVIDER_NAME" default:"Netatmo"`
	AuthURL         string        `envconfig:"AUTH_URL" default:"https://api.netatmo.com/oauth2/authorize"`
	TokenURL        string        `envconfig:"TOKEN_URL" default:"https://api.netatmo.com/oauth2/token"`
	Timeout         time.Duration `envconfig:"TIMEOUT" default:"10m"`
	ExchangeTimeout time.Duration `envconfig:"EXCHANGE_TIMEOUT" default:"30s"`
	VerifyState     bool          `envconfig:"VERIFY_STATE" default:"true"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
}

// loadConfig reads the environment, after loading envFiles (".env" when none
// are given). Missing env files are ignored.
func loadConfig(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// bindFlags registers the command line flags, using the loaded values as defaults
func (c *Config) bindFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&c.ClientID, "client", "c", c.ClientID, "OAuth2 client ID (required)")
	flags.StringVarP(&c.ClientSecret, "secret", "s", c.ClientSecret, "OAuth2 client secret (required)")
	flags.StringVarP(&c.RedirectURI, "redirect", "r", c.RedirectURI, "redirect URI (default http://<host>:<port>)")
	flags.StringVarP(&c.Scopes, "scopes", "o", c.Scopes, "scopes, separated by '+' or spaces")
	flags.IntVarP(&c.Port, "port", "p", c.Port, "callback listener port")
	flags.StringVarP(&c.Host, "host", "H", c.Host, "callback listener address")
	flags.StringVar(&c.Provider, "provider", c.Provider, "provider name shown in the banner")
	flags.StringVar(&c.AuthURL, "auth-url", c.AuthURL, "provider authorization endpoint")
	flags.StringVar(&c.TokenURL, "token-url", c.TokenURL, "provider token endpoint")
	flags.DurationVar(&c.Timeout, "timeout", c.Timeout, "how long to wait for the callback (0 waits forever)")
	flags.DurationVar(&c.ExchangeTimeout, "exchange-timeout", c.ExchangeTimeout, "timeout for the token request")
	flags.BoolVar(&c.VerifyState, "verify-state", c.VerifyState, "reject callbacks whose state differs from the generated one")
	flags.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (debug, info, warn, error)")
}

// loginConfig converts the command configuration into the immutable login settings.
// Provider settings set to empty strings fall back to the Netatmo defaults.
func (c Config) loginConfig() login.Config {
	return login.Config{
		ClientID:        c.ClientID,
		ClientSecret:    c.ClientSecret,
		RedirectURI:     c.RedirectURI,
		Scopes:          orDefault(validation.NormalizeScopes(c.Scopes), login.DefaultScopes),
		Host:            c.Host,
		Port:            c.Port,
		Provider:        orDefault(c.Provider, login.DefaultProvider),
		AuthURL:         orDefault(c.AuthURL, login.DefaultAuthURL),
		TokenURL:        orDefault(c.TokenURL, login.DefaultTokenURL),
		CallbackTimeout: c.Timeout,
		ExchangeTimeout: c.ExchangeTimeout,
		VerifyState:     c.VerifyState,
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
