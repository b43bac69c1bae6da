package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/wrale/oauth2-login/internal/state"
	"github.com/wrale/oauth2-login/internal/validation"
)

const defaultTimeout = 30 * time.Second

// Client builds authorization URLs and exchanges codes for one client registration
type Client struct {
	oauth  *oauth2.Config
	scopes string
	client *http.Client
}

// NewClient creates a client for the configured provider
func NewClient(cfg Config) (*Client, error) {
	// Validate required fields
	if err := validation.RequireValue("client ID", cfg.ClientID); err != nil {
		return nil, err
	}
	if err := validation.RequireValue("client secret", cfg.ClientSecret); err != nil {
		return nil, err
	}
	if err := validation.ValidateURL("authorization URL", cfg.AuthURL); err != nil {
		return nil, err
	}
	if err := validation.ValidateURL("token URL", cfg.TokenURL); err != nil {
		return nil, err
	}
	if err := validation.ValidateURL("redirect URI", cfg.RedirectURI); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       strings.Fields(cfg.Scopes),
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		scopes: strings.Join(strings.Fields(cfg.Scopes), " "),
		client: &http.Client{Timeout: timeout},
	}, nil
}

// NewAuthorizationRequest draws a fresh state and builds the URL the user must open
func (c *Client) NewAuthorizationRequest() (*AuthorizationRequest, error) {
	s, err := state.Generate()
	if err != nil {
		return nil, err
	}
	return &AuthorizationRequest{
		State: s,
		URL:   c.AuthorizationURL(s),
	}, nil
}

// AuthorizationURL builds the provider authorization URL for the given state
func (c *Client) AuthorizationURL(stateToken string) string {
	return c.oauth.AuthCodeURL(stateToken)
}

// ExchangeCode trades an authorization code for tokens with a single form POST
// carrying grant_type, client_id, client_secret, code, redirect_uri and scope.
// Only a 200 response holding access_token, refresh_token and expires_in
// yields a token.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	rec := newResponseRecorder(c.client.Transport)
	hc := *c.client
	hc.Transport = rec
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &hc)

	token, err := c.oauth.Exchange(ctx, code, oauth2.SetAuthURLParam("scope", c.scopes))
	if err != nil {
		return nil, classifyExchangeError(err, rec)
	}

	if rec.status != http.StatusOK {
		// Body omitted: it holds a token
		return nil, &RequestError{Kind: ErrTokenRequestFailed, StatusCode: rec.status}
	}
	if token.RefreshToken == "" {
		return nil, invalidTokenResponse(rec, errors.New("response missing refresh_token"))
	}
	expires, ok := expiresIn(token)
	if !ok {
		return nil, invalidTokenResponse(rec, errors.New("response missing expires_in"))
	}

	return &Token{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		RefreshToken: token.RefreshToken,
		ExpiresIn:    expires,
	}, nil
}

// classifyExchangeError maps x/oauth2 failures onto the package error kinds
func classifyExchangeError(err error, rec *responseRecorder) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		reqErr := &RequestError{
			Kind: ErrTokenRequestFailed,
			Body: strings.TrimSpace(string(retrieveErr.Body)),
			Err:  err,
		}
		if retrieveErr.Response != nil {
			reqErr.StatusCode = retrieveErr.Response.StatusCode
		}
		if retrieveErr.ErrorCode == "invalid_grant" {
			reqErr.Kind = ErrInvalidGrant
		}
		return reqErr
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &RequestError{Kind: ErrProviderUnavailable, Err: err}
	}

	// x/oauth2 accepts any 2xx; anything but 200 is a failed request
	if rec.status != 0 && rec.status != http.StatusOK {
		return &RequestError{
			Kind:       ErrTokenRequestFailed,
			StatusCode: rec.status,
			Body:       rec.Body(),
			Err:        err,
		}
	}

	return invalidTokenResponse(rec, fmt.Errorf("parsing token response: %w", err))
}

// invalidTokenResponse reports a 200 whose body held no usable token.
// The body is never included.
func invalidTokenResponse(rec *responseRecorder, err error) error {
	return &RequestError{
		Kind:       ErrInvalidTokenResponse,
		StatusCode: rec.status,
		Err:        err,
	}
}

// expiresIn reads the wire expires_in value
func expiresIn(token *oauth2.Token) (int, bool) {
	switch v := token.Extra("expires_in").(type) {
	case float64:
		return int(v), true
	case int64:
		return int(v), true
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n, true
		}
	}
	return 0, false
}
