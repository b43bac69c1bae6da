package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wrale/oauth2-login/internal/validation"
)

func testConfig(tokenURL string) Config {
	return Config{
		ClientID:     "client-123",
		ClientSecret: "secret-456",
		RedirectURI:  "http://127.0.0.1:9090",
		Scopes:       "read_thermostat write_thermostat",
		AuthURL:      "https://api.netatmo.com/oauth2/authorize",
		TokenURL:     tokenURL,
		Timeout:      2 * time.Second,
	}
}

func TestNewClient_Validation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{
			name:   "missing client id",
			modify: func(c *Config) { c.ClientID = "" },
			field:  "client ID",
		},
		{
			name:   "missing client secret",
			modify: func(c *Config) { c.ClientSecret = "" },
			field:  "client secret",
		},
		{
			name:   "relative token url",
			modify: func(c *Config) { c.TokenURL = "/oauth2/token" },
			field:  "token URL",
		},
		{
			name:   "missing redirect uri",
			modify: func(c *Config) { c.RedirectURI = "" },
			field:  "redirect URI",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("https://api.netatmo.com/oauth2/token")
			tt.modify(&cfg)

			_, err := NewClient(cfg)
			var vErr *validation.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("NewClient() error = %v, want *validation.ValidationError", err)
			}
			if vErr.Field != tt.field {
				t.Errorf("ValidationError.Field = %q, want %q", vErr.Field, tt.field)
			}
		})
	}
}

func TestClient_AuthorizationURL(t *testing.T) {
	client, err := NewClient(testConfig("https://api.netatmo.com/oauth2/token"))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	first, err := client.NewAuthorizationRequest()
	if err != nil {
		t.Fatalf("NewAuthorizationRequest() error = %v", err)
	}
	second, err := client.NewAuthorizationRequest()
	if err != nil {
		t.Fatalf("NewAuthorizationRequest() error = %v", err)
	}

	if first.State == "" {
		t.Fatal("NewAuthorizationRequest() returned empty state")
	}
	if first.State == second.State {
		t.Errorf("two requests share state %q", first.State)
	}

	u, err := url.Parse(first.URL)
	if err != nil {
		t.Fatalf("parsing authorization URL: %v", err)
	}
	if got := u.Scheme + "://" + u.Host + u.Path; got != "https://api.netatmo.com/oauth2/authorize" {
		t.Errorf("authorization endpoint = %q", got)
	}

	want := map[string]string{
		"client_id":     "client-123",
		"redirect_uri":  "http://127.0.0.1:9090",
		"scope":         "read_thermostat write_thermostat",
		"state":         first.State,
		"response_type": "code",
	}
	got := make(map[string]string)
	for k := range u.Query() {
		got[k] = u.Query().Get(k)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("authorization URL query mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_AuthorizationURL_EncodesReservedCharacters(t *testing.T) {
	cfg := testConfig("https://api.netatmo.com/oauth2/token")
	cfg.RedirectURI = "https://example.com/cb?x=1&y=2"
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	u, err := url.Parse(client.AuthorizationURL("s"))
	if err != nil {
		t.Fatalf("parsing authorization URL: %v", err)
	}
	if got := u.Query().Get("redirect_uri"); got != cfg.RedirectURI {
		t.Errorf("redirect_uri = %q, want %q", got, cfg.RedirectURI)
	}
	if got := u.Query().Get("y"); got != "" {
		t.Errorf("redirect URI leaked into outer query: y=%q", got)
	}
}

func TestClient_ExchangeCode(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		wantToken   *Token
		wantKind    error
		wantStatus  int
		wantBody    bool
	}{
		{
			name:        "success",
			status:      http.StatusOK,
			contentType: "application/json",
			body:        `{"access_token":"A","refresh_token":"R","expires_in":600}`,
			wantToken:   &Token{AccessToken: "A", RefreshToken: "R", ExpiresIn: 600},
		},
		{
			name:        "success with token type",
			status:      http.StatusOK,
			contentType: "application/json; charset=utf-8",
			body:        `{"access_token":"A","refresh_token":"R","expires_in":10800,"token_type":"bearer","scope":["read_thermostat"]}`,
			wantToken:   &Token{AccessToken: "A", TokenType: "bearer", RefreshToken: "R", ExpiresIn: 10800},
		},
		{
			name:        "unauthorized",
			status:      http.StatusUnauthorized,
			contentType: "application/json",
			body:        `{"error":"invalid_client"}`,
			wantKind:    ErrTokenRequestFailed,
			wantStatus:  http.StatusUnauthorized,
			wantBody:    true,
		},
		{
			name:        "invalid grant",
			status:      http.StatusBadRequest,
			contentType: "application/json",
			body:        `{"error":"invalid_grant","error_description":"code expired"}`,
			wantKind:    ErrInvalidGrant,
			wantStatus:  http.StatusBadRequest,
			wantBody:    true,
		},
		{
			name:        "server error with plain body",
			status:      http.StatusInternalServerError,
			contentType: "text/plain",
			body:        "upstream down",
			wantKind:    ErrTokenRequestFailed,
			wantStatus:  http.StatusInternalServerError,
			wantBody:    true,
		},
		{
			name:        "unparseable json",
			status:      http.StatusOK,
			contentType: "application/json",
			body:        `{"access_token":`,
			wantKind:    ErrInvalidTokenResponse,
			wantStatus:  http.StatusOK,
		},
		{
			name:        "missing access token",
			status:      http.StatusOK,
			contentType: "application/json",
			body:        `{"refresh_token":"R"}`,
			wantKind:    ErrInvalidTokenResponse,
			wantStatus:  http.StatusOK,
		},
		{
			name:        "missing refresh token",
			status:      http.StatusOK,
			contentType: "application/json",
			body:        `{"access_token":"A","expires_in":600}`,
			wantKind:    ErrInvalidTokenResponse,
			wantStatus:  http.StatusOK,
		},
		{
			name:        "missing expires_in",
			status:      http.StatusOK,
			contentType: "application/json",
			body:        `{"access_token":"A","refresh_token":"R"}`,
			wantKind:    ErrInvalidTokenResponse,
			wantStatus:  http.StatusOK,
		},
		{
			name:        "created with token",
			status:      http.StatusCreated,
			contentType: "application/json",
			body:        `{"access_token":"A","refresh_token":"R","expires_in":600}`,
			wantKind:    ErrTokenRequestFailed,
			wantStatus:  http.StatusCreated,
		},
		{
			name:        "no content",
			status:      http.StatusNoContent,
			contentType: "application/json",
			wantKind:    ErrTokenRequestFailed,
			wantStatus:  http.StatusNoContent,
		},
		{
			name:        "accepted with plain body",
			status:      http.StatusAccepted,
			contentType: "text/plain",
			body:        "queued",
			wantKind:    ErrTokenRequestFailed,
			wantStatus:  http.StatusAccepted,
			wantBody:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotForm url.Values
			var gotContentType string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotContentType = r.Header.Get("Content-Type")
				if err := r.ParseForm(); err != nil {
					t.Errorf("parsing token request: %v", err)
				}
				gotForm = r.PostForm
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client, err := NewClient(testConfig(srv.URL))
			if err != nil {
				t.Fatalf("NewClient() error = %v", err)
			}

			token, err := client.ExchangeCode(context.Background(), "code-789")

			wantForm := url.Values{
				"grant_type":    {"authorization_code"},
				"client_id":     {"client-123"},
				"client_secret": {"secret-456"},
				"code":          {"code-789"},
				"redirect_uri":  {"http://127.0.0.1:9090"},
				"scope":         {"read_thermostat write_thermostat"},
			}
			if diff := cmp.Diff(wantForm, gotForm); diff != "" {
				t.Errorf("token request body mismatch (-want +got):\n%s", diff)
			}
			if gotContentType != "application/x-www-form-urlencoded" {
				t.Errorf("token request Content-Type = %q", gotContentType)
			}

			if tt.wantKind == nil {
				if err != nil {
					t.Fatalf("ExchangeCode() error = %v", err)
				}
				if diff := cmp.Diff(tt.wantToken, token); diff != "" {
					t.Errorf("ExchangeCode() token mismatch (-want +got):\n%s", diff)
				}
				return
			}

			if token != nil {
				t.Errorf("ExchangeCode() token = %+v, want nil", token)
			}
			if !errors.Is(err, tt.wantKind) {
				t.Fatalf("ExchangeCode() error = %v, want %v", err, tt.wantKind)
			}
			var reqErr *RequestError
			if !errors.As(err, &reqErr) {
				t.Fatalf("ExchangeCode() error type = %T, want *RequestError", err)
			}
			if reqErr.StatusCode != tt.wantStatus {
				t.Errorf("RequestError.StatusCode = %d, want %d", reqErr.StatusCode, tt.wantStatus)
			}
			if tt.wantBody && !strings.Contains(err.Error(), strings.TrimSpace(tt.body)) {
				t.Errorf("error %q does not include response body %q", err, tt.body)
			}
			if !tt.wantBody && strings.Contains(err.Error(), `"A"`) {
				t.Errorf("error %q leaks the access token", err)
			}
		})
	}
}

func TestClient_ExchangeCode_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	tokenURL := srv.URL
	srv.Close()

	client, err := NewClient(testConfig(tokenURL))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	token, err := client.ExchangeCode(context.Background(), "code")
	if token != nil {
		t.Errorf("ExchangeCode() token = %+v, want nil", token)
	}
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("ExchangeCode() error = %v, want %v", err, ErrProviderUnavailable)
	}
}

func TestClient_ExchangeCode_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := testConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = client.ExchangeCode(context.Background(), "code")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("ExchangeCode() error = %v, want %v", err, ErrProviderUnavailable)
	}
}

func TestRequestError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := &RequestError{Kind: ErrProviderUnavailable, Err: cause}

	if want := "oauth provider unavailable: dial tcp: connection refused"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Error("errors.Is(err, ErrProviderUnavailable) = false")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false")
	}

	err = &RequestError{Kind: ErrTokenRequestFailed, StatusCode: 401, Body: `{"error":"invalid_client"}`}
	if want := `token request failed: status 401: {"error":"invalid_client"}`; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
