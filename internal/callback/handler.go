// Package callback receives the single OAuth2 redirect and exchanges its code
package callback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/wrale/oauth2-login/internal/oauth"
	"github.com/wrale/oauth2-login/internal/state"
	"github.com/wrale/oauth2-login/internal/templates"
)

const defaultExchangeTimeout = 30 * time.Second

var (
	// ErrMalformedCallback indicates a redirect without state or code
	ErrMalformedCallback = errors.New("malformed callback")

	// ErrAuthorizationDenied indicates the provider redirected with an error
	ErrAuthorizationDenied = errors.New("authorization denied")

	// ErrCallbackAborted indicates the claimed callback failed before producing an outcome
	ErrCallbackAborted = errors.New("callback handling aborted")
)

// ProviderError carries the error parameters of a failed authorization redirect
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("%v: %s", ErrAuthorizationDenied, e.Code)
	}
	return fmt.Sprintf("%v: %s: %s", ErrAuthorizationDenied, e.Code, e.Description)
}

func (e *ProviderError) Unwrap() error {
	return ErrAuthorizationDenied
}

// Exchanger trades an authorization code for tokens
type Exchanger interface {
	ExchangeCode(ctx context.Context, code string) (*oauth.Token, error)
}

// Params are the query parameters of the authorization redirect
type Params struct {
	State string
	Code  string
}

// Result is the outcome of the one handled callback.
// Token is nil whenever Err is set.
type Result struct {
	Params Params
	Token  *oauth.Token
	Err    error
}

// Config contains handler configuration
type Config struct {
	Exchanger       Exchanger
	State           state.Verifier
	Templates       *templates.Templates
	Console         io.Writer
	Logger          *zap.Logger
	ExchangeTimeout time.Duration
}

// Handler serves the redirect endpoint and hands over exactly one Result
type Handler struct {
	router          *chi.Mux
	exchanger       Exchanger
	state           state.Verifier
	templates       *templates.Templates
	console         io.Writer
	log             *zap.Logger
	exchangeTimeout time.Duration

	claimed atomic.Bool
	done    chan *Result
}

// NewHandler creates the callback handler
func NewHandler(cfg Config) *Handler {
	h := &Handler{
		router:          chi.NewRouter(),
		exchanger:       cfg.Exchanger,
		state:           cfg.State,
		templates:       cfg.Templates,
		console:         cfg.Console,
		log:             cfg.Logger,
		exchangeTimeout: cfg.ExchangeTimeout,
		done:            make(chan *Result, 1),
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	if h.console == nil {
		h.console = io.Discard
	}
	if h.exchangeTimeout <= 0 {
		h.exchangeTimeout = defaultExchangeTimeout
	}

	h.router.Use(middleware.Recoverer)
	h.router.Use(requestLogger(h.log))
	h.router.Use(middleware.NoCache)
	h.router.Get("/", h.handleCallback)

	return h
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Done delivers the result of the one handled callback
func (h *Handler) Done() <-chan *Result {
	return h.done
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := Params{
		State: q.Get("state"),
		Code:  q.Get("code"),
	}
	providerErr := q.Get("error")

	if params.State == "" {
		h.reject(w, http.StatusBadRequest, "Invalid Request", "missing state parameter", ErrMalformedCallback)
		return
	}
	if err := h.state.Verify(params.State); err != nil {
		h.reject(w, http.StatusBadRequest, "Invalid Request", "state does not match this login", err)
		return
	}
	if providerErr == "" && params.Code == "" {
		h.reject(w, http.StatusBadRequest, "Invalid Request", "missing code parameter", ErrMalformedCallback)
		return
	}

	if !h.claimed.CompareAndSwap(false, true) {
		h.reject(w, http.StatusConflict, "Login Already Handled", "this login has already received its callback", nil)
		return
	}

	// Exactly one result leaves the handler once claimed, even if a panic
	// unwinds through here to the Recoverer
	res := &Result{Params: params, Err: ErrCallbackAborted}
	defer func() { h.done <- res }()

	// The provider refused; nothing will ever arrive for this state
	if providerErr != "" {
		err := &ProviderError{Code: providerErr, Description: q.Get("error_description")}
		h.log.Warn("authorization denied by provider", zap.String("error", err.Code), zap.String("description", err.Description))
		res = &Result{Params: params, Err: err}
		h.finish(w, http.StatusBadRequest, res)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.exchangeTimeout)
	defer cancel()

	token, err := h.exchanger.ExchangeCode(ctx, params.Code)
	if err != nil {
		h.logExchangeError(err)
		token = nil
	}

	res = &Result{Params: params, Token: token, Err: err}
	h.finish(w, http.StatusOK, res)
}

// finish renders the result to the console and the response.
// Only the request that claimed the handler gets here.
func (h *Handler) finish(w http.ResponseWriter, status int, res *Result) {
	var body bytes.Buffer

	var providerErr *ProviderError
	if errors.As(res.Err, &providerErr) {
		if err := h.templates.RenderError(&body, templates.ErrorData{
			Title:   "Authorization Denied",
			Message: providerErr.Error(),
		}); err != nil {
			h.log.Error("rendering error", zap.Error(err))
		}
	}

	if err := h.templates.RenderResult(&body, templates.ResultData{
		State: res.Params.State,
		Code:  res.Params.Code,
		Token: res.Token,
	}); err != nil {
		h.log.Error("rendering result", zap.Error(err))
		body.Reset()
		fmt.Fprintf(&body, "State: %s\nCode: %s\n", res.Params.State, res.Params.Code)
	}

	if _, err := h.console.Write(body.Bytes()); err != nil {
		h.log.Warn("writing result to console", zap.Error(err))
	}

	writeText(w, status, body.Bytes(), h.log)
}

// reject answers without consuming the single callback
func (h *Handler) reject(w http.ResponseWriter, status int, title, message string, cause error) {
	h.log.Warn("rejected callback request",
		zap.Int("status", status),
		zap.String("reason", message),
		zap.NamedError("cause", cause),
	)

	var body bytes.Buffer
	if err := h.templates.RenderError(&body, templates.ErrorData{Title: title, Message: message}); err != nil {
		h.log.Error("rendering error", zap.Error(err))
		body.Reset()
		fmt.Fprintf(&body, "%s: %s\n", title, message)
	}
	writeText(w, status, body.Bytes(), h.log)
}

func (h *Handler) logExchangeError(err error) {
	fields := []zap.Field{zap.Error(err)}

	var reqErr *oauth.RequestError
	if errors.As(err, &reqErr) {
		fields = append(fields, zap.String("kind", reqErr.Kind.Error()))
		if reqErr.StatusCode != 0 {
			fields = append(fields, zap.Int("status", reqErr.StatusCode))
		}
		if reqErr.Body != "" {
			fields = append(fields, zap.String("body", reqErr.Body))
		}
	}

	h.log.Error("token exchange failed", fields...)
}

func writeText(w http.ResponseWriter, status int, body []byte, log *zap.Logger) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.Warn("writing callback response", zap.Error(err))
	}
}
