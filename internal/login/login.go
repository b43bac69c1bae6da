package login

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/wrale/oauth2-login/internal/callback"
	"github.com/wrale/oauth2-login/internal/oauth"
	"github.com/wrale/oauth2-login/internal/state"
	"github.com/wrale/oauth2-login/internal/templates"
)

// Run binds the callback listener, prints the authorization URL, waits for the
// one redirect and prints its outcome.
//
// A failed exchange or a denied authorization is reported on out and is not an
// error. Errors are returned for invalid configuration, bind and listener
// failures, and when ctx ends or the callback timeout passes first.
func Run(ctx context.Context, cfg Config, out io.Writer, log *zap.Logger) (*callback.Result, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tmpls, err := templates.LoadTemplates()
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	// Bind before printing so the URL is reachable once shown
	srv, err := callback.Listen(ctx, cfg.BindAddress(), log)
	if err != nil {
		return nil, err
	}
	defer srv.Close()

	redirectURI := ResolveRedirectURI(cfg.RedirectURI, cfg.Host, srv.Port())

	client, err := oauth.NewClient(oauth.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  redirectURI,
		Scopes:       cfg.Scopes,
		AuthURL:      cfg.AuthURL,
		TokenURL:     cfg.TokenURL,
		Timeout:      cfg.ExchangeTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring oauth client: %w", err)
	}

	authReq, err := client.NewAuthorizationRequest()
	if err != nil {
		return nil, err
	}

	var verifier state.Verifier
	if cfg.VerifyState {
		verifier = state.NewVerifier(authReq.State)
	}

	console := &syncWriter{w: out}
	handler := callback.NewHandler(callback.Config{
		Exchanger:       client,
		State:           verifier,
		Templates:       tmpls,
		Console:         console,
		Logger:          log,
		ExchangeTimeout: cfg.ExchangeTimeout,
	})

	if err := tmpls.RenderBanner(console, templates.BannerData{
		Provider: cfg.Provider,
		URL:      authReq.URL,
	}); err != nil {
		return nil, err
	}
	log.Info("waiting for authorization callback",
		zap.Stringer("addr", srv.Addr()),
		zap.String("redirect_uri", redirectURI),
		zap.Bool("verify_state", cfg.VerifyState),
	)

	srv.Serve(handler)

	waitCtx := ctx
	if cfg.CallbackTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, cfg.CallbackTimeout)
		defer cancel()
	}

	res, err := srv.Wait(waitCtx)
	if err != nil {
		return nil, err
	}

	if res.Token == nil {
		log.Warn("login finished without a token", zap.Error(res.Err))
	} else {
		log.Info("login finished", zap.Int("expires_in", res.Token.ExpiresIn))
	}

	if err := tmpls.RenderFinished(console); err != nil {
		return res, err
	}
	return res, nil
}

// syncWriter serializes console writes from the main flow and the handler
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
