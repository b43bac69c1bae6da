package callback

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	idleTimeout       = 30 * time.Second
)

var (
	// ErrBind indicates the callback address could not be bound
	ErrBind = errors.New("binding callback listener")

	// ErrListener indicates the listener failed while waiting
	ErrListener = errors.New("callback listener failed")

	// ErrTimeout indicates no callback arrived before the deadline
	ErrTimeout = errors.New("timed out awaiting callback")

	// ErrNotServing indicates Wait was called before Serve
	ErrNotServing = errors.New("callback server not serving")
)

// Server is a short-lived listener that serves one Handler until it has
// produced its Result. It is not reusable.
type Server struct {
	listener net.Listener
	http     *http.Server
	handler  *Handler
	serveErr chan error
	log      *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// Listen binds the callback address. The returned server accepts nothing until
// Serve is called; connections made in between wait in the backlog.
func Listen(ctx context.Context, addr string, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrBind, addr, err)
	}

	return &Server{
		listener: ln,
		serveErr: make(chan error, 1),
		log:      log,
	}, nil
}

// Addr returns the bound address
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Port returns the bound TCP port, useful when listening on port 0
func (s *Server) Port() int {
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Serve starts accepting requests for h in the background
func (s *Server) Serve(h *Handler) {
	s.handler = h
	s.http = &http.Server{
		Handler:           h,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      h.exchangeTimeout + readTimeout,
		IdleTimeout:       idleTimeout,
	}

	go func() {
		s.log.Debug("callback listener serving", zap.Stringer("addr", s.listener.Addr()))
		if err := s.http.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.serveErr <- err
		}
	}()
}

// Wait blocks until the handler produces its result, the listener fails or ctx
// ends. The server is shut down before Wait returns on every path.
func (s *Server) Wait(ctx context.Context) (*Result, error) {
	defer s.Close()

	if s.handler == nil {
		return nil, ErrNotServing
	}

	select {
	case res := <-s.handler.Done():
		return res, nil
	case err := <-s.serveErr:
		return nil, fmt.Errorf("%w: %v", ErrListener, err)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

// Close gracefully shuts the server down and releases the listener.
// It is safe to call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		if s.http != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := s.http.Shutdown(ctx); err != nil {
				s.log.Warn("graceful shutdown failed", zap.Error(err))
				s.closeErr = s.http.Close()
			}
		}

		// Shutdown only closes listeners Serve has started tracking
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) && s.closeErr == nil {
			s.closeErr = err
		}
		s.log.Debug("callback listener closed")
	})
	return s.closeErr
}
