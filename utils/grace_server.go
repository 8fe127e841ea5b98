package utils

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const (
	defaultReadTimeout     = 60 * time.Second
	defaultShutdownTimeout = 30 * time.Second
)

// ServerOption customises GraceServer.
type ServerOption func(*graceServer)

// WithShutdownTimeout bounds how long in-flight requests may take after a stop signal.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *graceServer) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithOnShutdown runs fn when shutdown begins. Hijacked connections such as websockets
// are not tracked by http.Server and must be closed here.
func WithOnShutdown(fn func()) ServerOption {
	return func(s *graceServer) { s.srv.RegisterOnShutdown(fn) }
}

type graceServer struct {
	srv             *http.Server
	shutdownTimeout time.Duration
}

// GraceServer serves handler on addr until SIGINT or SIGTERM, then drains in-flight requests.
// The write timeout is left unset because batch endpoints run for the length of a site scan.
func GraceServer(addr string, handler http.Handler, opts ...ServerOption) error {
	s := &graceServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       defaultReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.run(ctx)
}

func (s *graceServer) run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	Sugar.Info("stop signal received, shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		Sugar.Errorf("HTTP server shutdown error: %v", err)
		return err
	}
	Sugar.Info("HTTP server shutdown success")
	return nil
}
