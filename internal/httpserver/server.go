// Package httpserver runs an http.Handler on a TCP listener until a context ends.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"sumctl/pkg/logging"
)

// DefaultShutdownTimeout bounds how long in-flight requests may take to drain.
const DefaultShutdownTimeout = 10 * time.Second

// Server serves Handler on Address. Serve blocks until the context is canceled
// and active requests have drained.
type Server struct {
	Name            string // Log subsystem, e.g. "Proxy"
	Address         string
	Handler         http.Handler
	ShutdownTimeout time.Duration

	ready      chan struct{}
	addr       net.Addr
	onShutdown []func()
}

// New creates a server for handler on address.
func New(name, address string, handler http.Handler) *Server {
	return &Server{
		Name:            name,
		Address:         address,
		Handler:         handler,
		ShutdownTimeout: DefaultShutdownTimeout,
		ready:           make(chan struct{}),
	}
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address. Only valid after Ready is closed.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// RegisterOnShutdown registers f to run when shutdown starts. Handlers that never
// return on their own, such as event streams, use it to finish. Call before Serve.
func (s *Server) RegisterOnShutdown(f func()) {
	s.onShutdown = append(s.onShutdown, f)
}

// Serve listens and serves until ctx is canceled, then shuts down gracefully.
// Request contexts are not canceled by ctx, so in-flight requests get to finish
// within ShutdownTimeout.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.Address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.Address, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	// No WriteTimeout: the log stream keeps responses open indefinitely.
	server := &http.Server{
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	for _, f := range s.onShutdown {
		server.RegisterOnShutdown(f)
	}

	logging.Info(s.Name, "Listening on http://%s", s.addr)

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case err := <-serveDone:
		return err
	case <-ctx.Done():
	}

	logging.Info(s.Name, "Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		server.Close()
		logging.Warn(s.Name, "Forced shutdown: %v", err)
	}
	if err := <-serveDone; err != nil {
		return err
	}
	return nil
}
