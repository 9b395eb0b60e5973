// Package httpserver owns the HTTP server defaults and the shutdown grace
// period, so the binary only starts and stops it.
package httpserver

import (
	"context"
	"net/http"
	"time"
)

// DefaultShutdownTimeout bounds how long in-flight requests may drain once
// the process has been told to stop.
const DefaultShutdownTimeout = 10 * time.Second

// Server wraps http.Server with the project's timeouts.
type Server struct {
	*http.Server
	shutdownTimeout time.Duration
}

type Option func(*Server)

// WithShutdownTimeout overrides the drain deadline.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) { s.shutdownTimeout = d }
}

// New builds an HTTP server with sane defaults for this project.
func New(addr string, handler http.Handler, opts ...Option) *Server {
	s := &Server{
		Server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Shutdown drains in-flight requests, giving up after the configured grace
// period even if the caller's context lives longer.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()
	return s.Server.Shutdown(ctx)
}
