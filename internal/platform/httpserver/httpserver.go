// Package httpserver builds the collector's HTTP server.
package httpserver

import (
	"net/http"
	"time"
)

// Defaults bound slow clients; audit submissions are small.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 15 * time.Second
	DefaultWriteTimeout      = 30 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20
)

type Option func(*http.Server)

// WithTimeouts overrides the read and write timeouts. Zero keeps the
// default.
func WithTimeouts(read, write time.Duration) Option {
	return func(s *http.Server) {
		if read > 0 {
			s.ReadTimeout = read
		}
		if write > 0 {
			s.WriteTimeout = write
		}
	}
}

// New returns a server for handler on addr.
func New(addr string, handler http.Handler, opts ...Option) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}
