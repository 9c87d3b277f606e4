// Package server is the simple-repository HTTP façade: it speaks PEP 503
// to pip/twine on the client side and delegates every operation to
// internal/pyoci, which in turn speaks OCI Distribution to the backend
// registry. None of the core packages (pkgname, ociobj, registryclient,
// pyoci) import this package — it is a pure consumer.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/abcxyz/pkg/logging"
	"github.com/abcxyz/pkg/serving"

	"github.com/AllexVeldman/pyoci/internal/cred"
)

// Middleware wraps an http.Handler with cross-cutting behavior.
type Middleware func(next http.Handler) http.Handler

// Server is a wrapper around serving.Server that chains a fixed middleware
// stack in front of the package handler.
type Server struct {
	svr         *serving.Server
	middlewares []Middleware
}

// NewServer creates a Server listening on port, applying middlewares in the
// order given (first middleware wraps outermost).
func NewServer(port string, middlewares ...Middleware) (*Server, error) {
	svr, err := serving.New(port)
	if err != nil {
		return nil, fmt.Errorf("server: create listener: %w", err)
	}
	return &Server{svr: svr, middlewares: middlewares}, nil
}

// Start blocks serving h until ctx is closed, then gracefully shuts down.
func (s *Server) Start(ctx context.Context, h http.Handler) error {
	wrapped := h
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		wrapped = s.middlewares[i](wrapped)
	}
	return s.svr.StartHTTPHandler(ctx, wrapped)
}

// PassThroughAuth lifts HTTP basic-auth credentials from the request into
// the context, where internal/pyoci.Open can pick them up.
func PassThroughAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); ok {
			r = r.WithContext(cred.WithCred(r.Context(), &cred.Cred{Basic: &cred.BasicCred{User: user, Password: pass}}))
		}
		next.ServeHTTP(w, r)
	})
}

// WithLogger attaches a request-scoped logger built from PYOCI_-prefixed
// environment variables (PYOCI_LOG_LEVEL, PYOCI_LOG_FORMAT, PYOCI_LOG_DEBUG).
func WithLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(logging.WithLogger(r.Context(), logging.NewFromEnv("PYOCI_")))
		next.ServeHTTP(w, r)
	})
}
