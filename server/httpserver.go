package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-michi/michi"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const (
	maxHeaderBytes    = 1 << 20
	readTimeout       = 30 * time.Second
	readHeaderTimeout = 5 * time.Second
	writeTimeout      = 30 * time.Second

	// Per-IP limiter defaults for the public surface.
	DefaultRateLimit = 5.0
	DefaultRateBurst = 20
)

// HTTPServer is the gateway's HTTP chassis: a michi router wrapped in h2c so
// both upstreams and browsers can speak HTTP/2 without TLS termination here.
type HTTPServer struct {
	Server *http.Server
	Router *michi.Router

	middleware  []func(http.Handler) http.Handler
	routesAdded bool
}

func NewHTTPServer() *HTTPServer {
	router := michi.NewRouter()
	server := &http.Server{
		Handler:           h2c.NewHandler(router, &http2.Server{}),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}
	return &HTTPServer{Server: server, Router: router}
}

// Use adds middleware to the server. Must be called before routes are
// registered so the chain wraps everything.
func (s *HTTPServer) Use(mw ...func(http.Handler) http.Handler) {
	if s.routesAdded {
		panic("cannot add middleware after routes are registered")
	}
	s.middleware = append(s.middleware, mw...)
	s.Server.Handler = h2c.NewHandler(applyMiddleware(s.Router, s.middleware...), &http2.Server{})
}

func (s *HTTPServer) Handle(pattern string, handler http.Handler) {
	s.routesAdded = true
	s.Router.Handle(pattern, handler)
}

func (s *HTTPServer) ListenAndServe(addr string) error {
	s.Server.Addr = addr
	return s.Server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	slog.Debug("shutting down server")
	if err := s.Server.Shutdown(ctx); err != nil {
		slog.Error("error shutting down server", "error", err)
		return err
	}
	return nil
}

func applyMiddleware(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	// Apply in reverse order so the first middleware in the slice is the
	// outermost one.
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
