// Package server is the authenticated gateway: it validates sessions against
// the external directory service, brokers per-user service credentials, and
// forwards traffic to the API backend and the website origin.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/credgate/credgate/pkg/auth"
	"github.com/credgate/credgate/server/middleware"
	"github.com/credgate/credgate/server/model"
	"github.com/credgate/credgate/server/stores"
)

// SessionService is the external session-management collaborator. The
// directory client implements it.
type SessionService interface {
	ValidateSession(ctx context.Context, token string) (string, error)
	RevokeSession(ctx context.Context, token string) error
}

type Config struct {
	// BackendURL is the API origin credentialed traffic is forwarded to.
	BackendURL *url.URL
	// WebsiteURL is the static site origin for catch-all traffic and the
	// post-sign-in redirect.
	WebsiteURL *url.URL
	// RequireSession gates the /api routes. Disabled only for local
	// development; handlers then run as the placeholder identity.
	RequireSession bool
}

type Gateway struct {
	cfg      Config
	store    stores.CredentialStore
	sessions SessionService
	signIn   *auth.Interceptor
	logger   *slog.Logger

	backendProxy *httputil.ReverseProxy
	websiteProxy *httputil.ReverseProxy
	uploadClient *http.Client
}

func NewGateway(cfg Config, store stores.CredentialStore, sessions SessionService, signIn *auth.Interceptor, logger *slog.Logger) *Gateway {
	g := &Gateway{
		cfg:      cfg,
		store:    store,
		sessions: sessions,
		signIn:   signIn,
		logger:   logger,
	}
	g.backendProxy = g.newProxy(cfg.BackendURL)
	g.websiteProxy = g.newProxy(cfg.WebsiteURL)
	g.uploadClient = &http.Client{Timeout: 60 * time.Second}
	return g
}

// newProxy builds a reverse proxy to a fixed origin. Path, query, headers and
// body are forwarded unchanged; the upstream response streams back verbatim.
func (g *Gateway) newProxy(target *url.URL) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = target.Scheme
			req.URL.Host = target.Host
			req.Host = target.Host
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			g.logger.Error("upstream forward failed",
				"target", target.Host, "method", r.Method, "path", r.URL.Path, "error", err)
			http.Error(w, "bad gateway", http.StatusBadGateway)
		},
	}
}

// Mux is the route registration surface. Both michi.Router and HTTPServer
// satisfy it; production wiring goes through HTTPServer so its middleware
// ordering guard is armed.
type Mux interface {
	Handle(pattern string, handler http.Handler)
}

// Routes registers all gateway routes. Precedence follows ServeMux rules:
// method-specific /api patterns win over the catch-all /api proxy, which in
// turn wins over the website catch-all. The website route stays method-less
// (a "GET /" pattern would conflict with the method-less "/api/" subtree);
// the handler itself rejects non-GET methods.
func (g *Gateway) Routes(r Mux) {
	gate := middleware.WithSession(g.cfg.RequireSession, g.sessions.ValidateSession, g.logger)
	optional := middleware.WithOptionalSession(g.sessions.ValidateSession, g.logger)

	r.Handle("GET /auth/logout", gate(http.HandlerFunc(g.handleLogout)))
	r.Handle("GET /auth/callback/google", optional(http.HandlerFunc(g.handleAuthCallback)))

	r.Handle("GET /api/", gate(http.HandlerFunc(g.handleListServices)))
	r.Handle("PUT /api/", gate(http.HandlerFunc(g.handleRegisterService)))
	r.Handle("/api/", gate(http.HandlerFunc(g.handleBackendProxy)))

	r.Handle("POST /upload/google-drive/", http.HandlerFunc(g.handleUploadRelay))
	r.Handle("/", http.HandlerFunc(g.handleWebsiteProxy))
}

// userID resolves the caller's identity from the session middleware, falling
// back to the placeholder when auth is disabled.
func (g *Gateway) userID(r *http.Request) string {
	if id := middleware.SessionUserID(r); id != "" {
		return id
	}
	return model.AnonymousUser
}
