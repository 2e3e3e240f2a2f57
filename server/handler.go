package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/credgate/credgate/server/middleware"
	"github.com/credgate/credgate/server/model"
	"github.com/credgate/credgate/server/stores"
)

// handleListServices handles GET /api/*: the {name, type} projection of the
// caller's credentials. The data payload is never part of the response.
func (g *Gateway) handleListServices(w http.ResponseWriter, r *http.Request) {
	userID := g.userID(r)
	services, err := g.store.ListServices(r.Context(), userID)
	if err != nil {
		g.logger.Error("failed to list services", "user", userID, "error", err)
		http.Error(w, "failed to list services", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(services); err != nil {
		g.logger.Error("failed to encode services", "user", userID, "error", err)
	}
}

// handleRegisterService handles PUT /api/*: registers a new service for the
// caller. A duplicate name is a conflict, never an overwrite.
func (g *Gateway) handleRegisterService(w http.ResponseWriter, r *http.Request) {
	var cred model.Credential
	if err := json.NewDecoder(r.Body).Decode(&cred); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := validateServiceName(cred.Name); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if cred.Type == "" {
		http.Error(w, "missing service type", http.StatusBadRequest)
		return
	}
	userID := g.userID(r)
	if err := g.store.RegisterService(r.Context(), userID, cred); err != nil {
		if errors.Is(err, stores.ErrServiceExists) {
			http.Error(w, "service already registered", http.StatusConflict)
			return
		}
		g.logger.Error("failed to register service", "user", userID, "service", cred.Name, "error", err)
		http.Error(w, "failed to register service", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// handleLogout revokes the caller's session at the directory service.
func (g *Gateway) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := middleware.ExtractBearerToken(r.Header.Get("Authorization"))
	if token != "" {
		if err := g.sessions.RevokeSession(r.Context(), token); err != nil {
			g.logger.Error("failed to revoke session", "error", err)
			http.Error(w, "failed to revoke session", http.StatusInternalServerError)
			return
		}
	}
	fmt.Fprint(w, "logged out")
}

// handleAuthCallback completes the Google sign-in (persisting the token as a
// credential) and sends the browser back to the single-page app: the server
// side callback path and query become a client-side route after "#". The
// redirect happens whether or not persistence succeeded.
func (g *Gateway) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	if code := r.URL.Query().Get("code"); code != "" && g.signIn != nil {
		// Failures are logged inside the interceptor; the browser still
		// returns to the app so the user is not stranded on a blank page.
		_, _ = g.signIn.CompleteSignIn(r.Context(), g.userID(r), code)
	}
	redirect := strings.TrimRight(g.cfg.WebsiteURL.String(), "/") + "/#" + r.URL.Path
	if r.URL.RawQuery != "" {
		redirect += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}
