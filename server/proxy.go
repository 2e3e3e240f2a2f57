package server

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/credgate/credgate/server/stores"
)

// Headers read from the inbound request to select a credential, and set on
// the outbound forward. The backend trusts these and never touches OAuth
// tokens itself.
const (
	providerIDHeader          = "provider-id"
	providerTypeHeader        = "provider-type"
	authenticatedUserHeader   = "authenticated-user"
	providerCredentialsHeader = "provider-credentials"
)

const uploadRoutePrefix = "/upload/google-drive/"

// handleBackendProxy is the authenticated catch-all for /api/*: resolves the
// caller's credential for the service named in the provider-id header,
// injects it, and forwards the request verbatim to the backend origin.
func (g *Gateway) handleBackendProxy(w http.ResponseWriter, r *http.Request) {
	name := r.Header.Get(providerIDHeader)
	if name == "" {
		http.Error(w, "missing provider-id header", http.StatusBadRequest)
		return
	}
	userID := g.userID(r)
	cred, err := g.store.GetService(r.Context(), userID, name)
	if err != nil {
		if errors.Is(err, stores.ErrServiceNotFound) {
			http.Error(w, "no credential registered for this service", http.StatusNotFound)
			return
		}
		g.logger.Error("credential lookup failed", "user", userID, "service", name, "error", err)
		http.Error(w, "credential lookup failed", http.StatusInternalServerError)
		return
	}
	if typ := r.Header.Get(providerTypeHeader); typ != "" && typ != cred.Type {
		http.Error(w, "no credential registered for this service", http.StatusNotFound)
		return
	}
	r.Header.Set(authenticatedUserHeader, userID)
	r.Header.Set(providerCredentialsHeader, string(cred.Data))
	g.backendProxy.ServeHTTP(w, r)
}

// handleWebsiteProxy forwards unauthenticated catch-all traffic to the
// website origin. Registered method-less, so the read-only check lives here.
func (g *Gateway) handleWebsiteProxy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	g.websiteProxy.ServeHTTP(w, r)
}

// handleUploadRelay handles POST /upload/google-drive/*: the remainder of
// the path (URL-escaped) is the externally supplied upload target. The raw
// bytes of the Media multipart field are PUT there with the original length,
// and only the upstream status comes back.
func (g *Gateway) handleUploadRelay(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("Media")
	if err != nil {
		http.Error(w, "missing Media upload field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	escaped := strings.TrimPrefix(r.URL.EscapedPath(), uploadRoutePrefix)
	target, err := url.PathUnescape(escaped)
	if err != nil {
		http.Error(w, "invalid upload target", http.StatusBadRequest)
		return
	}
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	targetURL, err := url.Parse(target)
	if err != nil || (targetURL.Scheme != "http" && targetURL.Scheme != "https") {
		http.Error(w, "invalid upload target", http.StatusBadRequest)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPut, targetURL.String(), file)
	if err != nil {
		http.Error(w, "invalid upload target", http.StatusBadRequest)
		return
	}
	req.ContentLength = header.Size
	resp, err := g.uploadClient.Do(req)
	if err != nil {
		g.logger.Error("upload relay failed", "target", targetURL.Host, "error", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	w.WriteHeader(resp.StatusCode)
}
