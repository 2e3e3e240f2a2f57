package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-michi/michi"
	"golang.org/x/oauth2"

	"github.com/credgate/credgate/pkg/auth"
	"github.com/credgate/credgate/server/model"
	"github.com/credgate/credgate/server/stores"
)

// fakeSessions accepts exactly one token and records revocations.
type fakeSessions struct {
	token   string
	userID  string
	revoked []string
	failure error
}

func (f *fakeSessions) ValidateSession(ctx context.Context, token string) (string, error) {
	if token == f.token {
		return f.userID, nil
	}
	return "", errors.New("unknown token")
}

func (f *fakeSessions) RevokeSession(ctx context.Context, token string) error {
	if f.failure != nil {
		return f.failure
	}
	f.revoked = append(f.revoked, token)
	return nil
}

type gatewayOptions struct {
	store      stores.CredentialStore
	sessions   *fakeSessions
	backendURL string
	websiteURL string
	signIn     *auth.Interceptor
	anonymous  bool
}

func newTestGateway(t *testing.T, opts gatewayOptions) (*michi.Router, *fakeSessions) {
	t.Helper()
	if opts.store == nil {
		opts.store = stores.NewMemoryStore()
	}
	if opts.sessions == nil {
		opts.sessions = &fakeSessions{token: "testtoken", userID: "user-1"}
	}
	if opts.backendURL == "" {
		opts.backendURL = "http://backend.invalid"
	}
	if opts.websiteURL == "" {
		opts.websiteURL = "http://website.invalid"
	}
	backend, err := url.Parse(opts.backendURL)
	if err != nil {
		t.Fatalf("parse backend url: %v", err)
	}
	website, err := url.Parse(opts.websiteURL)
	if err != nil {
		t.Fatalf("parse website url: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	g := NewGateway(Config{
		BackendURL:     backend,
		WebsiteURL:     website,
		RequireSession: !opts.anonymous,
	}, opts.store, opts.sessions, opts.signIn, logger)

	router := michi.NewRouter()
	g.Routes(router)
	return router, opts.sessions
}

func authRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer testtoken")
	return req
}

func TestListServices(t *testing.T) {
	store := stores.NewMemoryStore()
	err := store.RegisterService(context.Background(), "user-1", model.Credential{
		Name: "Google Drive",
		Type: "GoogleDrive",
		Data: json.RawMessage(`{"access_token":"secret"}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	router, _ := newTestGateway(t, gatewayOptions{store: store})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authRequest(http.MethodGet, "/api/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var services []model.CredentialSummary
	if err := json.NewDecoder(rec.Body).Decode(&services); err != nil {
		t.Fatal(err)
	}
	if len(services) != 1 || services[0].Name != "Google Drive" || services[0].Type != "GoogleDrive" {
		t.Fatalf("unexpected listing: %+v", services)
	}
	// The listing must never leak token payloads.
	if strings.Contains(rec.Body.String(), "secret") {
		t.Fatal("credential data leaked into listing")
	}
}

func TestListServicesRequiresSession(t *testing.T) {
	router, _ := newTestGateway(t, gatewayOptions{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestListServicesAuthDisabled(t *testing.T) {
	store := stores.NewMemoryStore()
	err := store.RegisterService(context.Background(), model.AnonymousUser, model.Credential{
		Name: "Google Drive", Type: "GoogleDrive", Data: json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	router, _ := newTestGateway(t, gatewayOptions{store: store, anonymous: true})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var services []model.CredentialSummary
	if err := json.NewDecoder(rec.Body).Decode(&services); err != nil {
		t.Fatal(err)
	}
	if len(services) != 1 || services[0].Name != "Google Drive" {
		t.Fatalf("unexpected listing: %+v", services)
	}
}

func TestRegisterService(t *testing.T) {
	store := stores.NewMemoryStore()
	router, _ := newTestGateway(t, gatewayOptions{store: store})

	body := `{"name":"Dropbox","type":"Dropbox","data":{"token":"abc"}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authRequest(http.MethodPut, "/api/", strings.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	cred, err := store.GetService(context.Background(), "user-1", "Dropbox")
	if err != nil {
		t.Fatal(err)
	}
	if cred.Type != "Dropbox" {
		t.Fatalf("type = %q", cred.Type)
	}
}

func TestRegisterServiceValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "invalid JSON", body: `{`, want: http.StatusBadRequest},
		{name: "empty name", body: `{"name":"","type":"X"}`, want: http.StatusBadRequest},
		{name: "name with separator", body: `{"name":"a|b","type":"X"}`, want: http.StatusBadRequest},
		{name: "missing type", body: `{"name":"Dropbox"}`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestGateway(t, gatewayOptions{})
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, authRequest(http.MethodPut, "/api/", strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRegisterServiceDuplicateConflicts(t *testing.T) {
	router, _ := newTestGateway(t, gatewayOptions{})

	body := `{"name":"Dropbox","type":"Dropbox"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authRequest(http.MethodPut, "/api/", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("first register status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authRequest(http.MethodPut, "/api/", strings.NewReader(body)))
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestLogout(t *testing.T) {
	router, sessions := newTestGateway(t, gatewayOptions{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authRequest(http.MethodGet, "/auth/logout", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if len(sessions.revoked) != 1 || sessions.revoked[0] != "testtoken" {
		t.Fatalf("revoked = %v", sessions.revoked)
	}
}

func TestLogoutRevokeFailure(t *testing.T) {
	sessions := &fakeSessions{token: "testtoken", userID: "user-1", failure: errors.New("directory down")}
	router, _ := newTestGateway(t, gatewayOptions{sessions: sessions})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authRequest(http.MethodGet, "/auth/logout", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestAuthCallbackRedirect(t *testing.T) {
	router, _ := newTestGateway(t, gatewayOptions{websiteURL: "http://website.invalid/"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/callback/google?state=xyz", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusFound)
	}
	want := "http://website.invalid/#/auth/callback/google?state=xyz"
	if got := rec.Header().Get("Location"); got != want {
		t.Fatalf("Location = %q, want %q", got, want)
	}
}

func TestAuthCallbackPersistsCredential(t *testing.T) {
	store := stores.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	completer := auth.SignInCompleter(func(ctx context.Context, code string) (*oauth2.Token, error) {
		if code != "exchange-code" {
			return nil, errors.New("bad code")
		}
		return &oauth2.Token{AccessToken: "at-1"}, nil
	})
	signIn := auth.NewInterceptor(completer, store, logger)
	router, _ := newTestGateway(t, gatewayOptions{store: store, signIn: signIn})

	rec := httptest.NewRecorder()
	req := authRequest(http.MethodGet, "/auth/callback/google?code=exchange-code", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusFound)
	}
	cred, err := store.GetService(context.Background(), "user-1", auth.GoogleDriveServiceName)
	if err != nil {
		t.Fatal(err)
	}
	if cred.Type != auth.GoogleDriveServiceType {
		t.Fatalf("type = %q", cred.Type)
	}
}

func TestAuthCallbackWithoutSessionUsesPlaceholder(t *testing.T) {
	store := stores.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	completer := auth.SignInCompleter(func(ctx context.Context, code string) (*oauth2.Token, error) {
		return &oauth2.Token{AccessToken: "at-1"}, nil
	})
	signIn := auth.NewInterceptor(completer, store, logger)
	router, _ := newTestGateway(t, gatewayOptions{store: store, signIn: signIn})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback/google?code=x", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusFound)
	}
	if _, err := store.GetService(context.Background(), model.AnonymousUser, auth.GoogleDriveServiceName); err != nil {
		t.Fatalf("expected credential under placeholder identity: %v", err)
	}
}
