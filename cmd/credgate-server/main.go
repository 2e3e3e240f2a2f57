// Command credgate-server runs the credential-brokering gateway in front of
// the API backend and the website origin.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"go.etcd.io/bbolt"
	"golang.org/x/time/rate"

	"github.com/credgate/credgate/pkg/auth"
	"github.com/credgate/credgate/pkg/directory"
	"github.com/credgate/credgate/server"
	"github.com/credgate/credgate/server/middleware"
	"github.com/credgate/credgate/server/stores"
)

type cli struct {
	Port       int    `env:"PORT" default:"4000" help:"Listen port."`
	BackendURL string `env:"BACKEND_URL" default:"http://localhost:8080" help:"API backend origin."`
	WebsiteURL string `env:"WEBSITE_URL" default:"http://localhost:3000" help:"Website origin."`

	DirectoryURL    string `env:"DIRECTORY_URL" help:"Identity (directory) service base URL."`
	DirectoryAPIKey string `env:"DIRECTORY_API_KEY" help:"Directory service API key."`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID" help:"Google OAuth client id."`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET" help:"Google OAuth client secret."`
	OAuthRedirectURL   string `env:"OAUTH_REDIRECT_URL" help:"OAuth callback URL registered with Google."`

	AuthDisabled bool `env:"AUTH_DISABLED" help:"Run without session validation (local development only)."`

	Store            string `env:"STORE" default:"memory" enum:"memory,bolt,datastore,directory" help:"Credential store backend."`
	BoltPath         string `env:"BOLT_PATH" default:"credgate.db" help:"Path of the bolt database file."`
	DatastoreProject string `env:"DATASTORE_PROJECT" help:"GCP project for the datastore backend."`
}

func main() {
	// .env first so kong sees the variables it defines.
	_ = godotenv.Load()

	var flags cli
	kong.Parse(&flags,
		kong.Name("credgate-server"),
		kong.Description("credgate brokers per-user service credentials and proxies to the backend and website."),
		kong.UsageOnError(),
	)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	backendURL, err := url.Parse(flags.BackendURL)
	if err != nil {
		logger.Error("invalid BACKEND_URL", "error", err)
		os.Exit(1)
	}
	websiteURL, err := url.Parse(flags.WebsiteURL)
	if err != nil {
		logger.Error("invalid WEBSITE_URL", "error", err)
		os.Exit(1)
	}

	dir := directory.NewClient(flags.DirectoryURL, flags.DirectoryAPIKey)

	ctx := context.Background()
	var store stores.CredentialStore
	switch flags.Store {
	case "bolt":
		db, err := bbolt.Open(flags.BoltPath, 0600, nil)
		if err != nil {
			logger.Error("failed to open bolt database", "path", flags.BoltPath, "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store = stores.NewBoltStore(db, logger)
	case "datastore":
		client, err := datastore.NewClient(ctx, flags.DatastoreProject)
		if err != nil {
			// Come up degraded: every store operation fails until the
			// process is restarted with a reachable datastore.
			logger.Error("datastore connect failed", "error", err)
			store = stores.Unavailable{Err: err}
		} else {
			defer client.Close()
			store = stores.NewDatastoreStore(client)
		}
	case "directory":
		store = stores.NewDirectoryStore(dir, logger)
	default:
		store = stores.NewMemoryStore()
	}
	logger.Info("using credential store", "backend", flags.Store)
	store = stores.NewSerialized(store)

	oauthCfg := auth.NewGoogleOAuthConfig(auth.Config{
		ClientID:     flags.GoogleClientID,
		ClientSecret: flags.GoogleClientSecret,
		RedirectURL:  flags.OAuthRedirectURL,
	})
	interceptor := auth.NewInterceptor(auth.CompleterFromConfig(oauthCfg), store, logger)

	gateway := server.NewGateway(server.Config{
		BackendURL:     backendURL,
		WebsiteURL:     websiteURL,
		RequireSession: !flags.AuthDisabled,
	}, store, dir, interceptor, logger)

	srv := server.NewHTTPServer()
	limiter := middleware.NewRateLimiter(logger, middleware.IPAddressKeyFunc,
		rate.Limit(server.DefaultRateLimit), server.DefaultRateBurst)
	defer limiter.Stop()
	srv.Use(
		middleware.WithRecovery(logger),
		middleware.WithLogger(logger),
		middleware.WithCORS([]string{flags.WebsiteURL}),
		limiter.Limit,
	)
	gateway.Routes(srv)

	addr := ":" + strconv.Itoa(flags.Port)
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe(addr) }()
	logger.Info("credgate listening",
		"addr", addr, "backend", backendURL.String(), "website", websiteURL.String(),
		"auth_disabled", flags.AuthDisabled)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			os.Exit(1)
		}
	}
}
