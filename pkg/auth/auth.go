// Package auth holds the Google OAuth web flow and the sign-in interceptor
// that persists the exchanged token as a stored credential.
package auth

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Service name and type under which a Google sign-in token is stored.
const (
	GoogleDriveServiceName = "Google Drive"
	GoogleDriveServiceType = "GoogleDrive"
)

// Config holds the Google OAuth client settings.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// NewGoogleOAuthConfig builds the oauth2 config for the Google web flow. The
// drive scope is requested up front so the captured token works for the
// proxied Drive calls.
func NewGoogleOAuthConfig(cfg Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     google.Endpoint,
		Scopes: []string{
			"openid",
			"email",
			"https://www.googleapis.com/auth/drive",
		},
	}
}

// SignInCompleter exchanges an authorization code for a token. In production
// this is oauth2.Config.Exchange; tests substitute a fake.
type SignInCompleter func(ctx context.Context, code string) (*oauth2.Token, error)

// CompleterFromConfig adapts an oauth2 config to a SignInCompleter.
func CompleterFromConfig(cfg *oauth2.Config) SignInCompleter {
	return func(ctx context.Context, code string) (*oauth2.Token, error) {
		return cfg.Exchange(ctx, code)
	}
}
