package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/credgate/credgate/server/model"
	"github.com/credgate/credgate/server/stores"
)

// Interceptor completes a sign-in and, on success, persists the token
// response as the user's Google Drive credential: registered on first
// sign-in, updated in place on subsequent ones. Exactly one store write per
// successful completion.
type Interceptor struct {
	complete SignInCompleter
	store    stores.CredentialStore
	logger   *slog.Logger
}

func NewInterceptor(complete SignInCompleter, store stores.CredentialStore, logger *slog.Logger) *Interceptor {
	return &Interceptor{complete: complete, store: store, logger: logger}
}

// CompleteSignIn runs the wrapped code exchange and upserts the credential.
// A failed exchange is returned to the caller; nothing is dereferenced or
// persisted. A failed persist is logged but does not fail the sign-in, so
// the gateway's own auth flow is unaffected.
func (i *Interceptor) CompleteSignIn(ctx context.Context, userID, code string) (*oauth2.Token, error) {
	token, err := i.complete(ctx, code)
	if err != nil {
		i.logger.Error("sign-in completion failed", "user", userID, "error", err)
		return nil, fmt.Errorf("completing sign-in: %w", err)
	}
	if err := i.persist(ctx, userID, token); err != nil {
		i.logger.Error("failed to persist sign-in credential", "user", userID, "error", err)
	}
	return token, nil
}

func (i *Interceptor) persist(ctx context.Context, userID string, token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	_, err = i.store.GetService(ctx, userID, GoogleDriveServiceName)
	switch {
	case err == nil:
		return i.store.UpdateServiceData(ctx, userID, GoogleDriveServiceName, data)
	case errors.Is(err, stores.ErrServiceNotFound):
		return i.store.RegisterService(ctx, userID, model.Credential{
			Name: GoogleDriveServiceName,
			Type: GoogleDriveServiceType,
			Data: data,
		})
	default:
		return err
	}
}
