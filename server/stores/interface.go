package stores

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/credgate/credgate/server/model"
)

// CredentialStore abstracts per-user credential persistence (can be swapped
// between the directory, datastore and bolt backends).
type CredentialStore interface {
	// ListServices returns the {name, type} projection of the user's
	// credentials. Unknown users get an empty slice, not an error.
	ListServices(ctx context.Context, userID string) ([]model.CredentialSummary, error)
	// GetService looks up one credential by exact name match.
	GetService(ctx context.Context, userID, name string) (*model.Credential, error)
	// RegisterService appends a new credential. The name must not already
	// exist for the user.
	RegisterService(ctx context.Context, userID string, cred model.Credential) error
	// UpdateServiceData replaces the data payload of an existing credential.
	UpdateServiceData(ctx context.Context, userID, name string, data json.RawMessage) error
}

var ErrServiceExists = errors.New("service already registered")
var ErrServiceNotFound = errors.New("service not found")
