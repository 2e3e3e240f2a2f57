package stores

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/credgate/credgate/server/model"
)

// Unavailable stands in for a backend that failed to connect at startup. The
// process still comes up; every store operation fails with the connect error
// until the process is restarted.
type Unavailable struct {
	Err error
}

func (s Unavailable) err() error {
	return fmt.Errorf("credential store unavailable: %w", s.Err)
}

func (s Unavailable) ListServices(ctx context.Context, userID string) ([]model.CredentialSummary, error) {
	return nil, s.err()
}

func (s Unavailable) GetService(ctx context.Context, userID, name string) (*model.Credential, error) {
	return nil, s.err()
}

func (s Unavailable) RegisterService(ctx context.Context, userID string, cred model.Credential) error {
	return s.err()
}

func (s Unavailable) UpdateServiceData(ctx context.Context, userID, name string, data json.RawMessage) error {
	return s.err()
}

var _ CredentialStore = Unavailable{}
