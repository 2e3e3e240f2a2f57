package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/credgate/credgate/server/model"
)

// metadataKey is the profile attribute holding the whole credential
// collection in the directory service.
const metadataKey = "linked_services"

// MetadataClient is the slice of the directory client the store needs.
type MetadataClient interface {
	GetUserMetadata(ctx context.Context, userID, key string) (json.RawMessage, error)
	SetUserMetadata(ctx context.Context, userID, key string, value json.RawMessage) error
}

// DirectoryStore keeps each user's credential collection as a single profile
// metadata attribute in the external directory service. Every mutation reads
// the whole collection and writes it back; there is no partial update.
type DirectoryStore struct {
	client MetadataClient
	logger *slog.Logger
}

func NewDirectoryStore(client MetadataClient, logger *slog.Logger) *DirectoryStore {
	return &DirectoryStore{client: client, logger: logger}
}

// loadCollection fetches and decodes the user's collection. A stored value
// that is not a list (a scalar left behind by a legacy bug) is reset to an
// empty collection in the directory and a warning is logged; the caller never
// sees the corruption.
func (s *DirectoryStore) loadCollection(ctx context.Context, userID string) ([]model.Credential, error) {
	raw, err := s.client.GetUserMetadata(ctx, userID, metadataKey)
	if err != nil {
		return nil, fmt.Errorf("fetching %s metadata: %w", metadataKey, err)
	}
	if raw == nil {
		return []model.Credential{}, nil
	}
	var creds []model.Credential
	if err := json.Unmarshal(raw, &creds); err != nil {
		s.logger.Warn("corrupted credential collection, resetting to empty",
			"user", userID, "error", err)
		if err := s.saveCollection(ctx, userID, []model.Credential{}); err != nil {
			return nil, err
		}
		return []model.Credential{}, nil
	}
	return creds, nil
}

func (s *DirectoryStore) saveCollection(ctx context.Context, userID string, creds []model.Credential) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	if err := s.client.SetUserMetadata(ctx, userID, metadataKey, data); err != nil {
		return fmt.Errorf("writing %s metadata: %w", metadataKey, err)
	}
	return nil
}

func (s *DirectoryStore) ListServices(ctx context.Context, userID string) ([]model.CredentialSummary, error) {
	creds, err := s.loadCollection(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := []model.CredentialSummary{}
	for _, cred := range creds {
		out = append(out, cred.Summary())
	}
	return out, nil
}

func (s *DirectoryStore) GetService(ctx context.Context, userID, name string) (*model.Credential, error) {
	creds, err := s.loadCollection(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, cred := range creds {
		if cred.Name == name {
			c := cred
			return &c, nil
		}
	}
	return nil, ErrServiceNotFound
}

func (s *DirectoryStore) RegisterService(ctx context.Context, userID string, cred model.Credential) error {
	creds, err := s.loadCollection(ctx, userID)
	if err != nil {
		return err
	}
	for _, existing := range creds {
		if existing.Name == cred.Name {
			return ErrServiceExists
		}
	}
	return s.saveCollection(ctx, userID, append(creds, cred))
}

func (s *DirectoryStore) UpdateServiceData(ctx context.Context, userID, name string, data json.RawMessage) error {
	creds, err := s.loadCollection(ctx, userID)
	if err != nil {
		return err
	}
	for i, cred := range creds {
		if cred.Name == name {
			creds[i].Data = data
			return s.saveCollection(ctx, userID, creds)
		}
	}
	return ErrServiceNotFound
}

var _ CredentialStore = (*DirectoryStore)(nil)
