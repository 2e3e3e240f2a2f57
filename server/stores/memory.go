package stores

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/credgate/credgate/server/model"
)

// MemoryStore keeps credential collections in process memory. Used as the
// default backend for local development and in tests.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]model.Credential // key: user id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][]model.Credential)}
}

func (s *MemoryStore) ListServices(ctx context.Context, userID string) ([]model.CredentialSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.CredentialSummary{}
	for _, cred := range s.collections[userID] {
		out = append(out, cred.Summary())
	}
	return out, nil
}

func (s *MemoryStore) GetService(ctx context.Context, userID, name string) (*model.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cred := range s.collections[userID] {
		if cred.Name == name {
			c := cred
			return &c, nil
		}
	}
	return nil, ErrServiceNotFound
}

func (s *MemoryStore) RegisterService(ctx context.Context, userID string, cred model.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.collections[userID] {
		if existing.Name == cred.Name {
			return ErrServiceExists
		}
	}
	s.collections[userID] = append(s.collections[userID], cred)
	return nil
}

func (s *MemoryStore) UpdateServiceData(ctx context.Context, userID, name string, data json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cred := range s.collections[userID] {
		if cred.Name == name {
			s.collections[userID][i].Data = data
			return nil
		}
	}
	return ErrServiceNotFound
}

var _ CredentialStore = (*MemoryStore)(nil)
