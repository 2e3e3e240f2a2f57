package stores

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/credgate/credgate/server/model"
)

// Serialized wraps a CredentialStore with a per-user mutex so register and
// update for the same user never interleave. The backends implement the
// duplicate-name check as a read followed by a whole-collection write; without
// this wrapper two concurrent registrations of the same name can both pass
// the check.
type Serialized struct {
	inner CredentialStore

	mu    sync.Mutex
	users map[string]*sync.Mutex
}

func NewSerialized(inner CredentialStore) *Serialized {
	return &Serialized{inner: inner, users: make(map[string]*sync.Mutex)}
}

func (s *Serialized) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.users[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.users[userID] = lock
	}
	return lock
}

func (s *Serialized) ListServices(ctx context.Context, userID string) ([]model.CredentialSummary, error) {
	return s.inner.ListServices(ctx, userID)
}

func (s *Serialized) GetService(ctx context.Context, userID, name string) (*model.Credential, error) {
	return s.inner.GetService(ctx, userID, name)
}

func (s *Serialized) RegisterService(ctx context.Context, userID string, cred model.Credential) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	return s.inner.RegisterService(ctx, userID, cred)
}

func (s *Serialized) UpdateServiceData(ctx context.Context, userID, name string, data json.RawMessage) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	return s.inner.UpdateServiceData(ctx, userID, name, data)
}

var _ CredentialStore = (*Serialized)(nil)
