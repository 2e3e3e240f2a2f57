package stores

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"cloud.google.com/go/datastore"

	"github.com/credgate/credgate/server/model"
)

const credentialKind = "Credential"

// keySep separates the user id, service name and service type in an entity
// key name. None of the three may contain it.
const keySep = "|"

type credentialEntity struct {
	UserID string `datastore:"user_id"`
	Name   string `datastore:"name"`
	Type   string `datastore:"type"`
	Data   []byte `datastore:"data,noindex"`
}

// DatastoreStore keeps one entity per credential, keyed
// "userID|name|type". Listing scans every key of the kind and filters
// client-side by the user prefix, so it is linear in the total number of
// stored credentials, not in the user's. Kept for wire compatibility with
// the previous deployment; a per-user ancestor key would fix it.
type DatastoreStore struct {
	client *datastore.Client
}

func NewDatastoreStore(client *datastore.Client) *DatastoreStore {
	return &DatastoreStore{client: client}
}

// Close closes the underlying datastore client.
func (s *DatastoreStore) Close() error {
	return s.client.Close()
}

func credentialKey(userID, name, typ string) *datastore.Key {
	return datastore.NameKey(credentialKind, userID+keySep+name+keySep+typ, nil)
}

// splitKeyName recovers (name, type) from an entity key belonging to userID.
// Returns false for keys of other users or malformed names.
func splitKeyName(keyName, userID string) (name, typ string, ok bool) {
	rest, found := strings.CutPrefix(keyName, userID+keySep)
	if !found {
		return "", "", false
	}
	name, typ, found = strings.Cut(rest, keySep)
	if !found {
		return "", "", false
	}
	return name, typ, true
}

func (s *DatastoreStore) userKeys(ctx context.Context, userID string) ([]*datastore.Key, error) {
	query := datastore.NewQuery(credentialKind).KeysOnly()
	keys, err := s.client.GetAll(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	var out []*datastore.Key
	for _, key := range keys {
		if strings.HasPrefix(key.Name, userID+keySep) {
			out = append(out, key)
		}
	}
	return out, nil
}

func (s *DatastoreStore) ListServices(ctx context.Context, userID string) ([]model.CredentialSummary, error) {
	keys, err := s.userKeys(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := []model.CredentialSummary{}
	for _, key := range keys {
		name, typ, ok := splitKeyName(key.Name, userID)
		if !ok {
			continue
		}
		out = append(out, model.CredentialSummary{Name: name, Type: typ})
	}
	return out, nil
}

func (s *DatastoreStore) GetService(ctx context.Context, userID, name string) (*model.Credential, error) {
	keys, err := s.userKeys(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		keyName, _, ok := splitKeyName(key.Name, userID)
		if !ok || keyName != name {
			continue
		}
		var entity credentialEntity
		if err := s.client.Get(ctx, key, &entity); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return nil, ErrServiceNotFound
			}
			return nil, err
		}
		return &model.Credential{
			Name: entity.Name,
			Type: entity.Type,
			Data: json.RawMessage(entity.Data),
		}, nil
	}
	return nil, ErrServiceNotFound
}

func (s *DatastoreStore) RegisterService(ctx context.Context, userID string, cred model.Credential) error {
	if _, err := s.GetService(ctx, userID, cred.Name); err == nil {
		return ErrServiceExists
	} else if !errors.Is(err, ErrServiceNotFound) {
		return err
	}
	entity := credentialEntity{
		UserID: userID,
		Name:   cred.Name,
		Type:   cred.Type,
		Data:   []byte(cred.Data),
	}
	_, err := s.client.Put(ctx, credentialKey(userID, cred.Name, cred.Type), &entity)
	return err
}

func (s *DatastoreStore) UpdateServiceData(ctx context.Context, userID, name string, data json.RawMessage) error {
	existing, err := s.GetService(ctx, userID, name)
	if err != nil {
		return err
	}
	entity := credentialEntity{
		UserID: userID,
		Name:   existing.Name,
		Type:   existing.Type,
		Data:   []byte(data),
	}
	_, err = s.client.Put(ctx, credentialKey(userID, existing.Name, existing.Type), &entity)
	return err
}

var _ CredentialStore = (*DatastoreStore)(nil)
