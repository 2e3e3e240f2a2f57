package stores

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.etcd.io/bbolt"

	"github.com/credgate/credgate/server/model"
)

var credentialsBucket = []byte("credentials")

// BoltStore persists each user's whole credential collection as one JSON
// value keyed by user id. Every mutation rewrites the collection, like the
// directory backend.
type BoltStore struct {
	db     *bbolt.DB
	logger *slog.Logger
}

func NewBoltStore(db *bbolt.DB, logger *slog.Logger) *BoltStore {
	return &BoltStore{db: db, logger: logger}
}

// decodeCollection unmarshals a stored collection. A value that does not
// decode as a list (a scalar written by a legacy bug) is treated as empty;
// the caller decides whether to persist the repair.
func (s *BoltStore) decodeCollection(userID string, raw []byte) ([]model.Credential, bool) {
	if raw == nil {
		return []model.Credential{}, false
	}
	var creds []model.Credential
	if err := json.Unmarshal(raw, &creds); err != nil {
		s.logger.Warn("corrupted credential collection, resetting to empty",
			"user", userID, "error", err)
		return []model.Credential{}, true
	}
	return creds, false
}

func (s *BoltStore) writeCollection(bucket *bbolt.Bucket, userID string, creds []model.Credential) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return bucket.Put([]byte(userID), data)
}

func (s *BoltStore) ListServices(ctx context.Context, userID string) ([]model.CredentialSummary, error) {
	out := []model.CredentialSummary{}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(credentialsBucket)
		if err != nil {
			return err
		}
		creds, repaired := s.decodeCollection(userID, bucket.Get([]byte(userID)))
		if repaired {
			if err := s.writeCollection(bucket, userID, creds); err != nil {
				return err
			}
		}
		for _, cred := range creds {
			out = append(out, cred.Summary())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) GetService(ctx context.Context, userID, name string) (*model.Credential, error) {
	var found *model.Credential
	// Update rather than View so a corrupted collection is repaired on any
	// read path, not only on listing.
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(credentialsBucket)
		if err != nil {
			return err
		}
		creds, repaired := s.decodeCollection(userID, bucket.Get([]byte(userID)))
		if repaired {
			if err := s.writeCollection(bucket, userID, creds); err != nil {
				return err
			}
		}
		for _, cred := range creds {
			if cred.Name == name {
				c := cred
				found = &c
				return nil
			}
		}
		return ErrServiceNotFound
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (s *BoltStore) RegisterService(ctx context.Context, userID string, cred model.Credential) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(credentialsBucket)
		if err != nil {
			return err
		}
		creds, _ := s.decodeCollection(userID, bucket.Get([]byte(userID)))
		for _, existing := range creds {
			if existing.Name == cred.Name {
				return ErrServiceExists
			}
		}
		return s.writeCollection(bucket, userID, append(creds, cred))
	})
}

func (s *BoltStore) UpdateServiceData(ctx context.Context, userID, name string, data json.RawMessage) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(credentialsBucket)
		if err != nil {
			return err
		}
		creds, repaired := s.decodeCollection(userID, bucket.Get([]byte(userID)))
		if repaired {
			if err := s.writeCollection(bucket, userID, creds); err != nil {
				return err
			}
		}
		for i, cred := range creds {
			if cred.Name == name {
				creds[i].Data = data
				return s.writeCollection(bucket, userID, creds)
			}
		}
		return ErrServiceNotFound
	})
}

var _ CredentialStore = (*BoltStore)(nil)
