package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"

	"msgsync/pkg/logger"
	"msgsync/pkg/models"
)

// credKey is the single record the store keeps: the bearer credential and
// its issue time. Nothing else survives a restart; conversation and
// thread state is always rebuilt from the server.
const credKey = "session:current"

// CredStore persists the session credential across daemon restarts in a
// small Pebble database under the state path.
type CredStore struct {
	db *pebble.DB
}

// OpenCredStore opens (or creates) the credential store under dir.
func OpenCredStore(dir string) (*CredStore, error) {
	path := filepath.Join(dir, "session")
	logger.Debug("opening_cred_store", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open credential store at %s: %w", path, err)
	}
	return &CredStore{db: db}, nil
}

// Load returns the persisted session, or a zero session when none is
// stored.
func (s *CredStore) Load() (models.Session, error) {
	v, closer, err := s.db.Get([]byte(credKey))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return models.Session{}, nil
		}
		return models.Session{}, err
	}
	defer closer.Close()
	var sess models.Session
	if err := json.Unmarshal(v, &sess); err != nil {
		return models.Session{}, fmt.Errorf("decode stored session: %w", err)
	}
	return sess, nil
}

// Save persists sess, fsynced so a crash cannot lose the credential.
func (s *CredStore) Save(sess models.Session) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.db.Set([]byte(credKey), b, pebble.Sync)
}

// Clear removes the persisted credential.
func (s *CredStore) Clear() error {
	return s.db.Delete([]byte(credKey), pebble.Sync)
}

// Close closes the underlying database.
func (s *CredStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
