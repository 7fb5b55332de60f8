// Package badger implements the user store on an embedded BadgerDB
// keyspace, for single-host deployments that should not depend on an
// external database server.
package badger

import (
	"context"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/chen150182055/WebServer-02/pkg/store/user"
)

const keyPrefix = "user/"

type Store struct {
	db *badger.DB
}

// New opens (or creates) the database at dir.
func New(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

func userKey(username string) []byte {
	return []byte(keyPrefix + username)
}

func (s *Store) Authenticate(ctx context.Context, username, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(username))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return user.ErrBadCredentials
			}
			return err
		}
		stored, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if string(stored) != password {
			return user.ErrBadCredentials
		}
		return nil
	})
	if err == user.ErrBadCredentials {
		return err
	}
	if err != nil {
		return fmt.Errorf("authenticate %q: %w", username, err)
	}
	return nil
}

func (s *Store) Register(ctx context.Context, username, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(userKey(username))
		if err == nil {
			return user.ErrUserExists
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(userKey(username), []byte(password))
	})
	if err == user.ErrUserExists {
		return err
	}
	if err != nil {
		return fmt.Errorf("register %q: %w", username, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
