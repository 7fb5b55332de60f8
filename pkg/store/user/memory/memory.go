// Package memory implements an in-memory user store for tests and
// throwaway setups. Contents are lost on restart.
package memory

import (
	"context"
	"sync"

	"github.com/chen150182055/WebServer-02/pkg/store/user"
)

type Store struct {
	mu    sync.RWMutex
	users map[string]string
}

func New() *Store {
	return &Store{users: make(map[string]string)}
}

func (s *Store) Authenticate(ctx context.Context, username, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.users[username]
	if !ok || stored != password {
		return user.ErrBadCredentials
	}
	return nil
}

func (s *Store) Register(ctx context.Context, username, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return user.ErrUserExists
	}
	s.users[username] = password
	return nil
}

func (s *Store) Close() error {
	return nil
}
