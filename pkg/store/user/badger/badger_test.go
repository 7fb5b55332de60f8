package badger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chen150182055/WebServer-02/pkg/store/user"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRegisterAndAuthenticate(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	username := uuid.NewString()

	require.NoError(t, s.Register(ctx, username, "secret"))
	assert.NoError(t, s.Authenticate(ctx, username, "secret"))
	assert.ErrorIs(t, s.Authenticate(ctx, username, "wrong"), user.ErrBadCredentials)
	assert.ErrorIs(t, s.Authenticate(ctx, uuid.NewString(), "x"), user.ErrBadCredentials)
}

func TestRegisterConflict(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	username := uuid.NewString()

	require.NoError(t, s.Register(ctx, username, "one"))
	assert.ErrorIs(t, s.Register(ctx, username, "two"), user.ErrUserExists)
	assert.NoError(t, s.Authenticate(ctx, username, "one"))
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	username := uuid.NewString()

	s, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, s.Register(ctx, username, "secret"))
	require.NoError(t, s.Close())

	s, err = New(dir)
	require.NoError(t, err)
	defer s.Close()
	assert.NoError(t, s.Authenticate(ctx, username, "secret"))
}
