package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chen150182055/WebServer-02/pkg/store/user"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	s := New()
	ctx := context.Background()
	username := uuid.NewString()

	require.NoError(t, s.Register(ctx, username, "secret"))
	assert.NoError(t, s.Authenticate(ctx, username, "secret"))
	assert.ErrorIs(t, s.Authenticate(ctx, username, "wrong"), user.ErrBadCredentials)
	assert.ErrorIs(t, s.Authenticate(ctx, uuid.NewString(), "secret"), user.ErrBadCredentials)
}

func TestRegisterConflict(t *testing.T) {
	s := New()
	ctx := context.Background()
	username := uuid.NewString()

	require.NoError(t, s.Register(ctx, username, "one"))
	assert.ErrorIs(t, s.Register(ctx, username, "two"), user.ErrUserExists)

	// The original password still wins.
	assert.NoError(t, s.Authenticate(ctx, username, "one"))
}
