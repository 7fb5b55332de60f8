// Package user defines the user store consumed by the login and register
// endpoints.
//
// The store is selected by configuration: MySQL for production deployments,
// BadgerDB for embedded single-host setups, and an in-memory map for tests.
// All implementations must be safe for concurrent use by the worker pool.
package user

import (
	"context"
	"errors"
)

var (
	// ErrBadCredentials is returned by Authenticate when the username does
	// not exist or the password does not match.
	ErrBadCredentials = errors.New("user: bad credentials")

	// ErrUserExists is returned by Register when the username is taken.
	ErrUserExists = errors.New("user: username already exists")
)

// Store authenticates and registers users.
//
// Both operations block until the backend answers; cancellation is
// delivered through ctx.
type Store interface {
	// Authenticate verifies that username exists with the given password.
	Authenticate(ctx context.Context, username, password string) error

	// Register creates the user if the username is unused.
	Register(ctx context.Context, username, password string) error

	// Close releases backend resources.
	Close() error
}
