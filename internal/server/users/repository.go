// Package users implements the user directory: the persisted table of
// registered credentials, kept either in a (optionally encrypted) JSON file
// or in PostgreSQL.
package users

import (
	"context"
)

// Repository stores user records. Lookups return common.ErrorNotFound for
// unknown users and Create returns common.ErrorAlreadyExists for a taken
// username.
type Repository interface {
	// Load pulls the persisted directory into memory.
	Load(ctx context.Context) error
	// Save writes the directory out.
	Save(ctx context.Context) error

	Create(ctx context.Context, user *User) (*User, error)
	GetUserByLogin(ctx context.Context, userName string) (*User, error)
	GetUserByToken(ctx context.Context, token string) (*User, error)
	UpdateToken(ctx context.Context, userID, token string) error
	Remove(ctx context.Context, userID string) error
	List(ctx context.Context) ([]*User, error)
}
