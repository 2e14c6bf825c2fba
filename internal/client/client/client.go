package client

import (
	"context"
	"io"
)

// Client is the protocol surface the CLI depends on.
type Client interface {
	Register(ctx context.Context, username, password string) (string, error)
	Login(ctx context.Context, username, password string) (string, error)
	LoginByToken(ctx context.Context, token string) (string, error)
	Logout(ctx context.Context) error

	PutValue(ctx context.Context, storage, key string, value []byte, encoding string) error
	GetValue(ctx context.Context, storage, key string) ([]byte, error)
	DeleteValue(ctx context.Context, storage, key string) error
	ListKeys(ctx context.Context, storage string) ([]string, error)

	Upload(ctx context.Context, identifier string, r io.Reader, size int64, encoding string, speedKB int) error
	Download(ctx context.Context, identifier string, w io.Writer, speedKB int) (int64, error)

	Token() string
	SetToken(token string)
}
