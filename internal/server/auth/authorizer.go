package auth

import "context"

// Authorizer decides whether the session behind token may use path. It is
// consulted only after the token resolved to an active session.
type Authorizer interface {
	HasAuthorizationFor(ctx context.Context, token, path string) bool
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, token, path string) bool

func (f AuthorizerFunc) HasAuthorizationFor(ctx context.Context, token, path string) bool {
	return f(ctx, token, path)
}

// AllowAll is the default policy: every authenticated session may use
// every path.
type AllowAll struct{}

func (AllowAll) HasAuthorizationFor(context.Context, string, string) bool { return true }
