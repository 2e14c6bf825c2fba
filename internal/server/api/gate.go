package api

import (
	"context"

	"github.com/dmitrijs2005/resvault/internal/server/auth"
	"github.com/dmitrijs2005/resvault/internal/server/sessions"
)

// SessionResolver maps a token to its active session.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*sessions.Session, bool)
}

// Gate runs before every handler.
type Gate struct {
	sessions   SessionResolver
	authorizer auth.Authorizer
}

// NewGate uses auth.AllowAll when authorizer is nil.
func NewGate(sessions SessionResolver, authorizer auth.Authorizer) *Gate {
	if authorizer == nil {
		authorizer = auth.AllowAll{}
	}
	return &Gate{sessions: sessions, authorizer: authorizer}
}

// CheckAuth passes requests to endpoints without auth untouched. Otherwise
// the token must resolve to an active session and the authorizer must
// accept it for path; the failure result carries the auth challenge.
func (g *Gate) CheckAuth(ctx context.Context, path string, requiresAuth bool, token string) (Result, *sessions.Session) {
	if !requiresAuth {
		return Result{Succeeded: true}, nil
	}
	if token == "" {
		return unauthorized("missing token"), nil
	}

	s, ok := g.sessions.Resolve(ctx, token)
	if !ok {
		return unauthorized("invalid token"), nil
	}
	if !g.authorizer.HasAuthorizationFor(ctx, token, path) {
		return unauthorized("not authorized for " + path), nil
	}
	return Result{Succeeded: true}, s
}
