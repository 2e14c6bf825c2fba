package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/resvault/internal/common"
	"github.com/dmitrijs2005/resvault/internal/logging"
	"github.com/dmitrijs2005/resvault/internal/server/sessions"
)

// SessionService is the session manager as seen by /user.
type SessionService interface {
	Register(ctx context.Context, username, password string) (*sessions.Session, error)
	Login(ctx context.Context, username, password string) (*sessions.Session, error)
	LoginByToken(ctx context.Context, token string) (*sessions.Session, error)
	Logout(ctx context.Context, token string) (*sessions.Session, error)
}

type UserHandlers struct {
	sessions SessionService
	logger   logging.Logger
}

func NewUserHandlers(s SessionService, logger logging.Logger) *UserHandlers {
	return &UserHandlers{sessions: s, logger: logger.With("module", "user")}
}

// Login authenticates with username and password, or with a previously
// issued token when only the token header is sent. The token is returned
// in the body and in the token header.
func (h *UserHandlers) Login(ctx context.Context, req *Request) Result {
	username := req.Header.Get(common.HeaderUsername)
	password := req.Header.Get(common.HeaderPassword)

	var (
		s   *sessions.Session
		err error
	)
	if username == "" && password == "" && req.Token() != "" {
		s, err = h.sessions.LoginByToken(ctx, req.Token())
	} else {
		s, err = h.sessions.Login(ctx, username, password)
	}
	if err != nil {
		return h.credentialError(ctx, "login", err)
	}

	res := okText(s.Token)
	res.setHeader(common.HeaderToken, s.Token)
	return res
}

// Register creates the user or accepts the existing one with the same
// password. The body is the user id; the session token comes back in the
// token header.
func (h *UserHandlers) Register(ctx context.Context, req *Request) Result {
	s, err := h.sessions.Register(ctx,
		req.Header.Get(common.HeaderUsername),
		req.Header.Get(common.HeaderPassword))
	if err != nil {
		return h.credentialError(ctx, "register", err)
	}

	res := okText(s.UserID)
	res.setHeader(common.HeaderToken, s.Token)
	return res
}

func (h *UserHandlers) Logout(ctx context.Context, req *Request) Result {
	token := req.Token()
	if token == "" {
		return fail(http.StatusBadRequest, "missing token")
	}
	if _, err := h.sessions.Logout(ctx, token); err != nil {
		return h.credentialError(ctx, "logout", err)
	}
	return okText("logged out")
}

func (h *UserHandlers) credentialError(ctx context.Context, op string, err error) Result {
	switch {
	case errors.Is(err, common.ErrorMissingCredentials):
		return fail(http.StatusBadRequest, "missing credentials")
	case errors.Is(err, common.ErrorInvalidCredentials):
		return unauthorized("invalid credentials")
	case errors.Is(err, common.ErrorUnauthorized):
		return unauthorized("invalid token")
	default:
		h.logger.Error(ctx, op+" failed", "error", err)
		return fail(http.StatusInternalServerError, "internal error")
	}
}
