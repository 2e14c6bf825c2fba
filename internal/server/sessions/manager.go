// Package sessions tracks logged-in users. Sessions live in memory only,
// indexed by token and by username, and end on logout or restart. The
// user directory behind them is persisted.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/resvault/internal/common"
	"github.com/dmitrijs2005/resvault/internal/cryptox"
	"github.com/dmitrijs2005/resvault/internal/logging"
	"github.com/dmitrijs2005/resvault/internal/server/auth"
	"github.com/dmitrijs2005/resvault/internal/server/users"
)

const saltSize = 16

// Session is an active login. LogoutAt is set only on the copy returned
// by Logout.
type Session struct {
	Token    string
	UserID   string
	UserName string
	LoginAt  time.Time
	LogoutAt *time.Time
}

// Manager opens and closes sessions against a user directory.
//
// Each index update is atomic, but lookup-then-insert sequences are not
// serialized: two concurrent logins for one user may both mint a token,
// and the later insert wins the username index while the earlier token
// stays valid until it is logged out.
type Manager struct {
	repo   users.Repository
	secret []byte
	logger logging.Logger
	now    func() time.Time

	mu      sync.RWMutex
	byToken map[string]*Session
	byUser  map[string]*Session
}

func NewManager(repo users.Repository, secret []byte, logger logging.Logger) *Manager {
	return &Manager{
		repo:    repo,
		secret:  secret,
		logger:  logger,
		now:     time.Now,
		byToken: make(map[string]*Session),
		byUser:  make(map[string]*Session),
	}
}

// Register creates the user, or accepts an existing one whose password
// matches, and opens a session for it. A username taken with another
// password yields common.ErrorInvalidCredentials.
func (m *Manager) Register(ctx context.Context, username, password string) (*Session, error) {
	name := common.NormalizeUsername(username)
	if name == "" || password == "" {
		return nil, common.ErrorMissingCredentials
	}

	user, err := m.repo.GetUserByLogin(ctx, name)
	switch {
	case err == nil:
		if !cryptox.CheckPassword(password, user.Salt, user.PasswordHash) {
			return nil, common.ErrorInvalidCredentials
		}
	case errors.Is(err, common.ErrorNotFound):
		user, err = m.create(ctx, name, password)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	return m.open(ctx, user)
}

func (m *Manager) create(ctx context.Context, name, password string) (*users.User, error) {
	salt := common.GenerateRandByteArray(saltSize)
	user, err := m.repo.Create(ctx, &users.User{
		UserName:     name,
		Salt:         salt,
		PasswordHash: cryptox.HashPassword(password, salt),
		CreatedAt:    m.now().UTC(),
	})
	if errors.Is(err, common.ErrorAlreadyExists) {
		// Lost a registration race; the winner's password decides.
		existing, gerr := m.repo.GetUserByLogin(ctx, name)
		if gerr != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrorInternal, gerr)
		}
		if !cryptox.CheckPassword(password, existing.Salt, existing.PasswordHash) {
			return nil, common.ErrorInvalidCredentials
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	if err := m.repo.Save(ctx); err != nil {
		m.logger.Error(ctx, "directory save after register failed", "error", err)
	}
	m.logger.Info(ctx, "user registered", "user_id", user.ID, "username", user.UserName)
	return user, nil
}

// Login verifies the password and returns the user's session, opening one
// if none is active.
func (m *Manager) Login(ctx context.Context, username, password string) (*Session, error) {
	name := common.NormalizeUsername(username)
	if name == "" || password == "" {
		return nil, common.ErrorMissingCredentials
	}

	user, err := m.repo.GetUserByLogin(ctx, name)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrorInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	if !cryptox.CheckPassword(password, user.Salt, user.PasswordHash) {
		return nil, common.ErrorInvalidCredentials
	}

	return m.open(ctx, user)
}

// LoginByToken re-establishes a session from the last token issued to a
// user, without a password. The token keeps working after logout until a
// newer one replaces it in the directory.
func (m *Manager) LoginByToken(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, common.ErrorMissingCredentials
	}
	if s, ok := m.lookup(token); ok {
		return s, nil
	}

	claims, err := auth.ParseToken(token, m.secret)
	if err != nil {
		return nil, common.ErrorUnauthorized
	}

	user, err := m.repo.GetUserByToken(ctx, token)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrorUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	if user.ID != claims.UserID() {
		return nil, common.ErrorUnauthorized
	}

	if s, ok := m.lookupUser(user.UserName); ok {
		return s, nil
	}

	s := &Session{Token: token, UserID: user.ID, UserName: user.UserName, LoginAt: m.now()}
	m.insert(s)
	m.logger.Info(ctx, "session restored by token", "user_id", user.ID)
	return copySession(s), nil
}

// Logout drops the session from both indexes. The directory record,
// including its stored token, is left as is.
func (m *Manager) Logout(ctx context.Context, token string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.byToken[token]
	if ok {
		delete(m.byToken, token)
		if cur, ok := m.byUser[s.UserName]; ok && cur.Token == token {
			delete(m.byUser, s.UserName)
		}
	}
	m.mu.Unlock()

	if !ok {
		return nil, common.ErrorUnauthorized
	}

	out := copySession(s)
	at := m.now()
	out.LogoutAt = &at
	m.logger.Info(ctx, "session closed", "user_id", s.UserID)
	return out, nil
}

// Resolve returns the active session for token. The signature is checked
// before the index so forged tokens never reach it.
func (m *Manager) Resolve(_ context.Context, token string) (*Session, bool) {
	if token == "" {
		return nil, false
	}
	if _, err := auth.ParseToken(token, m.secret); err != nil {
		return nil, false
	}
	return m.lookup(token)
}

// Active returns the number of open sessions.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byToken)
}

// CloseAll drops every session. The directory is untouched.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	m.byToken = make(map[string]*Session)
	m.byUser = make(map[string]*Session)
	m.mu.Unlock()
}

// Save flushes the user directory.
func (m *Manager) Save(ctx context.Context) error {
	return m.repo.Save(ctx)
}

func (m *Manager) open(ctx context.Context, user *users.User) (*Session, error) {
	if s, ok := m.lookupUser(user.UserName); ok {
		return s, nil
	}

	token, err := auth.GenerateToken(user.ID, uuid.NewString(), m.secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	if err := m.repo.UpdateToken(ctx, user.ID, token); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	s := &Session{Token: token, UserID: user.ID, UserName: user.UserName, LoginAt: m.now()}
	m.insert(s)
	m.logger.Info(ctx, "session opened", "user_id", user.ID)
	return copySession(s), nil
}

func (m *Manager) insert(s *Session) {
	m.mu.Lock()
	m.byToken[s.Token] = s
	m.byUser[s.UserName] = s
	m.mu.Unlock()
}

func (m *Manager) lookup(token string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.byToken[token]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return copySession(s), true
}

func (m *Manager) lookupUser(name string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.byUser[name]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return copySession(s), true
}

func copySession(s *Session) *Session {
	c := *s
	return &c
}
