package users

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/resvault/internal/common"
	"github.com/dmitrijs2005/resvault/internal/cryptox"
	"github.com/dmitrijs2005/resvault/internal/filex"
)

// The directory file is encrypted with a passphrase and IV compiled into
// the binary. Anyone holding the binary can decrypt the file.
// TODO: take the directory key from configuration or a secret store.
var (
	directoryPassphrase = []byte("resvault-user-directory")
	directorySalt       = []byte("resvault-directory-salt")
	directoryIV         = []byte("resvault-dir-iv!")
)

// FileRepository keeps the directory in memory and persists it as a JSON
// array, AES-256-CBC encrypted when encrypt is set.
type FileRepository struct {
	path    string
	encrypt bool

	keyOnce sync.Once
	key     []byte

	mu      sync.RWMutex
	byID    map[string]*User
	byLogin map[string]string
	dirty   bool
}

func NewFileRepository(path string, encrypt bool) *FileRepository {
	return &FileRepository{
		path:    path,
		encrypt: encrypt,
		byID:    make(map[string]*User),
		byLogin: make(map[string]string),
	}
}

func (r *FileRepository) directoryKey() []byte {
	r.keyOnce.Do(func() {
		r.key = cryptox.DeriveKey(directoryPassphrase, directorySalt)
	})
	return r.key
}

// Load replaces the in-memory directory with the file content. A missing
// file is an empty directory.
func (r *FileRepository) Load(context.Context) error {
	data, err := filex.ReadFileIfExists(r.path)
	if err != nil {
		return err
	}

	var list []*User
	if len(data) > 0 {
		if r.encrypt {
			data, err = cryptox.DecryptCBC(data, r.directoryKey(), directoryIV)
			if err != nil {
				return fmt.Errorf("decrypt directory %s: %w", r.path, err)
			}
		}
		if len(bytes.TrimSpace(data)) > 0 {
			if err := json.Unmarshal(data, &list); err != nil {
				return fmt.Errorf("decode directory %s: %w", r.path, err)
			}
		}
	}

	byID := make(map[string]*User, len(list))
	byLogin := make(map[string]string, len(list))
	for _, u := range list {
		if u == nil || u.ID == "" {
			continue
		}
		u.UserName = common.NormalizeUsername(u.UserName)
		byID[u.ID] = u
		byLogin[u.UserName] = u.ID
	}

	r.mu.Lock()
	r.byID = byID
	r.byLogin = byLogin
	r.dirty = false
	r.mu.Unlock()
	return nil
}

// Save rewrites the whole file when something changed since the last
// Load or Save.
func (r *FileRepository) Save(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.dirty {
		return nil
	}

	list := make([]*User, 0, len(r.byID))
	for _, u := range r.byID {
		list = append(list, u)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UserName < list[j].UserName })

	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode directory: %w", err)
	}
	if r.encrypt {
		data, err = cryptox.EncryptCBC(data, r.directoryKey(), directoryIV)
		if err != nil {
			return fmt.Errorf("encrypt directory: %w", err)
		}
	}
	if err := filex.WriteFileAtomic(r.path, data, 0o600); err != nil {
		return err
	}
	r.dirty = false
	return nil
}

func (r *FileRepository) Create(_ context.Context, user *User) (*User, error) {
	u := *user
	u.UserName = common.NormalizeUsername(u.UserName)
	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byLogin[u.UserName]; ok {
		return nil, common.ErrorAlreadyExists
	}
	r.byID[u.ID] = &u
	r.byLogin[u.UserName] = u.ID
	r.dirty = true

	out := u
	return &out, nil
}

func (r *FileRepository) GetUserByLogin(_ context.Context, userName string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byLogin[common.NormalizeUsername(userName)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	u := *r.byID[id]
	return &u, nil
}

func (r *FileRepository) GetUserByToken(_ context.Context, token string) (*User, error) {
	if token == "" {
		return nil, common.ErrorNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.byID {
		if u.Token == token {
			out := *u
			return &out, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *FileRepository) UpdateToken(_ context.Context, userID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[userID]
	if !ok {
		return common.ErrorNotFound
	}
	u.Token = token
	r.dirty = true
	return nil
}

func (r *FileRepository) Remove(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[userID]
	if !ok {
		return common.ErrorNotFound
	}
	delete(r.byLogin, u.UserName)
	delete(r.byID, userID)
	r.dirty = true
	return nil
}

func (r *FileRepository) List(context.Context) ([]*User, error) {
	r.mu.RLock()
	list := make([]*User, 0, len(r.byID))
	for _, u := range r.byID {
		c := *u
		list = append(list, &c)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].UserName < list[j].UserName })
	return list, nil
}

var _ Repository = (*FileRepository)(nil)
