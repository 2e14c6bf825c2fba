package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/resvault/internal/common"
	"github.com/dmitrijs2005/resvault/internal/filex"
)

// ResourceStore keeps uploaded resources as files in one directory.
type ResourceStore struct {
	dir string
}

func NewResourceStore(dir string) (*ResourceStore, error) {
	if err := filex.EnsureDir(dir); err != nil {
		return nil, err
	}
	return &ResourceStore{dir: dir}, nil
}

// path maps an identifier to a file inside the store directory. Anything
// that could escape the directory is rejected.
func (s *ResourceStore) path(identifier string) (string, error) {
	if identifier == "" || identifier == "." || identifier == ".." ||
		strings.ContainsAny(identifier, `/\`) || strings.ContainsRune(identifier, 0) ||
		strings.HasPrefix(identifier, ".") {
		return "", fmt.Errorf("%w: %q", common.ErrorInvalidName, identifier)
	}
	return filepath.Join(s.dir, identifier), nil
}

// Create returns a sink for identifier. Nothing is visible under the
// final name until the sink is closed successfully.
func (s *ResourceStore) Create(identifier string) (*FileSink, error) {
	final, err := s.path(identifier)
	if err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(s.dir, "."+identifier+".*.part")
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", identifier, err)
	}
	return &FileSink{f: tmp, final: final}, nil
}

// Open returns the resource and its size, or ErrNotFound.
func (s *ResourceStore) Open(identifier string) (*os.File, int64, error) {
	p, err := s.path(identifier)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", identifier, err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", identifier, err)
	}
	return f, fi.Size(), nil
}

func (s *ResourceStore) Remove(identifier string) error {
	p, err := s.path(identifier)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}

// FileSink writes an upload to a temporary file. Close syncs it and
// renames it into place; Abort removes it.
type FileSink struct {
	f     *os.File
	final string
	done  bool
}

func (s *FileSink) Write(p []byte) (int, error) {
	return s.f.Write(p)
}

func (s *FileSink) Close() error {
	if s.done {
		return nil
	}
	s.done = true

	tmp := s.f.Name()
	if err := s.f.Sync(); err != nil {
		_ = s.f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err := s.f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.final); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

func (s *FileSink) Abort() error {
	if s.done {
		return nil
	}
	s.done = true
	_ = s.f.Close()
	return os.Remove(s.f.Name())
}
