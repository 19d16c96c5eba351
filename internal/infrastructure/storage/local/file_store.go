// Package local implements kv.Store on the terminal's own disk and in memory.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"possync/internal/core/kv"
)

// FileStore keeps one JSON file per key under a root directory.
// Writes go to a temp file that is renamed over the target, so a crash
// leaves either the old or the new value on disk.
type FileStore struct {
	fs   afero.Fs
	root string
	mu   sync.RWMutex
}

// NewFileStore creates a store rooted at dir on fs, creating dir if needed.
func NewFileStore(fs afero.Fs, dir string) (*FileStore, error) {
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create state dir %s: %w", dir, err)
	}
	return &FileStore{fs: fs, root: dir}, nil
}

// NewOSFileStore creates a store on the real filesystem.
func NewOSFileStore(dir string) (*FileStore, error) {
	return NewFileStore(afero.NewOsFs(), dir)
}

func (s *FileStore) path(key string) (string, error) {
	if key == "" {
		return "", errors.New("kv: empty key")
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("kv: invalid key %q", key)
		}
	}
	return filepath.Join(s.root, filepath.FromSlash(key)) + ".json", nil
}

// Get implements kv.Store.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := afero.ReadFile(s.fs, p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Put implements kv.Store.
func (s *FileStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(p)
	if err := s.fs.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create dir for %s: %w", key, err)
	}

	tmp, err := afero.TempFile(s.fs, dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := s.fs.Rename(tmpName, p); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
}

var _ kv.Store = (*FileStore)(nil)
