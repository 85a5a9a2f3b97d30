package persist

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// FileStore keeps one file per key in a directory. Writes go to a temp file
// that is renamed over the target, so a crash never leaves a torn blob.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, goerrors.New("file store directory is required", goerrors.CategoryValidation)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, wrap(err, "create snapshot directory")
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", goerrors.New("invalid snapshot key "+key, goerrors.CategoryBadInput)
	}
	return filepath.Join(s.dir, key+".snapshot"), nil
}

func (s *FileStore) Load(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrap(err, "read snapshot")
	}
	return b, nil
}

func (s *FileStore) Save(_ context.Context, key string, blob []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, key+".tmp-*")
	if err != nil {
		return wrap(err, "create temp snapshot")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return wrap(err, "write snapshot")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return wrap(err, "sync snapshot")
	}
	if err := tmp.Close(); err != nil {
		return wrap(err, "close snapshot")
	}
	return wrap(os.Rename(tmp.Name(), p), "replace snapshot")
}

func (s *FileStore) Remove(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return wrap(err, "remove snapshot")
	}
	return nil
}
