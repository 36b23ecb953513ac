package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps values in a single JSON file, surviving restarts of the process.
// Writes go through a temp file and rename so a crash never leaves a torn file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store backed by path. The file is created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultFilePath is the per-user location used by the command line console.
func DefaultFilePath(app string) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("[tokenstore DefaultFilePath] %w", err)
	}
	return filepath.Join(dir, app, "tokens.json"), nil
}

// Path returns the backing file.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Get(_ context.Context, kind Kind) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return "", err
	}
	v, ok := values[kind]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (f *FileStore) Set(_ context.Context, kind Kind, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return err
	}
	values[kind] = value
	return f.save(values)
}

func (f *FileStore) Clear(_ context.Context, kinds ...Kind) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return err
	}
	for _, k := range kinds {
		delete(values, k)
	}
	return f.save(values)
}

func (f *FileStore) load() (map[Kind]string, error) {
	values := make(map[Kind]string)
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[FileStore.load] read %s: %w", f.path, err)
	}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("[FileStore.load] decode %s: %w", f.path, err)
	}
	return values, nil
}

func (f *FileStore) save(values map[Kind]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("[FileStore.save] mkdir: %w", err)
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("[FileStore.save] encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".tokens-*")
	if err != nil {
		return fmt.Errorf("[FileStore.save] temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("[FileStore.save] write: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("[FileStore.save] chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("[FileStore.save] close: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("[FileStore.save] rename: %w", err)
	}
	return nil
}
