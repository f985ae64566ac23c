package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStore keeps blobs on the local filesystem under root.
type LocalStore struct {
	root string
}

// NewLocalStore returns a store rooted at root, creating the uploads directory.
func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, errors.New("local store: empty root")
	}
	if err := os.MkdirAll(filepath.Join(root, uploadsPrefix), 0o755); err != nil {
		return nil, fmt.Errorf("local store: mkdir: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// Put writes to a temp file, syncs it and renames it into place.
func (s *LocalStore) Put(ctx context.Context, id, filename string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	locator := ObjectKey(id, filename)
	finalPath := s.pathFor(locator)
	dir := filepath.Dir(finalPath)

	file, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("local store: create temp: %w", err)
	}
	tmpName := file.Name()
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("local store: write: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("local store: sync: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("local store: close: %w", err)
	}
	if err := os.Rename(tmpName, finalPath); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("local store: rename: %w", err)
	}
	return locator, nil
}

func (s *LocalStore) Get(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkLocator(locator); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.pathFor(locator))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, locator)
	}
	if err != nil {
		return nil, fmt.Errorf("local store: read: %w", err)
	}
	return data, nil
}

func (s *LocalStore) Delete(ctx context.Context, locator string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkLocator(locator); err != nil {
		return err
	}
	err := os.Remove(s.pathFor(locator))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("local store: remove: %w", err)
	}
	return nil
}

func (s *LocalStore) pathFor(locator string) string {
	return filepath.Join(s.root, filepath.FromSlash(locator))
}
