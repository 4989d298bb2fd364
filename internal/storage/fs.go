package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalBackend serves files from a directory on the local filesystem. It
// stands in for a mounted distributed filesystem or a test fixture.
type LocalBackend struct {
	dataDir string
	root    string
}

func NewLocalBackend(dataDir, root string) (*LocalBackend, error) {
	if strings.TrimSpace(dataDir) == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	cleanDir := filepath.Clean(dataDir)
	info, err := os.Stat(cleanDir)
	if err != nil {
		return nil, fmt.Errorf("stat data directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data directory %q is not a directory", cleanDir)
	}
	return &LocalBackend{dataDir: cleanDir, root: root}, nil
}

func (b *LocalBackend) Exists(ctx context.Context, name string) (bool, error) {
	_, _, err := b.lstat(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (b *LocalBackend) IsFile(ctx context.Context, name string) (bool, error) {
	info, _, err := b.lstat(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func (b *LocalBackend) Stat(ctx context.Context, name string) (Descriptor, error) {
	info, resolved, err := b.lstat(ctx, name)
	if err != nil {
		return Descriptor{}, err
	}
	if !info.Mode().IsRegular() {
		return Descriptor{}, ErrNotAFile
	}
	return NewDescriptor(resolved, info.Size(), info.ModTime()), nil
}

func (b *LocalBackend) Open(ctx context.Context, name string) (ReadSeekCloser, error) {
	if err := ensureContext(ctx); err != nil {
		return nil, err
	}
	_, localPath, err := b.paths(name)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(localPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return file, nil
}

func (b *LocalBackend) Ping(ctx context.Context) error {
	if err := ensureContext(ctx); err != nil {
		return err
	}
	info, err := os.Stat(b.dataDir)
	if err != nil {
		return fmt.Errorf("stat data directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data directory %q is not a directory", b.dataDir)
	}
	return nil
}

func (b *LocalBackend) Close() error {
	return nil
}

// lstat does not follow symlinks, so a link is never reported as a plain file.
// It also returns the root-relative resolved path of name.
func (b *LocalBackend) lstat(ctx context.Context, name string) (os.FileInfo, string, error) {
	if err := ensureContext(ctx); err != nil {
		return nil, "", err
	}
	resolved, localPath, err := b.paths(name)
	if err != nil {
		return nil, "", err
	}
	info, err := os.Lstat(localPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("stat file: %w", err)
	}
	return info, resolved, nil
}

// paths returns the resolved store path of name and its location on disk.
func (b *LocalBackend) paths(name string) (string, string, error) {
	resolved, err := Resolve(b.root, name)
	if err != nil {
		return "", "", err
	}
	return resolved, filepath.Join(b.dataDir, filepath.FromSlash(resolved)), nil
}
