package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newLocalFixture(t *testing.T) (*LocalBackend, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "work", "logs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "work", "logs", "app.log"), []byte("0123456789"), 0o644))
	backend, err := NewLocalBackend(dir, "/work")
	require.NoError(t, err)
	return backend, dir
}

func TestLocalBackendExistsAndIsFile(t *testing.T) {
	t.Parallel()
	backend, _ := newLocalFixture(t)
	ctx := context.Background()

	ok, err := backend.Exists(ctx, "logs/app.log")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = backend.IsFile(ctx, "logs/app.log")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = backend.Exists(ctx, "logs")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = backend.IsFile(ctx, "logs")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = backend.Exists(ctx, "logs/missing.log")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLocalBackendStatAndOpen(t *testing.T) {
	t.Parallel()
	backend, dir := newLocalFixture(t)
	ctx := context.Background()
	mod := time.Date(2015, 11, 4, 2, 37, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "work", "logs", "app.log"), mod, mod))

	desc, err := backend.Stat(ctx, "logs/app.log")
	require.NoError(t, err)
	require.Equal(t, "/work/logs/app.log", desc.Path)
	require.Equal(t, "app.log", desc.Name)
	require.Equal(t, int64(10), desc.Size)
	require.True(t, desc.LastModified.Equal(mod))
	require.Equal(t, Validator(mod, 10), desc.Validator)

	rc, err := backend.Open(ctx, "logs/app.log")
	require.NoError(t, err)
	defer rc.Close()
	_, err = rc.Seek(4, io.SeekStart)
	require.NoError(t, err)
	rest, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "456789", string(rest))
}

func TestLocalBackendRejectsDirectoriesAndEscapes(t *testing.T) {
	t.Parallel()
	backend, _ := newLocalFixture(t)
	ctx := context.Background()

	_, err := backend.Stat(ctx, "logs")
	require.ErrorIs(t, err, ErrNotAFile)

	_, err = backend.Stat(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = backend.Open(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = backend.Exists(ctx, "../../etc/passwd")
	require.ErrorIs(t, err, ErrInvalidPath)
	_, err = backend.Stat(ctx, "logs/../../secret")
	require.ErrorIs(t, err, ErrInvalidPath)
}

func TestLocalBackendSymlinkIsNotAFile(t *testing.T) {
	t.Parallel()
	backend, dir := newLocalFixture(t)
	link := filepath.Join(dir, "work", "logs", "link.log")
	if err := os.Symlink(filepath.Join(dir, "work", "logs", "app.log"), link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	ok, err := backend.IsFile(context.Background(), "logs/link.log")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLocalBackendHonorsCanceledContext(t *testing.T) {
	t.Parallel()
	backend, _ := newLocalFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := backend.Exists(ctx, "logs/app.log")
	require.ErrorIs(t, err, context.Canceled)
	_, err = backend.Open(ctx, "logs/app.log")
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, backend.Ping(ctx), context.Canceled)
}

func TestNewLocalBackendValidatesDirectory(t *testing.T) {
	t.Parallel()
	_, err := NewLocalBackend("", "/")
	require.Error(t, err)

	file := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = NewLocalBackend(file, "/")
	require.Error(t, err)

	backend, err := NewLocalBackend(t.TempDir(), "")
	require.NoError(t, err)
	require.NoError(t, backend.Ping(context.Background()))
	require.NoError(t, backend.Close())
}
