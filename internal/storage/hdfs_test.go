package storage

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
}

func (f fakeFileInfo) Name() string       { return f.name }
func (f fakeFileInfo) Size() int64        { return f.size }
func (f fakeFileInfo) Mode() fs.FileMode  { return f.mode }
func (f fakeFileInfo) ModTime() time.Time { return f.modTime }
func (f fakeFileInfo) IsDir() bool        { return f.mode.IsDir() }
func (f fakeFileInfo) Sys() any           { return nil }

type nopSeekCloser struct {
	*bytes.Reader
}

func (nopSeekCloser) Close() error { return nil }

type fakeHDFSClient struct {
	files  map[string][]byte
	dirs   map[string]bool
	mod    time.Time
	closed bool
	opened []string
}

func (c *fakeHDFSClient) Stat(name string) (os.FileInfo, error) {
	if data, ok := c.files[name]; ok {
		return fakeFileInfo{name: name, size: int64(len(data)), modTime: c.mod}, nil
	}
	if c.dirs[name] {
		return fakeFileInfo{name: name, mode: fs.ModeDir | 0o755, modTime: c.mod}, nil
	}
	return nil, &os.PathError{Op: "stat", Path: name, Err: os.ErrNotExist}
}

func (c *fakeHDFSClient) Open(name string) (ReadSeekCloser, error) {
	data, ok := c.files[name]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	}
	c.opened = append(c.opened, name)
	return nopSeekCloser{Reader: bytes.NewReader(data)}, nil
}

func (c *fakeHDFSClient) Close() error {
	c.closed = true
	return nil
}

func TestHDFSBackendResolvesUnderRoot(t *testing.T) {
	t.Parallel()
	mod := time.Date(2015, 11, 4, 2, 37, 5, 0, time.UTC)
	client := &fakeHDFSClient{
		files: map[string][]byte{"/user/work/20151104.log": []byte("hdfs-bytes")},
		dirs:  map[string]bool{"/user/work": true},
		mod:   mod,
	}
	backend := newHDFSBackendWithClient(client, "/user/work")
	ctx := context.Background()

	ok, err := backend.Exists(ctx, "20151104.log")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = backend.IsFile(ctx, "20151104.log")
	require.NoError(t, err)
	require.True(t, ok)

	desc, err := backend.Stat(ctx, "20151104.log")
	require.NoError(t, err)
	require.Equal(t, "/user/work/20151104.log", desc.Path)
	require.Equal(t, int64(10), desc.Size)
	require.Equal(t, Validator(mod, 10), desc.Validator)

	rc, err := backend.Open(ctx, "20151104.log")
	require.NoError(t, err)
	_, err = rc.Seek(5, io.SeekStart)
	require.NoError(t, err)
	tail, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "bytes", string(tail))
	require.NoError(t, rc.Close())
	require.Equal(t, []string{"/user/work/20151104.log"}, client.opened)

	require.NoError(t, backend.Ping(ctx))
	require.NoError(t, backend.Close())
	require.True(t, client.closed)
}

func TestHDFSBackendMissingAndDirectories(t *testing.T) {
	t.Parallel()
	client := &fakeHDFSClient{dirs: map[string]bool{"/data/sub": true}}
	backend := newHDFSBackendWithClient(client, "/data")
	ctx := context.Background()

	ok, err := backend.Exists(ctx, "nope")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = backend.IsFile(ctx, "sub")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = backend.Stat(ctx, "sub")
	require.ErrorIs(t, err, ErrNotAFile)
	_, err = backend.Stat(ctx, "sub/../../etc")
	require.ErrorIs(t, err, ErrInvalidPath)
	_, err = backend.Open(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)
	require.Error(t, backend.Ping(ctx))
}

func TestHDFSClientOptionsNormalizesNamenodes(t *testing.T) {
	t.Parallel()
	opts, err := hdfsClientOptions(HDFSOptions{Namenodes: []string{" nn1:8020", "", "nn1:8020", "nn2:8020 "}, User: "work"})
	require.NoError(t, err)
	require.Equal(t, []string{"nn1:8020", "nn2:8020"}, opts.Addresses)
	require.Equal(t, "work", opts.User)

	_, err = hdfsClientOptions(HDFSOptions{})
	require.Error(t, err)
}
