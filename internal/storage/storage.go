//go:generate go run go.uber.org/mock/mockgen -source=storage.go -destination=../mocks/mock_storage.go -package=mocks

package storage

import (
	"context"
	"io"
	"path"
	"strconv"
	"time"
)

// Descriptor captures the identity and metadata of one backing-store file for
// the lifetime of a single request.
type Descriptor struct {
	Path         string
	Name         string
	Size         int64
	LastModified time.Time
	Validator    string
}

// NewDescriptor builds a Descriptor whose Validator is derived only from
// modTime and size, so the same file state always yields the same tag.
func NewDescriptor(filePath string, size int64, modTime time.Time) Descriptor {
	if size < 0 {
		size = 0
	}
	return Descriptor{
		Path:         filePath,
		Name:         path.Base(filePath),
		Size:         size,
		LastModified: modTime,
		Validator:    Validator(modTime, size),
	}
}

// Validator renders hex(unix millis of modTime) + "-" + hex(size).
func Validator(modTime time.Time, size int64) string {
	return strconv.FormatInt(modTime.UnixMilli(), 16) + "-" + strconv.FormatInt(size, 16)
}

// ReadSeekCloser is the handle returned by Open.
type ReadSeekCloser interface {
	io.Reader
	io.Seeker
	io.Closer
}

// Store is the read-only view of a backing store used by the download path.
// Paths are relative to the backend's configured root and use forward slashes.
type Store interface {
	Exists(ctx context.Context, name string) (bool, error)
	IsFile(ctx context.Context, name string) (bool, error)
	Stat(ctx context.Context, name string) (Descriptor, error)
	Open(ctx context.Context, name string) (ReadSeekCloser, error)
}

// Backend is a Store that can be health checked and released at shutdown.
type Backend interface {
	Store
	Ping(ctx context.Context) error
	Close() error
}

func ensureContext(ctx context.Context) error {
	if ctx == nil {
		return context.Canceled
	}
	return ctx.Err()
}
