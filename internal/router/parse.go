package router

import (
	"errors"
	"net/http"
	"strings"
)

var (
	ErrOutsideBasePath = errors.New("request path is outside the download base path")
	ErrInvalidPath     = errors.New("invalid download path")
)

// Target is the backing-store file a request addresses.
type Target struct {
	// Name is relative to the storage root, without a leading slash.
	Name string
}

// NormalizeBasePath returns basePath with exactly one leading slash and no
// trailing slash; the root prefix becomes "".
func NormalizeBasePath(basePath string) string {
	trimmed := strings.Trim(strings.TrimSpace(basePath), "/")
	if trimmed == "" {
		return ""
	}
	return "/" + trimmed
}

// ParseTarget strips the base path prefix from the request path. The prefix
// must match whole segments, so "/download" does not claim "/downloads/x".
func ParseTarget(r *http.Request, basePath string) (Target, error) {
	base := NormalizeBasePath(basePath)
	urlPath := r.URL.Path
	if !strings.HasPrefix(urlPath, base+"/") {
		return Target{}, ErrOutsideBasePath
	}
	name := strings.TrimPrefix(urlPath, base+"/")
	if name == "" || strings.HasSuffix(name, "/") {
		return Target{}, ErrInvalidPath
	}
	for _, segment := range strings.Split(name, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return Target{}, ErrInvalidPath
		}
	}
	return Target{Name: name}, nil
}
