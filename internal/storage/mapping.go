package storage

import (
	"fmt"
	"path"
	"strings"
)

// Resolve joins a slash-separated relative name onto root. Names that would
// climb out of root are rejected rather than cleaned into it.
func Resolve(root, name string) (string, error) {
	if root == "" {
		root = "/"
	}
	rel := strings.TrimPrefix(name, "/")
	if rel == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidPath)
	}
	if strings.ContainsRune(rel, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	for _, segment := range strings.Split(rel, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: %q escapes root", ErrInvalidPath, name)
		}
	}
	return path.Join(root, rel), nil
}
