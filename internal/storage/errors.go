package storage

import "errors"

var (
	ErrNotFound    = errors.New("no such file")
	ErrNotAFile    = errors.New("not a plain file")
	ErrInvalidPath = errors.New("invalid path")
)
